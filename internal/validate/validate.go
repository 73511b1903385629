// Package validate checks an editor's submission against the anonymized
// segment text it was derived from. Markers and anonymization tokens must
// survive editing; the surrounding words may change freely.
package validate

import (
	"fmt"
	"sort"

	"github.com/sells-group/doctrans/internal/marker"
	"github.com/sells-group/doctrans/internal/model"
)

// Check names one validation pass.
type Check string

const (
	CheckPlaceholders Check = "placeholders"
	CheckFormatTags   Check = "format_tags"
	CheckEntities     Check = "entities"
	CheckSegment      Check = "segment"
)

// MismatchError describes the first difference found between the original
// and edited text.
type MismatchError struct {
	Check     Check
	SegmentID string
	// ID is the marker id or, for entity checks, the token text.
	ID       string
	Expected int
	Actual   int
	Reason   string
}

func (e *MismatchError) Error() string {
	prefix := "validate"
	if e.SegmentID != "" {
		prefix += ": segment " + e.SegmentID
	}
	return fmt.Sprintf("%s: %s %q: %s (expected %d, got %d)", prefix, e.Check, e.ID, e.Reason, e.Expected, e.Actual)
}

// Result is the outcome of Validate.
type Result struct {
	Valid bool
	Err   *MismatchError
}

// Validate compares edited against original. Placeholders are checked
// first, then format tags, then anonymization tokens; the first failure
// is returned.
func Validate(original, edited string) Result {
	if err := compareMarkers(CheckPlaceholders, marker.Placeholders(original), marker.Placeholders(edited)); err != nil {
		return Result{Err: err}
	}
	if err := compareMarkers(CheckFormatTags, marker.Groups(original), marker.Groups(edited)); err != nil {
		return Result{Err: err}
	}
	if err := compareEntities(marker.Entities(original), marker.Entities(edited)); err != nil {
		return Result{Err: err}
	}
	return Result{Valid: true}
}

func compareMarkers(check Check, want, got marker.Count) *MismatchError {
	for _, id := range unionIDs(want, got) {
		w, g := want.N[id], got.N[id]
		switch {
		case g < w:
			return &MismatchError{Check: check, ID: id, Expected: w, Actual: g, Reason: "marker missing"}
		case g > w:
			return &MismatchError{Check: check, ID: id, Expected: w, Actual: g, Reason: "unexpected marker"}
		case want.Type[id] != got.Type[id]:
			return &MismatchError{
				Check: check, ID: id, Expected: w, Actual: g,
				Reason: fmt.Sprintf("type changed from %q to %q", want.Type[id], got.Type[id]),
			}
		}
	}
	return nil
}

func compareEntities(want, got marker.Count) *MismatchError {
	for _, tok := range want.Order {
		if got.N[tok] < want.N[tok] {
			return &MismatchError{Check: CheckEntities, ID: tok, Expected: want.N[tok], Actual: got.N[tok], Reason: "anonymized token missing"}
		}
		if got.N[tok] > want.N[tok] {
			return &MismatchError{Check: CheckEntities, ID: tok, Expected: want.N[tok], Actual: got.N[tok], Reason: "anonymized token duplicated"}
		}
	}
	for _, tok := range got.Order {
		if _, ok := want.N[tok]; !ok {
			return &MismatchError{Check: CheckEntities, ID: tok, Expected: 0, Actual: got.N[tok], Reason: "anonymized token not in original"}
		}
	}
	return nil
}

// unionIDs returns the ids of both counts, numeric ids first in numeric
// order, so the reported mismatch is stable.
func unionIDs(a, b marker.Count) []string {
	seen := map[string]bool{}
	var ids []string
	for _, c := range []marker.Count{a, b} {
		for _, id := range c.Order {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.SliceStable(ids, func(i, j int) bool {
		x, y := marker.IDInt(ids[i]), marker.IDInt(ids[j])
		if x < 0 || y < 0 {
			return x >= 0 && y < 0
		}
		return x < y
	})
	return ids
}

// ValidateSubmission validates every edit against its segment's anonymized
// content. The submission is accepted only if every edit passes; edits for
// segments that do not belong to the task are rejected. An empty submission
// accepts the machine translation as is.
func ValidateSubmission(segments []model.Segment, edits map[string]string) error {
	byID := make(map[string]model.Segment, len(segments))
	for _, s := range segments {
		byID[s.ID] = s
	}

	ids := make([]string, 0, len(edits))
	for id := range edits {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		si, sj := byID[ids[i]], byID[ids[j]]
		if si.Order != sj.Order {
			return si.Order < sj.Order
		}
		return ids[i] < ids[j]
	})

	for _, id := range ids {
		seg, ok := byID[id]
		if !ok {
			return &MismatchError{Check: CheckSegment, SegmentID: id, ID: id, Reason: "segment does not belong to task"}
		}
		res := Validate(seg.TranslatableContent(), edits[id])
		if !res.Valid {
			res.Err.SegmentID = id
			return res.Err
		}
	}
	return nil
}
