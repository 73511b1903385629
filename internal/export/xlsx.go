// Package export writes a task's segments to a bilingual XLSX workbook for
// offline review and reads reviewer edits back from it.
package export

import (
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/doctrans/internal/model"
)

const (
	segmentsSheet = "Segments"
	taskSheet     = "Task"
)

// Column layout of the segments sheet.
var header = []string{"#", "Segment ID", "Source", "Machine translation", "Edited"}

const (
	colID     = 1
	colEdited = 4
)

// Bilingual builds the review workbook. Source text is the anonymized
// content, so sensitive values never leave the service.
func Bilingual(task *model.TranslationTask, segments []model.Segment) (*xlsx.File, error) {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet(segmentsSheet)
	if err != nil {
		return nil, eris.Wrap(err, "export: add segments sheet")
	}
	addRow(sheet, header...)
	for _, s := range segments {
		addRow(sheet,
			strconv.Itoa(s.Order+1),
			s.ID,
			s.TranslatableContent(),
			deref(s.MachineTranslatedContent),
			deref(s.EditedContent),
		)
	}

	info, err := f.AddSheet(taskSheet)
	if err != nil {
		return nil, eris.Wrap(err, "export: add task sheet")
	}
	for _, kv := range [][2]string{
		{"Task ID", task.ID},
		{"Type", string(task.Type)},
		{"Source language", task.SourceLanguage},
		{"Target language", task.TargetLanguage},
		{"Stage", string(task.Stage)},
		{"Status", string(task.Status)},
		{"Word count", strconv.Itoa(task.WordCount)},
	} {
		addRow(info, kv[0], kv[1])
	}
	return f, nil
}

// WriteBilingual writes the review workbook to w.
func WriteBilingual(w io.Writer, task *model.TranslationTask, segments []model.Segment) error {
	f, err := Bilingual(task, segments)
	if err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write workbook")
	}
	return nil
}

// ReadEdits returns the non-empty Edited cells of a review workbook keyed
// by segment id.
func ReadEdits(data []byte) (map[string]string, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "export: open workbook")
	}
	sheet, ok := f.Sheet[segmentsSheet]
	if !ok {
		return nil, eris.Errorf("export: sheet %q not found", segmentsSheet)
	}

	edits := make(map[string]string)
	for i, row := range sheet.Rows {
		if i == 0 || len(row.Cells) <= colEdited {
			continue
		}
		id := strings.TrimSpace(row.Cells[colID].String())
		text := row.Cells[colEdited].String()
		if id == "" || strings.TrimSpace(text) == "" {
			continue
		}
		if _, dup := edits[id]; dup {
			return nil, eris.Errorf("export: segment %s appears twice (row %d)", id, i+1)
		}
		edits[id] = text
	}
	return edits, nil
}

func addRow(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
