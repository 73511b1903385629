package model

import "time"

// SensitiveDataMapping links an anonymization placeholder inside a segment's
// anonymized content to the value it replaced.
type SensitiveDataMapping struct {
	ID              string    `json:"id"`
	SegmentID       string    `json:"segment_id"`
	TokenIdentifier string    `json:"token_identifier"`
	SensitiveType   string    `json:"sensitive_type"`
	OriginalValue   string    `json:"original_value"`
	CreatedAt       time.Time `json:"created_at"`
}

// MappingsBySegment groups mappings by their segment id.
func MappingsBySegment(mappings []SensitiveDataMapping) map[string][]SensitiveDataMapping {
	out := make(map[string][]SensitiveDataMapping)
	for _, m := range mappings {
		out[m.SegmentID] = append(out[m.SegmentID], m)
	}
	return out
}
