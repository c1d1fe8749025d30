// Package history caches past analyses and decides when a selection can be
// restored from them instead of re-scanning.
package history

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/jwulff/deepscan/internal/api"
)

// StatusComplete marks an analysis whose result is final.
const StatusComplete = "complete"

// Entry is one past analysis.
type Entry struct {
	ID            string
	DocumentIDs   []string
	ProDocumentID string
	DocumentName  string
	Query         string
	Status        string
	ModelUsed     string
	Result        json.RawMessage
	Findings      json.RawMessage
	CreatedAt     time.Time
}

// Complete reports whether the analysis finished successfully.
func (e Entry) Complete() bool {
	return e.Status == StatusComplete
}

// Matches reports whether the analysis covered documentID.
func (e Entry) Matches(documentID string) bool {
	if documentID == "" {
		return false
	}
	return e.ProDocumentID == documentID || slices.Contains(e.DocumentIDs, documentID)
}

// FromAnalysis converts a backend analysis.
func FromAnalysis(a api.Analysis) Entry {
	e := Entry{
		ID:            a.ID,
		DocumentIDs:   slices.Clone(a.DocumentIDs),
		ProDocumentID: a.ProDocumentID,
		DocumentName:  a.DocumentName,
		Query:         a.Query,
		Status:        a.Status,
		ModelUsed:     a.ModelUsed,
		Result:        a.Result,
		Findings:      a.Findings,
	}
	if a.CreatedAt != "" {
		if t, err := time.Parse(time.RFC3339Nano, a.CreatedAt); err == nil {
			e.CreatedAt = t
		}
	}
	return e
}
