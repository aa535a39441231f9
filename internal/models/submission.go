package models

import (
	"time"

	"diligencego/internal/catalog"
)

// Status tracks a submission through report generation.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// ReportPending is the placeholder report stored while the model runs.
const ReportPending = "Generating..."

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// CanTransition allows processing -> completed and processing -> error only.
func (s Status) CanTransition(next Status) bool {
	return s == StatusProcessing && next.Terminal()
}

// Documents maps a document type to the URL of the stored file.
type Documents map[catalog.DocumentType]string

// Submission is the persisted diligence record.
type Submission struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	BasicDetails
	Documents Documents `json:"documents"`
	Report    string    `json:"report"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DocumentTypes lists the attached document types in catalog order.
func (s *Submission) DocumentTypes() []catalog.DocumentType {
	if s == nil || len(s.Documents) == 0 {
		return nil
	}
	out := make([]catalog.DocumentType, 0, len(s.Documents))
	for _, d := range catalog.DocumentTypes() {
		if _, ok := s.Documents[d]; ok {
			out = append(out, d)
		}
	}
	return out
}
