// Package wizard walks a founder through the three-step diligence form:
// basic details, required documents, review and submit.
package wizard

import (
	"context"
	"errors"

	"diligencego/internal/catalog"
	"diligencego/internal/models"
	"diligencego/internal/submission"
)

// Step is a page of the form.
type Step int

const (
	StepDetails Step = iota + 1
	StepDocuments
	StepReview
)

// TotalSteps is the number of form pages.
const TotalSteps = 3

func (s Step) String() string {
	switch s {
	case StepDetails:
		return "Basic Details"
	case StepDocuments:
		return "Documents"
	case StepReview:
		return "Review & Submit"
	default:
		return "Unknown"
	}
}

var (
	ErrDetailsRequired = errors.New("basic details are not filled in")
	ErrNotRequired     = errors.New("document is not required for this industry")
	ErrWrongStep       = errors.New("action not available on this step")
	ErrLastStep        = errors.New("already on the last step")
)

// Attachment is a file picked for a document slot.
type Attachment struct {
	Filename string
	Data     []byte
}

// Submitter sends a finished form.
type Submitter interface {
	Submit(ctx context.Context, details models.BasicDetails, docs map[catalog.DocumentType]Attachment) (string, error)
}

// Wizard holds the form state. The zero value is not usable; call New.
type Wizard struct {
	step       Step
	details    models.BasicDetails
	hasDetails bool
	docs       map[catalog.DocumentType]Attachment
}

func New() *Wizard {
	return &Wizard{
		step:    StepDetails,
		details: models.BasicDetails{Field: catalog.DefaultIndustry},
		docs:    make(map[catalog.DocumentType]Attachment),
	}
}

func (w *Wizard) Step() Step { return w.step }

// Progress is the completed share of the form in percent.
func (w *Wizard) Progress() int {
	return int(w.step) * 100 / TotalSteps
}

// Details returns the current basic details.
func (w *Wizard) Details() models.BasicDetails { return w.details }

// SetDetails validates and stores the basic details. When the industry
// changes, documents the new industry does not require are dropped.
func (w *Wizard) SetDetails(d models.BasicDetails) error {
	if w.step != StepDetails {
		return ErrWrongStep
	}
	if err := d.Validate(); err != nil {
		return err
	}
	if d.Field != w.details.Field {
		for docType := range w.docs {
			if !catalog.IsRequired(d.Field, docType) {
				delete(w.docs, docType)
			}
		}
	}
	w.details = d
	w.hasDetails = true
	return nil
}

// RequiredDocuments lists the slots of the selected industry.
func (w *Wizard) RequiredDocuments() []catalog.DocumentType {
	return catalog.RequiredDocuments(w.details.Field)
}

// Missing lists required slots without an attachment.
func (w *Wizard) Missing() []catalog.DocumentType {
	provided := make([]catalog.DocumentType, 0, len(w.docs))
	for d := range w.docs {
		provided = append(provided, d)
	}
	return catalog.MissingDocuments(w.details.Field, provided)
}

// Attach sets the file of a required slot, replacing any earlier one.
func (w *Wizard) Attach(docType catalog.DocumentType, att Attachment) error {
	if w.step != StepDocuments {
		return ErrWrongStep
	}
	if !catalog.IsRequired(w.details.Field, docType) {
		return ErrNotRequired
	}
	w.docs[docType] = att
	return nil
}

// Detach clears a slot.
func (w *Wizard) Detach(docType catalog.DocumentType) {
	delete(w.docs, docType)
}

// Attachment returns the file of a slot.
func (w *Wizard) Attachment(docType catalog.DocumentType) (Attachment, bool) {
	att, ok := w.docs[docType]
	return att, ok
}

// Documents returns a copy of the attached files.
func (w *Wizard) Documents() map[catalog.DocumentType]Attachment {
	out := make(map[catalog.DocumentType]Attachment, len(w.docs))
	for k, v := range w.docs {
		out[k] = v
	}
	return out
}

// Next advances when the current step is complete.
func (w *Wizard) Next() error {
	switch w.step {
	case StepDetails:
		if !w.hasDetails {
			return ErrDetailsRequired
		}
	case StepDocuments:
		if err := w.checkDocuments(); err != nil {
			return err
		}
	default:
		return ErrLastStep
	}
	w.step++
	return nil
}

// Back moves one step down, never below the first.
func (w *Wizard) Back() {
	if w.step > StepDetails {
		w.step--
	}
}

// Submit sends the form. It is only available on the review step and
// re-checks the documents before anything leaves the process.
func (w *Wizard) Submit(ctx context.Context, s Submitter) (string, error) {
	if w.step != StepReview {
		return "", ErrWrongStep
	}
	if !w.hasDetails {
		return "", ErrDetailsRequired
	}
	if err := w.checkDocuments(); err != nil {
		return "", err
	}
	return s.Submit(ctx, w.details, w.Documents())
}

func (w *Wizard) checkDocuments() error {
	if missing := w.Missing(); len(missing) > 0 {
		return &submission.MissingDocumentsError{Missing: missing}
	}
	return nil
}
