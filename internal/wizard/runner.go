package wizard

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"diligencego/internal/catalog"
	"diligencego/internal/models"
)

// Backend submits a form and follows its record until it settles.
type Backend interface {
	Submitter
	Watch(ctx context.Context, id string, onSnapshot func(*models.Submission)) (*models.Submission, error)
}

const (
	reviewSubmit        = "Submit"
	reviewEditDocuments = "Edit documents"
	reviewEditDetails   = "Edit basic details"
	reviewCancel        = "Cancel"
)

var reviewOptions = []string{reviewSubmit, reviewEditDocuments, reviewEditDetails, reviewCancel}

// Runner drives a Wizard through a PromptDriver.
type Runner struct {
	driver  PromptDriver
	backend Backend
	logger  *zap.Logger
	paths   map[catalog.DocumentType]string
}

func NewRunner(driver PromptDriver, backend Backend, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		driver:  driver,
		backend: backend,
		logger:  logger,
		paths:   make(map[catalog.DocumentType]string),
	}
}

// Run collects the form, submits it and waits for the report. The
// settled record is returned even when generation failed.
func (r *Runner) Run(ctx context.Context) (*models.Submission, error) {
	w := New()
	for {
		if err := r.info(ctx, "Step %d of %d: %s (%d%%)", int(w.Step()), TotalSteps, w.Step(), w.Progress()); err != nil {
			return nil, err
		}
		switch w.Step() {
		case StepDetails:
			if err := r.askDetails(ctx, w); err != nil {
				return nil, err
			}
		case StepDocuments:
			if err := r.askDocuments(ctx, w); err != nil {
				return nil, err
			}
		case StepReview:
			done, err := r.review(ctx, w)
			if err != nil {
				return nil, err
			}
			if done {
				return r.submit(ctx, w)
			}
			continue
		}
		if err := w.Next(); err != nil {
			if err := r.info(ctx, "%v", err); err != nil {
				return nil, err
			}
		}
	}
}

func (r *Runner) askDetails(ctx context.Context, w *Wizard) error {
	current := w.Details()
	for {
		d := current
		var err error
		if d.StartupName, err = r.driver.Input(ctx, InputConfig{
			Message: "Startup name",
			Default: current.StartupName,
		}); err != nil {
			return err
		}
		if d.Email, err = r.driver.Input(ctx, InputConfig{
			Message: "Contact email",
			Default: current.Email,
		}); err != nil {
			return err
		}
		if d.YearOfRegistration, err = r.askInt(ctx, "Year of registration", current.YearOfRegistration); err != nil {
			return err
		}
		if d.NumberOfEmployees, err = r.askInt(ctx, "Number of employees", current.NumberOfEmployees); err != nil {
			return err
		}
		if d.Field, err = r.askIndustry(ctx, current.Field); err != nil {
			return err
		}

		err = w.SetDetails(d)
		if err == nil {
			return nil
		}
		var verr *models.ValidationError
		if !errors.As(err, &verr) {
			return err
		}
		for _, fe := range verr.Fields {
			if err := r.info(ctx, "  %s", fe.Message); err != nil {
				return err
			}
		}
		current = d
	}
}

func (r *Runner) askInt(ctx context.Context, message string, current int) (int, error) {
	def := ""
	if current != 0 {
		def = strconv.Itoa(current)
	}
	raw, err := r.driver.Input(ctx, InputConfig{
		Message: message,
		Default: def,
		Validator: func(s string) error {
			if _, err := strconv.Atoi(strings.TrimSpace(s)); err != nil {
				return errors.New("please enter a whole number")
			}
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(raw))
}

func (r *Runner) askIndustry(ctx context.Context, current catalog.Industry) (catalog.Industry, error) {
	industries := catalog.Industries()
	options := make([]string, len(industries))
	for i, ind := range industries {
		options[i] = string(ind)
	}
	idx, err := r.driver.Select(ctx, SelectConfig{
		Message:      "Industry",
		Options:      options,
		DefaultIndex: indexOf(options, string(current)),
		PageSize:     10,
		Help:         "The industry decides which documents are required.",
	})
	if err != nil {
		return "", err
	}
	if idx < 0 || idx >= len(industries) {
		return "", fmt.Errorf("industry selection out of range: %d", idx)
	}
	return industries[idx], nil
}

func (r *Runner) askDocuments(ctx context.Context, w *Wizard) error {
	for _, docType := range w.RequiredDocuments() {
		path, err := r.driver.Input(ctx, InputConfig{
			Message:   docType.Label() + " (file path)",
			Default:   r.paths[docType],
			Help:      "PDF, Word, text or image files are accepted.",
			Validator: validateFile,
		})
		if err != nil {
			return err
		}
		path = strings.TrimSpace(path)
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", docType.Label(), err)
		}
		if err := w.Attach(docType, Attachment{Filename: filepath.Base(path), Data: data}); err != nil {
			return err
		}
		r.paths[docType] = path
	}
	return nil
}

func validateFile(s string) error {
	info, err := os.Stat(strings.TrimSpace(s))
	if err != nil {
		return errors.New("file not found")
	}
	if info.IsDir() {
		return errors.New("path is a directory")
	}
	if info.Size() == 0 {
		return errors.New("file is empty")
	}
	return nil
}

func (r *Runner) review(ctx context.Context, w *Wizard) (bool, error) {
	d := w.Details()
	lines := []string{
		"Startup:   " + d.StartupName,
		"Email:     " + d.Email,
		"Year:      " + strconv.Itoa(d.YearOfRegistration),
		"Employees: " + strconv.Itoa(d.NumberOfEmployees),
		"Industry:  " + string(d.Field),
	}
	for _, docType := range w.RequiredDocuments() {
		name := "(missing)"
		if att, ok := w.Attachment(docType); ok {
			name = att.Filename
		}
		lines = append(lines, fmt.Sprintf("  %s: %s", docType.Label(), name))
	}
	if err := r.driver.Info(ctx, strings.Join(lines, "\n")); err != nil {
		return false, err
	}

	idx, err := r.driver.Select(ctx, SelectConfig{Message: "Ready to submit?", Options: reviewOptions})
	if err != nil {
		return false, err
	}
	if idx < 0 || idx >= len(reviewOptions) {
		return false, ErrAborted
	}
	switch reviewOptions[idx] {
	case reviewSubmit:
		return true, nil
	case reviewEditDocuments:
		w.Back()
	case reviewEditDetails:
		w.Back()
		w.Back()
	default:
		return false, ErrAborted
	}
	return false, nil
}

func (r *Runner) submit(ctx context.Context, w *Wizard) (*models.Submission, error) {
	if err := r.info(ctx, "Submitting..."); err != nil {
		return nil, err
	}
	id, err := w.Submit(ctx, r.backend)
	if err != nil {
		r.logger.Warn("submission failed", zap.String("submission_id", id), zap.Error(err))
		return nil, err
	}
	r.logger.Info("submission accepted", zap.String("submission_id", id))

	sub, err := r.backend.Watch(ctx, id, func(s *models.Submission) {
		_ = r.info(ctx, "Status: %s", s.Status)
	})
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", id, err)
	}
	switch sub.Status {
	case models.StatusCompleted:
		err = r.info(ctx, "Report:\n%s", sub.Report)
	default:
		err = r.info(ctx, "Report generation failed: %s", sub.Error)
	}
	return sub, err
}

func (r *Runner) info(ctx context.Context, format string, args ...any) error {
	return r.driver.Info(ctx, fmt.Sprintf(format, args...))
}
