// Package submission runs the diligence submission pipeline: validate,
// record, upload, generate, finalize.
package submission

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"diligencego/internal/blob"
	"diligencego/internal/catalog"
	"diligencego/internal/logger"
	"diligencego/internal/metrics"
	"diligencego/internal/models"
	"diligencego/internal/report"
)

// FailureMessage is what callers see for any failure after validation.
const FailureMessage = "Failed to submit diligence report."

var (
	ErrMissingDocuments = errors.New("missing required documents")
	ErrSubmitFailed     = errors.New("submit diligence report")
)

// MissingDocumentsError lists required documents absent from a submission.
type MissingDocumentsError struct {
	Missing []catalog.DocumentType
}

func (e *MissingDocumentsError) Error() string {
	labels := make([]string, 0, len(e.Missing))
	for _, d := range e.Missing {
		labels = append(labels, d.Label())
	}
	return "Missing required documents: " + strings.Join(labels, ", ")
}

func (e *MissingDocumentsError) Unwrap() error { return ErrMissingDocuments }

// Upload is one file offered for a document slot.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Store is the persistence the pipeline needs.
type Store interface {
	Create(ctx context.Context, sub *models.Submission) error
	AttachDocuments(ctx context.Context, id string, docs models.Documents) error
	Complete(ctx context.Context, id, report string) error
	Fail(ctx context.Context, id, message string) error
	GetForOwner(ctx context.Context, userID, id string) (*models.Submission, error)
	ListByOwner(ctx context.Context, userID string) ([]*models.Submission, error)
}

// Reporter drafts reports and summaries.
type Reporter interface {
	Generate(ctx context.Context, in report.Input) (string, error)
	Summarize(ctx context.Context, urls []string) (*report.Summary, error)
}

// Publisher announces that a submission record changed.
type Publisher interface {
	Publish(ctx context.Context, submissionID string) error
}

// Mailer is told when a report is ready.
type Mailer interface {
	ReportReady(ctx context.Context, sub *models.Submission) error
}

// Queue runs report generation on a shared, bounded pool.
type Queue interface {
	Do(ctx context.Context, owner string, fn func(context.Context) error) error
}

// Service runs submissions end to end.
type Service struct {
	store     Store
	blobs     blob.Store
	reporter  Reporter
	publisher Publisher
	mailer    Mailer
	queue     Queue
	logger    *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = logger.OrNop(l) }
}

// WithPublisher sends change notifications to the live viewer.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithMailer sends a notice once a report is stored.
func WithMailer(m Mailer) Option {
	return func(s *Service) { s.mailer = m }
}

// WithQueue sends report generation through q instead of calling the
// reporter inline.
func WithQueue(q Queue) Option {
	return func(s *Service) { s.queue = q }
}

func NewService(store Store, blobs blob.Store, reporter Reporter, opts ...Option) *Service {
	s := &Service{
		store:    store,
		blobs:    blobs,
		reporter: reporter,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates the details and documents, then records, uploads and
// generates the report. Validation errors are returned as is; every later
// failure is wrapped in ErrSubmitFailed and leaves the record in the error
// status.
func (s *Service) Submit(ctx context.Context, owner string, details models.BasicDetails, uploads map[catalog.DocumentType]Upload) (string, error) {
	if owner == "" {
		return "", errors.New("owner required")
	}
	if err := details.Validate(); err != nil {
		metrics.SubmissionsTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
		return "", err
	}
	required := catalog.RequiredDocuments(details.Field)
	provided := make([]catalog.DocumentType, 0, len(uploads))
	for d := range uploads {
		provided = append(provided, d)
	}
	if missing := catalog.MissingDocuments(details.Field, provided); len(missing) > 0 {
		metrics.SubmissionsTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
		return "", &MissingDocumentsError{Missing: missing}
	}

	sub := &models.Submission{UserID: owner, BasicDetails: details}
	if err := s.store.Create(ctx, sub); err != nil {
		metrics.SubmissionsTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		s.logger.Error("create submission", zap.String("owner", owner), zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}
	s.publish(ctx, sub.ID)
	log := s.logger.With(zap.String("submission_id", sub.ID))

	reportText, err := s.process(ctx, sub, required, uploads)
	if err == nil {
		err = s.store.Complete(ctx, sub.ID, reportText)
	}
	if err != nil {
		log.Error("submission failed", zap.Error(err))
		s.fail(ctx, sub.ID, err)
		metrics.SubmissionsTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		return sub.ID, fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}
	s.publish(ctx, sub.ID)
	metrics.SubmissionsTotal.WithLabelValues(metrics.OutcomeCompleted).Inc()
	log.Info("submission completed", zap.Int("documents", len(sub.Documents)))

	if s.mailer != nil {
		sub.Report = reportText
		sub.Status = models.StatusCompleted
		if err := s.mailer.ReportReady(ctx, sub); err != nil {
			log.Warn("report ready mail", zap.Error(err))
		}
	}
	return sub.ID, nil
}

func (s *Service) process(ctx context.Context, sub *models.Submission, required []catalog.DocumentType, uploads map[catalog.DocumentType]Upload) (string, error) {
	docs := models.Documents{}
	inputs := make([]report.Document, 0, len(required))
	for _, docType := range required {
		up, ok := uploads[docType]
		if !ok {
			continue
		}
		contentType := mediaType(up)
		key := blob.SubmissionKey(sub.ID, string(docType), up.Filename)
		url, err := s.blobs.Put(ctx, key, contentType, up.Data)
		if err != nil {
			return "", fmt.Errorf("upload %s: %w", docType, err)
		}
		metrics.UploadedBytes.Add(float64(len(up.Data)))
		docs[docType] = url
		inputs = append(inputs, report.Document{Type: docType, DataURI: report.DataURI(contentType, up.Data)})
	}
	if err := s.store.AttachDocuments(ctx, sub.ID, docs); err != nil {
		return "", err
	}
	sub.Documents = docs
	s.publish(ctx, sub.ID)

	in := report.Input{Details: sub.BasicDetails, Documents: inputs}
	var text string
	generate := func(ctx context.Context) error {
		var err error
		text, err = s.reporter.Generate(ctx, in)
		return err
	}
	var err error
	if s.queue != nil {
		err = s.queue.Do(ctx, sub.UserID, generate)
	} else {
		err = generate(ctx)
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

// mediaType drops parameters such as charset, which data URIs cannot carry
// ahead of ";base64".
func mediaType(up Upload) string {
	ct := up.ContentType
	if ct == "" {
		ct = http.DetectContentType(up.Data)
	}
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		return mt
	}
	return "application/octet-stream"
}

func (s *Service) fail(ctx context.Context, id string, cause error) {
	// The request may already be gone; the record still has to leave processing.
	ctx = context.WithoutCancel(ctx)
	if err := s.store.Fail(ctx, id, cause.Error()); err != nil {
		s.logger.Error("mark submission failed", zap.String("submission_id", id), zap.Error(err))
		return
	}
	s.publish(ctx, id)
}

func (s *Service) publish(ctx context.Context, id string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, id); err != nil {
		s.logger.Warn("publish submission change", zap.String("submission_id", id), zap.Error(err))
	}
}

// Get returns the owner's submission.
func (s *Service) Get(ctx context.Context, owner, id string) (*models.Submission, error) {
	return s.store.GetForOwner(ctx, owner, id)
}

// List returns the owner's submissions, newest first.
func (s *Service) List(ctx context.Context, owner string) ([]*models.Submission, error) {
	return s.store.ListByOwner(ctx, owner)
}

// Summarize produces a short summary of the documents of a submission.
func (s *Service) Summarize(ctx context.Context, owner, id string) (*report.Summary, error) {
	sub, err := s.store.GetForOwner(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	urls := make([]string, 0, len(sub.Documents))
	for _, d := range sub.DocumentTypes() {
		urls = append(urls, sub.Documents[d])
	}
	return s.reporter.Summarize(ctx, urls)
}

// Result is the outward shape of a submission attempt.
type Result struct {
	Success      bool   `json:"success"`
	SubmissionID string `json:"submissionId,omitempty"`
	Error        string `json:"error,omitempty"`
}

// NewResult maps the outcome of Submit to what callers are shown.
// Validation messages pass through; anything else is generic.
func NewResult(id string, err error) Result {
	if err == nil {
		return Result{Success: true, SubmissionID: id}
	}
	var verr *models.ValidationError
	var merr *MissingDocumentsError
	switch {
	case errors.As(err, &verr):
		return Result{Error: verr.Error()}
	case errors.As(err, &merr):
		return Result{Error: merr.Error()}
	default:
		return Result{Error: FailureMessage}
	}
}
