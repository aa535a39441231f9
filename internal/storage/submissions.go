package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"diligencego/internal/catalog"
	"diligencego/internal/models"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrInvalidTransition = errors.New("submission is no longer processing")
)

// SubmissionStore persists diligence records. Every mutation after Create
// is conditional on status = 'processing', so a record reaches at most one
// terminal status.
type SubmissionStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSubmissionStore(db *sql.DB) *SubmissionStore {
	return &SubmissionStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const submissionColumns = `id, user_id, startup_name, email, year_of_registration, number_of_employees,
	field, documents, report, status, error, created_at, updated_at`

// Create inserts s as a new processing record, filling ID, timestamps,
// report placeholder and an empty document map.
func (s *SubmissionStore) Create(ctx context.Context, sub *models.Submission) error {
	if sub == nil {
		return errors.New("submission required")
	}
	if sub.UserID == "" {
		return errors.New("user_id is required")
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	now := s.now()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	sub.Status = models.StatusProcessing
	sub.Report = models.ReportPending
	sub.Error = ""
	if sub.Documents == nil {
		sub.Documents = models.Documents{}
	}
	docs, err := json.Marshal(sub.Documents)
	if err != nil {
		return fmt.Errorf("encode documents: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO submissions (`+submissionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.UserID, sub.StartupName, sub.Email, sub.YearOfRegistration, sub.NumberOfEmployees,
		string(sub.Field), string(docs), sub.Report, string(sub.Status), sub.Error, now, now,
	)
	if err != nil {
		return fmt.Errorf("create submission: %w", err)
	}
	return nil
}

// AttachDocuments replaces the document map of a processing submission.
func (s *SubmissionStore) AttachDocuments(ctx context.Context, id string, docs models.Documents) error {
	if docs == nil {
		docs = models.Documents{}
	}
	raw, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("encode documents: %w", err)
	}
	return s.guardedUpdate(ctx, id, models.StatusProcessing,
		`UPDATE submissions SET documents = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(raw), s.now(), id, string(models.StatusProcessing),
	)
}

// Complete stores the report and marks the submission completed.
func (s *SubmissionStore) Complete(ctx context.Context, id, report string) error {
	return s.guardedUpdate(ctx, id, models.StatusCompleted,
		`UPDATE submissions SET report = ?, status = ?, error = '', updated_at = ? WHERE id = ? AND status = ?`,
		report, string(models.StatusCompleted), s.now(), id, string(models.StatusProcessing),
	)
}

// Fail marks the submission as errored with the given message.
func (s *SubmissionStore) Fail(ctx context.Context, id, message string) error {
	return s.guardedUpdate(ctx, id, models.StatusError,
		`UPDATE submissions SET status = ?, error = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(models.StatusError), message, s.now(), id, string(models.StatusProcessing),
	)
}

// guardedUpdate runs query and, when it matched nothing, tells a missing
// record apart from one that cannot move to next.
func (s *SubmissionStore) guardedUpdate(ctx context.Context, id string, next models.Status, query string, args ...any) error {
	if id == "" {
		return ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update submission: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}
	var current string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM submissions WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("verify submission: %w", err)
	}
	if status := models.Status(current); next != models.StatusProcessing && !status.CanTransition(next) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, status, next)
	}
	return ErrInvalidTransition
}

// Get loads a submission by id.
func (s *SubmissionStore) Get(ctx context.Context, id string) (*models.Submission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id,
	)
	sub, err := scanSubmission(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query submission: %w", err)
	}
	return sub, nil
}

// GetForOwner loads a submission only when it belongs to userID; other
// users' records are reported as ErrNotFound.
func (s *SubmissionStore) GetForOwner(ctx context.Context, userID, id string) (*models.Submission, error) {
	sub, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.UserID != userID {
		return nil, ErrNotFound
	}
	return sub, nil
}

// ListByOwner returns the user's submissions, newest first.
func (s *SubmissionStore) ListByOwner(ctx context.Context, userID string) ([]*models.Submission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE user_id = ? ORDER BY created_at DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()
	var out []*models.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (*models.Submission, error) {
	var (
		sub    models.Submission
		field  string
		docs   string
		status string
	)
	if err := row.Scan(
		&sub.ID, &sub.UserID, &sub.StartupName, &sub.Email, &sub.YearOfRegistration, &sub.NumberOfEmployees,
		&field, &docs, &sub.Report, &status, &sub.Error, &sub.CreatedAt, &sub.UpdatedAt,
	); err != nil {
		return nil, err
	}
	sub.Field = catalog.Industry(field)
	sub.Status = models.Status(status)
	sub.Documents = models.Documents{}
	if docs != "" {
		if err := json.Unmarshal([]byte(docs), &sub.Documents); err != nil {
			return nil, fmt.Errorf("decode documents: %w", err)
		}
	}
	return &sub, nil
}
