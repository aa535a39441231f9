// Package viewer streams a submission record to its owner as it moves from
// processing to a terminal status.
package viewer

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"diligencego/internal/logger"
	"diligencego/internal/metrics"
	"diligencego/internal/models"
	"diligencego/internal/storage"
)

const defaultPollInterval = 5 * time.Second

// Loader reads a submission on behalf of its owner.
type Loader interface {
	GetForOwner(ctx context.Context, userID, id string) (*models.Submission, error)
}

// Viewer turns change notifications into record snapshots.
type Viewer struct {
	loader   Loader
	notifier Notifier
	poll     time.Duration
	logger   *zap.Logger
}

// Option configures a Viewer.
type Option func(*Viewer)

func WithLogger(l *zap.Logger) Option {
	return func(v *Viewer) { v.logger = logger.OrNop(l) }
}

// WithPollInterval sets the fallback re-read interval used when a
// notification is lost.
func WithPollInterval(d time.Duration) Option {
	return func(v *Viewer) {
		if d > 0 {
			v.poll = d
		}
	}
}

func New(loader Loader, notifier Notifier, opts ...Option) *Viewer {
	v := &Viewer{
		loader:   loader,
		notifier: notifier,
		poll:     defaultPollInterval,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Watch returns the current record followed by one snapshot per change.
// The channel closes after a terminal snapshot or when ctx ends. Records
// owned by someone else yield storage.ErrNotFound.
func (v *Viewer) Watch(ctx context.Context, owner, id string) (<-chan *models.Submission, error) {
	// Subscribe before the first read so that no change falls in between.
	sub, err := v.notifier.Subscribe(ctx, id)
	if err != nil {
		return nil, err
	}
	current, err := v.loader.GetForOwner(ctx, owner, id)
	if err != nil {
		sub.Close()
		return nil, err
	}

	out := make(chan *models.Submission, 1)
	go func() {
		metrics.ViewerStreamsActive.Inc()
		defer metrics.ViewerStreamsActive.Dec()
		defer close(out)
		defer sub.Close()

		if !send(ctx, out, current) || current.Status.Terminal() {
			return
		}
		ticker := time.NewTicker(v.poll)
		defer ticker.Stop()
		log := v.logger.With(zap.String("submission_id", id))
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.C():
			case <-ticker.C:
			}
			next, err := v.loader.GetForOwner(ctx, owner, id)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) || ctx.Err() != nil {
					return
				}
				log.Warn("reload submission", zap.Error(err))
				continue
			}
			if !changed(current, next) {
				continue
			}
			current = next
			if !send(ctx, out, current) || current.Status.Terminal() {
				return
			}
		}
	}()
	return out, nil
}

func send(ctx context.Context, out chan<- *models.Submission, sub *models.Submission) bool {
	select {
	case out <- sub:
		return true
	case <-ctx.Done():
		return false
	}
}

func changed(prev, next *models.Submission) bool {
	return prev.Status != next.Status ||
		!prev.UpdatedAt.Equal(next.UpdatedAt) ||
		len(prev.Documents) != len(next.Documents) ||
		prev.Report != next.Report
}
