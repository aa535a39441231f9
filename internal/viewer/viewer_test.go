package viewer

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diligencego/internal/catalog"
	"diligencego/internal/config"
	"diligencego/internal/models"
	redisclient "diligencego/internal/redis"
	"diligencego/internal/storage"
)

type fixture struct {
	store *storage.SubmissionStore
	owner string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{"sqlite3": {DSN: ":memory:"}}}
	db, err := storage.Open("sqlite3", cfg)
	require.NoError(t, err)
	require.NoError(t, storage.Migrate(db, "sqlite3"))
	t.Cleanup(func() { db.Close() })
	user, err := storage.NewUserStore(db).Create(context.Background(), "viewer@example.com", "hash")
	require.NoError(t, err)
	return &fixture{store: storage.NewSubmissionStore(db), owner: user.ID}
}

func (f *fixture) create(t *testing.T) *models.Submission {
	t.Helper()
	sub := &models.Submission{
		UserID: f.owner,
		BasicDetails: models.BasicDetails{
			StartupName:        "Streamline",
			Email:              "ops@streamline.dev",
			YearOfRegistration: 2022,
			NumberOfEmployees:  3,
			Field:              catalog.EdTech,
		},
	}
	require.NoError(t, f.store.Create(context.Background(), sub))
	return sub
}

func next(t *testing.T, ch <-chan *models.Submission) *models.Submission {
	t.Helper()
	select {
	case sub, ok := <-ch:
		require.True(t, ok, "stream closed early")
		return sub
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

func requireClosed(t *testing.T, ch <-chan *models.Submission) {
	t.Helper()
	select {
	case _, ok := <-ch:
		require.False(t, ok, "expected stream to end")
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not close")
	}
}

func TestWatchFollowsUntilTerminal(t *testing.T) {
	f := newFixture(t)
	notifier := NewMemoryNotifier()
	v := New(f.store, notifier, WithPollInterval(time.Hour))
	sub := f.create(t)
	ctx := context.Background()

	ch, err := v.Watch(ctx, f.owner, sub.ID)
	require.NoError(t, err)
	first := next(t, ch)
	assert.Equal(t, models.StatusProcessing, first.Status)
	assert.Equal(t, models.ReportPending, first.Report)

	require.NoError(t, f.store.AttachDocuments(ctx, sub.ID, models.Documents{catalog.BusinessPlan: "file:///plan.pdf"}))
	require.NoError(t, notifier.Publish(ctx, sub.ID))
	withDocs := next(t, ch)
	assert.Len(t, withDocs.Documents, 1)

	require.NoError(t, f.store.Complete(ctx, sub.ID, "final report"))
	require.NoError(t, notifier.Publish(ctx, sub.ID))
	done := next(t, ch)
	assert.Equal(t, models.StatusCompleted, done.Status)
	assert.Equal(t, "final report", done.Report)
	requireClosed(t, ch)
}

func TestWatchTerminalRecordEndsImmediately(t *testing.T) {
	f := newFixture(t)
	sub := f.create(t)
	require.NoError(t, f.store.Fail(context.Background(), sub.ID, "boom"))

	ch, err := New(f.store, NewMemoryNotifier()).Watch(context.Background(), f.owner, sub.ID)
	require.NoError(t, err)
	got := next(t, ch)
	assert.Equal(t, models.StatusError, got.Status)
	assert.Equal(t, "boom", got.Error)
	requireClosed(t, ch)
}

func TestWatchOtherOwnerIsNotFound(t *testing.T) {
	f := newFixture(t)
	sub := f.create(t)
	notifier := NewMemoryNotifier()

	_, err := New(f.store, notifier).Watch(context.Background(), "intruder", sub.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Empty(t, notifier.subs, "subscription must be released")
}

func TestWatchFallsBackToPolling(t *testing.T) {
	f := newFixture(t)
	sub := f.create(t)
	v := New(f.store, NewMemoryNotifier(), WithPollInterval(20*time.Millisecond))

	ch, err := v.Watch(context.Background(), f.owner, sub.ID)
	require.NoError(t, err)
	next(t, ch)

	require.NoError(t, f.store.Complete(context.Background(), sub.ID, "polled"))
	got := next(t, ch)
	assert.Equal(t, "polled", got.Report)
	requireClosed(t, ch)
}

func TestWatchStopsWhenCallerLeaves(t *testing.T) {
	f := newFixture(t)
	sub := f.create(t)
	notifier := NewMemoryNotifier()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := New(f.store, notifier).Watch(ctx, f.owner, sub.ID)
	require.NoError(t, err)
	next(t, ch)
	cancel()
	requireClosed(t, ch)

	assert.Eventually(t, func() bool {
		notifier.mu.Lock()
		defer notifier.mu.Unlock()
		return len(notifier.subs) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestRedisNotifierDeliversAcrossSubscribers(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	client, err := redisclient.NewRedisClient(&config.Config{
		Redis: config.RedisConfig{Host: mr.Host(), Port: port},
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	n := NewRedisNotifier(client)
	ctx := context.Background()
	sub, err := n.Subscribe(ctx, "abc")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, n.Publish(ctx, "abc"))
	select {
	case <-sub.C():
	case <-time.After(2 * time.Second):
		t.Fatal("no notification received")
	}
	assert.Equal(t, "submission:abc", Channel("abc"))
	assert.NoError(t, sub.Close())
}

func TestMemoryNotifierCoalesces(t *testing.T) {
	n := NewMemoryNotifier()
	sub, err := n.Subscribe(context.Background(), "x")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, n.Publish(context.Background(), "x"))
	}
	<-sub.C()
	select {
	case <-sub.C():
		t.Fatal("expected signals to coalesce")
	default:
	}
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	assert.Empty(t, n.subs)
}
