package viewer

import (
	"context"
	"sync"

	redisclient "diligencego/internal/redis"
)

// Subscription delivers a signal each time the watched record changes.
// Signals coalesce: several changes between reads arrive as one.
type Subscription interface {
	C() <-chan struct{}
	Close() error
}

// Notifier fans submission change events out to watchers.
type Notifier interface {
	Publish(ctx context.Context, submissionID string) error
	Subscribe(ctx context.Context, submissionID string) (Subscription, error)
}

// Channel is the pub/sub channel of one submission.
func Channel(submissionID string) string {
	return "submission:" + submissionID
}

// MemoryNotifier works inside a single process.
type MemoryNotifier struct {
	mu   sync.Mutex
	subs map[string]map[*memorySub]struct{}
}

func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{subs: make(map[string]map[*memorySub]struct{})}
}

func (n *MemoryNotifier) Publish(ctx context.Context, submissionID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for sub := range n.subs[submissionID] {
		sub.signal()
	}
	return nil
}

func (n *MemoryNotifier) Subscribe(ctx context.Context, submissionID string) (Subscription, error) {
	sub := &memorySub{ch: make(chan struct{}, 1)}
	sub.close = func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs[submissionID], sub)
		if len(n.subs[submissionID]) == 0 {
			delete(n.subs, submissionID)
		}
	}
	n.mu.Lock()
	if n.subs[submissionID] == nil {
		n.subs[submissionID] = make(map[*memorySub]struct{})
	}
	n.subs[submissionID][sub] = struct{}{}
	n.mu.Unlock()
	return sub, nil
}

type memorySub struct {
	ch    chan struct{}
	once  sync.Once
	close func()
}

func (s *memorySub) signal() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

func (s *memorySub) C() <-chan struct{} { return s.ch }

func (s *memorySub) Close() error {
	s.once.Do(s.close)
	return nil
}

// RedisNotifier publishes on the submission channel so that viewers on
// any instance see changes.
type RedisNotifier struct {
	client *redisclient.Client
}

func NewRedisNotifier(client *redisclient.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

func (n *RedisNotifier) Publish(ctx context.Context, submissionID string) error {
	return n.client.Publish(ctx, Channel(submissionID), submissionID)
}

func (n *RedisNotifier) Subscribe(ctx context.Context, submissionID string) (Subscription, error) {
	ps, err := n.client.Subscribe(ctx, Channel(submissionID))
	if err != nil {
		return nil, err
	}
	sub := &redisSub{ch: make(chan struct{}, 1), done: make(chan struct{})}
	sub.close = ps.Close
	msgs := ps.Channel()
	go func() {
		for {
			select {
			case <-sub.done:
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case sub.ch <- struct{}{}:
				default:
				}
			}
		}
	}()
	return sub, nil
}

type redisSub struct {
	ch    chan struct{}
	done  chan struct{}
	once  sync.Once
	close func() error
	err   error
}

func (s *redisSub) C() <-chan struct{} { return s.ch }

func (s *redisSub) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.err = s.close()
	})
	return s.err
}
