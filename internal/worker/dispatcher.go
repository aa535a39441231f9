package worker

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"diligencego/internal/metrics"
)

var (
	ErrStopped   = errors.New("worker: dispatcher stopped")
	ErrQueueFull = errors.New("worker: job queue is full")
)

// Config sizes the pool. QueueSize bounds jobs waiting for a worker; zero
// means unbounded.
type Config struct {
	MinWorkers  int
	MaxWorkers  int
	QueueSize   int
	IdleTimeout time.Duration
}

type ownerQueue struct {
	jobs     []Job
	enqueued bool
}

type Dispatcher struct {
	pool      *jobChannelPool
	queueSize int
	logger    *zap.Logger
	wake      chan struct{}
	quit      chan struct{}
	stopOnce  sync.Once

	mu         sync.Mutex
	stopped    bool
	pending    int
	dispatched uint64
	queues     map[string]*ownerQueue // job queue for each owner
	ready      *list.List             // owners waiting for a turn
	positions  map[string]*list.Element
}

func NewDispatcher(cfg Config, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		pool:      newJobChannelPool(cfg.MinWorkers, cfg.MaxWorkers, cfg.IdleTimeout),
		queueSize: cfg.QueueSize,
		logger:    logger,
		wake:      make(chan struct{}, 1),
		quit:      make(chan struct{}),
		queues:    make(map[string]*ownerQueue),
		ready:     list.New(),
		positions: make(map[string]*list.Element),
	}
	for i := 0; i < cfg.MinWorkers; i++ {
		d.pool.spawnWorker()
	}
	go d.run()
	return d
}

// Do queues fn behind the owner's earlier jobs and waits for its result.
// A job whose context ends while it is still queued never runs.
func (d *Dispatcher) Do(ctx context.Context, owner string, fn func(context.Context) error) error {
	job := Job{Owner: owner, ctx: ctx, run: fn, done: make(chan error, 1)}
	if err := d.enqueueJob(job); err != nil {
		return err
	}
	select {
	case err := <-job.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending is the number of jobs waiting for a worker.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Stop fails queued jobs with ErrStopped. Running jobs finish normally.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.stopped = true
		var dropped []Job
		for owner, q := range d.queues {
			dropped = append(dropped, q.jobs...)
			delete(d.queues, owner)
		}
		d.ready.Init()
		d.positions = make(map[string]*list.Element)
		metrics.GenerationQueueDepth.Sub(float64(d.pending))
		d.pending = 0
		d.mu.Unlock()

		close(d.quit)
		for _, job := range dropped {
			job.done <- ErrStopped
		}
		d.pool.close()
		d.logger.Info("dispatcher stopped", zap.Int("dropped", len(dropped)))
	})
}

func (d *Dispatcher) run() {
	for {
		if d.dispatchOne() {
			continue
		}
		select {
		case <-d.wake:
		case <-d.quit:
			return
		}
	}
}

func (d *Dispatcher) enqueueJob(job Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return ErrStopped
	}
	if d.queueSize > 0 && d.pending >= d.queueSize {
		return ErrQueueFull
	}
	q := d.queues[job.Owner]
	if q == nil {
		q = &ownerQueue{}
		d.queues[job.Owner] = q
	}
	q.jobs = append(q.jobs, job)
	d.pending++
	metrics.GenerationQueueDepth.Inc()
	if !q.enqueued {
		q.enqueued = true
		d.positions[job.Owner] = d.ready.PushBack(job.Owner)
	}
	select {
	case d.wake <- struct{}{}:
	default:
	}
	return nil
}

// dispatchOne hands the next job of the owner at the front to a worker
// and moves that owner to the back.
func (d *Dispatcher) dispatchOne() bool {
	d.mu.Lock()
	elem := d.ready.Front()
	if elem == nil {
		d.mu.Unlock()
		return false
	}
	owner := elem.Value.(string)
	q := d.queues[owner]
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	if len(q.jobs) == 0 {
		q.enqueued = false
		d.ready.Remove(elem)
		delete(d.positions, owner)
		delete(d.queues, owner)
	} else {
		d.ready.MoveToBack(elem)
	}
	d.pending--
	d.dispatched++
	metrics.GenerationQueueDepth.Dec()
	d.mu.Unlock()

	if err := job.ctx.Err(); err != nil {
		job.done <- err
		return true
	}
	workerChan := d.pool.acquire()
	if workerChan == nil {
		job.done <- ErrStopped
		return true
	}
	d.logger.Debug("dispatch job", zap.String("owner", owner))
	workerChan <- job
	return true
}
