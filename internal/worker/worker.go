// Package worker runs report generation jobs on an elastic pool of
// goroutines. Jobs are queued per owner and owners take turns, so one
// account uploading many submissions cannot starve the others.
package worker

import (
	"context"
	"fmt"
)

// Job is a unit of work queued by Dispatcher.Do.
type Job struct {
	Owner string

	ctx  context.Context
	run  func(context.Context) error
	done chan error
	stop bool
}

func (j Job) execute() {
	defer func() {
		if r := recover(); r != nil {
			j.done <- fmt.Errorf("job for %s panicked: %v", j.Owner, r)
		}
	}()
	if err := j.ctx.Err(); err != nil {
		j.done <- err
		return
	}
	j.done <- j.run(j.ctx)
}

type Worker struct {
	pool       *jobChannelPool
	jobChannel chan Job
}

func newWorker(pool *jobChannelPool) *Worker {
	return &Worker{
		pool:       pool,
		jobChannel: make(chan Job, 1),
	}
}

func (w *Worker) Start() {
	go func() {
		for job := range w.jobChannel {
			if job.stop {
				w.pool.retire(w.jobChannel)
				return
			}
			job.execute()
			if !w.pool.release(w.jobChannel) {
				return
			}
		}
	}()
}
