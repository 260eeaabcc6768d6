// Package queue serializes writes to a single resource.
package queue

import (
	"context"
	"sync"
	"time"
)

// Job is a unit of work run by a Queue.
type Job func()

// Queue runs jobs one at a time, in submission order, with at most one job
// waiting. Submitting while a job is waiting replaces it: the newest job
// always runs and superseded ones never do. With a delay, a waiting job is
// held back for that long before it runs, so bursts collapse into one run.
type Queue struct {
	delay time.Duration
	kick  chan struct{}

	mu         sync.Mutex
	pending    Job
	running    bool
	// debouncing is set while drain waits out the delay; Flush only kicks
	// then, so no kick outlives the wait it was meant for.
	debouncing bool
	waiters    []chan struct{}
	superseded int
}

// New returns a queue that debounces waiting jobs by delay (0 runs them as
// soon as the previous job finishes).
func New(delay time.Duration) *Queue {
	return &Queue{delay: delay, kick: make(chan struct{}, 1)}
}

// Submit schedules job. It never blocks.
func (q *Queue) Submit(job Job) {
	if job == nil {
		return
	}
	q.mu.Lock()
	if q.pending != nil {
		q.superseded++
	}
	q.pending = job
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.mu.Unlock()

	go q.drain()
}

func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if q.pending == nil {
			q.running = false
			waiters := q.waiters
			q.waiters = nil
			q.mu.Unlock()
			for _, w := range waiters {
				close(w)
			}
			return
		}
		// A waiting Flush skips the delay.
		wait := q.delay > 0 && len(q.waiters) == 0
		q.debouncing = wait
		q.mu.Unlock()

		if wait {
			timer := time.NewTimer(q.delay)
			select {
			case <-timer.C:
			case <-q.kick:
				timer.Stop()
			}
			q.mu.Lock()
			q.debouncing = false
			select {
			case <-q.kick:
			default:
			}
			q.mu.Unlock()
		}

		q.mu.Lock()
		job := q.pending
		q.pending = nil
		q.mu.Unlock()

		job()
	}
}

// Flush waits until every submitted job has run or been superseded. A
// waiting job skips the rest of its debounce delay.
func (q *Queue) Flush(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	done := make(chan struct{})
	q.waiters = append(q.waiters, done)
	if q.debouncing {
		select {
		case q.kick <- struct{}{}:
		default:
		}
	}
	q.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Idle reports whether no job is running or waiting.
func (q *Queue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.running
}

// Superseded returns how many waiting jobs were replaced before running.
func (q *Queue) Superseded() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.superseded
}
