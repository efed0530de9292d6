package pipeline

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// ErrPoolClosed is returned by Schedule once Terminate has begun.
var ErrPoolClosed = errors.New("pipeline: pool closed")

// Pool is a bounded-concurrency executor. It runs a fixed number of
// worker goroutines that consume jobs of type J from a bounded FIFO
// queue, transform each into exactly one result of type R and deliver
// that result to every registered listener.
type Pool[J, R any] struct {
	handler func(J) R
	jobs    chan J
	quit    chan struct{}

	listenerMu sync.RWMutex
	listeners  []func(R)

	stateMu sync.RWMutex
	closed  bool

	pending     sync.WaitGroup
	workers     sync.WaitGroup
	terminate   sync.Once
	outstanding int64

	log logrus.FieldLogger
}

// NewPool creates a pool and starts its workers immediately. The
// handler is invoked once per scheduled job from one of the worker
// goroutines and must capture job-level failures inside the result it
// returns rather than panicking.
func NewPool[J, R any](workers, queueSize int, handler func(J) R, log logrus.FieldLogger) (*Pool[J, R], error) {
	if workers < 1 {
		return nil, fmt.Errorf("pipeline: pool needs at least 1 worker, got %d", workers)
	}
	if queueSize < 1 {
		return nil, fmt.Errorf("pipeline: pool needs a queue size of at least 1, got %d", queueSize)
	}
	if handler == nil {
		return nil, errors.New("pipeline: pool needs a non-nil handler")
	}
	if log == nil {
		log = discardLogger()
	}
	p := &Pool[J, R]{
		handler: handler,
		jobs:    make(chan J, queueSize),
		quit:    make(chan struct{}),
		log:     log,
	}
	for i := 0; i < workers; i++ {
		p.workers.Add(1)
		go p.worker()
	}
	p.log.WithFields(logrus.Fields{"workers": workers, "queue": queueSize}).
		Debug("worker pool started")
	return p, nil
}

// RegisterListener adds a callback that will be invoked once per
// completed result. Listeners registered after jobs have been
// scheduled may miss results that completed before registration, so
// register all listeners before the first call to Schedule. Callbacks
// run on worker goroutines and must be safe for concurrent use.
func (p *Pool[J, R]) RegisterListener(listener func(R)) {
	p.listenerMu.Lock()
	defer p.listenerMu.Unlock()
	p.listeners = append(p.listeners, listener)
}

// Schedule enqueues a job. It returns immediately while the queue has
// capacity and blocks the caller otherwise, until space frees up or
// the pool begins terminating, in which case it fails with
// ErrPoolClosed.
func (p *Pool[J, R]) Schedule(job J) error {
	p.stateMu.RLock()
	if p.closed {
		p.stateMu.RUnlock()
		return ErrPoolClosed
	}
	p.pending.Add(1)
	atomic.AddInt64(&p.outstanding, 1)
	p.stateMu.RUnlock()

	select {
	case p.jobs <- job:
		return nil
	case <-p.quit:
		p.pending.Done()
		atomic.AddInt64(&p.outstanding, -1)
		return ErrPoolClosed
	}
}

// Drain blocks until every job scheduled before the call has produced
// a result. Stop scheduling before draining; jobs scheduled
// concurrently with Drain may or may not be awaited.
func (p *Pool[J, R]) Drain() {
	p.pending.Wait()
}

// Terminate stops accepting new jobs, waits for already scheduled
// jobs to finish and joins all worker goroutines. It is idempotent.
func (p *Pool[J, R]) Terminate() {
	p.terminate.Do(func() {
		p.stateMu.Lock()
		p.closed = true
		close(p.quit)
		p.stateMu.Unlock()

		p.pending.Wait()
		close(p.jobs)
		p.workers.Wait()
		p.log.Debug("worker pool terminated")
	})
}

// Outstanding reports how many scheduled jobs have not yet delivered
// their result.
func (p *Pool[J, R]) Outstanding() int {
	return int(atomic.LoadInt64(&p.outstanding))
}

func (p *Pool[J, R]) worker() {
	defer p.workers.Done()
	for job := range p.jobs {
		result := p.handler(job)
		p.notify(result)
		atomic.AddInt64(&p.outstanding, -1)
		p.pending.Done()
	}
}

func (p *Pool[J, R]) notify(result R) {
	p.listenerMu.RLock()
	listeners := p.listeners
	p.listenerMu.RUnlock()
	for _, listener := range listeners {
		listener(result)
	}
}

func discardLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
