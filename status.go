package spoolgo

import (
	"fmt"
	"time"
)

// currentStatus monitors the current progress of a spooling batch.
type currentStatus struct {
	submitted     uint
	completed     uint
	failed        uint
	batchStarted  time.Time
	batchDuration time.Duration
}

// terminal returns how many jobs have reached a terminal state.
func (s *currentStatus) terminal() uint {
	return s.completed + s.failed
}

// percentComplete computes the percentage of submitted jobs that have
// reached a terminal state.
func (s *currentStatus) percentComplete() float64 {
	if s.submitted <= 0 {
		return 0.0
	}
	return float64(s.terminal()) / float64(s.submitted) * 100
}

// rate computes the observed throughput of the batch in jobs per second.
func (s *currentStatus) rate() float64 {
	if s.batchStarted == (time.Time{}) {
		return 0.0
	} else if s.batchDuration != (time.Duration(0)) {
		return float64(s.terminal()) / s.batchDuration.Seconds()
	}
	elapsed := time.Since(s.batchStarted)
	return float64(s.terminal()) / elapsed.Seconds()
}

// String generates a status message out of the currentStatus struct
func (s *currentStatus) String() string {
	if s.batchStarted == (time.Time{}) {
		return "Batch not started yet"
	} else if s.batchDuration != time.Duration(0) {
		return fmt.Sprintf(
			"Batch finished in %s at approximately %2.2f jobs/sec with %d failures",
			s.batchDuration,
			s.rate(),
			s.failed)
	}
	return fmt.Sprintf(
		"[%s] %3.2f%% Done\t%d of %d jobs terminal (%d failed)\t%03.2f jobs/sec",
		time.Now(),
		s.percentComplete(),
		s.terminal(),
		s.submitted,
		s.failed,
		s.rate())
}

// Status tracks the progress of the jobs flowing through a Spooler.
// All accessors are safe for concurrent use.
type Status struct {
	current       currentStatus
	jobSubmitted  chan struct{}
	jobTerminal   chan bool
	requestStatus chan chan *currentStatus
	signalStart   chan struct{}
	signalStop    chan struct{}
}

// newStatus creates a Status whose counters are driven by the
// Spooler's submission path and result listeners.
func newStatus() *Status {
	stat := &Status{
		jobSubmitted:  make(chan struct{}),
		jobTerminal:   make(chan bool),
		requestStatus: make(chan chan *currentStatus),
		signalStart:   make(chan struct{}),
		signalStop:    make(chan struct{}),
	}
	go func(s *Status) {
		for {
			select {
			case <-s.signalStart:
				s.current.batchStarted = time.Now()
				s.signalStart = nil
			case <-s.signalStop:
				s.current.batchDuration = time.Since(s.current.batchStarted)
				s.signalStop = nil
			case <-s.jobSubmitted:
				s.current.submitted++
			case ok := <-s.jobTerminal:
				if ok {
					s.current.completed++
				} else {
					s.current.failed++
				}
			case sendBack := <-s.requestStatus:
				sendBack <- &currentStatus{
					submitted:     s.current.submitted,
					completed:     s.current.completed,
					failed:        s.current.failed,
					batchStarted:  s.current.batchStarted,
					batchDuration: s.current.batchDuration,
				}
			}
		}
	}(stat)
	return stat
}

// start begins timing the batch
func (s *Status) start() {
	s.signalStart <- struct{}{}
}

// stop finalizes the duration of the batch
func (s *Status) stop() {
	s.signalStop <- struct{}{}
}

// submitted marks that one job has entered the pipeline.
func (s *Status) submitted() {
	s.jobSubmitted <- struct{}{}
}

// completed marks that one job has reached a successful terminal state.
func (s *Status) completed() {
	s.jobTerminal <- true
}

// failed marks that one job has reached a failed terminal state.
func (s *Status) failed() {
	s.jobTerminal <- false
}

// getCurrent retrieves a pointer to a copy of the current batch status.
func (s *Status) getCurrent() *currentStatus {
	stat := make(chan *currentStatus)
	defer close(stat)
	s.requestStatus <- stat
	return <-stat
}

// Submitted returns how many jobs have entered the pipeline.
func (s *Status) Submitted() uint {
	return s.getCurrent().submitted
}

// Completed returns how many jobs have finished successfully.
func (s *Status) Completed() uint {
	return s.getCurrent().completed
}

// Failed returns how many jobs have reached a failed terminal state.
func (s *Status) Failed() uint {
	return s.getCurrent().failed
}

// Rate computes the observed throughput of the batch in jobs per second.
func (s *Status) Rate() float64 {
	return s.getCurrent().rate()
}

// PercentComplete returns how much of the batch is complete.
func (s *Status) PercentComplete() float64 {
	return s.getCurrent().percentComplete()
}

// String creates a status message from the current state of the status.
func (s *Status) String() string {
	return s.getCurrent().String()
}
