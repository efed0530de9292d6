package upload

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ibmjstart/spoolgo/backend"
	"github.com/ibmjstart/spoolgo/pipeline"
)

// UploadStage pushes job payloads into a set of backend stores. Each
// job is assigned one store in round robin order; the cursor is the
// only mutable state shared between upload workers.
type UploadStage struct {
	pool   *pipeline.Pool[Job, Result]
	stores []backend.Store
	log    logrus.FieldLogger

	cursorMu sync.Mutex
	cursor   uint64

	uploadTime int64 // atomic, nanoseconds
	vclockTime int64 // atomic, nanoseconds
}

// NewUploadStage creates a running upload stage distributing work
// across the given stores in round robin order.
func NewUploadStage(stores []backend.Store, workers, queueSize int, log logrus.FieldLogger) (*UploadStage, error) {
	if len(stores) == 0 {
		return nil, fmt.Errorf("upload: at least one store is required")
	}
	stage := &UploadStage{stores: stores, log: log}
	pool, err := pipeline.NewPool(workers, queueSize, stage.push, log)
	if err != nil {
		return nil, err
	}
	stage.pool = pool
	return stage, nil
}

// Schedule enqueues an upload job, blocking while the stage's queue
// is full.
func (s *UploadStage) Schedule(job Job) error {
	return s.pool.Schedule(job)
}

// RegisterListener adds a callback invoked once per finished upload.
// Register listeners before scheduling.
func (s *UploadStage) RegisterListener(listener func(Result)) {
	s.pool.RegisterListener(listener)
}

// Drain blocks until all previously scheduled uploads have finished.
func (s *UploadStage) Drain() {
	s.pool.Drain()
}

// Terminate stops the stage after finishing scheduled work. It is
// idempotent.
func (s *UploadStage) Terminate() {
	s.pool.Terminate()
}

// UploadTime returns the cumulative wall time spent pushing bytes
// across all workers.
func (s *UploadStage) UploadTime() time.Duration {
	return time.Duration(atomic.LoadInt64(&s.uploadTime))
}

// VectorClockTime returns the cumulative wall time spent on
// read-before-write token fetches across all workers.
func (s *UploadStage) VectorClockTime() time.Duration {
	return time.Duration(atomic.LoadInt64(&s.vclockTime))
}

// nextStore selects the store for the next upload. Selection is
// cyclic with no fairness guarantee beyond simple round robin.
func (s *UploadStage) nextStore() backend.Store {
	s.cursorMu.Lock()
	defer s.cursorMu.Unlock()
	store := s.stores[s.cursor%uint64(len(s.stores))]
	s.cursor++
	return store
}

func (s *UploadStage) push(job Job) Result {
	if job.Type == EmptyJob {
		panic(fmt.Sprintf("upload: empty job for %q scheduled on the upload stage", job.LocalPath))
	}

	key := job.Key()
	store := s.nextStore()

	opts := backend.WriteOptions{Critical: job.Critical}
	if job.Critical {
		began := time.Now()
		token, found, err := store.VectorClock(key)
		atomic.AddInt64(&s.vclockTime, int64(time.Since(began)))
		if err != nil {
			code := CodeTransportFailed
			if errors.Is(err, backend.ErrVectorClock) {
				code = CodeVectorClock
			}
			return s.failed(job, key, store, code, err)
		}
		if found {
			opts.VectorClock = token
		}
	}

	source, err := os.Open(job.SourcePath)
	if err != nil {
		return s.failed(job, key, store, CodeSourceUnreadable, err)
	}
	defer source.Close()
	info, err := source.Stat()
	if err != nil {
		return s.failed(job, key, store, CodeSourceUnreadable, err)
	}

	began := time.Now()
	err = store.Put(key, source, info.Size(), opts)
	atomic.AddInt64(&s.uploadTime, int64(time.Since(began)))
	if err != nil {
		code := CodeTransportFailed
		if errors.Is(err, backend.ErrWriteRejected) {
			code = CodeWriteRejected
		}
		return s.failed(job, key, store, code, err)
	}

	s.removeTemp(job)
	return Result{LocalPath: job.LocalPath, ContentHash: job.ContentHash}
}

// removeTemp deletes the compressed temporary file of a job that has
// reached a terminal state. The stage owns the file and no retry will
// reuse it; plain uploads carry the caller's file and are left alone.
func (s *UploadStage) removeTemp(job Job) {
	if job.Type != CompressedUpload {
		return
	}
	if err := os.Remove(job.SourcePath); err != nil && s.log != nil {
		s.log.WithFields(logrus.Fields{"path": job.SourcePath}).
			Debugf("could not remove compressed temp file: %s", err)
	}
}

func (s *UploadStage) failed(job Job, key string, store backend.Store, code int, err error) Result {
	s.removeTemp(job)
	if s.log != nil {
		s.log.WithFields(logrus.Fields{
			"local":    job.LocalPath,
			"key":      key,
			"endpoint": store.Endpoint(),
			"code":     code,
		}).Warnf("upload failed: %s", err)
	}
	return Result{ReturnCode: code, LocalPath: job.LocalPath, ContentHash: job.ContentHash}
}
