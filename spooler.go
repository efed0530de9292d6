package spoolgo

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/ibmjstart/spoolgo/backend"
	"github.com/ibmjstart/spoolgo/upload"
)

// ErrTransactionEnded is returned by Copy and ProcessChunk after
// EndOfTransaction has been called.
var ErrTransactionEnded = errors.New("spoolgo: transaction ended, no further jobs accepted")

// Default pool sizing used when the corresponding Config fields are
// zero.
const (
	DefaultCompressionWorkers = 4
	DefaultUploadWorkers      = 4
	DefaultQueueSize          = 64
)

// Config describes a Spooler. Endpoints and Bucket configure the
// backend cluster unless pre-built Stores are injected directly.
type Config struct {
	// Endpoints lists the base URLs of the backend cluster nodes.
	// Uploads are distributed across them in round robin order.
	Endpoints []string `validate:"required_without=Stores,omitempty,min=1,dive,url"`
	// Bucket names the backend bucket all keys are stored in.
	Bucket string `validate:"required_without=Stores"`
	// TempDir receives the compressed temporary files, preferably on
	// a RAM disk.
	TempDir string `validate:"required"`

	CompressionWorkers int `validate:"min=1"`
	UploadWorkers      int `validate:"min=1"`
	// QueueSize bounds each stage's job queue. Schedulers block once
	// a queue is full, which propagates backpressure from slow
	// uploads all the way to the submitting caller.
	QueueSize int `validate:"min=1"`

	// FileSuffix is appended to the derived key of every compressed
	// upload, marking special payload classes.
	FileSuffix string
	// CriticalSuffixes lists the suffixes whose compressed uploads
	// require strong consistency: read-before-write with the current
	// causality token and all-replica acknowledgement.
	CriticalSuffixes []string

	// Stores overrides Endpoints/Bucket with pre-built backends.
	Stores []backend.Store `validate:"-"`
	// ProbeBackOff controls retries of the cluster configuration
	// probe during construction. Probing happens exactly once when
	// nil.
	ProbeBackOff backoff.BackOff `validate:"-"`
	// Logger receives structured progress and failure logs. Logging
	// is disabled when nil.
	Logger logrus.FieldLogger `validate:"-"`
}

func (c Config) withDefaults() Config {
	if c.CompressionWorkers == 0 {
		c.CompressionWorkers = DefaultCompressionWorkers
	}
	if c.UploadWorkers == 0 {
		c.UploadWorkers = DefaultUploadWorkers
	}
	if c.QueueSize == 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.Logger == nil {
		logger := logrus.New()
		logger.SetOutput(io.Discard)
		c.Logger = logger
	}
	return c
}

// Spooler is the public entry point of the content spooling pipeline.
// It wires the compression stage into the upload stage, aggregates
// errors and forwards terminal results to external listeners.
type Spooler struct {
	compression *upload.CompressionStage
	uploads     *upload.UploadStage
	status      *Status
	log         logrus.FieldLogger

	fileSuffix       string
	criticalSuffixes map[string]struct{}

	listenerMu sync.RWMutex
	listeners  []func(upload.Result)

	errorCount uint64 // atomic
	ended      int32  // atomic
	stopStatus sync.Once
}

// New validates the configuration, connects to the backend cluster
// and starts both stages. A cluster that fails its configuration
// check is fatal: no Spooler is returned and no jobs are ever
// accepted.
func New(cfg Config) (*Spooler, error) {
	cfg = cfg.withDefaults()
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("spoolgo: invalid configuration: %w", err)
	}

	stores := cfg.Stores
	if len(stores) == 0 {
		storeOpts := []backend.RiakOption{backend.WithLogger(cfg.Logger)}
		if cfg.ProbeBackOff != nil {
			storeOpts = append(storeOpts, backend.WithProbeBackOff(cfg.ProbeBackOff))
		}
		for _, endpoint := range cfg.Endpoints {
			store, err := backend.NewRiakStore(endpoint, cfg.Bucket, storeOpts...)
			if err != nil {
				return nil, fmt.Errorf("spoolgo: endpoint %s: %w", endpoint, err)
			}
			stores = append(stores, store)
		}
	}

	compression, err := upload.NewCompressionStage(
		cfg.TempDir, cfg.CompressionWorkers, cfg.QueueSize, cfg.Logger)
	if err != nil {
		return nil, err
	}
	uploads, err := upload.NewUploadStage(stores, cfg.UploadWorkers, cfg.QueueSize, cfg.Logger)
	if err != nil {
		compression.Terminate()
		return nil, err
	}

	s := &Spooler{
		compression:      compression,
		uploads:          uploads,
		status:           newStatus(),
		log:              cfg.Logger,
		fileSuffix:       cfg.FileSuffix,
		criticalSuffixes: make(map[string]struct{}, len(cfg.CriticalSuffixes)),
	}
	for _, suffix := range cfg.CriticalSuffixes {
		s.criticalSuffixes[suffix] = struct{}{}
	}
	compression.RegisterListener(s.onCompressed)
	uploads.RegisterListener(s.deliver)
	s.status.start()
	return s, nil
}

// RegisterListener adds a callback that is invoked once per terminal
// job result, for both successes and failures. Register all listeners
// before submitting jobs. Callbacks run on worker goroutines and must
// be safe for concurrent use.
func (s *Spooler) RegisterListener(listener func(upload.Result)) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.listeners = append(s.listeners, listener)
}

// Status returns the progress tracker for this Spooler.
func (s *Spooler) Status() *Status {
	return s.status
}

// CompressionTime returns the cumulative wall time spent compressing
// across all compression workers.
func (s *Spooler) CompressionTime() time.Duration {
	return s.compression.CompressionTime()
}

// UploadTime returns the cumulative wall time spent pushing bytes
// across all upload workers.
func (s *Spooler) UploadTime() time.Duration {
	return s.uploads.UploadTime()
}

// VectorClockTime returns the cumulative wall time spent on
// read-before-write token fetches across all upload workers.
func (s *Spooler) VectorClockTime() time.Duration {
	return s.uploads.VectorClockTime()
}

// Copy schedules an asynchronous direct upload of the file at
// localPath under a key derived from remotePath. The call blocks only
// while the upload queue is full.
func (s *Spooler) Copy(localPath, remotePath string) error {
	if atomic.LoadInt32(&s.ended) != 0 {
		return ErrTransactionEnded
	}
	job := upload.NewPlainJob(localPath, remotePath, false, false)
	if err := s.uploads.Schedule(job); err != nil {
		return err
	}
	s.status.submitted()
	return nil
}

// ProcessChunk schedules an asynchronous compression of the file at
// localPath followed by its upload under the digest of the compressed
// bytes. offset and length are accepted for forward compatibility
// with partial-file uploads; the whole file is always processed.
func (s *Spooler) ProcessChunk(localPath, remoteDir string, offset, length uint64) error {
	if atomic.LoadInt32(&s.ended) != 0 {
		return ErrTransactionEnded
	}
	job := upload.CompressionJob{
		SourcePath: localPath,
		RemoteDir:  remoteDir,
		Suffix:     s.fileSuffix,
		Critical:   s.isCritical(s.fileSuffix),
	}
	if err := s.compression.Schedule(job); err != nil {
		return err
	}
	s.status.submitted()
	return nil
}

// EndOfTransaction marks that no further jobs will be submitted in
// the current batch. It is the precondition for a well-defined
// WaitForUpload boundary; Copy and ProcessChunk fail afterwards.
func (s *Spooler) EndOfTransaction() {
	atomic.StoreInt32(&s.ended, 1)
}

// WaitForUpload blocks until every job submitted before
// EndOfTransaction, including those still pending compression, has
// reached a terminal state in the upload stage.
func (s *Spooler) WaitForUpload() {
	// Compression results are handed to the upload queue from the
	// compression listener, so once the compression stage is empty
	// every surviving job is visible to the upload stage.
	s.compression.Drain()
	s.uploads.Drain()
}

// WaitForTermination blocks until both stages have drained and all
// worker goroutines have stopped. It is idempotent.
func (s *Spooler) WaitForTermination() {
	s.compression.Terminate()
	s.uploads.Terminate()
	s.stopStatus.Do(s.status.stop)
}

// GetNumberOfErrors returns how many jobs have reached a failed
// terminal state since the Spooler was created. The counter only
// increases.
func (s *Spooler) GetNumberOfErrors() uint64 {
	return atomic.LoadUint64(&s.errorCount)
}

func (s *Spooler) isCritical(suffix string) bool {
	_, critical := s.criticalSuffixes[suffix]
	return critical
}

// onCompressed repackages a successful compression into an upload job
// and schedules it. Failed compressions bypass the upload stage
// entirely; their result goes straight to the external listeners.
func (s *Spooler) onCompressed(result upload.CompressionResult) {
	if !result.Ok() {
		s.deliver(result.Result)
		return
	}
	if err := s.uploads.Schedule(result.Job); err != nil {
		s.log.WithFields(logrus.Fields{"local": result.LocalPath}).
			Warnf("could not schedule compressed upload: %s", err)
		s.deliver(upload.Result{
			ReturnCode:  upload.CodeScheduleFailed,
			LocalPath:   result.LocalPath,
			ContentHash: result.ContentHash,
		})
	}
}

// deliver forwards a terminal result to the external listeners and
// accounts for it exactly once.
func (s *Spooler) deliver(result upload.Result) {
	if result.Ok() {
		s.status.completed()
	} else {
		atomic.AddUint64(&s.errorCount, 1)
		s.status.failed()
	}
	s.listenerMu.RLock()
	listeners := s.listeners
	s.listenerMu.RUnlock()
	for _, listener := range listeners {
		listener(result)
	}
}
