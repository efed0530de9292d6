package upload

import (
	"crypto/sha1"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zlib"
	"github.com/sirupsen/logrus"

	"github.com/ibmjstart/spoolgo/pipeline"
)

// CompressionJob asks for the file at SourcePath to be compressed and
// digested ahead of its upload.
type CompressionJob struct {
	SourcePath string
	RemoteDir  string
	Suffix     string
	Critical   bool
	Move       bool
}

// CompressionStage compresses and digests files concurrently. Each
// successful job yields a compressed temporary file under the stage's
// temp directory and a digest of the compressed bytes, packaged as a
// ready-to-schedule upload job.
type CompressionStage struct {
	pool    *pipeline.Pool[CompressionJob, CompressionResult]
	tempDir string
	log     logrus.FieldLogger

	compressionTime int64 // atomic, nanoseconds
}

// NewCompressionStage creates a running compression stage writing its
// temporary files under tempDir, preferably a RAM-backed filesystem.
func NewCompressionStage(tempDir string, workers, queueSize int, log logrus.FieldLogger) (*CompressionStage, error) {
	info, err := os.Stat(tempDir)
	if err != nil {
		return nil, fmt.Errorf("upload: temp directory %q: %w", tempDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("upload: temp directory %q is not a directory", tempDir)
	}
	stage := &CompressionStage{tempDir: tempDir, log: log}
	pool, err := pipeline.NewPool(workers, queueSize, stage.compress, log)
	if err != nil {
		return nil, err
	}
	stage.pool = pool
	return stage, nil
}

// Schedule enqueues a compression job, blocking while the stage's
// queue is full.
func (s *CompressionStage) Schedule(job CompressionJob) error {
	return s.pool.Schedule(job)
}

// RegisterListener adds a callback invoked once per finished
// compression. Register listeners before scheduling.
func (s *CompressionStage) RegisterListener(listener func(CompressionResult)) {
	s.pool.RegisterListener(listener)
}

// Drain blocks until all previously scheduled compressions have
// finished.
func (s *CompressionStage) Drain() {
	s.pool.Drain()
}

// Terminate stops the stage after finishing scheduled work. It is
// idempotent.
func (s *CompressionStage) Terminate() {
	s.pool.Terminate()
}

// CompressionTime returns the cumulative wall time spent compressing
// across all workers.
func (s *CompressionStage) CompressionTime() time.Duration {
	return time.Duration(atomic.LoadInt64(&s.compressionTime))
}

func (s *CompressionStage) compress(job CompressionJob) CompressionResult {
	started := time.Now()
	defer func() {
		atomic.AddInt64(&s.compressionTime, int64(time.Since(started)))
	}()

	source, err := os.Open(job.SourcePath)
	if err != nil {
		return s.failed(job, CodeSourceUnreadable, err)
	}
	defer source.Close()

	compressedPath, digest, err := s.compressToTempFile(source)
	if err != nil {
		return s.failed(job, CodeCompressionFailed, err)
	}

	uploadJob := NewCompressedJob(
		job.SourcePath, compressedPath, job.RemoteDir, digest, job.Suffix, job.Critical, job.Move)
	return CompressionResult{
		Result: Result{LocalPath: job.SourcePath, ContentHash: digest},
		Job:    uploadJob,
	}
}

// compressToTempFile writes the compressed form of source into a
// fresh file under the stage's temp directory and digests the
// compressed byte stream while writing it.
func (s *CompressionStage) compressToTempFile(source io.Reader) (string, Digest, error) {
	tempFile, err := os.CreateTemp(s.tempDir, "compress-")
	if err != nil {
		return "", nil, fmt.Errorf("creating temp file: %w", err)
	}
	digest := sha1.New()
	compressor := zlib.NewWriter(io.MultiWriter(tempFile, digest))
	if _, err := io.Copy(compressor, source); err != nil {
		tempFile.Close()
		os.Remove(tempFile.Name())
		return "", nil, fmt.Errorf("compressing into %q: %w", tempFile.Name(), err)
	}
	if err := compressor.Close(); err != nil {
		tempFile.Close()
		os.Remove(tempFile.Name())
		return "", nil, fmt.Errorf("flushing compressor for %q: %w", tempFile.Name(), err)
	}
	if err := tempFile.Close(); err != nil {
		os.Remove(tempFile.Name())
		return "", nil, fmt.Errorf("closing temp file %q: %w", tempFile.Name(), err)
	}
	return tempFile.Name(), Digest(digest.Sum(nil)), nil
}

func (s *CompressionStage) failed(job CompressionJob, code int, err error) CompressionResult {
	if s.log != nil {
		s.log.WithFields(logrus.Fields{"source": job.SourcePath, "code": code}).
			Warnf("compression failed: %s", err)
	}
	return CompressionResult{
		Result: Result{ReturnCode: code, LocalPath: job.SourcePath},
		Job:    NewEmptyJob(code, job.SourcePath),
	}
}
