package upload

import (
	"encoding/hex"
	"fmt"
	"path"
	"strings"
)

// Digest is the content digest of a compressed payload. A nil Digest
// means no digest is present.
type Digest []byte

// Hex returns the lowercase hexadecimal form of the digest.
func (d Digest) Hex() string {
	return hex.EncodeToString(d)
}

// IsZero reports whether the digest is absent.
func (d Digest) IsZero() bool {
	return len(d) == 0
}

func (d Digest) String() string {
	return d.Hex()
}

// JobType discriminates the variants of a Job.
type JobType uint8

const (
	// PlainUpload pushes a local file directly under a key derived
	// from its remote path. It carries no content digest.
	PlainUpload JobType = iota
	// CompressedUpload pushes a compressed temporary file under a
	// key derived from its content digest. Produced only by a
	// successful compression.
	CompressedUpload
	// EmptyJob marks an invalid or failed job. It carries no payload
	// and must never reach the upload network path.
	EmptyJob
)

func (t JobType) String() string {
	switch t {
	case PlainUpload:
		return "plain"
	case CompressedUpload:
		return "compressed"
	case EmptyJob:
		return "empty"
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

// Job describes one unit of upload work. Exactly one variant is
// active per instance; consult Type before reading variant fields.
type Job struct {
	Type JobType

	// LocalPath is the user-facing path that identifies the job when
	// its result is reported. It is set for every variant.
	LocalPath string
	// SourcePath is the file whose bytes are pushed. For a plain
	// upload it equals LocalPath; for a compressed upload it is the
	// compressed temporary file.
	SourcePath string

	// RemotePath is set for plain uploads only.
	RemotePath string

	// RemoteDir, Suffix and ContentHash are set for compressed
	// uploads only.
	RemoteDir   string
	Suffix      string
	ContentHash Digest

	// Critical requests a strongly consistent write.
	Critical bool
	// Move records the caller's intent to move rather than copy the
	// source file. The flag is accepted and carried but currently
	// has no runtime effect.
	Move bool

	errorCode int
}

// NewPlainJob describes a direct copy of the file at localPath into
// the store under a key derived from remotePath.
func NewPlainJob(localPath, remotePath string, critical, move bool) Job {
	return Job{
		Type:       PlainUpload,
		LocalPath:  localPath,
		SourcePath: localPath,
		RemotePath: remotePath,
		Critical:   critical,
		Move:       move,
	}
}

// NewCompressedJob describes the upload of a compressed temporary
// file under a key derived from its content digest. localPath is the
// original source file; it is not uploaded but identifies the job
// when its result is reported.
func NewCompressedJob(localPath, compressedPath, remoteDir string, contentHash Digest, suffix string, critical, move bool) Job {
	return Job{
		Type:        CompressedUpload,
		LocalPath:   localPath,
		SourcePath:  compressedPath,
		RemoteDir:   remoteDir,
		Suffix:      suffix,
		ContentHash: contentHash,
		Critical:    critical,
		Move:        move,
	}
}

// NewEmptyJob describes a failed job. errorCode tells the failure
// apart in diagnostics and localPath preserves traceability to the
// file that caused it.
func NewEmptyJob(errorCode int, localPath string) Job {
	return Job{
		Type:      EmptyJob,
		LocalPath: localPath,
		errorCode: errorCode,
	}
}

// ErrorCode returns the diagnostic code carried by an empty job.
func (j Job) ErrorCode() int {
	return j.errorCode
}

// Key derives the storage key for the job. The derivation is a pure
// function of the job's payload: scheduling the same logical input
// again yields the same key, so re-uploads overwrite instead of
// duplicating. Calling Key on an empty job is a programmer error and
// panics.
func (j Job) Key() string {
	switch j.Type {
	case PlainUpload:
		return strings.Trim(path.Clean(j.RemotePath), "/")
	case CompressedUpload:
		if j.ContentHash.IsZero() {
			panic(fmt.Sprintf("upload: compressed job for %q has no content hash", j.LocalPath))
		}
		return j.ContentHash.Hex() + j.Suffix
	}
	panic(fmt.Sprintf("upload: no storage key for %s job %q", j.Type, j.LocalPath))
}

// Diagnostic return codes carried by failed Results. The specific
// values tell failure sites apart in logs; they are not a stable
// contract surface.
const (
	CodeSourceUnreadable  = 101
	CodeCompressionFailed = 102
	CodeTransportFailed   = 103
	CodeWriteRejected     = 104
	CodeVectorClock       = 105
	CodeScheduleFailed    = 106
)

// Result reports the terminal state of one job. A ReturnCode of zero
// denotes success; any nonzero value is a diagnostic failure code.
type Result struct {
	ReturnCode  int
	LocalPath   string
	ContentHash Digest
}

// Ok reports whether the job succeeded.
func (r Result) Ok() bool {
	return r.ReturnCode == 0
}

// CompressionResult pairs the outcome of a compression job with the
// upload job it produced. Job is an empty job when the compression
// failed.
type CompressionResult struct {
	Result
	Job Job
}
