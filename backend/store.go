package backend

import (
	"errors"
	"io"
)

// ErrBadConfiguration reports that a cluster failed the required
// configuration checks at store construction time.
var ErrBadConfiguration = errors.New("backend: cluster configuration check failed")

// ErrVectorClock reports a missing or malformed causality token on a
// read that was expected to produce one.
var ErrVectorClock = errors.New("backend: vector clock missing or malformed")

// ErrWriteRejected reports a write that reached the backend but was
// answered with a non-success status.
var ErrWriteRejected = errors.New("backend: write rejected")

// WriteOptions select the consistency level of a single write.
type WriteOptions struct {
	// Critical requests acknowledgement from all replicas for both
	// the write and the durable-write quorum before the write is
	// considered successful.
	Critical bool
	// VectorClock is the causality token of the object version this
	// write supersedes. Leave empty when the key does not yet exist.
	VectorClock string
}

// Store is a valid upload destination for object bytes.
type Store interface {
	// VectorClock reads the current causality token for key. It
	// reports found == false without an error when the key does not
	// exist.
	VectorClock(key string) (token string, found bool, err error)
	// Put stores size bytes from body under key. Re-writing an
	// existing key overwrites it.
	Put(key string, body io.Reader, size int64, opts WriteOptions) error
	// Endpoint returns the base URL of the node this store talks to.
	Endpoint() string
}
