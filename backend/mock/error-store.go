package mock

import (
	"fmt"
	"io"

	"github.com/ibmjstart/spoolgo/backend"
)

// ErrorStore implements the Store interface but always returns the
// error values of its methods.
type ErrorStore struct{}

// NewErrorStore creates a new instance of ErrorStore
func NewErrorStore() ErrorStore {
	return ErrorStore{}
}

// VectorClock always returns an error.
func (e ErrorStore) VectorClock(key string) (string, bool, error) {
	return "", false, fmt.Errorf("mock: vector clock read failed for %q", key)
}

// Put always returns an error without reading the body.
func (e ErrorStore) Put(key string, body io.Reader, size int64, opts backend.WriteOptions) error {
	return fmt.Errorf("mock: write failed for %q", key)
}

// Endpoint returns the empty string.
func (e ErrorStore) Endpoint() string {
	return ""
}

// Ensure that ErrorStore implements the Store interface at compile-time
var _ backend.Store = ErrorStore{}
