package mock

import (
	"io"

	"github.com/ibmjstart/spoolgo/backend"
)

// NullStore implements the Store interface but discards all writes
// and returns the zero values of its methods.
type NullStore uint8

// NewNullStore creates a new instance of NullStore
func NewNullStore() NullStore {
	return NullStore(0)
}

// VectorClock always reports that the key does not exist.
func (n NullStore) VectorClock(key string) (string, bool, error) {
	return "", false, nil
}

// Put consumes the body and discards it.
func (n NullStore) Put(key string, body io.Reader, size int64, opts backend.WriteOptions) error {
	_, err := io.Copy(io.Discard, body)
	return err
}

// Endpoint returns the empty string.
func (n NullStore) Endpoint() string {
	return ""
}

// Ensure that NullStore implements the Store interface at compile-time
var _ backend.Store = NullStore(0)
