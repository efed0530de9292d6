package backend

import (
	"fmt"
	"io"

	"github.com/ncw/swift"
)

// SwiftStore adapts an authenticated OpenStack Swift connection to
// the Store interface. Swift exposes neither causality tokens nor
// tunable write quorums, so VectorClock always reports absence and
// critical writes degrade to plain writes.
type SwiftStore struct {
	conn      *swift.Connection
	container string
}

// NewSwiftStore wraps an already authenticated Swift connection.
// Objects are stored inside the given container.
func NewSwiftStore(conn *swift.Connection, container string) (*SwiftStore, error) {
	if conn == nil {
		return nil, fmt.Errorf("backend: swift connection cannot be nil")
	}
	if container == "" {
		return nil, fmt.Errorf("backend: container cannot be the empty string")
	}
	return &SwiftStore{conn: conn, container: container}, nil
}

// VectorClock always reports that no token exists; Swift keeps no
// object version causality.
func (s *SwiftStore) VectorClock(key string) (string, bool, error) {
	return "", false, nil
}

// Put streams body into the container under key, overwriting any
// previous object with that name.
func (s *SwiftStore) Put(key string, body io.Reader, size int64, opts WriteOptions) error {
	file, err := s.conn.ObjectCreate(s.container, key, false, "", "", nil)
	if err != nil {
		return fmt.Errorf("creating object %q: %w", key, err)
	}
	if _, err := io.Copy(file, body); err != nil {
		file.Close()
		return fmt.Errorf("writing object %q: %w", key, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing object %q: %w", key, err)
	}
	return nil
}

// Endpoint returns the storage URL of the Swift connection.
func (s *SwiftStore) Endpoint() string {
	return s.conn.StorageUrl
}

// Ensure that SwiftStore implements the Store interface at compile-time
var _ Store = &SwiftStore{}
