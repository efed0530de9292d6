package mock

import (
	"fmt"
	"io"
	"sync"

	"github.com/ibmjstart/spoolgo/backend"
)

// Op records a single read or write observed by a BufferStore.
type Op struct {
	Kind        string // "read" or "write"
	Key         string
	Critical    bool
	VectorClock string
}

// BufferStore implements the Store interface and keeps the observed
// keys, object bytes and the order of reads and writes for later
// retrieval and testing. It is safe for concurrent use.
type BufferStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	vclocks map[string]string
	puts    map[string]int
	ops     []Op
}

// NewBufferStore creates a new instance of BufferStore
func NewBufferStore() *BufferStore {
	return &BufferStore{
		objects: make(map[string][]byte),
		vclocks: make(map[string]string),
		puts:    make(map[string]int),
	}
}

// VectorClock records a read and returns the token assigned to key by
// a previous Put, if any.
func (b *BufferStore) VectorClock(key string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	token, found := b.vclocks[key]
	b.ops = append(b.ops, Op{Kind: "read", Key: key, VectorClock: token})
	return token, found, nil
}

// Put records a write, keeps the object bytes and assigns the key a
// fresh token. Writing an existing key overwrites its bytes.
func (b *BufferStore) Put(key string, body io.Reader, size int64, opts backend.WriteOptions) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	b.puts[key]++
	b.ops = append(b.ops, Op{
		Kind:        "write",
		Key:         key,
		Critical:    opts.Critical,
		VectorClock: opts.VectorClock,
	})
	b.vclocks[key] = fmt.Sprintf("vclock-%d", len(b.ops))
	return nil
}

// Endpoint returns the empty string.
func (b *BufferStore) Endpoint() string {
	return ""
}

// Contents returns a copy of the bytes most recently written under
// key, or nil if the key was never written.
func (b *BufferStore) Contents(key string) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, found := b.objects[key]
	if !found {
		return nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out
}

// PutCount returns how many writes key has received.
func (b *BufferStore) PutCount(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.puts[key]
}

// PutTotal returns how many writes the store has received across all
// keys.
func (b *BufferStore) PutTotal() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := 0
	for _, count := range b.puts {
		total += count
	}
	return total
}

// Keys returns the keys that have been written, in no particular
// order.
func (b *BufferStore) Keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.objects))
	for key := range b.objects {
		keys = append(keys, key)
	}
	return keys
}

// Ops returns a copy of the observed reads and writes in order.
func (b *BufferStore) Ops() []Op {
	b.mu.Lock()
	defer b.mu.Unlock()
	ops := make([]Op, len(b.ops))
	copy(ops, b.ops)
	return ops
}

// Ensure that BufferStore implements the Store interface at compile-time
var _ backend.Store = &BufferStore{}
