package state

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"

	"sbtlend/storage"
)

var errManagerClosed = errors.New("state: manager already committed or discarded")

// Manager stages state mutations on top of a database. Reads observe staged
// writes first and fall through to the database; nothing reaches the database
// until Commit flushes every staged write as one atomic batch. A Manager is
// single use: after Commit or Discard it rejects further access.
type Manager struct {
	db     storage.Database
	writes map[string][]byte
	closed bool
}

// NewManager creates a state manager staging writes against db.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, writes: make(map[string][]byte)}
}

// KVPut RLP encodes value and stages it under key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if m == nil || m.closed {
		return errManagerClosed
	}
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.writes[string(key)] = encoded
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if m == nil || m.closed {
		return false, errManagerClosed
	}
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, ok := m.writes[string(key)]
	if !ok {
		stored, err := m.db.Get(key)
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		data = stored
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// Dirty reports how many keys are staged for the next commit.
func (m *Manager) Dirty() int {
	if m == nil {
		return 0
	}
	return len(m.writes)
}

// Commit flushes every staged write to the database in a single batch.
func (m *Manager) Commit() error {
	if m == nil || m.closed {
		return errManagerClosed
	}
	m.closed = true
	if len(m.writes) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m.writes))
	for key := range m.writes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	batch := m.db.NewBatch()
	for _, key := range keys {
		batch.Put([]byte(key), m.writes[key])
	}
	m.writes = nil
	if err := batch.Write(); err != nil {
		return fmt.Errorf("state: commit batch: %w", err)
	}
	return nil
}

// Discard drops every staged write.
func (m *Manager) Discard() {
	if m == nil {
		return
	}
	m.closed = true
	m.writes = nil
}
