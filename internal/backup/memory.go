package backup

import (
	"context"
	"sync"
)

type memoryObject struct {
	payload  []byte
	checksum string
}

// Memory is an in-process Service. FailWith makes every call fail, which is
// how tests simulate an unreachable remote.
type Memory struct {
	mu      sync.Mutex
	objects map[string]map[string]memoryObject
	fail    error
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string]map[string]memoryObject)}
}

// FailWith makes subsequent calls return err wrapped as ErrSyncFailure.
// Passing nil restores normal behaviour.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

func (m *Memory) Store(_ context.Context, userID, key string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return syncErr("store", m.fail)
	}
	if m.objects[userID] == nil {
		m.objects[userID] = make(map[string]memoryObject)
	}
	m.objects[userID][key] = memoryObject{
		payload:  append([]byte(nil), payload...),
		checksum: Checksum(payload),
	}
	return nil
}

func (m *Memory) Fetch(_ context.Context, userID, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, syncErr("fetch", m.fail)
	}
	obj, ok := m.objects[userID][key]
	if !ok {
		return nil, ErrNotFound
	}
	if err := verify(obj.payload, obj.checksum); err != nil {
		return nil, err
	}
	return append([]byte(nil), obj.payload...), nil
}

// Keys lists the keys stored for userID, in no particular order.
func (m *Memory) Keys(userID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects[userID]))
	for k := range m.objects[userID] {
		keys = append(keys, k)
	}
	return keys
}
