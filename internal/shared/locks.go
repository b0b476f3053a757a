package shared

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// DepartmentLockKey builds the key for a department critical section.
func DepartmentLockKey(departmentID uuid.UUID) string {
	return fmt.Sprintf("department:%s:lock", departmentID)
}

// AdmissionLockKey builds the key for an admission critical section.
func AdmissionLockKey(admissionID uuid.UUID) string {
	return fmt.Sprintf("admission:%s:lock", admissionID)
}

// KeyedMutex serializes work per key. Unrelated keys proceed in parallel;
// two holders of the same key are mutually exclusive.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex constructs a KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock acquires the mutex for key, blocking until available.
func (m *KeyedMutex) Lock(key string) {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyedLock{}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
}

// Unlock releases the mutex for key. The entry is dropped once nobody
// waits on it, so the map does not grow with the id space.
func (m *KeyedMutex) Unlock(key string) {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		m.mu.Unlock()
		return
	}
	l.refs--
	if l.refs == 0 {
		delete(m.locks, key)
	}
	m.mu.Unlock()

	l.mu.Unlock()
}

// WithLock runs fn while holding the mutex for key.
func (m *KeyedMutex) WithLock(key string, fn func() error) error {
	m.Lock(key)
	defer m.Unlock(key)
	return fn()
}
