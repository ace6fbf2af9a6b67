package store

import (
	"context"
	"sync"
)

// MemoryStore keeps refresh sessions in a process-local map.
//
// It does not enforce expiry: entries stay until overwritten or deleted, so it
// suits single-process and development use only. Sessions on this backend are
// bounded by the refresh token's sealed expiry, which the engine reports as a
// missing session.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

var (
	_ Store   = (*MemoryStore)(nil)
	_ Rotator = (*MemoryStore)(nil)
)

// NewMemoryStore returns an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (m *MemoryStore) Get(_ context.Context, principalID string) (*Record, error) {
	m.mu.RLock()
	rec, ok := m.records[principalID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (m *MemoryStore) Put(_ context.Context, principalID, opaqueValue, csrfToken string) error {
	m.mu.Lock()
	m.records[principalID] = Record{OpaqueValue: opaqueValue, CSRFToken: csrfToken}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, principalID string) error {
	m.mu.Lock()
	delete(m.records, principalID)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) UpdateCSRF(_ context.Context, principalID, csrfToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[principalID]
	if !ok {
		return ErrPrincipalNotFound
	}
	rec.CSRFToken = csrfToken
	m.records[principalID] = rec
	return nil
}

func (m *MemoryStore) RotateCSRF(_ context.Context, principalID, opaqueValue, expectedCSRF, nextCSRF string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[principalID]
	if !ok {
		return ErrNotFound
	}
	if rec.OpaqueValue != opaqueValue || rec.CSRFToken != expectedCSRF {
		return ErrMismatch
	}
	rec.CSRFToken = nextCSRF
	m.records[principalID] = rec
	return nil
}

// Len reports the number of tracked principals.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
