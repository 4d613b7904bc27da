// Package mirror provides the advisory local index mapping fingerprints to
// their last-known ledger records. The mirror is never authoritative: it
// short-circuits duplicate checks and similarity scans, and any conflict is
// resolved by re-querying the ledger, never by trusting the mirror for a
// write decision.
package mirror

import (
	"context"
	"errors"
	"sync"

	"genmark/internal/domain"
)

// ErrMiss means the mirror has no entry for the fingerprint. Callers fall
// through to the ledger.
var ErrMiss = errors.New("mirror: miss")

// Mirror is the advisory cache interface.
type Mirror interface {
	// Get returns the cached record or ErrMiss.
	Get(ctx context.Context, fp domain.Fingerprint) (domain.ContentRecord, error)

	// Put stores or refreshes the cached record.
	Put(ctx context.Context, rec domain.ContentRecord) error

	// Delete drops a cached record. Dropping a missing entry is not an error.
	Delete(ctx context.Context, fp domain.Fingerprint) error

	// Fingerprints lists every cached fingerprint, for similarity scans.
	Fingerprints(ctx context.Context) ([]domain.Fingerprint, error)
}

// Memory is the in-process implementation. It favors clarity over
// performance; entries live until replaced or the process restarts.
type Memory struct {
	mu      sync.RWMutex
	records map[domain.Fingerprint]domain.ContentRecord
}

// NewMemory constructs an empty in-process mirror.
func NewMemory() *Memory {
	return &Memory{records: make(map[domain.Fingerprint]domain.ContentRecord)}
}

func (m *Memory) Get(_ context.Context, fp domain.Fingerprint) (domain.ContentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if rec, ok := m.records[fp]; ok {
		return rec, nil
	}
	return domain.ContentRecord{}, ErrMiss
}

func (m *Memory) Put(_ context.Context, rec domain.ContentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.Fingerprint] = rec
	return nil
}

func (m *Memory) Delete(_ context.Context, fp domain.Fingerprint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, fp)
	return nil
}

func (m *Memory) Fingerprints(_ context.Context) ([]domain.Fingerprint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Fingerprint, 0, len(m.records))
	for fp := range m.records {
		out = append(out, fp)
	}
	return out, nil
}
