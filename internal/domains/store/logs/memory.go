package logs

import (
	"context"
	"sort"
	"sync"

	"plinth/internal/domains/models"
	id "plinth/pkg/domain"
)

// InMemory is an append-only log store. Entries are never updated or
// removed; the history survives domain deletion.
type InMemory struct {
	mu      sync.RWMutex
	entries map[id.DomainID][]models.DeploymentLogEntry
}

func NewInMemory() *InMemory {
	return &InMemory{entries: make(map[id.DomainID][]models.DeploymentLogEntry)}
}

func (s *InMemory) Append(_ context.Context, entry models.DeploymentLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.DomainID] = append(s.entries[entry.DomainID], entry)
	return nil
}

// ListByDomain returns the domain's history, newest first.
func (s *InMemory) ListByDomain(_ context.Context, domainID id.DomainID) ([]models.DeploymentLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.entries[domainID]
	out := make([]models.DeploymentLogEntry, len(stored))
	copy(out, stored)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}
