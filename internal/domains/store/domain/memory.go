package domain

import (
	"context"
	"sort"
	"strings"
	"sync"

	"plinth/internal/domains/models"
	id "plinth/pkg/domain"
	"plinth/pkg/platform/sentinel"
)

// InMemory is a mutex-guarded map store for tests and local development.
// Name uniqueness is case-insensitive, matching the postgres unique index
// on lower(name).
type InMemory struct {
	mu      sync.RWMutex
	domains map[id.DomainID]*models.Domain
	byName  map[string]id.DomainID
}

func NewInMemory() *InMemory {
	return &InMemory{
		domains: make(map[id.DomainID]*models.Domain),
		byName:  make(map[string]id.DomainID),
	}
}

// CreateIfNameAvailable inserts the domain unless the name is already taken.
func (s *InMemory) CreateIfNameAvailable(_ context.Context, d *models.Domain) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(d.Name)
	if _, taken := s.byName[key]; taken {
		return sentinel.ErrAlreadyUsed
	}
	if _, exists := s.domains[d.ID]; exists {
		return sentinel.ErrConflict
	}
	copied := *d
	s.domains[d.ID] = &copied
	s.byName[key] = d.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, domainID id.DomainID) (*models.Domain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.domains[domainID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *d
	return &copied, nil
}

func (s *InMemory) FindByName(_ context.Context, name string) (*models.Domain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	domainID, ok := s.byName[strings.ToLower(name)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *s.domains[domainID]
	return &copied, nil
}

// Update replaces the stored aggregate. The name is immutable after create;
// updates that attempt to change it are rejected.
func (s *InMemory) Update(_ context.Context, d *models.Domain) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.domains[d.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !strings.EqualFold(existing.Name, d.Name) {
		return sentinel.ErrConflict
	}
	copied := *d
	s.domains[d.ID] = &copied
	return nil
}

// ListByProject returns domains bound to the project, ordered by creation
// time then name for a stable listing.
func (s *InMemory) ListByProject(_ context.Context, projectID id.ProjectID) ([]*models.Domain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Domain
	for _, d := range s.domains {
		if d.ProjectID == projectID {
			copied := *d
			out = append(out, &copied)
		}
	}
	sortDomains(out)
	return out, nil
}

func (s *InMemory) ListAll(_ context.Context) ([]*models.Domain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Domain, 0, len(s.domains))
	for _, d := range s.domains {
		copied := *d
		out = append(out, &copied)
	}
	sortDomains(out)
	return out, nil
}

// ListByStatus returns domains currently in any of the given statuses.
func (s *InMemory) ListByStatus(_ context.Context, statuses ...models.DomainStatus) ([]*models.Domain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Domain
	for _, d := range s.domains {
		for _, status := range statuses {
			if d.Status == status {
				copied := *d
				out = append(out, &copied)
				break
			}
		}
	}
	sortDomains(out)
	return out, nil
}

// Delete removes the domain and frees its name. Unknown ids are a no-op.
func (s *InMemory) Delete(_ context.Context, domainID id.DomainID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.domains[domainID]
	if !ok {
		return nil
	}
	delete(s.byName, strings.ToLower(d.Name))
	delete(s.domains, domainID)
	return nil
}

func sortDomains(domains []*models.Domain) {
	sort.Slice(domains, func(i, j int) bool {
		if !domains[i].CreatedAt.Equal(domains[j].CreatedAt) {
			return domains[i].CreatedAt.Before(domains[j].CreatedAt)
		}
		return domains[i].Name < domains[j].Name
	})
}
