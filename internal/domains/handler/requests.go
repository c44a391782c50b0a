package handler

import (
	"plinth/internal/domains/models"
	id "plinth/pkg/domain"
	dErrors "plinth/pkg/domain-errors"
)

// AddDomainRequest connects an externally registered domain.
type AddDomainRequest struct {
	DomainName string `json:"domainName"`
	// DNSStrategy selects "records" or "delegation"; empty defaults to records.
	DNSStrategy string `json:"dnsStrategy,omitempty"`
	ProjectID   string `json:"projectId,omitempty"`
}

func (r AddDomainRequest) ParsedStrategy() models.DNSStrategyKind {
	return models.DNSStrategyKind(r.DNSStrategy)
}

func (r AddDomainRequest) ParsedProjectID() (id.ProjectID, error) {
	if r.ProjectID == "" {
		return id.ProjectID{}, nil
	}
	return id.ParseProjectID(r.ProjectID)
}

// UpdateDomainRequest is a partial update; omitted fields are untouched.
type UpdateDomainRequest struct {
	ProjectID   *string `json:"projectId,omitempty"`
	DNSStrategy *string `json:"dnsStrategy,omitempty"`
}

// DeployDomainRequest binds the domain to one hosting provider.
type DeployDomainRequest struct {
	Provider string `json:"provider"`
}

func (r DeployDomainRequest) Validate() error {
	if r.Provider == "" {
		return dErrors.New(dErrors.CodeValidation, "provider is required")
	}
	return nil
}

// BuyDomainRequest opens a registrar checkout session.
type BuyDomainRequest struct {
	DomainName string `json:"domainName"`
}
