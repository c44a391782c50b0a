package models

import (
	"regexp"
	"strings"
	"time"

	id "plinth/pkg/domain"
	dErrors "plinth/pkg/domain-errors"
)

// ProviderExternal marks a domain registered outside the platform and
// connected manually. Domains bought through the purchase flow carry the
// registrar's name instead.
const ProviderExternal = "External"

// domainNamePattern accepts lowercase FQDNs after normalization: labels of
// letters, digits and hyphens (no leading/trailing hyphen), at least one dot.
var domainNamePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)+$`)

// Deployment records the outcome of the most recent hosting bind.
type Deployment struct {
	// Provider is the hosting backend the domain was last bound to.
	Provider       string     `json:"provider,omitempty"`
	LastDeployedAt *time.Time `json:"lastDeployedAt,omitempty"`
	URL            string     `json:"url,omitempty"`
	Error          string     `json:"error,omitempty"`
}

// Domain is the aggregate root for a connected domain.
//
// Invariants:
//   - Name is a normalized FQDN: lowercase, no trailing dot, no www. prefix,
//     unique across the registry (enforced by the store)
//   - Status transitions follow the allowedTransitions table only
//   - ProjectID must be set before the domain can enter deploying/deployed
//   - StatusMessage is populated exactly when Status is error
//   - deleted is terminal; no operation revives a deleted domain
type Domain struct {
	ID            id.DomainID   `json:"id"`
	Name          string        `json:"name"`
	Status        DomainStatus  `json:"status"`
	StatusMessage string        `json:"statusMessage,omitempty"`
	SSLStatus     SSLStatus     `json:"sslStatus"`
	Provider      string        `json:"provider"`
	ProjectID     id.ProjectID  `json:"projectId,omitempty"`
	ProjectUserID id.UserID     `json:"projectUserId,omitempty"`
	DNS           DNSStrategy   `json:"dns"`
	MappingStatus MappingStatus `json:"mappingStatus"`
	MappingError  string        `json:"mappingError,omitempty"`
	Deployment    Deployment    `json:"deployment"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
	ExpiryDate    *time.Time    `json:"expiryDate,omitempty"`
}

// NormalizeDomainName canonicalizes user input: trims whitespace, lowercases,
// drops a trailing dot and a leading www. label. Returns an error for names
// that are not plausible FQDNs after normalization.
func NormalizeDomainName(raw string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	name = strings.TrimSuffix(name, ".")
	name = strings.TrimPrefix(name, "www.")
	if name == "" {
		return "", dErrors.New(dErrors.CodeValidation, "domain name cannot be empty")
	}
	if len(name) > 253 {
		return "", dErrors.New(dErrors.CodeValidation, "domain name exceeds 253 characters")
	}
	if !domainNamePattern.MatchString(name) {
		return "", dErrors.Newf(dErrors.CodeValidation, "invalid domain name: %s", raw)
	}
	return name, nil
}

// NewDomain constructs a domain in its initial state for the given strategy:
// pending for record-based setups, pending_nameservers for delegation.
func NewDomain(domainID id.DomainID, rawName, provider string, strategy DNSStrategy, now time.Time) (*Domain, error) {
	name, err := NormalizeDomainName(rawName)
	if err != nil {
		return nil, err
	}
	if err := strategy.Validate(); err != nil {
		return nil, err
	}
	if provider == "" {
		provider = ProviderExternal
	}
	return &Domain{
		ID:            domainID,
		Name:          name,
		Status:        initialStatus(strategy),
		SSLStatus:     SSLNone,
		Provider:      provider,
		DNS:           strategy,
		MappingStatus: MappingOK,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func initialStatus(strategy DNSStrategy) DomainStatus {
	if strategy.Kind == StrategyDelegation {
		return StatusPendingNameservers
	}
	return StatusPending
}

// pendingStatus is the waiting state a failed verification falls back to,
// derived from the current DNS strategy.
func (d *Domain) pendingStatus() DomainStatus {
	return initialStatus(d.DNS)
}

func (d *Domain) IsDeleted() bool {
	return d.Status == StatusDeleted
}

// ExpiresWithin reports whether the registration lapses within the window.
// Domains without a known expiry never match.
func (d *Domain) ExpiresWithin(window time.Duration, now time.Time) bool {
	if d.ExpiryDate == nil {
		return false
	}
	return d.ExpiryDate.Before(now.Add(window))
}

// BindProject attaches the domain to a project. Rebinding between deploy
// attempts is allowed; the binding only becomes load-bearing at deploy time.
func (d *Domain) BindProject(projectID id.ProjectID, userID id.UserID, now time.Time) {
	d.ProjectID = projectID
	d.ProjectUserID = userID
	d.UpdatedAt = now
}

// SwitchStrategy replaces the DNS strategy and resets the domain to the
// matching waiting state so the next verification checks the new targets.
func (d *Domain) SwitchStrategy(strategy DNSStrategy, now time.Time) error {
	if err := strategy.Validate(); err != nil {
		return err
	}
	if d.IsDeleted() {
		return dErrors.New(dErrors.CodeInvariantViolation, "domain is deleted")
	}
	d.DNS = strategy
	d.Status = initialStatus(strategy)
	d.StatusMessage = ""
	d.UpdatedAt = now
	return nil
}

// CanStartVerification checks if a verification pass may begin.
// Use with ApplyVerificationStart in the service's lease-guarded section.
func (d *Domain) CanStartVerification() error {
	if !d.Status.CanTransitionTo(StatusVerifying) {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "cannot verify domain in status %s", d.Status)
	}
	return nil
}

// ApplyVerificationStart moves the domain into verifying.
// Call CanStartVerification first to validate the transition.
func (d *Domain) ApplyVerificationStart(now time.Time) {
	d.Status = StatusVerifying
	d.StatusMessage = ""
	d.UpdatedAt = now
}

// ApplyVerificationResult settles a verification pass. Success advances to
// ssl_pending (or straight to active when a certificate already exists);
// failure returns the domain to the strategy's waiting state with the
// checker's message preserved for the user.
func (d *Domain) ApplyVerificationResult(verified bool, message string, now time.Time) {
	if verified {
		if d.SSLStatus == SSLActive {
			d.Status = StatusActive
		} else {
			if d.SSLStatus == SSLNone {
				d.SSLStatus = SSLPending
			}
			d.Status = StatusSSLPending
		}
		d.StatusMessage = ""
	} else {
		d.Status = d.pendingStatus()
		d.StatusMessage = message
	}
	d.UpdatedAt = now
}

// CanDeploy checks if a deploy may begin. A project binding is required; its
// absence is a validation failure rather than a state machine violation so
// the caller can skip logging a deploy attempt that never started.
func (d *Domain) CanDeploy() error {
	if d.ProjectID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "domain has no project bound")
	}
	if !d.Status.CanTransitionTo(StatusDeploying) {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "cannot deploy domain in status %s", d.Status)
	}
	return nil
}

// ApplyDeployStart moves the domain into deploying and returns the status to
// revert to should the bind fail. Call CanDeploy first.
func (d *Domain) ApplyDeployStart(now time.Time) DomainStatus {
	prior := d.Status
	d.Status = StatusDeploying
	d.UpdatedAt = now
	return prior
}

// ApplyDeploySuccess records a successful hosting bind.
func (d *Domain) ApplyDeploySuccess(provider, url string, now time.Time) {
	deployedAt := now
	d.Status = StatusDeployed
	d.MappingStatus = MappingOK
	d.MappingError = ""
	d.Deployment = Deployment{Provider: provider, LastDeployedAt: &deployedAt, URL: url}
	d.UpdatedAt = now
}

// ApplyDeployFailure reverts the domain to its pre-deploy status and surfaces
// the bind error through the mapping fields. The domain itself stays healthy:
// a failed bind does not invalidate prior verification.
func (d *Domain) ApplyDeployFailure(prior DomainStatus, cause string, now time.Time) {
	d.Status = prior
	d.MappingStatus = MappingError
	d.MappingError = cause
	d.Deployment.Error = cause
	d.UpdatedAt = now
}

// ApplyCertificate reflects the certificate state reported by the hosting
// control plane. When the certificate goes active while the domain waits in
// ssl_pending, the domain completes its setup and becomes active.
func (d *Domain) ApplyCertificate(status SSLStatus, now time.Time) {
	if d.SSLStatus == status {
		return
	}
	d.SSLStatus = status
	if status == SSLActive && d.Status == StatusSSLPending {
		d.Status = StatusActive
	}
	d.UpdatedAt = now
}

// MarkError moves the domain into the error state with a cause the user can
// act on. Allowed from any non-terminal state.
func (d *Domain) MarkError(cause string, now time.Time) error {
	if !d.Status.CanTransitionTo(StatusError) {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "cannot mark domain in status %s as errored", d.Status)
	}
	d.Status = StatusError
	d.StatusMessage = cause
	d.UpdatedAt = now
	return nil
}

// ApplyDelete tombstones the domain. Idempotent at the service layer; here a
// repeated delete is simply a no-op on an already deleted aggregate.
func (d *Domain) ApplyDelete(now time.Time) {
	if d.IsDeleted() {
		return
	}
	d.Status = StatusDeleted
	d.StatusMessage = ""
	d.UpdatedAt = now
}
