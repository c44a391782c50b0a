package models

// DomainStatus is the lifecycle state of a Domain record.
type DomainStatus string

const (
	// StatusPendingRegistration: a registrar order is in flight; the record
	// is a placeholder until the order completes.
	StatusPendingRegistration DomainStatus = "pending_registration"
	// StatusPending: awaiting the user to configure A/CNAME records.
	StatusPending DomainStatus = "pending"
	// StatusPendingNameservers: awaiting nameserver delegation to propagate.
	StatusPendingNameservers DomainStatus = "pending_nameservers"
	// StatusVerifying: a verification check is in progress.
	StatusVerifying DomainStatus = "verifying"
	// StatusSSLPending: DNS verified, certificate provisioning in progress.
	StatusSSLPending DomainStatus = "ssl_pending"
	// StatusActive: DNS verified and certificate active.
	StatusActive DomainStatus = "active"
	// StatusDeploying: binding to a hosting target in progress.
	StatusDeploying DomainStatus = "deploying"
	// StatusDeployed: bound to a hosting target and serving.
	StatusDeployed DomainStatus = "deployed"
	// StatusError: a step failed; StatusMessage carries the cause. Always
	// retryable by re-invoking verification or deployment.
	StatusError DomainStatus = "error"
	// StatusDeleted: terminal; all resources released.
	StatusDeleted DomainStatus = "deleted"
)

// IsValid reports whether s is a known status.
func (s DomainStatus) IsValid() bool {
	switch s {
	case StatusPendingRegistration, StatusPending, StatusPendingNameservers,
		StatusVerifying, StatusSSLPending, StatusActive,
		StatusDeploying, StatusDeployed, StatusError, StatusDeleted:
		return true
	}
	return false
}

// IsTerminal reports whether the domain can never leave this status.
func (s DomainStatus) IsTerminal() bool { return s == StatusDeleted }

// allowedTransitions is the directed transition table. StatusError is
// reachable from every non-terminal state and every retryable state is
// reachable again from StatusError; StatusDeleted is reachable from every
// non-terminal state and terminal.
var allowedTransitions = map[DomainStatus][]DomainStatus{
	StatusPendingRegistration: {StatusPending, StatusPendingNameservers},
	StatusPending:             {StatusVerifying, StatusDeploying},
	StatusPendingNameservers:  {StatusVerifying},
	StatusVerifying:           {StatusPending, StatusPendingNameservers, StatusSSLPending, StatusActive},
	StatusSSLPending:          {StatusActive, StatusVerifying, StatusDeploying},
	StatusActive:              {StatusVerifying, StatusDeploying, StatusSSLPending},
	StatusDeploying:           {StatusDeployed, StatusPending, StatusPendingNameservers, StatusSSLPending, StatusActive},
	StatusDeployed:            {StatusDeploying, StatusVerifying},
	StatusError:               {StatusVerifying, StatusDeploying, StatusPending, StatusPendingNameservers},
	StatusDeleted:             nil,
}

// CanTransitionTo reports whether the directed transition s -> target is
// allowed. Every non-terminal state may move to error or deleted.
func (s DomainStatus) CanTransitionTo(target DomainStatus) bool {
	if s == target {
		return false
	}
	if s.IsTerminal() {
		return false
	}
	if target == StatusError || target == StatusDeleted {
		return true
	}
	for _, allowed := range allowedTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// SSLStatus is the certificate provisioning sub-status, observed from the
// hosting control plane, never driven by this service.
type SSLStatus string

const (
	SSLNone         SSLStatus = "none"
	SSLPending      SSLStatus = "pending"
	SSLProvisioning SSLStatus = "provisioning"
	SSLActive       SSLStatus = "active"
)

// IsValid reports whether s is a known certificate status.
func (s SSLStatus) IsValid() bool {
	switch s {
	case SSLNone, SSLPending, SSLProvisioning, SSLActive:
		return true
	}
	return false
}

// MappingStatus records whether the last hosting-side mapping attempt
// succeeded.
type MappingStatus string

const (
	MappingOK    MappingStatus = "ok"
	MappingError MappingStatus = "error"
)
