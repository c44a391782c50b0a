// Package service orchestrates the domain lifecycle: registration, DNS
// verification, certificate reflection, hosting deploys, and deletion.
//
// All external-call failures are absorbed here and converted into domain
// status and user-facing messages; raw transport errors never reach
// persisted state.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"plinth/internal/deploy"
	"plinth/internal/dns"
	"plinth/internal/domains/metrics"
	"plinth/internal/domains/models"
	"plinth/internal/purchase"
	purchasemodels "plinth/internal/purchase/models"
	id "plinth/pkg/domain"
	dErrors "plinth/pkg/domain-errors"
	"plinth/pkg/platform/audit"
	"plinth/pkg/platform/sentinel"
	"plinth/pkg/requestcontext"
)

// expiryWindow is how far ahead ListDomains warns about lapsing
// registrations.
const expiryWindow = 30 * 24 * time.Hour

type DomainStore interface {
	CreateIfNameAvailable(ctx context.Context, d *models.Domain) error
	FindByID(ctx context.Context, domainID id.DomainID) (*models.Domain, error)
	FindByName(ctx context.Context, name string) (*models.Domain, error)
	Update(ctx context.Context, d *models.Domain) error
	ListByProject(ctx context.Context, projectID id.ProjectID) ([]*models.Domain, error)
	ListAll(ctx context.Context) ([]*models.Domain, error)
	ListByStatus(ctx context.Context, statuses ...models.DomainStatus) ([]*models.Domain, error)
	Delete(ctx context.Context, domainID id.DomainID) error
}

type LogStore interface {
	Append(ctx context.Context, entry models.DeploymentLogEntry) error
	ListByDomain(ctx context.Context, domainID id.DomainID) ([]models.DeploymentLogEntry, error)
}

// Verifier runs one read-only DNS verification pass.
type Verifier interface {
	Verify(ctx context.Context, d *models.Domain) (dns.Result, error)
}

// ProviderRegistry dispatches deploys by provider name.
type ProviderRegistry interface {
	Get(name string) (deploy.Provider, error)
}

// CertificateReader reports hosting-side certificate state.
type CertificateReader interface {
	CertificateStatus(ctx context.Context, domainName string) (models.SSLStatus, error)
}

// OrderCanceller stops purchase polling for a domain.
type OrderCanceller interface {
	CancelByDomain(domainName string)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
	List(ctx context.Context, domainID id.DomainID) ([]audit.Event, error)
}

// Listing is a registry entry decorated for display.
type Listing struct {
	*models.Domain
	ExpiringSoon bool `json:"expiringSoon"`
}

// VerifyOutcome is the result of one verify call.
type VerifyOutcome struct {
	Domain   *models.Domain `json:"domain"`
	Verified bool           `json:"verified"`
	Message  string         `json:"message,omitempty"`
}

// DeployOutcome is the result of one deploy call.
type DeployOutcome struct {
	Domain  *models.Domain `json:"domain"`
	Success bool           `json:"success"`
	URL     string         `json:"url,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Service is the domain lifecycle orchestrator.
type Service struct {
	domains   DomainStore
	logs      LogStore
	verifier  Verifier
	providers ProviderRegistry
	certs     CertificateReader
	orders    OrderCanceller
	audit     AuditPublisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
	leases    *leaseArena

	platformIP  string
	nameservers []string
	// purchasedProvider labels domains materialized from completed orders.
	purchasedProvider string
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.audit = publisher }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithCertificateReader(reader CertificateReader) Option {
	return func(s *Service) { s.certs = reader }
}

func WithOrderCanceller(canceller OrderCanceller) Option {
	return func(s *Service) { s.orders = canceller }
}

func WithPurchasedProvider(name string) Option {
	return func(s *Service) { s.purchasedProvider = name }
}

func New(domains DomainStore, logs LogStore, verifier Verifier, providers ProviderRegistry, platformIP string, nameservers []string, opts ...Option) *Service {
	s := &Service{
		domains:           domains,
		logs:              logs,
		verifier:          verifier,
		providers:         providers,
		logger:            slog.Default(),
		tracer:            otel.Tracer("plinth/domains"),
		leases:            newLeaseArena(),
		platformIP:        platformIP,
		nameservers:       nameservers,
		purchasedProvider: "Registrar",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddDomain connects an externally registered domain. The strategy decides
// the initial waiting state: records setups wait in pending, delegation in
// pending_nameservers.
func (s *Service) AddDomain(ctx context.Context, rawName string, kind models.DNSStrategyKind, projectID id.ProjectID) (*models.Domain, error) {
	ctx, span := s.tracer.Start(ctx, "domains.AddDomain")
	defer span.End()

	strategy, err := s.strategyFor(kind, rawName)
	if err != nil {
		return nil, err
	}
	d, err := models.NewDomain(id.DomainID(uuid.New()), rawName, models.ProviderExternal, strategy, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	// Records mode targets the normalized name, not the raw input.
	if strategy.Kind == models.StrategyRecords {
		d.DNS = models.RecordsStrategy(s.platformIP, d.Name)
	}
	if !projectID.IsNil() {
		d.BindProject(projectID, requestcontext.UserID(ctx), requestcontext.Now(ctx))
	}

	if err := s.domains.CreateIfNameAvailable(ctx, d); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.Newf(dErrors.CodeConflict, "domain %s is already connected", d.Name)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store domain")
	}

	span.SetAttributes(attribute.String("domain", d.Name))
	s.emitAudit(ctx, d, audit.EventDomainAdded, "")
	if s.metrics != nil {
		s.metrics.DomainsAdded.Inc()
	}
	s.logger.InfoContext(ctx, "domain added", "domain", d.Name, "strategy", strategy.Kind)
	return d, nil
}

func (s *Service) strategyFor(kind models.DNSStrategyKind, name string) (models.DNSStrategy, error) {
	switch kind {
	case models.StrategyRecords, "":
		return models.RecordsStrategy(s.platformIP, name), nil
	case models.StrategyDelegation:
		return models.DelegationStrategy(s.nameservers), nil
	default:
		return models.DNSStrategy{}, dErrors.Newf(dErrors.CodeValidation, "unknown dns strategy: %s", kind)
	}
}

func (s *Service) GetDomain(ctx context.Context, domainID id.DomainID) (*models.Domain, error) {
	d, err := s.domains.FindByID(ctx, domainID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return d, nil
}

// ListDomains returns the project's domains, flagging registrations that
// lapse within thirty days.
func (s *Service) ListDomains(ctx context.Context, projectID id.ProjectID) ([]Listing, error) {
	domains, err := s.domains.ListByProject(ctx, projectID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list domains")
	}
	return s.decorate(ctx, domains), nil
}

// ListAllDomains is the admin view across every project.
func (s *Service) ListAllDomains(ctx context.Context) ([]Listing, error) {
	domains, err := s.domains.ListAll(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list domains")
	}
	return s.decorate(ctx, domains), nil
}

func (s *Service) decorate(ctx context.Context, domains []*models.Domain) []Listing {
	now := requestcontext.Now(ctx)
	out := make([]Listing, len(domains))
	for i, d := range domains {
		out[i] = Listing{Domain: d, ExpiringSoon: d.ExpiresWithin(expiryWindow, now)}
	}
	return out
}

// UpdatePatch is the mutable surface of UpdateDomain. Nil fields are left
// untouched.
type UpdatePatch struct {
	ProjectID *id.ProjectID
	Strategy  *models.DNSStrategyKind
}

// UpdateDomain applies a partial update: project (re)binding and DNS
// strategy switches. Switching strategies resets the domain to the matching
// waiting state.
func (s *Service) UpdateDomain(ctx context.Context, domainID id.DomainID, patch UpdatePatch) (*models.Domain, error) {
	ctx, span := s.tracer.Start(ctx, "domains.UpdateDomain")
	defer span.End()

	d, err := s.domains.FindByID(ctx, domainID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	if d.IsDeleted() {
		return nil, dErrors.New(dErrors.CodeNotFound, "domain not found")
	}

	now := requestcontext.Now(ctx)
	if patch.ProjectID != nil {
		d.BindProject(*patch.ProjectID, requestcontext.UserID(ctx), now)
	}
	if patch.Strategy != nil {
		strategy, err := s.strategyFor(*patch.Strategy, d.Name)
		if err != nil {
			return nil, err
		}
		if err := d.SwitchStrategy(strategy, now); err != nil {
			return nil, err
		}
	}

	if err := s.domains.Update(ctx, d); err != nil {
		return nil, wrapStoreErr(err)
	}
	s.emitAudit(ctx, d, audit.EventDomainUpdated, "")
	return d, nil
}

// VerifyDomain runs one DNS verification pass. Verifying a domain that is
// already active or deployed is a no-op reporting verified. Transient lookup
// failures keep the domain in its waiting state with a retryable message;
// they never produce the error status.
func (s *Service) VerifyDomain(ctx context.Context, domainID id.DomainID) (*VerifyOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "domains.VerifyDomain")
	defer span.End()

	d, err := s.domains.FindByID(ctx, domainID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	span.SetAttributes(attribute.String("domain", d.Name))

	if d.Status == models.StatusActive || d.Status == models.StatusDeployed {
		return &VerifyOutcome{Domain: d, Verified: true}, nil
	}

	opCtx, holder, ok := s.leases.acquire(ctx, domainID, "verify")
	if !ok {
		return nil, dErrors.Wrap(sentinel.ErrOperationInFlight, dErrors.CodeConflict,
			"a "+holder+" operation is already in progress for this domain")
	}
	defer s.leases.release(domainID)

	if err := d.CanStartVerification(); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	d.ApplyVerificationStart(now)
	if err := s.domains.Update(opCtx, d); err != nil {
		return nil, wrapStoreErr(err)
	}

	start := time.Now()
	result, err := s.verifier.Verify(opCtx, d)
	if err != nil {
		// Malformed input or cancellation. Put the domain back into its
		// waiting state rather than leaving it stuck in verifying.
		d.ApplyVerificationResult(false, "", now)
		if updateErr := s.domains.Update(context.WithoutCancel(opCtx), d); updateErr != nil {
			s.logger.ErrorContext(ctx, "verify rollback failed", "domain", d.Name, "error", updateErr)
		}
		if opCtx.Err() != nil {
			return nil, dErrors.Wrap(opCtx.Err(), dErrors.CodeConflict, "verification was cancelled")
		}
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ObserveVerify(start, result.Verified)
	}

	d.ApplyVerificationResult(result.Verified, result.Message, requestcontext.Now(ctx))
	if err := s.domains.Update(opCtx, d); err != nil {
		return nil, wrapStoreErr(err)
	}

	if result.Verified {
		s.appendLog(ctx, d.ID, models.LogSuccess, "domain ownership verified", "")
		s.emitAudit(ctx, d, audit.EventDomainVerified, "")
	} else {
		s.appendLog(ctx, d.ID, models.LogInfo, "verification pending", result.Message)
		s.emitAudit(ctx, d, audit.EventVerifyFailed, result.Message)
	}
	return &VerifyOutcome{Domain: d, Verified: result.Verified, Message: result.Message}, nil
}

// DeployDomain binds the domain to the named hosting provider. A missing
// project binding is a validation failure that leaves no trace in the
// deployment log. A bind failure reverts status, marks the mapping errored
// with a remediation hint, and appends a failed log entry.
func (s *Service) DeployDomain(ctx context.Context, domainID id.DomainID, providerName string) (*DeployOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "domains.DeployDomain")
	defer span.End()

	d, err := s.domains.FindByID(ctx, domainID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	span.SetAttributes(attribute.String("domain", d.Name), attribute.String("provider", providerName))

	provider, err := s.providers.Get(providerName)
	if err != nil {
		return nil, err
	}
	if err := d.CanDeploy(); err != nil {
		return nil, err
	}

	opCtx, holder, ok := s.leases.acquire(ctx, domainID, "deploy")
	if !ok {
		return nil, dErrors.Wrap(sentinel.ErrOperationInFlight, dErrors.CodeConflict,
			"a "+holder+" operation is already in progress for this domain")
	}
	defer s.leases.release(domainID)

	now := requestcontext.Now(ctx)
	prior := d.ApplyDeployStart(now)
	if err := s.domains.Update(opCtx, d); err != nil {
		return nil, wrapStoreErr(err)
	}

	start := time.Now()
	bound, bindErr := provider.Bind(opCtx, d.Name, d.ProjectID.String())
	if s.metrics != nil {
		s.metrics.ObserveDeploy(start, bindErr == nil)
	}

	if bindErr != nil {
		cause := deployFailureMessage(d, bindErr)
		d.ApplyDeployFailure(prior, cause, requestcontext.Now(ctx))
		if err := s.domains.Update(context.WithoutCancel(opCtx), d); err != nil {
			return nil, wrapStoreErr(err)
		}
		s.appendLog(ctx, d.ID, models.LogFailed, "deploy to "+providerName+" failed", cause)
		s.emitAudit(ctx, d, audit.EventDeployFailed, cause)
		return &DeployOutcome{Domain: d, Success: false, Error: cause}, nil
	}

	d.ApplyDeploySuccess(providerName, bound.URL, requestcontext.Now(ctx))
	if err := s.domains.Update(opCtx, d); err != nil {
		return nil, wrapStoreErr(err)
	}
	s.appendLog(ctx, d.ID, models.LogSuccess, "deployed to "+providerName, bound.URL)
	s.emitAudit(ctx, d, audit.EventDomainDeployed, "")
	return &DeployOutcome{Domain: d, Success: true, URL: bound.URL}, nil
}

// deployFailureMessage converts a bind error into an actionable message.
// Record-based setups are offered the delegation fallback; the switch is
// never made automatically.
func deployFailureMessage(d *models.Domain, bindErr error) string {
	msg := dErrors.MessageOf(bindErr)
	if d.DNS.Kind == models.StrategyRecords {
		msg += "; switching to nameserver delegation lets the platform manage the required records"
	}
	return msg
}

// DeleteDomain removes the domain from the registry. Idempotent: unknown
// ids and repeated deletes succeed quietly. In-flight verification or
// deployment on the domain is cancelled, order polling for its name stops,
// and any hosting binding is released best-effort.
func (s *Service) DeleteDomain(ctx context.Context, domainID id.DomainID) error {
	ctx, span := s.tracer.Start(ctx, "domains.DeleteDomain")
	defer span.End()

	d, err := s.domains.FindByID(ctx, domainID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		return wrapStoreErr(err)
	}

	s.leases.cancelHolder(domainID)
	if s.orders != nil {
		s.orders.CancelByDomain(d.Name)
	}

	if d.Deployment.Provider != "" {
		if provider, err := s.providers.Get(d.Deployment.Provider); err == nil {
			if err := provider.Release(ctx, d.Name); err != nil {
				s.logger.WarnContext(ctx, "hosting release failed during delete",
					"domain", d.Name, "provider", d.Deployment.Provider, "error", err)
			}
		}
	}

	d.ApplyDelete(requestcontext.Now(ctx))
	if err := s.domains.Delete(ctx, domainID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete domain")
	}

	s.emitAudit(ctx, d, audit.EventDomainDeleted, "")
	if s.metrics != nil {
		s.metrics.DomainsDeleted.Inc()
	}
	s.logger.InfoContext(ctx, "domain deleted", "domain", d.Name)
	return nil
}

// GetDeploymentLogs returns the domain's attempt history, newest first.
func (s *Service) GetDeploymentLogs(ctx context.Context, domainID id.DomainID) ([]models.DeploymentLogEntry, error) {
	if _, err := s.domains.FindByID(ctx, domainID); err != nil {
		return nil, wrapStoreErr(err)
	}
	entries, err := s.logs.ListByDomain(ctx, domainID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list deployment logs")
	}
	return entries, nil
}

// RecordOrderCompletion materializes a purchased domain once its order
// completes. Registrar-assigned nameservers put the domain into the
// delegation flow; otherwise it waits on records. Called by the order
// tracker within one poll cycle of observing completion.
func (s *Service) RecordOrderCompletion(ctx context.Context, order purchasemodels.Order, actor id.UserID) error {
	ctx, span := s.tracer.Start(ctx, "domains.RecordOrderCompletion")
	defer span.End()

	var strategy models.DNSStrategy
	initialFromDelegation := len(order.Nameservers) > 0
	if initialFromDelegation {
		strategy = models.DelegationStrategy(order.Nameservers)
	} else {
		strategy = models.RecordsStrategy(s.platformIP, order.Domain)
	}

	d, err := models.NewDomain(id.DomainID(uuid.New()), order.Domain, s.purchasedProvider, strategy, requestcontext.Now(ctx))
	if err != nil {
		return err
	}
	d.ExpiryDate = order.ExpiryDate
	if !actor.IsNil() {
		d.ProjectUserID = actor
	}

	if err := s.domains.CreateIfNameAvailable(ctx, d); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			// The user connected the name manually while the order ran.
			s.logger.WarnContext(ctx, "purchased domain already in registry", "domain", d.Name, "order", order.ID)
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store purchased domain")
	}

	if s.metrics != nil {
		s.metrics.OrdersCompleted.Inc()
	}
	s.emitAudit(ctx, d, audit.EventDomainAdded, "")
	s.logger.InfoContext(ctx, "purchased domain registered",
		"domain", d.Name, "order", order.ID, "delegated", initialFromDelegation)
	return nil
}

// ReflectCertificate records the certificate state observed on the hosting
// control plane. Completing provisioning while the domain waits in
// ssl_pending activates it.
func (s *Service) ReflectCertificate(ctx context.Context, domainID id.DomainID, status models.SSLStatus) error {
	if !status.IsValid() {
		return dErrors.Newf(dErrors.CodeInvalidInput, "unknown certificate status: %s", status)
	}
	d, err := s.domains.FindByID(ctx, domainID)
	if err != nil {
		return wrapStoreErr(err)
	}
	if d.SSLStatus == status {
		return nil
	}

	d.ApplyCertificate(status, requestcontext.Now(ctx))
	if err := s.domains.Update(ctx, d); err != nil {
		return wrapStoreErr(err)
	}
	if status == models.SSLActive {
		s.appendLog(ctx, d.ID, models.LogInfo, "certificate issued", "")
		s.emitAudit(ctx, d, audit.EventCertificateActive, "")
	}
	return nil
}

// RefetchDomain force-reloads one registry entry, syncing certificate state
// from the hosting control plane when one is configured.
func (s *Service) RefetchDomain(ctx context.Context, domainID id.DomainID) (*models.Domain, error) {
	d, err := s.domains.FindByID(ctx, domainID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	if s.certs == nil {
		return d, nil
	}

	status, err := s.certs.CertificateStatus(ctx, d.Name)
	if err != nil {
		s.logger.WarnContext(ctx, "refetch: certificate lookup failed", "domain", d.Name, "error", err)
		return d, nil
	}
	if status != d.SSLStatus {
		if err := s.ReflectCertificate(ctx, domainID, status); err != nil {
			return nil, err
		}
		return s.domains.FindByID(ctx, domainID)
	}
	return d, nil
}

// GetAuditTrail lists the audit events recorded for a domain.
func (s *Service) GetAuditTrail(ctx context.Context, domainID id.DomainID) ([]audit.Event, error) {
	if s.audit == nil {
		return nil, nil
	}
	if _, err := s.domains.FindByID(ctx, domainID); err != nil {
		return nil, wrapStoreErr(err)
	}
	return s.audit.List(ctx, domainID)
}

func (s *Service) appendLog(ctx context.Context, domainID id.DomainID, status models.LogStatus, message, details string) {
	entry := models.NewLogEntry(id.LogEntryID(uuid.New()), domainID, status, message, details, requestcontext.Now(ctx))
	if err := s.logs.Append(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.ErrorContext(ctx, "append deployment log failed", "domain_id", domainID, "error", err)
	}
}

func (s *Service) emitAudit(ctx context.Context, d *models.Domain, action audit.AuditEvent, reason string) {
	if s.audit == nil {
		return
	}
	event := audit.Event{
		DomainID:  d.ID,
		Subject:   d.Name,
		Action:    string(action),
		Reason:    reason,
		RequestID: requestcontext.RequestID(ctx),
		Client:    requestcontext.ClientLabel(ctx),
	}
	if uid := requestcontext.UserID(ctx); !uid.IsNil() {
		event.ActorID = uid.String()
	}
	if err := s.audit.Emit(context.WithoutCancel(ctx), event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", action, "error", err)
	}
}

func wrapStoreErr(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "domain not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "conflicting domain update")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "domain store failure")
	}
}

// compile-time check: the orchestrator satisfies the tracker's materializer.
var _ purchase.Materializer = (*Service)(nil)
