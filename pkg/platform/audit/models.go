package audit

import (
	"time"

	id "plinth/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryBilling covers events tied to money movement. Purchases are
	// financial transactions and keep a long retention window.
	// Examples: checkout opened, order completed, order failed.
	CategoryBilling EventCategory = "billing"

	// CategoryLifecycle covers routine domain lifecycle activity used for
	// debugging and the dashboard activity feed.
	// Examples: domain added, verification passed, deploy succeeded.
	CategoryLifecycle EventCategory = "lifecycle"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	DomainID  id.DomainID
	// OrderRef is the registrar's opaque order identifier (or the payment
	// session id fallback) for purchase events.
	OrderRef string
	// Subject is the fully-qualified domain name the event concerns.
	Subject string
	Action  string
	// Reason carries the failure cause for *_failed events.
	Reason string
	// RequestID correlates the event with the originating HTTP request.
	RequestID string
	// ActorID is the account that triggered the action; empty for events
	// produced by background sweeps (certificate monitor, order poller).
	ActorID string
	// Client is the parsed User-Agent of the dashboard session that triggered
	// the action ("Chrome on Linux"), when known.
	Client string
}

// AuditEvent enumerates the actions recorded on the trail.
type AuditEvent string

const (
	// Domain lifecycle events
	EventDomainAdded       AuditEvent = "domain_added"
	EventDomainUpdated     AuditEvent = "domain_updated"
	EventDomainVerified    AuditEvent = "domain_verified"
	EventVerifyFailed      AuditEvent = "domain_verify_failed"
	EventCertificateActive AuditEvent = "certificate_active"
	EventDomainDeployed    AuditEvent = "domain_deployed"
	EventDeployFailed      AuditEvent = "domain_deploy_failed"
	EventDomainDeleted     AuditEvent = "domain_deleted"

	// Purchase events
	EventCheckoutOpened AuditEvent = "checkout_opened"
	EventOrderCompleted AuditEvent = "order_completed"
	EventOrderFailed    AuditEvent = "order_failed"
)

// eventCategories maps each audit event to its category.
// Billing: money moved, long retention. Lifecycle: routine activity.
var eventCategories = map[AuditEvent]EventCategory{
	EventCheckoutOpened: CategoryBilling,
	EventOrderCompleted: CategoryBilling,
	EventOrderFailed:    CategoryBilling,

	EventDomainAdded:       CategoryLifecycle,
	EventDomainUpdated:     CategoryLifecycle,
	EventDomainVerified:    CategoryLifecycle,
	EventVerifyFailed:      CategoryLifecycle,
	EventCertificateActive: CategoryLifecycle,
	EventDomainDeployed:    CategoryLifecycle,
	EventDeployFailed:      CategoryLifecycle,
	EventDomainDeleted:     CategoryLifecycle,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryLifecycle.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryLifecycle
}
