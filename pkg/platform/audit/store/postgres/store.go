package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "plinth/pkg/domain"
	audit "plinth/pkg/platform/audit"
	txcontext "plinth/pkg/platform/tx"
)

// Store implements audit.Store using the transactional outbox pattern.
// Events are written to the outbox table in the same transaction as the
// domain mutation and drained to Kafka by the outbox worker; a materialized
// audit_events table serves dashboard queries.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store that writes to the outbox.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// outboxPayload is the JSON structure published to Kafka.
// Field names match audit.Event for proper deserialization by consumers.
type outboxPayload struct {
	ID        string `json:"ID"`
	Category  string `json:"Category"`
	Timestamp string `json:"Timestamp"`
	DomainID  string `json:"DomainID,omitempty"`
	OrderRef  string `json:"OrderRef,omitempty"`
	Subject   string `json:"Subject"`
	Action    string `json:"Action"`
	Reason    string `json:"Reason,omitempty"`
	RequestID string `json:"RequestID,omitempty"`
	ActorID   string `json:"ActorID,omitempty"`
	Client    string `json:"Client,omitempty"`
}

// Append writes an audit event to the outbox table for Kafka publishing and
// materializes it into audit_events for dashboard queries.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()

	// Always derive category from action - eventCategories map is the source of truth
	category := audit.AuditEvent(event.Action).Category()

	payload := outboxPayload{
		ID:        eventID.String(),
		Category:  string(category),
		Timestamp: event.Timestamp.Format(time.RFC3339Nano),
		Subject:   event.Subject,
		Action:    event.Action,
		Reason:    event.Reason,
		RequestID: event.RequestID,
		ActorID:   event.ActorID,
		Client:    event.Client,
	}
	if !event.DomainID.IsNil() {
		payload.DomainID = event.DomainID.String()
	}
	payload.OrderRef = event.OrderRef

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	aggregateType := "audit"
	aggregateID := eventID.String()
	if !event.DomainID.IsNil() {
		aggregateType = "domain"
		aggregateID = event.DomainID.String()
	} else if event.OrderRef != "" {
		aggregateType = "order"
		aggregateID = event.OrderRef
	}

	outboxQuery := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.execer(ctx).ExecContext(ctx, outboxQuery,
		uuid.New(), // outbox entry ID
		aggregateType,
		aggregateID,
		event.Action,
		payloadBytes,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}

	eventsQuery := `
		INSERT INTO audit_events (
			id, category, timestamp, domain_id, order_ref,
			subject, action, reason, request_id, actor_id, client
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`
	var domainID *uuid.UUID
	if !event.DomainID.IsNil() {
		did := uuid.UUID(event.DomainID)
		domainID = &did
	}
	_, err = s.execer(ctx).ExecContext(ctx, eventsQuery,
		eventID,
		string(category),
		event.Timestamp,
		domainID,
		event.OrderRef,
		event.Subject,
		event.Action,
		event.Reason,
		event.RequestID,
		event.ActorID,
		event.Client,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByDomain returns events for a specific domain, most recent first.
func (s *Store) ListByDomain(ctx context.Context, domainID id.DomainID) ([]audit.Event, error) {
	query := `
		SELECT category, timestamp, domain_id, order_ref,
		       subject, action, reason, request_id, actor_id, client
		FROM audit_events
		WHERE domain_id = $1
		ORDER BY timestamp DESC
	`

	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(domainID))
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListAll returns all audit events (admin only), most recent first.
func (s *Store) ListAll(ctx context.Context) ([]audit.Event, error) {
	query := `
		SELECT category, timestamp, domain_id, order_ref,
		       subject, action, reason, request_id, actor_id, client
		FROM audit_events
		ORDER BY timestamp DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event
	for rows.Next() {
		var (
			event    audit.Event
			category string
			domainID *uuid.UUID
		)
		if err := rows.Scan(
			&category,
			&event.Timestamp,
			&domainID,
			&event.OrderRef,
			&event.Subject,
			&event.Action,
			&event.Reason,
			&event.RequestID,
			&event.ActorID,
			&event.Client,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Category = audit.EventCategory(category)
		if domainID != nil {
			event.DomainID = id.DomainID(*domainID)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
