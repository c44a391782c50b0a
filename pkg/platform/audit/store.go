package audit

import (
	"context"

	id "plinth/pkg/domain"
)

// Store persists audit events. Implementations: in-memory (tests, dev),
// Postgres outbox (durable, drained to Kafka), and a direct Kafka sink.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByDomain(ctx context.Context, domainID id.DomainID) ([]Event, error)
}
