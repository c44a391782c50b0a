// Package publisher emits audit events to a Store, synchronously by default
// or through a buffered channel when async mode is enabled.
package publisher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	id "plinth/pkg/domain"
	audit "plinth/pkg/platform/audit"
)

// Publisher emits audit events. In sync mode Emit appends directly; in async
// mode events are buffered and drained by a background goroutine so emission
// never blocks the request path. A full buffer drops the event with a warning
// rather than stalling a verify or deploy call.
type Publisher struct {
	store  audit.Store
	logger *slog.Logger

	inbox     chan audit.Event
	closeOnce sync.Once
	drained   chan struct{}
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithAsyncBuffer enables async emission with the given buffer size.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.inbox = make(chan audit.Event, size)
		}
	}
}

// WithLogger sets the logger used for drop warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPublisher creates a publisher backed by the given store.
func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:   store,
		logger:  slog.Default(),
		drained: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		go p.drain()
	} else {
		close(p.drained)
	}
	return p
}

func (p *Publisher) drain() {
	defer close(p.drained)
	for event := range p.inbox {
		// Detached context: the originating request may be gone by now.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := p.store.Append(ctx, event); err != nil {
			p.logger.Warn("audit append failed",
				"action", event.Action,
				"subject", event.Subject,
				"error", err,
			)
		}
		cancel()
	}
}

// Emit records an audit event. Missing timestamps are filled in.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}

	if p.inbox == nil {
		return p.store.Append(ctx, event)
	}

	select {
	case p.inbox <- event:
	default:
		p.logger.Warn("audit buffer full, dropping event",
			"action", event.Action,
			"subject", event.Subject,
		)
	}
	return nil
}

// List returns the trail for a domain, delegating to the store.
func (p *Publisher) List(ctx context.Context, domainID id.DomainID) ([]audit.Event, error) {
	return p.store.ListByDomain(ctx, domainID)
}

// Close stops the async drain goroutine and flushes buffered events.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		if p.inbox != nil {
			close(p.inbox)
		}
		<-p.drained
	})
}
