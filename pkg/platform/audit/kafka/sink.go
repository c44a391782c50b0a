// Package kafka publishes audit events to a Kafka topic. The event stream
// feeds the platform's analytics pipeline and the dashboard activity feed.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	id "plinth/pkg/domain"
	audit "plinth/pkg/platform/audit"
)

// Sink implements audit.Store by producing events to a topic. Reads are not
// served from Kafka; ListByDomain reports unsupported and callers that need
// queries wrap the sink in a Tee with a queryable store.
type Sink struct {
	client *kgo.Client
	topic  string
}

// New creates a Sink producing to the given topic.
func New(client *kgo.Client, topic string) *Sink {
	return &Sink{client: client, topic: topic}
}

// NewClient builds a kgo client for the given seed brokers.
func NewClient(brokers []string) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}

// Append produces the event, keyed by domain id so one domain's events stay
// ordered within a partition.
func (s *Sink) Append(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	var key []byte
	if !event.DomainID.IsNil() {
		key = []byte(event.DomainID.String())
	} else if event.OrderRef != "" {
		key = []byte(event.OrderRef)
	}

	record := &kgo.Record{
		Topic: s.topic,
		Key:   key,
		Value: payload,
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

// ListByDomain is not supported on the Kafka sink.
func (s *Sink) ListByDomain(ctx context.Context, domainID id.DomainID) ([]audit.Event, error) {
	return nil, fmt.Errorf("kafka sink does not support queries")
}

// Close flushes and closes the underlying client.
func (s *Sink) Close() {
	s.client.Close()
}

// Tee appends to both a queryable store and the Kafka sink; queries go to the
// store. Used when Kafka is configured so the dashboard can still read the
// trail locally.
type Tee struct {
	Primary audit.Store
	Stream  *Sink
}

func (t Tee) Append(ctx context.Context, event audit.Event) error {
	if err := t.Primary.Append(ctx, event); err != nil {
		return err
	}
	return t.Stream.Append(ctx, event)
}

func (t Tee) ListByDomain(ctx context.Context, domainID id.DomainID) ([]audit.Event, error) {
	return t.Primary.ListByDomain(ctx, domainID)
}
