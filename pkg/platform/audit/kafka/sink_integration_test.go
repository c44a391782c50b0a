//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	id "plinth/pkg/domain"
	audit "plinth/pkg/platform/audit"
	auditkafka "plinth/pkg/platform/audit/kafka"
	"plinth/pkg/testutil/containers"
)

type KafkaSinkSuite struct {
	suite.Suite
	broker string
	topic  string
	sink   *auditkafka.Sink
}

func TestKafkaSinkSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaSinkSuite))
}

func (s *KafkaSinkSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.broker = mgr.GetRedpanda(s.T()).Broker
}

func (s *KafkaSinkSuite) SetupTest() {
	// A fresh topic per test keeps consumed offsets independent.
	s.topic = "domains.audit." + uuid.NewString()[:8]

	client, err := auditkafka.NewClient([]string{s.broker})
	s.Require().NoError(err)
	s.sink = auditkafka.New(client, s.topic)
}

func (s *KafkaSinkSuite) TearDownTest() {
	s.sink.Close()
}

func (s *KafkaSinkSuite) consume(count int) []*kgo.Record {
	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.broker),
		kgo.ConsumeTopics(s.topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	deadline := time.Now().Add(15 * time.Second)
	var records []*kgo.Record
	for len(records) < count && time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		fetches := consumer.PollFetches(ctx)
		cancel()
		for _, fetchErr := range fetches.Errors() {
			if !errors.Is(fetchErr.Err, context.DeadlineExceeded) && !errors.Is(fetchErr.Err, context.Canceled) {
				s.T().Fatalf("fetch error on %s: %v", fetchErr.Topic, fetchErr.Err)
			}
		}
		records = append(records, fetches.Records()...)
	}
	s.Require().Len(records, count, "expected %d records on %s", count, s.topic)
	return records
}

func (s *KafkaSinkSuite) TestAppendProducesEvent() {
	ctx := context.Background()
	domainID := id.DomainID(uuid.New())

	event := audit.Event{
		Category:  audit.CategoryLifecycle,
		Timestamp: time.Now().UTC().Truncate(time.Microsecond),
		DomainID:  domainID,
		Subject:   "example.com",
		Action:    string(audit.EventDomainVerified),
		RequestID: "req-42",
	}
	s.Require().NoError(s.sink.Append(ctx, event))

	records := s.consume(1)
	s.Equal(domainID.String(), string(records[0].Key))

	var decoded audit.Event
	s.Require().NoError(json.Unmarshal(records[0].Value, &decoded))
	s.Equal(event.Subject, decoded.Subject)
	s.Equal(event.Action, decoded.Action)
	s.Equal(event.RequestID, decoded.RequestID)

	// Auto topic creation must have registered the topic on the broker.
	admin := kadm.NewClient(s.mustClient())
	defer admin.Close()
	topics, err := admin.ListTopics(ctx)
	s.Require().NoError(err)
	s.True(topics.Has(s.topic))
}

func (s *KafkaSinkSuite) TestDomainEventsSharePartitionKey() {
	ctx := context.Background()
	domainID := id.DomainID(uuid.New())

	for i := 0; i < 3; i++ {
		s.Require().NoError(s.sink.Append(ctx, audit.Event{
			Timestamp: time.Now().UTC(),
			DomainID:  domainID,
			Subject:   "ordered.com",
			Action:    fmt.Sprintf("step_%d", i),
		}))
	}

	records := s.consume(3)
	partition := records[0].Partition
	for _, record := range records {
		s.Equal(domainID.String(), string(record.Key))
		s.Equal(partition, record.Partition, "one domain's events stay on one partition")
	}
}

func (s *KafkaSinkSuite) TestOrderEventsKeyedByOrderRef() {
	ctx := context.Background()

	s.Require().NoError(s.sink.Append(ctx, audit.Event{
		Timestamp: time.Now().UTC(),
		OrderRef:  "ord_9a1",
		Subject:   "bought.com",
		Action:    string(audit.EventCheckoutOpened),
	}))

	records := s.consume(1)
	s.Equal("ord_9a1", string(records[0].Key))
}

func (s *KafkaSinkSuite) TestQueriesAreUnsupported() {
	_, err := s.sink.ListByDomain(context.Background(), id.DomainID(uuid.New()))
	s.Error(err)
}

func (s *KafkaSinkSuite) mustClient() *kgo.Client {
	client, err := kgo.NewClient(kgo.SeedBrokers(s.broker))
	s.Require().NoError(err)
	return client
}
