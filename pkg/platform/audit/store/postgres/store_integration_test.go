//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	id "plinth/pkg/domain"
	audit "plinth/pkg/platform/audit"
	"plinth/pkg/platform/audit/store/postgres"
	txcontext "plinth/pkg/platform/tx"
	"plinth/pkg/testutil/containers"
)

type PostgresAuditSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
}

func TestPostgresAuditSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresAuditSuite))
}

func (s *PostgresAuditSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = postgres.New(s.postgres.DB)
}

func (s *PostgresAuditSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "audit_events", "outbox")
	s.Require().NoError(err)
}

func (s *PostgresAuditSuite) TestAppendWritesOutboxAndEvents() {
	ctx := context.Background()
	domainID := id.DomainID(uuid.New())

	event := audit.Event{
		Timestamp: time.Now().UTC().Truncate(time.Microsecond),
		DomainID:  domainID,
		Subject:   "example.com",
		Action:    string(audit.EventDomainVerified),
		RequestID: "req-123",
		ActorID:   uuid.NewString(),
		Client:    "Chrome on Linux",
	}
	s.Require().NoError(s.store.Append(ctx, event))

	listed, err := s.store.ListByDomain(ctx, domainID)
	s.Require().NoError(err)
	s.Require().Len(listed, 1)
	s.Equal(audit.CategoryLifecycle, listed[0].Category)
	s.Equal("example.com", listed[0].Subject)
	s.Equal(string(audit.EventDomainVerified), listed[0].Action)
	s.Equal("req-123", listed[0].RequestID)
	s.Equal(domainID, listed[0].DomainID)

	var aggregateType, aggregateID string
	row := s.postgres.DB.QueryRowContext(ctx,
		`SELECT aggregate_type, aggregate_id FROM outbox ORDER BY created_at DESC LIMIT 1`)
	s.Require().NoError(row.Scan(&aggregateType, &aggregateID))
	s.Equal("domain", aggregateType)
	s.Equal(domainID.String(), aggregateID)
}

func (s *PostgresAuditSuite) TestOrderEventsUseOrderAggregate() {
	ctx := context.Background()

	event := audit.Event{
		Timestamp: time.Now().UTC(),
		OrderRef:  "ord_7f3",
		Subject:   "bought.com",
		Action:    string(audit.EventCheckoutOpened),
	}
	s.Require().NoError(s.store.Append(ctx, event))

	all, err := s.store.ListAll(ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 1)
	s.Equal(audit.CategoryBilling, all[0].Category)
	s.Equal("ord_7f3", all[0].OrderRef)
	s.True(all[0].DomainID.IsNil())

	var aggregateType, aggregateID string
	row := s.postgres.DB.QueryRowContext(ctx,
		`SELECT aggregate_type, aggregate_id FROM outbox LIMIT 1`)
	s.Require().NoError(row.Scan(&aggregateType, &aggregateID))
	s.Equal("order", aggregateType)
	s.Equal("ord_7f3", aggregateID)
}

func (s *PostgresAuditSuite) TestListByDomainNewestFirst() {
	ctx := context.Background()
	domainID := id.DomainID(uuid.New())
	base := time.Now().UTC().Truncate(time.Microsecond)

	actions := []audit.AuditEvent{audit.EventDomainAdded, audit.EventDomainVerified, audit.EventDomainDeployed}
	for i, action := range actions {
		s.Require().NoError(s.store.Append(ctx, audit.Event{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			DomainID:  domainID,
			Subject:   "ordered.com",
			Action:    string(action),
		}))
	}

	listed, err := s.store.ListByDomain(ctx, domainID)
	s.Require().NoError(err)
	s.Require().Len(listed, 3)
	s.Equal(string(audit.EventDomainDeployed), listed[0].Action)
	s.Equal(string(audit.EventDomainAdded), listed[2].Action)

	other, err := s.store.ListByDomain(ctx, id.DomainID(uuid.New()))
	s.Require().NoError(err)
	s.Empty(other)
}

func (s *PostgresAuditSuite) TestAppendRollsBackWithTransaction() {
	ctx := context.Background()
	domainID := id.DomainID(uuid.New())

	sqlTx, err := s.postgres.DB.BeginTx(ctx, nil)
	s.Require().NoError(err)

	txCtx := txcontext.WithTx(ctx, sqlTx)
	s.Require().NoError(s.store.Append(txCtx, audit.Event{
		Timestamp: time.Now().UTC(),
		DomainID:  domainID,
		Subject:   "doomed.com",
		Action:    string(audit.EventDomainAdded),
	}))
	s.Require().NoError(sqlTx.Rollback())

	listed, err := s.store.ListByDomain(ctx, domainID)
	s.Require().NoError(err)
	s.Empty(listed, "rolled back events must not be visible")

	var count int
	row := s.postgres.DB.QueryRowContext(ctx, `SELECT count(*) FROM outbox`)
	s.Require().NoError(row.Scan(&count))
	s.Zero(count)
}
