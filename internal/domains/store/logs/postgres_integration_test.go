//go:build integration

package logs_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"plinth/internal/domains/models"
	"plinth/internal/domains/store/logs"
	id "plinth/pkg/domain"
	"plinth/pkg/testutil/containers"
)

type PostgresLogsSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *logs.PostgresStore
}

func TestPostgresLogsSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresLogsSuite))
}

func (s *PostgresLogsSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = logs.NewPostgres(s.postgres.Pool)
}

func (s *PostgresLogsSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "deployment_logs")
	s.Require().NoError(err)
}

func (s *PostgresLogsSuite) TestAppendAndListNewestFirst() {
	ctx := context.Background()
	domainID := id.DomainID(uuid.New())
	base := time.Now().UTC().Truncate(time.Microsecond)

	entries := []models.DeploymentLogEntry{
		models.NewLogEntry(id.LogEntryID(uuid.New()), domainID, models.LogInfo, "verification pending", "A record not found", base),
		models.NewLogEntry(id.LogEntryID(uuid.New()), domainID, models.LogSuccess, "domain ownership verified", "", base.Add(time.Minute)),
		models.NewLogEntry(id.LogEntryID(uuid.New()), domainID, models.LogSuccess, "deployed to cloud_run", "https://example.com", base.Add(2*time.Minute)),
	}
	for _, entry := range entries {
		s.Require().NoError(s.store.Append(ctx, entry))
	}

	listed, err := s.store.ListByDomain(ctx, domainID)
	s.Require().NoError(err)
	s.Require().Len(listed, 3)
	s.Equal("deployed to cloud_run", listed[0].Message)
	s.Equal("domain ownership verified", listed[1].Message)
	s.Equal("verification pending", listed[2].Message)
	s.Equal(models.LogInfo, listed[2].Status)
	s.Equal("A record not found", listed[2].Details)
	s.True(base.Equal(listed[2].Timestamp))
}

func (s *PostgresLogsSuite) TestListScopedToDomain() {
	ctx := context.Background()
	first := id.DomainID(uuid.New())
	second := id.DomainID(uuid.New())
	now := time.Now().UTC()

	s.Require().NoError(s.store.Append(ctx, models.NewLogEntry(id.LogEntryID(uuid.New()), first, models.LogInfo, "verification pending", "", now)))
	s.Require().NoError(s.store.Append(ctx, models.NewLogEntry(id.LogEntryID(uuid.New()), second, models.LogFailed, "deploy to vercel failed", "mapping rejected", now)))

	listed, err := s.store.ListByDomain(ctx, first)
	s.Require().NoError(err)
	s.Require().Len(listed, 1)
	s.Equal(first, listed[0].DomainID)

	empty, err := s.store.ListByDomain(ctx, id.DomainID(uuid.New()))
	s.Require().NoError(err)
	s.Empty(empty)
}
