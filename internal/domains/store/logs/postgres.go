package logs

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"plinth/internal/domains/models"
	id "plinth/pkg/domain"
)

// PostgresStore persists deployment log entries. The table is insert-only:
// no UPDATE or DELETE statements exist against it.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Append(ctx context.Context, entry models.DeploymentLogEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO deployment_logs (id, domain_id, status, message, details, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.UUID(entry.ID), uuid.UUID(entry.DomainID), entry.Status, entry.Message, entry.Details, entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append deployment log: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByDomain(ctx context.Context, domainID id.DomainID) ([]models.DeploymentLogEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, domain_id, status, message, details, timestamp
		FROM deployment_logs
		WHERE domain_id = $1
		ORDER BY timestamp DESC, id`, uuid.UUID(domainID))
	if err != nil {
		return nil, fmt.Errorf("list deployment logs: %w", err)
	}
	defer rows.Close()

	var out []models.DeploymentLogEntry
	for rows.Next() {
		var (
			entry      models.DeploymentLogEntry
			entryUUID  uuid.UUID
			domainUUID uuid.UUID
		)
		if err := rows.Scan(&entryUUID, &domainUUID, &entry.Status, &entry.Message, &entry.Details, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("scan deployment log: %w", err)
		}
		entry.ID = id.LogEntryID(entryUUID)
		entry.DomainID = id.DomainID(domainUUID)
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deployment logs: %w", err)
	}
	return out, nil
}
