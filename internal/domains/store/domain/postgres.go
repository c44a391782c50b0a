package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"plinth/internal/domains/models"
	id "plinth/pkg/domain"
	"plinth/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

// PostgresStore persists domains in the domains table. The DNS strategy and
// deployment blocks are stored as jsonb; a unique index on lower(name)
// enforces the registry-wide name constraint.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const domainColumns = `id, name, status, status_message, ssl_status, provider,
	project_id, project_user_id, dns, mapping_status, mapping_error,
	deployment, created_at, updated_at, expiry_date`

func (s *PostgresStore) CreateIfNameAvailable(ctx context.Context, d *models.Domain) error {
	dns, deployment, err := encodeJSONFields(d)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO domains (`+domainColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		uuid.UUID(d.ID), d.Name, d.Status, d.StatusMessage, d.SSLStatus, d.Provider,
		nullableUUID(uuid.UUID(d.ProjectID)), nullableUUID(uuid.UUID(d.ProjectUserID)), dns,
		d.MappingStatus, d.MappingError, deployment, d.CreatedAt, d.UpdatedAt, d.ExpiryDate,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert domain: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, domainID id.DomainID) (*models.Domain, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+domainColumns+` FROM domains WHERE id = $1`, uuid.UUID(domainID))
	return scanDomain(row)
}

func (s *PostgresStore) FindByName(ctx context.Context, name string) (*models.Domain, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+domainColumns+` FROM domains WHERE lower(name) = lower($1)`, name)
	return scanDomain(row)
}

func (s *PostgresStore) Update(ctx context.Context, d *models.Domain) error {
	dns, deployment, err := encodeJSONFields(d)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE domains SET
			status = $2, status_message = $3, ssl_status = $4, provider = $5,
			project_id = $6, project_user_id = $7, dns = $8,
			mapping_status = $9, mapping_error = $10, deployment = $11,
			updated_at = $12, expiry_date = $13
		WHERE id = $1`,
		uuid.UUID(d.ID), d.Status, d.StatusMessage, d.SSLStatus, d.Provider,
		nullableUUID(uuid.UUID(d.ProjectID)), nullableUUID(uuid.UUID(d.ProjectUserID)), dns,
		d.MappingStatus, d.MappingError, deployment, d.UpdatedAt, d.ExpiryDate,
	)
	if err != nil {
		return fmt.Errorf("update domain: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListByProject(ctx context.Context, projectID id.ProjectID) ([]*models.Domain, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+domainColumns+` FROM domains
		WHERE project_id = $1
		ORDER BY created_at, name`, uuid.UUID(projectID))
	if err != nil {
		return nil, fmt.Errorf("list domains by project: %w", err)
	}
	defer rows.Close()
	return scanDomains(rows)
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]*models.Domain, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+domainColumns+` FROM domains ORDER BY created_at, name`)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	defer rows.Close()
	return scanDomains(rows)
}

func (s *PostgresStore) ListByStatus(ctx context.Context, statuses ...models.DomainStatus) ([]*models.Domain, error) {
	values := make([]string, len(statuses))
	for i, status := range statuses {
		values[i] = string(status)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+domainColumns+` FROM domains
		WHERE status = ANY($1)
		ORDER BY created_at, name`, values)
	if err != nil {
		return nil, fmt.Errorf("list domains by status: %w", err)
	}
	defer rows.Close()
	return scanDomains(rows)
}

func (s *PostgresStore) Delete(ctx context.Context, domainID id.DomainID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM domains WHERE id = $1`, uuid.UUID(domainID)); err != nil {
		return fmt.Errorf("delete domain: %w", err)
	}
	return nil
}

func encodeJSONFields(d *models.Domain) ([]byte, []byte, error) {
	dns, err := json.Marshal(d.DNS)
	if err != nil {
		return nil, nil, fmt.Errorf("encode dns strategy: %w", err)
	}
	deployment, err := json.Marshal(d.Deployment)
	if err != nil {
		return nil, nil, fmt.Errorf("encode deployment: %w", err)
	}
	return dns, deployment, nil
}

// nullableUUID maps the zero uuid to NULL so unbound project references do
// not collide with real ids.
func nullableUUID(u uuid.UUID) any {
	if u == uuid.Nil {
		return nil
	}
	return u
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDomain(row rowScanner) (*models.Domain, error) {
	var (
		d              models.Domain
		domainUUID     uuid.UUID
		projectUUID    *uuid.UUID
		projectUsrUUID *uuid.UUID
		dns            []byte
		deployment     []byte
	)
	err := row.Scan(
		&domainUUID, &d.Name, &d.Status, &d.StatusMessage, &d.SSLStatus, &d.Provider,
		&projectUUID, &projectUsrUUID, &dns,
		&d.MappingStatus, &d.MappingError, &deployment, &d.CreatedAt, &d.UpdatedAt, &d.ExpiryDate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan domain: %w", err)
	}
	d.ID = id.DomainID(domainUUID)
	if projectUUID != nil {
		d.ProjectID = id.ProjectID(*projectUUID)
	}
	if projectUsrUUID != nil {
		d.ProjectUserID = id.UserID(*projectUsrUUID)
	}
	if err := json.Unmarshal(dns, &d.DNS); err != nil {
		return nil, fmt.Errorf("decode dns strategy: %w", err)
	}
	if err := json.Unmarshal(deployment, &d.Deployment); err != nil {
		return nil, fmt.Errorf("decode deployment: %w", err)
	}
	return &d, nil
}

func scanDomains(rows pgx.Rows) ([]*models.Domain, error) {
	var out []*models.Domain
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate domains: %w", err)
	}
	return out, nil
}
