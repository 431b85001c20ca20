package org

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
)

// PostgresStore persists organizations in PostgreSQL. Pure I/O; business
// rules live in the service.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const orgColumns = `id, name, company_name, email, role, ledger_address, password_hash, created_at`

func (s *PostgresStore) Create(ctx context.Context, org *Organization) error {
	query := `
		INSERT INTO organizations (id, name, company_name, email, role, ledger_address, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(org.ID), org.Name, org.CompanyName, strings.ToLower(org.Email),
		string(org.Role), org.Address.String(), org.PasswordHash, org.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create organization: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, orgID id.OrgID) (*Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations WHERE id = $1`
	return scanOrg(s.db.QueryRowContext(ctx, query, uuid.UUID(orgID)))
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations WHERE email = $1`
	return scanOrg(s.db.QueryRowContext(ctx, query, strings.ToLower(email)))
}

func (s *PostgresStore) FindByAddress(ctx context.Context, addr id.Address) (*Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations WHERE ledger_address = $1`
	return scanOrg(s.db.QueryRowContext(ctx, query, addr.String()))
}

func (s *PostgresStore) List(ctx context.Context) ([]*Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	var out []*Organization
	for rows.Next() {
		org, err := scanOrgRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, org)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrg(row *sql.Row) (*Organization, error) {
	org, err := scanOrgRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return org, err
}

func scanOrgRow(row rowScanner) (*Organization, error) {
	var (
		org     Organization
		rawID   uuid.UUID
		role    string
		address string
	)
	err := row.Scan(&rawID, &org.Name, &org.CompanyName, &org.Email, &role, &address, &org.PasswordHash, &org.CreatedAt)
	if err != nil {
		return nil, err
	}
	org.ID = id.OrgID(rawID)
	org.Role = id.Role(role)
	org.Address = id.Address(address)
	return &org, nil
}
