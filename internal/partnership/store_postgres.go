package partnership

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
)

// PostgresStore persists partnerships. The one-active-per-pair invariant is
// enforced by a partial unique index on the normalized pair:
//
//	CREATE UNIQUE INDEX partnerships_active_pair ON partnerships
//	  (LEAST(sender_id, receiver_id), GREATEST(sender_id, receiver_id))
//	  WHERE status IN ('pending', 'accepted');
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const partnershipColumns = `id, sender_id, receiver_id, status, requested_at, responded_at`

func (s *PostgresStore) CreateIfNoneActive(ctx context.Context, p *Partnership) error {
	query := `
		INSERT INTO partnerships (id, sender_id, receiver_id, status, requested_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(p.ID), uuid.UUID(p.SenderID), uuid.UUID(p.ReceiverID), string(p.Status), p.RequestedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create partnership: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, pid id.PartnershipID) (*Partnership, error) {
	query := `SELECT ` + partnershipColumns + ` FROM partnerships WHERE id = $1`
	p, err := scanPartnership(s.db.QueryRowContext(ctx, query, uuid.UUID(pid)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return p, err
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, pid id.PartnershipID, status Status, respondedAt time.Time) error {
	// The status guard in the WHERE clause makes the pending->terminal
	// transition atomic; a lost race reports ErrInvalidState.
	query := `
		UPDATE partnerships SET status = $2, responded_at = $3
		WHERE id = $1 AND status = 'pending'
	`
	res, err := s.db.ExecContext(ctx, query, uuid.UUID(pid), string(status), respondedAt)
	if err != nil {
		return fmt.Errorf("update partnership status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update partnership status: %w", err)
	}
	if n == 0 {
		if _, err := s.FindByID(ctx, pid); errors.Is(err, sentinel.ErrNotFound) {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrInvalidState
	}
	return nil
}

func (s *PostgresStore) FindActive(ctx context.Context, a, b id.OrgID) (*Partnership, error) {
	query := `
		SELECT ` + partnershipColumns + ` FROM partnerships
		WHERE status IN ('pending', 'accepted')
		  AND ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))
	`
	p, err := scanPartnership(s.db.QueryRowContext(ctx, query, uuid.UUID(a), uuid.UUID(b)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return p, err
}

func (s *PostgresStore) ListForOrg(ctx context.Context, orgID id.OrgID) ([]*Partnership, error) {
	query := `
		SELECT ` + partnershipColumns + ` FROM partnerships
		WHERE sender_id = $1 OR receiver_id = $1
		ORDER BY requested_at
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(orgID))
	if err != nil {
		return nil, fmt.Errorf("list partnerships: %w", err)
	}
	defer rows.Close()

	var out []*Partnership
	for rows.Next() {
		p, err := scanPartnership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPartnership(row rowScanner) (*Partnership, error) {
	var (
		p                 Partnership
		pid, sender, recv uuid.UUID
		status            string
		respondedAt       sql.NullTime
	)
	if err := row.Scan(&pid, &sender, &recv, &status, &p.RequestedAt, &respondedAt); err != nil {
		return nil, err
	}
	p.ID = id.PartnershipID(pid)
	p.SenderID = id.OrgID(sender)
	p.ReceiverID = id.OrgID(recv)
	p.Status = Status(status)
	if respondedAt.Valid {
		t := respondedAt.Time
		p.RespondedAt = &t
	}
	return &p, nil
}
