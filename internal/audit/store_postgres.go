package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore persists the audit trail so it survives restarts. Rows are
// append-only; nothing updates or deletes them.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	query := `
		INSERT INTO audit_events (occurred_at, kind, actor_id, product_id, batch_id, partnership_id, anchor_id, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.Timestamp, string(event.Kind), event.ActorID, event.ProductID,
		event.BatchID, event.PartnershipID, event.AnchorID, event.Detail,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByActor(ctx context.Context, actorID string) ([]Event, error) {
	query := `
		SELECT occurred_at, kind, actor_id, product_id, batch_id, partnership_id, anchor_id, detail
		FROM audit_events WHERE actor_id = $1 ORDER BY occurred_at, id
	`
	rows, err := s.db.QueryContext(ctx, query, actorID)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e    Event
			kind string
		)
		if err := rows.Scan(&e.Timestamp, &kind, &e.ActorID, &e.ProductID,
			&e.BatchID, &e.PartnershipID, &e.AnchorID, &e.Detail); err != nil {
			return nil, err
		}
		e.Kind = Kind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}
