package attestation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
)

// PostgresStore persists proof records with the proof path as jsonb.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, record *Record) error {
	payload, err := json.Marshal(record.Proof)
	if err != nil {
		return fmt.Errorf("marshal proof: %w", err)
	}
	query := `
		INSERT INTO membership_proofs (product_id, batch_id, proof, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.UUID(record.ProductID), uuid.UUID(record.BatchID), payload, record.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert proof record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, productID id.ProductID) (*Record, error) {
	query := `
		SELECT product_id, batch_id, proof, created_at
		FROM membership_proofs WHERE product_id = $1
	`
	var (
		record  Record
		pid     uuid.UUID
		bid     uuid.UUID
		payload []byte
	)
	err := s.db.QueryRowContext(ctx, query, uuid.UUID(productID)).Scan(&pid, &bid, &payload, &record.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find proof record: %w", err)
	}
	if err := json.Unmarshal(payload, &record.Proof); err != nil {
		return nil, fmt.Errorf("decode proof: %w", err)
	}
	record.ProductID = id.ProductID(pid)
	record.BatchID = id.BatchID(bid)
	return &record, nil
}
