package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
)

// PostgresStore persists the mirror in PostgreSQL. Multi-row operations
// (CreateProducts, CreateBatch, ApplyCustody) run in a single transaction.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const productColumns = `id, token, batch_id, batch_token, position_in_batch, name, description,
	manufacture_date, manufacturer_id, custodian_id, proof_generated, verified_by_customer,
	mint_anchor_id, verify_anchor_id, created_at`

const insertProduct = `
	INSERT INTO products (id, token, batch_id, batch_token, position_in_batch, name, description,
		manufacture_date, manufacturer_id, custodian_id, proof_generated, verified_by_customer,
		mint_anchor_id, verify_anchor_id, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
`

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation"
}

func nullableBatchID(bid id.BatchID) any {
	if bid.IsNil() {
		return nil
	}
	return uuid.UUID(bid)
}

func execInsertProduct(ctx context.Context, tx *sql.Tx, p *Product) error {
	_, err := tx.ExecContext(ctx, insertProduct,
		uuid.UUID(p.ID), int64(p.Token), nullableBatchID(p.BatchID), int64(p.BatchToken),
		p.PositionInBatch, p.Name, p.Description, p.ManufactureDate,
		uuid.UUID(p.ManufacturerID), uuid.UUID(p.CustodianID),
		p.ProofGenerated, p.Verified, p.MintAnchorID, p.VerifyAnchorID, p.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateProducts(ctx context.Context, products []*Product) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create products: %w", err)
	}
	defer tx.Rollback()

	for _, p := range products {
		if err := execInsertProduct(ctx, tx, p); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) CreateBatch(ctx context.Context, batch *Batch, members []*Product) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create batch: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO batches (id, token, metadata_uri, quantity, manufacturer_id, anchor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = tx.ExecContext(ctx, query,
		uuid.UUID(batch.ID), int64(batch.Token), batch.MetadataURI, batch.Quantity,
		uuid.UUID(batch.ManufacturerID), batch.AnchorID, batch.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert batch: %w", err)
	}
	for _, p := range members {
		if err := execInsertProduct(ctx, tx, p); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) FindProduct(ctx context.Context, pid id.ProductID) (*Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	p, err := scanProduct(s.db.QueryRowContext(ctx, query, uuid.UUID(pid)))
	if err != nil {
		return nil, err
	}
	p.History, err = s.loadHistory(ctx, p.ID)
	return p, err
}

func (s *PostgresStore) FindProductByToken(ctx context.Context, token uint64) (*Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE token = $1`
	p, err := scanProduct(s.db.QueryRowContext(ctx, query, int64(token)))
	if err != nil {
		return nil, err
	}
	p.History, err = s.loadHistory(ctx, p.ID)
	return p, err
}

func (s *PostgresStore) FindBatch(ctx context.Context, bid id.BatchID) (*Batch, error) {
	query := `
		SELECT id, token, metadata_uri, quantity, manufacturer_id, anchor_id, created_at
		FROM batches WHERE id = $1
	`
	var (
		b     Batch
		rawID uuid.UUID
		token int64
		mfr   uuid.UUID
	)
	err := s.db.QueryRowContext(ctx, query, uuid.UUID(bid)).Scan(
		&rawID, &token, &b.MetadataURI, &b.Quantity, &mfr, &b.AnchorID, &b.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find batch: %w", err)
	}
	b.ID = id.BatchID(rawID)
	b.Token = uint64(token)
	b.ManufacturerID = id.OrgID(mfr)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM products WHERE batch_id = $1 ORDER BY position_in_batch`, uuid.UUID(bid))
	if err != nil {
		return nil, fmt.Errorf("find batch members: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var raw uuid.UUID
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		b.MemberIDs = append(b.MemberIDs, id.ProductID(raw))
	}
	return &b, rows.Err()
}

func (s *PostgresStore) ListProducts(ctx context.Context, filter Filter) ([]*Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if !filter.OwnedBy.IsNil() {
		query += ` AND custodian_id = ` + arg(uuid.UUID(filter.OwnedBy))
	}
	if !filter.BatchID.IsNil() {
		query += ` AND batch_id = ` + arg(uuid.UUID(filter.BatchID))
	}
	if !filter.SentBy.IsNil() || !filter.ReceivedBy.IsNil() {
		sub := `SELECT 1 FROM custody_events ce WHERE ce.product_id = products.id`
		if !filter.SentBy.IsNil() {
			sub += ` AND ce.from_org = ` + arg(uuid.UUID(filter.SentBy))
		}
		if !filter.ReceivedBy.IsNil() {
			sub += ` AND ce.to_org = ` + arg(uuid.UUID(filter.ReceivedBy))
		}
		query += ` AND EXISTS (` + sub + `)`
	}
	query += ` ORDER BY token`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []*Product
	for rows.Next() {
		p, err := scanProductRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, p := range out {
		if p.History, err = s.loadHistory(ctx, p.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *PostgresStore) ListBatches(ctx context.Context, manufacturer id.OrgID) ([]*Batch, error) {
	query := `
		SELECT id, token, metadata_uri, quantity, manufacturer_id, anchor_id, created_at
		FROM batches WHERE manufacturer_id = $1 ORDER BY token
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(manufacturer))
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var out []*Batch
	for rows.Next() {
		var (
			b     Batch
			rawID uuid.UUID
			token int64
			mfr   uuid.UUID
		)
		if err := rows.Scan(&rawID, &token, &b.MetadataURI, &b.Quantity, &mfr, &b.AnchorID, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.ID = id.BatchID(rawID)
		b.Token = uint64(token)
		b.ManufacturerID = id.OrgID(mfr)
		out = append(out, &b)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ApplyCustody(ctx context.Context, updates []CustodyUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin apply custody: %w", err)
	}
	defer tx.Rollback()

	for _, u := range updates {
		res, err := tx.ExecContext(ctx,
			`UPDATE products SET custodian_id = $1 WHERE id = $2`,
			uuid.UUID(u.NewCustodian), uuid.UUID(u.ProductID),
		)
		if err != nil {
			return fmt.Errorf("update custodian: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return sentinel.ErrNotFound
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO custody_events (product_id, from_org, to_org, from_address, to_address, location, occurred_at, anchor_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`,
			uuid.UUID(u.ProductID), uuid.UUID(u.Event.FromOrg), uuid.UUID(u.Event.ToOrg),
			u.Event.From.String(), u.Event.To.String(), u.Event.Location,
			u.Event.Timestamp, u.Event.AnchorID,
		)
		if err != nil {
			return fmt.Errorf("insert custody event: %w", err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) SetProofGenerated(ctx context.Context, pid id.ProductID) error {
	return s.setFlag(ctx, pid,
		`UPDATE products SET proof_generated = TRUE WHERE id = $1 AND proof_generated = FALSE`)
}

func (s *PostgresStore) SetVerified(ctx context.Context, pid id.ProductID, anchorID string) error {
	tag, err := s.db.ExecContext(ctx,
		`UPDATE products SET verified_by_customer = TRUE, verify_anchor_id = $2
		 WHERE id = $1 AND verified_by_customer = FALSE`,
		uuid.UUID(pid), anchorID,
	)
	if err != nil {
		return fmt.Errorf("set verified: %w", err)
	}
	return s.checkFlagUpdate(ctx, pid, tag)
}

func (s *PostgresStore) setFlag(ctx context.Context, pid id.ProductID, query string) error {
	tag, err := s.db.ExecContext(ctx, query, uuid.UUID(pid))
	if err != nil {
		return fmt.Errorf("set flag: %w", err)
	}
	return s.checkFlagUpdate(ctx, pid, tag)
}

// checkFlagUpdate distinguishes a missing row from an already-set flag when a
// guarded UPDATE touched nothing.
func (s *PostgresStore) checkFlagUpdate(ctx context.Context, pid id.ProductID, tag sql.Result) error {
	n, err := tag.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var exists bool
	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, uuid.UUID(pid)).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrInvalidState
}

func (s *PostgresStore) loadHistory(ctx context.Context, pid id.ProductID) ([]CustodyEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT from_org, to_org, from_address, to_address, location, occurred_at, anchor_id
		FROM custody_events WHERE product_id = $1 ORDER BY occurred_at, id
	`, uuid.UUID(pid))
	if err != nil {
		return nil, fmt.Errorf("load custody history: %w", err)
	}
	defer rows.Close()

	var out []CustodyEvent
	for rows.Next() {
		var (
			ev       CustodyEvent
			from, to uuid.UUID
			fa, ta   string
		)
		if err := rows.Scan(&from, &to, &fa, &ta, &ev.Location, &ev.Timestamp, &ev.AnchorID); err != nil {
			return nil, err
		}
		ev.FromOrg = id.OrgID(from)
		ev.ToOrg = id.OrgID(to)
		ev.From = id.Address(fa)
		ev.To = id.Address(ta)
		out = append(out, ev)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row *sql.Row) (*Product, error) {
	p, err := scanProductRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return p, err
}

func scanProductRow(row rowScanner) (*Product, error) {
	var (
		p          Product
		rawID      uuid.UUID
		token      int64
		batchID    uuid.NullUUID
		batchToken int64
		mfr, cust  uuid.UUID
	)
	err := row.Scan(&rawID, &token, &batchID, &batchToken, &p.PositionInBatch,
		&p.Name, &p.Description, &p.ManufactureDate, &mfr, &cust,
		&p.ProofGenerated, &p.Verified, &p.MintAnchorID, &p.VerifyAnchorID, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.ID = id.ProductID(rawID)
	p.Token = uint64(token)
	if batchID.Valid {
		p.BatchID = id.BatchID(batchID.UUID)
	}
	p.BatchToken = uint64(batchToken)
	p.ManufacturerID = id.OrgID(mfr)
	p.CustodianID = id.OrgID(cust)
	return &p, nil
}
