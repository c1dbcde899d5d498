package postgres

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianxyz/fillbot/internal/domain"
)

// FillStore implements domain.FillStore using PostgreSQL.
type FillStore struct {
	pool *pgxpool.Pool
}

// NewFillStore creates a new FillStore backed by the given connection pool.
func NewFillStore(pool *pgxpool.Pool) *FillStore {
	return &FillStore{pool: pool}
}

// Create inserts a new fill attempt in pending status.
func (s *FillStore) Create(ctx context.Context, f domain.Fill) error {
	var poolIDStr *string
	if f.PoolID != nil {
		v := f.PoolID.String()
		poolIDStr = &v
	}

	const query = `
		INSERT INTO fills (
			id, offer_id, requester,
			requested_taker_amount, computed_maker_amount, self_fill,
			status, tx_hash, pool_id, fail_reason, strategy,
			created_at, confirmed_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6,
			$7, $8, $9, $10, $11,
			NOW(), $12
		)`

	_, err := s.pool.Exec(ctx, query,
		f.ID, f.OfferID, f.Requester.Hex(),
		f.RequestedTakerAmount.String(), f.ComputedMakerAmount.String(), f.SelfFill,
		string(f.Status), nullIfEmpty(f.TxHash), poolIDStr, nullIfEmpty(f.FailReason), nullIfEmpty(f.Strategy),
		f.ConfirmedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create fill %s: %w", f.ID, err)
	}
	return nil
}

// Confirm marks a pending fill as confirmed with its settlement receipt.
func (s *FillStore) Confirm(ctx context.Context, id string, receipt domain.FillReceipt) error {
	var poolIDStr *string
	if receipt.PoolID != nil {
		v := receipt.PoolID.String()
		poolIDStr = &v
	}

	const query = `
		UPDATE fills
		SET status = 'confirmed', tx_hash = $1, pool_id = $2, confirmed_at = NOW()
		WHERE id = $3`

	tag, err := s.pool.Exec(ctx, query, receipt.TxHash, poolIDStr, id)
	if err != nil {
		return fmt.Errorf("postgres: confirm fill %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Reject marks a fill as rejected with the specific failure reason.
func (s *FillStore) Reject(ctx context.Context, id string, reason string) error {
	const query = `
		UPDATE fills
		SET status = 'rejected', fail_reason = $1
		WHERE id = $2`

	tag, err := s.pool.Exec(ctx, query, reason, id)
	if err != nil {
		return fmt.Errorf("postgres: reject fill %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// fillSelectCols lists the columns selected when reading fills.
const fillSelectCols = `id, offer_id, requester,
	requested_taker_amount, computed_maker_amount, self_fill,
	status, tx_hash, pool_id, fail_reason, strategy,
	created_at, confirmed_at`

func scanFillFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.Fill, error) {
	var f domain.Fill
	var requester, status string
	var requestedStr, computedStr string
	var txHash, poolIDStr, failReason, strategy *string

	err := scanner.Scan(
		&f.ID, &f.OfferID, &requester,
		&requestedStr, &computedStr, &f.SelfFill,
		&status, &txHash, &poolIDStr, &failReason, &strategy,
		&f.CreatedAt, &f.ConfirmedAt,
	)
	if err != nil {
		return domain.Fill{}, err
	}

	f.Requester = common.HexToAddress(requester)
	f.Status = domain.FillStatus(status)

	if f.RequestedTakerAmount, err = domain.AmountFromDecimal(requestedStr); err != nil {
		return domain.Fill{}, fmt.Errorf("requested_taker_amount %q: %w", requestedStr, err)
	}
	if f.ComputedMakerAmount, err = domain.AmountFromDecimal(computedStr); err != nil {
		return domain.Fill{}, fmt.Errorf("computed_maker_amount %q: %w", computedStr, err)
	}

	if txHash != nil {
		f.TxHash = *txHash
	}
	if poolIDStr != nil {
		f.PoolID = new(big.Int)
		f.PoolID.SetString(*poolIDStr, 10)
	}
	if failReason != nil {
		f.FailReason = *failReason
	}
	if strategy != nil {
		f.Strategy = *strategy
	}

	return f, nil
}

func scanFillRows(rows pgx.Rows) ([]domain.Fill, error) {
	var fills []domain.Fill
	for rows.Next() {
		f, err := scanFillFromRow(rows)
		if err != nil {
			return nil, err
		}
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// GetByID retrieves a single fill by its UUID.
func (s *FillStore) GetByID(ctx context.Context, id string) (domain.Fill, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+fillSelectCols+` FROM fills WHERE id = $1`, id)

	f, err := scanFillFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Fill{}, domain.ErrNotFound
		}
		return domain.Fill{}, fmt.Errorf("postgres: get fill %s: %w", id, err)
	}
	return f, nil
}

// ListByOffer returns all fill attempts against a given offer.
func (s *FillStore) ListByOffer(ctx context.Context, offerID string, opts domain.ListOpts) ([]domain.Fill, error) {
	query := `SELECT ` + fillSelectCols + ` FROM fills WHERE offer_id = $1 ORDER BY created_at DESC`
	args := []any{offerID}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fills by offer: %w", err)
	}
	defer rows.Close()

	fills, err := scanFillRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan fills by offer: %w", err)
	}
	return fills, nil
}

// List returns fills with pagination and optional time filtering.
func (s *FillStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Fill, error) {
	query := `SELECT ` + fillSelectCols + ` FROM fills WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fills: %w", err)
	}
	defer rows.Close()

	fills, err := scanFillRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan fills: %w", err)
	}
	return fills, nil
}

// ListBefore returns all fills created strictly before the given cutoff,
// oldest first. Used by the archiver.
func (s *FillStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Fill, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+fillSelectCols+` FROM fills WHERE created_at < $1 ORDER BY created_at ASC`,
		before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fills before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	fills, err := scanFillRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan fills before cutoff: %w", err)
	}
	return fills, nil
}

// nullIfEmpty maps an empty string to SQL NULL.
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
