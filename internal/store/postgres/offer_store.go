package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianxyz/fillbot/internal/domain"
)

// OfferStore implements domain.OfferStore using PostgreSQL.
type OfferStore struct {
	pool *pgxpool.Pool
}

// NewOfferStore creates a new OfferStore backed by the given connection pool.
func NewOfferStore(pool *pgxpool.Pool) *OfferStore {
	return &OfferStore{pool: pool}
}

// Upsert inserts a signed offer document or, if the id already exists,
// refreshes only the mutable snapshot columns. The signed document columns
// are immutable once written; conflicting inserts never overwrite them.
func (s *OfferStore) Upsert(ctx context.Context, o domain.Offer) error {
	var poolIDStr *string
	if o.PoolID != nil {
		v := o.PoolID.String()
		poolIDStr = &v
	}
	saltStr := "0"
	if o.Salt != nil {
		saltStr = o.Salt.String()
	}

	const query = `
		INSERT INTO offers (
			id, kind, maker, taker,
			maker_amount, taker_amount, minimum_taker_fill_amount,
			expiry, pool_id, salt, signature,
			status, cumulative_taker_filled,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9, $10, $11,
			$12, $13,
			NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			cumulative_taker_filled = EXCLUDED.cumulative_taker_filled,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query,
		o.ID, string(o.Kind), o.Maker.Hex(), o.Taker.Hex(),
		o.MakerAmount.String(), o.TakerAmount.String(), o.MinimumTakerFillAmount.String(),
		o.Expiry, poolIDStr, saltStr, o.Signature,
		o.Status.String(), o.CumulativeTakerFilled.String(),
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert offer %s: %w", o.ID, err)
	}
	return nil
}

// UpdateSnapshot refreshes the last-observed settlement state of an offer.
func (s *OfferStore) UpdateSnapshot(ctx context.Context, id string, status domain.OfferStatus, filled domain.Amount) error {
	const query = `
		UPDATE offers
		SET status = $1, cumulative_taker_filled = $2, updated_at = NOW()
		WHERE id = $3`

	tag, err := s.pool.Exec(ctx, query, status.String(), filled.String(), id)
	if err != nil {
		return fmt.Errorf("postgres: update offer snapshot %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// offerSelectCols lists the columns selected when reading offers.
const offerSelectCols = `id, kind, maker, taker,
	maker_amount, taker_amount, minimum_taker_fill_amount,
	expiry, pool_id, salt, signature,
	status, cumulative_taker_filled,
	created_at, updated_at`

func scanOfferFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.Offer, error) {
	var o domain.Offer
	var kind, maker, taker, status string
	var makerAmountStr, takerAmountStr, minFillStr, filledStr, saltStr string
	var poolIDStr *string

	err := scanner.Scan(
		&o.ID, &kind, &maker, &taker,
		&makerAmountStr, &takerAmountStr, &minFillStr,
		&o.Expiry, &poolIDStr, &saltStr, &o.Signature,
		&status, &filledStr,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return domain.Offer{}, err
	}

	o.Kind = domain.OfferKind(kind)
	o.Maker = common.HexToAddress(maker)
	o.Taker = common.HexToAddress(taker)
	o.Status = domain.ParseOfferStatus(status)

	if o.MakerAmount, err = domain.AmountFromDecimal(makerAmountStr); err != nil {
		return domain.Offer{}, fmt.Errorf("maker_amount %q: %w", makerAmountStr, err)
	}
	if o.TakerAmount, err = domain.AmountFromDecimal(takerAmountStr); err != nil {
		return domain.Offer{}, fmt.Errorf("taker_amount %q: %w", takerAmountStr, err)
	}
	if o.MinimumTakerFillAmount, err = domain.AmountFromDecimal(minFillStr); err != nil {
		return domain.Offer{}, fmt.Errorf("minimum_taker_fill_amount %q: %w", minFillStr, err)
	}
	if o.CumulativeTakerFilled, err = domain.AmountFromDecimal(filledStr); err != nil {
		return domain.Offer{}, fmt.Errorf("cumulative_taker_filled %q: %w", filledStr, err)
	}

	o.Salt = new(big.Int)
	o.Salt.SetString(saltStr, 10)
	if poolIDStr != nil {
		o.PoolID = new(big.Int)
		o.PoolID.SetString(*poolIDStr, 10)
	}

	return o, nil
}

func scanOfferRows(rows pgx.Rows) ([]domain.Offer, error) {
	var offers []domain.Offer
	for rows.Next() {
		o, err := scanOfferFromRow(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, o)
	}
	return offers, rows.Err()
}

// GetByID retrieves a single offer by its digest id.
func (s *OfferStore) GetByID(ctx context.Context, id string) (domain.Offer, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+offerSelectCols+` FROM offers WHERE id = $1`, id)

	o, err := scanOfferFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Offer{}, domain.ErrNotFound
		}
		return domain.Offer{}, fmt.Errorf("postgres: get offer %s: %w", id, err)
	}
	return o, nil
}

// List returns offers matching the filter with pagination.
func (s *OfferStore) List(ctx context.Context, filter domain.OfferFilter, opts domain.ListOpts) ([]domain.Offer, error) {
	query := `SELECT ` + offerSelectCols + ` FROM offers WHERE 1=1`
	args := []any{}
	argIdx := 1

	if filter.Kind != "" {
		query += fmt.Sprintf(" AND kind = $%d", argIdx)
		args = append(args, string(filter.Kind))
		argIdx++
	}
	if filter.Maker != "" {
		query += fmt.Sprintf(" AND maker = $%d", argIdx)
		args = append(args, filter.Maker)
		argIdx++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status.String())
		argIdx++
	}
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
		return nil, fmt.Errorf("postgres: list offers: %w", err)
	}
	defer rows.Close()

	offers, err := scanOfferRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan offers: %w", err)
	}
	return offers, nil
}

// ListFillable returns offers whose last-observed status is fillable and
// whose expiry has not yet passed. The snapshot may lag the contract; the
// engine re-reads authoritative state before any fill.
func (s *OfferStore) ListFillable(ctx context.Context, opts domain.ListOpts) ([]domain.Offer, error) {
	query := `SELECT ` + offerSelectCols + ` FROM offers
		WHERE status = 'fillable' AND expiry > EXTRACT(EPOCH FROM NOW())::BIGINT
		ORDER BY created_at DESC`
	args := []any{}
	argIdx := 1

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
		return nil, fmt.Errorf("postgres: list fillable offers: %w", err)
	}
	defer rows.Close()

	offers, err := scanOfferRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan fillable offers: %w", err)
	}
	return offers, nil
}

// Count returns the total number of tracked offers.
func (s *OfferStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM offers`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count offers: %w", err)
	}
	return n, nil
}
