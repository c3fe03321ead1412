package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// BalanceStore is the debit/credit ledger backing user balances. Balance is
// always derived from completed rows, never stored as a running total.
type BalanceStore struct {
	db *pgxpool.Pool
}

func NewBalanceStore(db *pgxpool.Pool) *BalanceStore {
	return &BalanceStore{db: db}
}

func (s *BalanceStore) GetBalanceByUserID(ctx context.Context, userID string) (decimal.Decimal, error) {
	var totalDr, totalCr decimal.Decimal

	err := s.db.QueryRow(ctx, `
        SELECT
            COALESCE(SUM(dr), 0),
            COALESCE(SUM(cr), 0)
        FROM balances
        WHERE user_id = $1 AND status = 'completed'
    `, userID).Scan(&totalDr, &totalCr)

	if err != nil {
		return decimal.Zero, err
	}

	balance := totalDr.Sub(totalCr)
	return balance, nil
}

// InsertEntry appends one completed ledger row. dr credits the user, cr
// debits them.
func (s *BalanceStore) InsertEntry(ctx context.Context, userID, ttype string, dr, cr decimal.Decimal, tref string) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO balances (user_id, ttype, dr, cr, tref, status)
        VALUES ($1, $2, $3, $4, $5, 'completed')
    `, userID, ttype, dr, cr, tref)
	if err != nil {
		return fmt.Errorf("failed to insert balance entry for %s: %w", userID, err)
	}
	return nil
}
