package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zuiy/crate-services/internal/gamesvc/fair"
)

// EntropyStore is the eos-txids pool: pre-populated transaction ids from the
// public chain, consumed one at a time. DELETE ... RETURNING makes each pop
// atomic, so a value can never be handed out twice.
type EntropyStore struct {
	db *pgxpool.Pool
}

func NewEntropyStore(db *pgxpool.Pool) *EntropyStore {
	return &EntropyStore{db: db}
}

func (s *EntropyStore) Pop(ctx context.Context) (string, error) {
	var txid string
	err := s.db.QueryRow(ctx, `
		DELETE FROM eos_txids
		WHERE txid = (
			SELECT txid FROM eos_txids
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING txid`).Scan(&txid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fair.ErrEntropyExhausted
		}
		return "", fmt.Errorf("failed to pop entropy pool: %w", err)
	}
	return txid, nil
}

// MemoryEntropy is a slice-backed pool for tests.
type MemoryEntropy struct {
	mu    sync.Mutex
	seeds []string
}

func NewMemoryEntropy(seeds ...string) *MemoryEntropy {
	return &MemoryEntropy{seeds: seeds}
}

func (m *MemoryEntropy) Pop(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.seeds) == 0 {
		return "", fair.ErrEntropyExhausted
	}
	seed := m.seeds[0]
	m.seeds = m.seeds[1:]
	return seed, nil
}
