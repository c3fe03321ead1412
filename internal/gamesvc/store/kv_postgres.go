package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore keeps snapshots in a single kv table:
//
//	CREATE TABLE kv (
//	    key     text PRIMARY KEY,
//	    value   jsonb NOT NULL,
//	    version bigint NOT NULL DEFAULT 1
//	);
type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Get(ctx context.Context, key string) (*Entry, error) {
	entry := &Entry{Key: key}
	err := s.db.QueryRow(ctx,
		`SELECT value, version FROM kv WHERE key = $1`, key,
	).Scan(&entry.Value, &entry.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return entry, nil
}

func (s *PGStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO kv (key, value, version)
		VALUES ($1, $2, 1)
		ON CONFLICT (key) DO UPDATE SET value = $2, version = kv.version + 1`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (s *PGStore) SetCAS(ctx context.Context, key string, value []byte, version int64) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE kv SET value = $2, version = version + 1
		WHERE key = $1 AND version = $3`,
		key, value, version)
	if err != nil {
		return fmt.Errorf("failed to cas %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (s *PGStore) Delete(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow(ctx,
		`DELETE FROM kv WHERE key = $1 RETURNING value`, key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return value, nil
}

func (s *PGStore) List(ctx context.Context, prefix string) ([]Entry, error) {
	rows, err := s.db.Query(ctx,
		`SELECT key, value, version FROM kv WHERE key LIKE $1 || '%'`, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Value, &e.Version); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
