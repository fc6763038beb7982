// Package sqlstore provides a durable persistence backend on top of Bun.
// Any Bun dialect works; tests use sqlite through sqliteshim.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// Record is a persisted key/value row.
type Record struct {
	bun.BaseModel `bun:"table:console_credentials,alias:cc"`
	Key           string     `bun:"cred_key,pk" json:"key"`
	Value         []byte     `bun:"cred_value,notnull" json:"value"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// Store implements the credential persistence contract with Bun.
type Store struct {
	db  bun.IDB
	now func() time.Time
}

// Option customizes the store.
type Option func(*Store)

// WithClock injects a clock (useful for tests).
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.now = clock
		}
	}
}

// New returns a store using db.
func New(db bun.IDB, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Migrate creates the backing table when missing.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*Record)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("persistence/sqlstore: create table: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	rec := &Record{}
	err := s.db.NewSelect().
		Model(rec).
		Where("?TableAlias.cred_key = ?", key).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("persistence/sqlstore: get %s: %w", key, err)
	}
	return rec.Value, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	now := s.now()
	rec := &Record{
		Key:       key,
		Value:     value,
		UpdatedAt: &now,
	}

	_, err := s.db.NewInsert().
		Model(rec).
		On("CONFLICT (cred_key) DO UPDATE").
		Set("cred_value = EXCLUDED.cred_value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("persistence/sqlstore: set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.NewDelete().
		Model((*Record)(nil)).
		Where("cred_key = ?", key).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("persistence/sqlstore: delete %s: %w", key, err)
	}
	return nil
}
