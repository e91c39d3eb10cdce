package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Spok95/learning-platform/internal/apperr"
	"github.com/Spok95/learning-platform/internal/ctxutil"
	"github.com/jmoiron/sqlx"
)

// Store is the postgres-backed persistence for users, packages, subscriptions,
// class sessions and teacher earnings.
type Store struct {
	db *sqlx.DB
}

func NewStore(database *sqlx.DB) *Store {
	return &Store{db: database}
}

func (s *Store) DB() *sqlx.DB { return s.db }

// querier is satisfied by both *sqlx.DB and *sqlx.Tx, so helpers run in or out of a transaction.
type querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

// inTx runs fn inside a read-committed transaction; any error rolls everything back.
func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func dbCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return ctxutil.WithDBTimeout(ctx)
}

// notFound turns sql.ErrNoRows into apperr.ErrNotFound with the entity name.
func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, apperr.ErrNotFound)
	}
	return err
}
