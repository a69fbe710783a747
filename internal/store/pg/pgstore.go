// Package pg is the durable store: every read-modify-write on a ledger row
// runs under a serializable transaction with the target row locked, so two
// settlements can never interleave on the same payable or receivable.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"komir.org/internal/settlement"
)

type Store struct {
	db *sql.DB
}

var _ settlement.Service = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle (tests use sqlmock through this).
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) begin(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
}

// translateErr keeps storage-layer errors from leaking past the engine
// boundary. Serialization and deadlock failures surface as ErrConflict so
// the caller knows a retry is safe; broken client/site references surface
// as ErrNotFound.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return settlement.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return settlement.ErrConflict
		case "23503": // foreign_key_violation
			return settlement.ErrNotFound
		}
	}
	return err
}
