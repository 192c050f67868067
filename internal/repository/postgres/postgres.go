package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"library-ledger-backend/internal/domain"
	"library-ledger-backend/internal/logger"
	"library-ledger-backend/internal/repository"
)

type Store struct {
	db *sql.DB
	repository.ResourceRepository
	repository.LedgerRepository
	repository.MemberRepository
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:                 db,
		ResourceRepository: NewResourceRepository(db),
		LedgerRepository:   NewLedgerRepository(db),
		MemberRepository:   NewMemberRepository(db),
	}
}

// Open connects with the lib/pq driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate creates the schema if it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	return Migrate(ctx, s.db)
}

func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i+1, err)
		}
	}
	logger.Info("Database schema is up to date", "steps", len(schema))
	return nil
}

const (
	codeUniqueViolation           = "23505"
	codeExclusionViolation        = "23P01"
	codeForeignKeyViolation       = "23503"
	// An ID that does not cast to the column type, e.g. on a database
	// created while IDs were UUID columns.
	codeInvalidTextRepresentation = "22P02"
)

// translate maps constraint violations raised by the database onto the
// domain's sentinel errors. onUnique is what a unique violation means for the
// calling statement.
func translate(err error, onUnique error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch string(pqErr.Code) {
	case codeUniqueViolation:
		return onUnique
	case codeExclusionViolation:
		return domain.ErrOverlap
	case codeForeignKeyViolation, codeInvalidTextRepresentation:
		return domain.ErrNotFound
	}
	return err
}

// lookupErr maps a failed single-row lookup to ErrNotFound when the row is
// missing or the ID is malformed.
func lookupErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	return translate(err, domain.ErrDuplicate)
}

type scanner interface {
	Scan(dest ...any) error
}
