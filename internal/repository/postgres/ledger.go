package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"library-ledger-backend/internal/domain"
	"library-ledger-backend/internal/logger"
	"library-ledger-backend/internal/repository"
)

type ledgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) repository.LedgerRepository {
	return &ledgerRepository{db: db}
}

const entryColumns = `id, unit_id, holder_id, kind, opened_at, due_at, closed_at, renewals, note`

// Append locks the unit row, checks for conflicting open entries and inserts
// in one transaction. The partial unique index and the exclusion constraint
// reject anything that slips past the check.
func (r *ledgerRepository) Append(ctx context.Context, e *domain.LedgerEntry) error {
	if e.OpenedAt.IsZero() {
		e.OpenedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := lockUnit(ctx, tx, e.UnitID); err != nil {
		return err
	}

	var conflicts int
	if e.Kind.TimeBoxed() {
		query := `SELECT count(*) FROM ledger_entries
		          WHERE unit_id = $1 AND closed_at IS NULL AND opened_at < $3 AND $2 < due_at`
		if err := tx.QueryRowContext(ctx, query, e.UnitID, e.OpenedAt, e.DueAt).Scan(&conflicts); err != nil {
			return err
		}
		if conflicts > 0 {
			return domain.ErrOverlap
		}
	} else {
		query := `SELECT count(*) FROM ledger_entries WHERE unit_id = $1 AND closed_at IS NULL`
		if err := tx.QueryRowContext(ctx, query, e.UnitID).Scan(&conflicts); err != nil {
			return err
		}
		if conflicts > 0 {
			return domain.ErrUnavailable
		}
	}

	id := uuid.NewString()
	query := `INSERT INTO ledger_entries (id, unit_id, holder_id, kind, opened_at, due_at, renewals, note)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	logger.DatabaseCall("ledger.append", query, "unit_id", e.UnitID, "kind", e.Kind)
	res, err := tx.ExecContext(ctx, query, id, e.UnitID, e.HolderID, e.Kind, e.OpenedAt, e.DueAt, e.Renewals, e.Note)
	var rows int64
	if err == nil {
		rows, _ = res.RowsAffected()
	}
	logger.DatabaseResult("ledger.append", rows, err, "entry_id", id)
	if err != nil {
		return translate(err, domain.ErrUnavailable)
	}
	if err := tx.Commit(); err != nil {
		return translate(err, domain.ErrUnavailable)
	}

	e.ID = id
	e.ClosedAt = nil
	return nil
}

func (r *ledgerRepository) Close(ctx context.Context, entryID string, closedAt time.Time) (*domain.LedgerEntry, error) {
	query := `UPDATE ledger_entries SET closed_at = $2 WHERE id = $1 AND closed_at IS NULL RETURNING ` + entryColumns
	e, err := scanEntry(r.db.QueryRowContext(ctx, query, entryID, closedAt))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.missOrState(ctx, entryID, domain.ErrAlreadyClosed)
	}
	if err != nil {
		return nil, translate(err, domain.ErrDuplicate)
	}
	return e, nil
}

// Extend only matches an open entry still within the limits, so concurrent
// renewals cannot both pass MaxRenewals.
func (r *ledgerRepository) Extend(ctx context.Context, entryID string, extra time.Duration, limits repository.RenewalLimits) (*domain.LedgerEntry, error) {
	query := `UPDATE ledger_entries
	          SET due_at = due_at + make_interval(secs => $2), renewals = renewals + 1
	          WHERE id = $1 AND closed_at IS NULL
	            AND ($3 = 0 OR renewals < $3)
	            AND ($4::timestamptz IS NULL OR due_at >= $4)
	          RETURNING ` + entryColumns
	overdueAt := sql.NullTime{Time: limits.OverdueAt, Valid: !limits.OverdueAt.IsZero()}
	e, err := scanEntry(r.db.QueryRowContext(ctx, query, entryID, extra.Seconds(), limits.MaxRenewals, overdueAt))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.extendRefusal(ctx, entryID)
	}
	if err != nil {
		return nil, translate(err, domain.ErrDuplicate)
	}
	return e, nil
}

// extendRefusal explains why a guarded Extend matched nothing.
func (r *ledgerRepository) extendRefusal(ctx context.Context, entryID string) error {
	e, err := r.Get(ctx, entryID)
	if err != nil {
		return err
	}
	if !e.IsOpen() {
		return domain.ErrNotActive
	}
	return domain.ErrNotEligible
}

// missOrState tells an unknown entry apart from a closed one after a
// conditional update matched nothing.
func (r *ledgerRepository) missOrState(ctx context.Context, entryID string, closed error) error {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE id = $1)`, entryID).Scan(&exists)
	if err != nil {
		return translate(err, domain.ErrDuplicate)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return closed
}

func (r *ledgerRepository) Get(ctx context.Context, entryID string) (*domain.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE id = $1`
	e, err := scanEntry(r.db.QueryRowContext(ctx, query, entryID))
	if err != nil {
		return nil, lookupErr(err)
	}
	return e, nil
}

func (r *ledgerRepository) ActiveFor(ctx context.Context, unitID string) (*domain.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries
	          WHERE unit_id = $1 AND closed_at IS NULL ORDER BY opened_at LIMIT 1`
	e, err := scanEntry(r.db.QueryRowContext(ctx, query, unitID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (r *ledgerRepository) OpenFor(ctx context.Context, unitID string) ([]domain.LedgerEntry, error) {
	return r.list(ctx, `WHERE unit_id = $1 AND closed_at IS NULL`, unitID)
}

func (r *ledgerRepository) OpenForHolder(ctx context.Context, holderID string) ([]domain.LedgerEntry, error) {
	return r.list(ctx, `WHERE holder_id = $1 AND closed_at IS NULL`, holderID)
}

func (r *ledgerRepository) HistoryForUnit(ctx context.Context, unitID string) ([]domain.LedgerEntry, error) {
	return r.list(ctx, `WHERE unit_id = $1`, unitID)
}

func (r *ledgerRepository) HistoryForHolder(ctx context.Context, holderID string) ([]domain.LedgerEntry, error) {
	return r.list(ctx, `WHERE holder_id = $1`, holderID)
}

func (r *ledgerRepository) OpenCheckoutsDueBefore(ctx context.Context, t time.Time) ([]domain.LedgerEntry, error) {
	return r.list(ctx, `WHERE closed_at IS NULL AND kind = 'checkout' AND due_at < $1`, t)
}

func (r *ledgerRepository) OpenReservationsEndedBefore(ctx context.Context, t time.Time) ([]domain.LedgerEntry, error) {
	return r.list(ctx, `WHERE closed_at IS NULL AND kind <> 'checkout' AND due_at < $1`, t)
}

func (r *ledgerRepository) list(ctx context.Context, where string, args ...any) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries ` + where + ` ORDER BY opened_at, id`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err, domain.ErrDuplicate)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func scanEntry(row scanner) (*domain.LedgerEntry, error) {
	var (
		e      domain.LedgerEntry
		closed sql.NullTime
	)
	err := row.Scan(&e.ID, &e.UnitID, &e.HolderID, &e.Kind, &e.OpenedAt, &e.DueAt, &closed, &e.Renewals, &e.Note)
	if err != nil {
		return nil, err
	}
	if closed.Valid {
		t := closed.Time
		e.ClosedAt = &t
	}
	return &e, nil
}
