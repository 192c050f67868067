package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"library-ledger-backend/internal/domain"
	"library-ledger-backend/internal/repository"
)

type resourceRepository struct {
	db *sql.DB
}

func NewResourceRepository(db *sql.DB) repository.ResourceRepository {
	return &resourceRepository{db: db}
}

const unitColumns = `id, kind, label, attributes, created_on, decommissioned_on`

func (r *resourceRepository) Register(ctx context.Context, u *domain.ResourceUnit) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedOn.IsZero() {
		u.CreatedOn = time.Now().UTC()
	}
	attrs, err := marshalAttributes(u.Attributes)
	if err != nil {
		return err
	}
	query := `INSERT INTO resource_units (id, kind, label, attributes, created_on) VALUES ($1, $2, $3, $4, $5)`
	_, err = r.db.ExecContext(ctx, query, u.ID, u.Kind, u.Label, attrs, u.CreatedOn)
	if err != nil {
		return translate(err, domain.ErrDuplicate)
	}
	return nil
}

func (r *resourceRepository) GetByID(ctx context.Context, id string) (*domain.ResourceUnit, error) {
	query := `SELECT ` + unitColumns + ` FROM resource_units WHERE id = $1 AND decommissioned_on IS NULL`
	u, err := scanUnit(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, lookupErr(err)
	}
	return u, nil
}

func (r *resourceRepository) List(ctx context.Context, filter domain.UnitFilter) ([]domain.ResourceUnit, error) {
	var (
		conds = []string{"decommissioned_on IS NULL"}
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.Kind != "" {
		add("kind = $%d", filter.Kind)
	}
	if filter.BookID != "" {
		add("attributes->>'"+domain.AttrBookID+"' = $%d", filter.BookID)
	}
	if filter.Section != "" {
		add("attributes->>'"+domain.AttrSection+"' = $%d", filter.Section)
	}
	if filter.SpotType != "" {
		add("attributes->>'"+domain.AttrSpotType+"' = $%d", filter.SpotType)
	}

	query := `SELECT ` + unitColumns + ` FROM resource_units WHERE ` + strings.Join(conds, " AND ") + ` ORDER BY created_on, id`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var units []domain.ResourceUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, *u)
	}
	return units, rows.Err()
}

func (r *resourceRepository) Decommission(ctx context.Context, id string, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := lockUnit(ctx, tx, id); err != nil {
		return err
	}

	var open int
	err = tx.QueryRowContext(ctx, `SELECT count(*) FROM ledger_entries WHERE unit_id = $1 AND closed_at IS NULL`, id).Scan(&open)
	if err != nil {
		return err
	}
	if open > 0 {
		return domain.ErrUnavailable
	}

	if _, err := tx.ExecContext(ctx, `UPDATE resource_units SET decommissioned_on = $1 WHERE id = $2`, at, id); err != nil {
		return err
	}
	return tx.Commit()
}

// lockUnit takes the row lock that serializes every ledger write for a unit.
func lockUnit(ctx context.Context, tx *sql.Tx, unitID string) error {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM resource_units WHERE id = $1 AND decommissioned_on IS NULL FOR UPDATE`, unitID).Scan(&id)
	if err != nil {
		return lookupErr(err)
	}
	return nil
}

func scanUnit(row scanner) (*domain.ResourceUnit, error) {
	var (
		u              domain.ResourceUnit
		attrs          []byte
		decommissioned sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Kind, &u.Label, &attrs, &u.CreatedOn, &decommissioned); err != nil {
		return nil, err
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &u.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes of unit %s: %w", u.ID, err)
		}
		if len(u.Attributes) == 0 {
			u.Attributes = nil
		}
	}
	if decommissioned.Valid {
		t := decommissioned.Time
		u.DecommissionedOn = &t
	}
	return &u, nil
}

func marshalAttributes(attrs map[string]string) ([]byte, error) {
	if attrs == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(attrs)
}
