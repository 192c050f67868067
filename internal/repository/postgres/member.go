package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"library-ledger-backend/internal/domain"
	"library-ledger-backend/internal/repository"
)

type memberRepository struct {
	db *sql.DB
}

func NewMemberRepository(db *sql.DB) repository.MemberRepository {
	return &memberRepository{db: db}
}

const memberColumns = `id, name, email, password_hash, role, status, created_on`

func (r *memberRepository) Create(ctx context.Context, m *domain.Member) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedOn.IsZero() {
		m.CreatedOn = time.Now().UTC()
	}
	query := `INSERT INTO members (` + memberColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.ExecContext(ctx, query, m.ID, m.Name, m.Email, m.PasswordHash, m.Role, m.Status, m.CreatedOn)
	if err != nil {
		return translate(err, domain.ErrDuplicate)
	}
	return nil
}

func (r *memberRepository) GetByID(ctx context.Context, id string) (*domain.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE id = $1`
	return scanMember(r.db.QueryRowContext(ctx, query, id))
}

func (r *memberRepository) GetByEmail(ctx context.Context, email string) (*domain.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE LOWER(email) = LOWER($1)`
	return scanMember(r.db.QueryRowContext(ctx, query, email))
}

func (r *memberRepository) UpdateStatus(ctx context.Context, id string, status domain.MemberStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE members SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanMember(row *sql.Row) (*domain.Member, error) {
	var m domain.Member
	err := row.Scan(&m.ID, &m.Name, &m.Email, &m.PasswordHash, &m.Role, &m.Status, &m.CreatedOn)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
