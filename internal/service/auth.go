package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"library-ledger-backend/internal/domain"
	"library-ledger-backend/internal/logger"
	"library-ledger-backend/internal/repository"
	"library-ledger-backend/internal/security"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidSignup      = errors.New("name, valid email and a password of at least 8 characters are required")
)

const minPasswordLength = 8

type authService struct {
	memberRepo repository.MemberRepository
	tokens     security.TokenManager
}

func NewAuthService(memberRepo repository.MemberRepository, tokens security.TokenManager) AuthService {
	return &authService{memberRepo: memberRepo, tokens: tokens}
}

// Register creates an active member account. Admins are provisioned out of
// band, never through self sign-up.
func (s *authService) Register(ctx context.Context, name, email, password string) (*domain.Member, error) {
	m, err := s.create(ctx, name, email, password, domain.RoleMember)
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "Member registered", "member_id", m.ID)
	return m, nil
}

// Provision creates an account with an explicit role. It backs the admin
// CLI and is not reachable over HTTP.
func (s *authService) Provision(ctx context.Context, name, email, password string, role domain.Role) (*domain.Member, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role %q: %w", role, domain.ErrNotEligible)
	}
	m, err := s.create(ctx, name, email, password, role)
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "Member provisioned", "member_id", m.ID, "role", role)
	return m, nil
}

func (s *authService) create(ctx context.Context, name, email, password string, role domain.Role) (*domain.Member, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || len(password) < minPasswordLength {
		return nil, ErrInvalidSignup
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidSignup
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	m := &domain.Member{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		Status:       domain.MemberStatusActive,
	}
	if err := s.memberRepo.Create(ctx, m); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return m, nil
}

func (s *authService) Login(ctx context.Context, email, password string) (*domain.Member, string, time.Time, error) {
	m, err := s.memberRepo.GetByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, "", time.Time{}, ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", time.Time{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(m.PasswordHash), []byte(password)); err != nil {
		return nil, "", time.Time{}, ErrInvalidCredentials
	}

	token, expires, err := s.tokens.GenerateAccessToken(m.Identity())
	if err != nil {
		return nil, "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return m, token, expires, nil
}

func (s *authService) Me(ctx context.Context, memberID string) (*domain.Member, error) {
	return s.memberRepo.GetByID(ctx, memberID)
}

// SetMemberStatus suspends or reinstates a member. Open entries are left as
// they are; the new status only gates future checkouts and reservations.
func (s *authService) SetMemberStatus(ctx context.Context, actor domain.Identity, memberID string, status domain.MemberStatus) error {
	if !actor.IsAdmin() {
		return domain.ErrUnauthorized
	}
	switch status {
	case domain.MemberStatusActive, domain.MemberStatusInactive, domain.MemberStatusSuspended, domain.MemberStatusPending:
	default:
		return fmt.Errorf("unknown member status %q: %w", status, domain.ErrNotEligible)
	}
	if err := s.memberRepo.UpdateStatus(ctx, memberID, status); err != nil {
		return err
	}
	logger.InfoContext(ctx, "Member status changed", "member_id", memberID, "status", status, "actor_id", actor.ID)
	return nil
}
