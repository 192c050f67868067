package service_test

import (
	"context"
	"time"

	"library-ledger-backend/internal/domain"
	"library-ledger-backend/internal/events"
	"library-ledger-backend/internal/security"

	"github.com/stretchr/testify/mock"
)

// MockPublisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, ev events.Event) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	return m.Called().Error(0)
}

// MockMemberRepo
type MockMemberRepo struct {
	mock.Mock
}

func (m *MockMemberRepo) Create(ctx context.Context, member *domain.Member) error {
	args := m.Called(ctx, member)
	return args.Error(0)
}

func (m *MockMemberRepo) GetByID(ctx context.Context, id string) (*domain.Member, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Member), args.Error(1)
}

func (m *MockMemberRepo) GetByEmail(ctx context.Context, email string) (*domain.Member, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Member), args.Error(1)
}

func (m *MockMemberRepo) UpdateStatus(ctx context.Context, id string, status domain.MemberStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

// MockTokenManager
type MockTokenManager struct {
	mock.Mock
}

func (m *MockTokenManager) GenerateAccessToken(id domain.Identity) (string, time.Time, error) {
	args := m.Called(id)
	return args.String(0), args.Get(1).(time.Time), args.Error(2)
}

func (m *MockTokenManager) ValidateToken(tokenString string) (*security.MemberClaims, error) {
	args := m.Called(tokenString)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*security.MemberClaims), args.Error(1)
}
