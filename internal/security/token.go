package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"library-ledger-backend/internal/domain"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

const (
	issuer   = "library-ledger"
	audience = "library-api"
)

// MemberClaims identifies the signed-in member and their role.
type MemberClaims struct {
	MemberID string      `json:"member_id"`
	Role     domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// Identity returns the principal carried by the token.
func (c *MemberClaims) Identity() domain.Identity {
	return domain.Identity{ID: c.MemberID, Role: c.Role}
}

type TokenManager interface {
	GenerateAccessToken(id domain.Identity) (string, time.Time, error)
	ValidateToken(tokenString string) (*MemberClaims, error)
}

type tokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenManager(secret string, ttl time.Duration) TokenManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &tokenManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// GenerateAccessToken signs an HS256 token and returns it with its expiry.
func (m *tokenManager) GenerateAccessToken(id domain.Identity) (string, time.Time, error) {
	issued := m.now()
	expires := issued.Add(m.ttl)
	claims := MemberClaims{
		MemberID: id.ID,
		Role:     id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(issued),
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audience},
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

func (m *tokenManager) ValidateToken(tokenString string) (*MemberClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &MemberClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithAudience(audience), jwt.WithTimeFunc(m.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*MemberClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.MemberID == "" {
		claims.MemberID = claims.Subject
	}
	if claims.MemberID == "" || !claims.Role.Valid() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
