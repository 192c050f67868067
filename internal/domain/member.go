package domain

import "time"

type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleMember || r == RoleAdmin
}

// Identity is the authenticated principal passed into every coordinator call.
type Identity struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// CanActFor reports whether the identity may act on behalf of holderID.
func (i Identity) CanActFor(holderID string) bool {
	return i.IsAdmin() || (i.ID != "" && i.ID == holderID)
}

type MemberStatus string

const (
	MemberStatusActive    MemberStatus = "active"
	MemberStatusInactive  MemberStatus = "inactive"
	MemberStatusSuspended MemberStatus = "suspended"
	MemberStatusPending   MemberStatus = "pending"
)

type Member struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Email        string       `json:"email"`
	PasswordHash string       `json:"-"`
	Role         Role         `json:"role"`
	Status       MemberStatus `json:"status"`
	CreatedOn    time.Time    `json:"created_on"`
}

func (m Member) Identity() Identity {
	return Identity{ID: m.ID, Role: m.Role}
}
