package orgs

import (
	"time"

	"github.com/google/uuid"
)

// OrgStatus is the lifecycle state of an organization.
type OrgStatus string

const (
	StatusOnboarding         OrgStatus = "ONBOARDING"
	StatusSubmittedForReview OrgStatus = "SUBMITTED_FOR_REVIEW"
	StatusActive             OrgStatus = "ACTIVE"
	StatusSuspended          OrgStatus = "SUSPENDED"
	StatusDeclined           OrgStatus = "DECLINED"
)

// OrgRole represents a user's role within an organization
type OrgRole string

const (
	RoleOwner  OrgRole = "OWNER"
	RoleAdmin  OrgRole = "ADMIN"
	RoleChair  OrgRole = "CHAIR"
	RoleMember OrgRole = "MEMBER"
)

func (r OrgRole) IsValid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleChair, RoleMember:
		return true
	}
	return false
}

// CanMutate returns true if the role may manage memberships and positions
func (r OrgRole) CanMutate() bool {
	return r == RoleOwner || r == RoleAdmin
}

// CanRunMeetings returns true if the role may manage meetings, agendas and votes
func (r OrgRole) CanRunMeetings() bool {
	return r == RoleOwner || r == RoleAdmin || r == RoleChair
}

// MemberStatus is the state of a membership. Only ACTIVE authorizes anything.
type MemberStatus string

const (
	MemberPending   MemberStatus = "PENDING"
	MemberActive    MemberStatus = "ACTIVE"
	MemberSuspended MemberStatus = "SUSPENDED"
	MemberLeft      MemberStatus = "LEFT"
)

func (s MemberStatus) IsValid() bool {
	switch s {
	case MemberPending, MemberActive, MemberSuspended, MemberLeft:
		return true
	}
	return false
}

// Org represents an organization in the system
type Org struct {
	ID                      uuid.UUID      `db:"id" json:"id"`
	Name                    string         `db:"name" json:"name"`
	Slug                    string         `db:"slug" json:"slug"`
	Status                  OrgStatus      `db:"status" json:"status"`
	Metadata                map[string]any `db:"metadata" json:"metadata"`
	ActivatedByResolutionID *uuid.UUID     `db:"activated_by_resolution_id" json:"activated_by_resolution_id,omitempty"`
	CreatedByUserID         uuid.UUID      `db:"created_by_user_id" json:"created_by_user_id"`
	CreatedAt               time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time      `db:"updated_at" json:"updated_at"`
}

// Membership represents a user's membership in an organization
type Membership struct {
	ID        uuid.UUID    `db:"id" json:"id"`
	OrgID     uuid.UUID    `db:"org_id" json:"org_id"`
	UserID    uuid.UUID    `db:"user_id" json:"user_id"`
	Role      OrgRole      `db:"role" json:"role"`
	Status    MemberStatus `db:"member_status" json:"member_status"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt time.Time    `db:"updated_at" json:"updated_at"`
}

// HoldsOwnership reports whether m counts toward the organization's owners.
// PENDING owners count so a provisional organization keeps someone to promote
// at activation.
func (m Membership) HoldsOwnership() bool {
	return m.Role == RoleOwner && (m.Status == MemberActive || m.Status == MemberPending)
}

// OwnsIn is HoldsOwnership for an organization in the given status. Once the
// organization is ACTIVE only an ACTIVE owner counts.
func (m Membership) OwnsIn(status OrgStatus) bool {
	if status == StatusActive {
		return m.Role == RoleOwner && m.Status == MemberActive
	}
	return m.HoldsOwnership()
}

// Position is a titled office held by a member, e.g. "Valdybos pirmininkas".
type Position struct {
	ID        uuid.UUID        `db:"id" json:"id"`
	OrgID     uuid.UUID        `db:"org_id" json:"org_id"`
	UserID    uuid.UUID        `db:"user_id" json:"user_id"`
	Title     string           `db:"title" json:"title"`
	Category  PositionCategory `db:"category" json:"category"`
	IsActive  bool             `db:"is_active" json:"is_active"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}
