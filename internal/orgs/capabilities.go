package orgs

import (
	"strings"

	"github.com/google/uuid"
)

// PositionCategory is assigned once, when a position is written.
type PositionCategory string

const (
	CategoryBoard PositionCategory = "BOARD"
	CategoryOther PositionCategory = "OTHER"
)

// boardTitleMarkers identify board offices in English and Lithuanian titles
// ("Valdybos narys", "Tarybos pirmininkas").
var boardTitleMarkers = []string{"BOARD", "VALDYB", "TARYB"}

// ClassifyPositionTitle maps a free-form title onto a PositionCategory.
func ClassifyPositionTitle(title string) PositionCategory {
	upper := strings.ToUpper(title)
	for _, marker := range boardTitleMarkers {
		if strings.Contains(upper, marker) {
			return CategoryBoard
		}
	}
	return CategoryOther
}

// Capability is a governance authority derived from positions, independent of role.
type Capability uint8

const (
	CapBoard Capability = 1 << iota
)

// CapabilitySet is resolved once per request and passed to downstream checks.
type CapabilitySet uint8

func (s CapabilitySet) Has(c Capability) bool {
	return uint8(s)&uint8(c) != 0
}

func (s CapabilitySet) With(c Capability) CapabilitySet {
	return CapabilitySet(uint8(s) | uint8(c))
}

// CapabilitiesFor derives the capability set from a member's position categories.
func CapabilitiesFor(categories []PositionCategory) CapabilitySet {
	var set CapabilitySet
	for _, c := range categories {
		if c == CategoryBoard {
			set = set.With(CapBoard)
		}
	}
	return set
}

// Caller is the resolved governance identity of a user within one organization.
type Caller struct {
	MembershipID uuid.UUID
	OrgID        uuid.UUID
	UserID       uuid.UUID
	Role         OrgRole
	Status       MemberStatus
	Capabilities CapabilitySet
}

func (c *Caller) IsActive() bool {
	return c != nil && c.Status == MemberActive
}

// IsBoard reports whether the caller holds an active board position.
func (c *Caller) IsBoard() bool {
	return c.IsActive() && c.Capabilities.Has(CapBoard)
}

// CanOverseeIndicators is the authority required to report progress on approved resolutions.
func (c *Caller) CanOverseeIndicators() bool {
	return c.IsActive() && (c.Capabilities.Has(CapBoard) || c.Role == RoleChair)
}
