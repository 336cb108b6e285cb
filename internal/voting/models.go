package voting

import (
	"time"

	"github.com/aliuyar1234/govern/internal/resolutions"
	"github.com/google/uuid"
)

type Kind string

const (
	KindGA      Kind = "GA"
	KindOpinion Kind = "OPINION"
)

func (k Kind) IsValid() bool {
	return k == KindGA || k == KindOpinion
}

type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

type Choice string

const (
	ChoiceFor     Choice = "FOR"
	ChoiceAgainst Choice = "AGAINST"
	ChoiceAbstain Choice = "ABSTAIN"
)

func (c Choice) IsValid() bool {
	switch c {
	case ChoiceFor, ChoiceAgainst, ChoiceAbstain:
		return true
	}
	return false
}

type Channel string

const (
	ChannelRemote   Channel = "REMOTE"
	ChannelInPerson Channel = "IN_PERSON"

	// ChannelAuto marks ABSTAIN ballots registered at close for participants
	// who did not vote. Callers can never cast on it.
	ChannelAuto Channel = "AUTO"
)

func (c Channel) IsCastable() bool {
	return c == ChannelRemote || c == ChannelInPerson
}

// Tally is the count of choices a vote closed with.
type Tally struct {
	For     int `json:"for"`
	Against int `json:"against"`
	Abstain int `json:"abstain"`
}

func (t Tally) Total() int {
	return t.For + t.Against + t.Abstain
}

// DecideOutcome approves iff FOR outnumbers AGAINST. ABSTAIN is reported but
// is not part of the comparison, and a tie rejects.
func DecideOutcome(t Tally) resolutions.Status {
	return resolutions.Outcome(t.For > t.Against)
}

// LiveTotals are aggregate head-count results entered for in-person voting.
type LiveTotals struct {
	For     int `json:"for"`
	Against int `json:"against"`
	Abstain int `json:"abstain"`
}

// DeriveLiveTotals computes FOR as attendees - against - abstain and rejects
// totals that do not fit in the room.
func DeriveLiveTotals(attendees, against, abstain int) (LiveTotals, error) {
	if against < 0 || abstain < 0 {
		return LiveTotals{}, ErrNegativeTotals
	}
	forCount := attendees - against - abstain
	if forCount < 0 {
		return LiveTotals{}, ErrTotalsExceedAttendance.WithDetails(map[string]any{
			"attendees": attendees,
			"against":   against,
			"abstain":   abstain,
		})
	}
	return LiveTotals{For: forCount, Against: against, Abstain: abstain}, nil
}

type Vote struct {
	ID                uuid.UUID           `json:"id"`
	OrgID             uuid.UUID           `json:"org_id"`
	ResolutionID      uuid.UUID           `json:"resolution_id"`
	MeetingID         *uuid.UUID          `json:"meeting_id,omitempty"`
	Kind              Kind                `json:"kind"`
	Status            Status              `json:"status"`
	OpensAt           time.Time           `json:"opens_at"`
	ClosesAt          *time.Time          `json:"closes_at,omitempty"`
	LiveTotals        *LiveTotals         `json:"live_totals,omitempty"`
	Outcome           *resolutions.Status `json:"outcome,omitempty"`
	Tally             *Tally              `json:"tally,omitempty"`
	AbstainBackfilled int                 `json:"abstain_backfilled"`
	ClosedAt          *time.Time          `json:"closed_at,omitempty"`
	CreatedByUserID   uuid.UUID           `json:"created_by_user_id"`
	CreatedAt         time.Time           `json:"created_at"`
}

type Ballot struct {
	ID           uuid.UUID `json:"id"`
	VoteID       uuid.UUID `json:"vote_id"`
	MembershipID uuid.UUID `json:"membership_id"`
	Choice       Choice    `json:"choice"`
	Channel      Channel   `json:"channel"`
	Overwritten  bool      `json:"overwritten"`
	CastAt       time.Time `json:"cast_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CloseResult is what closing a vote reports, on the first call and on every
// retry after it.
type CloseResult struct {
	VoteID            uuid.UUID          `json:"vote_id"`
	Outcome           resolutions.Status `json:"outcome"`
	ResolutionStatus  resolutions.Status `json:"resolution_status"`
	Tally             Tally              `json:"tally"`
	AbstainBackfilled int                `json:"abstain_backfilled"`
	AlreadyClosed     bool               `json:"already_closed"`
}

// BulkCloseResult reports a close over many votes. FirstError is the first
// failure; the other votes were still attempted.
type BulkCloseResult struct {
	ClosedCount int   `json:"closed_count"`
	FailedCount int   `json:"failed_count"`
	FirstError  error `json:"-"`
}
