package voting

import (
	"time"

	"github.com/aliuyar1234/govern/internal/apperrors"
	"github.com/aliuyar1234/govern/internal/orgs"
)

const (
	ReasonVoteNotFound        = "vote_not_found"
	ReasonNotMember           = "not_member"
	ReasonMembershipInactive  = "membership_inactive"
	ReasonVoteClosed          = "vote_closed"
	ReasonVoteNotOpenYet      = "vote_not_open_yet"
	ReasonVoteDeadlinePassed  = "vote_deadline_passed"
	ReasonLiveTotalsMode      = "live_totals_mode"
	ReasonInvalidChannel      = "invalid_channel"
	ReasonNotRegisteredRemote = "not_registered_remote"
	ReasonNotPresent          = "not_present"
)

// Eligibility is the answer to "may this caller cast a ballot now".
type Eligibility struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Details string `json:"details,omitempty"`
}

func allow() Eligibility {
	return Eligibility{Allowed: true}
}

func deny(reason, details string) Eligibility {
	return Eligibility{Reason: reason, Details: details}
}

// Participation is the caller's live record for a meeting vote.
type Participation struct {
	RegisteredRemote bool
	Present          bool
}

// Evaluate decides eligibility from the vote, the caller's current membership
// and participation. It is evaluated at cast time, never from a snapshot taken
// when the vote opened.
func Evaluate(vote *Vote, caller *orgs.Caller, channel Channel, p Participation, now time.Time) Eligibility {
	switch {
	case vote == nil:
		return deny(ReasonVoteNotFound, "The vote does not exist.")
	case caller == nil:
		return deny(ReasonNotMember, "You are not a member of this organization.")
	case !caller.IsActive():
		return deny(ReasonMembershipInactive, "Only active members may vote; your membership is "+string(caller.Status)+".")
	case vote.Status == StatusClosed:
		return deny(ReasonVoteClosed, "The vote is already closed.")
	case now.Before(vote.OpensAt):
		return deny(ReasonVoteNotOpenYet, "The vote opens at "+vote.OpensAt.UTC().Format(time.RFC3339)+".")
	case vote.ClosesAt != nil && !now.Before(*vote.ClosesAt):
		return deny(ReasonVoteDeadlinePassed, "The voting deadline has passed.")
	case vote.LiveTotals != nil:
		return deny(ReasonLiveTotalsMode, "This vote was counted by show of hands; individual ballots are not accepted.")
	case !channel.IsCastable():
		return deny(ReasonInvalidChannel, "The channel must be REMOTE or IN_PERSON.")
	}

	if vote.MeetingID == nil {
		if channel != ChannelRemote {
			return deny(ReasonInvalidChannel, "Votes outside a meeting are cast remotely.")
		}
		return allow()
	}

	if channel == ChannelRemote && !p.RegisteredRemote {
		return deny(ReasonNotRegisteredRemote, "You are not registered as a remote voter for this meeting.")
	}
	if channel == ChannelInPerson && !p.Present {
		return deny(ReasonNotPresent, "You are not marked present at this meeting.")
	}
	return allow()
}

// Err converts a denial into a typed error carrying the reason.
func (e Eligibility) Err() error {
	if e.Allowed {
		return nil
	}

	var base *apperrors.Error
	switch e.Reason {
	case ReasonVoteNotFound:
		base = ErrVoteNotFound
	case ReasonNotMember, ReasonMembershipInactive, ReasonNotRegisteredRemote, ReasonNotPresent:
		base = ErrIneligibleMembership
	case ReasonInvalidChannel:
		base = ErrIneligibleChannel
	default:
		base = ErrIneligibleVoteState
	}
	return base.WithDetails(map[string]any{"reason": e.Reason, "details": e.Details})
}
