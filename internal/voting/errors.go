package voting

import "github.com/aliuyar1234/govern/internal/apperrors"

var (
	ErrVoteNotFound             = apperrors.NotFound("vote_not_found", "vote not found")
	ErrInvalidKind              = apperrors.Validation("invalid_vote_kind", "invalid vote kind")
	ErrInvalidChoice            = apperrors.Validation("invalid_choice", "choice must be FOR, AGAINST or ABSTAIN")
	ErrInvalidWindow            = apperrors.Validation("invalid_vote_window", "closes_at must be after opens_at")
	ErrNegativeTotals           = apperrors.Validation("negative_totals", "live totals must not be negative")
	ErrTotalsExceedAttendance   = apperrors.Validation("totals_exceed_attendance", "live totals exceed the number of attendees")
	ErrResolutionNotProposed    = apperrors.Precondition("resolution_not_proposed", "votes can only be opened on a proposed resolution")
	ErrVoteAlreadyOpen          = apperrors.Precondition("vote_already_open", "the resolution already has an open vote")
	ErrGAVoteRequiresMeeting    = apperrors.Precondition("ga_vote_requires_meeting", "a general assembly vote must belong to a meeting resolution")
	ErrLiveTotalsRequireMeeting = apperrors.Precondition("live_totals_require_meeting", "live totals are only accepted for meeting votes")
	ErrVoteNotOpen              = apperrors.Precondition("vote_not_open", "vote is not open")
	ErrVoteHasBallots           = apperrors.Precondition("vote_has_ballots", "live totals cannot replace individual ballots already cast")
	ErrMeetingCompleted         = apperrors.Precondition("meeting_completed", "meeting is already completed")
	ErrVoteForbidden            = apperrors.Authorization("vote_forbidden", "insufficient permissions for votes")
	ErrIneligibleMembership     = apperrors.Authorization("ballot_not_allowed", "caller may not vote")
	ErrIneligibleVoteState      = apperrors.Precondition("ballot_not_accepted", "vote does not accept ballots")
	ErrIneligibleChannel        = apperrors.Validation("ballot_invalid_channel", "invalid voting channel")
)
