package meetings

import "github.com/aliuyar1234/govern/internal/apperrors"

var (
	ErrMeetingNotFound              = apperrors.NotFound("meeting_not_found", "meeting not found")
	ErrAgendaItemNotFound           = apperrors.NotFound("agenda_item_not_found", "agenda item not found")
	ErrInvalidMeetingType           = apperrors.Validation("invalid_meeting_type", "invalid meeting type")
	ErrTitleRequired                = apperrors.Validation("title_required", "title is required")
	ErrMeetingCompleted             = apperrors.Precondition("meeting_completed", "meeting is already completed")
	ErrProceduralSequenceIncomplete = apperrors.Precondition("procedural_sequence_incomplete", "procedural agenda items 1-3 must be approved first")
	ErrAgendaItemHasOpenVote        = apperrors.Precondition("agenda_item_vote_open", "agenda item has an open vote")
	ErrVotesStillOpen               = apperrors.Precondition("meeting_votes_open", "some votes of the meeting could not be closed")
	ErrMeetingForbidden             = apperrors.Authorization("meeting_forbidden", "insufficient permissions for meetings")
	ErrMembershipNotInOrg           = apperrors.NotFound("membership_not_found", "membership not found in this organization")
	ErrParticipantInactive          = apperrors.Precondition("membership_inactive", "only active members can take part in a meeting")
)
