package resolutions

import "github.com/aliuyar1234/govern/internal/apperrors"

var (
	ErrResolutionNotFound        = apperrors.NotFound("resolution_not_found", "resolution not found")
	ErrInvalidTransition         = apperrors.Precondition("invalid_transition", "resolution cannot move to the requested status")
	ErrNotDraft                  = apperrors.Precondition("resolution_not_draft", "project metadata can only be set while the resolution is a draft")
	ErrProjectAlreadyInitialized = apperrors.Precondition("project_already_initialized", "project metadata is already initialized")
	ErrNotApproved               = apperrors.Precondition("resolution_not_approved", "indicators can only be updated on an approved resolution")
	ErrVoteOpen                  = apperrors.Precondition("resolution_vote_open", "the resolution has an open vote")
	ErrMeetingBound              = apperrors.Precondition("resolution_meeting_bound", "meeting resolutions are decided through the meeting agenda")
	ErrIndicatorForbidden        = apperrors.Authorization("indicator_forbidden", "only board members or the chair may update indicators")
	ErrAuthorForbidden           = apperrors.Authorization("resolution_forbidden", "insufficient permissions for resolutions")
	ErrProgressOutOfRange        = apperrors.Validation("progress_out_of_range", "progress must be between 0 and 1")
	ErrNegativeBudget            = apperrors.Validation("negative_budget", "budgets must not be negative")
	ErrEmptyIndicator            = apperrors.Validation("empty_indicator", "at least one indicator value is required")
	ErrPhaseRequired             = apperrors.Validation("phase_required", "project phase is required")
	ErrTitleRequired             = apperrors.Validation("title_required", "resolution title is required")
	ErrInvalidVisibility         = apperrors.Validation("invalid_visibility", "invalid resolution visibility")
)
