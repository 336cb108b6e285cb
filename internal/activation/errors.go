package activation

import "github.com/aliuyar1234/govern/internal/apperrors"

var (
	ErrReviewerRequired      = apperrors.Authorization("reviewer_required", "only platform reviewers may activate or reject organizations")
	ErrOwnerRequired         = apperrors.Authorization("owner_required", "only the organization owner may do this")
	ErrResolutionNotFound    = apperrors.NotFound("resolution_not_found", "activation resolution not found")
	ErrResolutionNotApproved = apperrors.Precondition("resolution_not_approved", "activation resolution is not approved")
	ErrOrgNotSubmitted       = apperrors.Precondition("org_not_submitted", "organization is not submitted for review")
	ErrOrgNotOnboarding      = apperrors.Precondition("org_not_onboarding", "organization is no longer onboarding")
	ErrNotProvisional        = apperrors.Precondition("org_not_provisional", "organization is not a provisional organization")
	ErrNotReady              = apperrors.Precondition("org_not_ready", "organization readiness checklist is incomplete")
	ErrNothingToMigrate      = apperrors.Precondition("nothing_to_migrate", "no proposed governance answers to migrate")
	ErrUnknownConsent        = apperrors.Validation("unknown_consent", "unknown consent key")
	ErrInvalidAnswerKey      = apperrors.Validation("invalid_answer_key", "invalid governance answer key")
	ErrEmptyAnswers          = apperrors.Validation("empty_answers", "at least one governance answer is required")
)
