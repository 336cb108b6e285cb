package orgs

import "github.com/aliuyar1234/govern/internal/apperrors"

var (
	ErrOrgNotFound             = apperrors.NotFound("org_not_found", "organization not found")
	ErrSlugConflict            = apperrors.Precondition("slug_conflict", "organization slug already exists")
	ErrInvalidSlug             = apperrors.Validation("invalid_slug", "invalid organization slug")
	ErrNotMember               = apperrors.Authorization("not_member", "user is not a member of this organization")
	ErrMembershipInactive      = apperrors.Authorization("membership_inactive", "membership is not active")
	ErrInsufficientPermissions = apperrors.Authorization("insufficient_permissions", "insufficient permissions")
	ErrMemberNotFound          = apperrors.NotFound("member_not_found", "member not found")
	ErrMemberExists            = apperrors.Precondition("member_exists", "user is already a member")
	ErrInvalidOrgRole          = apperrors.Validation("invalid_role", "invalid organization role")
	ErrInvalidMemberStatus     = apperrors.Validation("invalid_member_status", "invalid member status")
	ErrCannotDemoteLastOwner   = apperrors.Precondition("last_owner_demotion", "cannot demote last owner")
	ErrCannotRemoveLastOwner   = apperrors.Precondition("last_owner_removal", "cannot remove last owner")
	ErrInvalidPositionTitle    = apperrors.Validation("invalid_position_title", "position title is required")
)
