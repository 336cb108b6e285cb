package integration

import (
	"context"
	"testing"

	"github.com/aliuyar1234/govern/internal/activation"
	"github.com/aliuyar1234/govern/internal/apperrors"
	"github.com/aliuyar1234/govern/internal/auth"
	"github.com/aliuyar1234/govern/internal/orgs"
	"github.com/aliuyar1234/govern/internal/resolutions"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

var completeAnswers = map[string]any{
	"legal_form":     "association",
	"purpose":        "Maintain the Oak Street courtyard",
	"membership_fee": 12,
	"ga_notice_days": 14,
	"board_enabled":  false,
}

// reviewResolution inserts an APPROVED resolution in a separate review org.
func reviewResolution(t *testing.T, pool *pgxpool.Pool, status resolutions.Status) *resolutions.Resolution {
	t.Helper()
	review := seedActiveOrg(t, pool, "review-"+randomHex(t, 4), 0)
	res, err := resolutions.Insert(context.Background(), pool, resolutions.NewResolution{
		OrgID:           review.ID,
		Title:           "Admit applicant organization",
		Status:          status,
		CreatedByUserID: review.Owner.UserID,
	})
	require.NoError(t, err)
	return res
}

// submitOrg walks a new organization through onboarding up to review.
func submitOrg(t *testing.T, svc *activation.Service, orgSvc *orgs.Service, slug string) (*orgs.Org, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	founder := uuid.New()

	org, err := orgSvc.CreateWithOwner(ctx, "Applicant "+slug, slug, founder)
	require.NoError(t, err)
	require.Equal(t, orgs.StatusOnboarding, org.Status)
	require.True(t, activation.IsProvisional(org.Metadata))

	_, err = svc.SaveProposedAnswers(ctx, org.ID, founder, completeAnswers)
	require.NoError(t, err)
	for _, key := range activation.RequiredConsents {
		require.NoError(t, svc.AcceptConsent(ctx, org.ID, founder, key))
	}

	submitted, err := svc.SubmitForReview(ctx, org.ID, founder)
	require.NoError(t, err)
	require.Equal(t, orgs.StatusSubmittedForReview, submitted.Status)
	return submitted, founder
}

func TestIntegration_ActivationLifecycle(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)
	ctx := context.Background()
	svc := newServices(pool)

	org, founder := submitOrg(t, svc.Activation, svc.Orgs, "oak-street-assoc")
	res := reviewResolution(t, pool, resolutions.StatusApproved)
	reviewer := auth.Identity{UserID: uuid.New(), PlatformAdmin: true}

	bySlug, readiness, err := svc.Activation.GetReadiness(ctx, "  OAK-STREET-ASSOC ", auth.Identity{UserID: founder})
	require.NoError(t, err)
	require.Equal(t, org.ID, bySlug.ID)
	require.True(t, readiness.AllReady)

	_, _, err = svc.Activation.GetReadiness(ctx, org.Slug, auth.Identity{UserID: uuid.New()})
	require.Error(t, err)

	_, err = svc.Activation.Activate(ctx, org.ID, res.ID, auth.Identity{UserID: founder})
	require.ErrorIs(t, err, activation.ErrReviewerRequired)

	result, err := svc.Activation.Activate(ctx, org.ID, res.ID, reviewer)
	require.NoError(t, err)
	require.False(t, result.Already)

	stored, err := orgs.LoadOrg(ctx, pool, org.ID, false)
	require.NoError(t, err)
	require.Equal(t, orgs.StatusActive, stored.Status)
	require.NotNil(t, stored.ActivatedByResolutionID)
	require.Equal(t, res.ID, *stored.ActivatedByResolutionID)
	require.NoError(t, activation.VerifyActivated(stored))
	require.False(t, activation.IsProvisional(stored.Metadata))

	governance, ok := stored.Metadata["governance"].(map[string]any)
	require.True(t, ok)
	require.NotContains(t, governance, "proposed")
	require.Equal(t, "association", governance["legal_form"])
	require.NotContains(t, stored.Metadata, "fact")

	require.Equal(t, 1, countRows(t, pool, `
		SELECT COUNT(*) FROM org_memberships
		WHERE org_id = $1 AND user_id = $2 AND role = 'OWNER' AND member_status = 'ACTIVE'
	`, org.ID, founder))
	require.Equal(t, 1, countRows(t, pool, `
		SELECT COUNT(*) FROM org_applications WHERE org_id = $1 AND status = 'APPROVED'
	`, org.ID))

	again, err := svc.Activation.Activate(ctx, org.ID, res.ID, reviewer)
	require.NoError(t, err)
	require.True(t, again.Already)
	require.Equal(t, orgs.StatusActive, again.Org.Status)

	other := reviewResolution(t, pool, resolutions.StatusApproved)
	_, err = svc.Activation.Activate(ctx, org.ID, other.ID, reviewer)
	require.ErrorIs(t, err, activation.ErrOrgNotSubmitted)
}

func TestIntegration_ActivationPreconditions(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)
	ctx := context.Background()
	svc := newServices(pool)
	reviewer := auth.Identity{UserID: uuid.New(), PlatformAdmin: true}

	founder := uuid.New()
	org, err := svc.Orgs.CreateWithOwner(ctx, "Half Done", "half-done", founder)
	require.NoError(t, err)

	_, err = svc.Activation.SaveProposedAnswers(ctx, org.ID, founder, map[string]any{"Legal Form": "x"})
	require.ErrorIs(t, err, activation.ErrInvalidAnswerKey)

	_, err = svc.Activation.SaveProposedAnswers(ctx, org.ID, uuid.New(), map[string]any{"purpose": "x"})
	require.Error(t, err)

	proposed, err := svc.Activation.SaveProposedAnswers(ctx, org.ID, founder, map[string]any{"purpose": "Parks", "board_enabled": true})
	require.NoError(t, err)
	require.Equal(t, "Parks", proposed["purpose"])

	proposed, err = svc.Activation.SaveProposedAnswers(ctx, org.ID, founder, map[string]any{"legal_form": "association"})
	require.NoError(t, err)
	require.Equal(t, "Parks", proposed["purpose"])
	require.Equal(t, "association", proposed["legal_form"])

	err = svc.Activation.AcceptConsent(ctx, org.ID, founder, "marketing")
	require.ErrorIs(t, err, activation.ErrUnknownConsent)

	_, err = svc.Activation.SubmitForReview(ctx, org.ID, founder)
	require.ErrorIs(t, err, activation.ErrNotReady)
	failing, ok := detailsOf(t, err)["failing"].([]string)
	require.True(t, ok)
	require.Contains(t, failing, activation.ItemGovernanceAnswers)
	require.Contains(t, failing, activation.ItemBoardMembers)

	res := reviewResolution(t, pool, resolutions.StatusApproved)
	_, err = svc.Activation.Activate(ctx, org.ID, res.ID, reviewer)
	require.ErrorIs(t, err, activation.ErrOrgNotSubmitted)

	draft := reviewResolution(t, pool, resolutions.StatusDraft)
	_, err = svc.Activation.Activate(ctx, org.ID, draft.ID, reviewer)
	require.ErrorIs(t, err, activation.ErrResolutionNotApproved)

	_, err = svc.Activation.Activate(ctx, org.ID, uuid.New(), reviewer)
	require.ErrorIs(t, err, activation.ErrResolutionNotFound)
	require.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))

	stored, err := orgs.LoadOrg(ctx, pool, org.ID, false)
	require.NoError(t, err)
	require.Equal(t, orgs.StatusOnboarding, stored.Status)
	require.True(t, activation.IsProvisional(stored.Metadata))
}

func TestIntegration_RejectIsIdempotent(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)
	ctx := context.Background()
	svc := newServices(pool)
	reviewer := auth.Identity{UserID: uuid.New(), PlatformAdmin: true}

	org, _ := submitOrg(t, svc.Activation, svc.Orgs, "declined-assoc")

	first, err := svc.Activation.Reject(ctx, org.ID, nil, reviewer)
	require.NoError(t, err)
	require.False(t, first.Already)
	require.Equal(t, orgs.StatusDeclined, first.Org.Status)
	require.NotNil(t, activation.ProposedAnswers(first.Org.Metadata))

	second, err := svc.Activation.Reject(ctx, org.ID, nil, reviewer)
	require.NoError(t, err)
	require.True(t, second.Already)

	require.Equal(t, 1, countRows(t, pool, `
		SELECT COUNT(*) FROM org_applications WHERE org_id = $1 AND status = 'DECLINED'
	`, org.ID))

	res := reviewResolution(t, pool, resolutions.StatusApproved)
	_, err = svc.Activation.Activate(ctx, org.ID, res.ID, reviewer)
	require.ErrorIs(t, err, activation.ErrOrgNotSubmitted)
}
