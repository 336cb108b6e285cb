package activation

import (
	"testing"

	"github.com/aliuyar1234/govern/internal/apperrors"
	"github.com/aliuyar1234/govern/internal/orgs"
	"github.com/stretchr/testify/require"
)

func completeAnswers() map[string]any {
	return map[string]any{
		"legal_form":     "association",
		"purpose":        "Community garden",
		"membership_fee": 12.5,
		"ga_notice_days": 14,
		"board_enabled":  false,
	}
}

func allConsents() map[string]bool {
	return map[string]bool{
		"terms_of_service":  true,
		"data_processing":   true,
		"statutes_truthful": true,
	}
}

func item(t *testing.T, r Readiness, key string) ChecklistItem {
	t.Helper()
	for _, it := range r.Checklist {
		if it.Key == key {
			return it
		}
	}
	t.Fatalf("checklist item %q not found", key)
	return ChecklistItem{}
}

func TestEvaluateReadiness_AllReady(t *testing.T) {
	r := EvaluateReadiness(ReadinessInput{Proposed: completeAnswers(), Consents: allConsents()})
	require.True(t, r.AllReady)
	require.Empty(t, r.Failing())

	board := item(t, r, ItemBoardMembers)
	require.False(t, board.Applicable)
	require.True(t, board.Passed)
}

func TestEvaluateReadiness_MissingAnswers(t *testing.T) {
	answers := completeAnswers()
	delete(answers, "purpose")
	answers["legal_form"] = "   "

	r := EvaluateReadiness(ReadinessInput{Proposed: answers, Consents: allConsents()})
	require.False(t, r.AllReady)
	require.Equal(t, []string{ItemGovernanceAnswers}, r.Failing())
	require.ElementsMatch(t, []string{"legal_form", "purpose"}, item(t, r, ItemGovernanceAnswers).Missing)
}

func TestEvaluateReadiness_NilProposed(t *testing.T) {
	r := EvaluateReadiness(ReadinessInput{})
	require.False(t, r.AllReady)
	require.Len(t, item(t, r, ItemGovernanceAnswers).Missing, len(RequiredAnswers))
	require.Contains(t, r.Failing(), "consent:terms_of_service")
}

func TestEvaluateReadiness_ConsentMissing(t *testing.T) {
	consents := allConsents()
	consents["data_processing"] = false

	r := EvaluateReadiness(ReadinessInput{Proposed: completeAnswers(), Consents: consents})
	require.False(t, r.AllReady)
	require.Equal(t, []string{"consent:data_processing"}, r.Failing())
}

func TestEvaluateReadiness_BoardRequired(t *testing.T) {
	for _, enabled := range []any{true, "yes", "TAIP", " true "} {
		answers := completeAnswers()
		answers["board_enabled"] = enabled

		r := EvaluateReadiness(ReadinessInput{Proposed: answers, Consents: allConsents()})
		require.False(t, r.AllReady, "board_enabled=%v", enabled)
		require.Equal(t, []string{ItemBoardMembers}, r.Failing())

		r = EvaluateReadiness(ReadinessInput{Proposed: answers, Consents: allConsents(), BoardPositions: 2})
		require.True(t, r.AllReady)
		require.True(t, item(t, r, ItemBoardMembers).Applicable)
	}
}

func TestEvaluateReadiness_BoardDisabledValues(t *testing.T) {
	for _, disabled := range []any{false, "no", "ne", nil, 1} {
		answers := completeAnswers()
		answers["board_enabled"] = disabled
		require.False(t, boardEnabled(answers), "board_enabled=%v", disabled)
	}
}

func TestIsRequiredConsent(t *testing.T) {
	require.True(t, isRequiredConsent("statutes_truthful"))
	require.False(t, isRequiredConsent("marketing"))
}

func TestAnswerKeyFormat(t *testing.T) {
	for _, key := range RequiredAnswers {
		require.True(t, answerKeyRegex.MatchString(key), key)
	}
	for _, key := range []string{"", "Legal", "1st", "a-b", "a.b"} {
		require.False(t, answerKeyRegex.MatchString(key), key)
	}
}

func provisionalMeta() map[string]any {
	return map[string]any{
		"fact": map[string]any{"pre_org": true, "source": "intake"},
		"governance": map[string]any{
			"legal_form": "foundation",
			"proposed":   completeAnswers(),
		},
		"branding": map[string]any{"color": "green"},
	}
}

func TestIsProvisional(t *testing.T) {
	require.True(t, IsProvisional(provisionalMeta()))
	require.False(t, IsProvisional(map[string]any{}))
	require.False(t, IsProvisional(nil))
	require.False(t, IsProvisional(map[string]any{"fact": map[string]any{"pre_org": "true"}}))
}

func TestMigrateGovernance(t *testing.T) {
	meta := provisionalMeta()

	out, err := MigrateGovernance(meta)
	require.NoError(t, err)

	governance := out["governance"].(map[string]any)
	require.NotContains(t, governance, "proposed")
	require.Equal(t, "association", governance["legal_form"])
	require.Equal(t, 14, governance["ga_notice_days"])

	fact := out["fact"].(map[string]any)
	require.NotContains(t, fact, "pre_org")
	require.Equal(t, "intake", fact["source"])
	require.Equal(t, meta["branding"], out["branding"])

	// the input is untouched
	require.True(t, IsProvisional(meta))
	require.NotNil(t, ProposedAnswers(meta))
}

func TestMigrateGovernance_DropsEmptyFact(t *testing.T) {
	meta := map[string]any{
		"fact":       map[string]any{"pre_org": true},
		"governance": map[string]any{"proposed": map[string]any{"purpose": "x"}},
	}

	out, err := MigrateGovernance(meta)
	require.NoError(t, err)
	require.NotContains(t, out, "fact")
	require.Equal(t, map[string]any{"purpose": "x"}, out["governance"])
}

func TestMigrateGovernance_NothingProposed(t *testing.T) {
	_, err := MigrateGovernance(map[string]any{"fact": map[string]any{"pre_org": true}})
	require.ErrorIs(t, err, ErrNothingToMigrate)
	require.Equal(t, apperrors.KindPrecondition, apperrors.KindOf(err))
}

func TestVerifyActivated(t *testing.T) {
	migrated, err := MigrateGovernance(provisionalMeta())
	require.NoError(t, err)

	require.NoError(t, VerifyActivated(&orgs.Org{Status: orgs.StatusActive, Metadata: migrated}))

	err = VerifyActivated(&orgs.Org{Status: orgs.StatusSubmittedForReview, Metadata: provisionalMeta()})
	require.ErrorIs(t, err, errActivationNotVisible)
	require.Contains(t, err.Error(), "governance.proposed present")
	require.Contains(t, err.Error(), "fact.pre_org present")
}

func TestErrorKinds(t *testing.T) {
	require.Equal(t, apperrors.KindAuthorization, apperrors.KindOf(ErrReviewerRequired))
	require.Equal(t, apperrors.KindNotFound, apperrors.KindOf(ErrResolutionNotFound))
	require.Equal(t, apperrors.KindPrecondition, apperrors.KindOf(ErrNotReady.WithDetails(map[string]any{"failing": []string{"x"}})))
	require.Equal(t, apperrors.KindValidation, apperrors.KindOf(ErrUnknownConsent))
}
