package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aliuyar1234/govern/internal/apperrors"
	"github.com/aliuyar1234/govern/internal/meetings"
	"github.com/aliuyar1234/govern/internal/orgs"
	"github.com/aliuyar1234/govern/internal/resolutions"
	"github.com/aliuyar1234/govern/internal/voting"
	"github.com/stretchr/testify/require"
)

func detailsOf(t *testing.T, err error) map[string]any {
	t.Helper()
	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr), "expected *apperrors.Error, got %T", err)
	return appErr.Details
}

func ptr[T any](v T) *T {
	return &v
}

func TestIntegration_ProjectMetadataFrozenAfterDraft(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)
	ctx := context.Background()
	svc := newServices(pool)
	org := seedActiveOrg(t, pool, "p1-org", 1)

	res, err := svc.Resolutions.Create(ctx, org.ID, org.Owner.UserID, resolutions.NewResolution{Title: "Community garden"})
	require.NoError(t, err)

	_, err = svc.Resolutions.InitializeProject(ctx, res.ID, org.Owner.UserID, resolutions.ProjectInit{
		Phase:         "planning",
		Code:          ptr("CG-1"),
		BudgetPlanned: ptr(1200.0),
	})
	require.NoError(t, err)

	_, err = svc.Resolutions.InitializeProject(ctx, res.ID, org.Owner.UserID, resolutions.ProjectInit{Phase: "again"})
	require.ErrorIs(t, err, resolutions.ErrProjectAlreadyInitialized)

	_, err = svc.Resolutions.Propose(ctx, res.ID, org.Owner.UserID)
	require.NoError(t, err)

	var before string
	require.NoError(t, pool.QueryRow(ctx, `SELECT metadata::text FROM resolutions WHERE id = $1`, res.ID).Scan(&before))

	_, err = svc.Resolutions.InitializeProject(ctx, res.ID, org.Owner.UserID, resolutions.ProjectInit{Phase: "execution"})
	require.ErrorIs(t, err, resolutions.ErrNotDraft)
	require.Equal(t, apperrors.KindPrecondition, apperrors.KindOf(err))

	// A malformed request on a non-draft still reports the status problem.
	_, err = svc.Resolutions.InitializeProject(ctx, res.ID, org.Owner.UserID, resolutions.ProjectInit{Phase: "  "})
	require.ErrorIs(t, err, resolutions.ErrNotDraft)

	var after string
	require.NoError(t, pool.QueryRow(ctx, `SELECT metadata::text FROM resolutions WHERE id = $1`, res.ID).Scan(&after))
	require.Equal(t, before, after)
}

func TestIntegration_IndicatorGating(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)
	ctx := context.Background()
	svc := newServices(pool)
	org := seedActiveOrg(t, pool, "p2-org", 2)
	board, plain := org.Members[0], org.Members[1]
	chair := addMembership(t, pool, org.ID, randomUser(), orgs.RoleChair, orgs.MemberActive)

	_, err := svc.Orgs.AddPosition(ctx, org.ID, org.Owner.UserID, board.UserID, "Valdybos narys")
	require.NoError(t, err)

	res, err := svc.Resolutions.Create(ctx, org.ID, org.Owner.UserID, resolutions.NewResolution{Title: "Playground"})
	require.NoError(t, err)
	_, err = svc.Resolutions.InitializeProject(ctx, res.ID, org.Owner.UserID, resolutions.ProjectInit{Phase: "planning", Tags: []string{"kids"}})
	require.NoError(t, err)

	progress := resolutions.IndicatorUpdate{Progress: ptr(0.7)}

	_, err = svc.Resolutions.UpdateIndicator(ctx, res.ID, board.UserID, progress)
	require.ErrorIs(t, err, resolutions.ErrNotApproved)

	_, err = svc.Resolutions.Propose(ctx, res.ID, org.Owner.UserID)
	require.NoError(t, err)
	approved, err := svc.Resolutions.Decide(ctx, res.ID, org.Owner.UserID, true)
	require.NoError(t, err)
	require.Equal(t, resolutions.StatusApproved, approved.Status)

	_, err = svc.Resolutions.UpdateIndicator(ctx, res.ID, plain.UserID, progress)
	require.ErrorIs(t, err, resolutions.ErrIndicatorForbidden)
	require.Equal(t, apperrors.KindAuthorization, apperrors.KindOf(err))

	// OWNER alone is not an indicator authority.
	_, err = svc.Resolutions.UpdateIndicator(ctx, res.ID, org.Owner.UserID, progress)
	require.ErrorIs(t, err, resolutions.ErrIndicatorForbidden)

	updated, err := svc.Resolutions.UpdateIndicator(ctx, res.ID, board.UserID, progress)
	require.NoError(t, err)
	require.Equal(t, 0.7, updated.Metadata["indicator.progress"])
	require.Equal(t, approved.Metadata["project.phase"], updated.Metadata["project.phase"])
	require.Equal(t, approved.Metadata["project.tags"], updated.Metadata["project.tags"])

	_, err = svc.Resolutions.UpdateIndicator(ctx, res.ID, chair.UserID, resolutions.IndicatorUpdate{BudgetSpent: ptr(300.0)})
	require.NoError(t, err)

	_, err = svc.Resolutions.UpdateIndicator(ctx, res.ID, board.UserID, resolutions.IndicatorUpdate{Progress: ptr(1.5)})
	require.ErrorIs(t, err, resolutions.ErrProgressOutOfRange)
}

func TestIntegration_BallotIsOverwrittenNotDuplicated(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)
	ctx := context.Background()
	svc := newServices(pool)
	org := seedActiveOrg(t, pool, "p3-org", 1)
	voter := org.Members[0]

	res, err := svc.Resolutions.Create(ctx, org.ID, org.Owner.UserID, resolutions.NewResolution{Title: "Opinion poll"})
	require.NoError(t, err)
	_, err = svc.Resolutions.Propose(ctx, res.ID, org.Owner.UserID)
	require.NoError(t, err)

	vote, err := svc.Voting.OpenVote(ctx, org.Owner.UserID, voting.OpenInput{ResolutionID: res.ID, Kind: voting.KindOpinion})
	require.NoError(t, err)

	_, err = svc.Voting.OpenVote(ctx, org.Owner.UserID, voting.OpenInput{ResolutionID: res.ID, Kind: voting.KindOpinion})
	require.ErrorIs(t, err, voting.ErrVoteAlreadyOpen)

	first, err := svc.Voting.CastVote(ctx, vote.ID, voter.UserID, voting.ChoiceFor, voting.ChannelRemote)
	require.NoError(t, err)
	require.False(t, first.Overwritten)

	second, err := svc.Voting.CastVote(ctx, vote.ID, voter.UserID, voting.ChoiceAgainst, voting.ChannelRemote)
	require.NoError(t, err)
	require.True(t, second.Overwritten)
	require.Equal(t, first.ID, second.ID)

	require.Equal(t, 1, countRows(t, pool, `SELECT COUNT(*) FROM ballots WHERE vote_id = $1`, vote.ID))
	var choice string
	require.NoError(t, pool.QueryRow(ctx, `SELECT choice FROM ballots WHERE vote_id = $1`, vote.ID).Scan(&choice))
	require.Equal(t, string(voting.ChoiceAgainst), choice)

	// Votes outside a meeting are remote only.
	_, err = svc.Voting.CastVote(ctx, vote.ID, voter.UserID, voting.ChoiceFor, voting.ChannelInPerson)
	require.ErrorIs(t, err, voting.ErrIneligibleChannel)
}

func TestIntegration_CloseIsIdempotent(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)
	ctx := context.Background()
	svc := newServices(pool)
	org := seedActiveOrg(t, pool, "p4-org", 8)
	owner := org.Owner.UserID

	meeting, agenda, err := svc.Meetings.CreateMeeting(ctx, org.ID, owner, "Board session", meetings.TypeBoard, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Empty(t, agenda)

	item, res, err := svc.Meetings.AddAgendaItem(ctx, meeting.ID, owner, "Roof repair", "")
	require.NoError(t, err)
	require.Equal(t, 1, item.ItemNo)
	_, err = svc.Resolutions.Propose(ctx, res.ID, owner)
	require.NoError(t, err)

	voters := org.Members[:8]
	for _, v := range voters {
		_, err := svc.Meetings.RegisterRemoteVoter(ctx, meeting.ID, owner, &v.MembershipID)
		require.NoError(t, err)
	}

	vote, err := svc.Voting.OpenVote(ctx, owner, voting.OpenInput{ResolutionID: res.ID, Kind: voting.KindOpinion})
	require.NoError(t, err)

	for i, v := range voters[:7] {
		choice := voting.ChoiceFor
		if i >= 5 {
			choice = voting.ChoiceAgainst
		}
		_, err := svc.Voting.CastVote(ctx, vote.ID, v.UserID, choice, voting.ChannelRemote)
		require.NoError(t, err)
	}

	first, err := svc.Voting.CloseVote(ctx, vote.ID, owner)
	require.NoError(t, err)
	require.False(t, first.AlreadyClosed)
	require.Equal(t, resolutions.StatusApproved, first.Outcome)
	require.Equal(t, resolutions.StatusApproved, first.ResolutionStatus)
	require.Equal(t, voting.Tally{For: 5, Against: 2, Abstain: 1}, first.Tally)
	require.Equal(t, 1, first.AbstainBackfilled)

	// A late registration must not be picked up by a repeated close.
	late := addMembership(t, pool, org.ID, randomUser(), orgs.RoleMember, orgs.MemberActive)
	_, err = svc.Meetings.RegisterRemoteVoter(ctx, meeting.ID, owner, &late.MembershipID)
	require.NoError(t, err)

	second, err := svc.Voting.CloseVote(ctx, vote.ID, owner)
	require.NoError(t, err)
	require.True(t, second.AlreadyClosed)
	require.Equal(t, first.Outcome, second.Outcome)
	require.Equal(t, first.Tally, second.Tally)
	require.Equal(t, 1, second.AbstainBackfilled)

	require.Equal(t, 8, countRows(t, pool, `SELECT COUNT(*) FROM ballots WHERE vote_id = $1`, vote.ID))
	require.Equal(t, 1, countRows(t, pool, `SELECT COUNT(*) FROM ballots WHERE vote_id = $1 AND channel = 'AUTO'`, vote.ID))

	stored, err := resolutions.Load(ctx, pool, res.ID, false)
	require.NoError(t, err)
	require.Equal(t, resolutions.StatusApproved, stored.Status)

	_, err = svc.Voting.CastVote(ctx, vote.ID, voters[7].UserID, voting.ChoiceFor, voting.ChannelRemote)
	require.ErrorIs(t, err, voting.ErrIneligibleVoteState)
}

func TestIntegration_QuorumInMeetingView(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)
	ctx := context.Background()
	svc := newServices(pool)
	org := seedActiveOrg(t, pool, "p5-org", 6)
	owner := org.Owner.UserID

	// Inactive memberships never count.
	addMembership(t, pool, org.ID, randomUser(), orgs.RoleMember, orgs.MemberSuspended)

	meeting, _, err := svc.Meetings.CreateMeeting(ctx, org.ID, owner, "Spring assembly", meetings.TypeGA, time.Now().Add(time.Hour))
	require.NoError(t, err)

	for _, v := range org.Members[:3] {
		_, err := svc.Meetings.RegisterRemoteVoter(ctx, meeting.ID, owner, &v.MembershipID)
		require.NoError(t, err)
	}
	present := org.Members[3]
	require.NoError(t, svc.Meetings.MarkAttendance(ctx, meeting.ID, owner, present.MembershipID, true))

	view, err := svc.Meetings.GetMeetingView(ctx, meeting.ID, owner)
	require.NoError(t, err)
	require.Equal(t, 7, view.Quorum.TotalActive)
	require.Equal(t, 4, view.Quorum.QuorumRequired)
	require.Equal(t, 4, view.Quorum.TotalParticipants)
	require.True(t, view.Quorum.QuorumMet)

	require.NoError(t, svc.Meetings.MarkAttendance(ctx, meeting.ID, owner, present.MembershipID, false))
	view, err = svc.Meetings.GetMeetingView(ctx, meeting.ID, owner)
	require.NoError(t, err)
	require.Equal(t, 3, view.Quorum.TotalParticipants)
	require.False(t, view.Quorum.QuorumMet)
}

func TestIntegration_ProceduralGateBlocksSubstantiveItems(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)
	ctx := context.Background()
	svc := newServices(pool)
	org := seedActiveOrg(t, pool, "p6-org", 2)
	owner := org.Owner.UserID

	meeting, agenda, err := svc.Meetings.CreateMeeting(ctx, org.ID, owner, "Annual assembly", meetings.TypeGA, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, agenda, 3)
	for i, item := range agenda {
		require.Equal(t, i+1, item.ItemNo)
		require.True(t, item.Procedural)
		require.Equal(t, resolutions.StatusProposed, item.ResolutionStatus)
	}

	item, _, err := svc.Meetings.AddAgendaItem(ctx, meeting.ID, owner, "Budget 2027", "")
	require.NoError(t, err)
	require.Equal(t, 4, item.ItemNo)

	_, err = svc.Meetings.ApplyAgendaOutcome(ctx, meeting.ID, 4, owner, true)
	require.ErrorIs(t, err, meetings.ErrProceduralSequenceIncomplete)
	require.Equal(t, []int{1, 2, 3}, detailsOf(t, err)["missing_items"])

	_, err = svc.Meetings.ApplyAgendaOutcome(ctx, meeting.ID, 1, owner, true)
	require.NoError(t, err)
	_, err = svc.Meetings.ApplyAgendaOutcome(ctx, meeting.ID, 3, owner, false)
	require.NoError(t, err)

	_, err = svc.Meetings.ApplyAgendaOutcome(ctx, meeting.ID, 4, owner, true)
	require.ErrorIs(t, err, meetings.ErrProceduralSequenceIncomplete)
	require.Equal(t, []int{2, 3}, detailsOf(t, err)["missing_items"])

	status, err := svc.Meetings.ProceduralStatus(ctx, meeting.ID, owner)
	require.NoError(t, err)
	require.False(t, status.Completed)
	require.Equal(t, []int{2, 3}, status.Missing)

	// The substantive resolution is untouched while the gate refuses.
	view, err := svc.Meetings.GetMeetingView(ctx, meeting.ID, owner)
	require.NoError(t, err)
	require.Equal(t, resolutions.StatusDraft, view.Agenda[3].ResolutionStatus)
}

func TestIntegration_ProceduralGateRepairsMissingResolution(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)
	ctx := context.Background()
	svc := newServices(pool)
	org := seedActiveOrg(t, pool, "gate-repair", 1)
	owner := org.Owner.UserID

	meeting, agenda, err := svc.Meetings.CreateMeeting(ctx, org.ID, owner, "Assembly", meetings.TypeGA, time.Now())
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `DELETE FROM resolutions WHERE id = $1`, *agenda[1].ResolutionID)
	require.NoError(t, err)

	status, err := svc.Meetings.ProceduralStatus(ctx, meeting.ID, owner)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, status.Missing)
	require.True(t, status.Items[1].Repaired)
	require.NotEqual(t, *agenda[1].ResolutionID, status.Items[1].ResolutionID)

	require.Equal(t, 1, countRows(t, pool, `
		SELECT COUNT(*) FROM agenda_items WHERE meeting_id = $1 AND item_no = 2 AND resolution_id = $2
	`, meeting.ID, status.Items[1].ResolutionID))
}

func TestIntegration_LastOwnerProtection(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)
	ctx := context.Background()
	svc := newServices(pool)
	org := seedActiveOrg(t, pool, "p8-org", 1)
	owner := org.Owner.UserID

	_, err := svc.Orgs.RemoveMember(ctx, org.ID, owner, owner)
	require.ErrorIs(t, err, orgs.ErrCannotRemoveLastOwner)
	require.Equal(t, apperrors.KindPrecondition, apperrors.KindOf(err))

	_, err = svc.Orgs.SetMemberStatus(ctx, org.ID, owner, owner, orgs.MemberSuspended)
	require.ErrorIs(t, err, orgs.ErrCannotRemoveLastOwner)

	// PENDING does not keep an active organization owned either.
	_, err = svc.Orgs.SetMemberStatus(ctx, org.ID, owner, owner, orgs.MemberPending)
	require.ErrorIs(t, err, orgs.ErrCannotRemoveLastOwner)

	_, err = svc.Orgs.UpdateMemberRole(ctx, org.ID, owner, owner, orgs.RoleMember)
	require.ErrorIs(t, err, orgs.ErrCannotDemoteLastOwner)

	members, err := svc.Orgs.ListMembers(ctx, org.ID)
	require.NoError(t, err)
	require.Equal(t, orgs.RoleOwner, members[0].Role)
	require.Equal(t, orgs.MemberActive, members[0].Status)

	// A PENDING owner does not keep an active organization owned.
	addMembership(t, pool, org.ID, randomUser(), orgs.RoleOwner, orgs.MemberPending)
	_, err = svc.Orgs.RemoveMember(ctx, org.ID, owner, owner)
	require.ErrorIs(t, err, orgs.ErrCannotRemoveLastOwner)

	second := org.Members[0]
	_, err = svc.Orgs.UpdateMemberRole(ctx, org.ID, owner, second.UserID, orgs.RoleOwner)
	require.NoError(t, err)

	removed, err := svc.Orgs.RemoveMember(ctx, org.ID, owner, owner)
	require.NoError(t, err)
	require.Equal(t, orgs.RoleOwner, removed)
}

func TestIntegration_AssemblyScenario(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)
	ctx := context.Background()
	svc := newServices(pool)
	org := seedActiveOrg(t, pool, "oak-street", 9)
	owner := org.Owner.UserID
	treasurer := org.Members[8]
	chair := addMembership(t, pool, org.ID, randomUser(), orgs.RoleChair, orgs.MemberSuspended)

	_, err := svc.Orgs.AddPosition(ctx, org.ID, owner, treasurer.UserID, "Board treasurer")
	require.NoError(t, err)

	meeting, agenda, err := svc.Meetings.CreateMeeting(ctx, org.ID, owner, "Oak Street annual assembly", meetings.TypeGA, time.Now().Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, agenda, 3)

	remote := org.Members[:6]
	for _, m := range remote {
		_, err := svc.Meetings.RegisterRemoteVoter(ctx, meeting.ID, owner, &m.MembershipID)
		require.NoError(t, err)
	}

	view, err := svc.Meetings.GetMeetingView(ctx, meeting.ID, owner)
	require.NoError(t, err)
	require.Equal(t, 10, view.Quorum.TotalActive)
	require.Equal(t, 5, view.Quorum.QuorumRequired)
	require.True(t, view.Quorum.QuorumMet)

	for itemNo := 1; itemNo <= 3; itemNo++ {
		res, err := svc.Meetings.ApplyAgendaOutcome(ctx, meeting.ID, itemNo, owner, true)
		require.NoError(t, err)
		require.Equal(t, resolutions.StatusApproved, res.Status)
	}

	item, res, err := svc.Meetings.AddAgendaItem(ctx, meeting.ID, owner, "Replace the courtyard benches", "Budget up to 4000 EUR.")
	require.NoError(t, err)
	require.Equal(t, 4, item.ItemNo)
	_, err = svc.Resolutions.InitializeProject(ctx, res.ID, owner, resolutions.ProjectInit{Phase: "planning", BudgetPlanned: ptr(4000.0)})
	require.NoError(t, err)
	_, err = svc.Resolutions.Propose(ctx, res.ID, owner)
	require.NoError(t, err)

	// Meeting resolutions are decided by the agenda, not directly.
	_, err = svc.Resolutions.Decide(ctx, res.ID, owner, true)
	require.ErrorIs(t, err, resolutions.ErrMeetingBound)

	vote, err := svc.Voting.OpenVote(ctx, owner, voting.OpenInput{ResolutionID: res.ID, Kind: voting.KindGA})
	require.NoError(t, err)
	for _, m := range remote {
		_, err := svc.Voting.CastVote(ctx, vote.ID, m.UserID, voting.ChoiceFor, voting.ChannelRemote)
		require.NoError(t, err)
	}

	// Members who did not register remotely cannot vote remotely.
	_, err = svc.Voting.CastVote(ctx, vote.ID, org.Members[7].UserID, voting.ChoiceAgainst, voting.ChannelRemote)
	require.Error(t, err)

	closed, err := svc.Voting.CloseVote(ctx, vote.ID, owner)
	require.NoError(t, err)
	require.Equal(t, resolutions.StatusApproved, closed.Outcome)
	require.Equal(t, voting.Tally{For: 6}, closed.Tally)
	require.Zero(t, closed.AbstainBackfilled)

	_, err = svc.Resolutions.UpdateIndicator(ctx, res.ID, org.Members[0].UserID, resolutions.IndicatorUpdate{Progress: ptr(0.2)})
	require.ErrorIs(t, err, resolutions.ErrIndicatorForbidden)

	// A suspended chair has no authority.
	_, err = svc.Resolutions.UpdateIndicator(ctx, res.ID, chair.UserID, resolutions.IndicatorUpdate{Progress: ptr(0.2)})
	require.ErrorIs(t, err, orgs.ErrMembershipInactive)

	updated, err := svc.Resolutions.UpdateIndicator(ctx, res.ID, treasurer.UserID, resolutions.IndicatorUpdate{
		Progress:    ptr(0.25),
		BudgetSpent: ptr(950.0),
	})
	require.NoError(t, err)
	require.Equal(t, 0.25, updated.Metadata[resolutions.KeyIndicatorProgress])
	require.Equal(t, 950.0, updated.Metadata[resolutions.KeyIndicatorBudgetSpent])
	require.Equal(t, 4000.0, updated.Metadata[resolutions.KeyProjectBudgetPlanned])

	_, followUp, err := svc.Meetings.AddAgendaItem(ctx, meeting.ID, owner, "Paint the stairwell", "")
	require.NoError(t, err)
	_, err = svc.Resolutions.Propose(ctx, followUp.ID, owner)
	require.NoError(t, err)
	open, err := svc.Voting.OpenVote(ctx, owner, voting.OpenInput{ResolutionID: followUp.ID, Kind: voting.KindGA})
	require.NoError(t, err)
	_, err = svc.Voting.CastVote(ctx, open.ID, remote[0].UserID, voting.ChoiceAgainst, voting.ChannelRemote)
	require.NoError(t, err)

	done, err := svc.Meetings.CompleteMeeting(ctx, meeting.ID, owner, "https://example.org/protocols/oak-street.pdf", svc.Voting)
	require.NoError(t, err)
	require.Equal(t, meetings.StatusCompleted, done.Meeting.Status)
	require.Equal(t, 1, done.VotesClosed)

	stored, err := resolutions.Load(ctx, pool, followUp.ID, false)
	require.NoError(t, err)
	require.Equal(t, resolutions.StatusRejected, stored.Status)

	_, _, err = svc.Meetings.AddAgendaItem(ctx, meeting.ID, owner, "Too late", "")
	require.ErrorIs(t, err, meetings.ErrMeetingCompleted)
}

func TestIntegration_DecideRefusedWhileVoteOpen(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)
	ctx := context.Background()
	svc := newServices(pool)
	org := seedActiveOrg(t, pool, "decide-open-vote", 1)
	owner := org.Owner.UserID

	res, err := svc.Resolutions.Create(ctx, org.ID, owner, resolutions.NewResolution{Title: "Bike shed colour"})
	require.NoError(t, err)
	_, err = svc.Resolutions.Propose(ctx, res.ID, owner)
	require.NoError(t, err)

	vote, err := svc.Voting.OpenVote(ctx, owner, voting.OpenInput{ResolutionID: res.ID, Kind: voting.KindOpinion})
	require.NoError(t, err)
	_, err = svc.Voting.CastVote(ctx, vote.ID, org.Members[0].UserID, voting.ChoiceAgainst, voting.ChannelRemote)
	require.NoError(t, err)

	_, err = svc.Resolutions.Decide(ctx, res.ID, owner, true)
	require.ErrorIs(t, err, resolutions.ErrVoteOpen)

	stored, err := resolutions.Load(ctx, pool, res.ID, false)
	require.NoError(t, err)
	require.Equal(t, resolutions.StatusProposed, stored.Status)

	closed, err := svc.Voting.CloseVote(ctx, vote.ID, owner)
	require.NoError(t, err)
	require.Equal(t, resolutions.StatusRejected, closed.ResolutionStatus)

	_, err = svc.Resolutions.Decide(ctx, res.ID, owner, true)
	require.ErrorIs(t, err, resolutions.ErrInvalidTransition)
}

func TestIntegration_LiveTotals(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)
	ctx := context.Background()
	svc := newServices(pool)
	org := seedActiveOrg(t, pool, "live-totals", 6)
	owner := org.Owner.UserID

	meeting, _, err := svc.Meetings.CreateMeeting(ctx, org.ID, owner, "Board session", meetings.TypeBoard, time.Now())
	require.NoError(t, err)
	present := org.Members[:5]
	for _, m := range present {
		require.NoError(t, svc.Meetings.MarkAttendance(ctx, meeting.ID, owner, m.MembershipID, true))
	}

	_, res, err := svc.Meetings.AddAgendaItem(ctx, meeting.ID, owner, "Hire a caretaker", "")
	require.NoError(t, err)
	_, err = svc.Resolutions.Propose(ctx, res.ID, owner)
	require.NoError(t, err)
	vote, err := svc.Voting.OpenVote(ctx, owner, voting.OpenInput{ResolutionID: res.ID, Kind: voting.KindOpinion})
	require.NoError(t, err)

	_, err = svc.Voting.SetLiveTotals(ctx, vote.ID, owner, 4, 2)
	require.ErrorIs(t, err, voting.ErrTotalsExceedAttendance)
	require.Equal(t, 1, countRows(t, pool, `
		SELECT COUNT(*) FROM votes
		WHERE id = $1 AND live_for IS NULL AND live_against IS NULL AND live_abstain IS NULL
	`, vote.ID))

	totals, err := svc.Voting.SetLiveTotals(ctx, vote.ID, owner, 1, 1)
	require.NoError(t, err)
	require.Equal(t, voting.LiveTotals{For: 3, Against: 1, Abstain: 1}, totals)

	_, err = svc.Voting.CastVote(ctx, vote.ID, present[0].UserID, voting.ChoiceFor, voting.ChannelInPerson)
	require.Error(t, err)

	// Two attendees leave before the close; the recorded totals no longer fit.
	require.NoError(t, svc.Meetings.MarkAttendance(ctx, meeting.ID, owner, present[3].MembershipID, false))
	require.NoError(t, svc.Meetings.MarkAttendance(ctx, meeting.ID, owner, present[4].MembershipID, false))

	_, err = svc.Voting.CloseVote(ctx, vote.ID, owner)
	require.ErrorIs(t, err, voting.ErrTotalsExceedAttendance)
	require.Equal(t, 1, countRows(t, pool, `SELECT COUNT(*) FROM votes WHERE id = $1 AND status = 'OPEN'`, vote.ID))

	_, err = svc.Voting.SetLiveTotals(ctx, vote.ID, owner, 1, 0)
	require.NoError(t, err)

	closed, err := svc.Voting.CloseVote(ctx, vote.ID, owner)
	require.NoError(t, err)
	require.Equal(t, resolutions.StatusApproved, closed.Outcome)
	require.Equal(t, voting.Tally{For: 2, Against: 1}, closed.Tally)
	require.Zero(t, closed.AbstainBackfilled)
	require.Zero(t, countRows(t, pool, `SELECT COUNT(*) FROM ballots WHERE vote_id = $1`, vote.ID))

	// Individual ballots rule out live totals.
	_, other, err := svc.Meetings.AddAgendaItem(ctx, meeting.ID, owner, "Buy a lawnmower", "")
	require.NoError(t, err)
	_, err = svc.Resolutions.Propose(ctx, other.ID, owner)
	require.NoError(t, err)
	ballotVote, err := svc.Voting.OpenVote(ctx, owner, voting.OpenInput{ResolutionID: other.ID, Kind: voting.KindOpinion})
	require.NoError(t, err)
	_, err = svc.Voting.CastVote(ctx, ballotVote.ID, present[0].UserID, voting.ChoiceFor, voting.ChannelInPerson)
	require.NoError(t, err)

	_, err = svc.Voting.SetLiveTotals(ctx, ballotVote.ID, owner, 0, 0)
	require.ErrorIs(t, err, voting.ErrVoteHasBallots)
}

func TestIntegration_CloseAllForMeetingIsIndependent(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)
	ctx := context.Background()
	svc := newServices(pool)
	org := seedActiveOrg(t, pool, "bulk-close", 2)
	owner := org.Owner.UserID

	meeting, agenda, err := svc.Meetings.CreateMeeting(ctx, org.ID, owner, "Assembly", meetings.TypeGA, time.Now())
	require.NoError(t, err)
	for _, m := range org.Members {
		_, err := svc.Meetings.RegisterRemoteVoter(ctx, meeting.ID, owner, &m.MembershipID)
		require.NoError(t, err)
	}

	// The substantive vote is opened first and cannot close: items 1-3 are pending.
	_, substantive, err := svc.Meetings.AddAgendaItem(ctx, meeting.ID, owner, "New fence", "")
	require.NoError(t, err)
	_, err = svc.Resolutions.Propose(ctx, substantive.ID, owner)
	require.NoError(t, err)
	blocked, err := svc.Voting.OpenVote(ctx, owner, voting.OpenInput{ResolutionID: substantive.ID, Kind: voting.KindGA})
	require.NoError(t, err)

	procedural, err := svc.Voting.OpenVote(ctx, owner, voting.OpenInput{ResolutionID: *agenda[0].ResolutionID, Kind: voting.KindGA})
	require.NoError(t, err)
	_, err = svc.Voting.CastVote(ctx, procedural.ID, org.Members[0].UserID, voting.ChoiceFor, voting.ChannelRemote)
	require.NoError(t, err)

	result, err := svc.Voting.CloseAllForMeeting(ctx, meeting.ID, owner)
	require.NoError(t, err)
	require.Equal(t, 1, result.ClosedCount)
	require.Equal(t, 1, result.FailedCount)
	require.ErrorIs(t, result.FirstError, meetings.ErrProceduralSequenceIncomplete)

	require.Equal(t, 1, countRows(t, pool, `SELECT COUNT(*) FROM votes WHERE id = $1 AND status = 'OPEN'`, blocked.ID))
	require.Equal(t, 1, countRows(t, pool, `SELECT COUNT(*) FROM votes WHERE id = $1 AND status = 'CLOSED'`, procedural.ID))

	item1, err := resolutions.Load(ctx, pool, *agenda[0].ResolutionID, false)
	require.NoError(t, err)
	require.Equal(t, resolutions.StatusApproved, item1.Status)

	_, err = svc.Meetings.CompleteMeeting(ctx, meeting.ID, owner, "", svc.Voting)
	require.ErrorIs(t, err, meetings.ErrVotesStillOpen)
}
