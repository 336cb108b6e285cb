package voting

import (
	"context"
	"errors"
	"fmt"

	"github.com/aliuyar1234/govern/internal/audit"
	"github.com/aliuyar1234/govern/internal/db"
	"github.com/aliuyar1234/govern/internal/meetings"
	"github.com/aliuyar1234/govern/internal/notify"
	"github.com/aliuyar1234/govern/internal/resolutions"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// CloseVote closes a vote and applies its outcome to the resolution. Closing
// a CLOSED vote returns the stored result with AlreadyClosed set and does
// nothing else.
func (s *Service) CloseVote(ctx context.Context, voteID, actorUserID uuid.UUID) (*CloseResult, error) {
	return s.closeVote(ctx, voteID, actorUserID, false)
}

// closeVote does the work of CloseVote. The scheduled sweep passes system so
// no membership is required.
func (s *Service) closeVote(ctx context.Context, voteID, actorUserID uuid.UUID, system bool) (*CloseResult, error) {
	var result CloseResult
	var vote *Vote
	var meeting *meetings.Meeting
	var gate meetings.GateStatus
	var gateErr error

	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		vote, err = loadVote(ctx, tx, voteID, "FOR UPDATE")
		if err != nil {
			return err
		}
		if !system {
			if err := requireRunner(ctx, tx, vote.OrgID, actorUserID); err != nil {
				return err
			}
		}

		if vote.Status == StatusClosed {
			result, err = storedResult(ctx, tx, vote)
			return err
		}

		if vote.MeetingID != nil {
			meeting, err = meetings.Load(ctx, tx, *vote.MeetingID, false)
			if err != nil {
				return err
			}
			itemNo, err := agendaItemNo(ctx, tx, meeting.ID, vote.ResolutionID)
			if err != nil {
				return err
			}
			// Keep any repair the gate made even when it refuses.
			gate, gateErr = s.gate.Require(ctx, tx, meeting, itemNo)
			if gateErr != nil {
				if errors.Is(gateErr, meetings.ErrProceduralSequenceIncomplete) {
					return nil
				}
				return gateErr
			}
		}

		backfilled, err := backfillAbstentions(ctx, tx, vote)
		if err != nil {
			return err
		}

		tally, err := tallyVote(ctx, tx, vote)
		if err != nil {
			return err
		}
		outcome := DecideOutcome(tally)

		if _, err := tx.Exec(ctx, `
			UPDATE votes
			SET status = 'CLOSED', outcome = $2, tally_for = $3, tally_against = $4, tally_abstain = $5,
			    abstain_backfilled = $6, closed_at = NOW()
			WHERE id = $1 AND status = 'OPEN'
		`, vote.ID, outcome, tally.For, tally.Against, tally.Abstain, backfilled); err != nil {
			return fmt.Errorf("failed to close vote: %w", err)
		}

		res, err := resolutions.Transition(ctx, tx, vote.ResolutionID, outcome)
		if err != nil {
			return err
		}

		result = CloseResult{
			VoteID:            vote.ID,
			Outcome:           outcome,
			ResolutionStatus:  res.Status,
			Tally:             tally,
			AbstainBackfilled: backfilled,
		}
		return nil
	})
	if meeting != nil {
		s.gate.RecordRepairs(meeting, actorUserID, gate)
	}
	if err != nil {
		return nil, err
	}
	if gateErr != nil {
		return nil, gateErr
	}
	if result.AlreadyClosed {
		return &result, nil
	}

	s.metrics.VoteClosed(string(result.Outcome))
	s.metrics.ResolutionTransition(string(result.ResolutionStatus))

	log.Info().
		Str("vote_id", vote.ID.String()).
		Str("resolution_id", vote.ResolutionID.String()).
		Str("outcome", string(result.Outcome)).
		Int("for", result.Tally.For).
		Int("against", result.Tally.Against).
		Int("abstain", result.Tally.Abstain).
		Int("ballots", result.Tally.Total()).
		Int("abstain_backfilled", result.AbstainBackfilled).
		Msg("Vote closed")

	s.auditor.Record(audit.Entry{
		OrgID:       vote.OrgID,
		ActorUserID: actorUserID,
		Action:      audit.EventVoteClosed,
		SubjectID:   vote.ID,
		Meta: map[string]any{
			"resolution_id":      vote.ResolutionID,
			"outcome":            result.Outcome,
			"tally":              result.Tally,
			"abstain_backfilled": result.AbstainBackfilled,
			"system":             system,
		},
	})
	s.notifier.Send(notify.Message{
		Event:   notify.EventVoteClosed,
		OrgID:   vote.OrgID,
		Subject: "Vote closed",
		Text: fmt.Sprintf("Resolution %s: %s (%d for, %d against, %d abstain)",
			vote.ResolutionID, result.Outcome, result.Tally.For, result.Tally.Against, result.Tally.Abstain),
		Fields: map[string]any{"vote_id": vote.ID, "resolution_id": vote.ResolutionID, "outcome": result.Outcome},
	})
	return &result, nil
}

func storedResult(ctx context.Context, q db.Querier, vote *Vote) (CloseResult, error) {
	res, err := resolutions.Load(ctx, q, vote.ResolutionID, false)
	if err != nil {
		return CloseResult{}, err
	}

	result := CloseResult{
		VoteID:            vote.ID,
		ResolutionStatus:  res.Status,
		AbstainBackfilled: vote.AbstainBackfilled,
		AlreadyClosed:     true,
	}
	if vote.Outcome != nil {
		result.Outcome = *vote.Outcome
	}
	if vote.Tally != nil {
		result.Tally = *vote.Tally
	}
	return result, nil
}

// agendaItemNo returns the agenda position of resolutionID in meetingID, or 0
// if the resolution is not on the agenda.
func agendaItemNo(ctx context.Context, q db.Querier, meetingID, resolutionID uuid.UUID) (int, error) {
	var itemNo int
	err := q.QueryRow(ctx, `
		SELECT item_no FROM agenda_items WHERE meeting_id = $1 AND resolution_id = $2
	`, meetingID, resolutionID).Scan(&itemNo)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load agenda item: %w", err)
	}
	return itemNo, nil
}

// backfillAbstentions registers ABSTAIN for every active participant of the
// meeting who did not vote. It only runs on the OPEN -> CLOSED path, under the
// vote's row lock, so it happens once per vote.
func backfillAbstentions(ctx context.Context, q db.Querier, vote *Vote) (int, error) {
	if vote.MeetingID == nil || vote.LiveTotals != nil {
		return 0, nil
	}

	tag, err := q.Exec(ctx, `
		INSERT INTO ballots (vote_id, membership_id, choice, channel)
		SELECT $1, p.membership_id, 'ABSTAIN', 'AUTO'
		FROM (
			SELECT membership_id FROM meeting_remote_voters WHERE meeting_id = $2
			UNION
			SELECT membership_id FROM meeting_attendance WHERE meeting_id = $2 AND present
		) p
		JOIN org_memberships m ON m.id = p.membership_id AND m.member_status = 'ACTIVE'
		ON CONFLICT ON CONSTRAINT uq_ballots_vote_membership DO NOTHING
	`, vote.ID, *vote.MeetingID)
	if err != nil {
		return 0, fmt.Errorf("failed to register abstentions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func tallyVote(ctx context.Context, q db.Querier, vote *Vote) (Tally, error) {
	if vote.LiveTotals != nil {
		// Attendance may have dropped since the totals were entered.
		var attendees int
		if err := q.QueryRow(ctx, `
			SELECT COUNT(*) FROM meeting_attendance WHERE meeting_id = $1 AND present
		`, *vote.MeetingID).Scan(&attendees); err != nil {
			return Tally{}, fmt.Errorf("failed to count attendees: %w", err)
		}
		t := Tally(*vote.LiveTotals)
		if t.Total() > attendees {
			return Tally{}, ErrTotalsExceedAttendance.WithDetails(map[string]any{
				"attendees": attendees,
				"recorded":  t.Total(),
			})
		}
		return t, nil
	}

	var t Tally
	err := q.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE choice = 'FOR'),
			COUNT(*) FILTER (WHERE choice = 'AGAINST'),
			COUNT(*) FILTER (WHERE choice = 'ABSTAIN')
		FROM ballots
		WHERE vote_id = $1
	`, vote.ID).Scan(&t.For, &t.Against, &t.Abstain)
	if err != nil {
		return Tally{}, fmt.Errorf("failed to tally vote: %w", err)
	}
	return t, nil
}

func openVoteIDs(ctx context.Context, q db.Querier, query string, args ...any) ([]uuid.UUID, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list open votes: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("failed to list open votes: %w", err)
	}
	return ids, nil
}

func (s *Service) closeEach(ctx context.Context, ids []uuid.UUID, actorUserID uuid.UUID, system bool) BulkCloseResult {
	var result BulkCloseResult
	for _, id := range ids {
		if _, err := s.closeVote(ctx, id, actorUserID, system); err != nil {
			result.FailedCount++
			if result.FirstError == nil {
				result.FirstError = err
			}
			log.Warn().
				Err(err).
				Str("vote_id", id.String()).
				Msg("Failed to close vote")
			continue
		}
		result.ClosedCount++
	}
	return result
}

// CloseAllForMeeting closes every OPEN vote of a meeting. Votes are closed
// independently: one failure does not stop the rest.
func (s *Service) CloseAllForMeeting(ctx context.Context, meetingID, actorUserID uuid.UUID) (BulkCloseResult, error) {
	m, err := meetings.Load(ctx, s.pool, meetingID, false)
	if err != nil {
		return BulkCloseResult{}, err
	}
	if err := requireRunner(ctx, s.pool, m.OrgID, actorUserID); err != nil {
		return BulkCloseResult{}, err
	}

	ids, err := openVoteIDs(ctx, s.pool, `
		SELECT id FROM votes WHERE meeting_id = $1 AND status = 'OPEN' ORDER BY created_at
	`, meetingID)
	if err != nil {
		return BulkCloseResult{}, err
	}
	return s.closeEach(ctx, ids, actorUserID, false), nil
}

// CloseMeetingVotes lets meeting completion close the meeting's votes.
func (s *Service) CloseMeetingVotes(ctx context.Context, meetingID, actorUserID uuid.UUID) (int, error) {
	result, err := s.CloseAllForMeeting(ctx, meetingID, actorUserID)
	if err != nil {
		return 0, err
	}
	return result.ClosedCount, result.FirstError
}

// CloseOverdueVotes closes every OPEN vote whose closes_at has passed.
func (s *Service) CloseOverdueVotes(ctx context.Context) (BulkCloseResult, error) {
	ids, err := openVoteIDs(ctx, s.pool, `
		SELECT id FROM votes WHERE status = 'OPEN' AND closes_at IS NOT NULL AND closes_at <= $1 ORDER BY closes_at
	`, s.now())
	if err != nil {
		return BulkCloseResult{}, err
	}

	result := s.closeEach(ctx, ids, uuid.Nil, true)
	if len(ids) > 0 {
		log.Info().
			Int("overdue", len(ids)).
			Int("closed", result.ClosedCount).
			Int("failed", result.FailedCount).
			Msg("Closed overdue votes")
	}
	return result, nil
}
