package voting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aliuyar1234/govern/internal/audit"
	"github.com/aliuyar1234/govern/internal/db"
	"github.com/aliuyar1234/govern/internal/meetings"
	"github.com/aliuyar1234/govern/internal/metrics"
	"github.com/aliuyar1234/govern/internal/notify"
	"github.com/aliuyar1234/govern/internal/orgs"
	"github.com/aliuyar1234/govern/internal/resolutions"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const voteColumns = `id, org_id, resolution_id, meeting_id, kind, status, opens_at, closes_at,
	live_for, live_against, live_abstain, outcome, tally_for, tally_against, tally_abstain,
	abstain_backfilled, closed_at, created_by_user_id, created_at`

type Service struct {
	pool     *pgxpool.Pool
	auditor  *audit.Writer
	notifier *notify.Notifier
	metrics  *metrics.Governance
	gate     *meetings.Gate
	now      func() time.Time
}

func NewService(pool *pgxpool.Pool, auditor *audit.Writer, notifier *notify.Notifier, m *metrics.Governance, gate *meetings.Gate) *Service {
	return &Service{
		pool:     pool,
		auditor:  auditor,
		notifier: notifier,
		metrics:  m,
		gate:     gate,
		now:      time.Now,
	}
}

func scanVote(row pgx.Row) (*Vote, error) {
	var v Vote
	var meetingID uuid.NullUUID
	var liveFor, liveAgainst, liveAbstain *int
	var tallyFor, tallyAgainst, tallyAbstain *int
	var outcome *string

	err := row.Scan(
		&v.ID,
		&v.OrgID,
		&v.ResolutionID,
		&meetingID,
		&v.Kind,
		&v.Status,
		&v.OpensAt,
		&v.ClosesAt,
		&liveFor,
		&liveAgainst,
		&liveAbstain,
		&outcome,
		&tallyFor,
		&tallyAgainst,
		&tallyAbstain,
		&v.AbstainBackfilled,
		&v.ClosedAt,
		&v.CreatedByUserID,
		&v.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVoteNotFound
		}
		return nil, fmt.Errorf("failed to scan vote: %w", err)
	}

	if meetingID.Valid {
		v.MeetingID = &meetingID.UUID
	}
	if liveFor != nil && liveAgainst != nil && liveAbstain != nil {
		v.LiveTotals = &LiveTotals{For: *liveFor, Against: *liveAgainst, Abstain: *liveAbstain}
	}
	if outcome != nil {
		o := resolutions.Status(*outcome)
		v.Outcome = &o
	}
	if tallyFor != nil && tallyAgainst != nil && tallyAbstain != nil {
		v.Tally = &Tally{For: *tallyFor, Against: *tallyAgainst, Abstain: *tallyAbstain}
	}
	return &v, nil
}

// loadVote reads a vote through q. lock is "", "FOR SHARE" or "FOR UPDATE".
func loadVote(ctx context.Context, q db.Querier, id uuid.UUID, lock string) (*Vote, error) {
	query := `SELECT ` + voteColumns + ` FROM votes WHERE id = $1`
	if lock != "" {
		query += ` ` + lock
	}
	return scanVote(q.QueryRow(ctx, query, id))
}

func requireRunner(ctx context.Context, q db.Querier, orgID, userID uuid.UUID) error {
	caller, err := orgs.RequireActiveCaller(ctx, q, orgID, userID)
	if err != nil {
		return err
	}
	if !caller.Role.CanRunMeetings() {
		return ErrVoteForbidden
	}
	return nil
}

// participation reads the caller's live record for a meeting vote.
func participation(ctx context.Context, q db.Querier, vote *Vote, membershipID uuid.UUID) (Participation, error) {
	var p Participation
	if vote.MeetingID == nil {
		return p, nil
	}
	err := q.QueryRow(ctx, `
		SELECT
			EXISTS (SELECT 1 FROM meeting_remote_voters WHERE meeting_id = $1 AND membership_id = $2),
			EXISTS (SELECT 1 FROM meeting_attendance WHERE meeting_id = $1 AND membership_id = $2 AND present)
	`, *vote.MeetingID, membershipID).Scan(&p.RegisteredRemote, &p.Present)
	if err != nil {
		return p, fmt.Errorf("failed to load participation: %w", err)
	}
	return p, nil
}

// Get returns a vote to any member of its organization.
func (s *Service) Get(ctx context.Context, voteID, userID uuid.UUID) (*Vote, error) {
	v, err := loadVote(ctx, s.pool, voteID, "")
	if err != nil {
		return nil, err
	}
	if _, err := orgs.RequireActiveCaller(ctx, s.pool, v.OrgID, userID); err != nil {
		return nil, err
	}
	return v, nil
}

// OpenInput is the input to OpenVote. The meeting is taken from the resolution.
type OpenInput struct {
	ResolutionID uuid.UUID
	Kind         Kind
	OpensAt      *time.Time
	ClosesAt     *time.Time
}

// OpenVote opens a vote on a PROPOSED resolution. A resolution has at most
// one OPEN vote at a time.
func (s *Service) OpenVote(ctx context.Context, actorUserID uuid.UUID, in OpenInput) (*Vote, error) {
	if !in.Kind.IsValid() {
		return nil, ErrInvalidKind
	}
	opensAt := s.now()
	if in.OpensAt != nil {
		opensAt = *in.OpensAt
	}
	if in.ClosesAt != nil && !in.ClosesAt.After(opensAt) {
		return nil, ErrInvalidWindow
	}

	var vote *Vote
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		res, err := resolutions.Load(ctx, tx, in.ResolutionID, true)
		if err != nil {
			return err
		}
		if err := requireRunner(ctx, tx, res.OrgID, actorUserID); err != nil {
			return err
		}
		if res.Status != resolutions.StatusProposed {
			return ErrResolutionNotProposed.WithDetails(map[string]any{"status": res.Status})
		}

		if res.MeetingID != nil {
			m, err := meetings.Load(ctx, tx, *res.MeetingID, false)
			if err != nil {
				return err
			}
			if m.Status == meetings.StatusCompleted {
				return ErrMeetingCompleted
			}
		} else if in.Kind == KindGA {
			return ErrGAVoteRequiresMeeting
		}

		vote, err = scanVote(tx.QueryRow(ctx, `
			INSERT INTO votes (org_id, resolution_id, meeting_id, kind, opens_at, closes_at, created_by_user_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING `+voteColumns,
			res.OrgID, res.ID, res.MeetingID, in.Kind, opensAt, in.ClosesAt, actorUserID,
		))
		if err != nil && db.IsUniqueViolation(err) {
			return ErrVoteAlreadyOpen
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Record(audit.Entry{
		OrgID:       vote.OrgID,
		ActorUserID: actorUserID,
		Action:      audit.EventVoteOpened,
		SubjectID:   vote.ID,
		Meta:        map[string]any{"resolution_id": vote.ResolutionID, "kind": vote.Kind},
	})
	return vote, nil
}

// CanCastVote evaluates eligibility without writing anything. The error is
// only set for infrastructure failures; denials are in the Eligibility.
func (s *Service) CanCastVote(ctx context.Context, voteID, userID uuid.UUID, channel Channel) (Eligibility, error) {
	return s.eligibility(ctx, s.pool, voteID, userID, channel, "")
}

func (s *Service) eligibility(ctx context.Context, q db.Querier, voteID, userID uuid.UUID, channel Channel, lock string) (Eligibility, error) {
	e, _, _, err := s.evaluate(ctx, q, voteID, userID, channel, lock)
	return e, err
}

func (s *Service) evaluate(ctx context.Context, q db.Querier, voteID, userID uuid.UUID, channel Channel, lock string) (Eligibility, *Vote, *orgs.Caller, error) {
	vote, err := loadVote(ctx, q, voteID, lock)
	if errors.Is(err, ErrVoteNotFound) {
		return Evaluate(nil, nil, channel, Participation{}, s.now()), nil, nil, nil
	}
	if err != nil {
		return Eligibility{}, nil, nil, err
	}

	caller, err := orgs.ResolveCaller(ctx, q, vote.OrgID, userID)
	if errors.Is(err, orgs.ErrNotMember) {
		return Evaluate(vote, nil, channel, Participation{}, s.now()), vote, nil, nil
	}
	if err != nil {
		return Eligibility{}, nil, nil, err
	}

	p, err := participation(ctx, q, vote, caller.MembershipID)
	if err != nil {
		return Eligibility{}, nil, nil, err
	}
	return Evaluate(vote, caller, channel, p, s.now()), vote, caller, nil
}

// CastVote records the caller's choice. The ballot is keyed by (vote,
// membership): casting again overwrites the choice. The vote row is held FOR
// SHARE so a concurrent close waits for the ballot, or the ballot sees the
// vote closed.
func (s *Service) CastVote(ctx context.Context, voteID, userID uuid.UUID, choice Choice, channel Channel) (*Ballot, error) {
	if !choice.IsValid() {
		return nil, ErrInvalidChoice
	}

	var ballot Ballot
	var orgID uuid.UUID
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		e, vote, caller, err := s.evaluate(ctx, tx, voteID, userID, channel, "FOR SHARE")
		if err != nil {
			return err
		}
		if !e.Allowed {
			log.Debug().
				Str("vote_id", voteID.String()).
				Str("user_id", userID.String()).
				Str("reason", e.Reason).
				Msg("Ballot refused")
			return e.Err()
		}
		orgID = vote.OrgID

		return tx.QueryRow(ctx, `
			INSERT INTO ballots (vote_id, membership_id, choice, channel)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT ON CONSTRAINT uq_ballots_vote_membership
			DO UPDATE SET choice = EXCLUDED.choice, channel = EXCLUDED.channel, updated_at = NOW()
			RETURNING id, vote_id, membership_id, choice, channel, cast_at, updated_at, (xmax <> 0)
		`, voteID, caller.MembershipID, choice, channel).Scan(
			&ballot.ID,
			&ballot.VoteID,
			&ballot.MembershipID,
			&ballot.Choice,
			&ballot.Channel,
			&ballot.CastAt,
			&ballot.UpdatedAt,
			&ballot.Overwritten,
		)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.BallotCast(string(channel), ballot.Overwritten)
	log.Info().
		Str("vote_id", voteID.String()).
		Str("org_id", orgID.String()).
		Str("channel", string(channel)).
		Bool("overwritten", ballot.Overwritten).
		Msg("Ballot cast")
	return &ballot, nil
}

// SetLiveTotals records show-of-hands totals for a meeting vote. FOR is
// derived as attendees - against - abstain; totals that do not fit the
// attendance are rejected before anything is written.
func (s *Service) SetLiveTotals(ctx context.Context, voteID, actorUserID uuid.UUID, against, abstain int) (LiveTotals, error) {
	if against < 0 || abstain < 0 {
		return LiveTotals{}, ErrNegativeTotals
	}

	var totals LiveTotals
	var vote *Vote
	var attendees int
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		vote, err = loadVote(ctx, tx, voteID, "FOR UPDATE")
		if err != nil {
			return err
		}
		if err := requireRunner(ctx, tx, vote.OrgID, actorUserID); err != nil {
			return err
		}
		if vote.Status != StatusOpen {
			return ErrVoteNotOpen
		}
		if vote.MeetingID == nil {
			return ErrLiveTotalsRequireMeeting
		}

		var ballots int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM ballots WHERE vote_id = $1`, vote.ID).Scan(&ballots); err != nil {
			return fmt.Errorf("failed to count ballots: %w", err)
		}
		if ballots > 0 {
			return ErrVoteHasBallots.WithDetails(map[string]any{"ballots": ballots})
		}

		if err := tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM meeting_attendance WHERE meeting_id = $1 AND present
		`, *vote.MeetingID).Scan(&attendees); err != nil {
			return fmt.Errorf("failed to count attendees: %w", err)
		}

		totals, err = DeriveLiveTotals(attendees, against, abstain)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE votes SET live_for = $2, live_against = $3, live_abstain = $4 WHERE id = $1
		`, vote.ID, totals.For, totals.Against, totals.Abstain); err != nil {
			return fmt.Errorf("failed to store live totals: %w", err)
		}
		return nil
	})
	if err != nil {
		return LiveTotals{}, err
	}

	s.auditor.Record(audit.Entry{
		OrgID:       vote.OrgID,
		ActorUserID: actorUserID,
		Action:      audit.EventVoteLiveTotalsRecorded,
		SubjectID:   vote.ID,
		Meta: map[string]any{
			"attendees": attendees,
			"for":       totals.For,
			"against":   totals.Against,
			"abstain":   totals.Abstain,
		},
	})
	return totals, nil
}
