package meetings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aliuyar1234/govern/internal/audit"
	"github.com/aliuyar1234/govern/internal/db"
	"github.com/aliuyar1234/govern/internal/metrics"
	"github.com/aliuyar1234/govern/internal/notify"
	"github.com/aliuyar1234/govern/internal/orgs"
	"github.com/aliuyar1234/govern/internal/quorum"
	"github.com/aliuyar1234/govern/internal/resolutions"
	"github.com/aliuyar1234/govern/internal/validation"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const meetingColumns = `id, org_id, title, meeting_type, status, scheduled_at, protocol_url, created_by_user_id, created_at, updated_at`

// VoteCloser closes every open vote of a meeting. Each vote is closed on its
// own; closed is the number that succeeded and firstErr the first failure.
type VoteCloser interface {
	CloseMeetingVotes(ctx context.Context, meetingID, actorUserID uuid.UUID) (closed int, firstErr error)
}

type Service struct {
	pool     *pgxpool.Pool
	auditor  *audit.Writer
	notifier *notify.Notifier
	metrics  *metrics.Governance
	gate     *Gate
}

func NewService(pool *pgxpool.Pool, auditor *audit.Writer, notifier *notify.Notifier, m *metrics.Governance) *Service {
	return &Service{
		pool:     pool,
		auditor:  auditor,
		notifier: notifier,
		metrics:  m,
		gate:     NewGate(auditor, m),
	}
}

// Gate returns the procedural gate shared with the voting engine.
func (s *Service) Gate() *Gate {
	return s.gate
}

func scanMeeting(row pgx.Row) (*Meeting, error) {
	var m Meeting
	err := row.Scan(
		&m.ID,
		&m.OrgID,
		&m.Title,
		&m.Type,
		&m.Status,
		&m.ScheduledAt,
		&m.ProtocolURL,
		&m.CreatedByUserID,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMeetingNotFound
		}
		return nil, fmt.Errorf("failed to scan meeting: %w", err)
	}
	return &m, nil
}

// Load reads a meeting through q, optionally locking the row.
func Load(ctx context.Context, q db.Querier, id uuid.UUID, forUpdate bool) (*Meeting, error) {
	query := `SELECT ` + meetingColumns + ` FROM meetings WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	return scanMeeting(q.QueryRow(ctx, query, id))
}

func requireRunner(ctx context.Context, q db.Querier, orgID, userID uuid.UUID) (*orgs.Caller, error) {
	caller, err := orgs.RequireActiveCaller(ctx, q, orgID, userID)
	if err != nil {
		return nil, err
	}
	if !caller.Role.CanRunMeetings() {
		return nil, ErrMeetingForbidden
	}
	return caller, nil
}

// CreateMeeting creates a meeting. A general assembly gets agenda items 1-3,
// each linked to its own PROPOSED resolution, in the same transaction.
func (s *Service) CreateMeeting(ctx context.Context, orgID, actorUserID uuid.UUID, title string, meetingType MeetingType, scheduledAt time.Time) (*Meeting, []AgendaItem, error) {
	title = validation.SanitizeTitle(title)
	if title == "" {
		return nil, nil, ErrTitleRequired
	}
	if !meetingType.IsValid() {
		return nil, nil, ErrInvalidMeetingType
	}
	if _, err := requireRunner(ctx, s.pool, orgID, actorUserID); err != nil {
		return nil, nil, err
	}

	var meeting *Meeting
	var agenda []AgendaItem
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		m, err := scanMeeting(tx.QueryRow(ctx, `
			INSERT INTO meetings (org_id, title, meeting_type, scheduled_at, created_by_user_id)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+meetingColumns,
			orgID, title, meetingType, scheduledAt, actorUserID,
		))
		if err != nil {
			return err
		}

		if m.HasProceduralSequence() {
			for _, t := range proceduralTemplates {
				res, err := createProceduralResolution(ctx, tx, m, t)
				if err != nil {
					return err
				}
				item, err := insertAgendaItem(ctx, tx, m, t.ItemNo, t.Title, res.ID)
				if err != nil {
					return err
				}
				item.ResolutionStatus = res.Status
				agenda = append(agenda, *item)
			}
		}

		meeting = m
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	log.Info().
		Str("meeting_id", meeting.ID.String()).
		Str("org_id", orgID.String()).
		Str("meeting_type", string(meetingType)).
		Int("procedural_items", len(agenda)).
		Msg("Meeting created")

	s.auditor.Record(audit.Entry{
		OrgID:       orgID,
		ActorUserID: actorUserID,
		Action:      audit.EventMeetingCreated,
		SubjectID:   meeting.ID,
		Meta:        map[string]any{"meeting_type": meetingType, "title": title},
	})
	return meeting, agenda, nil
}

func insertAgendaItem(ctx context.Context, q db.Querier, m *Meeting, itemNo int, title string, resolutionID uuid.UUID) (*AgendaItem, error) {
	item := AgendaItem{
		MeetingID:    m.ID,
		ItemNo:       itemNo,
		Title:        title,
		ResolutionID: &resolutionID,
		Procedural:   m.IsProceduralItem(itemNo),
	}
	err := q.QueryRow(ctx, `
		INSERT INTO agenda_items (meeting_id, item_no, title, resolution_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, m.ID, itemNo, title, resolutionID).Scan(&item.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create agenda item %d: %w", itemNo, err)
	}
	return &item, nil
}

// AddAgendaItem appends a substantive item with its own DRAFT resolution.
func (s *Service) AddAgendaItem(ctx context.Context, meetingID, actorUserID uuid.UUID, title, content string) (*AgendaItem, *resolutions.Resolution, error) {
	title = validation.SanitizeTitle(title)
	if title == "" {
		return nil, nil, ErrTitleRequired
	}

	var item *AgendaItem
	var res *resolutions.Resolution
	var meeting *Meeting
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		m, err := Load(ctx, tx, meetingID, true)
		if err != nil {
			return err
		}
		if _, err := requireRunner(ctx, tx, m.OrgID, actorUserID); err != nil {
			return err
		}
		if m.Status == StatusCompleted {
			return ErrMeetingCompleted
		}

		var maxNo int
		if err := tx.QueryRow(ctx, `
			SELECT COALESCE(MAX(item_no), 0) FROM agenda_items WHERE meeting_id = $1
		`, m.ID).Scan(&maxNo); err != nil {
			return fmt.Errorf("failed to number agenda item: %w", err)
		}
		itemNo := max(maxNo+1, m.firstSubstantiveItemNo())

		res, err = resolutions.Insert(ctx, tx, resolutions.NewResolution{
			OrgID:           m.OrgID,
			MeetingID:       &m.ID,
			Title:           title,
			Content:         content,
			Status:          resolutions.StatusDraft,
			CreatedByUserID: actorUserID,
		})
		if err != nil {
			return err
		}

		item, err = insertAgendaItem(ctx, tx, m, itemNo, res.Title, res.ID)
		if err != nil {
			return err
		}
		item.ResolutionStatus = res.Status
		meeting = m
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.auditor.Record(audit.Entry{
		OrgID:       meeting.OrgID,
		ActorUserID: actorUserID,
		Action:      audit.EventAgendaItemAdded,
		SubjectID:   meeting.ID,
		Meta:        map[string]any{"item_no": item.ItemNo, "resolution_id": res.ID},
	})
	return item, res, nil
}

// ProceduralStatus reports the gate state of a meeting, repairing procedural
// items whose resolution has gone missing.
func (s *Service) ProceduralStatus(ctx context.Context, meetingID, actorUserID uuid.UUID) (GateStatus, error) {
	var status GateStatus
	var meeting *Meeting
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		m, err := Load(ctx, tx, meetingID, false)
		if err != nil {
			return err
		}
		if _, err := orgs.RequireActiveCaller(ctx, tx, m.OrgID, actorUserID); err != nil {
			return err
		}
		status, err = s.gate.Status(ctx, tx, m)
		meeting = m
		return err
	})
	if err != nil {
		return GateStatus{}, err
	}

	s.gate.RecordRepairs(meeting, actorUserID, status)
	return status, nil
}

// ApplyAgendaOutcome records the decision on an agenda item from the meeting
// protocol. Substantive items require the procedural sequence first. A DRAFT
// resolution is proposed on the way to its outcome.
func (s *Service) ApplyAgendaOutcome(ctx context.Context, meetingID uuid.UUID, itemNo int, actorUserID uuid.UUID, approve bool) (*resolutions.Resolution, error) {
	var res *resolutions.Resolution
	var meeting *Meeting
	var gate GateStatus
	var gateErr error

	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		m, err := Load(ctx, tx, meetingID, true)
		if err != nil {
			return err
		}
		meeting = m
		if _, err := requireRunner(ctx, tx, m.OrgID, actorUserID); err != nil {
			return err
		}
		if m.Status == StatusCompleted {
			return ErrMeetingCompleted
		}

		// Commit any repair the gate made even when it refuses.
		gate, gateErr = s.gate.Require(ctx, tx, m, itemNo)
		if gateErr != nil {
			if errors.Is(gateErr, ErrProceduralSequenceIncomplete) {
				return nil
			}
			return gateErr
		}

		var resolutionID uuid.NullUUID
		err = tx.QueryRow(ctx, `
			SELECT resolution_id FROM agenda_items WHERE meeting_id = $1 AND item_no = $2
		`, m.ID, itemNo).Scan(&resolutionID)
		if errors.Is(err, pgx.ErrNoRows) || (err == nil && !resolutionID.Valid) {
			return ErrAgendaItemNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load agenda item: %w", err)
		}

		var voteOpen bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM votes WHERE resolution_id = $1 AND status = 'OPEN')
		`, resolutionID.UUID).Scan(&voteOpen); err != nil {
			return fmt.Errorf("failed to check open votes: %w", err)
		}
		if voteOpen {
			return ErrAgendaItemHasOpenVote
		}

		current, err := resolutions.Load(ctx, tx, resolutionID.UUID, true)
		if err != nil {
			return err
		}
		if current.Status == resolutions.StatusDraft {
			if _, err := resolutions.Transition(ctx, tx, current.ID, resolutions.StatusProposed); err != nil {
				return err
			}
		}

		res, err = resolutions.Transition(ctx, tx, current.ID, resolutions.Outcome(approve))
		return err
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

	s.metrics.ResolutionTransition(string(res.Status))
	s.auditor.Record(audit.Entry{
		OrgID:       meeting.OrgID,
		ActorUserID: actorUserID,
		Action:      audit.EventAgendaOutcomeApplied,
		SubjectID:   meeting.ID,
		Meta:        map[string]any{"item_no": itemNo, "resolution_id": res.ID, "status": res.Status},
	})
	return res, nil
}

// membershipInOrg returns the status of membershipID if it belongs to orgID.
func membershipInOrg(ctx context.Context, q db.Querier, orgID, membershipID uuid.UUID) (orgs.MemberStatus, error) {
	var status orgs.MemberStatus
	err := q.QueryRow(ctx, `
		SELECT member_status FROM org_memberships WHERE id = $1 AND org_id = $2
	`, membershipID, orgID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrMembershipNotInOrg
	}
	if err != nil {
		return "", fmt.Errorf("failed to load membership: %w", err)
	}
	return status, nil
}

// RegisterRemoteVoter registers a membership for remote voting. Members
// register themselves; meeting runners may register anyone. A nil membershipID
// means the caller's own membership.
func (s *Service) RegisterRemoteVoter(ctx context.Context, meetingID, actorUserID uuid.UUID, membershipID *uuid.UUID) (uuid.UUID, error) {
	m, err := Load(ctx, s.pool, meetingID, false)
	if err != nil {
		return uuid.Nil, err
	}
	if m.Status == StatusCompleted {
		return uuid.Nil, ErrMeetingCompleted
	}

	caller, err := orgs.RequireActiveCaller(ctx, s.pool, m.OrgID, actorUserID)
	if err != nil {
		return uuid.Nil, err
	}

	target := caller.MembershipID
	if membershipID != nil && *membershipID != caller.MembershipID {
		if !caller.Role.CanRunMeetings() {
			return uuid.Nil, ErrMeetingForbidden
		}
		status, err := membershipInOrg(ctx, s.pool, m.OrgID, *membershipID)
		if err != nil {
			return uuid.Nil, err
		}
		if status != orgs.MemberActive {
			return uuid.Nil, ErrParticipantInactive
		}
		target = *membershipID
	}

	if _, err := s.pool.Exec(ctx, `
		INSERT INTO meeting_remote_voters (meeting_id, membership_id)
		VALUES ($1, $2)
		ON CONFLICT (meeting_id, membership_id) DO NOTHING
	`, m.ID, target); err != nil {
		return uuid.Nil, fmt.Errorf("failed to register remote voter: %w", err)
	}
	return target, nil
}

// MarkAttendance records whether a membership is present in the room.
func (s *Service) MarkAttendance(ctx context.Context, meetingID, actorUserID, membershipID uuid.UUID, present bool) error {
	m, err := Load(ctx, s.pool, meetingID, false)
	if err != nil {
		return err
	}
	if m.Status == StatusCompleted {
		return ErrMeetingCompleted
	}
	if _, err := requireRunner(ctx, s.pool, m.OrgID, actorUserID); err != nil {
		return err
	}

	status, err := membershipInOrg(ctx, s.pool, m.OrgID, membershipID)
	if err != nil {
		return err
	}
	if present && status != orgs.MemberActive {
		return ErrParticipantInactive
	}

	if _, err := s.pool.Exec(ctx, `
		INSERT INTO meeting_attendance (meeting_id, membership_id, present)
		VALUES ($1, $2, $3)
		ON CONFLICT (meeting_id, membership_id) DO UPDATE SET present = EXCLUDED.present, marked_at = NOW()
	`, m.ID, membershipID, present); err != nil {
		return fmt.Errorf("failed to mark attendance: %w", err)
	}
	return nil
}

// Participants returns the registered remote voters and the members marked
// present at meetingID.
func Participants(ctx context.Context, q db.Querier, meetingID uuid.UUID) (remote, live []uuid.UUID, err error) {
	remote, err = collectIDs(ctx, q, `SELECT membership_id FROM meeting_remote_voters WHERE meeting_id = $1`, meetingID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load remote voters: %w", err)
	}
	live, err = collectIDs(ctx, q, `SELECT membership_id FROM meeting_attendance WHERE meeting_id = $1 AND present`, meetingID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load attendance: %w", err)
	}
	return remote, live, nil
}

func collectIDs(ctx context.Context, q db.Querier, query string, args ...any) ([]uuid.UUID, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

// GetMeetingView returns the meeting, its agenda and the advisory quorum.
func (s *Service) GetMeetingView(ctx context.Context, meetingID, actorUserID uuid.UUID) (*View, error) {
	m, err := Load(ctx, s.pool, meetingID, false)
	if err != nil {
		return nil, err
	}
	if _, err := orgs.RequireActiveCaller(ctx, s.pool, m.OrgID, actorUserID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT a.id, a.item_no, a.title, a.resolution_id, COALESCE(r.status, '')
		FROM agenda_items a
		LEFT JOIN resolutions r ON r.id = a.resolution_id
		WHERE a.meeting_id = $1
		ORDER BY a.item_no
	`, m.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load agenda: %w", err)
	}
	defer rows.Close()

	agenda := []AgendaItem{}
	for rows.Next() {
		item := AgendaItem{MeetingID: m.ID}
		var resolutionID uuid.NullUUID
		if err := rows.Scan(&item.ID, &item.ItemNo, &item.Title, &resolutionID, &item.ResolutionStatus); err != nil {
			return nil, fmt.Errorf("failed to scan agenda item: %w", err)
		}
		if resolutionID.Valid {
			item.ResolutionID = &resolutionID.UUID
		}
		item.Procedural = m.IsProceduralItem(item.ItemNo)
		agenda = append(agenda, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load agenda: %w", err)
	}

	totalActive, err := orgs.CountActiveMembers(ctx, s.pool, m.OrgID)
	if err != nil {
		return nil, err
	}
	remote, live, err := Participants(ctx, s.pool, m.ID)
	if err != nil {
		return nil, err
	}

	return &View{
		Meeting: m,
		Agenda:  agenda,
		Quorum:  quorum.Calculate(totalActive, remote, live),
	}, nil
}

// CompletionResult is returned by CompleteMeeting.
type CompletionResult struct {
	Meeting     *Meeting `json:"meeting"`
	VotesClosed int      `json:"votes_closed"`
}

// CompleteMeeting closes every open vote of the meeting and then marks it
// COMPLETED with the protocol URL. The meeting stays open if any vote could
// not be closed.
func (s *Service) CompleteMeeting(ctx context.Context, meetingID, actorUserID uuid.UUID, protocolURL string, closer VoteCloser) (*CompletionResult, error) {
	m, err := Load(ctx, s.pool, meetingID, false)
	if err != nil {
		return nil, err
	}
	if _, err := requireRunner(ctx, s.pool, m.OrgID, actorUserID); err != nil {
		return nil, err
	}
	if m.Status == StatusCompleted {
		return &CompletionResult{Meeting: m}, nil
	}

	closed, firstErr := closer.CloseMeetingVotes(ctx, m.ID, actorUserID)
	if firstErr != nil {
		log.Warn().
			Err(firstErr).
			Str("meeting_id", m.ID.String()).
			Int("votes_closed", closed).
			Msg("Meeting completion blocked by a vote that failed to close")
		return nil, ErrVotesStillOpen.WithDetails(map[string]any{
			"closed_count": closed,
			"first_error":  firstErr.Error(),
		})
	}

	var url *string
	if trimmed := strings.TrimSpace(protocolURL); trimmed != "" {
		url = &trimmed
	}

	completed, err := scanMeeting(s.pool.QueryRow(ctx, `
		UPDATE meetings
		SET status = 'COMPLETED', protocol_url = COALESCE($2, protocol_url), updated_at = NOW()
		WHERE id = $1 AND status <> 'COMPLETED'
		RETURNING `+meetingColumns,
		m.ID, url,
	))
	if errors.Is(err, ErrMeetingNotFound) {
		completed, err = Load(ctx, s.pool, m.ID, false)
	}
	if err != nil {
		return nil, err
	}

	s.auditor.Record(audit.Entry{
		OrgID:       m.OrgID,
		ActorUserID: actorUserID,
		Action:      audit.EventMeetingCompleted,
		SubjectID:   m.ID,
		Meta:        map[string]any{"votes_closed": closed, "protocol_url": url},
	})
	s.notifier.Send(notify.Message{
		Event:   notify.EventMeetingCompleted,
		OrgID:   m.OrgID,
		Subject: m.Title,
		Text:    fmt.Sprintf("Meeting %q completed, %d vote(s) closed", m.Title, closed),
		Fields:  map[string]any{"meeting_id": m.ID, "votes_closed": closed},
	})

	return &CompletionResult{Meeting: completed, VotesClosed: closed}, nil
}
