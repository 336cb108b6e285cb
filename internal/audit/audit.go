package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aliuyar1234/govern/internal/db"
	"github.com/aliuyar1234/govern/internal/jobs"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	EventOrgCreated             = "org.created"
	EventOrgGovernanceSaved     = "org.governance_saved"
	EventOrgConsentAccepted     = "org.consent_accepted"
	EventOrgSubmitted           = "org.submitted_for_review"
	EventOrgActivated           = "org.activated"
	EventOrgDeclined            = "org.declined"
	EventOrgMemberRoleUpdated   = "org.member_role_updated"
	EventOrgMemberStatusUpdated = "org.member_status_updated"
	EventOrgMemberRemoved       = "org.member_removed"
	EventOrgPositionAdded       = "org.position_added"
	EventResolutionCreated      = "resolution.created"
	EventResolutionProposed     = "resolution.proposed"
	EventResolutionDecided      = "resolution.decided"
	EventResolutionProjectInit  = "resolution.project_initialized"
	EventResolutionIndicator    = "resolution.indicator_updated"
	EventMeetingCreated         = "meeting.created"
	EventMeetingCompleted       = "meeting.completed"
	EventAgendaItemAdded        = "meeting.agenda_item_added"
	EventAgendaOutcomeApplied   = "meeting.agenda_outcome_applied"
	EventProceduralItemRepaired = "meeting.procedural_item_repaired"
	EventVoteOpened             = "vote.opened"
	EventVoteLiveTotalsRecorded = "vote.live_totals_recorded"
	EventVoteClosed             = "vote.closed"
)

// Entry is one audit log record.
type Entry struct {
	OrgID       uuid.UUID
	ActorUserID uuid.UUID
	Action      string
	SubjectID   uuid.UUID
	Meta        map[string]any
}

// Writer persists audit entries. Writes are side effects: Record hands them to
// the job runner so a failed audit insert never fails the governance action.
type Writer struct {
	q      db.Querier
	runner *jobs.Runner
}

func NewWriter(q db.Querier, runner *jobs.Runner) *Writer {
	return &Writer{q: q, runner: runner}
}

// Log inserts e synchronously.
func (w *Writer) Log(ctx context.Context, e Entry) error {
	metaJSON := []byte("{}")
	if e.Meta != nil {
		b, err := json.Marshal(e.Meta)
		if err != nil {
			return fmt.Errorf("failed to marshal audit meta: %w", err)
		}
		metaJSON = b
	}

	_, err := w.q.Exec(ctx, `
		INSERT INTO audit_log (org_id, actor_user_id, action, subject_id, meta)
		VALUES ($1, $2, $3, $4, $5)
	`, toNullUUID(e.OrgID), toNullUUID(e.ActorUserID), e.Action, toNullUUID(e.SubjectID), metaJSON)
	if err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}

	log.Info().
		Str("action", e.Action).
		Str("org_id", e.OrgID.String()).
		Str("actor_user_id", e.ActorUserID.String()).
		Str("subject_id", e.SubjectID.String()).
		Msg("Audit event logged")

	return nil
}

// Record queues e as a detached best-effort job.
func (w *Writer) Record(e Entry) {
	if w == nil {
		return
	}
	w.runner.Submit("audit."+e.Action, func(ctx context.Context) error {
		return w.Log(ctx, e)
	})
}

func toNullUUID(id uuid.UUID) uuid.NullUUID {
	if id == uuid.Nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: id, Valid: true}
}
