package resolutions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aliuyar1234/govern/internal/audit"
	"github.com/aliuyar1234/govern/internal/db"
	"github.com/aliuyar1234/govern/internal/metrics"
	"github.com/aliuyar1234/govern/internal/orgs"
	"github.com/aliuyar1234/govern/internal/validation"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const resolutionColumns = `id, org_id, meeting_id, title, content, status, visibility, metadata, created_by_user_id, decided_at, created_at, updated_at`

// Service owns the resolution state machine and its metadata families.
type Service struct {
	pool    *pgxpool.Pool
	auditor *audit.Writer
	metrics *metrics.Governance
	now     func() time.Time
}

func NewService(pool *pgxpool.Pool, auditor *audit.Writer, m *metrics.Governance) *Service {
	return &Service{pool: pool, auditor: auditor, metrics: m, now: time.Now}
}

func scanResolution(row pgx.Row) (*Resolution, error) {
	var r Resolution
	var meetingID uuid.NullUUID
	err := row.Scan(
		&r.ID,
		&r.OrgID,
		&meetingID,
		&r.Title,
		&r.Content,
		&r.Status,
		&r.Visibility,
		&r.Metadata,
		&r.CreatedByUserID,
		&r.DecidedAt,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrResolutionNotFound
		}
		return nil, fmt.Errorf("failed to scan resolution: %w", err)
	}
	if meetingID.Valid {
		r.MeetingID = &meetingID.UUID
	}
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
	return &r, nil
}

// Load reads a resolution through q, optionally locking the row.
func Load(ctx context.Context, q db.Querier, id uuid.UUID, forUpdate bool) (*Resolution, error) {
	query := `SELECT ` + resolutionColumns + ` FROM resolutions WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	return scanResolution(q.QueryRow(ctx, query, id))
}

// Insert writes a new resolution through q. Title and content are sanitized.
func Insert(ctx context.Context, q db.Querier, in NewResolution) (*Resolution, error) {
	title := validation.SanitizeTitle(in.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	if in.Visibility == "" {
		in.Visibility = VisibilityMembers
	}
	if !in.Visibility.IsValid() {
		return nil, ErrInvalidVisibility
	}
	if in.Status == "" {
		in.Status = StatusDraft
	}

	return scanResolution(q.QueryRow(ctx, `
		INSERT INTO resolutions (org_id, meeting_id, title, content, status, visibility, created_by_user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+resolutionColumns,
		in.OrgID, in.MeetingID, title, validation.SanitizeContent(in.Content), in.Status, in.Visibility, in.CreatedByUserID,
	))
}

// Transition moves a resolution to `to` with a write that only matches rows
// currently in a legal source state. A lost race is reported as
// ErrInvalidTransition with the status actually found.
func Transition(ctx context.Context, q db.Querier, id uuid.UUID, to Status) (*Resolution, error) {
	sources := sourcesFor(to)
	if len(sources) == 0 {
		return nil, ErrInvalidTransition.WithDetails(map[string]any{"to": to})
	}

	r, err := scanResolution(q.QueryRow(ctx, `
		UPDATE resolutions
		SET status = $2,
		    decided_at = CASE WHEN $2 IN ('APPROVED', 'REJECTED') THEN NOW() ELSE decided_at END,
		    updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)
		RETURNING `+resolutionColumns,
		id, to, sources,
	))
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, ErrResolutionNotFound) {
		return nil, fmt.Errorf("failed to transition resolution: %w", err)
	}

	current, loadErr := Load(ctx, q, id, false)
	if loadErr != nil {
		return nil, loadErr
	}
	return nil, ErrInvalidTransition.WithDetails(map[string]any{"from": current.Status, "to": to})
}

func canAuthor(c *orgs.Caller) bool {
	return c.IsActive() && (c.Role.CanRunMeetings() || c.IsBoard())
}

// Get returns a resolution visible to userID's organization membership.
func (s *Service) Get(ctx context.Context, id, userID uuid.UUID) (*Resolution, error) {
	r, err := Load(ctx, s.pool, id, false)
	if err != nil {
		return nil, err
	}
	if _, err := orgs.RequireActiveCaller(ctx, s.pool, r.OrgID, userID); err != nil {
		return nil, err
	}
	return r, nil
}

// Create adds a DRAFT resolution to orgID.
func (s *Service) Create(ctx context.Context, orgID, actorUserID uuid.UUID, in NewResolution) (*Resolution, error) {
	caller, err := orgs.RequireActiveCaller(ctx, s.pool, orgID, actorUserID)
	if err != nil {
		return nil, err
	}
	if !canAuthor(caller) {
		return nil, ErrAuthorForbidden
	}

	in.OrgID = orgID
	in.Status = StatusDraft
	in.CreatedByUserID = actorUserID
	r, err := Insert(ctx, s.pool, in)
	if err != nil {
		return nil, err
	}

	s.auditor.Record(audit.Entry{
		OrgID:       orgID,
		ActorUserID: actorUserID,
		Action:      audit.EventResolutionCreated,
		SubjectID:   r.ID,
		Meta:        map[string]any{"title": r.Title},
	})
	return r, nil
}

// Propose moves a DRAFT resolution to PROPOSED.
func (s *Service) Propose(ctx context.Context, id, actorUserID uuid.UUID) (*Resolution, error) {
	current, err := s.authorize(ctx, id, actorUserID)
	if err != nil {
		return nil, err
	}

	if !current.Status.CanTransitionTo(StatusProposed) {
		return nil, ErrInvalidTransition.WithDetails(map[string]any{"from": current.Status, "to": StatusProposed})
	}

	r, err := Transition(ctx, s.pool, id, StatusProposed)
	if err != nil {
		return nil, err
	}
	s.metrics.ResolutionTransition(string(StatusProposed))

	s.auditor.Record(audit.Entry{
		OrgID:       current.OrgID,
		ActorUserID: actorUserID,
		Action:      audit.EventResolutionProposed,
		SubjectID:   id,
	})
	return r, nil
}

// Decide approves or rejects a PROPOSED resolution that is not bound to a
// meeting. Meeting resolutions are decided by vote or agenda outcome, and a
// resolution with an OPEN vote is decided by closing that vote.
func (s *Service) Decide(ctx context.Context, id, actorUserID uuid.UUID, approve bool) (*Resolution, error) {
	current, err := s.authorize(ctx, id, actorUserID)
	if err != nil {
		return nil, err
	}
	if current.MeetingID != nil {
		return nil, ErrMeetingBound.WithDetails(map[string]any{"meeting_id": *current.MeetingID})
	}

	to := Outcome(approve)
	var r *Resolution
	err = db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		locked, err := Load(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if !locked.Status.CanTransitionTo(to) {
			return ErrInvalidTransition.WithDetails(map[string]any{"from": locked.Status, "to": to})
		}

		var voteOpen bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM votes WHERE resolution_id = $1 AND status = 'OPEN')
		`, id).Scan(&voteOpen); err != nil {
			return fmt.Errorf("failed to check open votes: %w", err)
		}
		if voteOpen {
			return ErrVoteOpen
		}

		r, err = Transition(ctx, tx, id, to)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ResolutionTransition(string(to))

	s.auditor.Record(audit.Entry{
		OrgID:       current.OrgID,
		ActorUserID: actorUserID,
		Action:      audit.EventResolutionDecided,
		SubjectID:   id,
		Meta:        map[string]any{"status": to, "source": "direct"},
	})
	return r, nil
}

func (s *Service) authorize(ctx context.Context, id, actorUserID uuid.UUID) (*Resolution, error) {
	current, err := Load(ctx, s.pool, id, false)
	if err != nil {
		return nil, err
	}
	caller, err := orgs.RequireActiveCaller(ctx, s.pool, current.OrgID, actorUserID)
	if err != nil {
		return nil, err
	}
	if !canAuthor(caller) {
		return nil, ErrAuthorForbidden
	}
	return current, nil
}

// InitializeProject writes the project.* family once, while the resolution is
// still a DRAFT. The write re-checks both conditions so a concurrent approval
// or initialization cannot be overwritten.
func (s *Service) InitializeProject(ctx context.Context, id, actorUserID uuid.UUID, in ProjectInit) (*Resolution, error) {
	current, err := s.authorize(ctx, id, actorUserID)
	if err != nil {
		return nil, err
	}
	if current.Status != StatusDraft {
		return nil, ErrNotDraft.WithDetails(map[string]any{"status": current.Status})
	}
	if HasKeys(current.Metadata, ProjectPrefix) {
		return nil, ErrProjectAlreadyInitialized
	}

	patch, err := ProjectPatch(in)
	if err != nil {
		return nil, err
	}

	r, err := scanResolution(s.pool.QueryRow(ctx, `
		UPDATE resolutions
		SET metadata = metadata || $2::jsonb, updated_at = NOW()
		WHERE id = $1
		  AND status = 'DRAFT'
		  AND NOT EXISTS (
		      SELECT 1 FROM jsonb_object_keys(resolutions.metadata) AS k WHERE k LIKE 'project.%'
		  )
		RETURNING `+resolutionColumns,
		id, patch,
	))
	if errors.Is(err, ErrResolutionNotFound) {
		latest, loadErr := Load(ctx, s.pool, id, false)
		if loadErr != nil {
			return nil, loadErr
		}
		if latest.Status != StatusDraft {
			return nil, ErrNotDraft.WithDetails(map[string]any{"status": latest.Status})
		}
		return nil, ErrProjectAlreadyInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize project: %w", err)
	}

	s.auditor.Record(audit.Entry{
		OrgID:       current.OrgID,
		ActorUserID: actorUserID,
		Action:      audit.EventResolutionProjectInit,
		SubjectID:   id,
		Meta:        patch,
	})
	return r, nil
}

// UpdateIndicator merges indicator.* values into an APPROVED resolution.
// Only board members or the chair may report progress.
func (s *Service) UpdateIndicator(ctx context.Context, id, actorUserID uuid.UUID, in IndicatorUpdate) (*Resolution, error) {
	current, err := Load(ctx, s.pool, id, false)
	if err != nil {
		return nil, err
	}

	caller, err := orgs.RequireActiveCaller(ctx, s.pool, current.OrgID, actorUserID)
	if err != nil {
		return nil, err
	}
	if !caller.CanOverseeIndicators() {
		log.Warn().
			Str("user_id", actorUserID.String()).
			Str("resolution_id", id.String()).
			Str("user_role", string(caller.Role)).
			Msg("RBAC: Indicator update without board or chair authority")
		return nil, ErrIndicatorForbidden
	}

	patch, err := IndicatorPatch(in, actorUserID, s.now())
	if err != nil {
		return nil, err
	}
	if current.Status != StatusApproved {
		return nil, ErrNotApproved.WithDetails(map[string]any{"status": current.Status})
	}

	r, err := scanResolution(s.pool.QueryRow(ctx, `
		UPDATE resolutions
		SET metadata = metadata || $2::jsonb, updated_at = NOW()
		WHERE id = $1 AND status = 'APPROVED'
		RETURNING `+resolutionColumns,
		id, patch,
	))
	if errors.Is(err, ErrResolutionNotFound) {
		return nil, ErrNotApproved
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update indicator: %w", err)
	}

	s.auditor.Record(audit.Entry{
		OrgID:       current.OrgID,
		ActorUserID: actorUserID,
		Action:      audit.EventResolutionIndicator,
		SubjectID:   id,
		Meta:        patch,
	})
	return r, nil
}
