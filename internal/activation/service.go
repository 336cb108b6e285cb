// Package activation promotes a provisional organization to ACTIVE once an
// approved resolution exists and its readiness checklist passes, and runs the
// onboarding flow that leads there.
package activation

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/aliuyar1234/govern/internal/audit"
	"github.com/aliuyar1234/govern/internal/auth"
	"github.com/aliuyar1234/govern/internal/db"
	"github.com/aliuyar1234/govern/internal/jobs"
	"github.com/aliuyar1234/govern/internal/metrics"
	"github.com/aliuyar1234/govern/internal/notify"
	"github.com/aliuyar1234/govern/internal/orgs"
	"github.com/aliuyar1234/govern/internal/resolutions"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var answerKeyRegex = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

type Service struct {
	pool     *pgxpool.Pool
	auditor  *audit.Writer
	notifier *notify.Notifier
	runner   *jobs.Runner
	metrics  *metrics.Governance
}

func NewService(pool *pgxpool.Pool, auditor *audit.Writer, notifier *notify.Notifier, runner *jobs.Runner, m *metrics.Governance) *Service {
	return &Service{pool: pool, auditor: auditor, notifier: notifier, runner: runner, metrics: m}
}

// Result is returned by Activate and Reject.
type Result struct {
	Org     *orgs.Org `json:"org"`
	Already bool      `json:"already_applied"`
}

func loadConsents(ctx context.Context, q db.Querier, orgID uuid.UUID) (map[string]bool, error) {
	rows, err := q.Query(ctx, `SELECT consent_key, accepted FROM org_consents WHERE org_id = $1`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load consents: %w", err)
	}
	defer rows.Close()

	consents := make(map[string]bool)
	for rows.Next() {
		var key string
		var accepted bool
		if err := rows.Scan(&key, &accepted); err != nil {
			return nil, fmt.Errorf("failed to scan consent: %w", err)
		}
		consents[key] = accepted
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load consents: %w", err)
	}
	return consents, nil
}

// readiness derives the checklist for org through q. It only reads.
func readiness(ctx context.Context, q db.Querier, org *orgs.Org) (Readiness, error) {
	consents, err := loadConsents(ctx, q, org.ID)
	if err != nil {
		return Readiness{}, err
	}
	boardPositions, err := orgs.CountActiveBoardPositions(ctx, q, org.ID)
	if err != nil {
		return Readiness{}, err
	}
	return EvaluateReadiness(ReadinessInput{
		Proposed:       ProposedAnswers(org.Metadata),
		Consents:       consents,
		BoardPositions: boardPositions,
	}), nil
}

// requireParticipant allows platform reviewers and any member of the org,
// including the PENDING owner of a provisional organization.
func requireParticipant(ctx context.Context, q db.Querier, orgID uuid.UUID, id auth.Identity) error {
	if id.PlatformAdmin {
		return nil
	}
	caller, err := orgs.ResolveCaller(ctx, q, orgID, id.UserID)
	if err != nil {
		return err
	}
	if caller.Status != orgs.MemberActive && caller.Status != orgs.MemberPending {
		return orgs.ErrMembershipInactive
	}
	return nil
}

// requireOwner allows the owner of an onboarding organization, whose
// membership is still PENDING until activation.
func requireOwner(ctx context.Context, q db.Querier, orgID, userID uuid.UUID) error {
	caller, err := orgs.ResolveCaller(ctx, q, orgID, userID)
	if err != nil {
		return err
	}
	m := orgs.Membership{Role: caller.Role, Status: caller.Status}
	if !m.HoldsOwnership() {
		return ErrOwnerRequired
	}
	return nil
}

// GetReadiness reports the activation checklist of the organization with slug.
func (s *Service) GetReadiness(ctx context.Context, slug string, id auth.Identity) (*orgs.Org, Readiness, error) {
	org, err := orgs.LoadOrgBySlug(ctx, s.pool, slug)
	if err != nil {
		return nil, Readiness{}, err
	}
	if err := requireParticipant(ctx, s.pool, org.ID, id); err != nil {
		return nil, Readiness{}, err
	}

	r, err := readiness(ctx, s.pool, org)
	if err != nil {
		return nil, Readiness{}, err
	}
	return org, r, nil
}

// SaveProposedAnswers merges answers into governance.proposed while the
// organization is onboarding.
func (s *Service) SaveProposedAnswers(ctx context.Context, orgID, actorUserID uuid.UUID, answers map[string]any) (map[string]any, error) {
	if len(answers) == 0 {
		return nil, ErrEmptyAnswers
	}
	for key := range answers {
		if !answerKeyRegex.MatchString(key) {
			return nil, ErrInvalidAnswerKey.WithDetails(map[string]any{"key": key})
		}
	}
	if err := requireOwner(ctx, s.pool, orgID, actorUserID); err != nil {
		return nil, err
	}

	var proposed map[string]any
	err := s.pool.QueryRow(ctx, `
		UPDATE orgs
		SET metadata = metadata || jsonb_build_object(
		        'governance',
		        COALESCE(metadata -> 'governance', '{}'::jsonb) || jsonb_build_object(
		            'proposed', COALESCE(metadata #> '{governance,proposed}', '{}'::jsonb) || $2::jsonb
		        )
		    ),
		    updated_at = NOW()
		WHERE id = $1 AND status = 'ONBOARDING'
		RETURNING metadata #> '{governance,proposed}'
	`, orgID, answers).Scan(&proposed)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, loadErr := orgs.LoadOrg(ctx, s.pool, orgID, false); loadErr != nil {
			return nil, loadErr
		}
		return nil, ErrOrgNotOnboarding
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save proposed answers: %w", err)
	}

	keys := make([]string, 0, len(answers))
	for k := range answers {
		keys = append(keys, k)
	}
	s.auditor.Record(audit.Entry{
		OrgID:       orgID,
		ActorUserID: actorUserID,
		Action:      audit.EventOrgGovernanceSaved,
		SubjectID:   orgID,
		Meta:        map[string]any{"keys": keys},
	})
	return proposed, nil
}

// AcceptConsent records acceptance of one required consent.
func (s *Service) AcceptConsent(ctx context.Context, orgID, actorUserID uuid.UUID, key string) error {
	if !isRequiredConsent(key) {
		return ErrUnknownConsent.WithDetails(map[string]any{"key": key, "allowed": RequiredConsents})
	}
	if err := requireOwner(ctx, s.pool, orgID, actorUserID); err != nil {
		return err
	}

	org, err := orgs.LoadOrg(ctx, s.pool, orgID, false)
	if err != nil {
		return err
	}
	if org.Status != orgs.StatusOnboarding && org.Status != orgs.StatusSubmittedForReview {
		return ErrOrgNotOnboarding
	}

	if _, err := s.pool.Exec(ctx, `
		INSERT INTO org_consents (org_id, consent_key, accepted, accepted_by_user_id, accepted_at)
		VALUES ($1, $2, TRUE, $3, NOW())
		ON CONFLICT (org_id, consent_key)
		DO UPDATE SET accepted = TRUE, accepted_by_user_id = EXCLUDED.accepted_by_user_id, accepted_at = NOW()
	`, orgID, key, actorUserID); err != nil {
		return fmt.Errorf("failed to accept consent: %w", err)
	}

	s.auditor.Record(audit.Entry{
		OrgID:       orgID,
		ActorUserID: actorUserID,
		Action:      audit.EventOrgConsentAccepted,
		SubjectID:   orgID,
		Meta:        map[string]any{"consent_key": key},
	})
	return nil
}

// SubmitForReview moves an onboarding organization whose checklist passes to
// SUBMITTED_FOR_REVIEW.
func (s *Service) SubmitForReview(ctx context.Context, orgID, actorUserID uuid.UUID) (*orgs.Org, error) {
	if err := requireOwner(ctx, s.pool, orgID, actorUserID); err != nil {
		return nil, err
	}

	var submitted *orgs.Org
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		org, err := orgs.LoadOrg(ctx, tx, orgID, true)
		if err != nil {
			return err
		}
		if org.Status != orgs.StatusOnboarding {
			return ErrOrgNotOnboarding.WithDetails(map[string]any{"status": org.Status})
		}

		r, err := readiness(ctx, tx, org)
		if err != nil {
			return err
		}
		if !r.AllReady {
			return ErrNotReady.WithDetails(map[string]any{"failing": r.Failing()})
		}

		if _, err := tx.Exec(ctx, `
			UPDATE orgs SET status = 'SUBMITTED_FOR_REVIEW', updated_at = NOW() WHERE id = $1
		`, orgID); err != nil {
			return fmt.Errorf("failed to submit organization: %w", err)
		}

		submitted, err = orgs.LoadOrg(ctx, tx, orgID, false)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Record(audit.Entry{
		OrgID:       orgID,
		ActorUserID: actorUserID,
		Action:      audit.EventOrgSubmitted,
		SubjectID:   orgID,
	})
	return submitted, nil
}

// Activate promotes a provisional organization to ACTIVE on the strength of an
// approved resolution. All preconditions are checked under the org row lock
// and the metadata migration and status change commit together. Retrying
// after success with the same resolution reports Already.
func (s *Service) Activate(ctx context.Context, orgID, resolutionID uuid.UUID, reviewer auth.Identity) (*Result, error) {
	if !reviewer.PlatformAdmin {
		return nil, ErrReviewerRequired
	}

	res, err := resolutions.Load(ctx, s.pool, resolutionID, false)
	if errors.Is(err, resolutions.ErrResolutionNotFound) {
		return nil, ErrResolutionNotFound
	}
	if err != nil {
		return nil, err
	}
	if res.Status != resolutions.StatusApproved {
		return nil, ErrResolutionNotApproved.WithDetails(map[string]any{"status": res.Status})
	}

	already := false
	err = db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		org, err := orgs.LoadOrg(ctx, tx, orgID, true)
		if err != nil {
			return err
		}

		if org.Status == orgs.StatusActive && org.ActivatedByResolutionID != nil && *org.ActivatedByResolutionID == resolutionID {
			already = true
			return nil
		}
		if org.Status != orgs.StatusSubmittedForReview {
			return ErrOrgNotSubmitted.WithDetails(map[string]any{"status": org.Status})
		}
		if !IsProvisional(org.Metadata) {
			return ErrNotProvisional
		}

		r, err := readiness(ctx, tx, org)
		if err != nil {
			return err
		}
		if !r.AllReady {
			return ErrNotReady.WithDetails(map[string]any{"failing": r.Failing()})
		}

		migrated, err := MigrateGovernance(org.Metadata)
		if err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
			UPDATE orgs
			SET metadata = $2, status = 'ACTIVE', activated_by_resolution_id = $3, updated_at = NOW()
			WHERE id = $1 AND status = 'SUBMITTED_FOR_REVIEW'
		`, orgID, migrated, resolutionID)
		if err != nil {
			return fmt.Errorf("failed to activate organization: %w", err)
		}
		if tag.RowsAffected() != 1 {
			return ErrOrgNotSubmitted
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	org, err := orgs.LoadOrg(ctx, s.pool, orgID, false)
	if err != nil {
		return nil, err
	}
	if err := VerifyActivated(org); err != nil {
		log.Error().
			Err(err).
			Str("org_id", orgID.String()).
			Str("resolution_id", resolutionID.String()).
			Msg("Activation committed but not visible on re-read")
		return nil, err
	}
	if already {
		return &Result{Org: org, Already: true}, nil
	}

	log.Info().
		Str("org_id", orgID.String()).
		Str("slug", org.Slug).
		Str("resolution_id", resolutionID.String()).
		Msg("Organization activated")

	s.runner.Submit("activation.promote_owners", func(ctx context.Context) error {
		promoted, err := orgs.PromotePendingOwners(ctx, s.pool, orgID)
		if err == nil && promoted > 0 {
			log.Info().Str("org_id", orgID.String()).Int64("promoted", promoted).Msg("Pending owners activated")
		}
		return err
	})
	s.runner.Submit("activation.application_status", func(ctx context.Context) error {
		return setApplicationStatus(ctx, s.pool, orgID, "APPROVED")
	})

	s.metrics.ReviewDecision("activated")
	s.auditor.Record(audit.Entry{
		OrgID:       orgID,
		ActorUserID: reviewer.UserID,
		Action:      audit.EventOrgActivated,
		SubjectID:   orgID,
		Meta:        map[string]any{"resolution_id": resolutionID},
	})
	s.notifier.Send(notify.Message{
		Event:   notify.EventOrgActivated,
		OrgID:   orgID,
		Subject: org.Name,
		Text:    fmt.Sprintf("Organization %q is now active", org.Name),
		Fields:  map[string]any{"slug": org.Slug, "resolution_id": resolutionID},
	})
	return &Result{Org: org}, nil
}

func setApplicationStatus(ctx context.Context, q db.Querier, orgID uuid.UUID, status string) error {
	if _, err := q.Exec(ctx, `
		UPDATE org_applications SET status = $2, updated_at = NOW() WHERE org_id = $1 AND status = 'PENDING'
	`, orgID, status); err != nil {
		return fmt.Errorf("failed to update intake application: %w", err)
	}
	return nil
}

// Reject declines an organization under review. Governance metadata is left
// as it is. Rejecting an already DECLINED organization reports Already.
func (s *Service) Reject(ctx context.Context, orgID uuid.UUID, resolutionID *uuid.UUID, reviewer auth.Identity) (*Result, error) {
	if !reviewer.PlatformAdmin {
		return nil, ErrReviewerRequired
	}
	if resolutionID != nil {
		if _, err := resolutions.Load(ctx, s.pool, *resolutionID, false); err != nil {
			if errors.Is(err, resolutions.ErrResolutionNotFound) {
				return nil, ErrResolutionNotFound
			}
			return nil, err
		}
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE orgs SET status = 'DECLINED', updated_at = NOW()
		WHERE id = $1 AND status = 'SUBMITTED_FOR_REVIEW'
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to reject organization: %w", err)
	}

	org, err := orgs.LoadOrg(ctx, s.pool, orgID, false)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		if org.Status == orgs.StatusDeclined {
			return &Result{Org: org, Already: true}, nil
		}
		return nil, ErrOrgNotSubmitted.WithDetails(map[string]any{"status": org.Status})
	}

	s.runner.Submit("activation.application_status", func(ctx context.Context) error {
		return setApplicationStatus(ctx, s.pool, orgID, "DECLINED")
	})

	meta := map[string]any{}
	if resolutionID != nil {
		meta["resolution_id"] = *resolutionID
	}
	s.metrics.ReviewDecision("declined")
	s.auditor.Record(audit.Entry{
		OrgID:       orgID,
		ActorUserID: reviewer.UserID,
		Action:      audit.EventOrgDeclined,
		SubjectID:   orgID,
		Meta:        meta,
	})
	s.notifier.Send(notify.Message{
		Event:   notify.EventOrgDeclined,
		OrgID:   orgID,
		Subject: org.Name,
		Text:    fmt.Sprintf("Organization %q was declined", org.Name),
		Fields:  map[string]any{"slug": org.Slug},
	})
	return &Result{Org: org}, nil
}
