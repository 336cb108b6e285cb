package orgs

import (
	"context"
	"errors"
	"fmt"

	"github.com/aliuyar1234/govern/internal/audit"
	"github.com/aliuyar1234/govern/internal/db"
	"github.com/aliuyar1234/govern/internal/validation"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const orgColumns = `id, name, slug, status, metadata, activated_by_resolution_id, created_by_user_id, created_at, updated_at`

// Service provides organization and membership operations
type Service struct {
	pool    *pgxpool.Pool
	auditor *audit.Writer
}

// NewService creates a new organization service
func NewService(pool *pgxpool.Pool, auditor *audit.Writer) *Service {
	return &Service{pool: pool, auditor: auditor}
}

func scanOrg(row pgx.Row) (*Org, error) {
	var org Org
	var activatedBy uuid.NullUUID
	err := row.Scan(
		&org.ID,
		&org.Name,
		&org.Slug,
		&org.Status,
		&org.Metadata,
		&activatedBy,
		&org.CreatedByUserID,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if activatedBy.Valid {
		org.ActivatedByResolutionID = &activatedBy.UUID
	}
	if org.Metadata == nil {
		org.Metadata = map[string]any{}
	}
	return &org, nil
}

// LoadOrg reads an organization through q. With forUpdate the row stays locked
// until q's transaction ends.
func LoadOrg(ctx context.Context, q db.Querier, orgID uuid.UUID, forUpdate bool) (*Org, error) {
	query := `SELECT ` + orgColumns + ` FROM orgs WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	org, err := scanOrg(q.QueryRow(ctx, query, orgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrgNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// LoadOrgBySlug reads an organization by its normalized slug.
func LoadOrgBySlug(ctx context.Context, q db.Querier, slug string) (*Org, error) {
	org, err := scanOrg(q.QueryRow(ctx, `SELECT `+orgColumns+` FROM orgs WHERE slug = $1`, validation.NormalizeSlug(slug)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrgNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// CreateWithOwner creates a provisional organization, its intake application and
// a PENDING owner membership for userID. The owner becomes ACTIVE on activation.
func (s *Service) CreateWithOwner(ctx context.Context, name, slug string, userID uuid.UUID) (*Org, error) {
	if slug == "" {
		slug = validation.SlugFromName(name)
	}
	slug = validation.NormalizeSlug(slug)
	if err := validation.ValidateSlug(slug); err != nil {
		return nil, ErrInvalidSlug.WithDetails(map[string]any{"reason": err.Error()})
	}

	var org *Org
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		created, err := scanOrg(tx.QueryRow(ctx, `
			INSERT INTO orgs (name, slug, status, metadata, created_by_user_id)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+orgColumns,
			name, slug, StatusOnboarding, map[string]any{"fact": map[string]any{"pre_org": true}}, userID,
		))
		if err != nil {
			if db.IsUniqueViolation(err) {
				return ErrSlugConflict
			}
			return fmt.Errorf("failed to create organization: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO org_memberships (org_id, user_id, role, member_status)
			VALUES ($1, $2, $3, $4)
		`, created.ID, userID, RoleOwner, MemberPending); err != nil {
			return fmt.Errorf("failed to create membership: %w", err)
		}

		if _, err := tx.Exec(ctx, `INSERT INTO org_applications (org_id) VALUES ($1)`, created.ID); err != nil {
			return fmt.Errorf("failed to create intake application: %w", err)
		}

		org = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Record(audit.Entry{
		OrgID:       org.ID,
		ActorUserID: userID,
		Action:      audit.EventOrgCreated,
		SubjectID:   org.ID,
		Meta:        map[string]any{"slug": org.Slug},
	})

	return org, nil
}

// ResolveCaller loads userID's membership and capability set in orgID.
// Returns ErrNotMember if there is no membership at all; the caller's status is
// returned as-is so eligibility checks can explain why it does not count.
func ResolveCaller(ctx context.Context, q db.Querier, orgID, userID uuid.UUID) (*Caller, error) {
	caller := Caller{OrgID: orgID, UserID: userID}
	var board bool

	err := q.QueryRow(ctx, `
		SELECT m.id, m.role, m.member_status,
		       EXISTS (
		           SELECT 1 FROM org_positions p
		           WHERE p.org_id = m.org_id AND p.user_id = m.user_id
		             AND p.is_active AND p.category = 'BOARD'
		       )
		FROM org_memberships m
		WHERE m.org_id = $1 AND m.user_id = $2
	`, orgID, userID).Scan(&caller.MembershipID, &caller.Role, &caller.Status, &board)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			log.Debug().
				Str("user_id", userID.String()).
				Str("org_id", orgID.String()).
				Msg("RBAC: User is not a member of organization")
			return nil, ErrNotMember
		}
		return nil, fmt.Errorf("failed to resolve membership: %w", err)
	}

	if board {
		caller.Capabilities = caller.Capabilities.With(CapBoard)
	}
	return &caller, nil
}

// RequireActiveCaller resolves the caller and rejects anything but an ACTIVE membership.
func RequireActiveCaller(ctx context.Context, q db.Querier, orgID, userID uuid.UUID) (*Caller, error) {
	caller, err := ResolveCaller(ctx, q, orgID, userID)
	if err != nil {
		return nil, err
	}
	if !caller.IsActive() {
		log.Warn().
			Str("user_id", userID.String()).
			Str("org_id", orgID.String()).
			Str("member_status", string(caller.Status)).
			Msg("RBAC: Inactive membership used for governance action")
		return nil, ErrMembershipInactive
	}
	return caller, nil
}

// Resolve returns the caller's role, status and capabilities in orgID.
func (s *Service) Resolve(ctx context.Context, orgID, userID uuid.UUID) (*Caller, error) {
	return ResolveCaller(ctx, s.pool, orgID, userID)
}

// RequireRole checks that userID is an ACTIVE member whose role satisfies allowed.
func (s *Service) RequireRole(ctx context.Context, orgID, userID uuid.UUID, allowed func(OrgRole) bool) (*Caller, error) {
	caller, err := RequireActiveCaller(ctx, s.pool, orgID, userID)
	if err != nil {
		return nil, err
	}
	if !allowed(caller.Role) {
		log.Warn().
			Str("user_id", userID.String()).
			Str("org_id", orgID.String()).
			Str("user_role", string(caller.Role)).
			Msg("RBAC: Insufficient permissions")
		return nil, ErrInsufficientPermissions
	}
	return caller, nil
}

// CountActiveMembers returns the number of ACTIVE memberships in orgID.
func CountActiveMembers(ctx context.Context, q db.Querier, orgID uuid.UUID) (int, error) {
	var n int
	if err := q.QueryRow(ctx, `
		SELECT COUNT(*) FROM org_memberships WHERE org_id = $1 AND member_status = 'ACTIVE'
	`, orgID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count active members: %w", err)
	}
	return n, nil
}

// ListMembers retrieves all members of an organization
func (s *Service) ListMembers(ctx context.Context, orgID uuid.UUID) ([]Membership, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, org_id, user_id, role, member_status, created_at, updated_at
		FROM org_memberships
		WHERE org_id = $1
		ORDER BY created_at ASC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.ID, &m.OrgID, &m.UserID, &m.Role, &m.Status, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating member rows: %w", err)
	}

	return members, nil
}
