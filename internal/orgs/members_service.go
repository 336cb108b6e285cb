package orgs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aliuyar1234/govern/internal/audit"
	"github.com/aliuyar1234/govern/internal/db"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ownershipLost reports whether changing current to (nextRole, nextStatus)
// takes away one of the owners of an organization in orgStatus.
func ownershipLost(orgStatus OrgStatus, current Membership, nextRole OrgRole, nextStatus MemberStatus) bool {
	if !current.OwnsIn(orgStatus) {
		return false
	}
	next := Membership{Role: nextRole, Status: nextStatus}
	return !next.OwnsIn(orgStatus)
}

// guardLastOwner fails with lastOwnerErr when moving target to (nextRole,
// nextStatus) would leave orgID without an owner.
func guardLastOwner(ctx context.Context, tx pgx.Tx, orgID uuid.UUID, target Membership, nextRole OrgRole, nextStatus MemberStatus, lastOwnerErr error) error {
	org, err := LoadOrg(ctx, tx, orgID, false)
	if err != nil {
		return err
	}
	if !ownershipLost(org.Status, target, nextRole, nextStatus) {
		return nil
	}
	owners, err := otherOwners(ctx, tx, org, target.ID)
	if err != nil {
		return err
	}
	if owners == 0 {
		return lastOwnerErr
	}
	return nil
}

// otherOwners locks and counts the owners of org other than membershipID.
// An activated organization only counts ACTIVE owners.
func otherOwners(ctx context.Context, tx pgx.Tx, org *Org, membershipID uuid.UUID) (int, error) {
	statuses := []string{string(MemberActive), string(MemberPending)}
	if org.Status == StatusActive {
		statuses = statuses[:1]
	}

	rows, err := tx.Query(ctx, `
		SELECT id
		FROM org_memberships
		WHERE org_id = $1 AND role = $2 AND member_status = ANY($3) AND id <> $4
		FOR UPDATE
	`, org.ID, RoleOwner, statuses, membershipID)
	if err != nil {
		return 0, fmt.Errorf("failed to lock owners: %w", err)
	}
	defer rows.Close()

	var owners int
	for rows.Next() {
		owners++
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to lock owners: %w", err)
	}
	return owners, nil
}

func loadMembershipForUpdate(ctx context.Context, tx pgx.Tx, orgID, userID uuid.UUID) (Membership, error) {
	var m Membership
	err := tx.QueryRow(ctx, `
		SELECT id, org_id, user_id, role, member_status, created_at, updated_at
		FROM org_memberships
		WHERE org_id = $1 AND user_id = $2
		FOR UPDATE
	`, orgID, userID).Scan(&m.ID, &m.OrgID, &m.UserID, &m.Role, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Membership{}, ErrMemberNotFound
		}
		return Membership{}, fmt.Errorf("failed to load member: %w", err)
	}
	return m, nil
}

// requireMutator resolves the acting user inside tx and checks OWNER/ADMIN.
func requireMutator(ctx context.Context, tx pgx.Tx, orgID, actorUserID uuid.UUID) (*Caller, error) {
	actor, err := RequireActiveCaller(ctx, tx, orgID, actorUserID)
	if err != nil {
		return nil, err
	}
	if !actor.Role.CanMutate() {
		return nil, ErrInsufficientPermissions
	}
	return actor, nil
}

// adminMayTouch mirrors the rule that admins only manage non-privileged members.
func adminMayTouch(actor *Caller, targetUserID uuid.UUID, currentRole, newRole OrgRole) bool {
	if actor.Role != RoleAdmin {
		return true
	}
	privileged := func(r OrgRole) bool { return r == RoleOwner || r == RoleAdmin }
	if targetUserID == actor.UserID {
		return !privileged(newRole) || newRole == currentRole
	}
	return !privileged(currentRole) && !privileged(newRole)
}

// AddMember adds userID to orgID as an ACTIVE member with role.
func (s *Service) AddMember(ctx context.Context, orgID, actorUserID, userID uuid.UUID, role OrgRole) (*Membership, error) {
	if !role.IsValid() {
		return nil, ErrInvalidOrgRole
	}

	var m Membership
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		actor, err := requireMutator(ctx, tx, orgID, actorUserID)
		if err != nil {
			return err
		}
		if !adminMayTouch(actor, userID, RoleMember, role) {
			return ErrInsufficientPermissions
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO org_memberships (org_id, user_id, role, member_status)
			VALUES ($1, $2, $3, 'ACTIVE')
			RETURNING id, org_id, user_id, role, member_status, created_at, updated_at
		`, orgID, userID, role).Scan(&m.ID, &m.OrgID, &m.UserID, &m.Role, &m.Status, &m.CreatedAt, &m.UpdatedAt)
		if err != nil {
			if db.IsUniqueViolation(err) {
				return ErrMemberExists
			}
			return fmt.Errorf("failed to add member: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Service) UpdateMemberRole(ctx context.Context, orgID, actorUserID, targetUserID uuid.UUID, newRole OrgRole) (previousRole OrgRole, err error) {
	if !newRole.IsValid() {
		return "", ErrInvalidOrgRole
	}

	err = db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		actor, err := requireMutator(ctx, tx, orgID, actorUserID)
		if err != nil {
			return err
		}

		target, err := loadMembershipForUpdate(ctx, tx, orgID, targetUserID)
		if err != nil {
			return err
		}
		if !adminMayTouch(actor, targetUserID, target.Role, newRole) {
			return ErrInsufficientPermissions
		}

		if err := guardLastOwner(ctx, tx, orgID, target, newRole, target.Status, ErrCannotDemoteLastOwner); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE org_memberships
			SET role = $3, updated_at = NOW()
			WHERE org_id = $1 AND user_id = $2
		`, orgID, targetUserID, newRole); err != nil {
			return fmt.Errorf("failed to update member role: %w", err)
		}

		previousRole = target.Role
		return nil
	})
	if err != nil {
		return "", err
	}

	s.auditor.Record(audit.Entry{
		OrgID:       orgID,
		ActorUserID: actorUserID,
		Action:      audit.EventOrgMemberRoleUpdated,
		SubjectID:   targetUserID,
		Meta:        map[string]any{"previous_role": previousRole, "new_role": newRole},
	})
	return previousRole, nil
}

// SetMemberStatus moves a membership between PENDING/ACTIVE/SUSPENDED/LEFT.
func (s *Service) SetMemberStatus(ctx context.Context, orgID, actorUserID, targetUserID uuid.UUID, status MemberStatus) (previous MemberStatus, err error) {
	if !status.IsValid() {
		return "", ErrInvalidMemberStatus
	}

	err = db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		actor, err := requireMutator(ctx, tx, orgID, actorUserID)
		if err != nil {
			return err
		}

		target, err := loadMembershipForUpdate(ctx, tx, orgID, targetUserID)
		if err != nil {
			return err
		}
		if !adminMayTouch(actor, targetUserID, target.Role, target.Role) {
			return ErrInsufficientPermissions
		}

		if err := guardLastOwner(ctx, tx, orgID, target, target.Role, status, ErrCannotRemoveLastOwner); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE org_memberships
			SET member_status = $3, updated_at = NOW()
			WHERE id = $1 AND org_id = $2
		`, target.ID, orgID, status); err != nil {
			return fmt.Errorf("failed to update member status: %w", err)
		}

		previous = target.Status
		return nil
	})
	if err != nil {
		return "", err
	}

	s.auditor.Record(audit.Entry{
		OrgID:       orgID,
		ActorUserID: actorUserID,
		Action:      audit.EventOrgMemberStatusUpdated,
		SubjectID:   targetUserID,
		Meta:        map[string]any{"previous_status": previous, "new_status": status},
	})
	return previous, nil
}

func (s *Service) RemoveMember(ctx context.Context, orgID, actorUserID, targetUserID uuid.UUID) (removedRole OrgRole, err error) {
	err = db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		actor, err := requireMutator(ctx, tx, orgID, actorUserID)
		if err != nil {
			return err
		}

		target, err := loadMembershipForUpdate(ctx, tx, orgID, targetUserID)
		if err != nil {
			return err
		}
		if !adminMayTouch(actor, targetUserID, target.Role, target.Role) {
			return ErrInsufficientPermissions
		}

		if err := guardLastOwner(ctx, tx, orgID, target, "", MemberLeft, ErrCannotRemoveLastOwner); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `DELETE FROM org_memberships WHERE id = $1`, target.ID)
		if err != nil {
			return fmt.Errorf("failed to remove member: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrMemberNotFound
		}

		removedRole = target.Role
		return nil
	})
	if err != nil {
		return "", err
	}

	s.auditor.Record(audit.Entry{
		OrgID:       orgID,
		ActorUserID: actorUserID,
		Action:      audit.EventOrgMemberRemoved,
		SubjectID:   targetUserID,
		Meta:        map[string]any{"role": removedRole},
	})
	return removedRole, nil
}

// AddPosition records a titled office. The category is classified here, once.
func (s *Service) AddPosition(ctx context.Context, orgID, actorUserID, userID uuid.UUID, title string) (*Position, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrInvalidPositionTitle
	}

	p := Position{OrgID: orgID, UserID: userID, Title: title, Category: ClassifyPositionTitle(title), IsActive: true}
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := requireMutator(ctx, tx, orgID, actorUserID); err != nil {
			return err
		}

		var exists bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM org_memberships WHERE org_id = $1 AND user_id = $2)
		`, orgID, userID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check membership: %w", err)
		}
		if !exists {
			return ErrMemberNotFound
		}

		return tx.QueryRow(ctx, `
			INSERT INTO org_positions (org_id, user_id, title, category, is_active)
			VALUES ($1, $2, $3, $4, TRUE)
			RETURNING id, created_at
		`, orgID, userID, p.Title, p.Category).Scan(&p.ID, &p.CreatedAt)
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Record(audit.Entry{
		OrgID:       orgID,
		ActorUserID: actorUserID,
		Action:      audit.EventOrgPositionAdded,
		SubjectID:   userID,
		Meta:        map[string]any{"title": p.Title, "category": p.Category},
	})
	return &p, nil
}

// CountActiveBoardPositions is used by the readiness checklist.
func CountActiveBoardPositions(ctx context.Context, q db.Querier, orgID uuid.UUID) (int, error) {
	var n int
	if err := q.QueryRow(ctx, `
		SELECT COUNT(*) FROM org_positions WHERE org_id = $1 AND is_active AND category = 'BOARD'
	`, orgID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count board positions: %w", err)
	}
	return n, nil
}

// PromotePendingOwners activates every PENDING owner membership of orgID.
func PromotePendingOwners(ctx context.Context, q db.Querier, orgID uuid.UUID) (int64, error) {
	tag, err := q.Exec(ctx, `
		UPDATE org_memberships
		SET member_status = 'ACTIVE', updated_at = NOW()
		WHERE org_id = $1 AND role = 'OWNER' AND member_status = 'PENDING'
	`, orgID)
	if err != nil {
		return 0, fmt.Errorf("failed to promote pending owners: %w", err)
	}
	return tag.RowsAffected(), nil
}
