package orgs

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/aliuyar1234/govern/internal/apperrors"
	"github.com/aliuyar1234/govern/internal/audit"
	"github.com/aliuyar1234/govern/internal/auth"
	"github.com/aliuyar1234/govern/internal/validation"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// CreateRequest represents the request to create an organization
type CreateRequest struct {
	Name string `json:"name" validate:"required,max=200"`
	Slug string `json:"slug" validate:"omitempty,max=64"`
}

type UpsertMemberRequest struct {
	Role   OrgRole      `json:"role" validate:"omitempty,oneof=OWNER ADMIN CHAIR MEMBER"`
	Status MemberStatus `json:"member_status" validate:"omitempty,oneof=PENDING ACTIVE SUSPENDED LEFT"`
}

type AddPositionRequest struct {
	UserID uuid.UUID `json:"user_id" validate:"required"`
	Title  string    `json:"title" validate:"required,max=200"`
}

func orgIDParam(r *http.Request) (uuid.UUID, bool) {
	orgID, err := uuid.Parse(chi.URLParam(r, "org_id"))
	return orgID, err == nil
}

// HandleCreate handles POST /api/v1/orgs
func HandleCreate(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateRequest
		if err := validation.DecodeJSON(r, &req); err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}

		org, err := svc.CreateWithOwner(r.Context(), validation.SanitizeTitle(req.Name), req.Slug, auth.GetUserID(r.Context()))
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to create organization")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{"org": org})
	}
}

// HandleListMembers handles GET /api/v1/orgs/{org_id}/members
func HandleListMembers(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := orgIDParam(r)
		if !ok {
			apperrors.WriteBadRequest(w, r, "Invalid organization ID")
			return
		}

		if _, err := svc.RequireRole(r.Context(), orgID, auth.GetUserID(r.Context()), func(OrgRole) bool { return true }); err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to check permissions")
			return
		}

		members, err := svc.ListMembers(r.Context(), orgID)
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to list members")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"members": members})
	}
}

// HandleUpsertMember handles PUT /api/v1/orgs/{org_id}/members/{user_id}.
// A new user is added with the given role; an existing member has role and/or
// status updated.
func HandleUpsertMember(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := orgIDParam(r)
		if !ok {
			apperrors.WriteBadRequest(w, r, "Invalid organization ID")
			return
		}
		targetUserID, err := uuid.Parse(chi.URLParam(r, "user_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid user ID")
			return
		}

		var req UpsertMemberRequest
		if err := validation.DecodeJSON(r, &req); err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}
		if req.Role == "" && req.Status == "" {
			apperrors.WriteBadRequest(w, r, "role or member_status is required")
			return
		}

		ctx := r.Context()
		actorUserID := auth.GetUserID(ctx)
		resp := map[string]any{"user_id": targetUserID}

		if req.Role != "" {
			previous, err := svc.UpdateMemberRole(ctx, orgID, actorUserID, targetUserID, req.Role)
			if errors.Is(err, ErrMemberNotFound) {
				m, addErr := svc.AddMember(ctx, orgID, actorUserID, targetUserID, req.Role)
				if addErr != nil {
					apperrors.WriteServiceError(w, r, addErr, "Failed to add member")
					return
				}
				apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{"member": m})
				return
			}
			if err != nil {
				apperrors.WriteServiceError(w, r, err, "Failed to update member role")
				return
			}
			resp["previous_role"] = previous
			resp["role"] = req.Role
		}

		if req.Status != "" {
			previous, err := svc.SetMemberStatus(ctx, orgID, actorUserID, targetUserID, req.Status)
			if err != nil {
				apperrors.WriteServiceError(w, r, err, "Failed to update member status")
				return
			}
			resp["previous_status"] = previous
			resp["member_status"] = req.Status
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, resp)
	}
}

// HandleRemoveMember handles DELETE /api/v1/orgs/{org_id}/members/{user_id}
func HandleRemoveMember(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := orgIDParam(r)
		if !ok {
			apperrors.WriteBadRequest(w, r, "Invalid organization ID")
			return
		}
		targetUserID, err := uuid.Parse(chi.URLParam(r, "user_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid user ID")
			return
		}

		role, err := svc.RemoveMember(r.Context(), orgID, auth.GetUserID(r.Context()), targetUserID)
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to remove member")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"user_id": targetUserID, "removed_role": role})
	}
}

// HandleAddPosition handles POST /api/v1/orgs/{org_id}/positions
func HandleAddPosition(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := orgIDParam(r)
		if !ok {
			apperrors.WriteBadRequest(w, r, "Invalid organization ID")
			return
		}

		var req AddPositionRequest
		if err := validation.DecodeJSON(r, &req); err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}

		p, err := svc.AddPosition(r.Context(), orgID, auth.GetUserID(r.Context()), req.UserID, validation.SanitizeTitle(req.Title))
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to add position")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{"position": p})
	}
}

// HandleListAudit handles GET /api/v1/orgs/{org_id}/audit
func HandleListAudit(svc *Service, reader *audit.Reader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := orgIDParam(r)
		if !ok {
			apperrors.WriteBadRequest(w, r, "Invalid organization ID")
			return
		}

		if _, err := svc.RequireRole(r.Context(), orgID, auth.GetUserID(r.Context()), OrgRole.CanRunMeetings); err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to check permissions")
			return
		}

		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if v, err := strconv.Atoi(raw); err == nil {
				limit = v
			}
		}

		events, err := reader.ListByOrg(r.Context(), orgID, r.URL.Query().Get("action"), limit)
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to list audit log")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"events": events})
	}
}
