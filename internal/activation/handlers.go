package activation

import (
	"net/http"

	"github.com/aliuyar1234/govern/internal/apperrors"
	"github.com/aliuyar1234/govern/internal/auth"
	"github.com/aliuyar1234/govern/internal/validation"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type ProposedAnswersRequest struct {
	Answers map[string]any `json:"answers" validate:"required,min=1,max=64"`
}

type ActivateRequest struct {
	ResolutionID uuid.UUID `json:"resolution_id" validate:"required"`
}

type RejectRequest struct {
	ResolutionID *uuid.UUID `json:"resolution_id"`
}

func orgIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "org_id"))
	if err != nil {
		apperrors.WriteBadRequest(w, r, "Invalid organization ID")
		return uuid.Nil, false
	}
	return id, true
}

// HandleGetReadiness handles GET /api/v1/orgs/by-slug/{slug}/readiness
func HandleGetReadiness(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		org, readiness, err := svc.GetReadiness(r.Context(), chi.URLParam(r, "slug"), auth.GetIdentity(r.Context()))
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to get readiness")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"org_id":    org.ID,
			"status":    org.Status,
			"readiness": readiness,
		})
	}
}

// HandleSaveProposed handles PUT /api/v1/orgs/{org_id}/governance/proposed
func HandleSaveProposed(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := orgIDParam(w, r)
		if !ok {
			return
		}

		var req ProposedAnswersRequest
		if err := validation.DecodeJSON(r, &req); err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}

		proposed, err := svc.SaveProposedAnswers(r.Context(), orgID, auth.GetUserID(r.Context()), req.Answers)
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to save governance answers")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"proposed": proposed})
	}
}

// HandleAcceptConsent handles POST /api/v1/orgs/{org_id}/consents/{key}
func HandleAcceptConsent(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := orgIDParam(w, r)
		if !ok {
			return
		}
		key := chi.URLParam(r, "key")

		if err := svc.AcceptConsent(r.Context(), orgID, auth.GetUserID(r.Context()), key); err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to accept consent")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"consent_key": key, "accepted": true})
	}
}

// HandleSubmit handles POST /api/v1/orgs/{org_id}/submit
func HandleSubmit(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := orgIDParam(w, r)
		if !ok {
			return
		}

		org, err := svc.SubmitForReview(r.Context(), orgID, auth.GetUserID(r.Context()))
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to submit organization")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"org": org})
	}
}

// HandleActivate handles POST /api/v1/orgs/{org_id}/activate
func HandleActivate(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := orgIDParam(w, r)
		if !ok {
			return
		}

		var req ActivateRequest
		if err := validation.DecodeJSON(r, &req); err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}

		result, err := svc.Activate(r.Context(), orgID, req.ResolutionID, auth.GetIdentity(r.Context()))
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to activate organization")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, result)
	}
}

// HandleReject handles POST /api/v1/orgs/{org_id}/reject
func HandleReject(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := orgIDParam(w, r)
		if !ok {
			return
		}

		var req RejectRequest
		if r.ContentLength != 0 {
			if err := validation.DecodeJSON(r, &req); err != nil {
				apperrors.WriteBadRequest(w, r, err.Error())
				return
			}
		}

		result, err := svc.Reject(r.Context(), orgID, req.ResolutionID, auth.GetIdentity(r.Context()))
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to reject organization")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, result)
	}
}
