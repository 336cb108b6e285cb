package resolutions

import (
	"net/http"

	"github.com/aliuyar1234/govern/internal/apperrors"
	"github.com/aliuyar1234/govern/internal/auth"
	"github.com/aliuyar1234/govern/internal/validation"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type CreateRequest struct {
	Title      string     `json:"title" validate:"required,max=300"`
	Content    string     `json:"content" validate:"max=20000"`
	Visibility Visibility `json:"visibility" validate:"omitempty,oneof=PUBLIC MEMBERS INTERNAL"`
}

type DecisionRequest struct {
	Approve *bool `json:"approve" validate:"required"`
}

func resolutionIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "resolution_id"))
	if err != nil {
		apperrors.WriteBadRequest(w, r, "Invalid resolution ID")
		return uuid.Nil, false
	}
	return id, true
}

// HandleCreate handles POST /api/v1/orgs/{org_id}/resolutions
func HandleCreate(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, err := uuid.Parse(chi.URLParam(r, "org_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid organization ID")
			return
		}

		var req CreateRequest
		if err := validation.DecodeJSON(r, &req); err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}

		res, err := svc.Create(r.Context(), orgID, auth.GetUserID(r.Context()), NewResolution{
			Title:      req.Title,
			Content:    req.Content,
			Visibility: req.Visibility,
		})
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to create resolution")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{"resolution": res})
	}
}

// HandleGet handles GET /api/v1/resolutions/{resolution_id}
func HandleGet(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := resolutionIDParam(w, r)
		if !ok {
			return
		}

		res, err := svc.Get(r.Context(), id, auth.GetUserID(r.Context()))
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to get resolution")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"resolution": res})
	}
}

// HandlePropose handles POST /api/v1/resolutions/{resolution_id}/propose
func HandlePropose(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := resolutionIDParam(w, r)
		if !ok {
			return
		}

		res, err := svc.Propose(r.Context(), id, auth.GetUserID(r.Context()))
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to propose resolution")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"resolution": res})
	}
}

// HandleDecide handles POST /api/v1/resolutions/{resolution_id}/decision
func HandleDecide(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := resolutionIDParam(w, r)
		if !ok {
			return
		}

		var req DecisionRequest
		if err := validation.DecodeJSON(r, &req); err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}

		res, err := svc.Decide(r.Context(), id, auth.GetUserID(r.Context()), *req.Approve)
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to decide resolution")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"resolution": res})
	}
}

// HandleInitializeProject handles POST /api/v1/resolutions/{resolution_id}/project
func HandleInitializeProject(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := resolutionIDParam(w, r)
		if !ok {
			return
		}

		var req ProjectInit
		if err := validation.DecodeJSON(r, &req); err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}

		res, err := svc.InitializeProject(r.Context(), id, auth.GetUserID(r.Context()), req)
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to initialize project")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"resolution": res})
	}
}

// HandleUpdateIndicator handles PUT /api/v1/resolutions/{resolution_id}/indicator
func HandleUpdateIndicator(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := resolutionIDParam(w, r)
		if !ok {
			return
		}

		var req IndicatorUpdate
		if err := validation.DecodeJSON(r, &req); err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}

		res, err := svc.UpdateIndicator(r.Context(), id, auth.GetUserID(r.Context()), req)
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to update indicator")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"resolution": res})
	}
}
