package voting

import (
	"errors"
	"net/http"
	"time"

	"github.com/aliuyar1234/govern/internal/apperrors"
	"github.com/aliuyar1234/govern/internal/auth"
	"github.com/aliuyar1234/govern/internal/validation"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type OpenRequest struct {
	ResolutionID uuid.UUID  `json:"resolution_id" validate:"required"`
	Kind         Kind       `json:"kind" validate:"required,oneof=GA OPINION"`
	OpensAt      *time.Time `json:"opens_at,omitempty"`
	ClosesAt     *time.Time `json:"closes_at,omitempty"`
}

type BallotRequest struct {
	Choice  Choice  `json:"choice" validate:"required,oneof=FOR AGAINST ABSTAIN"`
	Channel Channel `json:"channel" validate:"required"`
}

type LiveTotalsRequest struct {
	Against *int `json:"against" validate:"required,gte=0"`
	Abstain *int `json:"abstain" validate:"required,gte=0"`
}

func voteIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "vote_id"))
	if err != nil {
		apperrors.WriteBadRequest(w, r, "Invalid vote ID")
		return uuid.Nil, false
	}
	return id, true
}

// HandleOpen handles POST /api/v1/votes
func HandleOpen(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req OpenRequest
		if err := validation.DecodeJSON(r, &req); err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}

		vote, err := svc.OpenVote(r.Context(), auth.GetUserID(r.Context()), OpenInput{
			ResolutionID: req.ResolutionID,
			Kind:         req.Kind,
			OpensAt:      req.OpensAt,
			ClosesAt:     req.ClosesAt,
		})
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to open vote")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{"vote": vote})
	}
}

// HandleGet handles GET /api/v1/votes/{vote_id}
func HandleGet(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := voteIDParam(w, r)
		if !ok {
			return
		}

		vote, err := svc.Get(r.Context(), id, auth.GetUserID(r.Context()))
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to get vote")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"vote": vote})
	}
}

// HandleEligibility handles GET /api/v1/votes/{vote_id}/eligibility?channel=
func HandleEligibility(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := voteIDParam(w, r)
		if !ok {
			return
		}

		channel := Channel(r.URL.Query().Get("channel"))
		if channel == "" {
			channel = ChannelRemote
		}

		e, err := svc.CanCastVote(r.Context(), id, auth.GetUserID(r.Context()), channel)
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to check eligibility")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, e)
	}
}

// HandleCast handles PUT /api/v1/votes/{vote_id}/ballot
func HandleCast(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := voteIDParam(w, r)
		if !ok {
			return
		}

		var req BallotRequest
		if err := validation.DecodeJSON(r, &req); err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}

		ballot, err := svc.CastVote(r.Context(), id, auth.GetUserID(r.Context()), req.Choice, req.Channel)
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to cast ballot")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"ballot": ballot})
	}
}

// HandleLiveTotals handles PUT /api/v1/votes/{vote_id}/live-totals
func HandleLiveTotals(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := voteIDParam(w, r)
		if !ok {
			return
		}

		var req LiveTotalsRequest
		if err := validation.DecodeJSON(r, &req); err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}

		totals, err := svc.SetLiveTotals(r.Context(), id, auth.GetUserID(r.Context()), *req.Against, *req.Abstain)
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to record live totals")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"live_totals": totals})
	}
}

// HandleClose handles POST /api/v1/votes/{vote_id}/close
func HandleClose(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := voteIDParam(w, r)
		if !ok {
			return
		}

		result, err := svc.CloseVote(r.Context(), id, auth.GetUserID(r.Context()))
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to close vote")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, result)
	}
}

// HandleCloseAllForMeeting handles POST /api/v1/meetings/{meeting_id}/votes/close
func HandleCloseAllForMeeting(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meetingID, err := uuid.Parse(chi.URLParam(r, "meeting_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid meeting ID")
			return
		}

		result, err := svc.CloseAllForMeeting(r.Context(), meetingID, auth.GetUserID(r.Context()))
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to close meeting votes")
			return
		}

		resp := map[string]any{
			"closed_count": result.ClosedCount,
			"failed_count": result.FailedCount,
		}
		if result.FirstError != nil {
			resp["first_error"] = errorBody(result.FirstError)
		}
		apperrors.WriteSuccess(w, r, http.StatusOK, resp)
	}
}

// errorBody renders a per-vote failure without leaking infrastructure detail.
func errorBody(err error) map[string]any {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return map[string]any{"code": appErr.Code, "message": appErr.Message, "details": appErr.Details}
	}
	return map[string]any{"code": "internal_error", "message": "vote could not be closed"}
}
