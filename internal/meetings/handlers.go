package meetings

import (
	"net/http"
	"strconv"
	"time"

	"github.com/aliuyar1234/govern/internal/apperrors"
	"github.com/aliuyar1234/govern/internal/auth"
	"github.com/aliuyar1234/govern/internal/validation"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type CreateRequest struct {
	Title       string      `json:"title" validate:"required,max=300"`
	Type        MeetingType `json:"meeting_type" validate:"required,oneof=GA BOARD OTHER"`
	ScheduledAt time.Time   `json:"scheduled_at" validate:"required"`
}

type AddAgendaItemRequest struct {
	Title   string `json:"title" validate:"required,max=300"`
	Content string `json:"content" validate:"max=20000"`
}

type OutcomeRequest struct {
	Approve *bool `json:"approve" validate:"required"`
}

type RemoteVoterRequest struct {
	MembershipID *uuid.UUID `json:"membership_id,omitempty"`
}

type AttendanceRequest struct {
	Present *bool `json:"present" validate:"required"`
}

type CompleteRequest struct {
	ProtocolURL string `json:"protocol_url" validate:"omitempty,max=2000"`
}

func meetingIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "meeting_id"))
	if err != nil {
		apperrors.WriteBadRequest(w, r, "Invalid meeting ID")
		return uuid.Nil, false
	}
	return id, true
}

// HandleCreate handles POST /api/v1/orgs/{org_id}/meetings
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

		m, agenda, err := svc.CreateMeeting(r.Context(), orgID, auth.GetUserID(r.Context()), req.Title, req.Type, req.ScheduledAt)
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to create meeting")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{"meeting": m, "agenda": agenda})
	}
}

// HandleGet handles GET /api/v1/meetings/{meeting_id}
func HandleGet(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := meetingIDParam(w, r)
		if !ok {
			return
		}

		view, err := svc.GetMeetingView(r.Context(), id, auth.GetUserID(r.Context()))
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to get meeting")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, view)
	}
}

// HandleProceduralStatus handles GET /api/v1/meetings/{meeting_id}/procedural
func HandleProceduralStatus(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := meetingIDParam(w, r)
		if !ok {
			return
		}

		status, err := svc.ProceduralStatus(r.Context(), id, auth.GetUserID(r.Context()))
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to check procedural sequence")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, status)
	}
}

// HandleAddAgendaItem handles POST /api/v1/meetings/{meeting_id}/agenda
func HandleAddAgendaItem(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := meetingIDParam(w, r)
		if !ok {
			return
		}

		var req AddAgendaItemRequest
		if err := validation.DecodeJSON(r, &req); err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}

		item, res, err := svc.AddAgendaItem(r.Context(), id, auth.GetUserID(r.Context()), req.Title, req.Content)
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to add agenda item")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{"item": item, "resolution": res})
	}
}

// HandleApplyOutcome handles POST /api/v1/meetings/{meeting_id}/agenda/{item_no}/outcome
func HandleApplyOutcome(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := meetingIDParam(w, r)
		if !ok {
			return
		}
		itemNo, err := strconv.Atoi(chi.URLParam(r, "item_no"))
		if err != nil || itemNo < 1 {
			apperrors.WriteBadRequest(w, r, "Invalid agenda item number")
			return
		}

		var req OutcomeRequest
		if err := validation.DecodeJSON(r, &req); err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}

		res, err := svc.ApplyAgendaOutcome(r.Context(), id, itemNo, auth.GetUserID(r.Context()), *req.Approve)
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to apply agenda outcome")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"resolution": res})
	}
}

// HandleRegisterRemoteVoter handles POST /api/v1/meetings/{meeting_id}/remote-voters
func HandleRegisterRemoteVoter(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := meetingIDParam(w, r)
		if !ok {
			return
		}

		var req RemoteVoterRequest
		if r.ContentLength != 0 {
			if err := validation.DecodeJSON(r, &req); err != nil {
				apperrors.WriteBadRequest(w, r, err.Error())
				return
			}
		}

		membershipID, err := svc.RegisterRemoteVoter(r.Context(), id, auth.GetUserID(r.Context()), req.MembershipID)
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to register remote voter")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"membership_id": membershipID})
	}
}

// HandleMarkAttendance handles PUT /api/v1/meetings/{meeting_id}/attendance/{membership_id}
func HandleMarkAttendance(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := meetingIDParam(w, r)
		if !ok {
			return
		}
		membershipID, err := uuid.Parse(chi.URLParam(r, "membership_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid membership ID")
			return
		}

		var req AttendanceRequest
		if err := validation.DecodeJSON(r, &req); err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}

		if err := svc.MarkAttendance(r.Context(), id, auth.GetUserID(r.Context()), membershipID, *req.Present); err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to mark attendance")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"membership_id": membershipID, "present": *req.Present})
	}
}

// HandleComplete handles POST /api/v1/meetings/{meeting_id}/complete
func HandleComplete(svc *Service, closer VoteCloser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := meetingIDParam(w, r)
		if !ok {
			return
		}

		var req CompleteRequest
		if r.ContentLength != 0 {
			if err := validation.DecodeJSON(r, &req); err != nil {
				apperrors.WriteBadRequest(w, r, err.Error())
				return
			}
		}

		result, err := svc.CompleteMeeting(r.Context(), id, auth.GetUserID(r.Context()), req.ProtocolURL, closer)
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to complete meeting")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, result)
	}
}
