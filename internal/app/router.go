package app

import (
	"net/http"

	"github.com/aliuyar1234/govern/internal/activation"
	"github.com/aliuyar1234/govern/internal/apperrors"
	"github.com/aliuyar1234/govern/internal/auth"
	"github.com/aliuyar1234/govern/internal/config"
	"github.com/aliuyar1234/govern/internal/meetings"
	"github.com/aliuyar1234/govern/internal/orgs"
	"github.com/aliuyar1234/govern/internal/resolutions"
	"github.com/aliuyar1234/govern/internal/voting"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates and configures the Chi router with all middleware and routes
func NewRouter(pool *pgxpool.Pool, cfg *config.Config, svc *Services, registry *prometheus.Registry) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(apperrors.RequestIDMiddleware)
	r.Use(auth.AuthMiddleware(cfg.JWTSecret))
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.BaseURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", handleReadyz(pool))
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(NoCacheMiddleware)
		r.Use(auth.RequireAuth)

		r.Route("/orgs", func(r chi.Router) {
			r.Post("/", orgs.HandleCreate(svc.Orgs))
			r.Get("/by-slug/{slug}/readiness", activation.HandleGetReadiness(svc.Activation))

			r.Route("/{org_id}", func(r chi.Router) {
				// Onboarding and review
				r.Put("/governance/proposed", activation.HandleSaveProposed(svc.Activation))
				r.Post("/consents/{key}", activation.HandleAcceptConsent(svc.Activation))
				r.Post("/submit", activation.HandleSubmit(svc.Activation))
				r.Post("/activate", activation.HandleActivate(svc.Activation))
				r.Post("/reject", activation.HandleReject(svc.Activation))

				// Members and positions
				r.Get("/members", orgs.HandleListMembers(svc.Orgs))
				r.Put("/members/{user_id}", orgs.HandleUpsertMember(svc.Orgs))
				r.Delete("/members/{user_id}", orgs.HandleRemoveMember(svc.Orgs))
				r.Post("/positions", orgs.HandleAddPosition(svc.Orgs))
				r.Get("/audit", orgs.HandleListAudit(svc.Orgs, svc.AuditReader))

				r.Post("/resolutions", resolutions.HandleCreate(svc.Resolutions))
				r.Post("/meetings", meetings.HandleCreate(svc.Meetings))
			})
		})

		r.Route("/resolutions/{resolution_id}", func(r chi.Router) {
			r.Get("/", resolutions.HandleGet(svc.Resolutions))
			r.Post("/propose", resolutions.HandlePropose(svc.Resolutions))
			r.Post("/decision", resolutions.HandleDecide(svc.Resolutions))
			r.Post("/project", resolutions.HandleInitializeProject(svc.Resolutions))
			r.Put("/indicator", resolutions.HandleUpdateIndicator(svc.Resolutions))
		})

		r.Route("/meetings/{meeting_id}", func(r chi.Router) {
			r.Get("/", meetings.HandleGet(svc.Meetings))
			r.Get("/procedural", meetings.HandleProceduralStatus(svc.Meetings))
			r.Post("/agenda", meetings.HandleAddAgendaItem(svc.Meetings))
			r.Post("/agenda/{item_no}/outcome", meetings.HandleApplyOutcome(svc.Meetings))
			r.Post("/remote-voters", meetings.HandleRegisterRemoteVoter(svc.Meetings))
			r.Put("/attendance/{membership_id}", meetings.HandleMarkAttendance(svc.Meetings))
			r.Post("/complete", meetings.HandleComplete(svc.Meetings, svc.Voting))
			r.Post("/votes/close", voting.HandleCloseAllForMeeting(svc.Voting))
		})

		r.Route("/votes", func(r chi.Router) {
			r.Post("/", voting.HandleOpen(svc.Voting))

			r.Route("/{vote_id}", func(r chi.Router) {
				r.Get("/", voting.HandleGet(svc.Voting))
				r.Get("/eligibility", voting.HandleEligibility(svc.Voting))
				r.With(BallotRateLimitMiddleware(cfg.BallotRateLimitRPM)).Put("/ballot", voting.HandleCast(svc.Voting))
				r.Put("/live-totals", voting.HandleLiveTotals(svc.Voting))
				r.Post("/close", voting.HandleClose(svc.Voting))
			})
		})
	})

	return r
}

// handleHealthz returns a simple liveness check
func handleHealthz(w http.ResponseWriter, r *http.Request) {
	apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleReadyz returns 200 when the database is reachable, 503 otherwise
func handleReadyz(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			apperrors.WriteServiceUnavailable(w, r, "Database connection failed")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
			"status": "ready",
			"db":     "ok",
		})
	}
}
