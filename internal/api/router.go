package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/booking-engine/internal/booking"
)

type RouterConfig struct {
	Service *booking.Service
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Logger  zerolog.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	svc := cfg.Service

	// Availability and advisory locks
	r.Get("/slots", listSlotsHandler(svc))
	r.Post("/slots/lock", lockSlotHandler(svc))
	r.Delete("/slots/lock", unlockSlotHandler(svc))

	// Appointment lifecycle
	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", createAppointmentHandler(svc))
		r.Get("/", listAppointmentsHandler(svc))
		r.Get("/{id}", getAppointmentHandler(svc))
		r.Get("/{id}/history", historyHandler(svc))

		r.Post("/{id}/accept", transitionHandler(svc.Accept))
		r.Post("/{id}/reject", reasonHandler(svc.Reject))
		r.Post("/{id}/propose", proposalHandler(svc.ProposeAlternative))

		r.Post("/{id}/proposal/accept", transitionHandler(svc.AcceptProposal))
		r.Post("/{id}/proposal/reject", reasonHandler(svc.RejectProposal))
		r.Post("/{id}/counter", proposalHandler(svc.CounterPropose))

		r.Post("/{id}/counter/accept", transitionHandler(svc.AcceptCounter))
		r.Post("/{id}/counter/reject", reasonHandler(svc.RejectCounter))

		r.Post("/{id}/modification", proposalHandler(svc.RequestModification))
		r.Post("/{id}/modification/approve", transitionHandler(svc.ApproveModification))
		r.Post("/{id}/modification/decline", reasonHandler(svc.DeclineModification))

		r.Post("/{id}/cancel", reasonHandler(svc.Cancel))
		r.Post("/{id}/complete", transitionHandler(svc.MarkCompleted))
		r.Post("/{id}/no-show", transitionHandler(svc.MarkNoShow))

		r.Patch("/{id}/notes", updateNotesHandler(svc))
	})

	return r
}
