package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Bookings     BookingService
	Availability AvailabilityService
	Slots        SlotService
	Health       *HealthHandler
	Auth         *Authenticator
	Logger       *zap.Logger
	CORSOrigins  []string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(AccessLog(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "Idempotency-Key", "X-Request-ID", "X-Actor-ID", "X-Actor-Role", "X-Clinic-ID"},
		ExposedHeaders: []string{"X-Request-ID", "Idempotent-Replayed"},
		MaxAge:         300,
	}))

	r.Get("/health/live", cfg.Health.Liveness)
	r.Get("/health/ready", cfg.Health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	bookings := &reservationHandlers{svc: cfg.Bookings, log: cfg.Logger}
	avail := &availabilityHandlers{svc: cfg.Availability, slots: cfg.Slots, log: cfg.Logger}

	r.Group(func(r chi.Router) {
		r.Use(cfg.Auth.Middleware)

		r.Post("/clinics", avail.createClinic)
		r.Get("/clinics/{clinicID}/reservations", bookings.listClinic)

		r.Route("/doctors/{doctorID}", func(r chi.Router) {
			r.Get("/slots", avail.listSlots)
			r.Get("/windows", avail.listWindows)
			r.Post("/windows", avail.createWindow)
			r.Get("/appointment-types", avail.listAppointmentTypes)
			r.Post("/appointment-types", avail.createAppointmentType)
			r.Get("/reservations", bookings.listDoctor)
		})

		r.Put("/windows/{id}", avail.updateWindow)
		r.Post("/windows/{id}/deactivate", avail.deactivateWindow)

		r.Get("/patients/me/reservations", bookings.listMine)

		r.Post("/reservations", bookings.create)
		r.Route("/reservations/{id}", func(r chi.Router) {
			r.Get("/", bookings.get)
			r.Post("/intake", bookings.intake)
			r.Post("/submit", bookings.action(cfg.Bookings.Submit))
			r.Post("/release", bookings.action(cfg.Bookings.ReleaseHold))
			r.Post("/approve", bookings.action(cfg.Bookings.Approve))
			r.Post("/reject", bookings.reject)
			r.Post("/propose", bookings.propose)
			r.Post("/cancel", bookings.cancel)
			r.Post("/complete", bookings.action(cfg.Bookings.Complete))
			r.Post("/no-show", bookings.action(cfg.Bookings.MarkNoShow))
			r.Post("/proposal/accept", bookings.action(cfg.Bookings.AcceptProposal))
			r.Post("/proposal/reject", bookings.action(cfg.Bookings.RejectProposal))
		})
	})

	return r
}
