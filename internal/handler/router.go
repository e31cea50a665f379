package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/storefront-promotions/internal/middleware"
)

const spinRetryAfter = time.Minute

// SetupRouter настраивает HTTP-маршруты и middleware сервиса промоакций.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Get("/healthz", h.Healthz)

	r.Route("/discount-wheel", func(r chi.Router) {
		r.Get("/", h.GetWheel)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/check-usage", h.CheckUsage)

			r.Group(func(r chi.Router) {
				if h.spinLimiter != nil {
					r.Use(custommiddleware.RateLimit(h.spinLimiter, h.logger, spinRetryAfter))
				}
				r.Post("/spin", h.Spin)
			})

			r.With(custommiddleware.RequireAdmin).Put("/", h.UpdateWheel)
		})
	})

	r.Route("/coupons", func(r chi.Router) {
		r.Post("/validate", h.ValidateCoupon)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/redeem", h.RedeemCoupon)

			r.Group(func(r chi.Router) {
				r.Use(custommiddleware.RequireAdmin)

				r.Get("/", h.ListCoupons)
				r.Post("/", h.CreateCoupon)
				r.Get("/{code}", h.GetCoupon)
				r.Put("/{code}", h.UpdateCoupon)
				r.Delete("/{code}", h.DeleteCoupon)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NotFound", http.StatusText(http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", http.StatusText(http.StatusMethodNotAllowed))
	})

	return r
}
