package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	appmiddleware "github.com/mkravets/contacts-api/app/middleware"
	"github.com/mkravets/contacts-api/internal/api"
	"github.com/mkravets/contacts-api/internal/api/auth"
	"github.com/mkravets/contacts-api/internal/api/contact"
	"github.com/mkravets/contacts-api/internal/api/user"
)

// Config carries the handlers and middleware the router wires together.
type Config struct {
	Logger         *slog.Logger
	AuthHandler    *auth.AuthHandler
	UserHandler    *user.UserHandler
	ContactHandler *contact.ContactHandler
	Authenticate   func(http.Handler) http.Handler
}

// SetupRouter builds the application route tree. Server-wide middleware
// (request ID, logging, recoverer, timeouts) is applied by the caller before
// this router is mounted.
func SetupRouter(cfg *Config) chi.Router {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	})

	authLimit := appmiddleware.RateLimitByIP(appmiddleware.AuthLimit, cfg.Logger)

	r.Route("/api", func(r chi.Router) {
		// Credential endpoints. No access token required, tight rate limit.
		r.Group(func(r chi.Router) {
			r.Use(authLimit)
			r.Post("/auth/signup", cfg.AuthHandler.Signup)
			r.Post("/auth/login", cfg.AuthHandler.Login)
			r.Post("/auth/verify", cfg.AuthHandler.ResendVerification)
			r.Post("/auth/reset-password", cfg.AuthHandler.ForgotPassword)
			r.Post("/auth/reset-password/{token}", cfg.AuthHandler.ResetPassword)
		})

		// Cookie-driven session endpoints. The refresh token cookie is the
		// credential here, not the Authorization header.
		r.Get("/auth/verify/{token}", cfg.AuthHandler.VerifyUser)
		r.Post("/auth/refresh", cfg.AuthHandler.Refresh)

		// Everything below requires a valid access token.
		r.Group(func(r chi.Router) {
			r.Use(cfg.Authenticate)

			r.Post("/auth/logout", cfg.AuthHandler.Logout)
			r.With(authLimit).Get("/auth/me", cfg.AuthHandler.Me)

			r.Route("/contacts", func(r chi.Router) {
				r.Get("/", cfg.ContactHandler.List)
				r.Post("/", cfg.ContactHandler.Create)
				r.Get("/{contactID}", cfg.ContactHandler.Get)
				r.Put("/{contactID}", cfg.ContactHandler.Update)
				r.Delete("/{contactID}", cfg.ContactHandler.Delete)
			})

			// Avatar management is an admin-only operation.
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(cfg.Logger, api.UserRoleAdmin))
				r.Put("/users/avatars", cfg.UserHandler.ChangeAvatar)
			})
		})
	})

	return r
}
