package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-shop-api/internal/application/auth"
	"github.com/go-shop-api/internal/application/media"
	"github.com/go-shop-api/internal/application/notification"
	"github.com/go-shop-api/internal/application/role"
	"github.com/go-shop-api/internal/application/session"
	"github.com/go-shop-api/internal/application/user"
	"github.com/go-shop-api/internal/config"
	"github.com/go-shop-api/internal/domain"
	"github.com/go-shop-api/internal/transport/http/cookie"
	"github.com/go-shop-api/internal/transport/http/handler"
	appmiddleware "github.com/go-shop-api/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router. ctx bounds the
// lifetime of background work such as rate limiter cleanup.
func NewRouter(ctx context.Context, cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	if cfg.TrustProxy {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authMw := appmiddleware.Auth(deps.Tokens)
	optionalAuthMw := appmiddleware.OptionalAuth(deps.Tokens)
	staffOrAbove := appmiddleware.RequireRole(domain.RoleStaff, domain.RoleAdmin, domain.RoleSuperAdmin)
	adminOrAbove := appmiddleware.RequireRole(domain.RoleAdmin, domain.RoleSuperAdmin)

	// 5 requests/second, burst of 10, applied to credential and OTP endpoints.
	sensitiveRL := appmiddleware.NewRateLimiter(ctx, rate.Limit(5), 10)

	authSvc := auth.NewService(auth.ServiceDeps{
		Accounts: deps.Accounts,
		Hasher:   deps.Hasher,
		OTP:      deps.OTP,
		Notifier: notification.NewService(deps.Mailer, cfg.AppName),
		OTPTTL:   cfg.OTPTTL,
		Now:      deps.Now,
	})
	sessionSvc := session.NewService(session.ServiceDeps{
		Accounts:    deps.Accounts,
		Passwords:   deps.Hasher,
		Tokens:      deps.Tokens,
		Revocations: deps.Revocations,
		TimingHash:  deps.TimingHash,
	})
	userSvc := user.NewService(user.ServiceDeps{
		Accounts: deps.Accounts,
		Hasher:   deps.Hasher,
		Media:    media.NewService(deps.Objects),
		Now:      deps.Now,
	})

	cookies := cookie.NewPolicy(cfg.IsProduction(), cfg.APIPrefix, deps.Tokens.RefreshTTL())

	healthH := handler.NewHealthHandler(deps.DB)
	authH := handler.NewAuthHandler(authSvc)
	sessionH := handler.NewSessionHandler(sessionSvc, cookies)
	userH := handler.NewUserHandler(userSvc)
	roleH := handler.NewRoleHandler(role.NewService())

	r.Route(cfg.APIPrefix, func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health", healthH.Check)

		r.Route("/auth", func(r chi.Router) {
			r.With(sensitiveRL.Limit).Post("/register", authH.Register)
			r.With(sensitiveRL.Limit).Post("/verify-otp", authH.VerifyOTP)
			r.With(sensitiveRL.Limit).Post("/resend-otp", authH.ResendOTP)
			r.With(sensitiveRL.Limit).Post("/login", sessionH.Login)
			r.Post("/refresh-token", sessionH.Refresh)
			r.With(optionalAuthMw).Post("/logout", sessionH.Logout)
		})

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.Get("/roles", roleH.List)
			r.Get("/users/profile", userH.Profile)
			r.Put("/users/profile", userH.UpdateProfile)
			r.Put("/users/profile/avatar", userH.UpdateAvatar)
			r.Put("/users/change-password", userH.ChangePassword)

			// Staff and above
			r.Group(func(r chi.Router) {
				r.Use(staffOrAbove)

				r.Get("/users", userH.List)
				r.Get("/users/search", userH.Search)
				r.Get("/users/{id}", userH.Get)
			})

			// Admin and above
			r.Group(func(r chi.Router) {
				r.Use(adminOrAbove)

				r.Get("/users/role/{role}", userH.ListByRole)
				r.Delete("/users/{id}", userH.Delete)
				r.Patch("/users/{id}/soft-delete", userH.SoftDelete)
			})
		})
	})

	return r
}
