package main

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/quickgpt/quickgpt/internal/cache"
	"github.com/quickgpt/quickgpt/internal/config"
	"github.com/quickgpt/quickgpt/internal/handler"
	"github.com/quickgpt/quickgpt/internal/middleware"
)

type routes struct {
	base     *handler.Handler
	health   *handler.HealthHandler
	metrics  *handler.MetricsHandler
	accounts *handler.AccountHandler
	chats    *handler.ChatHandler
	messages *handler.MessageHandler
	gallery  *handler.GalleryHandler
	credits  *handler.CreditHandler
}

// setupRouter configures the chi router with all routes and middleware.
// limiter may be nil, which disables rate limiting.
func setupRouter(
	h routes,
	authenticator middleware.Authenticator,
	limiter middleware.RateLimiter,
	cfg *config.Config,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(middleware.SecurityConfig{IsDevelopment: cfg.IsDevelopment()}))

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.GetCORSAllowedOrigins()
	r.Use(middleware.CORS(corsCfg))
	r.Use(middleware.MaxBodySize(cfg.MaxRequestBodySize))

	r.Get("/healthz", h.health.Healthz)
	r.Get("/readyz", h.health.Readyz)
	r.Get("/metrics", h.metrics.Metrics)

	requireAuth := middleware.Auth(middleware.AuthConfig{
		Logger:        logger,
		Authenticator: authenticator,
	})

	messageLimit := middleware.RateLimitUser(middleware.RateLimitConfig{
		Logger:  logger,
		Limiter: limiter,
		Enabled: cfg.RateLimitEnabled,
		Scope:   cache.ScopeMessage,
		RPM:     cfg.RateLimitMessageRPM,
		Burst:   cfg.RateLimitMessageBurst,
	})
	authLimit := middleware.RateLimitIP(middleware.RateLimitConfig{
		Logger:  logger,
		Limiter: limiter,
		Enabled: cfg.RateLimitEnabled,
		Scope:   cache.ScopeAuth,
		RPM:     cfg.RateLimitAuthRPM,
		Burst:   cfg.RateLimitAuthBurst,
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(authLimit).Post("/register", h.accounts.Register)
			r.With(authLimit).Post("/login", h.accounts.Login)
			r.Get("/published-images", h.gallery.PublishedImages)

			r.With(requireAuth).Post("/logout", h.accounts.Logout)
			r.With(requireAuth).Get("/data", h.accounts.Data)
		})

		r.Route("/chat", func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/create", h.chats.Create)
			r.Get("/get", h.chats.List)
			r.Post("/delete", h.chats.Delete)
		})

		r.Route("/message", func(r chi.Router) {
			r.Use(requireAuth)
			r.Use(messageLimit)
			r.Post("/text", h.messages.Text)
			r.Post("/image", h.messages.Image)
		})

		r.Route("/credit", func(r chi.Router) {
			r.Get("/plan", h.credits.Plans)
			r.With(requireAuth).Post("/purchase", h.credits.Purchase)
		})

		// Signed by the payment provider, not the user.
		r.Post("/payment/webhook", h.credits.Webhook)
	})

	r.NotFound(h.base.NotFound)
	r.MethodNotAllowed(h.base.MethodNotAllowed)

	return r
}
