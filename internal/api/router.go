package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/eliamaps/elia/internal/api/handler"
	customMiddleware "github.com/eliamaps/elia/internal/api/middleware"
	"github.com/eliamaps/elia/internal/config"
	"github.com/eliamaps/elia/internal/geo"
	"github.com/eliamaps/elia/internal/llm"
	"github.com/eliamaps/elia/internal/llm/gemini"
	"github.com/eliamaps/elia/internal/repository/postgres"
	"github.com/eliamaps/elia/internal/repository/redis"
	"github.com/eliamaps/elia/internal/security"
	"github.com/eliamaps/elia/internal/service"
	"github.com/eliamaps/elia/internal/tools"
)

// NewRouter creates and configures the HTTP router
func NewRouter(cfg *config.Config, db *postgres.DB, redisClient *redis.Client) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(customMiddleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.WriteTimeout))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Initialize security components
	jwtManager := security.NewJWTManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenTTL,
		cfg.Auth.RefreshTokenTTL,
	)

	// Initialize repositories
	userRepo := postgres.NewUserRepository(db)
	sessionRepo := postgres.NewSessionRepository(db)
	messageRepo := postgres.NewMessageRepository(db)

	// Initialize rate limiter and layer cache
	rateLimiter := redis.NewRateLimiter(
		redisClient,
		cfg.Security.RateLimit.RequestsPerMinute,
		cfg.Security.RateLimit.Burst,
	)
	layerCache := redis.NewLayerCache(redisClient)

	// Initialize map server and geoprocessing clients
	mapClient := geo.NewClient(cfg.Geo.RequestTimeout)
	geoflipClient := geo.NewGeoflipClient(cfg.Geo.Geoflip, cfg.Geo.RequestTimeout)
	if !geoflipClient.IsConfigured() {
		log.Warn().Msg("Geoflip API is not configured, buffer_features will be unavailable")
	}
	placesClient := geo.NewPlacesClient(cfg.Geo.Places, cfg.Geo.RequestTimeout)
	if !placesClient.IsConfigured() {
		log.Warn().Msg("Places API is not configured, find_place will be unavailable")
	}

	// Initialize tool catalog
	registry := tools.NewCatalog(mapClient, geoflipClient, placesClient, layerCache)

	// Initialize LLM Router with providers
	llmRouter := llm.NewRouter(cfg.LLM.DefaultProvider)

	log.Info().Msgf("Initializing LLM providers. Default: %s", cfg.LLM.DefaultProvider)

	if cfg.LLM.Gemini.APIKey != "" {
		llmRouter.RegisterProvider(gemini.NewProvider(cfg.LLM.Gemini))
	} else {
		log.Warn().Msg("Gemini API Key is empty, skipping registration")
	}

	// Initialize services
	authService := service.NewAuthService(userRepo, jwtManager)
	chatService := service.NewChatService(
		llmRouter,
		registry,
		messageRepo,
		sessionRepo,
		cfg.Chat,
		cfg.Geo.DefaultMapServerURL,
	)

	// Initialize handlers
	authHandler := handler.NewAuthHandler(authService)
	chatHandler := handler.NewChatHandler(chatService)
	sessionHandler := handler.NewSessionHandler(chatService)

	// Auth middleware
	authMiddleware := customMiddleware.NewAuthMiddleware(jwtManager)
	rateLimitMiddleware := customMiddleware.NewRateLimitMiddleware(rateLimiter)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check
		r.Get("/health", handler.HealthCheck)
		r.Get("/ready", handler.ReadyCheck(db))

		// Auth routes (public)
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)
			r.Use(rateLimitMiddleware.Limit)

			// Chat
			r.Post("/chat", chatHandler.Chat)
			r.Get("/suggestions", chatHandler.Suggestions)

			// Sessions
			r.Route("/sessions", func(r chi.Router) {
				r.Get("/", sessionHandler.List)

				r.Route("/{sessionID}", func(r chi.Router) {
					r.Get("/messages", sessionHandler.History)
					r.Delete("/", sessionHandler.Delete)
				})
			})

			// LLM providers
			r.Get("/llm-providers", handler.ListLLMProviders(llmRouter))

			// Cache management
			r.Post("/cache/flush", handler.FlushCache(layerCache))
		})
	})

	return r
}
