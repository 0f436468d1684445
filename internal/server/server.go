// Package server is the composition root: it turns a config.Config into a
// running HTTP API.
//
// Wiring, outermost first:
//
//	config → store (sqlite | postgres)
//	       → lookup (OMDb → rate limiter → Redis cache when configured)
//	       → events publisher (RabbitMQ when configured)
//	       → services → handlers → chi router
//
// Every optional backend has a no-op stand-in, so a bare config (sqlite file,
// no Redis, no broker, no JWT secret) still serves the full API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/sakif/moviecatalog/internal/auth"
	"github.com/sakif/moviecatalog/internal/config"
	"github.com/sakif/moviecatalog/internal/events"
	"github.com/sakif/moviecatalog/internal/handler"
	"github.com/sakif/moviecatalog/internal/lookup"
	"github.com/sakif/moviecatalog/internal/middleware"
	"github.com/sakif/moviecatalog/internal/poster"
	"github.com/sakif/moviecatalog/internal/repository"
	"github.com/sakif/moviecatalog/internal/repository/postgres"
	"github.com/sakif/moviecatalog/internal/repository/sqlite"
	"github.com/sakif/moviecatalog/internal/service"
)

const shutdownTimeout = 30 * time.Second

// Server owns the router and every long-lived connection behind it.
type Server struct {
	router    *chi.Mux
	config    *config.Config
	logger    *slog.Logger
	store     repository.Store
	redis     *redis.Client // nil without REDIS_ADDR
	publisher events.Publisher
	tokens    *auth.TokenService // nil without JWT_SECRET
}

// New opens the configured backends and builds the router. Optional
// backends that fail to connect are logged and replaced by no-ops; only
// the database is fatal.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s := &Server{
		router:    chi.NewRouter(),
		config:    cfg,
		logger:    logger,
		store:     store,
		publisher: events.NopPublisher{},
	}

	if cfg.AuthEnabled() {
		s.tokens, err = auth.NewTokenService(cfg.JWTSecret)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("creating token service: %w", err)
		}
	} else {
		logger.Warn("JWT_SECRET not set, session tokens are disabled")
	}

	if cfg.EventsEnabled() {
		pub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.EventsQueue)
		if err != nil {
			logger.Warn("event broker unavailable, events will be dropped", slog.String("error", err.Error()))
		} else {
			s.publisher = pub
		}
	}

	posters, err := poster.NewDiskStore(cfg.UploadDir, cfg.MaxUploadBytes)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.setupRoutes(s.lookupClient(ctx), posters)
	return s, nil
}

// OpenStore opens and migrates the configured database.
func OpenStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		db, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		return db, nil
	default:
		if cfg.DBPath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		db, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		return db, nil
	}
}

// lookupClient builds the OMDb client, cached through Redis when one is
// reachable.
func (s *Server) lookupClient(ctx context.Context) lookup.Client {
	cfg := s.config
	if !cfg.LookupEnabled() {
		s.logger.Warn("OMDB_API_KEY not set, movie search is unavailable")
	}

	var client lookup.Client = lookup.NewOMDbClient(lookup.OMDbConfig{
		APIKey:    cfg.OMDbAPIKey,
		BaseURL:   cfg.OMDbBaseURL,
		Timeout:   cfg.OMDbTimeout,
		RateLimit: cfg.OMDbRateLimit,
	}, s.logger)

	if !cfg.CacheEnabled() {
		return client
	}
	rdb, err := lookup.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		s.logger.Warn("redis unavailable, search results will not be cached", slog.String("error", err.Error()))
		return client
	}
	s.redis = rdb
	return lookup.NewCachedClient(client, lookup.NewRedisCache(rdb), cfg.SearchCacheTTL, s.logger)
}

// setupRoutes mounts middleware and routes.
//
//	GET    /healthz
//	GET    /uploads/*                        poster files
//	POST   /api/users
//	GET    /api/movies                       ?userId=
//	POST   /api/movies                       JSON or multipart
//	GET    /api/movies/search                ?title=&userId=
//	GET    /api/movies/check-exists          ?title=&userId=
//	POST   /api/movies/favorites/toggle
//	GET    /api/movies/favorites/check       ?movieId=&userId=
//	GET    /api/movies/favorites/{userId}
//	GET    /api/movies/{id}
//	PUT    /api/movies/{id}
//	DELETE /api/movies/{id}
//	PATCH  /api/movies/{id}/favorite
func (s *Server) setupRoutes(client lookup.Client, posters *poster.DiskStore) {
	r := s.router

	// RequestID must come before Logger so every line carries the id.
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(s.config.CORSOrigins))
	if s.tokens != nil {
		r.Use(auth.OptionalAuth(s.tokens, handler.ErrorWriter(s.logger)))
	}

	var issuer service.TokenIssuer
	if s.tokens != nil {
		issuer = s.tokens
	}

	users := service.NewUserService(s.store.Users(), issuer, s.logger)
	movies := service.NewMovieService(s.store.Movies(), s.store.Users(), posters, s.publisher, s.logger)
	favorites := service.NewFavoriteService(s.store.Favorites(), s.publisher, s.logger)
	search := service.NewSearchService(client, s.store.Movies(), lookup.DefaultConcurrency, s.logger)

	movieHandler := handler.NewMovieHandler(movies, search, users, posters, s.logger)
	favoriteHandler := handler.NewFavoriteHandler(favorites, movies, users, s.logger)
	userHandler := handler.NewUserHandler(users, !s.config.IsDevelopment(), s.logger)

	r.Get("/healthz", s.handleHealth)

	// Posters are stored under <UploadDir>/posters and served as /uploads/posters/<name>.
	files := http.FileServer(http.Dir(s.config.UploadDir))
	r.Handle("/uploads/*", http.StripPrefix("/uploads/", noListing(files)))

	r.Route("/api", func(r chi.Router) {
		r.Post("/users", userHandler.HandleCreate)

		r.Route("/movies", func(r chi.Router) {
			r.Get("/", movieHandler.HandleList)
			r.Post("/", movieHandler.HandleCreate)
			r.Get("/search", movieHandler.HandleSearch)
			r.Get("/check-exists", movieHandler.HandleCheckExists)

			r.Post("/favorites/toggle", favoriteHandler.HandleToggle)
			r.Get("/favorites/check", favoriteHandler.HandleCheck)
			r.Get("/favorites/{userId}", favoriteHandler.HandleList)

			r.Get("/{id}", movieHandler.HandleGetByID)
			r.Put("/{id}", movieHandler.HandleUpdate)
			r.Delete("/{id}", movieHandler.HandleDelete)
			r.Patch("/{id}/favorite", favoriteHandler.HandlePatch)
		})
	})
}

// Handler returns the router, for tests and for embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// noListing answers 404 for directory paths instead of listing them.
func noListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Error("health check failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Close releases the database, Redis and broker connections.
func (s *Server) Close() error {
	var errs []error
	if err := s.publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing publisher: %w", err))
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing redis: %w", err))
		}
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing database: %w", err))
	}
	return errors.Join(errs...)
}

// Start serves until SIGINT or SIGTERM, then drains in-flight requests for
// up to 30 seconds and closes every backend.
func (s *Server) Start() error {
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Error("shutdown cleanup failed", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:         ":" + s.config.Port,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second, // covers a search's lookup fan-out
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.String("port", s.config.Port),
			slog.String("env", s.config.Env),
			slog.String("db_driver", s.config.DBDriver),
			slog.Bool("cache", s.redis != nil),
			slog.Bool("auth", s.tokens != nil),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}
