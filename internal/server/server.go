package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/yamdb/apiserver/config"
	"github.com/yamdb/apiserver/internal/db"
	"github.com/yamdb/apiserver/internal/handlers"
	"github.com/yamdb/apiserver/internal/logging"
	"github.com/yamdb/apiserver/internal/mailer"
	"github.com/yamdb/apiserver/internal/mq"
	"github.com/yamdb/apiserver/internal/services"
	"github.com/yamdb/apiserver/internal/store"
	"github.com/yamdb/apiserver/types"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	queue      *mq.MQ
}

// New connects to the database (and the message queue when mail is queued)
// and builds the API.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	var (
		queue     *mq.MQ
		publisher mailer.Publisher
	)
	if cfg.Mail.Backend == "queue" {
		queue, err = mq.Open(ctx, cfg.MQ)
		if err != nil {
			_ = dbConn.Close()
			return nil, fmt.Errorf("open message queue: %w", err)
		}
		publisher = queue
	}

	sender, err := mailer.NewSender(cfg.Mail, publisher)
	if err != nil {
		_ = dbConn.Close()
		if queue != nil {
			_ = queue.Close()
		}
		return nil, err
	}

	categoryRepo := store.NewCategoryRepository(dbConn)
	genreRepo := store.NewGenreRepository(dbConn)
	titleRepo := store.NewTitleRepository(dbConn)

	reviewService := services.NewReviewService(store.NewReviewRepository(dbConn), titleRepo)
	api := handlers.API{
		Users:      services.NewUserService(store.NewUserRepository(dbConn), mailer.New(sender)),
		Categories: services.NewTaxonomyService[types.Category](categoryRepo),
		Genres:     services.NewTaxonomyService[types.Genre](genreRepo),
		Titles:     services.NewTitleService(titleRepo, categoryRepo, genreRepo),
		Reviews:    reviewService,
		Comments:   services.NewCommentService(store.NewCommentRepository(dbConn), reviewService),
		JWTSecret:  cfg.Auth.JWTSecret,
		TokenTTL:   cfg.Auth.TokenTTL,
	}

	router := NewRouter(cfg.HTTP, api)

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		queue:      queue,
	}, nil
}

// NewRouter builds the HTTP handler with the middleware stack and all routes.
func NewRouter(cfg config.HTTPConfig, api handlers.API) *chi.Mux {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		logging.RequestLogger,
		middleware.Recoverer,
		middleware.StripSlashes,
		middleware.Timeout(timeout),
		corsHandler(cfg),
		rateLimit(cfg),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/api", func(r chi.Router) {
		handlers.APIRouter(r, api)
	})
	return router
}

func corsHandler(cfg config.HTTPConfig) func(http.Handler) http.Handler {
	origins := cfg.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	})
}

// rateLimit limits requests per client IP. A non-positive request budget disables it.
func rateLimit(cfg config.HTTPConfig) func(http.Handler) http.Handler {
	if cfg.RateLimitRequests <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	window := cfg.RateLimitWindow
	if window <= 0 {
		window = time.Minute
	}
	return httprate.Limit(
		cfg.RateLimitRequests,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"too many requests"}`))
		}),
	)
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	logging.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then releases the database and queue.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.queue != nil {
		_ = s.queue.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}
