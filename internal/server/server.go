package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/libreserve/apiserver/config"
	"github.com/libreserve/apiserver/internal/db"
	"github.com/libreserve/apiserver/internal/handlers"
	"github.com/libreserve/apiserver/internal/services"
	"github.com/libreserve/apiserver/internal/store"
)

const shutdownTimeout = 5 * time.Second

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sqlx.DB
	logger     *log.Logger
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config, logger *log.Logger) (*Server, error) {
	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to database", "name", cfg.Database.DBName)

	userRepo := store.NewUserRepository(dbConn)
	bookRepo := store.NewBookRepository(dbConn)
	reservationRepo := store.NewReservationRepository(dbConn)

	userService := services.NewUserService(userRepo)
	bookService := services.NewBookService(bookRepo)
	reservationService := services.NewReservationService(reservationRepo, bookRepo)

	jwtSecret := strings.TrimSpace(cfg.JWTSecret)
	if jwtSecret == "" {
		_ = dbConn.Close()
		return nil, errors.New("JWT_SECRET is required")
	}

	authMiddleware := handlers.RequireAuth(jwtSecret)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, userService, jwtSecret)
	})
	router.Route("/books", func(r chi.Router) {
		handlers.BookRouter(r, bookService, authMiddleware)
	})
	router.Route("/reservations", func(r chi.Router) {
		handlers.ReservationRouter(r, reservationService, authMiddleware)
	})

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
		logger:     logger,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}
