package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kartoza/home-energy-assistant/internal/api"
	"github.com/kartoza/home-energy-assistant/internal/applog"
	"github.com/kartoza/home-energy-assistant/internal/config"
)

// Server holds all the components for the web application
type Server struct {
	cfg        config.Config
	httpServer *http.Server
	router     *mux.Router
	handler    http.Handler
	logger     *zap.Logger
}

// New creates a new Server serving the given API
func New(cfg config.Config, apiHandler *api.Handler, logger *zap.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		router: mux.NewRouter(),
		logger: applog.OrNop(logger),
	}

	apiHandler.RegisterRoutes(s.router)
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintln(w, `{"error":"not found"}`)
	})

	s.handler = s.middleware(s.router)
	s.httpServer = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  seconds(cfg.Server.ReadTimeoutSec, 30),
		WriteTimeout: seconds(cfg.Server.WriteTimeoutSec, 300),
		IdleTimeout:  seconds(cfg.Server.IdleTimeoutSec, 120),
		ErrorLog:     zap.NewStdLog(s.logger),
	}
	return s
}

// middleware wraps the router with request IDs, CORS and panic recovery
func (s *Server) middleware(next http.Handler) http.Handler {
	origins := s.cfg.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	cors := handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", api.RequestIDHeader}),
		handlers.ExposedHeaders([]string{api.RequestIDHeader}),
	)
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(zap.NewStdLog(s.logger)),
		handlers.PrintRecoveryStack(s.cfg.Debug),
	)
	return api.RequestID(cors(recovery(next)))
}

// Handler returns the fully wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening for HTTP connections
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Server.Port))
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Stop is called
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("Server listening", zap.String("addr", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(ctx)
}

func seconds(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Second
}
