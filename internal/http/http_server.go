package http

// this is entry point of the http request handlers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/vishnukl-alation/hive/internal/core/ports/primary"
	"github.com/vishnukl-alation/hive/internal/core/services/submission"
	"github.com/vishnukl-alation/hive/internal/handlers"
	"github.com/vishnukl-alation/hive/internal/handlers/jobs"
)

type ServiceProvider struct {
	submissionService submission.ISubmissionService
	tokenService      primary.TokenService
}

func NewServiceProvider(
	submissionService submission.ISubmissionService,
	tokenService primary.TokenService,
) *ServiceProvider {
	return &ServiceProvider{
		submissionService: submissionService,
		tokenService:      tokenService,
	}
}

type Server struct {
	router          *mux.Router
	Port            int
	ServiceName     string
	ServiceProvider ServiceProvider
	logger          primary.Logger
	srv             *http.Server
}

func NewServer(port int, serviceName string, serviceProvider ServiceProvider, logger primary.Logger) *Server {
	return &Server{
		Port:            port,
		ServiceName:     serviceName,
		ServiceProvider: serviceProvider,
		logger:          logger,
	}
}

func (s *Server) Init() error {
	if s.ServiceProvider.submissionService == nil {
		return errors.New("submission service is required")
	}
	r := mux.NewRouter()
	handlers.NewHealthHandler(s.ServiceProvider.submissionService, s.ServiceName).RegisterRoutes(r)

	api := r.PathPrefix("/").Subrouter()
	api.Use(handlers.New(s.ServiceProvider.tokenService, s.logger).JWTMiddleware)
	jobs.
		NewJobHandler(s.ServiceProvider.submissionService, s.logger).
		RegisterRoutes(api)
	s.router = r
	return nil
}

// Handler returns the routed handler, valid after Init
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(ctx context.Context) {
	// Set up server
	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	// Start the server in a goroutine
	go func() {
		s.logger.Info("Server listening", "addr", s.srv.Addr, "service", s.ServiceName)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server error", "error", err)
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down http server...")
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
