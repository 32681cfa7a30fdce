package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"commentguard/internal/domain"
	"commentguard/internal/metrics"
	"commentguard/internal/ports"
)

// WorkflowRunner is the pipeline entry point consumed by the handlers.
type WorkflowRunner interface {
	Run(ctx context.Context, params domain.RunParams) *domain.RunState
	RunBatch(ctx context.Context, videoIDs []string, maxResults int, dryRun bool) []*domain.RunState
}

// Authenticator is the credential-manager surface exposed over HTTP.
type Authenticator interface {
	AuthorizationURL() (string, error)
	ExchangeAuthorizationCode(ctx context.Context, code, state string) (domain.Identity, error)
	Identity(ctx context.Context) (domain.Identity, error)
	EnsureValid(ctx context.Context) error
	Logout() error
}

// Deps wires the handler collaborators.
type Deps struct {
	Runner            WorkflowRunner
	Classifier        ports.Classifier
	Videos            ports.VideoSource
	Auth              Authenticator
	Runs              ports.RunRepository
	Metrics           *metrics.Set
	Logger            *slog.Logger
	DefaultMaxResults int
}

// Server is the HTTP face of the moderation pipeline.
type Server struct {
	app               *fiber.App
	runner            WorkflowRunner
	classifier        ports.Classifier
	videos            ports.VideoSource
	auth              Authenticator
	runs              ports.RunRepository
	logger            *slog.Logger
	defaultMaxResults int
}

// New assembles the fiber application and its routes.
func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	defaultMax := deps.DefaultMaxResults
	if defaultMax <= 0 {
		defaultMax = 100
	}

	s := &Server{
		app:               fiber.New(fiber.Config{DisableStartupMessage: true}),
		runner:            deps.Runner,
		classifier:        deps.Classifier,
		videos:            deps.Videos,
		auth:              deps.Auth,
		runs:              deps.Runs,
		logger:            logger,
		defaultMaxResults: defaultMax,
	}

	s.app.Use(cors.New())

	s.app.Get("/health", s.handleHealth)
	s.app.Post("/api/process-video", s.handleProcessVideo)
	s.app.Post("/api/batch-process", s.handleBatchProcess)
	s.app.Post("/api/analyze-comment", s.handleAnalyzeComment)
	s.app.Post("/api/video-info", s.handleVideoInfo)
	s.app.Get("/api/auth/login", s.handleAuthLogin)
	s.app.Get("/oauth/callback", s.handleOAuthCallback)
	s.app.Get("/api/auth/status", s.handleAuthStatus)
	s.app.Post("/api/auth/logout", s.handleAuthLogout)

	// Run history is only available when the audit repository is wired.
	if deps.Runs != nil {
		s.app.Get("/api/runs", s.handleRuns)
	}

	if deps.Metrics != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(
			deps.Metrics.Registry, promhttp.HandlerOpts{})))
	}

	return s
}

// App exposes the fiber application for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen blocks serving HTTP on the given port.
func (s *Server) Listen(port int) error {
	return s.app.Listen(fmt.Sprintf(":%d", port))
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
