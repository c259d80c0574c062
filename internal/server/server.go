package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/astrofix/astrofix/internal/api"
	"github.com/astrofix/astrofix/internal/browser"
	"github.com/astrofix/astrofix/internal/config"
	"github.com/astrofix/astrofix/internal/correct"
	"github.com/astrofix/astrofix/internal/detector"
	"github.com/astrofix/astrofix/internal/generate"
	"github.com/astrofix/astrofix/internal/home"
	"github.com/astrofix/astrofix/internal/pipeline"
	"github.com/astrofix/astrofix/internal/providers"
	"github.com/astrofix/astrofix/internal/rewrite"
	"github.com/astrofix/astrofix/internal/server/endpoints"
	"github.com/astrofix/astrofix/internal/site"
	"github.com/astrofix/astrofix/internal/svcctx"
)

// Server is the main astrofix HTTP server.
// It manages the browser container lifecycle - starting it on server start
// and stopping it on server shutdown.
type Server struct {
	httpServer     *http.Server
	browserManager *browser.DockerManager
	browserClient  *browser.Client
	detectorClient *detector.Client
	llm            *llmSwapper
	deployer       *site.Deployer
	configMgr      *config.Manager
	logger         *slog.Logger

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1)
	Host string
	// Port is the port to listen on (default: 8080)
	Port string
	// BrowserConfig holds browser container settings
	BrowserConfig browser.DockerConfig
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Logger is the structured logger to use
	Logger *slog.Logger
	// SwaggerSpecPath overrides the swagger.json location
	SwaggerSpecPath string
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ConfigManager == nil {
		return nil, errors.New("config manager is required")
	}

	appCfg := cfg.ConfigManager.Get()
	if cfg.BrowserConfig.ContainerName == "" {
		cfg.BrowserConfig.ContainerName = appCfg.Browser.ContainerName
	}
	if cfg.BrowserConfig.Image == "" {
		cfg.BrowserConfig.Image = appCfg.Browser.Image
	}
	if cfg.BrowserConfig.HostPort == "" {
		cfg.BrowserConfig.HostPort = appCfg.Browser.Port
	}

	browserManager, err := browser.NewDockerManager(cfg.BrowserConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create browser manager: %w", err)
	}

	llmClient, err := newLLMClient(appCfg)
	if err != nil {
		return nil, err
	}
	llm := &llmSwapper{client: llmClient}

	// Rebuild the LLM client when the provider config changes on disk
	cfg.ConfigManager.OnChange(func(c *config.Config) {
		rebuilt, err := newLLMClient(c)
		if err != nil {
			cfg.Logger.Error("LLM client reload failed, keeping previous client", "error", err)
			return
		}
		llm.swap(rebuilt)
		cfg.Logger.Info("LLM client reloaded from config", "provider", rebuilt.Name())
	})

	s := &Server{
		browserManager: browserManager,
		llm:            llm,
		configMgr:      cfg.ConfigManager,
		logger:         cfg.Logger,
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{
		BrowserManager:  browserManager,
		SwaggerSpecPath: cfg.SwaggerSpecPath,
	}) {
		s.endpointRegistry.Register(ep)
	}

	// Set up HTTP server
	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:    net.JoinHostPort(cfg.Host, cfg.Port),
		Handler: s.withServices(mux),
		// Generation holds the connection through render/detect/rewrite
		// loops, so the write timeout is generous.
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start starts the server and the browser container.
// It blocks until the context is cancelled or an error occurs.
// If an existing browser container exists, it validates the configuration matches.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	appCfg := s.configMgr.Get()

	// Validate any existing container matches our config
	if err := s.browserManager.ValidateExisting(ctx); err != nil {
		s.setNotRunning()
		return fmt.Errorf("existing browser container incompatible: %w", err)
	}

	// Start the browser container
	s.logger.Info("starting browser container")
	if err := s.browserManager.Start(ctx); err != nil {
		s.setNotRunning()
		return fmt.Errorf("failed to start browser container: %w", err)
	}

	// Create client after the container is up
	s.browserClient = browser.NewClient(browser.ClientConfig{
		BaseURL: s.browserManager.URL(),
		Timeout: time.Duration(appCfg.Browser.TimeoutSeconds) * time.Second,
	})

	// Verify the browser is healthy
	if err := s.browserClient.HealthCheck(ctx); err != nil {
		_ = s.shutdown() // Clean up the container on failure
		return fmt.Errorf("browser health check failed: %w", err)
	}
	s.logger.Info("browser is ready", "url", s.browserManager.URL())

	// The detector runs outside our lifecycle; a failed check only warns
	// because it can come up later.
	s.detectorClient = detector.NewClient(detector.Config{
		URL:                 appCfg.Detector.URL,
		ConfidenceThreshold: appCfg.Detector.ConfidenceThreshold,
		IoUThreshold:        appCfg.Detector.IoUThreshold,
		Timeout:             time.Duration(appCfg.Detector.TimeoutSeconds) * time.Second,
	})
	if err := s.detectorClient.HealthCheck(ctx); err != nil {
		s.logger.Warn("detector not reachable yet", "url", appCfg.Detector.URL, "error", err)
	}

	sitesDir := appCfg.Deploy.SitesDir
	if sitesDir == "" {
		homeDir, err := home.New("")
		if err != nil {
			_ = s.shutdown()
			return fmt.Errorf("failed to resolve home directory: %w", err)
		}
		sitesDir = homeDir.SitesPath()
	}
	deployer, err := site.NewDeployer(site.Config{
		SitesDir: sitesDir,
		HomePage: appCfg.Deploy.HomePage,
		Logger:   s.logger,
	})
	if err != nil {
		_ = s.shutdown()
		return fmt.Errorf("failed to create site deployer: %w", err)
	}
	s.deployer = deployer

	providerCfg, _ := appCfg.GetLLMProvider(appCfg.Defaults.LLMProvider)
	generator := generate.NewGenerator(s.llm, generate.WithModel(providerCfg.Model))
	rewriter := rewrite.NewRewriter(s.llm, rewrite.WithModel(providerCfg.Model))
	orchestrator := correct.NewOrchestrator(s.browserClient, s.detectorClient, rewriter, s.logger)

	pipe := pipeline.New(pipeline.Config{
		Generator:   generator,
		Corrector:   orchestrator,
		Deployer:    deployer,
		PageWorkers: appCfg.Correction.PageWorkers,
		Logger:      s.logger,
	})

	// Create services struct for context enrichment
	s.services = &svcctx.Services{
		Config:       s.configMgr,
		Logger:       s.logger,
		LLM:          s.llm,
		Browser:      s.browserClient,
		Detector:     s.detectorClient,
		Generator:    generator,
		Orchestrator: orchestrator,
		Pipeline:     pipe,
		Deployer:     deployer,
	}

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown() // Clean up the container on HTTP error
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// shutdown performs graceful shutdown of both HTTP server and browser container.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	// Shutdown HTTP server with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	// Stop the browser container
	s.logger.Info("stopping browser container")
	if err := s.browserManager.Stop(shutdownCtx); err != nil {
		s.logger.Error("browser container stop error", "error", err)
	}

	// Close Docker client
	if err := s.browserManager.Close(); err != nil {
		s.logger.Error("browser manager close error", "error", err)
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// BrowserClient returns the screenshot client.
// Returns nil if the server hasn't started yet.
func (s *Server) BrowserClient() *browser.Client {
	return s.browserClient
}

// Deployer returns the site deployer.
// Returns nil if the server hasn't started yet.
func (s *Server) Deployer() *site.Deployer {
	return s.deployer
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if s.services != nil {
			ctx = svcctx.WithServices(ctx, s.services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
// Returns 503 Service Unavailable if the browser or pipeline aren't ready.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.browserClient == nil || s.services == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}

// newLLMClient builds the configured default LLM provider client.
func newLLMClient(cfg *config.Config) (providers.LLMClient, error) {
	name := cfg.Defaults.LLMProvider
	p, ok := cfg.GetLLMProvider(name)
	if !ok {
		return nil, fmt.Errorf("llm provider %q not configured", name)
	}
	if !p.Enabled {
		return nil, fmt.Errorf("llm provider %q is disabled", name)
	}

	apiKey := config.ResolveEnvVars(p.APIKey)
	switch p.Type {
	case providers.OpenRouterName:
		return providers.NewOpenRouterClient(providers.OpenRouterConfig{
			APIKey:       apiKey,
			BaseURL:      p.BaseURL,
			DefaultModel: p.Model,
			MaxRetries:   p.MaxRetries,
		}), nil
	case providers.OpenAIName:
		return providers.NewOpenAIClient(providers.OpenAIConfig{
			APIKey:     apiKey,
			BaseURL:    p.BaseURL,
			Model:      p.Model,
			MaxRetries: p.MaxRetries,
		}), nil
	default:
		return nil, fmt.Errorf("unknown llm provider type %q", p.Type)
	}
}

// llmSwapper is a thread-safe LLMClient that can be rebuilt when the config
// file changes without restarting the server.
type llmSwapper struct {
	mu     sync.RWMutex
	client providers.LLMClient
}

func (l *llmSwapper) get() providers.LLMClient {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.client
}

func (l *llmSwapper) swap(c providers.LLMClient) {
	l.mu.Lock()
	l.client = c
	l.mu.Unlock()
}

func (l *llmSwapper) Chat(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResult, error) {
	return l.get().Chat(ctx, req)
}

func (l *llmSwapper) Name() string {
	return l.get().Name()
}
