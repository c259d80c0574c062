// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/astrofix/astrofix/internal/browser"
	"github.com/astrofix/astrofix/internal/config"
	"github.com/astrofix/astrofix/internal/correct"
	"github.com/astrofix/astrofix/internal/detector"
	"github.com/astrofix/astrofix/internal/generate"
	"github.com/astrofix/astrofix/internal/pipeline"
	"github.com/astrofix/astrofix/internal/providers"
	"github.com/astrofix/astrofix/internal/site"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	Config       *config.Manager
	Logger       *slog.Logger
	LLM          providers.LLMClient
	Browser      *browser.Client
	Detector     *detector.Client
	Generator    *generate.Generator
	Orchestrator *correct.Orchestrator
	Pipeline     *pipeline.Pipeline
	Deployer     *site.Deployer
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// ConfigFrom extracts the config manager from context.
func ConfigFrom(ctx context.Context) *config.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.Config
	}
	return nil
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil {
		return s.Logger
	}
	return nil
}

// LLMFrom extracts the LLM client from context.
func LLMFrom(ctx context.Context) providers.LLMClient {
	if s := ServicesFrom(ctx); s != nil {
		return s.LLM
	}
	return nil
}

// BrowserFrom extracts the screenshot client from context.
func BrowserFrom(ctx context.Context) *browser.Client {
	if s := ServicesFrom(ctx); s != nil {
		return s.Browser
	}
	return nil
}

// DetectorFrom extracts the detector client from context.
func DetectorFrom(ctx context.Context) *detector.Client {
	if s := ServicesFrom(ctx); s != nil {
		return s.Detector
	}
	return nil
}

// GeneratorFrom extracts the site generator from context.
func GeneratorFrom(ctx context.Context) *generate.Generator {
	if s := ServicesFrom(ctx); s != nil {
		return s.Generator
	}
	return nil
}

// OrchestratorFrom extracts the correction orchestrator from context.
func OrchestratorFrom(ctx context.Context) *correct.Orchestrator {
	if s := ServicesFrom(ctx); s != nil {
		return s.Orchestrator
	}
	return nil
}

// PipelineFrom extracts the generation pipeline from context.
func PipelineFrom(ctx context.Context) *pipeline.Pipeline {
	if s := ServicesFrom(ctx); s != nil {
		return s.Pipeline
	}
	return nil
}

// DeployerFrom extracts the site deployer from context.
func DeployerFrom(ctx context.Context) *site.Deployer {
	if s := ServicesFrom(ctx); s != nil {
		return s.Deployer
	}
	return nil
}
