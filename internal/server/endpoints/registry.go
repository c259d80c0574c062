package endpoints

import (
	"github.com/astrofix/astrofix/internal/api"
	"github.com/astrofix/astrofix/internal/browser"
)

// Config holds dependencies needed by some endpoints.
type Config struct {
	BrowserManager  *browser.DockerManager
	SwaggerSpecPath string
}

// All returns all endpoint instances.
func All(cfg Config) []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&StatusEndpoint{BrowserManager: cfg.BrowserManager},

		// Correction endpoints
		&CorrectEndpoint{},
		&DetectEndpoint{},

		// Generation endpoint
		&GenerateEndpoint{},

		// Site endpoints
		&SitesEndpoint{},
		&SitePageEndpoint{},
		&SiteDeleteEndpoint{},

		// Swagger/OpenAPI endpoints
		&SwaggerEndpoint{SpecPath: cfg.SwaggerSpecPath},
		&SwaggerUIEndpoint{},
	}
}
