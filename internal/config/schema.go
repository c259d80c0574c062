package config

// Config holds astrofix configuration.
// Loaded from config.yaml in the working directory or ~/.astrofix.
type Config struct {
	LLMProviders map[string]LLMProviderCfg `mapstructure:"llm_providers" yaml:"llm_providers"`
	Defaults     DefaultsCfg               `mapstructure:"defaults" yaml:"defaults"`
	Detector     DetectorCfg               `mapstructure:"detector" yaml:"detector"`
	Browser      BrowserCfg                `mapstructure:"browser" yaml:"browser"`
	Correction   CorrectionCfg             `mapstructure:"correction" yaml:"correction"`
	Deploy       DeployCfg                 `mapstructure:"deploy" yaml:"deploy"`
}

// LLMProviderCfg configures an LLM provider.
type LLMProviderCfg struct {
	Type       string  `mapstructure:"type" yaml:"type"`               // "openrouter", "openai"
	Model      string  `mapstructure:"model" yaml:"model"`             // Model name
	APIKey     string  `mapstructure:"api_key" yaml:"api_key"`         // API key (supports ${ENV_VAR} syntax)
	BaseURL    string  `mapstructure:"base_url" yaml:"base_url"`       // Override API base URL
	RateLimit  float64 `mapstructure:"rate_limit" yaml:"rate_limit"`   // Requests per second
	MaxRetries int     `mapstructure:"max_retries" yaml:"max_retries"` // Retry attempts for transient failures
	Enabled    bool    `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultsCfg specifies default provider selections.
type DefaultsCfg struct {
	LLMProvider string `mapstructure:"llm_provider" yaml:"llm_provider"` // Default LLM provider
}

// DetectorCfg configures the block-detection inference service.
type DetectorCfg struct {
	// URL is the inference service endpoint (default: http://localhost:8400)
	URL string `mapstructure:"url" yaml:"url"`
	// ConfidenceThreshold filters detections below this score
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" yaml:"confidence_threshold"`
	// IoUThreshold is the minimum intersection-over-union for two boxes
	// to count as overlapping
	IoUThreshold float64 `mapstructure:"iou_threshold" yaml:"iou_threshold"`
	// TimeoutSeconds is the HTTP timeout for inference requests
	TimeoutSeconds int `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// BrowserCfg holds the headless browser container configuration.
type BrowserCfg struct {
	// ContainerName is the Docker container name (default: astrofix-browser)
	ContainerName string `mapstructure:"container_name" yaml:"container_name"`
	// Image is the Docker image to use (default: ghcr.io/browserless/chromium:latest)
	Image string `mapstructure:"image" yaml:"image"`
	// Port is the host port to bind (default: 3000)
	Port string `mapstructure:"port" yaml:"port"`
	// TimeoutSeconds is the screenshot request timeout
	TimeoutSeconds int `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// CorrectionCfg tunes the correction loop.
type CorrectionCfg struct {
	// MaxIterations caps rewrite attempts per page (1-10)
	MaxIterations int `mapstructure:"max_iterations" yaml:"max_iterations"`
	// RecheckFinal re-renders and re-detects after the last rewrite when
	// the iteration budget runs out, at the cost of one extra render
	RecheckFinal bool `mapstructure:"recheck_final" yaml:"recheck_final"`
	// ViewportWidth and ViewportHeight are the render viewport in pixels
	ViewportWidth  int `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight int `mapstructure:"viewport_height" yaml:"viewport_height"`
	// PageWorkers is the number of pages corrected concurrently
	PageWorkers int `mapstructure:"page_workers" yaml:"page_workers"`
}

// DeployCfg configures site deployment.
type DeployCfg struct {
	// SitesDir is where deployed sites are written (default: ~/.astrofix/sites)
	SitesDir string `mapstructure:"sites_dir" yaml:"sites_dir"`
	// BaseURL is used to build public site URLs in responses
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	// HomePage is the page ID served as index.html ("" = lowest page ID)
	HomePage string `mapstructure:"home_page" yaml:"home_page"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LLMProviders: map[string]LLMProviderCfg{
			"openrouter": {
				Type:       "openrouter",
				Model:      "openai/gpt-4-turbo-preview",
				APIKey:     "${OPENROUTER_API_KEY}",
				MaxRetries: 3,
				Enabled:    true,
			},
			"openai": {
				Type:       "openai",
				Model:      "gpt-4-turbo-preview",
				APIKey:     "${OPENAI_API_KEY}",
				MaxRetries: 3,
				Enabled:    false,
			},
		},
		Defaults: DefaultsCfg{
			LLMProvider: "openrouter",
		},
		Detector: DetectorCfg{
			URL:                 "http://localhost:8400",
			ConfidenceThreshold: 0.5,
			IoUThreshold:        0.1,
			TimeoutSeconds:      120,
		},
		Browser: BrowserCfg{
			ContainerName: "astrofix-browser",
			Image:         "ghcr.io/browserless/chromium:latest",
			Port:          "3000",
			TimeoutSeconds: 60,
		},
		Correction: CorrectionCfg{
			MaxIterations:  3,
			RecheckFinal:   false,
			ViewportWidth:  390,
			ViewportHeight: 844,
			PageWorkers:    2,
		},
		Deploy: DeployCfg{
			SitesDir: "",
			BaseURL:  "http://localhost:8080",
			HomePage: "",
		},
	}
}

// GetLLMProvider returns an LLM provider config by name.
func (c *Config) GetLLMProvider(name string) (LLMProviderCfg, bool) {
	cfg, ok := c.LLMProviders[name]
	return cfg, ok
}

// EnabledLLMProviders returns all enabled LLM providers.
func (c *Config) EnabledLLMProviders() map[string]LLMProviderCfg {
	result := make(map[string]LLMProviderCfg)
	for name, cfg := range c.LLMProviders {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}
