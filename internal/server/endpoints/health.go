package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/astrofix/astrofix/internal/api"
	"github.com/astrofix/astrofix/internal/browser"
	"github.com/astrofix/astrofix/internal/svcctx"
)

// HealthResponse is the response for health check endpoints.
type HealthResponse struct {
	Status   string `json:"status"`
	Browser  string `json:"browser,omitempty"`
	Detector string `json:"detector,omitempty"`
}

// HealthEndpoint handles GET /health.
type HealthEndpoint struct{}

func (e *HealthEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/health", e.handler
}

func (e *HealthEndpoint) RequiresInit() bool { return false }

func (e *HealthEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (e *HealthEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp HealthResponse
			if err := client.Get(cmd.Context(), "/health", &resp); err != nil {
				return err
			}
			fmt.Printf("Status: %s\n", resp.Status)
			return nil
		},
	}
}

// ReadyEndpoint handles GET /ready.
type ReadyEndpoint struct{}

func (e *ReadyEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/ready", e.handler
}

func (e *ReadyEndpoint) RequiresInit() bool { return false }

func (e *ReadyEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Browser: "ok", Detector: "ok"}
	degraded := false

	if b := svcctx.BrowserFrom(r.Context()); b != nil {
		if err := b.HealthCheck(r.Context()); err != nil {
			resp.Browser = "unhealthy"
			degraded = true
		}
	} else {
		resp.Browser = "not_initialized"
		degraded = true
	}

	if d := svcctx.DetectorFrom(r.Context()); d != nil {
		if err := d.HealthCheck(r.Context()); err != nil {
			resp.Detector = "unhealthy"
			degraded = true
		}
	} else {
		resp.Detector = "not_initialized"
		degraded = true
	}

	if degraded {
		resp.Status = "degraded"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e *ReadyEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "ready",
		Short: "Check server readiness (includes browser and detector)",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp HealthResponse
			if err := client.Get(cmd.Context(), "/ready", &resp); err != nil {
				return err
			}
			fmt.Printf("Status:   %s\n", resp.Status)
			fmt.Printf("Browser:  %s\n", resp.Browser)
			fmt.Printf("Detector: %s\n", resp.Detector)
			return nil
		},
	}
}

// StatusResponse is the detailed status response.
type StatusResponse struct {
	Server   string        `json:"server"`
	LLM      string        `json:"llm"`
	Browser  BrowserStatus `json:"browser"`
	Detector string        `json:"detector"`
}

// BrowserStatus shows browser container and health status.
type BrowserStatus struct {
	Container string `json:"container"`
	Health    string `json:"health"`
	URL       string `json:"url"`
}

// StatusEndpoint handles GET /status.
type StatusEndpoint struct {
	// BrowserManager is set by server since it's not in Services
	BrowserManager *browser.DockerManager
}

func (e *StatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/status", e.handler
}

func (e *StatusEndpoint) RequiresInit() bool { return false }

func (e *StatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Server: "running",
	}

	if llm := svcctx.LLMFrom(r.Context()); llm != nil {
		resp.LLM = llm.Name()
	} else {
		resp.LLM = "not_initialized"
	}

	if e.BrowserManager != nil {
		status, err := e.BrowserManager.Status(r.Context())
		if err != nil {
			resp.Browser.Container = "error"
		} else {
			resp.Browser.Container = string(status)
		}
		resp.Browser.URL = e.BrowserManager.URL()
	} else {
		resp.Browser.Container = "not_initialized"
	}

	if b := svcctx.BrowserFrom(r.Context()); b != nil {
		if err := b.HealthCheck(r.Context()); err != nil {
			resp.Browser.Health = "unhealthy"
		} else {
			resp.Browser.Health = "healthy"
		}
	} else {
		resp.Browser.Health = "not_initialized"
	}

	if d := svcctx.DetectorFrom(r.Context()); d != nil {
		if err := d.HealthCheck(r.Context()); err != nil {
			resp.Detector = "unhealthy"
		} else {
			resp.Detector = "healthy"
		}
	} else {
		resp.Detector = "not_initialized"
	}

	writeJSON(w, http.StatusOK, resp)
}

func (e *StatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Get detailed server status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp StatusResponse
			if err := client.Get(cmd.Context(), "/status", &resp); err != nil {
				return err
			}
			fmt.Printf("Server: %s\n", resp.Server)
			fmt.Printf("LLM:    %s\n", resp.LLM)
			fmt.Printf("Browser:\n")
			fmt.Printf("  Container: %s\n", resp.Browser.Container)
			fmt.Printf("  Health:    %s\n", resp.Browser.Health)
			fmt.Printf("  URL:       %s\n", resp.Browser.URL)
			fmt.Printf("Detector: %s\n", resp.Detector)
			return nil
		},
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
