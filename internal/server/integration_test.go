package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/astrofix/astrofix/internal/browser"
	"github.com/astrofix/astrofix/internal/server/endpoints"
	"github.com/astrofix/astrofix/internal/site"
	"github.com/astrofix/astrofix/internal/testutil"
)

// TestServer_Endpoints starts a full server and exercises the HTTP surface
// that does not need a detector or LLM backend: request validation, the site
// store, and not-found handling. Requires Docker.
func TestServer_Endpoints(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	cfg := testutil.NewServerConfig(t)
	mgr := newTestConfigManager(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	srv, err := New(Config{
		Host: cfg.Host,
		Port: cfg.Port,
		BrowserConfig: browser.DockerConfig{
			ContainerName: cfg.BrowserConfig.ContainerName,
			HostPort:      cfg.BrowserConfig.HostPort,
			Labels:        cfg.BrowserConfig.Labels,
		},
		ConfigManager: mgr,
		Logger:        cfg.Logger,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	serverErr := make(chan error, 1)
	serverCtx, serverCancel := context.WithCancel(ctx)
	defer func() {
		serverCancel()
		testutil.WaitForShutdown(serverErr, 60*time.Second)
	}()

	go func() {
		serverErr <- srv.Start(serverCtx)
	}()

	if err := testutil.WaitForServer(cfg.URL(), 90*time.Second); err != nil {
		t.Fatalf("server did not start: %v", err)
	}

	httpClient := testutil.HTTPClient()

	t.Run("generate_rejects_bad_num_pages", func(t *testing.T) {
		body := `{"description": "a landing page", "num_pages": 11}`
		resp, err := httpClient.Post(cfg.URL()+"/generate", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
		}
	})

	t.Run("generate_rejects_empty_description", func(t *testing.T) {
		body := `{"description": "  "}`
		resp, err := httpClient.Post(cfg.URL()+"/generate", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
		}
	})

	t.Run("correct_rejects_empty_markup", func(t *testing.T) {
		body := `{"markup": ""}`
		resp, err := httpClient.Post(cfg.URL()+"/correct", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
		}
	})

	t.Run("detect_rejects_empty_body", func(t *testing.T) {
		resp, err := httpClient.Post(cfg.URL()+"/detect", "image/png", strings.NewReader(""))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
		}
	})

	t.Run("sites_empty", func(t *testing.T) {
		resp, err := httpClient.Get(cfg.URL() + "/sites")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
		}

		var sites endpoints.SitesResponse
		if err := json.NewDecoder(resp.Body).Decode(&sites); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if sites.Total != 0 {
			t.Errorf("sites.Total = %d, want 0", sites.Total)
		}
	})

	t.Run("site_not_found", func(t *testing.T) {
		resp, err := httpClient.Get(cfg.URL() + "/site/0123456789abcdef")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
		}
	})

	t.Run("deployed_site_served_over_http", func(t *testing.T) {
		deployer := srv.Deployer()
		if deployer == nil {
			t.Fatal("Deployer() returned nil")
		}

		pages := []site.Page{
			{ID: "page_1", Markup: "<html><body><div class='block'>home</div></body></html>"},
			{ID: "page_2", Markup: "<html><body><div class='block'>about</div></body></html>"},
		}
		hash, err := deployer.Deploy(pages, site.Metadata{Description: "test site", NumPages: 2})
		if err != nil {
			t.Fatalf("Deploy() error = %v", err)
		}

		// Index page
		resp, err := httpClient.Get(cfg.URL() + "/site/" + hash)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
		}
		if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			t.Errorf("Content-Type = %q, want text/html", ct)
		}

		// Specific page
		pageResp, err := httpClient.Get(cfg.URL() + "/site/" + hash + "/page_2")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer pageResp.Body.Close()

		if pageResp.StatusCode != http.StatusOK {
			t.Errorf("page status = %d, want %d", pageResp.StatusCode, http.StatusOK)
		}

		// Listing includes it
		listResp, err := httpClient.Get(cfg.URL() + "/sites")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer listResp.Body.Close()

		var sites endpoints.SitesResponse
		if err := json.NewDecoder(listResp.Body).Decode(&sites); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if sites.Total != 1 {
			t.Fatalf("sites.Total = %d, want 1", sites.Total)
		}
		if sites.Sites[0].Hash != hash {
			t.Errorf("listed hash = %q, want %q", sites.Sites[0].Hash, hash)
		}

		// Delete it
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, cfg.URL()+"/site/"+hash, nil)
		if err != nil {
			t.Fatalf("failed to create request: %v", err)
		}
		delResp, err := httpClient.Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer delResp.Body.Close()

		if delResp.StatusCode != http.StatusOK {
			t.Errorf("delete status = %d, want %d", delResp.StatusCode, http.StatusOK)
		}

		// Gone after delete
		goneResp, err := httpClient.Get(cfg.URL() + "/site/" + hash)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer goneResp.Body.Close()

		if goneResp.StatusCode != http.StatusNotFound {
			t.Errorf("status after delete = %d, want %d", goneResp.StatusCode, http.StatusNotFound)
		}
	})

	t.Run("render_real_markup", func(t *testing.T) {
		client := srv.BrowserClient()
		if client == nil {
			t.Fatal("BrowserClient() returned nil")
		}

		png, err := client.Render(ctx,
			"<html><body><div class='block' style='position:absolute;left:5vw;top:5vh'>hi</div></body></html>",
			browser.DefaultViewport)
		if err != nil {
			t.Fatalf("Render() error = %v", err)
		}
		if len(png) == 0 {
			t.Error("Render() returned empty image")
		}
	})
}
