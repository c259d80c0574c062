package endpoints

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/astrofix/astrofix/internal/browser"
	"github.com/astrofix/astrofix/internal/config"
	"github.com/astrofix/astrofix/internal/correct"
	"github.com/astrofix/astrofix/internal/detector"
	"github.com/astrofix/astrofix/internal/geometry"
	"github.com/astrofix/astrofix/internal/rewrite"
	"github.com/astrofix/astrofix/internal/site"
	"github.com/astrofix/astrofix/internal/svcctx"
)

// fakeRenderer returns a fixed PNG payload.
type fakeRenderer struct{}

func (fakeRenderer) Render(ctx context.Context, markup string, vp browser.Viewport) ([]byte, error) {
	return []byte("png-bytes"), nil
}

// fakeDetector returns a scripted overlap count per call.
type fakeDetector struct {
	overlaps []int
	calls    int
}

func (d *fakeDetector) Detect(ctx context.Context, image []byte) (*geometry.Result, error) {
	n := 0
	if d.calls < len(d.overlaps) {
		n = d.overlaps[d.calls]
	}
	d.calls++

	result := &geometry.Result{ImageWidth: 390, ImageHeight: 844}
	for i := 0; i < n; i++ {
		result.Overlaps = append(result.Overlaps, geometry.OverlapPair{Instance1: 0, Instance2: 1, IoU: 0.5})
	}
	return result, nil
}

// fakeRewriter appends a marker so corrections are observable.
type fakeRewriter struct{}

func (fakeRewriter) Rewrite(ctx context.Context, req *rewrite.Request) (*rewrite.Result, error) {
	return &rewrite.Result{
		Markup:      req.Markup + "<!--fixed-->",
		Corrections: []string{"Updated block coordinates"},
	}, nil
}

func testConfigManager(t *testing.T) *config.Manager {
	t.Helper()
	mgr, err := config.NewManager("")
	if err != nil {
		t.Fatalf("failed to create config manager: %v", err)
	}
	return mgr
}

func withServices(r *http.Request, s *svcctx.Services) *http.Request {
	return r.WithContext(svcctx.WithServices(r.Context(), s))
}

func TestHealthEndpoint(t *testing.T) {
	ep := &HealthEndpoint{}
	_, _, handler := ep.Route()

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest("GET", "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("Status = %q, want %q", resp.Status, "ok")
	}
}

func TestReadyEndpoint_NotInitialized(t *testing.T) {
	ep := &ReadyEndpoint{}
	_, _, handler := ep.Route()

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest("GET", "/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "degraded" {
		t.Errorf("Status = %q, want %q", resp.Status, "degraded")
	}
	if resp.Browser != "not_initialized" {
		t.Errorf("Browser = %q, want %q", resp.Browser, "not_initialized")
	}
}

func TestCorrectEndpoint(t *testing.T) {
	det := &fakeDetector{overlaps: []int{2, 0}}
	orchestrator := correct.NewOrchestrator(fakeRenderer{}, det, fakeRewriter{}, nil)
	services := &svcctx.Services{
		Config:       testConfigManager(t),
		Orchestrator: orchestrator,
	}

	ep := &CorrectEndpoint{}
	_, _, handler := ep.Route()

	t.Run("converges", func(t *testing.T) {
		body := `{"markup": "<html></html>", "page_id": "page_1"}`
		req := withServices(httptest.NewRequest("POST", "/correct", strings.NewReader(body)), services)

		rec := httptest.NewRecorder()
		handler(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}

		var resp CorrectionResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Status != "success" {
			t.Errorf("Status = %q, want %q", resp.Status, "success")
		}
		if resp.StopReason != string(correct.StopConverged) {
			t.Errorf("StopReason = %q, want %q", resp.StopReason, correct.StopConverged)
		}
		if resp.IterationsApplied != 1 {
			t.Errorf("IterationsApplied = %d, want 1", resp.IterationsApplied)
		}
		if resp.CorrectedMarkup != "<html></html><!--fixed-->" {
			t.Errorf("CorrectedMarkup = %q", resp.CorrectedMarkup)
		}
		if resp.Detections == nil {
			t.Fatal("expected detections in response")
		}
		if resp.Detections.TotalOverlaps() != 0 {
			t.Errorf("Detections overlaps = %d, want 0", resp.Detections.TotalOverlaps())
		}
	})

	t.Run("rejects empty markup", func(t *testing.T) {
		req := withServices(httptest.NewRequest("POST", "/correct", strings.NewReader(`{"markup": ""}`)), services)

		rec := httptest.NewRecorder()
		handler(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("rejects oversized iteration budget", func(t *testing.T) {
		body := `{"markup": "<html></html>", "options": {"max_iterations": 11}}`
		req := withServices(httptest.NewRequest("POST", "/correct", strings.NewReader(body)), services)

		rec := httptest.NewRecorder()
		handler(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("missing services returns 503", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/correct", strings.NewReader(`{"markup": "<html></html>"}`))

		rec := httptest.NewRecorder()
		handler(rec, req)

		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
		}
	})
}

func TestDetectEndpoint(t *testing.T) {
	// Inference backend with one overlapping pair above the confidence cut.
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"objects": [
				{"score": 0.9, "bbox": [0, 0, 100, 100], "mask_area": 10000},
				{"score": 0.8, "bbox": [50, 50, 150, 150], "mask_area": 10000}
			],
			"image_size": [390, 844]
		}`)
	}))
	defer backend.Close()

	services := &svcctx.Services{
		Detector: detector.NewClient(detector.Config{URL: backend.URL}),
	}

	ep := &DetectEndpoint{}
	_, _, handler := ep.Route()

	t.Run("reports overlaps", func(t *testing.T) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		part, err := mw.CreateFormFile("file", "page.png")
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		part.Write([]byte("png-bytes"))
		mw.Close()

		req := withServices(httptest.NewRequest("POST", "/detect", &body), services)
		req.Header.Set("Content-Type", mw.FormDataContentType())

		rec := httptest.NewRecorder()
		handler(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}

		var resp geometry.Result
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.TotalObjects() != 2 {
			t.Errorf("TotalObjects = %d, want 2", resp.TotalObjects())
		}
		if resp.TotalOverlaps() != 1 {
			t.Errorf("TotalOverlaps = %d, want 1", resp.TotalOverlaps())
		}
		if resp.ImageWidth != 390 || resp.ImageHeight != 844 {
			t.Errorf("image size = %dx%d, want 390x844", resp.ImageWidth, resp.ImageHeight)
		}
	})

	t.Run("accepts raw image body", func(t *testing.T) {
		req := withServices(httptest.NewRequest("POST", "/detect", strings.NewReader("png-bytes")), services)
		req.Header.Set("Content-Type", "image/png")

		rec := httptest.NewRecorder()
		handler(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, body = %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("rejects multipart without file field", func(t *testing.T) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		mw.WriteField("note", "no file here")
		mw.Close()

		req := withServices(httptest.NewRequest("POST", "/detect", &body), services)
		req.Header.Set("Content-Type", mw.FormDataContentType())

		rec := httptest.NewRecorder()
		handler(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("rejects empty body", func(t *testing.T) {
		req := withServices(httptest.NewRequest("POST", "/detect", strings.NewReader("")), services)
		req.Header.Set("Content-Type", "image/png")

		rec := httptest.NewRecorder()
		handler(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})
}

func TestGenerateEndpoint_Validation(t *testing.T) {
	ep := &GenerateEndpoint{}
	_, _, handler := ep.Route()

	// Validation failures never reach the pipeline, so no services needed.
	cases := []struct {
		name string
		body string
	}{
		{"empty description", `{"description": "  "}`},
		{"num_pages too high", `{"description": "a page", "num_pages": 11}`},
		{"num_pages negative", `{"description": "a page", "num_pages": -1}`},
		{"iterations too high", `{"description": "a page", "max_correction_iterations": 11}`},
		{"bad json", `{`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler(rec, httptest.NewRequest("POST", "/generate", strings.NewReader(tc.body)))

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}

	t.Run("valid request without services returns 503", func(t *testing.T) {
		body := `{"description": "a coffee shop landing page", "num_pages": 2}`
		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest("POST", "/generate", strings.NewReader(body)))

		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
		}
	})
}

func TestSiteEndpoints(t *testing.T) {
	deployer, err := site.NewDeployer(site.Config{SitesDir: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create deployer: %v", err)
	}
	services := &svcctx.Services{
		Config:   testConfigManager(t),
		Deployer: deployer,
	}

	pages := []site.Page{
		{ID: "page_1", Markup: "<html><body>home</body></html>"},
		{ID: "page_2", Markup: "<html><body>about</body></html>"},
	}
	hash, err := deployer.Deploy(pages, site.Metadata{Description: "test", NumPages: 2})
	if err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}

	pageEp := &SitePageEndpoint{}
	_, _, pageHandler := pageEp.Route()

	t.Run("index page", func(t *testing.T) {
		req := withServices(httptest.NewRequest("GET", "/site/"+hash, nil), services)
		rec := httptest.NewRecorder()
		pageHandler(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}
		if got := rec.Body.String(); got != pages[0].Markup {
			t.Errorf("body = %q, want %q", got, pages[0].Markup)
		}
		if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			t.Errorf("Content-Type = %q, want text/html", ct)
		}
	})

	t.Run("named page", func(t *testing.T) {
		req := withServices(httptest.NewRequest("GET", "/site/"+hash+"/page_2", nil), services)
		rec := httptest.NewRecorder()
		pageHandler(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if got := rec.Body.String(); got != pages[1].Markup {
			t.Errorf("body = %q, want %q", got, pages[1].Markup)
		}
	})

	t.Run("unknown hash", func(t *testing.T) {
		req := withServices(httptest.NewRequest("GET", "/site/0123456789abcdef", nil), services)
		rec := httptest.NewRecorder()
		pageHandler(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
		}
	})

	t.Run("malformed hash", func(t *testing.T) {
		req := withServices(httptest.NewRequest("GET", "/site/NOT-A-HASH", nil), services)
		rec := httptest.NewRecorder()
		pageHandler(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
		}
	})

	t.Run("list", func(t *testing.T) {
		sitesEp := &SitesEndpoint{}
		_, _, sitesHandler := sitesEp.Route()

		req := withServices(httptest.NewRequest("GET", "/sites", nil), services)
		rec := httptest.NewRecorder()
		sitesHandler(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}

		var resp SitesResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Total != 1 {
			t.Fatalf("Total = %d, want 1", resp.Total)
		}
		if resp.Sites[0].Hash != hash {
			t.Errorf("Hash = %q, want %q", resp.Sites[0].Hash, hash)
		}
		if resp.Sites[0].NumPages != 2 {
			t.Errorf("NumPages = %d, want 2", resp.Sites[0].NumPages)
		}
	})

	t.Run("delete", func(t *testing.T) {
		delEp := &SiteDeleteEndpoint{}
		_, _, delHandler := delEp.Route()

		req := withServices(httptest.NewRequest("DELETE", "/site/"+hash, nil), services)
		req.SetPathValue("hash", hash)
		rec := httptest.NewRecorder()
		delHandler(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}

		// Second delete is a 404
		req = withServices(httptest.NewRequest("DELETE", "/site/"+hash, nil), services)
		req.SetPathValue("hash", hash)
		rec = httptest.NewRecorder()
		delHandler(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
		}
	})
}

func TestSplitSitePath(t *testing.T) {
	cases := []struct {
		path   string
		hash   string
		pageID string
		ok     bool
	}{
		{"/site/abc123", "abc123", "", true},
		{"/site/abc123/page_2", "abc123", "page_2", true},
		{"/site/abc123/sub/page", "abc123", "sub/page", true},
		{"/site/", "", "", false},
		{"/site//page_1", "", "", false},
	}

	for _, tc := range cases {
		hash, pageID, ok := splitSitePath(tc.path)
		if hash != tc.hash || pageID != tc.pageID || ok != tc.ok {
			t.Errorf("splitSitePath(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tc.path, hash, pageID, ok, tc.hash, tc.pageID, tc.ok)
		}
	}
}

func TestSiteURL(t *testing.T) {
	if got := siteURL("http://localhost:8080/", "abc"); got != "http://localhost:8080/site/abc" {
		t.Errorf("siteURL = %q", got)
	}
	if got := siteURL("http://localhost:8080", "abc"); got != "http://localhost:8080/site/abc" {
		t.Errorf("siteURL = %q", got)
	}
}
