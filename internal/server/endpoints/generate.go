package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/astrofix/astrofix/internal/api"
	"github.com/astrofix/astrofix/internal/browser"
	"github.com/astrofix/astrofix/internal/generate"
	"github.com/astrofix/astrofix/internal/pipeline"
	"github.com/astrofix/astrofix/internal/svcctx"
)

// GenerationRequest is the request body for POST /generate.
type GenerationRequest struct {
	Description             string `json:"description"`
	SiteStyle               string `json:"site_style,omitempty"`
	NumPages                int    `json:"num_pages,omitempty"`
	MaxCorrectionIterations int    `json:"max_correction_iterations,omitempty"`
	ViewportWidth           int    `json:"viewport_width,omitempty"`
	ViewportHeight          int    `json:"viewport_height,omitempty"`
}

// GeneratedPage reports the per-page correction outcome.
type GeneratedPage struct {
	PageID             string `json:"page_id"`
	CorrectionsApplied int    `json:"corrections_applied"`
	FinalOverlaps      int    `json:"final_overlaps"`
	StopReason         string `json:"stop_reason"`
	Error              string `json:"error,omitempty"`
}

// GenerationResponse is the response for POST /generate.
type GenerationResponse struct {
	Status     string          `json:"status"`
	SiteHash   string          `json:"site_hash"`
	SiteURL    string          `json:"site_url"`
	TotalPages int             `json:"total_pages"`
	Pages      []GeneratedPage `json:"pages"`
	Error      string          `json:"error,omitempty"`
}

// GenerateEndpoint handles POST /generate.
type GenerateEndpoint struct{}

func (e *GenerateEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/generate", e.handler
}

func (e *GenerateEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Generate a corrected site
//	@Description	Generate pages from a description, correct their layout, and deploy the site
//	@Tags			generation
//	@Accept			json
//	@Produce		json
//	@Param			request	body		GenerationRequest	true	"Generation request"
//	@Success		200		{object}	GenerationResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/generate [post]
func (e *GenerateEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req GenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		writeError(w, http.StatusBadRequest, "description is required")
		return
	}
	if req.NumPages == 0 {
		req.NumPages = 1
	}
	if req.NumPages < 1 || req.NumPages > generate.MaxPages {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("num_pages must be between 1 and %d", generate.MaxPages))
		return
	}
	if req.MaxCorrectionIterations < 0 || req.MaxCorrectionIterations > 10 {
		writeError(w, http.StatusBadRequest, "max_correction_iterations must be between 1 and 10")
		return
	}

	pipe := svcctx.PipelineFrom(r.Context())
	cfgMgr := svcctx.ConfigFrom(r.Context())
	if pipe == nil || cfgMgr == nil {
		writeError(w, http.StatusServiceUnavailable, "generation services not initialized")
		return
	}
	cfg := cfgMgr.Get()

	pipeReq := pipeline.Request{
		Description:   req.Description,
		Style:         req.SiteStyle,
		NumPages:      req.NumPages,
		MaxIterations: cfg.Correction.MaxIterations,
		Viewport: browser.Viewport{
			Width:  cfg.Correction.ViewportWidth,
			Height: cfg.Correction.ViewportHeight,
		},
		RecheckFinal: cfg.Correction.RecheckFinal,
		RequestID:    uuid.NewString(),
	}
	if req.MaxCorrectionIterations > 0 {
		pipeReq.MaxIterations = req.MaxCorrectionIterations
	}
	if req.ViewportWidth > 0 {
		pipeReq.Viewport.Width = req.ViewportWidth
	}
	if req.ViewportHeight > 0 {
		pipeReq.Viewport.Height = req.ViewportHeight
	}

	result, err := pipe.Run(r.Context(), &pipeReq)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, GenerationResponse{
			Status: "error",
			Error:  err.Error(),
		})
		return
	}

	pages := make([]GeneratedPage, len(result.Pages))
	for i, p := range result.Pages {
		pages[i] = GeneratedPage{
			PageID:             p.PageID,
			CorrectionsApplied: p.CorrectionsApplied,
			FinalOverlaps:      p.FinalOverlaps,
			StopReason:         string(p.StopReason),
			Error:              p.Error,
		}
	}

	writeJSON(w, http.StatusOK, GenerationResponse{
		Status:     "success",
		SiteHash:   result.SiteHash,
		SiteURL:    siteURL(cfg.Deploy.BaseURL, result.SiteHash),
		TotalPages: result.TotalPages,
		Pages:      pages,
	})
}

// siteURL joins the deploy base URL with the site path.
func siteURL(baseURL, hash string) string {
	return strings.TrimRight(baseURL, "/") + "/site/" + hash
}

func (e *GenerateEndpoint) Command(getServerURL func() string) *cobra.Command {
	var description string
	var style string
	var numPages int
	var maxIterations int
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate and deploy a corrected site",
		Long: `Generate a site from a text description, run layout correction on
every page, and deploy the result under a content hash.

Example:
  astrofix api generate -d "a coffee shop landing page" --pages 3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(description) == "" {
				return fmt.Errorf("description is required")
			}

			req := GenerationRequest{
				Description:             description,
				SiteStyle:               style,
				NumPages:                numPages,
				MaxCorrectionIterations: maxIterations,
			}

			client := api.NewClient(getServerURL())
			var resp GenerationResponse
			if err := client.Post(cmd.Context(), "/generate", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "Site description (required)")
	cmd.Flags().StringVar(&style, "style", "", "Visual style hint")
	cmd.Flags().IntVar(&numPages, "pages", 1, "Number of pages to generate")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "Override max correction iterations per page")
	return cmd
}
