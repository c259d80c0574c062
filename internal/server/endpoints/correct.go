package endpoints

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/astrofix/astrofix/internal/api"
	"github.com/astrofix/astrofix/internal/browser"
	"github.com/astrofix/astrofix/internal/correct"
	"github.com/astrofix/astrofix/internal/geometry"
	"github.com/astrofix/astrofix/internal/svcctx"
)

// CorrectionOptions tunes one correction request.
type CorrectionOptions struct {
	PreserveBlocks *bool `json:"preserve_blocks,omitempty"`
	MaxIterations  int   `json:"max_iterations,omitempty"`
	ViewportWidth  int   `json:"viewport_width,omitempty"`
	ViewportHeight int   `json:"viewport_height,omitempty"`
	RecheckFinal   *bool `json:"recheck_final,omitempty"`
}

// CorrectionRequest is the request body for POST /correct.
type CorrectionRequest struct {
	Markup  string             `json:"markup"`
	PageID  string             `json:"page_id"`
	Options *CorrectionOptions `json:"options,omitempty"`
}

// CorrectionResponse is the response for POST /correct. Detections is the
// last completed detection pass in the geometry wire form.
type CorrectionResponse struct {
	Status             string           `json:"status"`
	CorrectedMarkup    string           `json:"corrected_markup"`
	Detections         *geometry.Result `json:"detections,omitempty"`
	IterationsApplied  int              `json:"iterations_applied"`
	FinalOverlaps      int              `json:"final_overlaps"`
	StopReason         string           `json:"stop_reason"`
	CorrectionsApplied []string         `json:"corrections_applied"`
	Error              string           `json:"error,omitempty"`
}

// CorrectEndpoint handles POST /correct.
type CorrectEndpoint struct{}

func (e *CorrectEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/correct", e.handler
}

func (e *CorrectEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Correct page layout
//	@Description	Run the render/detect/rewrite loop on one page until overlaps are gone
//	@Tags			correction
//	@Accept			json
//	@Produce		json
//	@Param			request	body		CorrectionRequest	true	"Correction request"
//	@Success		200		{object}	CorrectionResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/correct [post]
func (e *CorrectEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req CorrectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Markup == "" {
		writeError(w, http.StatusBadRequest, "markup is required")
		return
	}
	if req.PageID == "" {
		req.PageID = "page_1"
	}

	orchestrator := svcctx.OrchestratorFrom(r.Context())
	cfgMgr := svcctx.ConfigFrom(r.Context())
	if orchestrator == nil || cfgMgr == nil {
		writeError(w, http.StatusServiceUnavailable, "correction services not initialized")
		return
	}
	cfg := cfgMgr.Get()

	opts := correct.Options{
		MaxIterations: cfg.Correction.MaxIterations,
		Viewport: browser.Viewport{
			Width:  cfg.Correction.ViewportWidth,
			Height: cfg.Correction.ViewportHeight,
		},
		RecheckFinal: cfg.Correction.RecheckFinal,
		RequestID:    uuid.NewString(),
	}
	if req.Options != nil {
		if req.Options.MaxIterations > 0 {
			opts.MaxIterations = req.Options.MaxIterations
		}
		if req.Options.ViewportWidth > 0 {
			opts.Viewport.Width = req.Options.ViewportWidth
		}
		if req.Options.ViewportHeight > 0 {
			opts.Viewport.Height = req.Options.ViewportHeight
		}
		if req.Options.RecheckFinal != nil {
			opts.RecheckFinal = *req.Options.RecheckFinal
		}
		opts.PreserveBlocks = req.Options.PreserveBlocks
	}
	if opts.MaxIterations > correct.MaxIterationsLimit {
		writeError(w, http.StatusBadRequest, "max_iterations out of range")
		return
	}

	outcome, err := orchestrator.Correct(r.Context(), req.PageID, req.Markup, opts)
	if err != nil {
		// The outcome still carries the best markup seen
		resp := CorrectionResponse{
			Status: "error",
			Error:  err.Error(),
		}
		if outcome != nil {
			resp.CorrectedMarkup = outcome.FinalMarkup
			resp.Detections = outcome.Detections
			resp.StopReason = string(outcome.StopReason)
		}
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}

	writeJSON(w, http.StatusOK, CorrectionResponse{
		Status:             "success",
		CorrectedMarkup:    outcome.FinalMarkup,
		Detections:         outcome.Detections,
		IterationsApplied:  outcome.IterationsApplied,
		FinalOverlaps:      outcome.FinalOverlaps,
		StopReason:         string(outcome.StopReason),
		CorrectionsApplied: outcome.Corrections,
	})
}

func (e *CorrectEndpoint) Command(getServerURL func() string) *cobra.Command {
	var pageID string
	var maxIterations int
	cmd := &cobra.Command{
		Use:   "correct <markup-file>",
		Short: "Correct overlapping blocks in a page",
		Long: `Correct a page's layout by iteratively rendering it, detecting
overlapping blocks, and asking the LLM to move them.

Reads the page markup from the given file and prints the response.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			markup, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			req := CorrectionRequest{Markup: string(markup), PageID: pageID}
			if maxIterations > 0 {
				req.Options = &CorrectionOptions{MaxIterations: maxIterations}
			}

			client := api.NewClient(getServerURL())
			var resp CorrectionResponse
			if err := client.Post(cmd.Context(), "/correct", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&pageID, "page-id", "page_1", "Page identifier")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "Override max correction iterations")
	return cmd
}
