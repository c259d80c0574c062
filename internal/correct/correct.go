// Package correct runs the iterative layout-correction loop: render the page,
// detect overlapping blocks, ask the LLM to move them, and repeat until the
// page converges or the iteration budget runs out.
package correct

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/astrofix/astrofix/internal/browser"
	"github.com/astrofix/astrofix/internal/geometry"
	"github.com/astrofix/astrofix/internal/rewrite"
)

// StopReason explains why the correction loop ended.
type StopReason string

const (
	// StopConverged means the page had no overlaps at the last check.
	StopConverged StopReason = "converged"
	// StopBudgetExhausted means the iteration budget ran out with overlaps
	// still present at the last check.
	StopBudgetExhausted StopReason = "budget_exhausted"
	// StopRewriteFailed means the LLM rewrite failed and the loop kept the
	// last good markup.
	StopRewriteFailed StopReason = "rewrite_failed"
	// StopFailed means rendering or detection failed.
	StopFailed StopReason = "failed"
)

// MaxIterationsLimit is the upper bound on the per-page iteration budget.
const MaxIterationsLimit = 10

// Renderer rasterizes markup to an image.
type Renderer interface {
	Render(ctx context.Context, markup string, vp browser.Viewport) ([]byte, error)
}

// Detector finds blocks and overlaps in a rendered image.
type Detector interface {
	Detect(ctx context.Context, image []byte) (*geometry.Result, error)
}

// Rewriter produces corrected markup from detections.
type Rewriter interface {
	Rewrite(ctx context.Context, req *rewrite.Request) (*rewrite.Result, error)
}

// Options tunes one correction run.
type Options struct {
	// MaxIterations caps rewrite attempts. Must be at least 1.
	MaxIterations int
	// Viewport is the render size. Zero falls back to the renderer default.
	Viewport browser.Viewport
	// RecheckFinal re-renders and re-detects once more when the budget runs
	// out, so FinalOverlaps reflects the last rewrite.
	RecheckFinal bool
	// PreserveBlocks forbids the rewriter from merging or removing blocks.
	// Nil means preserve.
	PreserveBlocks *bool
	// RequestID propagates the caller's request ID.
	RequestID string
}

// Outcome is the result of a correction run.
type Outcome struct {
	// FinalMarkup is the best markup produced. Always the last markup that
	// rendered and detected successfully, or the input when nothing did.
	FinalMarkup string
	// IterationsApplied counts successful rewrites.
	IterationsApplied int
	// FinalOverlaps is the overlap count at the last completed detection.
	FinalOverlaps int
	// Detections is the full result of the last completed detection, nil
	// when no detection pass finished.
	Detections *geometry.Result
	// StopReason explains why the loop ended.
	StopReason StopReason
	// Corrections aggregates the rewrite descriptions across iterations.
	Corrections []string
}

// Orchestrator drives the correction loop for one page at a time.
type Orchestrator struct {
	renderer Renderer
	detector Detector
	rewriter Rewriter
	logger   *slog.Logger
}

// NewOrchestrator wires the three collaborators together.
func NewOrchestrator(r Renderer, d Detector, w Rewriter, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{renderer: r, detector: d, rewriter: w, logger: logger}
}

// Correct runs the loop for one page. The returned Outcome is non-nil even on
// failure so callers always have the best markup seen so far; the error is
// non-nil only when the first render or detection fails outright.
func (o *Orchestrator) Correct(ctx context.Context, pageID, markup string, opts Options) (*Outcome, error) {
	if markup == "" {
		return nil, fmt.Errorf("empty markup for page %s", pageID)
	}
	if opts.MaxIterations < 1 {
		opts.MaxIterations = 1
	}

	preserveBlocks := true
	if opts.PreserveBlocks != nil {
		preserveBlocks = *opts.PreserveBlocks
	}

	outcome := &Outcome{
		FinalMarkup: markup,
		StopReason:  StopBudgetExhausted,
	}

	log := o.logger.With("page_id", pageID, "request_id", opts.RequestID)

	for iteration := 0; iteration < opts.MaxIterations; iteration++ {
		detections, err := o.check(ctx, outcome.FinalMarkup, opts.Viewport)
		if err != nil {
			log.Error("layout check failed", "iteration", iteration, "error", err)
			outcome.StopReason = StopFailed
			if iteration == 0 && outcome.IterationsApplied == 0 {
				return outcome, err
			}
			// Later failures keep the last good markup.
			return outcome, nil
		}

		outcome.FinalOverlaps = detections.TotalOverlaps()
		outcome.Detections = detections
		log.Info("layout checked",
			"iteration", iteration,
			"objects", detections.TotalObjects(),
			"overlaps", outcome.FinalOverlaps)

		if outcome.FinalOverlaps == 0 {
			outcome.StopReason = StopConverged
			return outcome, nil
		}

		rewriteResult, err := o.rewriter.Rewrite(ctx, &rewrite.Request{
			Markup:         outcome.FinalMarkup,
			Detections:     detections,
			PageID:         pageID,
			PreserveBlocks: preserveBlocks,
			RequestID:      opts.RequestID,
		})
		if err != nil {
			log.Warn("rewrite failed, keeping last good markup", "iteration", iteration, "error", err)
			outcome.StopReason = StopRewriteFailed
			return outcome, nil
		}

		outcome.FinalMarkup = rewriteResult.Markup
		outcome.IterationsApplied++
		outcome.Corrections = append(outcome.Corrections, rewriteResult.Corrections...)
	}

	// Budget exhausted. FinalOverlaps still describes the markup before the
	// last rewrite unless the caller pays for one more check.
	if opts.RecheckFinal {
		detections, err := o.check(ctx, outcome.FinalMarkup, opts.Viewport)
		if err != nil {
			log.Warn("final recheck failed", "error", err)
		} else {
			outcome.FinalOverlaps = detections.TotalOverlaps()
			outcome.Detections = detections
			if outcome.FinalOverlaps == 0 {
				outcome.StopReason = StopConverged
				return outcome, nil
			}
		}
	}

	outcome.StopReason = StopBudgetExhausted
	return outcome, nil
}

// check renders the markup and runs detection on the screenshot.
func (o *Orchestrator) check(ctx context.Context, markup string, vp browser.Viewport) (*geometry.Result, error) {
	image, err := o.renderer.Render(ctx, markup, vp)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	detections, err := o.detector.Detect(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	return detections, nil
}
