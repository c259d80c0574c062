// Package pipeline ties generation, correction, and deployment into the full
// site-production flow.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/astrofix/astrofix/internal/browser"
	"github.com/astrofix/astrofix/internal/correct"
	"github.com/astrofix/astrofix/internal/generate"
	"github.com/astrofix/astrofix/internal/site"
)

// DefaultPageWorkers bounds concurrent page corrections. Each in-flight page
// holds a browser session and an LLM request, so the pool stays small.
const DefaultPageWorkers = 2

// Generator produces site pages from a description.
type Generator interface {
	Generate(ctx context.Context, req *generate.Request) (*generate.Result, error)
}

// Corrector runs the correction loop for one page.
type Corrector interface {
	Correct(ctx context.Context, pageID, markup string, opts correct.Options) (*correct.Outcome, error)
}

// Deployer publishes corrected pages.
type Deployer interface {
	Deploy(pages []site.Page, meta site.Metadata) (string, error)
}

// Pipeline runs generate -> correct -> deploy.
type Pipeline struct {
	generator   Generator
	corrector   Corrector
	deployer    Deployer
	pageWorkers int
	logger      *slog.Logger
}

// Config wires a Pipeline.
type Config struct {
	Generator   Generator
	Corrector   Corrector
	Deployer    Deployer
	PageWorkers int
	Logger      *slog.Logger
}

// New creates a Pipeline.
func New(cfg Config) *Pipeline {
	workers := cfg.PageWorkers
	if workers < 1 {
		workers = DefaultPageWorkers
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		generator:   cfg.Generator,
		corrector:   cfg.Corrector,
		deployer:    cfg.Deployer,
		pageWorkers: workers,
		logger:      logger,
	}
}

// Request describes one full pipeline run.
type Request struct {
	Description   string
	Style         string
	NumPages      int
	MaxIterations int
	Viewport      browser.Viewport
	RecheckFinal  bool
	RequestID     string
}

// PageReport summarizes one page's correction.
type PageReport struct {
	PageID             string             `json:"page_id"`
	CorrectionsApplied int                `json:"corrections_applied"`
	FinalOverlaps      int                `json:"final_overlaps"`
	StopReason         correct.StopReason `json:"stop_reason"`
	Error              string             `json:"error,omitempty"`
}

// Result is the outcome of a pipeline run.
type Result struct {
	SiteHash   string       `json:"site_hash"`
	TotalPages int          `json:"total_pages"`
	Pages      []PageReport `json:"pages"`
}

// Run generates a site, corrects every page concurrently, and deploys the
// result. A page whose correction fails is deployed with its best available
// markup; only generation or deployment failures fail the whole run.
func (p *Pipeline) Run(ctx context.Context, req *Request) (*Result, error) {
	genResult, err := p.generator.Generate(ctx, &generate.Request{
		Description: req.Description,
		Style:       req.Style,
		NumPages:    req.NumPages,
		RequestID:   req.RequestID,
	})
	if err != nil {
		return nil, fmt.Errorf("generation: %w", err)
	}
	if len(genResult.Pages) == 0 {
		return nil, fmt.Errorf("generation produced no pages")
	}

	p.logger.Info("site generated",
		"request_id", req.RequestID,
		"pages", len(genResult.Pages),
		"tokens", genResult.Tokens)

	type pageResult struct {
		index  int
		page   site.Page
		report PageReport
	}

	results := make(chan pageResult, len(genResult.Pages))
	sem := make(chan struct{}, p.pageWorkers)

	for i, page := range genResult.Pages {
		sem <- struct{}{} // acquire
		go func(index int, pg generate.Page) {
			defer func() { <-sem }() // release

			report := PageReport{PageID: pg.ID}
			markup := pg.Markup

			outcome, err := p.corrector.Correct(ctx, pg.ID, pg.Markup, correct.Options{
				MaxIterations: req.MaxIterations,
				Viewport:      req.Viewport,
				RecheckFinal:  req.RecheckFinal,
				RequestID:     req.RequestID,
			})
			if outcome != nil {
				markup = outcome.FinalMarkup
				report.CorrectionsApplied = outcome.IterationsApplied
				report.FinalOverlaps = outcome.FinalOverlaps
				report.StopReason = outcome.StopReason
			}
			if err != nil {
				// Per-page failure: keep the generated markup and move on.
				report.StopReason = correct.StopFailed
				report.Error = err.Error()
				p.logger.Warn("page correction failed, deploying uncorrected markup",
					"request_id", req.RequestID,
					"page_id", pg.ID,
					"error", err)
			}

			results <- pageResult{
				index:  index,
				page:   site.Page{ID: pg.ID, Markup: markup},
				report: report,
			}
		}(i, page)
	}

	pages := make([]site.Page, len(genResult.Pages))
	reports := make([]PageReport, len(genResult.Pages))
	for range genResult.Pages {
		r := <-results
		pages[r.index] = r.page
		reports[r.index] = r.report
	}

	hash, err := p.deployer.Deploy(pages, site.Metadata{
		Description: req.Description,
		Style:       req.Style,
	})
	if err != nil {
		return nil, fmt.Errorf("deployment: %w", err)
	}

	return &Result{
		SiteHash:   hash,
		TotalPages: len(pages),
		Pages:      reports,
	}, nil
}
