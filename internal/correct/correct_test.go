package correct

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/astrofix/astrofix/internal/browser"
	"github.com/astrofix/astrofix/internal/geometry"
	"github.com/astrofix/astrofix/internal/rewrite"
)

// fakeRenderer returns a constant image or an error, counting calls.
type fakeRenderer struct {
	calls int
	err   error
}

func (f *fakeRenderer) Render(ctx context.Context, markup string, vp browser.Viewport) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []byte("png:" + markup), nil
}

// fakeDetector returns scripted overlap counts per call.
type fakeDetector struct {
	calls    int
	overlaps []int // overlap count per call; last value repeats
	err      error
}

func (f *fakeDetector) Detect(ctx context.Context, image []byte) (*geometry.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	idx := f.calls - 1
	if idx >= len(f.overlaps) {
		idx = len(f.overlaps) - 1
	}
	n := f.overlaps[idx]

	result := &geometry.Result{ImageWidth: 390, ImageHeight: 844}
	for i := 0; i < n+1; i++ {
		result.Objects = append(result.Objects, geometry.Object{ID: i, Score: 0.9})
	}
	for i := 0; i < n; i++ {
		result.Overlaps = append(result.Overlaps, geometry.OverlapPair{Instance1: i, Instance2: i + 1, IoU: 0.2})
	}
	return result, nil
}

// fakeRewriter appends a marker to the markup on each call.
type fakeRewriter struct {
	calls int
	err   error
}

func (f *fakeRewriter) Rewrite(ctx context.Context, req *rewrite.Request) (*rewrite.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &rewrite.Result{
		Markup:      fmt.Sprintf("%s<!--v%d-->", req.Markup, f.calls),
		Corrections: []string{"Updated block coordinates"},
	}, nil
}

func TestCorrectAlreadyConverged(t *testing.T) {
	r := &fakeRenderer{}
	d := &fakeDetector{overlaps: []int{0}}
	w := &fakeRewriter{}

	o := NewOrchestrator(r, d, w, nil)
	outcome, err := o.Correct(context.Background(), "page_1", "<html></html>", Options{MaxIterations: 3})
	if err != nil {
		t.Fatalf("Correct failed: %v", err)
	}

	if outcome.StopReason != StopConverged {
		t.Errorf("expected converged, got %s", outcome.StopReason)
	}
	if outcome.IterationsApplied != 0 {
		t.Errorf("expected 0 iterations, got %d", outcome.IterationsApplied)
	}
	if w.calls != 0 {
		t.Errorf("rewriter should not be called on a clean page, got %d calls", w.calls)
	}
	if outcome.FinalMarkup != "<html></html>" {
		t.Error("markup must be unchanged for a clean page")
	}
}

func TestCorrectConvergesAfterRewrites(t *testing.T) {
	r := &fakeRenderer{}
	d := &fakeDetector{overlaps: []int{2, 1, 0}}
	w := &fakeRewriter{}

	o := NewOrchestrator(r, d, w, nil)
	outcome, err := o.Correct(context.Background(), "page_1", "<html></html>", Options{MaxIterations: 5})
	if err != nil {
		t.Fatalf("Correct failed: %v", err)
	}

	if outcome.StopReason != StopConverged {
		t.Errorf("expected converged, got %s", outcome.StopReason)
	}
	if outcome.IterationsApplied != 2 {
		t.Errorf("expected 2 iterations, got %d", outcome.IterationsApplied)
	}
	if outcome.FinalOverlaps != 0 {
		t.Errorf("expected 0 final overlaps, got %d", outcome.FinalOverlaps)
	}
	if outcome.FinalMarkup != "<html></html><!--v1--><!--v2-->" {
		t.Errorf("unexpected final markup: %q", outcome.FinalMarkup)
	}
	if outcome.Detections == nil {
		t.Fatal("expected detections from the last completed check")
	}
	if outcome.Detections.TotalOverlaps() != 0 {
		t.Errorf("detections should match the converged check, got %d overlaps",
			outcome.Detections.TotalOverlaps())
	}
	if len(outcome.Corrections) != 2 {
		t.Errorf("expected 2 corrections, got %d", len(outcome.Corrections))
	}
}

func TestCorrectBudgetExhausted(t *testing.T) {
	r := &fakeRenderer{}
	d := &fakeDetector{overlaps: []int{3}}
	w := &fakeRewriter{}

	o := NewOrchestrator(r, d, w, nil)
	outcome, err := o.Correct(context.Background(), "page_1", "<html></html>", Options{MaxIterations: 3})
	if err != nil {
		t.Fatalf("Correct failed: %v", err)
	}

	if outcome.StopReason != StopBudgetExhausted {
		t.Errorf("expected budget_exhausted, got %s", outcome.StopReason)
	}
	if outcome.IterationsApplied != 3 {
		t.Errorf("expected exactly 3 rewrites, got %d", outcome.IterationsApplied)
	}
	// One render+detect per iteration, no final recheck
	if r.calls != 3 || d.calls != 3 {
		t.Errorf("expected 3 checks, got %d renders / %d detects", r.calls, d.calls)
	}
	// Overlap count reflects the markup before the last rewrite
	if outcome.FinalOverlaps != 3 {
		t.Errorf("expected 3 final overlaps, got %d", outcome.FinalOverlaps)
	}
}

func TestCorrectRecheckFinal(t *testing.T) {
	r := &fakeRenderer{}
	// Overlaps at every in-budget check, clean at the extra final check
	d := &fakeDetector{overlaps: []int{2, 2, 0}}
	w := &fakeRewriter{}

	o := NewOrchestrator(r, d, w, nil)
	outcome, err := o.Correct(context.Background(), "page_1", "<html></html>", Options{
		MaxIterations: 2,
		RecheckFinal:  true,
	})
	if err != nil {
		t.Fatalf("Correct failed: %v", err)
	}

	if outcome.StopReason != StopConverged {
		t.Errorf("expected converged after recheck, got %s", outcome.StopReason)
	}
	if outcome.FinalOverlaps != 0 {
		t.Errorf("expected 0 final overlaps after recheck, got %d", outcome.FinalOverlaps)
	}
	// Two in-budget checks plus the final recheck
	if d.calls != 3 {
		t.Errorf("expected 3 detects, got %d", d.calls)
	}
}

func TestCorrectRewriteFailureKeepsLastGood(t *testing.T) {
	r := &fakeRenderer{}
	d := &fakeDetector{overlaps: []int{2}}
	w := &fakeRewriter{err: errors.New("provider down")}

	o := NewOrchestrator(r, d, w, nil)
	outcome, err := o.Correct(context.Background(), "page_1", "<html></html>", Options{MaxIterations: 3})
	if err != nil {
		t.Fatalf("Correct should not error on rewrite failure: %v", err)
	}

	if outcome.StopReason != StopRewriteFailed {
		t.Errorf("expected rewrite_failed, got %s", outcome.StopReason)
	}
	if outcome.FinalMarkup != "<html></html>" {
		t.Error("expected original markup kept after rewrite failure")
	}
	if outcome.IterationsApplied != 0 {
		t.Errorf("expected 0 iterations, got %d", outcome.IterationsApplied)
	}
}

func TestCorrectFirstRenderFailure(t *testing.T) {
	r := &fakeRenderer{err: errors.New("browser down")}
	d := &fakeDetector{overlaps: []int{0}}
	w := &fakeRewriter{}

	o := NewOrchestrator(r, d, w, nil)
	outcome, err := o.Correct(context.Background(), "page_1", "<html></html>", Options{MaxIterations: 3})
	if err == nil {
		t.Fatal("expected error when the first render fails")
	}
	if outcome == nil || outcome.StopReason != StopFailed {
		t.Errorf("expected failed outcome, got %+v", outcome)
	}
	if outcome.FinalMarkup != "<html></html>" {
		t.Error("expected input markup preserved")
	}
}

func TestCorrectLaterDetectFailureKeepsProgress(t *testing.T) {
	r := &fakeRenderer{}
	d := &fakeDetector{overlaps: []int{2}}
	w := &fakeRewriter{}

	// Fail detection on the second check
	o := NewOrchestrator(r, &failAfterDetector{inner: d, failAt: 2}, w, nil)
	outcome, err := o.Correct(context.Background(), "page_1", "<html></html>", Options{MaxIterations: 3})
	if err != nil {
		t.Fatalf("expected no error when progress was made: %v", err)
	}

	if outcome.StopReason != StopFailed {
		t.Errorf("expected failed, got %s", outcome.StopReason)
	}
	if outcome.IterationsApplied != 1 {
		t.Errorf("expected 1 iteration kept, got %d", outcome.IterationsApplied)
	}
	if outcome.FinalMarkup != "<html></html><!--v1-->" {
		t.Errorf("expected rewritten markup kept, got %q", outcome.FinalMarkup)
	}
}

// failAfterDetector delegates until the Nth call, then errors.
type failAfterDetector struct {
	inner  *fakeDetector
	calls  int
	failAt int
}

func (f *failAfterDetector) Detect(ctx context.Context, image []byte) (*geometry.Result, error) {
	f.calls++
	if f.calls >= f.failAt {
		return nil, errors.New("detector down")
	}
	return f.inner.Detect(ctx, image)
}

func TestCorrectEmptyMarkup(t *testing.T) {
	o := NewOrchestrator(&fakeRenderer{}, &fakeDetector{overlaps: []int{0}}, &fakeRewriter{}, nil)
	if _, err := o.Correct(context.Background(), "page_1", "", Options{MaxIterations: 1}); err == nil {
		t.Fatal("expected error for empty markup")
	}
}
