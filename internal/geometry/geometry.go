// Package geometry provides bounding-box intersection analysis for detected
// page elements. It is a pure function library with no external dependencies;
// everything downstream (detector, orchestrator, endpoints) builds on the
// types and operations here.
package geometry

// Box is an axis-aligned bounding box in pixel coordinates.
// Invariant: X2 >= X1 and Y2 >= Y1.
type Box struct {
	X1, Y1, X2, Y2 float64
}

// Width returns the box width in pixels.
func (b Box) Width() float64 { return b.X2 - b.X1 }

// Height returns the box height in pixels.
func (b Box) Height() float64 { return b.Y2 - b.Y1 }

// Area returns the box area in square pixels.
func (b Box) Area() float64 { return b.Width() * b.Height() }

// Center returns the box center point.
func (b Box) Center() (x, y float64) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

// Object is one detected visual element from a detection pass.
// ID is the element's sequence position within the pass and is unique
// within a single Result.
type Object struct {
	ID       int     `json:"id"`
	Score    float64 `json:"score"`
	Box      Box     `json:"-"`
	MaskArea int     `json:"mask_area,omitempty"`
}

// OverlapPair records two objects whose boxes intersect at or above the
// configured IoU threshold. Instance1 < Instance2 always holds, so a pair
// appears at most once per detection pass.
type OverlapPair struct {
	Instance1 int     `json:"instance1"`
	Instance2 int     `json:"instance2"`
	IoU       float64 `json:"iou"`
	Score1    float64 `json:"score1"`
	Score2    float64 `json:"score2"`
}

// Result is the full output of one detection pass.
type Result struct {
	ImageWidth  int
	ImageHeight int
	Objects     []Object
	Overlaps    []OverlapPair
}

// TotalObjects returns the number of detected objects.
func (r *Result) TotalObjects() int { return len(r.Objects) }

// TotalOverlaps returns the number of overlap pairs.
func (r *Result) TotalOverlaps() int { return len(r.Overlaps) }

// IoU computes intersection-over-union of two boxes.
// Returns 0.0 when the boxes do not intersect (non-positive overlap width or
// height) or when the union area is zero. Commutative by construction.
func IoU(a, b Box) float64 {
	interX1 := max(a.X1, b.X1)
	interY1 := max(a.Y1, b.Y1)
	interX2 := min(a.X2, b.X2)
	interY2 := min(a.Y2, b.Y2)

	if interX2 <= interX1 || interY2 <= interY1 {
		return 0.0
	}

	interArea := (interX2 - interX1) * (interY2 - interY1)
	unionArea := a.Area() + b.Area() - interArea
	if unionArea == 0 {
		return 0.0
	}

	return interArea / unionArea
}

// FindOverlaps enumerates every unordered object pair (i, j), i < j, and
// returns those whose IoU meets the threshold. Pairs are ordered by
// ascending (i, then j) for determinism. Quadratic in object count, which is
// fine at page scale (tens of elements, not thousands).
func FindOverlaps(objects []Object, threshold float64) []OverlapPair {
	if len(objects) < 2 {
		return nil
	}

	var pairs []OverlapPair
	for i := 0; i < len(objects); i++ {
		for j := i + 1; j < len(objects); j++ {
			iou := IoU(objects[i].Box, objects[j].Box)
			if iou >= threshold {
				pairs = append(pairs, OverlapPair{
					Instance1: i,
					Instance2: j,
					IoU:       iou,
					Score1:    objects[i].Score,
					Score2:    objects[j].Score,
				})
			}
		}
	}
	return pairs
}
