package geometry

import (
	"encoding/json"
	"math"
	"testing"
)

func TestIoU_Symmetry(t *testing.T) {
	cases := []struct {
		name string
		a, b Box
	}{
		{"partial_overlap", Box{0, 0, 10, 10}, Box{5, 5, 15, 15}},
		{"contained", Box{0, 0, 20, 20}, Box{5, 5, 10, 10}},
		{"disjoint", Box{0, 0, 5, 5}, Box{10, 10, 20, 20}},
		{"touching_edges", Box{0, 0, 10, 10}, Box{10, 0, 20, 10}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ab := IoU(tc.a, tc.b)
			ba := IoU(tc.b, tc.a)
			if ab != ba {
				t.Errorf("IoU(a,b) = %v, IoU(b,a) = %v, want equal", ab, ba)
			}
			if ab < 0 || ab > 1 {
				t.Errorf("IoU = %v, want within [0,1]", ab)
			}
		})
	}
}

func TestIoU_IdenticalBoxes(t *testing.T) {
	b := Box{2, 3, 12, 17}
	if got := IoU(b, b); got != 1.0 {
		t.Errorf("IoU of identical boxes = %v, want 1.0", got)
	}
}

func TestIoU_DisjointBoxes(t *testing.T) {
	if got := IoU(Box{0, 0, 5, 5}, Box{6, 6, 10, 10}); got != 0.0 {
		t.Errorf("IoU of disjoint boxes = %v, want 0.0", got)
	}
}

func TestIoU_TouchingBoxesDoNotOverlap(t *testing.T) {
	// Shared edge has zero overlap width.
	if got := IoU(Box{0, 0, 10, 10}, Box{10, 0, 20, 10}); got != 0.0 {
		t.Errorf("IoU of edge-touching boxes = %v, want 0.0", got)
	}
}

func TestIoU_DegenerateBoxes(t *testing.T) {
	zeroWidth := Box{5, 0, 5, 10}
	if got := IoU(zeroWidth, Box{0, 0, 10, 10}); got != 0.0 {
		t.Errorf("IoU with zero-width box = %v, want 0.0", got)
	}

	zeroArea := Box{0, 0, 0, 0}
	if got := IoU(zeroArea, zeroArea); got != 0.0 {
		t.Errorf("IoU of two zero-area boxes = %v, want 0.0", got)
	}
}

func TestIoU_WorkedExample(t *testing.T) {
	// Boxes (0,0,10,10) and (5,5,15,15): intersection 25, union 175.
	got := IoU(Box{0, 0, 10, 10}, Box{5, 5, 15, 15})
	want := 25.0 / 175.0
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("IoU = %v, want %v", got, want)
	}
}

func TestFindOverlaps_EmptyAndSingle(t *testing.T) {
	if got := FindOverlaps(nil, 0.1); len(got) != 0 {
		t.Errorf("FindOverlaps(nil) = %v, want empty", got)
	}
	one := []Object{{ID: 0, Box: Box{0, 0, 10, 10}}}
	if got := FindOverlaps(one, 0.1); len(got) != 0 {
		t.Errorf("FindOverlaps(single) = %v, want empty", got)
	}
}

func TestFindOverlaps_WorkedExample(t *testing.T) {
	objects := []Object{
		{ID: 0, Score: 0.9, Box: Box{0, 0, 10, 10}},
		{ID: 1, Score: 0.8, Box: Box{5, 5, 15, 15}},
	}

	pairs := FindOverlaps(objects, 0.1)
	if len(pairs) != 1 {
		t.Fatalf("len(pairs) = %d, want 1", len(pairs))
	}

	p := pairs[0]
	if p.Instance1 != 0 || p.Instance2 != 1 {
		t.Errorf("pair = (%d,%d), want (0,1)", p.Instance1, p.Instance2)
	}
	if math.Abs(p.IoU-25.0/175.0) > 1e-9 {
		t.Errorf("pair IoU = %v, want %v", p.IoU, 25.0/175.0)
	}
	if p.Score1 != 0.9 || p.Score2 != 0.8 {
		t.Errorf("pair scores = (%v,%v), want (0.9,0.8)", p.Score1, p.Score2)
	}
}

func TestFindOverlaps_Deterministic(t *testing.T) {
	objects := []Object{
		{ID: 0, Box: Box{0, 0, 10, 10}},
		{ID: 1, Box: Box{2, 2, 12, 12}},
		{ID: 2, Box: Box{4, 4, 14, 14}},
		{ID: 3, Box: Box{100, 100, 110, 110}},
	}

	first := FindOverlaps(objects, 0.1)
	for run := 0; run < 5; run++ {
		again := FindOverlaps(objects, 0.1)
		if len(again) != len(first) {
			t.Fatalf("run %d: len = %d, want %d", run, len(again), len(first))
		}
		for i := range again {
			if again[i] != first[i] {
				t.Errorf("run %d: pair %d = %+v, want %+v", run, i, again[i], first[i])
			}
		}
	}

	// Pairs must come back in ascending (i, j) order.
	for i := 1; i < len(first); i++ {
		prev, cur := first[i-1], first[i]
		if cur.Instance1 < prev.Instance1 ||
			(cur.Instance1 == prev.Instance1 && cur.Instance2 <= prev.Instance2) {
			t.Errorf("pairs out of order: %+v before %+v", prev, cur)
		}
	}
}

func TestFindOverlaps_ThresholdMonotonicity(t *testing.T) {
	objects := []Object{
		{ID: 0, Box: Box{0, 0, 10, 10}},
		{ID: 1, Box: Box{1, 1, 11, 11}},
		{ID: 2, Box: Box{8, 8, 18, 18}},
		{ID: 3, Box: Box{9, 9, 19, 19}},
	}

	prev := len(FindOverlaps(objects, 0.0))
	for _, threshold := range []float64{0.05, 0.1, 0.3, 0.5, 0.9, 1.0} {
		count := len(FindOverlaps(objects, threshold))
		if count > prev {
			t.Errorf("threshold %v: count %d > count %d at lower threshold", threshold, count, prev)
		}
		prev = count
	}
}

func TestResult_WireRoundTrip(t *testing.T) {
	r := Result{
		ImageWidth:  390,
		ImageHeight: 844,
		Objects: []Object{
			{ID: 0, Score: 0.95, Box: Box{10, 20, 110, 220}, MaskArea: 20000},
			{ID: 1, Score: 0.82, Box: Box{50, 100, 150, 300}},
		},
	}
	r.Overlaps = FindOverlaps(r.Objects, 0.1)

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var wire map[string]any
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatalf("unmarshal to map: %v", err)
	}
	if wire["total_objects"].(float64) != 2 {
		t.Errorf("total_objects = %v, want 2", wire["total_objects"])
	}
	if int(wire["overlaps"].(float64)) != len(r.Overlaps) {
		t.Errorf("overlaps = %v, want %d", wire["overlaps"], len(r.Overlaps))
	}

	var back Result
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.ImageWidth != 390 || back.ImageHeight != 844 {
		t.Errorf("image size = %dx%d, want 390x844", back.ImageWidth, back.ImageHeight)
	}
	if back.TotalObjects() != 2 {
		t.Errorf("TotalObjects = %d, want 2", back.TotalObjects())
	}
	if back.Objects[0].Box != r.Objects[0].Box {
		t.Errorf("box = %+v, want %+v", back.Objects[0].Box, r.Objects[0].Box)
	}
	if back.TotalOverlaps() != len(r.Overlaps) {
		t.Errorf("TotalOverlaps = %d, want %d", back.TotalOverlaps(), len(r.Overlaps))
	}
}

func TestResult_UnmarshalRejectsInvertedBox(t *testing.T) {
	data := []byte(`{"total_objects":1,"overlaps":0,"objects":[{"id":0,"score":0.5,"bbox":[10,10,5,20],"bbox_center":[7.5,15],"bbox_size":[-5,10]}],"overlap_details":[],"image_size":[390,844]}`)
	var r Result
	if err := json.Unmarshal(data, &r); err == nil {
		t.Error("expected error for inverted bbox, got nil")
	}
}
