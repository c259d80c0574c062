package geometry

import (
	"encoding/json"
	"fmt"
)

// wireObject is the JSON shape of one detected object:
// bbox as [x1,y1,x2,y2] with derived center and size arrays.
type wireObject struct {
	ID         int        `json:"id"`
	Score      float64    `json:"score"`
	BBox       [4]float64 `json:"bbox"`
	BBoxCenter [2]float64 `json:"bbox_center"`
	BBoxSize   [2]float64 `json:"bbox_size"`
	MaskArea   int        `json:"mask_area,omitempty"`
}

// wireResult is the JSON shape of a full detection pass.
type wireResult struct {
	TotalObjects   int           `json:"total_objects"`
	Overlaps       int           `json:"overlaps"`
	Objects        []wireObject  `json:"objects"`
	OverlapDetails []OverlapPair `json:"overlap_details"`
	ImageSize      [2]int        `json:"image_size"`
}

// MarshalJSON encodes the result in the detection wire format.
func (r Result) MarshalJSON() ([]byte, error) {
	w := wireResult{
		TotalObjects:   len(r.Objects),
		Overlaps:       len(r.Overlaps),
		Objects:        make([]wireObject, 0, len(r.Objects)),
		OverlapDetails: r.Overlaps,
		ImageSize:      [2]int{r.ImageWidth, r.ImageHeight},
	}
	if w.OverlapDetails == nil {
		w.OverlapDetails = []OverlapPair{}
	}
	for _, obj := range r.Objects {
		cx, cy := obj.Box.Center()
		w.Objects = append(w.Objects, wireObject{
			ID:         obj.ID,
			Score:      obj.Score,
			BBox:       [4]float64{obj.Box.X1, obj.Box.Y1, obj.Box.X2, obj.Box.Y2},
			BBoxCenter: [2]float64{cx, cy},
			BBoxSize:   [2]float64{obj.Box.Width(), obj.Box.Height()},
			MaskArea:   obj.MaskArea,
		})
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a result from the detection wire format.
// The overlap count is taken from the overlap_details sequence itself, so the
// total-overlap invariant holds by construction.
func (r *Result) UnmarshalJSON(data []byte) error {
	var w wireResult
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	r.ImageWidth = w.ImageSize[0]
	r.ImageHeight = w.ImageSize[1]
	r.Overlaps = w.OverlapDetails
	r.Objects = make([]Object, 0, len(w.Objects))
	for _, obj := range w.Objects {
		box := Box{X1: obj.BBox[0], Y1: obj.BBox[1], X2: obj.BBox[2], Y2: obj.BBox[3]}
		if box.X2 < box.X1 || box.Y2 < box.Y1 {
			return fmt.Errorf("object %d has inverted bbox %v", obj.ID, obj.BBox)
		}
		r.Objects = append(r.Objects, Object{
			ID:       obj.ID,
			Score:    obj.Score,
			Box:      box,
			MaskArea: obj.MaskArea,
		})
	}
	return nil
}
