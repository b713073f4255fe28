package model

import "time"

// Point is a single polygon vertex in frame coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Prediction is one marker returned by the detection service. Geometry is
// either the center box (X, Y, Width, Height) or, when Points is
// non-empty, the polygon described by Points.
type Prediction struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Points     []Point `json:"points,omitempty"`
}

// HasPolygon reports whether the prediction carries polygon geometry.
func (p Prediction) HasPolygon() bool {
	return len(p.Points) > 0
}

// Result is one completed detection round. Coordinates are always in the
// original frame's coordinate space.
type Result struct {
	Predictions []Prediction `json:"predictions"`
	CapturedAt  time.Time    `json:"-"`
}

// Labels returns the class of every prediction, never nil.
func (r Result) Labels() []string {
	labels := make([]string, 0, len(r.Predictions))
	for _, pred := range r.Predictions {
		labels = append(labels, pred.Class)
	}
	return labels
}

// Clone returns a deep copy so shared readers never alias the slices.
func (r Result) Clone() Result {
	copied := Result{
		Predictions: make([]Prediction, len(r.Predictions)),
		CapturedAt:  r.CapturedAt,
	}
	copy(copied.Predictions, r.Predictions)
	for i, pred := range r.Predictions {
		if len(pred.Points) > 0 {
			points := make([]Point, len(pred.Points))
			copy(points, pred.Points)
			copied.Predictions[i].Points = points
		}
	}
	return copied
}
