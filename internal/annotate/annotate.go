package annotate

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"floodwatch/internal/model"
)

const (
	// overlayAlpha is the opacity of the filled polygon masks.
	overlayAlpha = 0.4

	fontScale     = 0.6
	fontThickness = 2
)

var textColor = color.RGBA{R: 0, G: 0, B: 0}

// Render draws the detections onto a copy of frame and derives the
// severity state from the detected labels. The input frame is never
// modified and the caller owns the returned Mat. When hasResult is false
// the copy is returned unannotated and the severity reflects an empty
// label set.
func Render(frame gocv.Mat, result model.Result, hasResult bool) (gocv.Mat, model.SeverityState, error) {
	annotated := frame.Clone()

	if !hasResult || len(result.Predictions) == 0 {
		state := model.SeverityState{Level: WaterLevel(nil), Labels: []string{}}
		return annotated, state, nil
	}

	// Filled masks go on the overlay, outlines and text on the base
	// frame, then the two are blended.
	overlay := annotated.Clone()
	defer overlay.Close()

	labels := make([]string, 0, len(result.Predictions))
	for _, pred := range result.Predictions {
		labels = append(labels, pred.Class)

		var err error
		if pred.HasPolygon() {
			err = drawPolygon(&annotated, &overlay, pred)
		} else {
			err = drawBox(&annotated, pred)
		}
		if err != nil {
			annotated.Close()
			return gocv.Mat{}, model.SeverityState{}, err
		}
	}

	blended := gocv.NewMat()
	if err := gocv.AddWeighted(overlay, overlayAlpha, annotated, 1-overlayAlpha, 0, &blended); err != nil {
		blended.Close()
		annotated.Close()
		return gocv.Mat{}, model.SeverityState{}, fmt.Errorf("failed to blend overlay: %v", err)
	}
	annotated.Close()

	state := model.SeverityState{Level: WaterLevel(labels), Labels: labels}
	return blended, state, nil
}

// drawPolygon fills the prediction polygon on the overlay, outlines it on
// the frame and writes the label at the polygon centroid.
func drawPolygon(frame, overlay *gocv.Mat, pred model.Prediction) error {
	c := LabelColor(pred.Class)

	points := make([]image.Point, 0, len(pred.Points))
	for _, p := range pred.Points {
		points = append(points, image.Pt(int(p.X), int(p.Y)))
	}
	pts := gocv.NewPointsVectorFromPoints([][]image.Point{points})
	defer pts.Close()

	if err := gocv.FillPoly(overlay, pts, c); err != nil {
		return fmt.Errorf("failed to fill polygon: %v", err)
	}
	if err := gocv.Polylines(frame, pts, true, c, 2); err != nil {
		return fmt.Errorf("failed to outline polygon: %v", err)
	}

	cx, cy := polygonCentroid(pred)
	text := labelText(pred)
	size := gocv.GetTextSize(text, gocv.FontHersheySimplex, fontScale, fontThickness)

	labelX := cx - size.X/2
	labelY := cy - size.Y/2

	bg := image.Rect(labelX-5, labelY-size.Y-5, labelX+size.X+5, labelY+5)
	if err := gocv.Rectangle(frame, bg, c, -1); err != nil {
		return fmt.Errorf("failed to draw label background: %v", err)
	}
	if err := gocv.PutText(frame, text, image.Pt(labelX, labelY), gocv.FontHersheySimplex, fontScale, textColor, fontThickness); err != nil {
		return fmt.Errorf("failed to draw label: %v", err)
	}
	return nil
}

// drawBox outlines the prediction box and writes the label just above its
// top edge.
func drawBox(frame *gocv.Mat, pred model.Prediction) error {
	c := LabelColor(pred.Class)

	x1 := int(pred.X - pred.Width/2)
	y1 := int(pred.Y - pred.Height/2)
	x2 := int(pred.X + pred.Width/2)
	y2 := int(pred.Y + pred.Height/2)

	if err := gocv.Rectangle(frame, image.Rect(x1, y1, x2, y2), c, 2); err != nil {
		return fmt.Errorf("failed to draw box: %v", err)
	}

	text := labelText(pred)
	size := gocv.GetTextSize(text, gocv.FontHersheySimplex, fontScale, fontThickness)

	bg := image.Rect(x1, y1-size.Y-10, x1+size.X+10, y1)
	if err := gocv.Rectangle(frame, bg, c, -1); err != nil {
		return fmt.Errorf("failed to draw label background: %v", err)
	}
	if err := gocv.PutText(frame, text, image.Pt(x1+5, y1-5), gocv.FontHersheySimplex, fontScale, textColor, fontThickness); err != nil {
		return fmt.Errorf("failed to draw label: %v", err)
	}
	return nil
}

func labelText(pred model.Prediction) string {
	return fmt.Sprintf("%s %.0f%%", pred.Class, pred.Confidence*100)
}

// polygonCentroid returns the area centroid of the prediction polygon,
// falling back to the prediction center when the polygon is degenerate.
func polygonCentroid(pred model.Prediction) (int, int) {
	pts := pred.Points
	n := len(pts)

	var area, cx, cy float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		cross := pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
		area += cross
		cx += (pts[i].X + pts[j].X) * cross
		cy += (pts[i].Y + pts[j].Y) * cross
	}

	if area == 0 {
		return int(pred.X), int(pred.Y)
	}
	area /= 2
	return int(cx / (6 * area)), int(cy / (6 * area))
}
