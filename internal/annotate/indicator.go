package annotate

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

const (
	barWidth  = 40
	barHeight = 200
)

var (
	gaugeBackground = color.RGBA{R: 50, G: 50, B: 50}
	gaugeBorder     = color.RGBA{R: 255, G: 255, B: 255}
)

type gaugeSection struct {
	color  color.RGBA
	letter string
	level  int
}

var gaugeSections = []gaugeSection{
	{tierColors["green"], "G", 25},
	{tierColors["yellow"], "Y", 50},
	{tierColors["orange"], "O", 75},
	{tierColors["red"], "R", 100},
}

// DrawLevelIndicator draws the vertical water-level gauge near the right
// edge of frame. It modifies frame in place and returns the level it
// rendered. Used for the local display only; the API snapshot stays
// clean.
func DrawLevelIndicator(frame *gocv.Mat, labels []string) (int, error) {
	width := frame.Cols()
	height := frame.Rows()

	barX := width - barWidth - 20
	barY := height/2 - barHeight/2

	level := WaterLevel(labels)

	bar := image.Rect(barX, barY, barX+barWidth, barY+barHeight)
	if err := gocv.Rectangle(frame, bar, gaugeBackground, -1); err != nil {
		return level, fmt.Errorf("failed to draw gauge background: %v", err)
	}
	if err := gocv.Rectangle(frame, bar, gaugeBorder, 2); err != nil {
		return level, fmt.Errorf("failed to draw gauge border: %v", err)
	}

	sectionHeight := barHeight / len(gaugeSections)
	for i, section := range gaugeSections {
		sectionY := barY + barHeight - (i+1)*sectionHeight
		rect := image.Rect(barX, sectionY, barX+barWidth, sectionY+sectionHeight)
		if err := gocv.Rectangle(frame, rect, section.color, 1); err != nil {
			return level, fmt.Errorf("failed to draw gauge section: %v", err)
		}
		pt := image.Pt(barX+12, sectionY+sectionHeight/2+5)
		if err := gocv.PutText(frame, section.letter, pt, gocv.FontHersheySimplex, 0.5, section.color, 1); err != nil {
			return level, fmt.Errorf("failed to draw gauge letter: %v", err)
		}
	}

	if level > 0 {
		fillHeight := barHeight * level / 100
		fillY := barY + barHeight - fillHeight

		fillColor := tierColors["green"]
		switch {
		case level >= 100:
			fillColor = tierColors["red"]
		case level >= 75:
			fillColor = tierColors["orange"]
		case level >= 50:
			fillColor = tierColors["yellow"]
		}

		fill := image.Rect(barX+2, fillY, barX+barWidth-2, barY+barHeight-2)
		if err := gocv.Rectangle(frame, fill, fillColor, -1); err != nil {
			return level, fmt.Errorf("failed to draw gauge fill: %v", err)
		}
	}

	percent := fmt.Sprintf("%d%%", level)
	if err := gocv.PutText(frame, percent, image.Pt(barX-5, barY-10), gocv.FontHersheySimplex, 0.7, gaugeBorder, 2); err != nil {
		return level, fmt.Errorf("failed to draw gauge percent: %v", err)
	}
	if err := gocv.PutText(frame, "WATER", image.Pt(barX-10, barY+barHeight+20), gocv.FontHersheySimplex, 0.5, gaugeBorder, 1); err != nil {
		return level, fmt.Errorf("failed to draw gauge caption: %v", err)
	}
	if err := gocv.PutText(frame, "LEVEL", image.Pt(barX-5, barY+barHeight+40), gocv.FontHersheySimplex, 0.5, gaugeBorder, 1); err != nil {
		return level, fmt.Errorf("failed to draw gauge caption: %v", err)
	}

	return level, nil
}
