package annotate

import (
	"image/color"
	"strings"
)

// Tier keywords ordered bottom-up: the green marker is the first to
// disappear as water rises, red the last.
var tiers = []string{"green", "yellow", "orange", "red"}

var tierColors = map[string]color.RGBA{
	"green":  {R: 0, G: 255, B: 0},
	"yellow": {R: 255, G: 255, B: 0},
	"orange": {R: 255, G: 165, B: 0},
	"red":    {R: 255, G: 0, B: 0},
}

var defaultColor = color.RGBA{R: 0, G: 100, B: 255}

// LabelColor returns the display color for a label, matched
// case-insensitively against the tier keywords in fixed order.
func LabelColor(label string) color.RGBA {
	lower := strings.ToLower(label)
	for _, tier := range tiers {
		if strings.Contains(lower, tier) {
			return tierColors[tier]
		}
	}
	return defaultColor
}

// WaterLevel derives the severity percentage from the detected labels.
// The rule is absence-driven: a tier keyword missing from every label
// raises the level, and a higher tier only counts once every lower tier
// is missing too. An empty label set therefore yields 100.
func WaterLevel(labels []string) int {
	visible := make(map[string]bool, len(tiers))
	for _, label := range labels {
		lower := strings.ToLower(label)
		for _, tier := range tiers {
			if strings.Contains(lower, tier) {
				visible[tier] = true
			}
		}
	}

	level := 0
	if !visible["green"] {
		level = 25
	}
	if !visible["yellow"] && !visible["green"] {
		level = 50
	}
	if !visible["orange"] && !visible["yellow"] && !visible["green"] {
		level = 75
	}
	if !visible["red"] && !visible["orange"] && !visible["yellow"] && !visible["green"] {
		level = 100
	}
	return level
}
