package sections

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"strings"

	"mocacore/internal/scoring"
)

// blankThreshold is the mean channel intensity at or above which a canvas
// counts as empty.
const blankThreshold = 250.0

// Drawing is a decoded canvas submission.
type Drawing struct {
	Data      []byte
	Format    string
	Width     int
	Height    int
	Intensity float64
}

// HasContent reports whether anything was drawn.
func (d Drawing) HasContent() bool { return d.Intensity < blankThreshold }

// DecodeDrawing accepts raw base64 or a data URL and decodes the image.
func DecodeDrawing(encoded string) (Drawing, error) {
	payload := strings.TrimSpace(encoded)
	if idx := strings.Index(payload, ","); idx >= 0 {
		payload = payload[idx+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Drawing{}, fmt.Errorf("decode base64: %w", err)
	}
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return Drawing{}, fmt.Errorf("decode image: %w", err)
	}
	bounds := img.Bounds()
	return Drawing{
		Data:      raw,
		Format:    format,
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
		Intensity: meanIntensity(img),
	}, nil
}

// meanIntensity averages the 8-bit red, green and blue channels over every
// pixel.
func meanIntensity(img image.Image) float64 {
	bounds := img.Bounds()
	pixels := bounds.Dx() * bounds.Dy()
	if pixels == 0 {
		return 255
	}
	var sum float64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			sum += float64(r>>8) + float64(g>>8) + float64(b>>8)
		}
	}
	return sum / float64(pixels*3)
}

// CubeCopy awards one point per requested shape when the canvas has content.
// Content detection is coarse, so drawn canvases carry low confidence and go
// to manual review. Undecodable input scores 0 and is always reviewed.
func CubeCopy(encoded string, shapes []string) (Outcome, Drawing) {
	shapeScores := make(map[string]int, len(shapes))
	drawing, err := DecodeDrawing(encoded)
	if err != nil {
		for _, shape := range shapes {
			shapeScores[shape] = 0
		}
		out := newOutcome(scoring.SectionCubeCopy, 0, 0.3, map[string]any{
			"shape_scores":  shapeScores,
			"shapes_tested": shapes,
			"error":         err.Error(),
		})
		out.RequiresManualReview = true
		return out, Drawing{}
	}

	mark, confidence := 0, 0.9
	if drawing.HasContent() {
		mark, confidence = 1, 0.6
	}
	var score float64
	for _, shape := range shapes {
		shapeScores[shape] = mark
		score += float64(mark)
	}
	return newOutcome(scoring.SectionCubeCopy, score, confidence, map[string]any{
		"shape_scores":  shapeScores,
		"shapes_tested": shapes,
		"intensity":     drawing.Intensity,
	}), drawing
}

// ClockDrawing scores contour, numbers and hands. A drawn canvas is assumed
// to satisfy all three at borderline confidence.
func ClockDrawing(encoded, targetTime string) (Outcome, Drawing) {
	criteria := map[string]int{"contour": 0, "numbers": 0, "hands": 0}
	drawing, err := DecodeDrawing(encoded)
	if err != nil {
		out := newOutcome(scoring.SectionClockDrawing, 0, 0.3, map[string]any{
			"scores":      criteria,
			"target_time": targetTime,
			"error":       err.Error(),
		})
		out.RequiresManualReview = true
		return out, Drawing{}
	}

	confidence := 0.9
	if drawing.HasContent() {
		for k := range criteria {
			criteria[k] = 1
		}
		confidence = 0.7
	}
	var score float64
	for _, v := range criteria {
		score += float64(v)
	}
	return newOutcome(scoring.SectionClockDrawing, score, confidence, map[string]any{
		"scores":      criteria,
		"target_time": targetTime,
		"intensity":   drawing.Intensity,
	}), drawing
}
