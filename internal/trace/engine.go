package trace

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/dennwc/gotrace"
)

// Engine abstracts the tracer's calling convention so the orchestrator and
// tests never see the library shape.
type Engine interface {
	// Trace converts a decoded bitmap into SVG markup. The bitmap is
	// expected in the tracer's default black-on-white orientation.
	Trace(img image.Image, p Params) (string, error)
}

// potraceEngine adapts the pure-Go potrace port.
type potraceEngine struct{}

// NewEngine returns the production tracer engine.
func NewEngine() Engine {
	return potraceEngine{}
}

func (potraceEngine) Trace(img image.Image, p Params) (string, error) {
	threshold := uint32(p.Threshold)
	bm := gotrace.NewBitmapFromImage(img, func(_, _ int, cl color.Color) bool {
		r, g, b, _ := cl.RGBA()
		lum := (299*(r>>8) + 587*(g>>8) + 114*(b>>8)) / 1000
		return lum <= threshold
	})

	params := gotrace.Defaults
	params.TurdSize = p.TurdSize
	params.TurnPolicy = mapTurnPolicy(p.TurnPolicy)
	params.OptiCurve = true
	params.OptTolerance = p.OptTolerance

	paths, err := gotrace.Trace(bm, &params)
	if err != nil {
		return "", fmt.Errorf("trace bitmap: %w", err)
	}

	var buf bytes.Buffer
	if err := gotrace.WriteSvg(&buf, img.Bounds(), paths, "#000000"); err != nil {
		return "", fmt.Errorf("write svg: %w", err)
	}
	return buf.String(), nil
}

func mapTurnPolicy(tp TurnPolicy) gotrace.TurnPolicy {
	switch tp {
	case TurnBlack:
		return gotrace.TurnBlack
	case TurnWhite:
		return gotrace.TurnWhite
	case TurnLeft:
		return gotrace.TurnLeft
	case TurnRight:
		return gotrace.TurnRight
	case TurnMajority:
		return gotrace.TurnMajority
	default:
		return gotrace.TurnMinority
	}
}
