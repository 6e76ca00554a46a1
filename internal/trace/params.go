// Package trace drives the external bitmap tracer and normalizes whatever
// it returns into well-formed, responsive SVG markup.
package trace

import (
	"fmt"
	"strconv"
	"strings"
)

// TurnPolicy is the tie-breaking rule the tracer applies when a traced path
// reaches an ambiguous corner.
type TurnPolicy string

const (
	TurnBlack    TurnPolicy = "black"
	TurnWhite    TurnPolicy = "white"
	TurnLeft     TurnPolicy = "left"
	TurnRight    TurnPolicy = "right"
	TurnMinority TurnPolicy = "minority"
	TurnMajority TurnPolicy = "majority"
)

// ParseTurnPolicy validates a form value, defaulting to minority.
func ParseTurnPolicy(s string) (TurnPolicy, error) {
	if s == "" {
		return TurnMinority, nil
	}
	switch tp := TurnPolicy(strings.ToLower(s)); tp {
	case TurnBlack, TurnWhite, TurnLeft, TurnRight, TurnMinority, TurnMajority:
		return tp, nil
	}
	return "", fmt.Errorf("unknown turn policy %q", s)
}

// Params is the flat tracer parameter set.
type Params struct {
	// Threshold separates ink from background on the 0-255 intensity scale.
	Threshold int
	// TurdSize is the minimum connected-component size kept, in pixels.
	TurdSize int
	// OptTolerance is the curve-smoothing tolerance.
	OptTolerance float64
	TurnPolicy   TurnPolicy
}

// OutputPolicy describes how the traced paths should be presented.
type OutputPolicy struct {
	LineColor   string
	Invert      bool
	Transparent bool
	BGColor     string
}

const (
	invertBG   = "#111111"
	invertLine = "#ffffff"
)

// applyInvertPolicy realizes "white lines on dark background" purely through
// recoloring. Tracing inverted bitmaps can silently produce blank output for
// some inputs, so the tracer always runs in its default black-on-white
// orientation and the inversion happens here. Invisible dark-on-dark output
// is treated as a correctness bug: the policy forces a solid dark background
// and a light line whenever the caller's settings would hide the result.
func applyInvertPolicy(out OutputPolicy) OutputPolicy {
	if !out.Invert {
		return out
	}
	out.Transparent = false
	if !isDark(out.BGColor) {
		out.BGColor = invertBG
	}
	if isDark(out.LineColor) {
		out.LineColor = invertLine
	}
	return out
}

// isDark reports whether a hex color's luminance falls below mid-gray.
// Unparseable values count as dark so the policy errs toward forcing a
// visible light line.
func isDark(hex string) bool {
	r, g, b, ok := parseHex(hex)
	if !ok {
		return true
	}
	lum := (299*int(r) + 587*int(g) + 114*int(b)) / 1000
	return lum < 128
}

func parseHex(s string) (uint8, uint8, uint8, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return 0, 0, 0, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	return uint8(v >> 16), uint8(v >> 8), uint8(v), true
}
