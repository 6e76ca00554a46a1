package trace

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/suhas-sunder/ilovesvg-sub003/internal/svgtext"
)

// Result is finished vector output. The markup is immutable once returned.
type Result struct {
	SVG    string
	Width  int
	Height int
}

// Adapter invokes the engine and guarantees the returned markup is
// well-formed, responsive SVG regardless of what the tracer produced.
type Adapter struct {
	engine Engine
	logger *zap.Logger
}

// NewAdapter constructs an Adapter around the given engine.
func NewAdapter(engine Engine, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{engine: engine, logger: logger}
}

// Vectorize traces the PNG-encoded bitmap and applies deterministic,
// idempotent postprocessing: coercion of empty output, viewBox
// normalization, path recoloring, tracer background cleanup, and optional
// background injection. Tracer failures surface to the caller unretried.
// postprocessing, when non-nil, is invoked once tracing has finished and
// markup cleanup begins.
func (a *Adapter) Vectorize(pngBytes []byte, p Params, out OutputPolicy, postprocessing func()) (Result, error) {
	img, err := imaging.Decode(bytes.NewReader(pngBytes))
	if err != nil {
		return Result{}, fmt.Errorf("decode bitmap: %w", err)
	}
	out = applyInvertPolicy(out)

	markup, err := a.engine.Trace(img, p)
	if err != nil {
		return Result{}, fmt.Errorf("vectorize: %w", err)
	}
	if postprocessing != nil {
		postprocessing()
	}

	b := img.Bounds()
	if strings.TrimSpace(markup) == "" || !svgtext.IsUsable(markup) {
		a.logger.Warn("tracer returned unusable markup, substituting empty document",
			zap.Int("width", b.Dx()), zap.Int("height", b.Dy()))
		markup = svgtext.EmptyDocument(b.Dx(), b.Dy())
	}

	markup = svgtext.EnsureViewBox(markup)
	width, height := svgtext.Dimensions(markup)
	markup = svgtext.RecolorPaths(markup, out.LineColor)
	markup = svgtext.RemoveCanvasBackground(markup, width, height)
	if !out.Transparent {
		markup = svgtext.InjectBackground(markup, out.BGColor, width, height)
	}

	return Result{SVG: markup, Width: width, Height: height}, nil
}
