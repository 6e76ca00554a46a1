// Package preprocess normalizes uploaded bitmaps into the clean grayscale
// form the tracer expects, optionally emphasizing edges for photographic
// sources where flat-color tracing would produce useless results.
package preprocess

import (
	"bytes"
	"image"
	"image/png"
	"math"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

// Mode selects the normalization variant.
type Mode string

const (
	// ModeNone flattens, grayscales and contrast-normalizes the input.
	ModeNone Mode = "none"
	// ModeEdge replaces flat grayscale with a Sobel gradient-magnitude
	// transform, for photographic input.
	ModeEdge Mode = "edge"
)

// ParseMode maps a form value to a Mode, defaulting to ModeNone.
func ParseMode(s string) Mode {
	if Mode(s) == ModeEdge {
		return ModeEdge
	}
	return ModeNone
}

// Options are the per-job preprocessing knobs.
type Options struct {
	Mode      Mode
	BlurSigma float64
	EdgeBoost float64
}

// Config holds process-wide preprocessing policy.
type Config struct {
	// MaxDimension is the fit target when an input trips the downscale: the
	// image is shrunk proportionally into a MaxDimension square.
	MaxDimension int
	// MaxSidePx and MaxMegapixels decide WHETHER the downscale fires. They
	// mirror the validator ceilings: inputs inside those ceilings pass
	// through at full size, so this path is only a safety net for images
	// whose header the validator could not read.
	MaxSidePx     int
	MaxMegapixels float64
	// Gamma is applied after grayscale conversion; 1.0 disables it.
	Gamma float64
}

const (
	defaultMaxDimension  = 4000
	defaultMaxSidePx     = 8000
	defaultMaxMegapixels = 30
)

// Degenerate-output sampling policy for edge mode.
const (
	sampleStride    = 7
	flatRange       = 2
	meanMargin      = 8
	minVariance     = 40.0
	defaultEdgeGain = 1.0
)

// Result is the normalized bitmap handed to the vectorization adapter.
// Width and Height are zero on the passthrough path, where the original
// bytes were returned without decoding.
type Result struct {
	PNG    []byte
	Width  int
	Height int
}

// Processor turns arbitrary PNG/JPEG bytes into tracer-ready bitmaps.
type Processor struct {
	cfg    Config
	logger *zap.Logger
}

// New constructs a Processor.
func New(cfg Config, logger *zap.Logger) *Processor {
	if cfg.MaxDimension <= 0 {
		cfg.MaxDimension = defaultMaxDimension
	}
	if cfg.MaxSidePx <= 0 {
		cfg.MaxSidePx = defaultMaxSidePx
	}
	if cfg.MaxMegapixels <= 0 {
		cfg.MaxMegapixels = defaultMaxMegapixels
	}
	if cfg.Gamma <= 0 {
		cfg.Gamma = 1.0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{cfg: cfg, logger: logger}
}

// Normalize produces a tracer-ready PNG. It never fails: preprocessing is an
// optimization, not a correctness requirement, so any internal error returns
// the original bytes unchanged and lets the tracer's own failure path report
// the problem.
func (p *Processor) Normalize(src []byte, opts Options) Result {
	img, err := imaging.Decode(bytes.NewReader(src), imaging.AutoOrientation(true))
	if err != nil {
		p.logger.Warn("preprocess decode failed, passing original bytes through", zap.Error(err))
		return Result{PNG: src}
	}

	if p.overCeiling(img.Bounds()) {
		img = imaging.Fit(img, p.cfg.MaxDimension, p.cfg.MaxDimension, imaging.Lanczos)
	}

	gray := p.applyGamma(flattenGray(img))

	if opts.Mode == ModeEdge {
		if edge, ok := p.edgePass(gray, opts); ok {
			return encodeResult(src, edge, p.logger)
		}
		p.logger.Info("edge pass degenerate, falling back to plain grayscale")
	}

	return encodeResult(src, stretchContrast(gray), p.logger)
}

// edgePass runs blur + Sobel and reports whether the output is usable. A
// flat edge map (all-white or all-black) would silently give the tracer
// nothing to work with, so it is rejected here.
func (p *Processor) edgePass(gray *image.Gray, opts Options) (*image.Gray, bool) {
	boost := opts.EdgeBoost
	if boost <= 0 {
		boost = defaultEdgeGain
	}
	src := gray
	if opts.BlurSigma > 0 {
		src = flattenGray(imaging.Blur(gray, opts.BlurSigma))
	}
	edge := sobelEdges(src, boost)
	if isDegenerate(edge) {
		return nil, false
	}
	return edge, true
}

// overCeiling reports whether the decoded image exceeds the validator
// ceilings. Uploads the validator admits keep their full resolution; the
// downscale only catches images that slipped past a permissive header check.
func (p *Processor) overCeiling(b image.Rectangle) bool {
	if b.Dx() > p.cfg.MaxSidePx || b.Dy() > p.cfg.MaxSidePx {
		return true
	}
	return float64(b.Dx())*float64(b.Dy())/1e6 > p.cfg.MaxMegapixels
}

func (p *Processor) applyGamma(gray *image.Gray) *image.Gray {
	if p.cfg.Gamma == 1.0 {
		return gray
	}
	var lut [256]uint8
	for i := range lut {
		v := 255.0 * math.Pow(float64(i)/255.0, 1.0/p.cfg.Gamma)
		lut[i] = uint8(v + 0.5)
	}
	out := image.NewGray(gray.Bounds())
	for i, v := range gray.Pix {
		out.Pix[i] = lut[v]
	}
	return out
}

func encodeResult(original []byte, gray *image.Gray, logger *zap.Logger) Result {
	var buf bytes.Buffer
	if err := png.Encode(&buf, gray); err != nil {
		logger.Warn("preprocess encode failed, passing original bytes through", zap.Error(err))
		return Result{PNG: original}
	}
	b := gray.Bounds()
	return Result{PNG: buf.Bytes(), Width: b.Dx(), Height: b.Dy()}
}

// flattenGray composites the image onto a white background and converts it
// to 8-bit grayscale in a single integer-exact pass, so re-running it on an
// already-flattened grayscale image is a bitwise no-op.
func flattenGray(img image.Image) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, a := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			// Premultiplied channels; the white contribution is (1-alpha).
			r16 := clamp16(r + (0xffff - a))
			g16 := clamp16(g + (0xffff - a))
			b16 := clamp16(bl + (0xffff - a))
			lum := (299*(r16>>8) + 587*(g16>>8) + 114*(b16>>8) + 500) / 1000
			dst.Pix[y*dst.Stride+x] = uint8(lum)
		}
	}
	return dst
}

func clamp16(v uint32) uint32 {
	if v > 0xffff {
		return 0xffff
	}
	return v
}

// stretchContrast applies a min-max levels stretch. Images already spanning
// the full intensity range pass through unchanged, which keeps plain
// normalization idempotent.
func stretchContrast(gray *image.Gray) *image.Gray {
	lo, hi := uint8(255), uint8(0)
	for _, v := range gray.Pix {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if lo == 0 && hi == 255 {
		return gray
	}
	if hi <= lo {
		return gray
	}
	span := uint32(hi - lo)
	out := image.NewGray(gray.Bounds())
	for i, v := range gray.Pix {
		out.Pix[i] = uint8((uint32(v-lo)*255 + span/2) / span)
	}
	return out
}

// isDegenerate samples the edge map at a fixed stride and judges whether
// the pass produced a flat, unusable image.
func isDegenerate(gray *image.Gray) bool {
	var (
		count  int
		sum    float64
		sumSq  float64
		lo, hi = uint8(255), uint8(0)
	)
	for i := 0; i < len(gray.Pix); i += sampleStride {
		v := gray.Pix[i]
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
		sum += float64(v)
		sumSq += float64(v) * float64(v)
		count++
	}
	if count == 0 {
		return true
	}
	if int(hi)-int(lo) <= flatRange {
		return true
	}
	mean := sum / float64(count)
	if mean <= meanMargin || mean >= 255-meanMargin {
		return true
	}
	variance := sumSq/float64(count) - mean*mean
	return variance < minVariance
}
