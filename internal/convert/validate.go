package convert

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	// Registered for header-only dimension decoding via image.DecodeConfig.
	_ "image/jpeg"
	_ "image/png"
)

// Limits bounds what the service will accept before doing expensive work.
// The guards run in increasing order of cost so a gate slot and decoded
// pixel buffers are never consumed for a request that was always going to
// fail a cheaper check.
type Limits struct {
	// MaxUploadBytes caps the image part size.
	MaxUploadBytes int64
	// OverheadBytes is the protocol allowance added to MaxUploadBytes when
	// checking the declared request Content-Length (multipart framing).
	OverheadBytes int64
	// MaxSidePx caps either image dimension.
	MaxSidePx int
	// MaxMegapixels caps width*height/1e6.
	MaxMegapixels float64
}

// DefaultLimits mirrors the production policy values.
func DefaultLimits() Limits {
	return Limits{
		MaxUploadBytes: 30 << 20,
		OverheadBytes:  1 << 20,
		MaxSidePx:      8000,
		MaxMegapixels:  30,
	}
}

var allowedMIMETypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
}

// CheckDeclared is the pre-parse guard: it rejects on the declared request
// Content-Length alone, before the body is touched. Unknown lengths pass.
func (l Limits) CheckDeclared(contentLength int64) *Error {
	if contentLength < 0 {
		return nil
	}
	if contentLength > l.MaxUploadBytes+l.OverheadBytes {
		return payloadTooLargef(
			"request of %d bytes exceeds the %d byte upload limit",
			contentLength, l.MaxUploadBytes,
		)
	}
	return nil
}

// CheckPart is the post-parse, pre-gate guard on the uploaded file part's
// declared size and MIME type.
func (l Limits) CheckPart(size int64, mimeType string) *Error {
	if size > l.MaxUploadBytes {
		return payloadTooLargef(
			"file of %d bytes exceeds the %d byte upload limit",
			size, l.MaxUploadBytes,
		)
	}
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if !allowedMIMETypes[mt] {
		return unsupportedf("unsupported image type %q, use PNG or JPEG", mimeType)
	}
	return nil
}

// CheckPixels is the authoritative guard: it decodes only the image header
// to obtain true dimensions. It is best-effort — when the header itself
// cannot be decoded the job proceeds and the tracer fails loudly instead.
func (l Limits) CheckPixels(data []byte) *Error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	if cfg.Width > l.MaxSidePx || cfg.Height > l.MaxSidePx {
		return unsupportedf(
			"image is %dx%d pixels, the longest side may be at most %d",
			cfg.Width, cfg.Height, l.MaxSidePx,
		)
	}
	megapixels := float64(cfg.Width) * float64(cfg.Height) / 1e6
	if megapixels > l.MaxMegapixels {
		return unsupportedf(
			"image is %s megapixels, at most %s allowed",
			trimFloat(megapixels), trimFloat(l.MaxMegapixels),
		)
	}
	return nil
}

func trimFloat(f float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.1f", f), "0"), ".")
}
