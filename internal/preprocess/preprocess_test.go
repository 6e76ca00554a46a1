package preprocess

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func decodePNG(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func grayAt(img image.Image, x, y int) uint8 {
	r, _, _, _ := img.At(x, y).RGBA()
	return uint8(r >> 8)
}

// gradientImage spans the full intensity range so contrast stretching is a
// no-op and the normalization pipeline is exactly reproducible.
func gradientImage(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x * 255) / (w - 1))})
		}
	}
	return img
}

func TestNormalize_NoneModeIsIdempotent(t *testing.T) {
	t.Parallel()

	p := New(Config{}, nil)
	src := encodePNG(t, gradientImage(64, 32))

	first := p.Normalize(src, Options{Mode: ModeNone})
	require.NotEmpty(t, first.PNG)
	require.Equal(t, 64, first.Width)
	require.Equal(t, 32, first.Height)

	second := p.Normalize(first.PNG, Options{Mode: ModeNone})
	require.Equal(t, first.PNG, second.PNG)
}

func TestNormalize_UniformInputEdgeModeFallsBackToGrayscale(t *testing.T) {
	t.Parallel()

	p := New(Config{}, nil)
	uniform := image.NewGray(image.Rect(0, 0, 64, 64))
	for i := range uniform.Pix {
		uniform.Pix[i] = 128
	}
	src := encodePNG(t, uniform)

	res := p.Normalize(src, Options{Mode: ModeEdge, EdgeBoost: 2.0})
	require.Equal(t, 64, res.Width)

	out := decodePNG(t, res.PNG)
	// The fallback keeps the flat gray content instead of emitting the
	// blank edge map.
	require.Equal(t, uint8(128), grayAt(out, 10, 10))
	require.Equal(t, uint8(128), grayAt(out, 40, 55))
}

func TestNormalize_EdgeModeHighlightsBoundaries(t *testing.T) {
	t.Parallel()

	p := New(Config{}, nil)
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	for y := 16; y < 48; y++ {
		for x := 16; x < 48; x++ {
			img.SetGray(x, y, color.Gray{Y: 0})
		}
	}
	src := encodePNG(t, img)

	res := p.Normalize(src, Options{Mode: ModeEdge, EdgeBoost: 1.0})
	out := decodePNG(t, res.PNG)

	// Square boundary renders dark, interior renders light.
	require.Less(t, grayAt(out, 16, 32), uint8(100))
	require.Greater(t, grayAt(out, 32, 32), uint8(200))
	// Border row stays at the background value.
	require.Equal(t, uint8(255), grayAt(out, 0, 0))
}

func TestNormalize_UndecodableInputPassesThrough(t *testing.T) {
	t.Parallel()

	p := New(Config{}, nil)
	garbage := []byte("definitely not an image")

	res := p.Normalize(garbage, Options{Mode: ModeEdge})
	require.Equal(t, garbage, res.PNG)
	require.Zero(t, res.Width)
	require.Zero(t, res.Height)
}

func TestNormalize_OverCeilingInputIsDownscaledToFit(t *testing.T) {
	t.Parallel()

	p := New(Config{MaxDimension: 100, MaxSidePx: 150}, nil)
	src := encodePNG(t, gradientImage(200, 50))

	res := p.Normalize(src, Options{Mode: ModeNone})
	require.Equal(t, 100, res.Width)
	require.Equal(t, 25, res.Height)
}

func TestNormalize_AdmittedSizeKeepsFullResolution(t *testing.T) {
	t.Parallel()

	// Larger than the fit target but inside the validator ceilings: the
	// downscale must not fire and the output keeps the upload's dimensions.
	p := New(Config{MaxDimension: 100, MaxSidePx: 300}, nil)
	src := encodePNG(t, gradientImage(200, 120))

	res := p.Normalize(src, Options{Mode: ModeNone})
	require.Equal(t, 200, res.Width)
	require.Equal(t, 120, res.Height)
}

func TestNormalize_MegapixelCeilingTriggersDownscale(t *testing.T) {
	t.Parallel()

	// Sides are under MaxSidePx but the pixel count is over the megapixel
	// ceiling, so the fit clamp applies.
	p := New(Config{MaxDimension: 50, MaxSidePx: 1000, MaxMegapixels: 0.01}, nil)
	src := encodePNG(t, gradientImage(200, 100))

	res := p.Normalize(src, Options{Mode: ModeNone})
	require.Equal(t, 50, res.Width)
	require.Equal(t, 25, res.Height)
}

func TestNormalize_StretchesLowContrastInput(t *testing.T) {
	t.Parallel()

	p := New(Config{}, nil)
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			v := uint8(100)
			if x >= 16 {
				v = 150
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	src := encodePNG(t, img)

	res := p.Normalize(src, Options{Mode: ModeNone})
	out := decodePNG(t, res.PNG)

	require.Equal(t, uint8(0), grayAt(out, 0, 0))
	require.Equal(t, uint8(255), grayAt(out, 31, 31))
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	require.Equal(t, ModeEdge, ParseMode("edge"))
	require.Equal(t, ModeNone, ParseMode("none"))
	require.Equal(t, ModeNone, ParseMode(""))
	require.Equal(t, ModeNone, ParseMode("bogus"))
}
