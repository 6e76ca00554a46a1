package preprocess

import (
	"image"
	"image/color"
	"math"
)

var (
	kernelX = [3][3]int32{
		{-1, 0, 1},
		{-2, 0, 2},
		{-1, 0, 1},
	}

	kernelY = [3][3]int32{
		{-1, -2, -1},
		{0, 0, 0},
		{1, 2, 1},
	}
)

// sobelEdges computes the Sobel gradient magnitude of a grayscale image,
// scales it by boost, clamps to [0, 255] and inverts so strong edges render
// dark on a light background. Border pixels stay at the background value
// because the 3x3 window does not fit there.
// See https://en.wikipedia.org/wiki/Sobel_operator
func sobelEdges(src *image.Gray, boost float64) *image.Gray {
	const background = 255

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for i := range dst.Pix {
		dst.Pix[i] = background
	}
	if w < 3 || h < 3 {
		return dst
	}

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			var sumX, sumY int32
			for ky := 0; ky < 3; ky++ {
				for kx := 0; kx < 3; kx++ {
					px := int32(src.GrayAt(b.Min.X+x+kx-1, b.Min.Y+y+ky-1).Y)
					sumX += px * kernelX[ky][kx]
					sumY += px * kernelY[ky][kx]
				}
			}
			magnitude := math.Sqrt(float64(sumX*sumX)+float64(sumY*sumY)) * boost
			if magnitude > 255 {
				magnitude = 255
			} else if magnitude < 0 {
				magnitude = 0
			}
			dst.SetGray(x, y, color.Gray{Y: background - uint8(magnitude)})
		}
	}
	return dst
}
