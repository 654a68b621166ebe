package quality

import (
	"image"

	"golang.org/x/image/draw"
)

// BlurScore returns the variance of the 3x3 Laplacian over the grayscale
// version of img. Higher means sharper; a flat image scores 0.
//
// Borders are reflected without repeating the edge pixel (reflect-101),
// so a uniform image of any size has a Laplacian of exactly zero.
func BlurScore(img image.Image) float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return 0
	}

	gray := image.NewGray(image.Rect(0, 0, w, h))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)

	at := func(x, y int) float64 {
		return float64(gray.Pix[reflect101(y, h)*gray.Stride+reflect101(x, w)])
	}

	// Welford's online variance keeps large crops numerically stable.
	var n, mean, m2 float64
	for y := range h {
		for x := range w {
			lap := at(x-1, y) + at(x+1, y) + at(x, y-1) + at(x, y+1) - 4*at(x, y)
			n++
			d := lap - mean
			mean += d / n
			m2 += d * (lap - mean)
		}
	}
	return m2 / n
}

// reflect101 maps an out-of-range index back into [0, n): -1 -> 1, n -> n-2.
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*(n-1) - i
		}
	}
	return i
}
