package capture

import (
	"image"

	"golang.org/x/image/draw"
)

// Preview scales img down to at most maxWidth pixels wide, keeping the
// aspect ratio. Images already narrow enough, and maxWidth <= 0, are
// returned unchanged.
func Preview(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img
	}
	h := max(1, b.Dy()*maxWidth/b.Dx())
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
