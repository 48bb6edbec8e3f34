package capture

import (
	"image"
	"image/color"
)

// Depth range shown by the false-color map, in millimetres.
const (
	DepthNearMM = 300
	DepthFarMM  = 5000
)

// depthLUT maps a normalized depth index to a blue..red ramp; irLUT applies
// a 1.6x gain to IR intensities, which are dim straight off the sensor.
var (
	depthLUT [256]color.RGBA
	irLUT    [256]uint8
)

func init() {
	for i := 0; i < 256; i++ {
		depthLUT[i] = jet(float64(i) / 255)
		irLUT[i] = uint8(min(float64(i)*1.6, 255))
	}
}

// jet returns the classic jet color for t in [0,1]: near is red, far is blue.
func jet(t float64) color.RGBA {
	t = 1 - t
	channel := func(offset float64) uint8 {
		v := 1.5 - 4*abs(t-offset)
		return uint8(255 * min(max(v, 0), 1))
	}
	return color.RGBA{R: channel(0.75), G: channel(0.5), B: channel(0.25), A: 255}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// ColorizeDepth renders a 16-bit depth image as false color. Zero samples
// (no return) are black.
func ColorizeDepth(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	sample := func(x, y int) uint16 {
		return color.Gray16Model.Convert(src.At(x, y)).(color.Gray16).Y
	}
	if g, ok := src.(*image.Gray16); ok {
		sample = func(x, y int) uint16 {
			off := g.PixOffset(x, y)
			return uint16(g.Pix[off])<<8 | uint16(g.Pix[off+1])
		}
	}

	for y := 0; y < b.Dy(); y++ {
		off := y * dst.Stride
		for x := 0; x < b.Dx(); x++ {
			d := int(sample(x+b.Min.X, y+b.Min.Y))
			c := color.RGBA{A: 255}
			if d > 0 {
				d = min(max(d, DepthNearMM), DepthFarMM)
				c = depthLUT[(d-DepthNearMM)*255/(DepthFarMM-DepthNearMM)]
			}
			dst.Pix[off+0] = c.R
			dst.Pix[off+1] = c.G
			dst.Pix[off+2] = c.B
			dst.Pix[off+3] = 255
			off += 4
		}
	}
	return dst
}

// ColorizeIR renders an IR image as boosted greyscale. 16-bit sources are
// reduced to their high byte.
func ColorizeIR(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	if g, ok := src.(*image.Gray); ok {
		for y := 0; y < b.Dy(); y++ {
			srcOff := g.PixOffset(b.Min.X, y+b.Min.Y)
			dstOff := y * dst.Stride
			for x := 0; x < b.Dx(); x++ {
				v := irLUT[g.Pix[srcOff+x]]
				dst.Pix[dstOff+0] = v
				dst.Pix[dstOff+1] = v
				dst.Pix[dstOff+2] = v
				dst.Pix[dstOff+3] = 255
				dstOff += 4
			}
		}
		return dst
	}

	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			g := color.GrayModel.Convert(src.At(x+b.Min.X, y+b.Min.Y)).(color.Gray)
			v := irLUT[g.Y]
			dst.SetRGBA(x, y, color.RGBA{v, v, v, 255})
		}
	}
	return dst
}
