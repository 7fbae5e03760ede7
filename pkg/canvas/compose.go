package canvas

import (
	"fmt"
	"image"
	"image/color"
	"math"

	xdraw "golang.org/x/image/draw"
)

var White = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

// Blank returns an opaque white image of the given size.
func Blank(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	xdraw.Draw(img, img.Bounds(), image.NewUniform(White), image.Point{}, xdraw.Src)
	return img
}

// ToNRGBA returns img as a zero-origin *image.NRGBA, copying when needed.
func ToNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(out, out.Bounds(), img, b.Min, xdraw.Src)
	return out
}

// overPixel composites src over dst using non-premultiplied source-over.
func overPixel(dst, src color.NRGBA) color.NRGBA {
	switch src.A {
	case 0:
		return dst
	case 0xff:
		return src
	}
	return blendPixel(dst, src, 1)
}

// Over composites src over dst in place. src is anchored at dst's origin and
// anything outside dst is clipped.
func Over(dst, src *image.NRGBA) {
	r := dst.Rect.Intersect(src.Rect.Sub(src.Rect.Min).Add(dst.Rect.Min))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			sx, sy := x-dst.Rect.Min.X+src.Rect.Min.X, y-dst.Rect.Min.Y+src.Rect.Min.Y
			dst.SetNRGBA(x, y, overPixel(dst.NRGBAAt(x, y), src.NRGBAAt(sx, sy)))
		}
	}
}

// Blend composites a uniform layer of colour c at the given opacity over every
// pixel of img. Every channel not yet at c moves at least one step toward it.
func Blend(img *image.NRGBA, c color.NRGBA, opacity float64) {
	if opacity <= 0 || c.A == 0 {
		return
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			before := img.NRGBAAt(x, y)
			after := blendPixel(before, c, opacity)
			img.SetNRGBA(x, y, color.NRGBA{
				R: advance(before.R, after.R, c.R),
				G: advance(before.G, after.G, c.G),
				B: advance(before.B, after.B, c.B),
				A: advance(before.A, after.A, 0xff),
			})
		}
	}
}

// advance moves a channel one step toward target when rounding would
// otherwise leave it unchanged, so repeated blends always converge.
func advance(before, after, target uint8) uint8 {
	switch {
	case after != before || before == target:
		return after
	case before < target:
		return before + 1
	default:
		return before - 1
	}
}

// blendPixel composites c over dst with c's alpha scaled by opacity. The alpha
// stays fractional so small opacities are not quantised to 1/255 steps.
func blendPixel(dst, c color.NRGBA, opacity float64) color.NRGBA {
	sa := clamp01(opacity) * float64(c.A) / 255
	da := float64(dst.A) / 255
	oa := sa + da*(1-sa)
	if oa == 0 {
		return dst
	}
	channel := func(s, d uint8) uint8 {
		v := (float64(s)*sa + float64(d)*da*(1-sa)) / oa
		return uint8(math.Min(255, math.Round(v)))
	}
	return color.NRGBA{
		R: channel(c.R, dst.R),
		G: channel(c.G, dst.G),
		B: channel(c.B, dst.B),
		A: uint8(math.Min(255, math.Round(oa*255))),
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

type OverlayPolicy string

const (
	// PolicyCrop anchors the overlay at the origin and clips it to the canvas.
	PolicyCrop OverlayPolicy = "crop"
	// PolicyReject refuses overlays whose size differs from the canvas.
	PolicyReject OverlayPolicy = "reject"
	// PolicyScale resamples the overlay to the canvas size.
	PolicyScale OverlayPolicy = "scale"
)

func ParseOverlayPolicy(s string) (OverlayPolicy, error) {
	switch p := OverlayPolicy(s); p {
	case PolicyCrop, PolicyReject, PolicyScale:
		return p, nil
	default:
		return "", fmt.Errorf("unknown overlay policy %q", s)
	}
}

// MaxOverlayFactor bounds overlays under the crop and scale policies to this
// multiple of the canvas size in each dimension.
const MaxOverlayFactor = 2

// Limits is the largest overlay accepted for a width x height canvas.
func (p OverlayPolicy) Limits(width, height int) (int, int) {
	if p == PolicyReject {
		return width, height
	}
	return width * MaxOverlayFactor, height * MaxOverlayFactor
}

// Decode decodes an encoded overlay and fits it to the canvas. Oversized
// overlays are refused before any pixel data is decoded.
func (p OverlayPolicy) Decode(raw []byte, width, height int) (*image.NRGBA, error) {
	maxWidth, maxHeight := p.Limits(width, height)
	overlay, err := DecodeOverlayWithin(raw, maxWidth, maxHeight)
	if err != nil {
		return nil, err
	}
	return p.Fit(overlay, width, height)
}

// Fit adapts an overlay to a width x height canvas according to the policy.
func (p OverlayPolicy) Fit(overlay *image.NRGBA, width, height int) (*image.NRGBA, error) {
	size := overlay.Bounds().Size()
	if size.X == width && size.Y == height {
		return overlay, nil
	}
	switch p {
	case PolicyReject:
		return nil, &DecodeError{Err: fmt.Errorf("overlay is %dx%d, canvas is %dx%d", size.X, size.Y, width, height)}
	case PolicyScale:
		out := image.NewNRGBA(image.Rect(0, 0, width, height))
		xdraw.CatmullRom.Scale(out, out.Bounds(), overlay, overlay.Bounds(), xdraw.Src, nil)
		return out, nil
	default:
		return overlay, nil
	}
}
