// Package sketch draws client-side marks onto transparent overlays, the same
// kind of raster a browser submits after a user colours on its local canvas.
package sketch

import (
	"image"
	"image/color"
	"math/rand"

	"github.com/fogleman/gg"

	"github.com/astromechza/decaying-canvas/pkg/canvas"
)

type Point struct {
	X, Y float64
}

type Overlay struct {
	dc *gg.Context
}

// NewOverlay returns a fully transparent overlay of the given size.
func NewOverlay(width, height int) *Overlay {
	dc := gg.NewContext(width, height)
	dc.SetLineCapRound()
	dc.SetLineJoinRound()
	return &Overlay{dc: dc}
}

func (o *Overlay) Stroke(points []Point, width float64, c color.Color) {
	o.dc.SetColor(c)
	switch len(points) {
	case 0:
		return
	case 1:
		// a tap leaves a dot
		o.dc.DrawCircle(points[0].X, points[0].Y, width/2)
		o.dc.Fill()
		return
	}
	o.dc.SetLineWidth(width)
	o.dc.MoveTo(points[0].X, points[0].Y)
	for _, p := range points[1:] {
		o.dc.LineTo(p.X, p.Y)
	}
	o.dc.Stroke()
}

// Rect fills an axis aligned rectangle.
func (o *Overlay) Rect(x, y, w, h float64, c color.Color) {
	o.dc.SetColor(c)
	o.dc.DrawRectangle(x, y, w, h)
	o.dc.Fill()
}

// RandomScribble draws a wandering grayscale stroke.
func (o *Overlay) RandomScribble(rng *rand.Rand) {
	w, h := float64(o.dc.Width()), float64(o.dc.Height())
	p := Point{X: rng.Float64() * w, Y: rng.Float64() * h}
	points := []Point{p}
	for i := 0; i < 5+rng.Intn(20); i++ {
		p = Point{
			X: clamp(p.X+(rng.Float64()-0.5)*w/8, 0, w),
			Y: clamp(p.Y+(rng.Float64()-0.5)*h/8, 0, h),
		}
		points = append(points, p)
	}
	shade := uint8(rng.Intn(160))
	o.Stroke(points, 2+rng.Float64()*10, color.NRGBA{R: shade, G: shade, B: shade, A: 255})
}

// Image returns the overlay as a non-premultiplied image.
func (o *Overlay) Image() *image.NRGBA {
	return canvas.ToNRGBA(o.dc.Image())
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
