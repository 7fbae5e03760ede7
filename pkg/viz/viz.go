package viz

import (
	"fmt"
	"image"
	"math/rand"
	"os"
	"path/filepath"
	"time"
)

// Coverage summarises how much of a canvas is currently marked.
type Coverage struct {
	Width  int
	Height int
	// Marked counts pixels that differ from opaque white.
	Marked int
	// MeanDistance is the average per-channel distance from white, 0 (blank) to 1 (black).
	MeanDistance float64
}

func (c Coverage) Fraction() float64 {
	if c.Width*c.Height == 0 {
		return 0
	}
	return float64(c.Marked) / float64(c.Width*c.Height)
}

func (c Coverage) String() string {
	return fmt.Sprintf("%dx%d marked=%d (%.2f%%) mean-distance=%.4f", c.Width, c.Height, c.Marked, c.Fraction()*100, c.MeanDistance)
}

// Stats measures img against a blank white canvas. Transparent pixels count as
// their composite over white.
func Stats(img *image.NRGBA) Coverage {
	b := img.Bounds()
	out := Coverage{Width: b.Dx(), Height: b.Dy()}
	var total float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.NRGBAAt(x, y)
			a := float64(c.A) / 255
			d := (a*float64(255-int(c.R)) + a*float64(255-int(c.G)) + a*float64(255-int(c.B))) / (3 * 255)
			if d > 0 {
				out.Marked++
			}
			total += d
		}
	}
	if n := out.Width * out.Height; n > 0 {
		out.MeanDistance = total / float64(n)
	}
	return out
}

// RenderToTemp writes encoded canvas bytes to a fresh file in the temp dir.
func RenderToTemp(raw []byte) (string, error) {
	tf := filepath.Join(os.TempDir(), fmt.Sprintf("canvas-%d%d.png", time.Now().UnixNano(), rand.Int()))
	if err := os.WriteFile(tf, raw, 0o644); err != nil {
		return "", fmt.Errorf("failed to write: %w", err)
	}
	return tf, nil
}
