package canvas

import (
	"context"
	"image"
	"image/color"
	"log/slog"
	"time"
)

// Decayer periodically blends the canvas toward Color, fading old marks.
type Decayer struct {
	Store    *Store
	Interval time.Duration
	Opacity  float64
	Color    color.NRGBA
}

func NewDecayer(store *Store, interval time.Duration, opacity float64) *Decayer {
	return &Decayer{Store: store, Interval: interval, Opacity: opacity, Color: White}
}

// Tick applies a single decay step.
func (d *Decayer) Tick(ctx context.Context) error {
	return d.Store.Update(ctx, func(img *image.NRGBA) error {
		Blend(img, d.Color, d.Opacity)
		return nil
	})
}

// Run ticks every Interval until ctx is done. Failed ticks are logged and
// skipped.
func (d *Decayer) Run(ctx context.Context) {
	t := time.NewTicker(d.Interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			start := time.Now()
			if err := d.Tick(ctx); err != nil {
				slog.Error("failed to decay canvas", "err", err)
			} else {
				slog.Debug("decayed", "version", d.Store.Version(), "duration", time.Since(start))
			}
		case <-ctx.Done():
			slog.Info("stopping scheduled decay")
			return
		}
	}
}
