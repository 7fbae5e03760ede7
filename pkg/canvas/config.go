package canvas

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultWidth         = 1200
	DefaultHeight        = 900
	DefaultDecayInterval = 10 * time.Second
	DefaultDecayOpacity  = 0.04
	DefaultMaxBody       = 10 << 20
)

// Config holds the tuning knobs of a canvas server.
type Config struct {
	StorePath     string
	StoreDriver   string
	Width         int
	Height        int
	DecayInterval time.Duration
	DecayOpacity  float64
	OverlayPolicy OverlayPolicy
	MaxBody       int64
}

func (c Config) Validate() error {
	var errs []error
	if c.StorePath == "" {
		errs = append(errs, errors.New("store path must be set"))
	}
	if c.StoreDriver != "file" && c.StoreDriver != "sqlite" {
		errs = append(errs, fmt.Errorf("store driver must be file or sqlite, got %q", c.StoreDriver))
	}
	if c.Width <= 0 || c.Height <= 0 {
		errs = append(errs, fmt.Errorf("canvas size must be positive, got %dx%d", c.Width, c.Height))
	}
	if c.DecayInterval <= 0 {
		errs = append(errs, fmt.Errorf("decay interval must be positive, got %s", c.DecayInterval))
	}
	if c.DecayOpacity < 0 || c.DecayOpacity > 1 {
		errs = append(errs, fmt.Errorf("decay opacity must be within [0, 1], got %v", c.DecayOpacity))
	}
	if _, err := ParseOverlayPolicy(string(c.OverlayPolicy)); err != nil {
		errs = append(errs, err)
	}
	if c.MaxBody <= 0 {
		errs = append(errs, fmt.Errorf("max body must be positive, got %d", c.MaxBody))
	}
	return errors.Join(errs...)
}

// OpenBackend returns the backend selected by StoreDriver. The returned close
// function releases any handles it holds.
func (c Config) OpenBackend() (Backend, func() error, error) {
	switch c.StoreDriver {
	case "sqlite":
		b, err := OpenSQLiteBackend(c.StorePath)
		if err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil
	default:
		return &FileBackend{Path: c.StorePath}, func() error { return nil }, nil
	}
}
