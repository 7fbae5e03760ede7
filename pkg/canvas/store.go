package canvas

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Store owns the shared canvas. All mutations are serialised through one mutex
// so an upload and a decay tick never interleave their read-modify-write.
type Store struct {
	backend Backend
	width   int
	height  int

	mu      sync.Mutex
	version atomic.Uint64
}

func NewStore(backend Backend, width, height int) *Store {
	return &Store{backend: backend, width: width, height: height}
}

func (s *Store) Width() int  { return s.width }
func (s *Store) Height() int { return s.height }

// Version counts successful writes since the process started.
func (s *Store) Version() uint64 {
	return s.version.Load()
}

// EnsureInitialized writes a blank canvas when none exists. An existing canvas
// that loads but does not decode to the configured size is replaced with a
// blank one; a valid canvas is left untouched. Failing to load is an error,
// never a reason to overwrite.
func (s *Store) EnsureInitialized(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Prepare(ctx); err != nil {
		return &StoreInitError{Path: s.backend.String(), Err: err}
	}
	raw, err := s.backend.Load(ctx)
	switch {
	case errors.Is(err, ErrNotExist):
		slog.Info("creating blank canvas", "store", s.backend.String(), "width", s.width, "height", s.height)
	case err != nil:
		return &StoreInitError{Path: s.backend.String(), Err: err}
	default:
		_, decodeErr := s.decode(raw)
		if decodeErr == nil {
			return nil
		}
		slog.Warn("resetting unreadable canvas", "store", s.backend.String(), "err", decodeErr)
	}
	if err := s.writeLocked(ctx, Blank(s.width, s.height)); err != nil {
		return &StoreInitError{Path: s.backend.String(), Err: err}
	}
	return nil
}

func (s *Store) Read(ctx context.Context) (*image.NRGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(ctx)
}

func (s *Store) Write(ctx context.Context, img *image.NRGBA) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(ctx, img)
}

// Update runs fn against the current canvas and persists the result, holding
// the store lock for the whole cycle. Nothing is written when fn fails.
func (s *Store) Update(ctx context.Context, fn func(img *image.NRGBA) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	img, err := s.readLocked(ctx)
	if err != nil {
		return err
	}
	if err := fn(img); err != nil {
		return err
	}
	return s.writeLocked(ctx, img)
}

// Snapshot returns the encoded canvas as stored along with its version.
func (s *Store) Snapshot(ctx context.Context) ([]byte, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := s.backend.Load(ctx)
	if err != nil {
		return nil, 0, &StoreReadError{Err: err}
	}
	if _, err := s.decode(raw); err != nil {
		return nil, 0, err
	}
	return raw, s.version.Load(), nil
}

func (s *Store) readLocked(ctx context.Context) (*image.NRGBA, error) {
	raw, err := s.backend.Load(ctx)
	if err != nil {
		return nil, &StoreReadError{Err: err}
	}
	return s.decode(raw)
}

func (s *Store) decode(raw []byte) (*image.NRGBA, error) {
	img, err := decodePNG(raw)
	if err != nil {
		return nil, &StoreReadError{Err: fmt.Errorf("corrupt canvas: %w", err)}
	}
	if size := img.Bounds().Size(); size.X != s.width || size.Y != s.height {
		return nil, &StoreReadError{Err: fmt.Errorf("canvas is %dx%d, expected %dx%d", size.X, size.Y, s.width, s.height)}
	}
	return img, nil
}

func (s *Store) writeLocked(ctx context.Context, img *image.NRGBA) error {
	if size := img.Bounds().Size(); size.X != s.width || size.Y != s.height {
		return &StoreWriteError{Err: fmt.Errorf("refusing to write %dx%d image to %dx%d canvas", size.X, size.Y, s.width, s.height)}
	}
	raw, err := EncodePNG(img)
	if err != nil {
		return &StoreWriteError{Err: err}
	}
	if err := s.backend.Save(ctx, raw); err != nil {
		return &StoreWriteError{Err: err}
	}
	s.version.Add(1)
	return nil
}
