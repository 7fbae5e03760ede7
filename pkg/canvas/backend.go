package canvas

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// ErrNotExist is returned by a Backend when nothing has been saved yet.
var ErrNotExist = errors.New("canvas does not exist")

// Backend persists the encoded canvas bytes. Implementations hold exactly one
// object; the Store takes care of locking and image decoding.
type Backend interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, raw []byte) error
	// Prepare creates whatever container the object needs (directories, tables).
	Prepare(ctx context.Context) error
	String() string
}

// FileBackend keeps the canvas as a single PNG file.
type FileBackend struct {
	Path string
}

func (f *FileBackend) String() string {
	return f.Path
}

func (f *FileBackend) Prepare(ctx context.Context) error {
	if dir := filepath.Dir(f.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	return nil
}

func (f *FileBackend) Load(ctx context.Context) ([]byte, error) {
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotExist
		}
		return nil, err
	}
	return raw, nil
}

// Save replaces the file atomically: the bytes are written and synced to a
// temp file in the same directory which is then renamed over the target.
func (f *FileBackend) Save(ctx context.Context, raw []byte) error {
	if err := renameio.WriteFile(f.Path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to replace %s: %w", f.Path, err)
	}
	return nil
}
