package client

import (
	"context"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astromechza/decaying-canvas/pkg/api"
	"github.com/astromechza/decaying-canvas/pkg/canvas"
	"github.com/astromechza/decaying-canvas/pkg/sketch"
)

func newTestClient(t *testing.T) (*Client, *canvas.Store) {
	t.Helper()
	store := canvas.NewStore(&canvas.FileBackend{Path: filepath.Join(t.TempDir(), "canvas.png")}, 16, 12)
	require.NoError(t, store.EnsureInitialized(context.Background()))
	s := api.NewServer(store, canvas.PolicyCrop, canvas.DefaultMaxBody)
	s.PushInterval = 10 * time.Millisecond
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)

	c, err := New(ts.URL)
	require.NoError(t, err)
	return c, store
}

func TestClient_UploadThenLatest(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	overlay := sketch.NewOverlay(16, 12)
	overlay.Rect(0, 0, 4, 4, color.Black)
	require.NoError(t, c.Upload(ctx, overlay.Image()))

	img, version, err := c.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), version)
	assert.Equal(t, image.Pt(16, 12), img.Bounds().Size())
	assert.Equal(t, color.NRGBA{A: 255}, img.NRGBAAt(1, 1))
	assert.Equal(t, canvas.White, img.NRGBAAt(10, 10))
}

func TestClient_LatestSurfacesServerErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	c, err := New(ts.URL)
	require.NoError(t, err)
	_, _, err = c.Latest(context.Background())
	assert.ErrorContains(t, err, "500")
	assert.ErrorContains(t, c.Upload(context.Background(), canvas.Blank(1, 1)), "500")
}

func TestClient_Watch(t *testing.T) {
	c, store := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	versions := make(chan uint64, 10)
	errs := make(chan error, 1)
	go func() {
		errs <- c.Watch(ctx, func(img *image.NRGBA, version uint64) {
			versions <- version
		})
	}()

	assert.Equal(t, uint64(1), <-versions)
	require.NoError(t, canvas.NewDecayer(store, time.Second, 0.5).Tick(ctx))
	assert.Equal(t, uint64(2), <-versions)

	cancel()
	assert.NoError(t, <-errs)
}
