package api

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astromechza/decaying-canvas/pkg/canvas"
)

const frontendOrigin = "https://coloring.example"

type fixture struct {
	store  *canvas.Store
	path   string
	server *Server
	http   *httptest.Server
}

func newFixture(t *testing.T, width, height int, policy canvas.OverlayPolicy) *fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shared-canvas.png")
	store := canvas.NewStore(&canvas.FileBackend{Path: path}, width, height)
	require.NoError(t, store.EnsureInitialized(context.Background()))
	s := NewServer(store, policy, canvas.DefaultMaxBody)
	s.PushInterval = 10 * time.Millisecond
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return &fixture{store: store, path: path, server: s, http: ts}
}

func (f *fixture) upload(t *testing.T, img image.Image) *http.Response {
	t.Helper()
	raw, err := canvas.EncodePNG(img)
	require.NoError(t, err)
	return f.postJSON(t, Payload{Image: canvas.EncodeDataURL(raw)})
}

func (f *fixture) postJSON(t *testing.T, v interface{}) *http.Response {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	resp, err := http.Post(f.http.URL+"/upload", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) latest(t *testing.T) *image.NRGBA {
	t.Helper()
	resp := f.get(t, "/latest")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	var payload Payload
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.True(t, strings.HasPrefix(payload.Image, canvas.DataURLPrefix))
	raw, err := canvas.DecodeDataURL(payload.Image)
	require.NoError(t, err)
	img, err := canvas.DecodeOverlay(raw)
	require.NoError(t, err)
	return img
}

// get issues a cross-origin GET the way the browser front-end does.
func (f *fixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, f.http.URL+path, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", frontendOrigin)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func solid(width, height int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestUpload_BasicContributionRoundTrip(t *testing.T) {
	f := newFixture(t, 4, 4, canvas.PolicyCrop)
	black := color.NRGBA{A: 255}
	overlay := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			overlay.SetNRGBA(x, y, black)
		}
	}

	resp := f.upload(t, overlay)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	img := f.latest(t)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			if x < 2 && y < 2 {
				assert.Equal(t, black, img.NRGBAAt(x, y), "pixel %d,%d", x, y)
			} else {
				assert.Equal(t, canvas.White, img.NRGBAAt(x, y), "pixel %d,%d", x, y)
			}
		}
	}
}

func TestUpload_TransparentOverlayKeepsCanvas(t *testing.T) {
	f := newFixture(t, 4, 4, canvas.PolicyCrop)
	before := f.latest(t)

	resp := f.upload(t, image.NewNRGBA(image.Rect(0, 0, 4, 4)))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, before.Pix, f.latest(t).Pix)
}

func TestUpload_OpaqueGrayReplacesCanvas(t *testing.T) {
	f := newFixture(t, 4, 4, canvas.PolicyCrop)
	gray := color.NRGBA{R: 128, G: 128, B: 128, A: 255}

	resp := f.upload(t, solid(4, 4, gray))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, solid(4, 4, gray).Pix, f.latest(t).Pix)
}

func TestUpload_BadPayloads(t *testing.T) {
	f := newFixture(t, 4, 4, canvas.PolicyReject)
	wrongSize, err := canvas.EncodePNG(canvas.Blank(3, 3))
	require.NoError(t, err)

	for name, body := range map[string]interface{}{
		"missing image": map[string]string{},
		"bad base64":    Payload{Image: canvas.DataURLPrefix + "%%%"},
		"not a png":     Payload{Image: canvas.EncodeDataURL([]byte("hello"))},
		"wrong size":    Payload{Image: canvas.EncodeDataURL(wrongSize)},
	} {
		t.Run(name, func(t *testing.T) {
			resp := f.postJSON(t, body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}

	resp, err := http.Post(f.http.URL+"/upload", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpload_ScalePolicyResizesOverlay(t *testing.T) {
	f := newFixture(t, 4, 4, canvas.PolicyScale)
	black := color.NRGBA{A: 255}

	resp := f.upload(t, solid(2, 2, black))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	img := f.latest(t)
	assert.Equal(t, image.Pt(4, 4), img.Bounds().Size())
	assert.Equal(t, black, img.NRGBAAt(3, 3))
}

func TestUpload_TooLarge(t *testing.T) {
	f := newFixture(t, 4, 4, canvas.PolicyCrop)
	f.server.MaxBody = 16

	resp := f.postJSON(t, Payload{Image: strings.Repeat("A", 64)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestLatest_CorruptStoreRecovers(t *testing.T) {
	f := newFixture(t, 4, 4, canvas.PolicyCrop)
	require.NoError(t, os.WriteFile(f.path, []byte("not an image"), 0o644))

	resp := f.get(t, "/latest")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	resp = f.upload(t, solid(4, 4, color.NRGBA{A: 255}))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	require.NoError(t, f.store.EnsureInitialized(context.Background()))
	resp = f.upload(t, solid(4, 4, color.NRGBA{R: 9, G: 9, B: 9, A: 255}))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, color.NRGBA{R: 9, G: 9, B: 9, A: 255}, f.latest(t).NRGBAAt(2, 2))
}

func TestDimensionInvariantAcrossCycles(t *testing.T) {
	f := newFixture(t, 6, 5, canvas.PolicyCrop)
	d := canvas.NewDecayer(f.store, time.Second, 0.04)
	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, f.upload(t, solid(9, 2, color.NRGBA{R: uint8(i * 40), A: 200})).StatusCode)
		require.NoError(t, d.Tick(context.Background()))
		assert.Equal(t, image.Pt(6, 5), f.latest(t).Bounds().Size())
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, 4, 4, canvas.PolicyCrop)
	req, err := http.NewRequest(http.MethodOptions, f.http.URL+"/upload", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", frontendOrigin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestCORSOnUnroutedResponses(t *testing.T) {
	f := newFixture(t, 4, 4, canvas.PolicyCrop)

	notFound := f.get(t, "/nope")
	assert.Equal(t, http.StatusNotFound, notFound.StatusCode)
	assert.Equal(t, "*", notFound.Header.Get("Access-Control-Allow-Origin"))

	wrongMethod := f.get(t, "/upload")
	assert.Equal(t, http.StatusMethodNotAllowed, wrongMethod.StatusCode)
	assert.Equal(t, "*", wrongMethod.Header.Get("Access-Control-Allow-Origin"))
}

func TestUpload_RejectsOversizedHeaderBeforeDecoding(t *testing.T) {
	f := newFixture(t, 4, 4, canvas.PolicyCrop)
	raw, err := canvas.EncodePNG(image.NewNRGBA(image.Rect(0, 0, 1, 1)))
	require.NoError(t, err)
	// rewrite the IHDR dimensions and checksum to claim 8000x8000
	binary.BigEndian.PutUint32(raw[16:20], 8000)
	binary.BigEndian.PutUint32(raw[20:24], 8000)
	binary.BigEndian.PutUint32(raw[29:33], crc32.ChecksumIEEE(raw[12:29]))

	resp := f.postJSON(t, Payload{Image: canvas.EncodeDataURL(raw)})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, canvas.White, f.latest(t).NRGBAAt(0, 0))
}

func TestUpload_ConcurrentUploadsAndDecayAllLand(t *testing.T) {
	const blocks = 16
	f := newFixture(t, 2*blocks, 2, canvas.PolicyCrop)
	d := canvas.NewDecayer(f.store, time.Second, 0.04)

	wg := new(sync.WaitGroup)
	statuses := make(chan int, blocks)
	tickErrs := make(chan error, blocks)
	for i := 0; i < blocks; i++ {
		overlay := image.NewNRGBA(image.Rect(0, 0, 2*blocks, 2))
		for y := 0; y < 2; y++ {
			for x := 2 * i; x < 2*i+2; x++ {
				overlay.SetNRGBA(x, y, color.NRGBA{A: 255})
			}
		}
		raw, err := canvas.EncodePNG(overlay)
		require.NoError(t, err)
		body, err := json.Marshal(Payload{Image: canvas.EncodeDataURL(raw)})
		require.NoError(t, err)

		wg.Add(2)
		go func() {
			defer wg.Done()
			resp, err := http.Post(f.http.URL+"/upload", "application/json", bytes.NewReader(body))
			if err != nil {
				statuses <- 0
				return
			}
			resp.Body.Close()
			statuses <- resp.StatusCode
		}()
		go func() {
			defer wg.Done()
			tickErrs <- d.Tick(context.Background())
		}()
	}
	wg.Wait()
	close(statuses)
	close(tickErrs)

	for status := range statuses {
		assert.Equal(t, http.StatusOK, status)
	}
	for err := range tickErrs {
		assert.NoError(t, err)
	}

	// one upload and one tick per block: 1 + 2*blocks writes, none lost
	assert.Equal(t, uint64(1+2*blocks), f.store.Version())
	img := f.latest(t)
	for i := 0; i < blocks; i++ {
		for y := 0; y < 2; y++ {
			for x := 2 * i; x < 2*i+2; x++ {
				// at most every tick ran after this block landed; black fades to ~140 after 16 ticks
				assert.Less(t, img.NRGBAAt(x, y).R, uint8(200), "block %d lost at %d,%d", i, x, y)
			}
		}
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, 4, 3, canvas.PolicyCrop)
	resp, err := http.Get(f.http.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Version uint64 `json:"version"`
		Width   int    `json:"width"`
		Height  int    `json:"height"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, uint64(1), body.Version)
	assert.Equal(t, 4, body.Width)
	assert.Equal(t, 3, body.Height)
}

func TestSync_PushesNewVersions(t *testing.T) {
	f := newFixture(t, 4, 4, canvas.PolicyCrop)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(f.http.URL, "http")+"/sync", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first Payload
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, uint64(1), first.Version)

	require.Equal(t, http.StatusOK, f.upload(t, solid(4, 4, color.NRGBA{A: 255})).StatusCode)

	var second Payload
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, uint64(2), second.Version)
	raw, err := canvas.DecodeDataURL(second.Image)
	require.NoError(t, err)
	img, err := canvas.DecodeOverlay(raw)
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{A: 255}, img.NRGBAAt(0, 0))
}
