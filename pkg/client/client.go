package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"

	"github.com/astromechza/decaying-canvas/pkg/api"
	"github.com/astromechza/decaying-canvas/pkg/canvas"
)

// Client talks to a canvas server the same way the browser front-end does.
type Client struct {
	BaseURL *url.URL
	HTTP    *http.Client
}

func New(rawURL string) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	return &Client{BaseURL: u, HTTP: http.DefaultClient}, nil
}

// Latest fetches and decodes the current shared canvas.
func (c *Client) Latest(ctx context.Context) (*image.NRGBA, uint64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL.JoinPath("latest").String(), nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	var payload api.Payload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, 0, fmt.Errorf("failed to decode body: %w", err)
	}
	img, err := decodePayload(payload)
	if err != nil {
		return nil, 0, err
	}
	return img, payload.Version, nil
}

// Upload submits an overlay to be composited onto the shared canvas.
func (c *Client) Upload(ctx context.Context, overlay image.Image) error {
	raw, err := canvas.EncodePNG(overlay)
	if err != nil {
		return err
	}
	body, err := json.Marshal(api.Payload{Image: canvas.EncodeDataURL(raw)})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL.JoinPath("upload").String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}

// Watch connects to the push endpoint and calls fn for every snapshot until
// ctx is cancelled or the connection fails.
func (c *Client) Watch(ctx context.Context, fn func(img *image.NRGBA, version uint64)) error {
	u := c.BaseURL.JoinPath("sync")
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to dial: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		var payload api.Payload
		if err := conn.ReadJSON(&payload); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read message: %w", err)
		}
		img, err := decodePayload(payload)
		if err != nil {
			slog.Error("skipping undecodable snapshot", "version", payload.Version, "err", err)
			continue
		}
		fn(img, payload.Version)
	}
}

func decodePayload(payload api.Payload) (*image.NRGBA, error) {
	raw, err := canvas.DecodeDataURL(payload.Image)
	if err != nil {
		return nil, err
	}
	return canvas.DecodeOverlay(raw)
}
