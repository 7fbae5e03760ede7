package canvas

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"strings"
)

const DataURLPrefix = "data:image/png;base64,"

func EncodeDataURL(raw []byte) string {
	return DataURLPrefix + base64.StdEncoding.EncodeToString(raw)
}

// DecodeDataURL returns the bytes behind a PNG data URL. A bare base64 string
// without the prefix is accepted too.
func DecodeDataURL(s string) ([]byte, error) {
	if s == "" {
		return nil, &DecodeError{Err: fmt.Errorf("empty image payload")}
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), DataURLPrefix))
	if err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("failed to base64 decode: %w", err)}
	}
	return raw, nil
}

// DecodeOverlay decodes PNG bytes submitted by a client.
func DecodeOverlay(raw []byte) (*image.NRGBA, error) {
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return ToNRGBA(img), nil
}

// DecodeOverlayWithin decodes PNG bytes submitted by a client after checking,
// from the header alone, that the image is no larger than maxWidth x maxHeight.
func DecodeOverlayWithin(raw []byte, maxWidth, maxHeight int) (*image.NRGBA, error) {
	cfg, err := png.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	if cfg.Width > maxWidth || cfg.Height > maxHeight {
		return nil, &DecodeError{Err: fmt.Errorf("overlay is %dx%d, at most %dx%d is accepted", cfg.Width, cfg.Height, maxWidth, maxHeight)}
	}
	return DecodeOverlay(raw)
}

func EncodePNG(img image.Image) ([]byte, error) {
	var buff bytes.Buffer
	if err := png.Encode(&buff, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buff.Bytes(), nil
}

func decodePNG(raw []byte) (*image.NRGBA, error) {
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	return ToNRGBA(img), nil
}
