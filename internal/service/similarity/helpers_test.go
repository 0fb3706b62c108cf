package similarity

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func testImage(t *testing.T, c color.Color) Image {
	t.Helper()
	img, err := ValidateImage(pngBytes(t, 4, 4, c))
	if err != nil {
		t.Fatalf("validate test image: %v", err)
	}
	return img
}

func testClient() *retryablehttp.Client {
	c := NewHTTPClient(2 * time.Second)
	c.RetryMax = 0
	return c
}

// stubStrategy returns a fixed outcome, error or panic.
type stubStrategy struct {
	name    string
	outcome Outcome
	err     error
	panics  bool
	delay   time.Duration
}

func (s stubStrategy) Name() string { return s.name }

func (s stubStrategy) Compare(ctx context.Context, _, _ Image) (Outcome, error) {
	if s.panics {
		panic("boom")
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		}
	}
	return s.outcome, s.err
}
