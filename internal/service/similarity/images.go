package similarity

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/hashicorp/go-retryablehttp"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrInvalidImage 表示载荷不是可解码的图片，对应 400。
	ErrInvalidImage = errors.New("invalid image")
	// ErrDownload 表示图片 URL 无法下载，对应 502。
	ErrDownload = errors.New("unable to fetch image resources")
)

// MaxImageBytes bounds inline and downloaded images.
const MaxImageBytes = 10 << 20

// Image 是经过校验的图片数据。
type Image struct {
	Data   []byte
	MIME   string
	Width  int
	Height int
}

// DataURI 以 data URI 形式编码图片，供多模态模型使用。
func (img Image) DataURI() string {
	return "data:" + img.MIME + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// Base64 returns the standard base64 encoding of the raw bytes.
func (img Image) Base64() string {
	return base64.StdEncoding.EncodeToString(img.Data)
}

// DecodeImage accepts plain base64 or a data URI and validates the result.
func DecodeImage(raw string) (Image, error) {
	payload := strings.TrimSpace(raw)
	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 || !strings.Contains(payload[:comma], ";base64") {
			return Image{}, fmt.Errorf("%w: malformed data uri", ErrInvalidImage)
		}
		payload = payload[comma+1:]
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// 兼容 URL-safe 与无填充编码
		data, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return Image{}, fmt.Errorf("%w: payload is not base64", ErrInvalidImage)
		}
	}
	return ValidateImage(data)
}

// ValidateImage sniffs the MIME type and decodes the image header.
func ValidateImage(data []byte) (Image, error) {
	if len(data) == 0 {
		return Image{}, fmt.Errorf("%w: empty payload", ErrInvalidImage)
	}
	if len(data) > MaxImageBytes {
		return Image{}, fmt.Errorf("%w: payload exceeds %d bytes", ErrInvalidImage, MaxImageBytes)
	}

	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return Image{}, fmt.Errorf("%w: detected %s", ErrInvalidImage, mtype.String())
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Image{}, fmt.Errorf("%w: %s cannot be decoded: %v", ErrInvalidImage, mtype.String(), err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return Image{}, fmt.Errorf("%w: %s has zero size", ErrInvalidImage, format)
	}

	return Image{
		Data:   data,
		MIME:   mtype.String(),
		Width:  cfg.Width,
		Height: cfg.Height,
	}, nil
}

// Downloader 并发下载两张图片。
type Downloader struct {
	client *retryablehttp.Client
}

// NewDownloader uses client for GET requests with retry.
func NewDownloader(client *retryablehttp.Client) *Downloader {
	return &Downloader{client: client}
}

// FetchPair downloads both images concurrently; the first failure cancels the other.
func (d *Downloader) FetchPair(ctx context.Context, firstURL, secondURL string) (Image, Image, error) {
	var first, second Image

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		img, err := d.fetch(gctx, firstURL)
		first = img
		return err
	})
	g.Go(func() error {
		img, err := d.fetch(gctx, secondURL)
		second = img
		return err
	})
	if err := g.Wait(); err != nil {
		return Image{}, Image{}, err
	}
	return first, second, nil
}

func (d *Downloader) fetch(ctx context.Context, url string) (Image, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrDownload, err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrDownload, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Image{}, fmt.Errorf("%w: %s returned status %d", ErrDownload, url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageBytes+1))
	if err != nil {
		return Image{}, fmt.Errorf("%w: read %s: %v", ErrDownload, url, err)
	}
	return ValidateImage(data)
}
