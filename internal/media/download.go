package media

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// DefaultMaxImageSize is the default maximum image size (10MB)
const DefaultMaxImageSize = 10 * 1024 * 1024

// Downloader fetches images from user supplied URLs.
type Downloader struct {
	client  *resty.Client
	maxSize int64
}

// NewDownloader creates a Downloader with no timeout of its own; the
// transport's failure or ctx ends a slow fetch.
func NewDownloader() *Downloader {
	return &Downloader{
		client:  resty.New().SetDebug(false),
		maxSize: DefaultMaxImageSize,
	}
}

// WithTimeout sets a timeout for downloads. Zero disables it.
func (d *Downloader) WithTimeout(timeout time.Duration) *Downloader {
	d.client.SetTimeout(timeout)
	return d
}

// WithMaxSize sets a custom maximum file size.
func (d *Downloader) WithMaxSize(maxSize int64) *Downloader {
	if maxSize > 0 {
		d.maxSize = maxSize
	}
	return d
}

// Fetch downloads the image at imageURL and returns it with its media type.
// The Content-Type header decides the type; when missing, the body is sniffed.
func (d *Downloader) Fetch(ctx context.Context, imageURL string) (EncodedImage, error) {
	log.Info().Str("url", imageURL).Msg("downloading image")

	res, err := d.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(imageURL)
	if err != nil {
		return EncodedImage{}, fmt.Errorf("failed to download image: %w", err)
	}
	body := res.RawBody()
	defer body.Close()

	if !res.IsSuccess() {
		return EncodedImage{}, fmt.Errorf("download failed: status %d", res.StatusCode())
	}

	contentType := res.Header().Get("Content-Type")
	if contentType != "" && !IsImageType(normalizeMediaType(contentType)) {
		return EncodedImage{}, fmt.Errorf("%w: got content type %s", ErrNotImage, contentType)
	}

	if res.RawResponse != nil && res.RawResponse.ContentLength > d.maxSize {
		return EncodedImage{}, fmt.Errorf("image too large: %d bytes exceeds limit of %d bytes", res.RawResponse.ContentLength, d.maxSize)
	}

	// LimitReader enforces the limit even if Content-Length is missing or wrong
	data, err := io.ReadAll(io.LimitReader(body, d.maxSize+1))
	if err != nil {
		return EncodedImage{}, fmt.Errorf("failed to read image data: %w", err)
	}
	if int64(len(data)) > d.maxSize {
		return EncodedImage{}, fmt.Errorf("image too large: exceeds limit of %d bytes", d.maxSize)
	}
	if len(data) == 0 {
		return EncodedImage{}, fmt.Errorf("download returned an empty body")
	}

	return FromFile(data, contentType)
}
