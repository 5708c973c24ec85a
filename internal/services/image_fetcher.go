package services

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
	"golang.org/x/time/rate"

	"github.com/codyseavey/tcg-scanner/backend/internal/metrics"
)

const (
	imageDownloadTimeout = 30 * time.Second
	maxImageBytes        = 5 * 1024 * 1024
)

// ErrNoImage is returned for catalog records without an image reference.
var ErrNoImage = errors.New("record has no image reference")

// ImageFetcher resolves a catalog image reference to a decoded image.
type ImageFetcher interface {
	Fetch(ctx context.Context, ref string) (image.Image, error)
}

// FetchError tells download failures apart from decode failures so index
// builds can count them separately.
type FetchError struct {
	Ref    string
	Decode bool
	Err    error
}

func (e *FetchError) Error() string {
	if e.Decode {
		return fmt.Sprintf("decoding %s: %v", e.Ref, e.Err)
	}
	return fmt.Sprintf("fetching %s: %v", e.Ref, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// HTTPImageFetcher loads http(s) references over the network, throttled by a
// token bucket, and anything else from the local filesystem. SVG references
// are rasterized.
type HTTPImageFetcher struct {
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPImageFetcher creates a fetcher allowing rps downloads per second.
// rps <= 0 disables throttling.
func NewHTTPImageFetcher(rps float64) *HTTPImageFetcher {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &HTTPImageFetcher{
		client:  &http.Client{Timeout: imageDownloadTimeout},
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (f *HTTPImageFetcher) Fetch(ctx context.Context, ref string) (image.Image, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, ErrNoImage
	}
	metrics.FingerprintFetchesTotal.Inc()

	if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
		return openLocalImage(ref)
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, &FetchError{Ref: ref, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, "GET", ref, nil)
	if err != nil {
		return nil, &FetchError{Ref: ref, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{Ref: ref, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{Ref: ref, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	body := io.LimitReader(resp.Body, maxImageBytes)
	var img image.Image
	if isSVG(ref, resp.Header.Get("Content-Type")) {
		img, err = rasterizeSVG(body)
	} else {
		img, _, err = image.Decode(body)
	}
	if err != nil {
		return nil, &FetchError{Ref: ref, Decode: true, Err: err}
	}
	return img, nil
}

func openLocalImage(path string) (image.Image, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &FetchError{Ref: path, Err: err}
	}

	if !isSVG(path, "") {
		img, err := imaging.Open(path, imaging.AutoOrientation(true))
		if err != nil {
			return nil, &FetchError{Ref: path, Decode: true, Err: err}
		}
		return img, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &FetchError{Ref: path, Err: err}
	}
	defer f.Close()

	img, err := rasterizeSVG(io.LimitReader(f, maxImageBytes))
	if err != nil {
		return nil, &FetchError{Ref: path, Decode: true, Err: err}
	}
	return img, nil
}
