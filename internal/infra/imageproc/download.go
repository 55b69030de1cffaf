// Package imageproc implements the article image pipeline: size-capped
// download, small-image rejection, canvas padding, and content-addressed
// upload. Decoder failures and malformed inputs drop only the offending
// article; they never terminate the run.
package imageproc

import (
	"bytes"
	"context"
	"fmt"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"today-feed/internal/infra/fetcher"
)

// maxImageBytes caps a single image download.
const maxImageBytes = 10 << 20 // 10MB

// Downloaded is one article image after the capped fetch.
type Downloaded struct {
	Data []byte
	// IsLarge marks images at least as big as the pad target on either
	// side; only these go through padding and recompression.
	IsLarge bool
}

// Downloader streams article images with the shared fetch primitive.
type Downloader struct {
	fetcher   *fetcher.Fetcher
	padTarget int
}

// NewDownloader creates an image Downloader. padTarget is the canvas edge in
// pixels at or above which (on either side) an image is considered large.
func NewDownloader(f *fetcher.Fetcher, padTarget int) *Downloader {
	return &Downloader{fetcher: f, padTarget: padTarget}
}

// Download fetches imgURL with the byte cap and classifies its size from the
// header alone (DecodeConfig does not decode pixel data).
func (d *Downloader) Download(ctx context.Context, imgURL string) (Downloaded, error) {
	data, err := d.fetcher.Fetch(ctx, imgURL, maxImageBytes)
	if err != nil {
		return Downloaded{}, fmt.Errorf("Download: %w", err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Downloaded{}, fmt.Errorf("Download %s: decode header: %w", imgURL, err)
	}

	return Downloaded{
		Data:    data,
		IsLarge: cfg.Width >= d.padTarget || cfg.Height >= d.padTarget,
	}, nil
}
