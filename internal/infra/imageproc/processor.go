package imageproc

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"strings"

	"today-feed/internal/infra/objectstore"
)

// Processor pads, recompresses, and uploads article images, returning the
// CDN URL the article is rewritten to. Keys are content-addressed by the
// SHA-256 of the encoded output, so concurrent uploads of the same image
// converge on one object.
type Processor struct {
	uploader objectstore.Uploader
	bucket   string
	// keyFormat is the object key template, e.g. "brave-today/article_images/%s".
	keyFormat string
	cdnBase   string
	format    string
	// width/height select the fixed cover canvas; zero means pad to aspect
	// preserving the primary dimensions.
	width, height int
	aspect        float64
}

// NewCoverProcessor builds the 256x256 cover-image processor.
func NewCoverProcessor(uploader objectstore.Uploader, bucket, cdnBase string) *Processor {
	return &Processor{
		uploader:  uploader,
		bucket:    bucket,
		keyFormat: "brave-today/cover_images/%s",
		cdnBase:   cdnBase,
		format:    "png",
		width:     256,
		height:    256,
	}
}

// NewArticleProcessor builds the article-card processor, which preserves the
// primary dimensions and pads to a 3:2 aspect.
func NewArticleProcessor(uploader objectstore.Uploader, bucket, cdnBase string) *Processor {
	return &Processor{
		uploader:  uploader,
		bucket:    bucket,
		keyFormat: "brave-today/article_images/%s",
		cdnBase:   cdnBase,
		format:    "jpeg",
		aspect:    1.5,
	}
}

// Process decodes data, pads it, uploads the result, and returns the CDN
// URL. Malformed images surface as errors; panics inside the decoder are
// recovered and reported the same way so a hostile input cannot take the run
// down.
func (p *Processor) Process(ctx context.Context, data []byte) (cdnURL string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("Process: decoder panic: %v", r)
		}
	}()

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("Process: decode: %w", err)
	}

	var padded image.Image
	if p.width > 0 && p.height > 0 {
		padded = Pad(src, p.width, p.height)
	} else {
		padded = PadToAspect(src, p.aspect)
	}

	encoded, contentType, err := Encode(padded, p.format)
	if err != nil {
		return "", err
	}

	ext := p.format
	if ext == "jpg" {
		ext = "jpeg"
	}
	sum := sha256.Sum256(encoded)
	name := hex.EncodeToString(sum[:]) + "." + ext
	key := fmt.Sprintf(p.keyFormat, name)

	if err := p.uploader.Upload(ctx, p.bucket, key, encoded, contentType); err != nil {
		return "", fmt.Errorf("Process: %w", err)
	}

	return strings.TrimSuffix(p.cdnBase, "/") + "/" + key, nil
}
