package imageproc

import (
	"bytes"
	"fmt"
	"image"
)

// minImageSide is the dimension floor; images with every side below it are
// icons or tracking pixels, not covers.
const minImageSide = 50

// CheckSize decodes the image header and reports whether the image is large
// enough to serve as an article cover.
func CheckSize(data []byte) (bool, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return false, fmt.Errorf("CheckSize: %w", err)
	}
	if cfg.Width < minImageSide && cfg.Height < minImageSide {
		return false, nil
	}
	return true, nil
}
