package imageproc

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
)

// Pad scales src to fit inside a targetW x targetH canvas, preserving aspect
// ratio, and centers it on a white background. Used for cover images with a
// fixed 256x256 target.
func Pad(src image.Image, targetW, targetH int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	sb := src.Bounds()
	scale := min(float64(targetW)/float64(sb.Dx()), float64(targetH)/float64(sb.Dy()))
	w := int(float64(sb.Dx()) * scale)
	h := int(float64(sb.Dy()) * scale)
	x := (targetW - w) / 2
	y := (targetH - h) / 2

	draw.CatmullRom.Scale(dst, image.Rect(x, y, x+w, y+h), src, sb, draw.Over, nil)
	return dst
}

// PadToAspect pads src out to the given width/height ratio without scaling,
// preserving the primary dimensions. Used for article card images.
func PadToAspect(src image.Image, aspect float64) *image.RGBA {
	sb := src.Bounds()
	w, h := sb.Dx(), sb.Dy()

	targetW, targetH := w, h
	if float64(w)/float64(h) < aspect {
		targetW = int(float64(h) * aspect)
	} else {
		targetH = int(float64(w) / aspect)
	}

	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	x := (targetW - w) / 2
	y := (targetH - h) / 2
	draw.Draw(dst, image.Rect(x, y, x+w, y+h), src, sb.Min, draw.Over)
	return dst
}

// Encode serializes img in the named format ("png" or "jpeg").
func Encode(img image.Image, format string) ([]byte, string, error) {
	var buf bytes.Buffer
	switch format {
	case "png":
		if err := png.Encode(&buf, img); err != nil {
			return nil, "", fmt.Errorf("Encode png: %w", err)
		}
		return buf.Bytes(), "image/png", nil
	case "jpeg", "jpg":
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
			return nil, "", fmt.Errorf("Encode jpeg: %w", err)
		}
		return buf.Bytes(), "image/jpeg", nil
	default:
		return nil, "", fmt.Errorf("Encode: unsupported format %q", format)
	}
}
