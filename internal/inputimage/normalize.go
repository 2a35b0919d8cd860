// Package inputimage prepares user-supplied conditioning images for the
// upstream API: it accepts jpeg, png, gif, webp and avif, shrinks oversized
// images and hands back a bare base64 payload.
package inputimage

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/disintegration/imaging"
	_ "github.com/gen2brain/avif"
	_ "golang.org/x/image/webp"

	"fluxstudio/internal/domain"
)

var (
	ErrEmpty       = errors.New("inputimage: empty image")
	ErrTooLarge    = errors.New("inputimage: image exceeds size limit")
	ErrUnsupported = errors.New("inputimage: unsupported image")
)

// Options bound the accepted input.
type Options struct {
	// MaxBytes caps the encoded input size; zero disables the check.
	MaxBytes int64
	// MaxMegapixels triggers a downscale above this pixel count; zero keeps
	// the original dimensions.
	MaxMegapixels int
	JPEGQuality   int
	// MaxDecodeMegapixels rejects images whose header declares more pixels
	// before any pixel data is decoded. Zero selects DefaultMaxDecodeMegapixels.
	MaxDecodeMegapixels int
}

// DefaultMaxDecodeMegapixels bounds the pixel buffer a single upload may
// allocate while decoding.
const DefaultMaxDecodeMegapixels = 50

// Image is a normalised conditioning image.
type Image struct {
	Base64  string
	Format  string
	Width   int
	Height  int
	Resized bool
}

// FromBase64 decodes a base64 payload, with or without a data URL prefix,
// and normalises it.
func FromBase64(payload string, opts Options) (*Image, error) {
	payload = domain.StripDataURL(strings.TrimSpace(payload))
	if payload == "" {
		return nil, ErrEmpty
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(payload); err != nil {
			return nil, fmt.Errorf("%w: invalid base64: %v", ErrUnsupported, err)
		}
	}
	return Normalize(data, opts)
}

// Normalize validates raw image bytes. JPEG and PNG inputs within the pixel
// budget are passed through untouched; anything else is re-encoded.
func Normalize(data []byte, opts Options) (*Image, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	if opts.MaxBytes > 0 && int64(len(data)) > opts.MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	decodeLimit := opts.MaxDecodeMegapixels
	if decodeLimit <= 0 {
		decodeLimit = DefaultMaxDecodeMegapixels
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > int64(decodeLimit)*1_000_000 {
		return nil, fmt.Errorf("%w: %dx%d pixels", ErrTooLarge, cfg.Width, cfg.Height)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}

	bounds := img.Bounds()
	out := &Image{Format: format, Width: bounds.Dx(), Height: bounds.Dy()}
	if opts.MaxMegapixels > 0 {
		limit := opts.MaxMegapixels * 1_000_000
		if out.Width*out.Height > limit {
			img = downscale(img, limit)
			out.Width, out.Height = img.Bounds().Dx(), img.Bounds().Dy()
			out.Resized = true
		}
	}

	if !out.Resized && (format == "jpeg" || format == "png") {
		out.Base64 = base64.StdEncoding.EncodeToString(data)
		return out, nil
	}

	target, encodeOpts := imaging.JPEG, []imaging.EncodeOption{imaging.JPEGQuality(quality(opts.JPEGQuality))}
	out.Format = "jpeg"
	if format == "png" || format == "gif" || hasAlpha(img) {
		target, encodeOpts = imaging.PNG, nil
		out.Format = "png"
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, target, encodeOpts...); err != nil {
		return nil, fmt.Errorf("inputimage: encode %s: %w", out.Format, err)
	}
	out.Base64 = base64.StdEncoding.EncodeToString(buf.Bytes())
	return out, nil
}

func downscale(img image.Image, maxPixels int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	for w*h > maxPixels {
		w = w * 9 / 10
		h = h * 9 / 10
	}
	return imaging.Fit(img, max(w, 1), max(h, 1), imaging.Lanczos)
}

func hasAlpha(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	return false
}

func quality(q int) int {
	if q <= 0 || q > 100 {
		return 90
	}
	return q
}
