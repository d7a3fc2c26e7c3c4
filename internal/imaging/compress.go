// Package imaging prepares chat photos for upload: decoding, optional
// downscaling and quality-stepping JPEG compression under a size cap.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // register PNG decoder
	"io"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register WebP decoder
)

// ErrEncodingTooLarge is returned when the image exceeds the size cap even at
// the lowest quality.
var ErrEncodingTooLarge = errors.New("encoded image exceeds size limit")

// ErrTooManyPixels is returned by Decode for images whose header declares
// more than MaxDecodePixels.
var ErrTooManyPixels = errors.New("image dimensions exceed decode limit")

const (
	// MaxEncodedSize is the upload cap for attachments.
	MaxEncodedSize = 10 << 20

	// MaxDecodePixels bounds width*height before pixels are allocated.
	MaxDecodePixels = 40_000_000

	// Quality is expressed in tenths: 0.7 down to 0.1.
	startQualityTenths = 7
	floorQualityTenths = 1
)

// EncodeFunc encodes img at quality in (0, 1].
type EncodeFunc func(img image.Image, quality float64) ([]byte, error)

// Result is a successfully compressed image.
type Result struct {
	Data     []byte
	Quality  float64
	MIMEType string
}

// Compressor steps the encoding quality down until the output fits.
type Compressor struct {
	Encode  EncodeFunc
	MaxSize int
	// MaxDimension bounds the longer edge before encoding. Zero disables.
	MaxDimension int
}

// NewCompressor creates a JPEG compressor with the 10 MiB cap.
func NewCompressor(maxDimension int) *Compressor {
	return &Compressor{
		Encode:       EncodeJPEG,
		MaxSize:      MaxEncodedSize,
		MaxDimension: maxDimension,
	}
}

// Compress encodes img at 0.7, 0.6, ... 0.1 and returns the first encoding
// whose size is within the cap.
func (c *Compressor) Compress(img image.Image) (*Result, error) {
	if c.MaxDimension > 0 {
		img = Fit(img, c.MaxDimension)
	}

	var lastSize int
	for tenths := startQualityTenths; tenths >= floorQualityTenths; tenths-- {
		quality := float64(tenths) / 10
		data, err := c.Encode(img, quality)
		if err != nil {
			return nil, fmt.Errorf("encode at quality %.1f: %w", quality, err)
		}
		if len(data) <= c.MaxSize {
			return &Result{Data: data, Quality: quality, MIMEType: "image/jpeg"}, nil
		}
		lastSize = len(data)
	}
	return nil, fmt.Errorf("%w: %d bytes at quality %.1f, limit %d",
		ErrEncodingTooLarge, lastSize, float64(floorQualityTenths)/10, c.MaxSize)
}

// EncodeJPEG encodes img as JPEG with quality mapped onto 1..100.
func EncodeJPEG(img image.Image, quality float64) ([]byte, error) {
	q := int(quality*100 + 0.5)
	if q < 1 {
		q = 1
	}
	if q > 100 {
		q = 100
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads a JPEG, PNG or WebP image. The header is checked against
// MaxDecodePixels first so a small file cannot declare a huge canvas.
func Decode(r io.Reader) (image.Image, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image: %w", err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxDecodePixels {
		return nil, "", fmt.Errorf("%w: %dx%d", ErrTooManyPixels, cfg.Width, cfg.Height)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return img, format, nil
}

// Fit scales img down so that its longer edge is at most maxDim, keeping the
// aspect ratio. Smaller images are returned as is.
func Fit(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}

	newW, newH := maxDim, maxDim
	if w > h {
		newH = h * maxDim / w
	} else {
		newW = w * maxDim / h
	}
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
