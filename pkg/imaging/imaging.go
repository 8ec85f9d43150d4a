// Package imaging holds the image plumbing shared by the face pipeline:
// decoding uploads, cropping, resizing, contrast adjustment and JPEG thumbnails.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // register PNG decoder
	"math"
	"strings"

	_ "golang.org/x/image/bmp"  // register BMP decoder
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register WEBP decoder
)

// ErrEmptyImage is returned when no image data was supplied.
var ErrEmptyImage = errors.New("empty image data")

// ErrInvalidEncoding is returned when a base64 payload cannot be decoded.
var ErrInvalidEncoding = errors.New("invalid base64 image data")

// DecodeDataURL accepts either a data URL ("data:image/jpeg;base64,...")
// or a bare base64 string and returns the raw bytes.
func DecodeDataURL(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmptyImage
	}
	if strings.HasPrefix(s, "data:") {
		idx := strings.IndexByte(s, ',')
		if idx < 0 {
			return nil, ErrInvalidEncoding
		}
		s = s[idx+1:]
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		// some clients strip the padding
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
		}
	}
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	return data, nil
}

// DefaultMaxPixels bounds the size of a decoded image (about 6000x4000).
const DefaultMaxPixels = 24_000_000

// ErrTooLarge is returned when an image declares more pixels than allowed.
var ErrTooLarge = errors.New("image dimensions exceed limit")

// Decode decodes JPEG, PNG, BMP or WEBP bytes and returns the image as NRGBA
// with its origin at (0,0). Images above DefaultMaxPixels are rejected.
func Decode(data []byte) (*image.NRGBA, error) {
	return DecodeLimited(data, DefaultMaxPixels)
}

// DecodeLimited is Decode with a caller-supplied pixel budget. The header is
// checked before any pixel data is decoded. maxPixels <= 0 means
// DefaultMaxPixels.
func DecodeLimited(data []byte, maxPixels int) (*image.NRGBA, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if format == "" {
		return nil, fmt.Errorf("failed to decode image: unknown format")
	}
	return ToNRGBA(img), nil
}

// ToNRGBA copies img into a new NRGBA image anchored at the origin.
func ToNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// Crop returns a copy of the region r of img. r is clipped to the image bounds.
func Crop(img image.Image, r image.Rectangle) *image.NRGBA {
	r = r.Intersect(img.Bounds())
	dst := image.NewNRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}

// Resize scales img to exactly w×h using a Catmull-Rom (bicubic) kernel.
func Resize(img image.Image, w, h int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// Luma returns the ITU-R 601-2 luma of an RGB triple, truncated like an 8-bit L conversion.
func Luma(r, g, b uint8) uint8 {
	return uint8((uint32(r)*299 + uint32(g)*587 + uint32(b)*114) / 1000)
}

// EnhanceContrast blends every pixel away from the mean luma by factor.
// factor 1 returns an identical copy; values are clipped to [0,255].
func EnhanceContrast(img *image.NRGBA, factor float64) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(b)

	var sum float64
	n := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i := img.PixOffset(x, y)
			p := img.Pix[i : i+4 : i+4]
			sum += float64(Luma(p[0], p[1], p[2]))
			n++
		}
	}
	if n == 0 {
		return dst
	}
	mean := math.Floor(sum/float64(n) + 0.5)

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i := img.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				v := mean + factor*(float64(img.Pix[i+c])-mean)
				dst.Pix[i+c] = clamp8(v)
			}
			dst.Pix[i+3] = img.Pix[i+3]
		}
	}
	return dst
}

func clamp8(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// EncodeJPEG encodes img as a JPEG with the given quality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeBase64JPEG encodes img as JPEG and returns it base64 encoded.
func EncodeBase64JPEG(img image.Image) (string, error) {
	data, err := EncodeJPEG(img, 90)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Stats holds the mean and population standard deviation of all RGB samples.
type Stats struct {
	Brightness float64
	Contrast   float64
}

// RGBStats computes brightness (mean) and contrast (std) over every RGB sample of img.
func RGBStats(img *image.NRGBA) Stats {
	b := img.Bounds()
	n := float64(b.Dx() * b.Dy() * 3)
	if n == 0 {
		return Stats{}
	}
	var sum, sumSq float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i := img.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				v := float64(img.Pix[i+c])
				sum += v
				sumSq += v * v
			}
		}
	}
	mean := sum / n
	variance := sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	return Stats{Brightness: mean, Contrast: math.Sqrt(variance)}
}
