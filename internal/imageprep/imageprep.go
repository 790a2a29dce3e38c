// Package imageprep validates uploaded images and shrinks them before they are
// sent to the scene classifier.
package imageprep

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"net/http"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/StarfishJ/SceneSound/internal/core/domain"
)

var (
	ErrEmpty         = errors.New("imageprep: empty image")
	ErrTooLarge      = errors.New("imageprep: image exceeds upload limit")
	ErrUnsupported   = errors.New("imageprep: unsupported image type")
	ErrUndecodable   = errors.New("imageprep: image could not be decoded")
	ErrTooManyPixels = errors.New("imageprep: image dimensions exceed pixel limit")
)

var supportedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// Options configures a Preparer. Zero fields take the defaults below.
type Options struct {
	MaxUploadBytes int64
	TargetBytes    int64
	MaxDimension   int
	JPEGQuality    int
	// MaxPixels bounds width*height before the image is decoded.
	MaxPixels int64
}

const (
	defaultMaxUploadBytes = 5 << 20
	defaultTargetBytes    = 2 << 20
	defaultMaxDimension   = 800
	defaultJPEGQuality    = 75
	defaultMaxPixels      = 40_000_000

	secondPassScale   = 0.8
	minSecondQuality  = 40
	secondQualityDrop = 15
)

// Image is a validated, possibly re-encoded upload.
type Image struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
	Resized     bool
}

type Preparer struct {
	opts Options
}

func New(opts Options) *Preparer {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.TargetBytes <= 0 {
		opts.TargetBytes = defaultTargetBytes
	}
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = defaultMaxDimension
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = defaultJPEGQuality
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = defaultMaxPixels
	}
	return &Preparer{opts: opts}
}

// Validate checks size and sniffed content type. The declared type is
// ignored; only the bytes decide. It returns the sniffed MIME type.
func (p *Preparer) Validate(data []byte) (string, error) {
	const op = "imageprep.Validate"
	if len(data) == 0 {
		return "", domain.Validation(op, http.StatusBadRequest, ErrEmpty)
	}
	if int64(len(data)) > p.opts.MaxUploadBytes {
		return "", domain.Validation(op, http.StatusRequestEntityTooLarge,
			fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, len(data), p.opts.MaxUploadBytes))
	}
	ct := http.DetectContentType(data)
	if !supportedTypes[ct] {
		return "", domain.Validation(op, http.StatusUnsupportedMediaType, fmt.Errorf("%w: %s", ErrUnsupported, ct))
	}
	return ct, nil
}

// Prepare validates data and downsamples it when either side exceeds the
// maximum dimension or the payload exceeds the target size. Images that need
// no work are returned unchanged.
func (p *Preparer) Prepare(data []byte) (Image, error) {
	ct, err := p.Validate(data)
	if err != nil {
		return Image{}, err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Image{}, domain.Validation("imageprep.Prepare", http.StatusBadRequest, fmt.Errorf("%w: %v", ErrUndecodable, err))
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > p.opts.MaxPixels {
		return Image{}, domain.Validation("imageprep.Prepare", http.StatusRequestEntityTooLarge,
			fmt.Errorf("%w: %dx%d > %d", ErrTooManyPixels, cfg.Width, cfg.Height, p.opts.MaxPixels))
	}

	maxDim := p.opts.MaxDimension
	if cfg.Width <= maxDim && cfg.Height <= maxDim && int64(len(data)) <= p.opts.TargetBytes {
		return Image{Data: data, ContentType: ct, Width: cfg.Width, Height: cfg.Height}, nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Image{}, domain.Validation("imageprep.Prepare", http.StatusBadRequest, fmt.Errorf("%w: %v", ErrUndecodable, err))
	}

	w, h := fit(cfg.Width, cfg.Height, maxDim)
	out, err := encode(src, w, h, p.opts.JPEGQuality)
	if err != nil {
		return Image{}, domain.Internal("imageprep.Prepare", err)
	}

	if int64(len(out)) > p.opts.TargetBytes {
		w2 := max(1, int(float64(w)*secondPassScale))
		h2 := max(1, int(float64(h)*secondPassScale))
		q2 := max(minSecondQuality, p.opts.JPEGQuality-secondQualityDrop)
		if smaller, err := encode(src, w2, h2, q2); err == nil && len(smaller) < len(out) {
			out, w, h = smaller, w2, h2
		}
	}

	return Image{Data: out, ContentType: "image/jpeg", Width: w, Height: h, Resized: true}, nil
}

// fit scales (w, h) so that the longer side is at most limit, preserving the
// aspect ratio.
func fit(w, h, limit int) (int, int) {
	longest := max(w, h)
	if longest <= limit {
		return w, h
	}
	scale := float64(limit) / float64(longest)
	return max(1, int(float64(w)*scale+0.5)), max(1, int(float64(h)*scale+0.5))
}

func encode(src image.Image, w, h, quality int) ([]byte, error) {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	// JPEG has no alpha; flatten onto white.
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("imageprep: encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
