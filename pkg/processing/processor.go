package processing

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

// Options controls how images are decoded and encoded
type Options struct {
	// AutoOrient applies the EXIF orientation tag while decoding.
	AutoOrient bool
	// JPEGQuality is used for .jpg/.jpeg outputs (1-100).
	JPEGQuality int
	// PNGCompression is passed to the PNG encoder.
	PNGCompression png.CompressionLevel
}

// DefaultOptions returns the encoding defaults
func DefaultOptions() Options {
	return Options{
		AutoOrient:     true,
		JPEGQuality:    95,
		PNGCompression: png.DefaultCompression,
	}
}

// Processor handles image processing operations
type Processor struct {
	opts Options
}

// NewProcessor creates a new image processor with default options
func NewProcessor() *Processor {
	return &Processor{opts: DefaultOptions()}
}

// NewProcessorWithOptions creates an image processor with custom options
func NewProcessorWithOptions(opts Options) *Processor {
	return &Processor{opts: opts}
}

// LoadImage decodes an image file
func (p *Processor) LoadImage(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(p.opts.AutoOrient))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

// SaveImage encodes img to path in the format implied by its extension
func (p *Processor) SaveImage(img image.Image, path string) error {
	if _, err := imaging.FormatFromFilename(path); err != nil {
		return err
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return fmt.Errorf("cannot encode empty %dx%d image", b.Dx(), b.Dy())
	}
	return imaging.Save(img, path,
		imaging.JPEGQuality(p.opts.JPEGQuality),
		imaging.PNGCompressionLevel(p.opts.PNGCompression),
	)
}

// SaveImageAs saves an image with an explicit format and quality
func (p *Processor) SaveImageAs(img image.Image, path, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		opts := &webp.Options{Lossless: lossless, Quality: float32(quality)}
		return webp.Encode(f, img, opts)
	case "png":
		return imaging.Save(img, path)
	default: // jpg/jpeg
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	}
}

// CopyFile copies src to dst byte for byte
func (p *Processor) CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

// PrepareImageForModel shrinks img to fit within maxDim on its long side
// and returns it base64-encoded as JPEG, or PNG when format is "png"
func (p *Processor) PrepareImageForModel(img image.Image, format string, maxDim int, quality int) (string, error) {
	if b := img.Bounds(); maxDim > 0 && max(b.Dx(), b.Dy()) > maxDim {
		img = imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	}

	enc := imaging.JPEG
	if strings.EqualFold(format, "png") {
		enc = imaging.PNG
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, enc,
		imaging.JPEGQuality(quality),
		imaging.PNGCompressionLevel(png.BestCompression),
	); err != nil {
		return "", fmt.Errorf("failed to encode image for model: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// PackRGB flattens an image into tightly packed 8-bit RGB rows
func PackRGB(img image.Image) []byte {
	nrgba := imaging.Clone(img)
	w, h := nrgba.Bounds().Dx(), nrgba.Bounds().Dy()
	out := make([]byte, 0, w*h*3)
	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		for x := 0; x < w*4; x += 4 {
			out = append(out, row[x], row[x+1], row[x+2])
		}
	}
	return out
}
