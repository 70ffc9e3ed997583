package cropper

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// BandCropper removes the top of an image down to a crop line
type BandCropper struct {
	config CropConfig
}

// CropConfig holds configuration for band cropping
type CropConfig struct {
	// Materialize copies the kept band into a new NRGBA image. Without it
	// the result is a view onto the source image.
	Materialize bool
}

// New creates a new BandCropper with default configuration
func New() *BandCropper {
	return &BandCropper{
		config: CropConfig{
			Materialize: false,
		},
	}
}

// NewWithConfig creates a new BandCropper with custom configuration
func NewWithConfig(config CropConfig) *BandCropper {
	return &BandCropper{config: config}
}

// CropResult contains the result of a cropping operation
type CropResult struct {
	Image image.Image
	// Start is the first source row kept, which is also the number of
	// rows removed from the top.
	Start int
}

// EffectiveStart applies the margin to a crop line. The margin is not
// validated: a negative margin moves the start further down.
func EffectiveStart(cropLine, margin, height int) int {
	start := max(0, cropLine-margin)
	return min(start, height)
}

// Crop keeps the full-width band from max(0, cropLine-margin) to the bottom
func (c *BandCropper) Crop(img image.Image, cropLine, margin int) (CropResult, error) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if width == 0 || height == 0 {
		return CropResult{}, fmt.Errorf("invalid image dimensions")
	}

	start := EffectiveStart(cropLine, margin, height)
	rect := image.Rect(bounds.Min.X, bounds.Min.Y+start, bounds.Max.X, bounds.Max.Y)

	var out image.Image
	if c.config.Materialize {
		out = imaging.Crop(img, rect)
	} else {
		out = &croppedImage{original: img, bounds: rect}
	}

	return CropResult{
		Image: out,
		Start: start,
	}, nil
}

// croppedImage implements the image.Image interface for cropped images
type croppedImage struct {
	original image.Image
	bounds   image.Rectangle
}

func (c *croppedImage) ColorModel() color.Model {
	return c.original.ColorModel()
}

func (c *croppedImage) Bounds() image.Rectangle {
	return image.Rect(0, 0, c.bounds.Dx(), c.bounds.Dy())
}

func (c *croppedImage) At(x, y int) color.Color {
	pt := image.Point{x, y}
	if !pt.In(c.Bounds()) {
		return color.RGBA{}
	}
	return c.original.At(x+c.bounds.Min.X, y+c.bounds.Min.Y)
}
