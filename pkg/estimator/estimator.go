package estimator

import (
	"errors"
	"fmt"
	"math"

	"github.com/menta2k/browcrop/pkg/landmarks"
	"github.com/menta2k/browcrop/pkg/types"
)

// DefaultSafetyOffset keeps the eyebrows below the crop line
const DefaultSafetyOffset = 5

// ErrInvalidHeight is returned for images with no rows
var ErrInvalidHeight = errors.New("image height must be positive")

// EyeLevelEstimator turns a face's keypoints into a crop line
type EyeLevelEstimator struct {
	config Config
}

// Config holds configuration for crop line estimation
type Config struct {
	// SafetyOffset is subtracted from the topmost eyebrow row, in pixels.
	SafetyOffset int
}

// New creates an estimator with the default safety offset
func New() *EyeLevelEstimator {
	return &EyeLevelEstimator{config: Config{SafetyOffset: DefaultSafetyOffset}}
}

// NewWithConfig creates an estimator with custom configuration
func NewWithConfig(config Config) *EyeLevelEstimator {
	return &EyeLevelEstimator{config: config}
}

// Estimate is the result of a crop line computation
type Estimate struct {
	// CropLine is the pixel row above which content is discarded.
	CropLine int
	// BrowTop is the topmost eyebrow point in pixels.
	BrowTop float64
	// EyeTop is the topmost upper-eyelid point in pixels. It is reported
	// but does not influence CropLine.
	EyeTop float64
}

// Estimate computes the crop line for an image of the given height
func (e *EyeLevelEstimator) Estimate(kp types.Keypoints, layout landmarks.Layout, height int) (Estimate, error) {
	if height <= 0 {
		return Estimate{}, fmt.Errorf("%w: %d", ErrInvalidHeight, height)
	}
	if err := layout.Check(kp); err != nil {
		return Estimate{}, err
	}

	h := float64(height)
	eyeTop := topmost(kp, layout.EyeTops(), h)
	browTop := topmost(kp, layout.Eyebrows(), h)

	line := toRow(browTop-float64(e.config.SafetyOffset), height)

	return Estimate{
		CropLine: line,
		BrowTop:  browTop,
		EyeTop:   eyeTop,
	}, nil
}

// topmost returns the smallest pixel row among the given indices. Points
// with non-finite coordinates are ignored; +Inf means none was usable.
func topmost(kp types.Keypoints, indices []int, height float64) float64 {
	top := math.Inf(1)
	for _, idx := range indices {
		y := kp[idx].Y * height
		if math.IsNaN(y) || math.IsInf(y, 0) {
			continue
		}
		top = math.Min(top, y)
	}
	return top
}

// toRow truncates v to a pixel row clamped to [0, height]. A row that
// cannot be determined maps to 0, which keeps the whole image.
func toRow(v float64, height int) int {
	switch {
	case math.IsNaN(v), math.IsInf(v, 1), v <= 0:
		return 0
	case v >= float64(height):
		return height
	}
	return int(v)
}
