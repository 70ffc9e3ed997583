// Package detection adapts external face landmark models to a single
// Provider interface and picks the face the estimator works on.
package detection

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/menta2k/browcrop/pkg/landmarks"
	"github.com/menta2k/browcrop/pkg/types"
)

// ErrUnknownBackend is returned for an unsupported backend name
var ErrUnknownBackend = errors.New("unknown detector backend")

// Source is one decoded image handed to a provider
type Source struct {
	// Path is the file the image was decoded from, if any.
	Path  string
	Image image.Image
}

// Provider maps an image to the faces found in it. An empty result means
// no face; errors are reserved for detector failures.
type Provider interface {
	Detect(ctx context.Context, src Source) ([]types.Face, error)
	// Layout names the landmark table the returned indices refer to.
	Layout() landmarks.Layout
	Close() error
}

// Selector picks the face to crop on from a non-empty slice
type Selector func(faces []types.Face) types.Face

// First keeps the detector's first face
func First(faces []types.Face) types.Face {
	return faces[0]
}

// MostConfident keeps the face with the highest score
func MostConfident(faces []types.Face) types.Face {
	best := faces[0]
	for _, f := range faces[1:] {
		if f.Score > best.Score {
			best = f
		}
	}
	return best
}

// Largest keeps the face whose landmarks span the largest area
func Largest(faces []types.Face) types.Face {
	best := faces[0]
	for _, f := range faces[1:] {
		if f.Area() > best.Area() {
			best = f
		}
	}
	return best
}

// SelectorByName resolves a selection policy from configuration
func SelectorByName(name string) (Selector, error) {
	switch name {
	case "", "first":
		return First, nil
	case "confident":
		return MostConfident, nil
	case "largest":
		return Largest, nil
	}
	return nil, fmt.Errorf("unknown face selection policy %q (use first, confident or largest)", name)
}

// Detector combines a provider with a face selection policy
type Detector struct {
	provider Provider
	selector Selector
}

// NewDetector creates a detector that keeps the first face
func NewDetector(provider Provider) *Detector {
	return &Detector{provider: provider, selector: First}
}

// NewDetectorWithSelector creates a detector with a custom selection policy
func NewDetectorWithSelector(provider Provider, selector Selector) *Detector {
	if selector == nil {
		selector = First
	}
	return &Detector{provider: provider, selector: selector}
}

// Layout returns the provider's landmark table
func (d *Detector) Layout() landmarks.Layout {
	return d.provider.Layout()
}

// DetectFace returns the selected face, or false if there is none
func (d *Detector) DetectFace(ctx context.Context, src Source) (types.Face, bool, error) {
	faces, err := d.provider.Detect(ctx, src)
	if err != nil {
		return types.Face{}, false, err
	}
	if len(faces) == 0 {
		return types.Face{}, false, nil
	}

	face := d.selector(faces)
	layout := d.provider.Layout()
	if err := layout.Check(face.Keypoints); err != nil {
		return types.Face{}, false, err
	}
	if face.Layout == "" {
		face.Layout = layout.ID()
	}
	return face, true, nil
}

// Close releases the provider
func (d *Detector) Close() error {
	return d.provider.Close()
}
