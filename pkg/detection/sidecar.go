package detection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/menta2k/browcrop/pkg/landmarks"
	"github.com/menta2k/browcrop/pkg/types"
)

// SidecarSuffix is appended to an image path to find its landmark file
const SidecarSuffix = ".landmarks.json"

// Sidecar reads landmarks computed ahead of time from <image>.landmarks.json.
// A missing file means no face.
type Sidecar struct {
	layout landmarks.Layout
}

// NewSidecar creates a sidecar provider. Files that do not name a layout
// are read with the given default.
func NewSidecar(layout landmarks.Layout) *Sidecar {
	return &Sidecar{layout: layout}
}

// Layout implements Provider
func (s *Sidecar) Layout() landmarks.Layout {
	return s.layout
}

// Detect implements Provider
func (s *Sidecar) Detect(ctx context.Context, src Source) ([]types.Face, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if src.Path == "" {
		return nil, fmt.Errorf("sidecar detector needs a source path")
	}

	data, err := os.ReadFile(src.Path + SidecarSuffix)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read landmark file: %w", err)
	}

	var doc types.LandmarkFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", src.Path+SidecarSuffix, err)
	}
	if doc.Error != "" {
		return nil, fmt.Errorf("landmark file records an error: %s", doc.Error)
	}
	if doc.Layout != "" && doc.Layout != s.layout.ID() {
		return nil, fmt.Errorf("landmark file uses layout %s, detector expects %s", doc.Layout, s.layout.ID())
	}

	faces := make([]types.Face, 0, len(doc.Faces))
	for _, w := range doc.Faces {
		faces = append(faces, w.ToFace(s.layout.ID()))
	}
	return faces, nil
}

// Close implements Provider
func (s *Sidecar) Close() error {
	return nil
}
