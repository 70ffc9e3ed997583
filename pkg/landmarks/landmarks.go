// Package landmarks holds the landmark index tables of the supported
// detector models. Raw indices only mean something for the model they were
// taken from, so every table carries the model name and a version; a new
// detector needs its own table.
package landmarks

import (
	"errors"
	"fmt"

	"github.com/menta2k/browcrop/pkg/types"
)

// ErrMissingLandmarks is returned when a keypoint set is too short for a layout
var ErrMissingLandmarks = errors.New("keypoint set does not cover layout")

// Group is a named subset of landmark indices describing one facial region
type Group []int

// Layout binds the semantic groups used by the estimator to the indices of
// one detector model
type Layout struct {
	Name    string
	Version int

	LeftEyeTop   Group
	RightEyeTop  Group
	LeftEyebrow  Group
	RightEyebrow Group

	// Eye centres are part of the table for reference only.
	LeftEyeCenter  Group
	RightEyeCenter Group

	// Size is the number of points the model reports per face.
	Size int
}

// ID returns the layout identifier, e.g. "mediapipe-facemesh/v1"
func (l Layout) ID() string {
	return fmt.Sprintf("%s/v%d", l.Name, l.Version)
}

// Eyebrows returns the indices of both eyebrow groups
func (l Layout) Eyebrows() []int {
	out := make([]int, 0, len(l.LeftEyebrow)+len(l.RightEyebrow))
	out = append(out, l.LeftEyebrow...)
	return append(out, l.RightEyebrow...)
}

// EyeTops returns the indices of both upper eyelid groups
func (l Layout) EyeTops() []int {
	out := make([]int, 0, len(l.LeftEyeTop)+len(l.RightEyeTop))
	out = append(out, l.LeftEyeTop...)
	return append(out, l.RightEyeTop...)
}

// MaxIndex returns the highest index referenced by the estimator groups
func (l Layout) MaxIndex() int {
	m := -1
	for _, g := range []Group{l.LeftEyeTop, l.RightEyeTop, l.LeftEyebrow, l.RightEyebrow} {
		for _, idx := range g {
			m = max(m, idx)
		}
	}
	return m
}

// Check verifies that kp contains every index referenced by the layout
func (l Layout) Check(kp types.Keypoints) error {
	if need := l.MaxIndex() + 1; len(kp) < need {
		return fmt.Errorf("%w: %s needs %d points, got %d", ErrMissingLandmarks, l.ID(), need, len(kp))
	}
	return nil
}

// MediaPipeFaceMesh is the table for the MediaPipe FaceMesh model with
// refined landmarks (468 mesh points plus 10 iris points).
var MediaPipeFaceMesh = Layout{
	Name:           "mediapipe-facemesh",
	Version:        1,
	LeftEyeTop:     Group{159, 145, 153, 144, 163, 7},
	RightEyeTop:    Group{386, 374, 380, 373, 390, 249},
	LeftEyebrow:    Group{70, 63, 105, 66, 107},
	RightEyebrow:   Group{300, 293, 334, 296, 336},
	LeftEyeCenter:  Group{33, 133},
	RightEyeCenter: Group{362, 263},
	Size:           478,
}

// CompactBrow is the table used by the vision-model backends, which only
// place the points the estimator needs.
var CompactBrow = Layout{
	Name:         "compact-brow",
	Version:      1,
	LeftEyeTop:   Group{0, 1, 2, 3, 4, 5},
	RightEyeTop:  Group{6, 7, 8, 9, 10, 11},
	LeftEyebrow:  Group{12, 13, 14, 15, 16},
	RightEyebrow: Group{17, 18, 19, 20, 21},
	Size:         22,
}

var registry = map[string]Layout{
	MediaPipeFaceMesh.ID(): MediaPipeFaceMesh,
	CompactBrow.ID():       CompactBrow,
}

// Lookup returns the layout registered under id
func Lookup(id string) (Layout, bool) {
	l, ok := registry[id]
	return l, ok
}
