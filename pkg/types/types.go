package types

// Point is a landmark position normalized to [0,1] relative to the image size
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Keypoints is the ordered landmark set of one face, indexed by the
// detector's landmark table
type Keypoints []Point

// Face is one detected face as reported by a landmark provider
type Face struct {
	Keypoints Keypoints `json:"keypoints"`
	Score     float64   `json:"score"`
	Layout    string    `json:"layout"`
}

// Extent returns the normalized bounding box of the keypoints as x0, y0, x1, y1
func (f Face) Extent() (float64, float64, float64, float64) {
	if len(f.Keypoints) == 0 {
		return 0, 0, 0, 0
	}
	x0, y0 := f.Keypoints[0].X, f.Keypoints[0].Y
	x1, y1 := x0, y0
	for _, p := range f.Keypoints[1:] {
		x0 = min(x0, p.X)
		y0 = min(y0, p.Y)
		x1 = max(x1, p.X)
		y1 = max(y1, p.Y)
	}
	return x0, y0, x1, y1
}

// Area returns the normalized area covered by the keypoints
func (f Face) Area() float64 {
	x0, y0, x1, y1 := f.Extent()
	return (x1 - x0) * (y1 - y0)
}

// Outcome classifies what happened to one input image
type Outcome string

const (
	OutcomeCropped Outcome = "cropped"
	OutcomeNoFace  Outcome = "noface"
	OutcomeFailed  Outcome = "failed"
)

// Stage names the pipeline step an image failed in
type Stage string

const (
	StageDecode   Stage = "decode"
	StageDetect   Stage = "detect"
	StageEstimate Stage = "estimate"
	StageCrop     Stage = "crop"
	StageWrite    Stage = "write"
	StageFallback Stage = "fallback"
)

// Stats aggregates outcomes across a batch
type Stats struct {
	Total     int `json:"total"`
	Succeeded int `json:"success"`
	NoFace    int `json:"no_face"`
	Failed    int `json:"failed"`
}

// Record counts one outcome
func (s *Stats) Record(o Outcome) {
	s.Total++
	switch o {
	case OutcomeCropped:
		s.Succeeded++
	case OutcomeNoFace:
		s.NoFace++
	default:
		s.Failed++
	}
}

// WireFace is a face as serialized by the face mesh engine and sidecar files
type WireFace struct {
	Score  float64      `json:"score"`
	Points [][2]float64 `json:"points"`
}

// LandmarkFile is the JSON document exchanged with the face mesh engine and
// stored in .landmarks.json sidecar files
type LandmarkFile struct {
	Layout string     `json:"layout,omitempty"`
	Faces  []WireFace `json:"faces"`
	Error  string     `json:"error,omitempty"`
}

// ToFace converts a wire face into keypoints bound to layout
func (w WireFace) ToFace(layout string) Face {
	kp := make(Keypoints, len(w.Points))
	for i, p := range w.Points {
		kp[i] = Point{X: p[0], Y: p[1]}
	}
	return Face{Keypoints: kp, Score: w.Score, Layout: layout}
}

// LandmarkReply is what a vision model is asked to return
type LandmarkReply struct {
	Face         bool         `json:"face"`
	Confidence   float64      `json:"confidence"`
	LeftEyeTop   [][2]float64 `json:"left_eye_top"`
	RightEyeTop  [][2]float64 `json:"right_eye_top"`
	LeftEyebrow  [][2]float64 `json:"left_eyebrow"`
	RightEyebrow [][2]float64 `json:"right_eyebrow"`
}
