package detection

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/menta2k/browcrop/pkg/client"
	"github.com/menta2k/browcrop/pkg/landmarks"
	"github.com/menta2k/browcrop/pkg/processing"
	"github.com/menta2k/browcrop/pkg/types"
)

// LandmarkPrompt asks a vision model for the points of the compact-brow table
const LandmarkPrompt = `Look at this photo and locate the main human face.

Return ONLY a JSON object, no other text:
{
  "face": true,
  "confidence": 0.0,
  "left_eye_top": [[x, y], ...],
  "right_eye_top": [[x, y], ...],
  "left_eyebrow": [[x, y], ...],
  "right_eyebrow": [[x, y], ...]
}

Rules:
- Coordinates are fractions of the image width and height, from 0.0 to 1.0, origin top-left.
- left_eye_top and right_eye_top: exactly 6 points each along the upper eyelid, from the outer to the inner corner.
- left_eyebrow and right_eyebrow: exactly 5 points each along the eyebrow, from the outer to the inner end.
- "left" means the subject's left side.
- confidence is your certainty that the points are correct, from 0.0 to 1.0.
- If there is no face, return {"face": false}.`

// VisionConfig configures a vision-model backend
type VisionConfig struct {
	Model         string
	MaxDim        int
	Quality       int
	MinConfidence float64
}

// Vision asks a multimodal LLM to place the landmarks
type Vision struct {
	client    client.VisionClient
	processor *processing.Processor
	cfg       VisionConfig
	log       *slog.Logger
}

// NewVision creates a vision-model provider
func NewVision(c client.VisionClient, cfg VisionConfig, log *slog.Logger) *Vision {
	if cfg.MaxDim <= 0 {
		cfg.MaxDim = 1024
	}
	if cfg.Quality <= 0 {
		cfg.Quality = 90
	}
	return &Vision{client: c, processor: processing.NewProcessor(), cfg: cfg, log: log}
}

// Layout implements Provider
func (v *Vision) Layout() landmarks.Layout {
	return landmarks.CompactBrow
}

// Detect implements Provider
func (v *Vision) Detect(ctx context.Context, src Source) ([]types.Face, error) {
	imgB64, err := v.processor.PrepareImageForModel(src.Image, "jpg", v.cfg.MaxDim, v.cfg.Quality)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image for model: %w", err)
	}

	reply, err := v.client.LocateLandmarks(ctx, v.cfg.Model, LandmarkPrompt, imgB64)
	if err != nil {
		return nil, fmt.Errorf("vision model %s: %w", v.cfg.Model, err)
	}
	if !reply.Face {
		return nil, nil
	}
	if reply.Confidence < v.cfg.MinConfidence {
		v.log.Debug("vision face below confidence threshold",
			"path", src.Path, "confidence", reply.Confidence, "min", v.cfg.MinConfidence)
		return nil, nil
	}

	face, err := replyToFace(reply)
	if err != nil {
		return nil, fmt.Errorf("vision model %s: %w", v.cfg.Model, err)
	}
	return []types.Face{face}, nil
}

// replyToFace lays the reply groups out in compact-brow order
func replyToFace(r *types.LandmarkReply) (types.Face, error) {
	layout := landmarks.CompactBrow
	groups := []struct {
		name   string
		points [][2]float64
		want   int
	}{
		{"left_eye_top", r.LeftEyeTop, len(layout.LeftEyeTop)},
		{"right_eye_top", r.RightEyeTop, len(layout.RightEyeTop)},
		{"left_eyebrow", r.LeftEyebrow, len(layout.LeftEyebrow)},
		{"right_eyebrow", r.RightEyebrow, len(layout.RightEyebrow)},
	}

	kp := make(types.Keypoints, 0, layout.Size)
	for _, g := range groups {
		if len(g.points) != g.want {
			return types.Face{}, fmt.Errorf("%w: %s has %d points, want %d",
				landmarks.ErrMissingLandmarks, g.name, len(g.points), g.want)
		}
		for _, p := range g.points {
			kp = append(kp, types.Point{X: p[0], Y: p[1]})
		}
	}
	return types.Face{Keypoints: kp, Score: r.Confidence, Layout: layout.ID()}, nil
}

// Close implements Provider
func (v *Vision) Close() error {
	return nil
}
