// Package pipeline runs one image through decode, detection, estimation,
// cropping and writing, and classifies what happened to it.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/menta2k/browcrop/internal/utils"
	"github.com/menta2k/browcrop/pkg/cropper"
	"github.com/menta2k/browcrop/pkg/detection"
	"github.com/menta2k/browcrop/pkg/estimator"
	"github.com/menta2k/browcrop/pkg/processing"
	"github.com/menta2k/browcrop/pkg/types"
)

// Options controls per-image behaviour
type Options struct {
	// Margin is subtracted from the crop line. It is not validated.
	Margin int
	// Debug writes an overlay image next to the outputs.
	Debug    bool
	DebugExt string
	// Quality is used for lossy debug overlays.
	Quality int
	// DryRun stops before anything is written.
	DryRun bool
}

// Result describes the fate of one input image
type Result struct {
	Source  string
	Output  string
	Debug   string
	Outcome types.Outcome
	// Stage is set for failed images only.
	Stage types.Stage
	Err   error

	Height    int
	Estimate  estimator.Estimate
	Start     int
	OutHeight int
	Elapsed   time.Duration
}

// Pipeline processes single images. It holds no per-image state and is
// safe for concurrent use if its detector is.
type Pipeline struct {
	detector  *detection.Detector
	estimator *estimator.EyeLevelEstimator
	cropper   *cropper.BandCropper
	processor *processing.Processor
	opts      Options
	log       *slog.Logger
}

// New assembles a pipeline from its stages
func New(det *detection.Detector, est *estimator.EyeLevelEstimator, crop *cropper.BandCropper,
	proc *processing.Processor, opts Options, log *slog.Logger) *Pipeline {
	if opts.DebugExt == "" {
		opts.DebugExt = "png"
	}
	if opts.Quality <= 0 {
		opts.Quality = 90
	}
	return &Pipeline{
		detector:  det,
		estimator: est,
		cropper:   crop,
		processor: proc,
		opts:      opts,
		log:       log,
	}
}

// Process runs src through the pipeline, writing into outputDir. Errors are
// reported in the Result and never returned.
func (p *Pipeline) Process(ctx context.Context, src, outputDir string) Result {
	start := time.Now()
	res := p.process(ctx, src, outputDir)
	res.Elapsed = time.Since(start)

	if res.Outcome == types.OutcomeFailed {
		p.log.Debug("image failed", "path", src, "stage", res.Stage, "err", res.Err)
	} else {
		p.log.Debug("image done", "path", src, "outcome", res.Outcome,
			"height", res.Height, "start", res.Start, "elapsed", res.Elapsed)
	}
	return res
}

func (p *Pipeline) process(ctx context.Context, src, outputDir string) Result {
	res := Result{Source: src}

	img, err := p.processor.LoadImage(src)
	if err != nil {
		return res.fail(types.StageDecode, err)
	}
	res.Height = img.Bounds().Dy()

	face, found, err := p.detector.DetectFace(ctx, detection.Source{Path: src, Image: img})
	if err != nil {
		return res.fail(types.StageDetect, err)
	}

	if !found {
		res.Outcome = types.OutcomeNoFace
		res.Output = utils.PrefixedName(src, outputDir, utils.NoFacePrefix)
		if p.opts.DryRun {
			return res
		}
		if err := p.processor.CopyFile(src, res.Output); err != nil {
			res.Output = ""
			return res.fail(types.StageFallback, fmt.Errorf("failed to copy original: %w", err))
		}
		return res
	}

	layout := p.detector.Layout()
	est, err := p.estimator.Estimate(face.Keypoints, layout, res.Height)
	if err != nil {
		return res.fail(types.StageEstimate, err)
	}
	res.Estimate = est

	cropped, err := p.cropper.Crop(img, est.CropLine, p.opts.Margin)
	if err != nil {
		return res.fail(types.StageCrop, err)
	}
	res.Start = cropped.Start
	res.OutHeight = cropped.Image.Bounds().Dy()

	if p.opts.Debug && !p.opts.DryRun {
		res.Debug = p.writeOverlay(img, face, est.CropLine, cropped.Start, src, outputDir)
	}

	res.Output = utils.PrefixedName(src, outputDir, utils.CroppedPrefix)
	if p.opts.DryRun {
		res.Outcome = types.OutcomeCropped
		return res
	}
	if err := p.processor.SaveImage(cropped.Image, res.Output); err != nil {
		res.Output = ""
		return res.fail(types.StageWrite, fmt.Errorf("failed to write cropped image: %w", err))
	}

	res.Outcome = types.OutcomeCropped
	return res
}

// writeOverlay saves the debug image. Overlay failures are logged and do
// not change the outcome.
func (p *Pipeline) writeOverlay(img image.Image, face types.Face, cropLine, start int, src, outputDir string) string {
	overlay := p.processor.CreateDebugOverlay(img, processing.OverlayInput{
		Face:     face,
		Layout:   p.detector.Layout(),
		CropLine: cropLine,
		Start:    start,
	})

	path := utils.DebugName(src, outputDir, p.opts.DebugExt)
	if err := p.processor.SaveImageAs(overlay, path, p.opts.DebugExt, p.opts.Quality, false); err != nil {
		p.log.Warn("failed to write debug overlay", "path", path, "err", err)
		return ""
	}
	return path
}

func (r Result) fail(stage types.Stage, err error) Result {
	r.Outcome = types.OutcomeFailed
	r.Stage = stage
	r.Err = err
	return r
}
