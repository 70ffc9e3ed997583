// Package browcrop crops photographs just above the eyebrows so the person
// in them cannot be identified, keeping chin, lips and nose. Images without
// a detectable face are copied through unchanged under a noface_ prefix.
package browcrop

import (
	"context"
	"io"
	"log/slog"

	"github.com/menta2k/browcrop/internal/config"
	"github.com/menta2k/browcrop/pkg/batch"
	"github.com/menta2k/browcrop/pkg/cropper"
	"github.com/menta2k/browcrop/pkg/detection"
	"github.com/menta2k/browcrop/pkg/estimator"
	"github.com/menta2k/browcrop/pkg/pipeline"
	"github.com/menta2k/browcrop/pkg/processing"
)

// Version is the application version.
const Version = "0.3.0"

// Options configures a Cropper
type Options struct {
	Detector detection.Options
	// Select is the face selection policy: first, confident or largest.
	Select string

	Margin       int
	SafetyOffset int
	AutoOrient   bool
	Quality      int

	Workers  int
	Debug    bool
	DebugExt string
	DryRun   bool

	// Status receives the per-file status lines. Nil discards them.
	Status io.Writer
	// Progress receives a progress bar when non-nil.
	Progress io.Writer
	Logger   *slog.Logger
}

// DefaultOptions returns the options of the default configuration
func DefaultOptions() Options {
	return OptionsFromConfig(config.Default())
}

// OptionsFromConfig maps a loaded configuration onto Options
func OptionsFromConfig(cfg *config.Config) Options {
	d := cfg.Detector
	opts := Options{
		Detector: detection.Options{
			Backend:       d.Backend,
			Python:        d.Python,
			Script:        d.Script,
			Engines:       d.Engines,
			MinConfidence: d.MinConfidence,
			SidecarLayout: d.SidecarLayout,
		},
		Select:       d.Select,
		Margin:       cfg.Crop.Margin,
		SafetyOffset: cfg.Crop.SafetyOffset,
		AutoOrient:   cfg.Crop.AutoOrient,
		Quality:      cfg.Output.Quality,
		Workers:      cfg.Output.Workers,
		Debug:        cfg.Debug.Enabled,
		DebugExt:     cfg.Debug.Extension,
	}

	switch d.Backend {
	case detection.BackendOllama:
		opts.Detector.URL, opts.Detector.Model = d.Ollama.URL, d.Ollama.Model
	case detection.BackendLlamaCpp:
		opts.Detector.URL, opts.Detector.Model = d.LlamaCpp.URL, d.LlamaCpp.Model
	}
	return opts
}

// Cropper is the one-call entry point for library users
type Cropper struct {
	detector *detection.Detector
	runner   *batch.Runner
}

// New starts the configured landmark backend and assembles a Cropper
func New(opts Options) (*Cropper, error) {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	provider, err := detection.NewProvider(opts.Detector, log)
	if err != nil {
		return nil, err
	}
	c, err := NewWithProvider(provider, opts)
	if err != nil {
		provider.Close()
		return nil, err
	}
	return c, nil
}

// NewWithProvider assembles a Cropper around an existing provider
func NewWithProvider(provider detection.Provider, opts Options) (*Cropper, error) {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	selector, err := detection.SelectorByName(opts.Select)
	if err != nil {
		return nil, err
	}

	procOpts := processing.DefaultOptions()
	procOpts.AutoOrient = opts.AutoOrient
	if opts.Quality > 0 {
		procOpts.JPEGQuality = opts.Quality
	}

	det := detection.NewDetectorWithSelector(provider, selector)
	p := pipeline.New(
		det,
		estimator.NewWithConfig(estimator.Config{SafetyOffset: opts.SafetyOffset}),
		cropper.New(),
		processing.NewProcessorWithOptions(procOpts),
		pipeline.Options{
			Margin:   opts.Margin,
			Debug:    opts.Debug,
			DebugExt: opts.DebugExt,
			Quality:  opts.Quality,
			DryRun:   opts.DryRun,
		},
		log,
	)

	runner := batch.NewRunner(p, batch.NewReporter(opts.Status), batch.Config{
		Workers:        opts.Workers,
		Progress:       opts.Progress != nil,
		ProgressWriter: opts.Progress,
	}, log)

	return &Cropper{detector: det, runner: runner}, nil
}

// CropDir processes every image directly inside inputDir
func (c *Cropper) CropDir(ctx context.Context, inputDir, outputDir string) (batch.Summary, error) {
	return c.runner.RunDir(ctx, inputDir, outputDir)
}

// CropFile processes a single image
func (c *Cropper) CropFile(ctx context.Context, path, outputDir string) (batch.Summary, error) {
	return c.runner.RunFile(ctx, path, outputDir)
}

// Close stops the landmark backend
func (c *Cropper) Close() error {
	return c.detector.Close()
}
