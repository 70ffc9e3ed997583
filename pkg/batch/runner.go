// Package batch runs the per-image pipeline over a directory or a single
// file and aggregates the outcomes.
package batch

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/menta2k/browcrop/internal/utils"
	"github.com/menta2k/browcrop/pkg/pipeline"
	"github.com/menta2k/browcrop/pkg/types"
)

// Config controls how a batch is run
type Config struct {
	// Workers is the number of images processed at once. Values below 2
	// process sequentially.
	Workers int
	// Progress draws a progress bar on ProgressWriter.
	Progress       bool
	ProgressWriter io.Writer
}

// Summary is the outcome of a run
type Summary struct {
	Stats   types.Stats
	Results []pipeline.Result
}

// Runner drives a pipeline over many images
type Runner struct {
	pipeline *pipeline.Pipeline
	reporter *Reporter
	config   Config
	log      *slog.Logger
}

// NewRunner creates a batch runner
func NewRunner(p *pipeline.Pipeline, reporter *Reporter, config Config, log *slog.Logger) *Runner {
	if reporter == nil {
		reporter = NewReporter(nil)
	}
	if config.Workers < 1 {
		config.Workers = 1
	}
	return &Runner{pipeline: p, reporter: reporter, config: config, log: log}
}

// RunDir processes every image directly inside inputDir. Only enumeration
// and output directory errors are returned; per-image failures are counted.
func (r *Runner) RunDir(ctx context.Context, inputDir, outputDir string) (Summary, error) {
	if err := utils.EnsureDir(outputDir); err != nil {
		return Summary{}, err
	}

	files, err := utils.ListImageFiles(inputDir)
	if err != nil {
		return Summary{}, err
	}
	if len(files) == 0 {
		r.reporter.NoImages(inputDir)
		return Summary{}, nil
	}

	r.reporter.Start(inputDir, len(files))
	summary := r.run(ctx, files, outputDir)
	r.reporter.Summary(summary.Stats, outputDir)
	return summary, nil
}

// RunFile processes a single image through the same pipeline
func (r *Runner) RunFile(ctx context.Context, path, outputDir string) (Summary, error) {
	if err := utils.EnsureDir(outputDir); err != nil {
		return Summary{}, err
	}

	summary := r.run(ctx, []string{path}, outputDir)
	r.reporter.Summary(summary.Stats, outputDir)
	return summary, nil
}

func (r *Runner) run(ctx context.Context, files []string, outputDir string) Summary {
	bar := r.newProgressBar(len(files))
	results := make([]pipeline.Result, len(files))
	var stats types.Stats
	var mu sync.Mutex

	record := func(idx int, res pipeline.Result) {
		mu.Lock()
		results[idx] = res
		stats.Record(res.Outcome)
		mu.Unlock()

		r.reporter.Result(idx+1, len(files), res)
		if bar != nil {
			bar.Add(1)
		}
	}

	if r.config.Workers < 2 {
		for i, f := range files {
			if ctx.Err() != nil {
				break
			}
			record(i, r.pipeline.Process(ctx, f, outputDir))
		}
	} else {
		sem := make(chan struct{}, r.config.Workers)
		var wg sync.WaitGroup

		for i := range files {
			if ctx.Err() != nil {
				break
			}
			wg.Add(1)
			go func(idx int, path string) {
				defer wg.Done()
				select {
				case sem <- struct{}{}:
				case <-ctx.Done():
					return
				}
				defer func() { <-sem }()
				// files that had not started when the run was cancelled are skipped
				if ctx.Err() != nil {
					return
				}

				record(idx, r.pipeline.Process(ctx, path, outputDir))
			}(i, files[i])
		}
		wg.Wait()
	}

	if bar != nil {
		bar.Finish()
	}

	// Files skipped after cancellation have no outcome.
	done := results[:0]
	for _, res := range results {
		if res.Source != "" {
			done = append(done, res)
		}
	}
	if ctx.Err() != nil {
		r.log.Warn("run cancelled", "processed", len(done), "total", len(files))
	}

	return Summary{Stats: stats, Results: done}
}

func (r *Runner) newProgressBar(count int) *progressbar.ProgressBar {
	if !r.config.Progress || r.config.ProgressWriter == nil {
		return nil
	}
	return progressbar.NewOptions(count,
		progressbar.OptionSetDescription("Cropping"),
		progressbar.OptionSetWriter(r.config.ProgressWriter),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
	)
}
