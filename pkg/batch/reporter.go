package batch

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/menta2k/browcrop/pkg/pipeline"
	"github.com/menta2k/browcrop/pkg/types"
)

// Reporter prints the human-readable status lines of a run
type Reporter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewReporter writes status lines to w. A nil writer discards them.
func NewReporter(w io.Writer) *Reporter {
	if w == nil {
		w = io.Discard
	}
	return &Reporter{w: w}
}

// Start announces the files about to be processed
func (r *Reporter) Start(inputDir string, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "Input: %s\n", inputDir)
	fmt.Fprintf(r.w, "Found %d images\n", count)
	fmt.Fprintln(r.w, strings.Repeat("=", 50))
}

// NoImages reports an input directory without usable files
func (r *Reporter) NoImages(inputDir string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "No images found in %s\n", inputDir)
}

// Result prints the outcome of the i-th of n files
func (r *Reporter) Result(i, n int, res pipeline.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintf(r.w, "[%d/%d] %s\n", i, n, filepath.Base(res.Source))
	switch res.Outcome {
	case types.OutcomeCropped:
		fmt.Fprintf(r.w, "  cropped: %dpx -> %dpx (%dpx removed from the top) -> %s\n",
			res.Height, res.OutHeight, res.Start, filepath.Base(res.Output))
	case types.OutcomeNoFace:
		fmt.Fprintf(r.w, "  no face found, original copied -> %s\n", filepath.Base(res.Output))
	default:
		fmt.Fprintf(r.w, "  failed [%s]: %v\n", res.Stage, res.Err)
	}
	if res.Debug != "" {
		fmt.Fprintf(r.w, "  debug overlay -> %s\n", filepath.Base(res.Debug))
	}
}

// Summary prints the final statistics
func (r *Reporter) Summary(stats types.Stats, outputDir string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.w, strings.Repeat("=", 50))
	fmt.Fprintf(r.w, "Total:     %d\n", stats.Total)
	fmt.Fprintf(r.w, "Cropped:   %d\n", stats.Succeeded)
	fmt.Fprintf(r.w, "No face:   %d\n", stats.NoFace)
	fmt.Fprintf(r.w, "Failed:    %d\n", stats.Failed)
	fmt.Fprintf(r.w, "Output:    %s\n", outputDir)
}
