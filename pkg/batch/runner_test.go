package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/menta2k/browcrop/pkg/cropper"
	"github.com/menta2k/browcrop/pkg/detection"
	"github.com/menta2k/browcrop/pkg/estimator"
	"github.com/menta2k/browcrop/pkg/landmarks"
	"github.com/menta2k/browcrop/pkg/pipeline"
	"github.com/menta2k/browcrop/pkg/processing"
	"github.com/menta2k/browcrop/pkg/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeImage(t *testing.T, path string, width, height int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(y % 256), 90, uint8(x % 256), 255})
		}
	}
	if err := imaging.Save(img, path); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// writeLandmarks stores a compact-brow face with both eyebrows at browY
func writeLandmarks(t *testing.T, imgPath string, browY float64) {
	t.Helper()
	pts := make([][2]float64, landmarks.CompactBrow.Size)
	for _, idx := range landmarks.CompactBrow.EyeTops() {
		pts[idx] = [2]float64{0.5, browY + 0.08}
	}
	for _, idx := range landmarks.CompactBrow.Eyebrows() {
		pts[idx] = [2]float64{0.5, browY}
	}
	doc := types.LandmarkFile{
		Layout: landmarks.CompactBrow.ID(),
		Faces:  []types.WireFace{{Score: 1, Points: pts}},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(imgPath+detection.SidecarSuffix, data, 0644); err != nil {
		t.Fatal(err)
	}
}

func newTestRunner(margin, workers int, status io.Writer) *Runner {
	det := detection.NewDetector(detection.NewSidecar(landmarks.CompactBrow))
	p := pipeline.New(det, estimator.New(), cropper.New(), processing.NewProcessor(),
		pipeline.Options{Margin: margin}, discardLogger())
	return NewRunner(p, NewReporter(status), Config{Workers: workers}, discardLogger())
}

func TestRunDirScenario(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "out")

	writeImage(t, filepath.Join(in, "a.jpg"), 30, 1000)
	writeLandmarks(t, filepath.Join(in, "a.jpg"), 0.30)
	writeImage(t, filepath.Join(in, "b.png"), 30, 40)

	var status bytes.Buffer
	summary, err := newTestRunner(0, 1, &status).RunDir(context.Background(), in, out)
	if err != nil {
		t.Fatalf("RunDir failed: %v", err)
	}

	want := types.Stats{Total: 2, Succeeded: 1, NoFace: 1, Failed: 0}
	if summary.Stats != want {
		t.Errorf("expected stats %+v, got %+v", want, summary.Stats)
	}

	cropped, err := imaging.Open(filepath.Join(out, "cropped_a.jpg"))
	if err != nil {
		t.Fatalf("cropped output missing: %v", err)
	}
	if cropped.Bounds().Dy() != 705 || cropped.Bounds().Dx() != 30 {
		t.Errorf("expected 30x705, got %v", cropped.Bounds())
	}

	orig, _ := os.ReadFile(filepath.Join(in, "b.png"))
	copied, err := os.ReadFile(filepath.Join(out, "noface_b.png"))
	if err != nil {
		t.Fatalf("noface output missing: %v", err)
	}
	if !bytes.Equal(orig, copied) {
		t.Error("noface output differs from the original")
	}

	if _, err := os.Stat(filepath.Join(in, "cropped_a.jpg")); !os.IsNotExist(err) {
		t.Error("nothing may be written to the input directory")
	}

	text := status.String()
	for _, wantLine := range []string{"Found 2 images", "[1/2] a.jpg", "[2/2] b.png", "no face found", "Cropped:   1"} {
		if !strings.Contains(text, wantLine) {
			t.Errorf("status output missing %q:\n%s", wantLine, text)
		}
	}
}

func TestRunDirStatsPartition(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()

	writeImage(t, filepath.Join(in, "face.png"), 10, 100)
	writeLandmarks(t, filepath.Join(in, "face.png"), 0.5)
	writeImage(t, filepath.Join(in, "empty.png"), 10, 10)
	os.WriteFile(filepath.Join(in, "corrupt.jpg"), []byte("garbage"), 0644)
	os.WriteFile(filepath.Join(in, "notes.txt"), []byte("skip me"), 0644)

	summary, err := newTestRunner(0, 1, nil).RunDir(context.Background(), in, out)
	if err != nil {
		t.Fatalf("RunDir failed: %v", err)
	}

	s := summary.Stats
	if s.Total != 3 {
		t.Errorf("expected 3 images, got %d", s.Total)
	}
	if s.Total != s.Succeeded+s.NoFace+s.Failed {
		t.Errorf("stats do not partition: %+v", s)
	}
	if s.Failed != 1 || s.NoFace != 1 || s.Succeeded != 1 {
		t.Errorf("unexpected stats %+v", s)
	}

	for _, res := range summary.Results {
		if filepath.Base(res.Source) == "corrupt.jpg" && res.Stage != types.StageDecode {
			t.Errorf("corrupt file should fail at decode, got %s", res.Stage)
		}
	}
}

func TestRunDirEmpty(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "out")
	os.WriteFile(filepath.Join(in, "readme.md"), []byte("#"), 0644)

	var status bytes.Buffer
	summary, err := newTestRunner(0, 1, &status).RunDir(context.Background(), in, out)
	if err != nil {
		t.Fatalf("RunDir failed: %v", err)
	}
	if summary.Stats != (types.Stats{}) {
		t.Errorf("expected zero stats, got %+v", summary.Stats)
	}
	if !strings.Contains(status.String(), "No images found") {
		t.Errorf("expected no-images line, got %q", status.String())
	}

	entries, err := os.ReadDir(out)
	if err != nil {
		t.Fatalf("output directory should exist: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty output directory, found %d entries", len(entries))
	}
}

func TestRunDirMissingInput(t *testing.T) {
	if _, err := newTestRunner(0, 1, nil).RunDir(context.Background(), filepath.Join(t.TempDir(), "nope"), t.TempDir()); err == nil {
		t.Error("expected error for missing input directory")
	}
}

func TestRunDirIdempotent(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeImage(t, filepath.Join(in, "a.png"), 12, 80)
	writeLandmarks(t, filepath.Join(in, "a.png"), 0.4)
	writeImage(t, filepath.Join(in, "b.jpg"), 12, 80)

	r := newTestRunner(0, 1, nil)
	if _, err := r.RunDir(context.Background(), in, out); err != nil {
		t.Fatal(err)
	}
	first := snapshot(t, out)

	summary, err := r.RunDir(context.Background(), in, out)
	if err != nil {
		t.Fatal(err)
	}
	second := snapshot(t, out)

	if summary.Stats.Total != 2 {
		t.Errorf("outputs must not be picked up as inputs, got %d", summary.Stats.Total)
	}
	if len(first) != len(second) {
		t.Fatalf("file sets differ: %d vs %d", len(first), len(second))
	}
	for name, data := range first {
		if !bytes.Equal(data, second[name]) {
			t.Errorf("%s changed between runs", name)
		}
	}
}

func snapshot(t *testing.T, dir string) map[string][]byte {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	out := make(map[string][]byte, len(entries))
	for _, e := range entries {
		data, _ := os.ReadFile(filepath.Join(dir, e.Name()))
		out[e.Name()] = data
	}
	return out
}

func TestRunFileMargin(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	src := filepath.Join(in, "m.png")
	writeImage(t, src, 10, 200)
	// brows at row 105 -> line 100 -> start 80 with margin 20
	writeLandmarks(t, src, 0.525)

	summary, err := newTestRunner(20, 1, nil).RunFile(context.Background(), src, out)
	if err != nil {
		t.Fatalf("RunFile failed: %v", err)
	}
	if summary.Stats.Succeeded != 1 || len(summary.Results) != 1 {
		t.Fatalf("unexpected summary %+v", summary.Stats)
	}
	if res := summary.Results[0]; res.Start != 80 || res.OutHeight != 120 {
		t.Errorf("expected start 80 and 120 rows, got %d and %d", res.Start, res.OutHeight)
	}
}

func TestRunFileNoFaceFallback(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	src := filepath.Join(in, "plain.jpg")
	writeImage(t, src, 10, 10)

	summary, err := newTestRunner(0, 1, nil).RunFile(context.Background(), src, out)
	if err != nil {
		t.Fatalf("RunFile failed: %v", err)
	}
	if summary.Stats.NoFace != 1 {
		t.Errorf("expected single-file mode to use the fallback, got %+v", summary.Stats)
	}
	if _, err := os.Stat(filepath.Join(out, "noface_plain.jpg")); err != nil {
		t.Errorf("fallback copy missing: %v", err)
	}
}

func TestRunDirParallelMatchesSequential(t *testing.T) {
	in := t.TempDir()
	for i, name := range []string{"a.png", "b.png", "c.png", "d.png", "e.png"} {
		writeImage(t, filepath.Join(in, name), 8, 60)
		if i%2 == 0 {
			writeLandmarks(t, filepath.Join(in, name), 0.3+0.1*float64(i))
		}
	}

	seq, err := newTestRunner(5, 1, nil).RunDir(context.Background(), in, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	par, err := newTestRunner(5, 3, nil).RunDir(context.Background(), in, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if seq.Stats != par.Stats {
		t.Errorf("parallel stats %+v differ from sequential %+v", par.Stats, seq.Stats)
	}
	for i := range seq.Results {
		if seq.Results[i].Start != par.Results[i].Start || seq.Results[i].Outcome != par.Results[i].Outcome {
			t.Errorf("result %d differs", i)
		}
	}
}

func TestRunDirCancelled(t *testing.T) {
	in := t.TempDir()
	writeImage(t, filepath.Join(in, "a.png"), 4, 4)
	writeImage(t, filepath.Join(in, "b.png"), 4, 4)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := newTestRunner(0, 1, nil).RunDir(ctx, in, t.TempDir())
	if err != nil {
		t.Fatalf("RunDir failed: %v", err)
	}
	if summary.Stats.Total != 0 || len(summary.Results) != 0 {
		t.Errorf("expected nothing processed after cancellation, got %+v", summary.Stats)
	}
}

// gateProvider holds every detection until released
type gateProvider struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gateProvider) Detect(ctx context.Context, _ detection.Source) ([]types.Face, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.entered <- struct{}{}
	<-g.release
	return nil, nil
}

func (g *gateProvider) Layout() landmarks.Layout { return landmarks.CompactBrow }
func (g *gateProvider) Close() error             { return nil }

func TestRunDirParallelCancelSkipsPending(t *testing.T) {
	in := t.TempDir()
	for i := 0; i < 6; i++ {
		writeImage(t, filepath.Join(in, fmt.Sprintf("img%d.png", i)), 4, 4)
	}

	gate := &gateProvider{entered: make(chan struct{}, 6), release: make(chan struct{})}
	p := pipeline.New(detection.NewDetector(gate), estimator.New(), cropper.New(), processing.NewProcessor(),
		pipeline.Options{}, discardLogger())
	runner := NewRunner(p, NewReporter(nil), Config{Workers: 2}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan Summary, 1)
	go func() {
		summary, err := runner.RunDir(ctx, in, t.TempDir())
		if err != nil {
			t.Errorf("RunDir failed: %v", err)
		}
		done <- summary
	}()

	// both workers busy, the rest waiting for a slot
	<-gate.entered
	<-gate.entered
	cancel()
	close(gate.release)

	summary := <-done
	if summary.Stats.Total != 2 || summary.Stats.NoFace != 2 || summary.Stats.Failed != 0 {
		t.Errorf("expected only the two in-flight files counted, got %+v", summary.Stats)
	}
	if len(summary.Results) != 2 {
		t.Errorf("expected 2 results, got %d", len(summary.Results))
	}
}
