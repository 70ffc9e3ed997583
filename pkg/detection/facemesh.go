package detection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/menta2k/browcrop/internal/worker"
	"github.com/menta2k/browcrop/pkg/landmarks"
	"github.com/menta2k/browcrop/pkg/processing"
	"github.com/menta2k/browcrop/pkg/types"
)

// FaceMeshConfig configures the MediaPipe engine pool
type FaceMeshConfig struct {
	Python        string
	Script        string
	Engines       int
	MinConfidence float64
	MaxFaces      int
}

// engine is the part of worker.PythonWorker the pool needs
type engine interface {
	ProcessFrame(width, height int, rgb []byte) ([]types.WireFace, error)
	Close() error
}

// FaceMesh runs MediaPipe FaceMesh in a pool of Python engines. Each call
// borrows one engine, so concurrent callers never share a pipe.
type FaceMesh struct {
	pool  chan engine
	spawn func(id int) (engine, error)
	size  int
	log   *slog.Logger

	mu   sync.Mutex
	next int
}

// NewFaceMesh starts cfg.Engines engine processes
func NewFaceMesh(cfg FaceMeshConfig, log *slog.Logger) (*FaceMesh, error) {
	if cfg.Engines < 1 {
		cfg.Engines = 1
	}
	if cfg.MaxFaces < 1 {
		cfg.MaxFaces = 1
	}
	opts := worker.EngineOptions{
		Python:        cfg.Python,
		Script:        cfg.Script,
		MinConfidence: cfg.MinConfidence,
		MaxFaces:      cfg.MaxFaces,
	}
	spawn := func(id int) (engine, error) {
		return worker.NewPythonWorker(id, opts)
	}

	engines := make([]engine, 0, cfg.Engines)
	for i := 0; i < cfg.Engines; i++ {
		e, err := spawn(i)
		if err != nil {
			for _, started := range engines {
				started.Close()
			}
			return nil, err
		}
		engines = append(engines, e)
	}
	log.Debug("face mesh engines started", "engines", cfg.Engines, "script", cfg.Script)

	return newFaceMeshWithEngines(engines, spawn, log), nil
}

func newFaceMeshWithEngines(engines []engine, spawn func(int) (engine, error), log *slog.Logger) *FaceMesh {
	pool := make(chan engine, len(engines))
	for _, e := range engines {
		pool <- e
	}
	return &FaceMesh{pool: pool, spawn: spawn, size: len(engines), next: len(engines), log: log}
}

// Layout implements Provider
func (f *FaceMesh) Layout() landmarks.Layout {
	return landmarks.MediaPipeFaceMesh
}

// Detect implements Provider
func (f *FaceMesh) Detect(ctx context.Context, src Source) ([]types.Face, error) {
	var e engine
	select {
	case e = <-f.pool:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	b := src.Image.Bounds()
	wire, err := e.ProcessFrame(b.Dx(), b.Dy(), processing.PackRGB(src.Image))
	f.pool <- f.recycle(e, err)
	if err != nil {
		return nil, fmt.Errorf("face mesh: %w", err)
	}

	layout := f.Layout().ID()
	faces := make([]types.Face, 0, len(wire))
	for _, w := range wire {
		faces = append(faces, w.ToFace(layout))
	}
	return faces, nil
}

// recycle replaces an engine whose pipe broke. Errors reported by a
// healthy engine keep it in the pool.
func (f *FaceMesh) recycle(e engine, err error) engine {
	if err == nil || f.spawn == nil || !errors.Is(err, worker.ErrEngineCrashed) {
		return e
	}
	f.log.Warn("face mesh engine crashed, restarting", "err", err)
	e.Close()

	f.mu.Lock()
	id := f.next
	f.next++
	f.mu.Unlock()

	fresh, spawnErr := f.spawn(id)
	if spawnErr != nil {
		f.log.Error("face mesh engine restart failed", "engine", id, "err", spawnErr)
		return e
	}
	return fresh
}

// Close stops every engine
func (f *FaceMesh) Close() error {
	var firstErr error
	for i := 0; i < f.size; i++ {
		e := <-f.pool
		if err := e.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
