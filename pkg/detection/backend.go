package detection

import (
	"fmt"
	"log/slog"

	"github.com/menta2k/browcrop/pkg/client"
	"github.com/menta2k/browcrop/pkg/landmarks"
	"github.com/menta2k/browcrop/pkg/llamacpp"
	"github.com/menta2k/browcrop/pkg/ollama"
)

// Backend names accepted by NewProvider
const (
	BackendFaceMesh = "facemesh"
	BackendOllama   = "ollama"
	BackendLlamaCpp = "llamacpp"
	BackendSidecar  = "sidecar"
)

// Options selects and configures a landmark backend
type Options struct {
	Backend       string
	URL           string
	Model         string
	Python        string
	Script        string
	Engines       int
	MinConfidence float64
	// SidecarLayout is the table assumed for sidecar files without a
	// layout field.
	SidecarLayout string
}

// NewVisionClient creates the HTTP client of a vision backend
func NewVisionClient(backend, url string) (client.VisionClient, error) {
	switch backend {
	case BackendOllama:
		return ollama.NewClient(url)
	case BackendLlamaCpp:
		return llamacpp.NewClient(url)
	}
	return nil, fmt.Errorf("%w: %q is not a vision backend", ErrUnknownBackend, backend)
}

// NewProvider starts the backend named in opts
func NewProvider(opts Options, log *slog.Logger) (Provider, error) {
	switch opts.Backend {
	case BackendFaceMesh:
		return NewFaceMesh(FaceMeshConfig{
			Python:        opts.Python,
			Script:        opts.Script,
			Engines:       opts.Engines,
			MinConfidence: opts.MinConfidence,
			MaxFaces:      1,
		}, log)

	case BackendOllama, BackendLlamaCpp:
		if opts.Model == "" {
			return nil, fmt.Errorf("backend %s needs a model name", opts.Backend)
		}
		c, err := NewVisionClient(opts.Backend, opts.URL)
		if err != nil {
			return nil, err
		}
		return NewVision(c, VisionConfig{Model: opts.Model, MinConfidence: opts.MinConfidence}, log), nil

	case BackendSidecar:
		layout := landmarks.MediaPipeFaceMesh
		if opts.SidecarLayout != "" {
			l, ok := landmarks.Lookup(opts.SidecarLayout)
			if !ok {
				return nil, fmt.Errorf("unknown landmark layout %q", opts.SidecarLayout)
			}
			layout = l
		}
		return NewSidecar(layout), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
}
