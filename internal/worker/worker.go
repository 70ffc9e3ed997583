package worker

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/menta2k/browcrop/pkg/types"
)

// ErrEngineCrashed marks a broken pipe to an engine process. The engine
// has to be replaced.
var ErrEngineCrashed = errors.New("engine crashed")

// maxResponse bounds a single engine reply; a 478 point mesh is a few KB.
const maxResponse = 16 << 20

// EngineOptions are passed to the Python engine on its command line
type EngineOptions struct {
	Python        string
	Script        string
	MinConfidence float64
	MaxFaces      int
}

// PythonWorker is one long-lived face mesh engine process
type PythonWorker struct {
	ID       int
	Cmd      *SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser
}

// NewPythonWorker starts an engine. Replies arrive on a dedicated pipe
// (FD 3 in the child) so library chatter on stdout cannot corrupt framing.
func NewPythonWorker(id int, opts EngineOptions) (*PythonWorker, error) {
	py := NewSafeCommand(opts.Python, "-u", opts.Script,
		"--min-confidence", strconv.FormatFloat(opts.MinConfidence, 'f', -1, 64),
		"--max-faces", strconv.Itoa(opts.MaxFaces),
	)

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("engine %d failed to start: %w", id, err)
	}

	// Only the child holds the write end now.
	w.Close()

	return &PythonWorker{
		ID:       id,
		Cmd:      py,
		Stdin:    stdin,
		DataPipe: r,
	}, nil
}

// Communicate sends one length-prefixed message and reads one back
func (w *PythonWorker) Communicate(data []byte) ([]byte, error) {
	// Protocol: [Length][Data]
	size, err := wireUint32(len(data), "message length")
	if err != nil {
		return nil, err
	}
	if err := binary.Write(w.Stdin, binary.BigEndian, size); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, err
	}

	respLen := binary.BigEndian.Uint32(header)
	if respLen > maxResponse {
		return nil, fmt.Errorf("engine reply of %d bytes exceeds limit", respLen)
	}
	respBody := make([]byte, respLen)
	_, err = io.ReadFull(w.DataPipe, respBody)
	return respBody, err
}

// ProcessFrame sends packed RGB pixels and returns the faces the engine found
func (w *PythonWorker) ProcessFrame(width, height int, rgb []byte) ([]types.WireFace, error) {
	w32, err := wireUint32(width, "frame width")
	if err != nil {
		return nil, err
	}
	h32, err := wireUint32(height, "frame height")
	if err != nil {
		return nil, err
	}
	if len(rgb) != width*height*3 {
		return nil, fmt.Errorf("frame is %d bytes, want %dx%dx3", len(rgb), width, height)
	}

	// Frame: [Width][Height][RGB...]
	frame := make([]byte, 8, 8+len(rgb))
	binary.BigEndian.PutUint32(frame[0:4], w32)
	binary.BigEndian.PutUint32(frame[4:8], h32)
	frame = append(frame, rgb...)

	resp, err := w.Communicate(frame)
	if err != nil {
		return nil, w.crashError(err)
	}

	var reply types.LandmarkFile
	if err := json.Unmarshal(resp, &reply); err != nil {
		return nil, fmt.Errorf("malformed engine reply: %w", err)
	}
	if reply.Error != "" {
		return nil, errors.New("python worker error: " + reply.Error)
	}
	return reply.Faces, nil
}

// wireUint32 converts n to the protocol's 32-bit field or fails
func wireUint32(n int, what string) (uint32, error) {
	if n < 0 || uint64(n) > math.MaxUint32 {
		return 0, fmt.Errorf("%s %d does not fit the engine protocol", what, n)
	}
	return uint32(n), nil
}

// crashError attaches the engine's last log lines to a pipe failure
func (w *PythonWorker) crashError(err error) error {
	if tail := w.Cmd.Tail(5); tail != "" {
		return fmt.Errorf("%w: engine %d: %w\n%s", ErrEngineCrashed, w.ID, err, tail)
	}
	return fmt.Errorf("%w: engine %d: %w", ErrEngineCrashed, w.ID, err)
}

// Close shuts the engine down; closing stdin makes it exit its read loop
func (w *PythonWorker) Close() error {
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd == nil {
		return nil
	}
	return w.Cmd.Wait()
}
