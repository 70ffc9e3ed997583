package worker

import (
	"bytes"
	"os/exec"
	"strings"
	"sync"
)

// stderrLimit is how much of an engine's log is retained
const stderrLimit = 8 << 10

// TailBuffer keeps the most recent bytes written to it. It is safe to read
// while exec's copier goroutine is still writing.
type TailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

// NewTailBuffer returns a buffer that retains at most limit bytes
func NewTailBuffer(limit int) *TailBuffer {
	return &TailBuffer{limit: limit}
}

func (b *TailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		// drop whole lines so the tail never starts mid-line
		cut := over
		if i := bytes.IndexByte(b.buf[over:], '\n'); i >= 0 {
			cut = over + i + 1
		}
		n := copy(b.buf, b.buf[cut:])
		b.buf = b.buf[:n]
	}
	return len(p), nil
}

func (b *TailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

// SafeCommand wraps a standard exec.Cmd with a buffer to catch Stderr (Python logs)
// so a crashed engine can still be diagnosed.
type SafeCommand struct {
	*exec.Cmd
	Stderr *TailBuffer
}

// NewSafeCommand initializes a command and attaches a buffer to its Stderr pipe.
// It prepares the command for execution but does not start it.
func NewSafeCommand(name string, args ...string) *SafeCommand {
	cmd := exec.Command(name, args...)
	stderr := NewTailBuffer(stderrLimit)
	cmd.Stderr = stderr
	return &SafeCommand{Cmd: cmd, Stderr: stderr}
}

// Tail returns the last n lines written to stderr
func (s *SafeCommand) Tail(n int) string {
	if s == nil {
		return ""
	}
	out := strings.TrimRight(s.Stderr.String(), "\n")
	if out == "" {
		return ""
	}
	lines := strings.Split(out, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
