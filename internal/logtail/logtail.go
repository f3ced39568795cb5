// Package logtail keeps the last lines written to a logger so a redrawing
// terminal UI can show them under its own output.
package logtail

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
)

// DefaultLines is the number of lines Lines returns by default.
const DefaultLines = 5

// Tail is an io.Writer that splits its input into lines.
//
// Writers on any goroutine push complete lines into an overlapped ring buffer
// and never block; the oldest lines are dropped when it is full. Lines drains
// the ring and must be called from a single goroutine (the renderer).
type Tail struct {
	ring mpmc.RichOverlappedRingBuffer[string]
	keep int

	mu      sync.Mutex
	partial []byte

	recent      []string
	overwritten atomic.Int64
}

// New returns a Tail that retains the last keep lines.
func New(keep int) (*Tail, error) {
	if keep <= 0 {
		return nil, fmt.Errorf("keep must be > 0")
	}
	return &Tail{
		ring: mpmc.NewOverlappedRingBuffer[string](uint32(keep * 2)),
		keep: keep,
	}, nil
}

// Write implements io.Writer. An unterminated trailing line is held until
// its newline arrives.
func (t *Tail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	data := append(t.partial, p...)
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		line := string(bytes.TrimRight(data[:i], "\r"))
		data = data[i+1:]
		if line == "" {
			continue
		}
		overwrites, err := t.ring.EnqueueM(line)
		if err != nil {
			return 0, fmt.Errorf("log tail enqueue: %w", err)
		}
		t.overwritten.Add(int64(overwrites))
	}
	t.partial = append(t.partial[:0], data...)
	return len(p), nil
}

// Lines returns up to keep most recent lines, oldest first.
func (t *Tail) Lines() []string {
	for !t.ring.IsEmpty() {
		line, err := t.ring.Dequeue()
		if err != nil {
			break
		}
		t.recent = append(t.recent, line)
	}
	if over := len(t.recent) - t.keep; over > 0 {
		t.recent = append(t.recent[:0], t.recent[over:]...)
	}

	out := make([]string, len(t.recent))
	copy(out, t.recent)
	return out
}

// Overwritten returns how many lines the ring dropped before they were read.
func (t *Tail) Overwritten() int64 {
	return t.overwritten.Load()
}
