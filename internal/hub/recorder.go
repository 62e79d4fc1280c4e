// ABOUTME: In-memory Sink that records every frame it is sent
// ABOUTME: Used by tests across packages to observe what a socket would have received

package hub

import (
	"encoding/json"
	"errors"
	"sync"
)

// ErrSinkClosed is returned by Recorder.Send after Close.
var ErrSinkClosed = errors.New("sink closed")

// Recorder is a Sink that keeps decoded frames in memory.
type Recorder struct {
	id string

	mu     sync.Mutex
	frames []Frame
	closed bool
}

// NewRecorder creates a recorder with the given sink id.
func NewRecorder(id string) *Recorder {
	return &Recorder{id: id}
}

// ID implements Sink.
func (r *Recorder) ID() string { return r.id }

// Send implements Sink.
func (r *Recorder) Send(payload []byte) error {
	var f Frame
	if err := json.Unmarshal(payload, &f); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrSinkClosed
	}
	r.frames = append(r.frames, f)
	return nil
}

// Close makes every later Send fail.
func (r *Recorder) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

// Frames returns a copy of everything received so far.
func (r *Recorder) Frames() []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Frame, len(r.frames))
	copy(out, r.frames)
	return out
}

// Events returns only frames with the given event name.
func (r *Recorder) Events(event string) []Frame {
	var out []Frame
	for _, f := range r.Frames() {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

// Reset discards recorded frames.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.frames = nil
	r.mu.Unlock()
}
