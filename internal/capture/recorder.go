package capture

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// RecorderState mirrors the three states of a media recorder.
type RecorderState int

const (
	RecorderInactive RecorderState = iota
	RecorderRecording
	RecorderPaused
)

func (s RecorderState) String() string {
	switch s {
	case RecorderRecording:
		return "recording"
	case RecorderPaused:
		return "paused"
	default:
		return "inactive"
	}
}

// ErrRecorderState is returned for a transition the recorder is not in a
// state to make.
var ErrRecorderState = errors.New("invalid recorder state")

// Recorder buffers chunks read from a Stream in a background goroutine and
// mirrors every chunk into an optional Analyser.
type Recorder struct {
	stream   Stream
	analyser *Analyser
	logger   *zap.Logger

	mu      sync.Mutex // serializes transitions
	state   RecorderState
	done    chan struct{}
	stopped chan struct{}

	bufMu    sync.Mutex
	recorded [][]float32
	readErr  error
	failed   chan struct{}
}

// NewRecorder wraps an open stream. analyser may be nil.
func NewRecorder(stream Stream, analyser *Analyser, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{stream: stream, analyser: analyser, logger: logger, failed: make(chan struct{})}
}

// State returns the current recorder state.
func (r *Recorder) State() RecorderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start begins capturing into a fresh buffer.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != RecorderInactive {
		return fmt.Errorf("start: %w (%s)", ErrRecorderState, r.state)
	}
	r.bufMu.Lock()
	r.recorded = nil
	if r.readErr != nil {
		r.readErr = nil
		r.failed = make(chan struct{})
	}
	r.bufMu.Unlock()
	if err := r.startCapture(); err != nil {
		return err
	}
	r.state = RecorderRecording
	return nil
}

// Pause stops reading from the stream and keeps what was buffered.
func (r *Recorder) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != RecorderRecording {
		return fmt.Errorf("pause: %w (%s)", ErrRecorderState, r.state)
	}
	r.stopCapture()
	r.state = RecorderPaused
	return nil
}

// Resume continues capturing into the same buffer.
func (r *Recorder) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != RecorderPaused {
		return fmt.Errorf("resume: %w (%s)", ErrRecorderState, r.state)
	}
	if err := r.startCapture(); err != nil {
		return err
	}
	r.state = RecorderRecording
	return nil
}

// Stop ends the recording and returns every buffered chunk in order.
// Stopping an inactive recorder returns nil.
func (r *Recorder) Stop() [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case RecorderInactive:
		return nil
	case RecorderRecording:
		r.stopCapture()
	}
	r.state = RecorderInactive
	r.bufMu.Lock()
	chunks := r.recorded
	r.recorded = nil
	r.bufMu.Unlock()
	return chunks
}

// Err returns the read error that ended capture early, if any.
func (r *Recorder) Err() error {
	r.bufMu.Lock()
	defer r.bufMu.Unlock()
	return r.readErr
}

// Failed is closed when a stream read fails and capture ends early. Err
// then returns the cause.
func (r *Recorder) Failed() <-chan struct{} {
	r.bufMu.Lock()
	defer r.bufMu.Unlock()
	return r.failed
}

// startCapture starts the stream and the read loop. Caller holds r.mu.
func (r *Recorder) startCapture() error {
	if err := r.stream.Start(); err != nil {
		return fmt.Errorf("start mic: %w", err)
	}
	r.done = make(chan struct{})
	r.stopped = make(chan struct{})
	go r.capture(r.done, r.stopped)
	return nil
}

// stopCapture waits for the read loop to exit, then stops the stream.
// Caller holds r.mu.
func (r *Recorder) stopCapture() {
	close(r.done)
	<-r.stopped
	if err := r.stream.Stop(); err != nil {
		r.logger.Warn("stop mic", zap.Error(err))
	}
}

func (r *Recorder) capture(done, stopped chan struct{}) {
	defer close(stopped)
	for {
		select {
		case <-done:
			return
		default:
		}

		chunk, err := r.stream.Read()
		if err != nil {
			r.logger.Warn("mic read failed", zap.Error(err))
			r.bufMu.Lock()
			if r.readErr == nil {
				r.readErr = err
				close(r.failed)
			}
			r.bufMu.Unlock()
			return
		}
		if len(chunk) == 0 {
			continue
		}
		if r.analyser != nil {
			r.analyser.Write(chunk)
		}
		r.bufMu.Lock()
		r.recorded = append(r.recorded, chunk)
		r.bufMu.Unlock()
	}
}

// Flatten joins chunks into one sample slice.
func Flatten(chunks [][]float32) []float32 {
	n := 0
	for _, c := range chunks {
		n += len(c)
	}
	out := make([]float32, 0, n)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}
