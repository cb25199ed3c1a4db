package filter

import "fmt"

// Window is a fixed-size sliding window over a stream of samples,
// backed by a ring buffer. Emission cadence is decoupled from the
// window size: the first aggregate is emitted once sendFirstAt samples
// have arrived, then every sendEvery samples after that, regardless of
// how full the window is.
//
// Not safe for concurrent use; the owning pipeline serialises pushes.
type Window struct {
	buf         []float64
	head        int // next write position
	filled      int
	sendEvery   int
	sendFirstAt int
	untilEmit   int
}

// NewWindow creates a window. size must be positive; sendEvery and
// sendFirstAt default to 1, and sendFirstAt is clamped to sendEvery.
func NewWindow(size, sendEvery, sendFirstAt int) (*Window, error) {
	if size <= 0 {
		return nil, fmt.Errorf("filter: window size must be positive, got %d", size)
	}
	if sendEvery <= 0 {
		sendEvery = 1
	}
	if sendFirstAt <= 0 {
		sendFirstAt = 1
	}
	if sendFirstAt > sendEvery {
		sendFirstAt = sendEvery
	}
	return &Window{
		buf:         make([]float64, size),
		sendEvery:   sendEvery,
		sendFirstAt: sendFirstAt,
		untilEmit:   sendFirstAt,
	}, nil
}

// Push appends a sample, evicting the oldest when the buffer is full,
// and reports whether this sample triggers an emission. When emit is
// true, values holds the window contents oldest-first.
func (w *Window) Push(sample float64) (values []float64, emit bool) {
	w.buf[w.head] = sample
	w.head = (w.head + 1) % len(w.buf)
	if w.filled < len(w.buf) {
		w.filled++
	}

	w.untilEmit--
	if w.untilEmit > 0 {
		return nil, false
	}
	w.untilEmit = w.sendEvery
	return w.Values(), true
}

// Values returns the current window contents oldest-first.
func (w *Window) Values() []float64 {
	out := make([]float64, w.filled)
	start := w.head - w.filled
	if start < 0 {
		start += len(w.buf)
	}
	for i := 0; i < w.filled; i++ {
		out[i] = w.buf[(start+i)%len(w.buf)]
	}
	return out
}

// Len returns the number of samples currently held.
func (w *Window) Len() int { return w.filled }

// Reset empties the window and restarts the emission cadence.
func (w *Window) Reset() {
	w.head = 0
	w.filled = 0
	w.untilEmit = w.sendFirstAt
}
