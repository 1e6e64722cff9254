package util

import (
	"bytes"
	"sync"
)

// TailWriter keeps the last MaxBytes bytes written to it. It never returns
// an error, so a chatty child process cannot fail on its own output.
type TailWriter struct {
	MaxBytes int

	mu     sync.Mutex
	buffer bytes.Buffer
	capped bool
}

// NewTailWriter returns a TailWriter retaining at most maxBytes bytes.
func NewTailWriter(maxBytes int) *TailWriter {
	return &TailWriter{MaxBytes: maxBytes}
}

func (tw *TailWriter) Write(in []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	n := len(in)
	if tw.MaxBytes <= 0 {
		tw.capped = tw.capped || n > 0
		return n, nil
	}
	if n >= tw.MaxBytes {
		tw.buffer.Reset()
		tw.buffer.Write(in[n-tw.MaxBytes:])
		tw.capped = true
		return n, nil
	}
	if overflow := tw.buffer.Len() + n - tw.MaxBytes; overflow > 0 {
		tw.buffer.Next(overflow)
		tw.capped = true
	}
	tw.buffer.Write(in)
	return n, nil
}

// Close is a no-op so the writer can be handed to APIs that close their
// output.
func (tw *TailWriter) Close() error { return nil }

// Truncated indicates whether any output was dropped.
func (tw *TailWriter) Truncated() bool {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.capped
}

// String returns the retained output.
func (tw *TailWriter) String() string {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.buffer.String()
}
