package testutil

import (
	"bytes"
	"log"
	"sync"
	"sync/atomic"
	"testing"
)

type testWriter struct {
	t    *testing.T
	done *atomic.Bool
}

func (w testWriter) Write(p []byte) (int, error) {
	// goroutines may outlive the test; t.Log panics after completion
	if !w.done.Load() {
		w.t.Log(string(bytes.TrimRight(p, "\n")))
	}
	return len(p), nil
}

// TestLogger returns a logger that writes through t.Log until the test ends.
func TestLogger(t *testing.T) *log.Logger {
	done := &atomic.Bool{}
	t.Cleanup(func() { done.Store(true) })
	return log.New(testWriter{t: t, done: done}, "[test] ", log.Lmicroseconds)
}

// SyncBuffer is a bytes.Buffer safe for use as the output of a logger shared
// between goroutines.
type SyncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *SyncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *SyncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// BufferLogger returns a logger and the buffer it writes to.
func BufferLogger() (*log.Logger, *SyncBuffer) {
	buf := &SyncBuffer{}
	return log.New(buf, "[test] ", 0), buf
}
