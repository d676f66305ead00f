package streamer

import (
	"io"
	"sync"
	"time"
)

// idleReader cancels the upstream request when no bytes arrive within the
// timeout. Every successful read re-arms the timer.
type idleReader struct {
	r       io.Reader
	timeout time.Duration
	timer   *time.Timer

	mu      sync.Mutex
	stopped bool
}

func newIdleReader(r io.Reader, timeout time.Duration, onIdle func()) *idleReader {
	return &idleReader{
		r:       r,
		timeout: timeout,
		timer:   time.AfterFunc(timeout, onIdle),
	}
}

func (ir *idleReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if n > 0 {
		ir.mu.Lock()
		if !ir.stopped {
			ir.timer.Reset(ir.timeout)
		}
		ir.mu.Unlock()
	}
	return n, err
}

func (ir *idleReader) stop() {
	ir.mu.Lock()
	defer ir.mu.Unlock()
	ir.stopped = true
	ir.timer.Stop()
}
