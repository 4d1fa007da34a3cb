// Package collect drains subject output streams into bounded buffers. The
// subject must never block on a full pipe, so draining continues past the
// retention cap and discards the excess.
package collect

import (
	"io"
	"sync"
)

const defaultCapBytes int64 = 64 * 1024

// StreamBuffer is an append-only byte buffer with a hard retention cap.
// Writes past the cap are counted but discarded, setting the truncation
// flag. Once frozen the contents never change.
type StreamBuffer struct {
	mu        sync.Mutex
	capBytes  int64
	data      []byte
	truncated bool
	frozen    bool
}

// NewStreamBuffer creates a buffer retaining at most capBytes bytes.
func NewStreamBuffer(capBytes int64) *StreamBuffer {
	if capBytes <= 0 {
		capBytes = defaultCapBytes
	}
	return &StreamBuffer{capBytes: capBytes}
}

// Write appends p up to the cap. It always reports full consumption so the
// draining copy never stalls the pipe.
func (b *StreamBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frozen {
		return len(p), nil
	}
	room := b.capBytes - int64(len(b.data))
	if room > 0 {
		take := int64(len(p))
		if take > room {
			take = room
		}
		b.data = append(b.data, p[:take]...)
	}
	if int64(len(p)) > room {
		b.truncated = true
	}
	return len(p), nil
}

func (b *StreamBuffer) freeze() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frozen = true
}

// Bytes returns a copy of the retained bytes.
func (b *StreamBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// Truncated reports whether any bytes were discarded.
func (b *StreamBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}

// Collector owns the capture of one run's stdout and stderr.
type Collector struct {
	stdout *StreamBuffer
	stderr *StreamBuffer
	wg     sync.WaitGroup
}

// New creates a collector whose buffers retain at most capBytes per stream.
func New(capBytes int64) *Collector {
	return &Collector{
		stdout: NewStreamBuffer(capBytes),
		stderr: NewStreamBuffer(capBytes),
	}
}

// Drain starts one goroutine per stream copying pipe bytes into the
// buffers. The readers are closed when their writers are all gone.
func (c *Collector) Drain(stdout, stderr io.ReadCloser) {
	c.drainOne(c.stdout, stdout)
	c.drainOne(c.stderr, stderr)
}

func (c *Collector) drainOne(buf *StreamBuffer, r io.ReadCloser) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		// Copy runs until EOF or until the read end is force-closed.
		_, _ = io.Copy(buf, r)
		_ = r.Close()
	}()
}

// Wait blocks until both streams hit EOF, then freezes the buffers. It must
// be called only after the subject's death is confirmed, so no buffered
// bytes are lost between process death and stream closure.
func (c *Collector) Wait() {
	c.wg.Wait()
	c.stdout.freeze()
	c.stderr.freeze()
}

// Stdout returns the stdout buffer.
func (c *Collector) Stdout() *StreamBuffer { return c.stdout }

// Stderr returns the stderr buffer.
func (c *Collector) Stderr() *StreamBuffer { return c.stderr }
