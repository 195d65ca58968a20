// SPDX-License-Identifier: MIT

package device

import (
	"bytes"
	"sync"
)

// LineRing keeps the last n complete lines written to it. It is used
// to retain ffmpeg stderr for post-mortem logging without unbounded
// growth.
type LineRing struct {
	mu      sync.Mutex
	lines   []string
	next    int
	full    bool
	partial []byte
}

func NewLineRing(n int) *LineRing {
	if n < 1 {
		n = 1
	}
	return &LineRing{lines: make([]string, n)}
}

// Write implements io.Writer. Input may contain any number of complete
// lines plus a trailing partial; the partial is buffered until its
// newline arrives.
func (r *LineRing) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	buf := p
	for {
		idx := bytes.IndexByte(buf, '\n')
		if idx < 0 {
			r.partial = append(r.partial, buf...)
			break
		}
		line := buf[:idx]
		if len(r.partial) > 0 {
			line = append(r.partial, line...)
			r.partial = nil
		}
		r.push(string(line))
		buf = buf[idx+1:]
	}
	return len(p), nil
}

func (r *LineRing) push(line string) {
	r.lines[r.next] = line
	r.next = (r.next + 1) % len(r.lines)
	if r.next == 0 {
		r.full = true
	}
}

// LastN returns up to n of the most recent complete lines, oldest first.
func (r *LineRing) LastN(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := r.next
	if r.full {
		size = len(r.lines)
	}
	if size == 0 {
		return nil
	}
	if n > size {
		n = size
	}

	out := make([]string, 0, n)
	start := r.next - n
	if start < 0 {
		start += len(r.lines)
	}
	for i := 0; i < n; i++ {
		out = append(out, r.lines[(start+i)%len(r.lines)])
	}
	return out
}
