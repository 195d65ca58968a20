// SPDX-License-Identifier: MIT

package log

import (
	"bytes"
	"encoding/json"
	"sync"
)

const (
	maxRecentLogs   = 256
	maxPartialBytes = 64 * 1024
	maxLineBytes    = 16 * 1024
)

// Entry is one parsed structured log line retained for the recent-logs view.
type Entry struct {
	Time    string         `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields"`
}

// BufferMetrics counts lines the recent-logs buffer dropped and why.
type BufferMetrics struct {
	DroppedPartialOverflow uint64
	DroppedTooLargeLines   uint64
	DroppedIrrelevant      uint64
	ParseFailures          uint64
}

var (
	recentMu      sync.Mutex
	recentLogs    []Entry
	bufferMetrics BufferMetrics

	recentWriter structuredBufferWriter
)

// structuredBufferWriter splits the zerolog JSON stream into lines and keeps
// the operationally relevant ones in a bounded ring. Relevant means the line
// carries an event code, or is warn level or above; plain debug chatter never
// reaches the ring.
type structuredBufferWriter struct {
	mu      sync.Mutex
	partial bytes.Buffer
}

func (w *structuredBufferWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := len(p)
	for {
		idx := bytes.IndexByte(p, '\n')
		if idx < 0 {
			break
		}
		if w.partial.Len() > 0 {
			w.partial.Write(p[:idx])
			line := append([]byte(nil), w.partial.Bytes()...)
			w.partial.Reset()
			w.ingest(line)
		} else {
			w.ingest(p[:idx])
		}
		p = p[idx+1:]
	}
	if len(p) > 0 {
		if w.partial.Len()+len(p) > maxPartialBytes {
			w.partial.Reset()
			countDrop(&bufferMetrics.DroppedPartialOverflow)
		} else {
			w.partial.Write(p)
		}
	}
	return n, nil
}

func (w *structuredBufferWriter) ingest(line []byte) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return
	}
	if len(trimmed) > maxLineBytes {
		countDrop(&bufferMetrics.DroppedTooLargeLines)
		return
	}

	var fields map[string]any
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		countDrop(&bufferMetrics.ParseFailures)
		return
	}

	level, _ := fields["level"].(string)
	event, _ := fields["event"].(string)
	if event == "" && level != "warn" && level != "error" && level != "fatal" {
		countDrop(&bufferMetrics.DroppedIrrelevant)
		return
	}

	ts, _ := fields["time"].(string)
	msg, _ := fields["message"].(string)

	recentMu.Lock()
	recentLogs = append(recentLogs, Entry{Time: ts, Level: level, Message: msg, Fields: fields})
	if len(recentLogs) > maxRecentLogs {
		recentLogs = recentLogs[len(recentLogs)-maxRecentLogs:]
	}
	recentMu.Unlock()
}

func countDrop(counter *uint64) {
	recentMu.Lock()
	*counter++
	recentMu.Unlock()
}

// GetRecentLogs returns a copy of the retained entries, oldest first.
func GetRecentLogs() []Entry {
	recentMu.Lock()
	defer recentMu.Unlock()
	out := make([]Entry, len(recentLogs))
	copy(out, recentLogs)
	return out
}

// ClearRecentLogs empties the ring and resets the drop counters.
func ClearRecentLogs() {
	recentMu.Lock()
	defer recentMu.Unlock()
	recentLogs = nil
	bufferMetrics = BufferMetrics{}
}

// GetBufferMetrics returns a snapshot of the drop counters.
func GetBufferMetrics() BufferMetrics {
	recentMu.Lock()
	defer recentMu.Unlock()
	return bufferMetrics
}
