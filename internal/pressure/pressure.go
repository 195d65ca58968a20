// SPDX-License-Identifier: MIT

// Package pressure observes memory pressure and classifies it into the
// levels the session controller reacts to.
package pressure

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Level is a classified memory pressure band.
type Level string

const (
	LevelNormal    Level = "normal"
	LevelHigh      Level = "high"
	LevelEmergency Level = "emergency"
)

func (l Level) String() string { return string(l) }

// Sample is one pressure reading. Percentages are the kernel PSI
// 10 second averages.
type Sample struct {
	SomeAvg10 float64
	FullAvg10 float64
}

// Source produces pressure samples.
type Source interface {
	Read() (Sample, error)
}

// DefaultPSIPath is the kernel pressure stall information file for
// memory.
const DefaultPSIPath = "/proc/pressure/memory"

// PSISource reads Linux PSI memory pressure.
type PSISource struct {
	// Path overrides DefaultPSIPath, mainly for tests.
	Path string
}

func (s *PSISource) Read() (Sample, error) {
	path := s.Path
	if path == "" {
		path = DefaultPSIPath
	}
	f, err := os.Open(path) // #nosec G304 -- procfs path from trusted config
	if err != nil {
		return Sample{}, fmt.Errorf("read pressure: %w", err)
	}
	defer func() { _ = f.Close() }()

	var sample Sample
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		avg10, ok := parseAvg10(fields[1:])
		if !ok {
			continue
		}
		switch fields[0] {
		case "some":
			sample.SomeAvg10 = avg10
		case "full":
			sample.FullAvg10 = avg10
		}
	}
	if err := scanner.Err(); err != nil {
		return Sample{}, fmt.Errorf("read pressure: %w", err)
	}
	return sample, nil
}

// parseAvg10 extracts the avg10 value from "avg10=1.23 avg60=..." pairs.
func parseAvg10(pairs []string) (float64, bool) {
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key != "avg10" {
			continue
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, false
		}
		return v, true
	}
	return 0, false
}

// FakeSource is a scripted source for tests. Samples are consumed one
// per Read; the last entry repeats forever.
type FakeSource struct {
	Samples []Sample
	Err     error

	mu  sync.Mutex
	idx int
}

func (s *FakeSource) Read() (Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return Sample{}, s.Err
	}
	if len(s.Samples) == 0 {
		return Sample{}, nil
	}
	sample := s.Samples[s.idx]
	if s.idx < len(s.Samples)-1 {
		s.idx++
	}
	return sample, nil
}

// Set replaces the script with a single repeating sample.
func (s *FakeSource) Set(sample Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Samples = []Sample{sample}
	s.idx = 0
}

var (
	_ Source = (*PSISource)(nil)
	_ Source = (*FakeSource)(nil)
)
