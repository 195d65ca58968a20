// SPDX-License-Identifier: MIT

// configgen emits the default camwatch configuration as commented YAML.
// The output round-trips through the strict config loader, so it is a
// safe starting point for an operator-edited config file.
//
// Usage:
//
//	configgen            # print to stdout
//	configgen -o config.yaml
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"

	"github.com/ManuGH/camwatch/internal/config"
)

func main() {
	out := flag.String("o", "", "write the YAML to this path instead of stdout")
	flag.Parse()

	data, err := render()
	if err != nil {
		fail(err)
	}

	if *out == "" {
		fmt.Print(string(data))
		return
	}
	if err := renameio.WriteFile(*out, data, 0o644); err != nil {
		fail(fmt.Errorf("write %s: %w", *out, err))
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "configgen: %v\n", err)
	os.Exit(1)
}

func render() ([]byte, error) {
	d := config.Defaults()

	doc := &yaml.Node{Kind: yaml.MappingNode}
	doc.HeadComment = "camwatch default configuration.\nEvery value below matches the built-in default; environment variables\n(CAMWATCH_*) override file values. Empty paths are derived from data_dir."

	addEntry(doc, "listen", strNode(d.Listen), "Address the HTTP API binds.")
	addEntry(doc, "data_dir", strNode(d.DataDir), "Photos, index and journal live under this directory.")

	log := addMap(doc, "log", "")
	addEntry(log, "level", strNode(d.Log.Level), "")

	device := addMap(doc, "device", "Capture backend. \"v4l2\" drives real cameras, \"fake\" synthesizes frames.")
	addEntry(device, "backend", strNode(d.Device.Backend), "")
	addEntry(device, "path", strNode(d.Device.Path), "Device node; empty means discover.")
	addEntry(device, "strategy", strNode(d.Device.Strategy), "\"prefer-external\" or \"prefer-integrated\".")
	addEntry(device, "disabled", boolNode(d.Device.Disabled), "Administrative restriction: probe but never open.")
	addEntry(device, "ffmpeg_bin", strNode(d.Device.FFmpeg), "")

	session := addMap(doc, "session", "")
	addEntry(session, "max_age", durNode(d.Session.MaxAge), "Sessions older than this are restarted.")
	addEntry(session, "permission_poll_interval", durNode(d.Session.PermissionPollInterval), "")
	addEntry(session, "denied_window", durNode(d.Session.DeniedWindow), "Denied probes inside this window collapse to one transition.")

	motion := addMap(doc, "motion", "Accelerometer-driven pause/resume. \"none\" disables it.")
	addEntry(motion, "source", strNode(d.Motion.Source), "")
	addEntry(motion, "iio_path", strNode(d.Motion.IIOPath), "IIO sysfs directory; empty means discover.")
	addEntry(motion, "sample_rate_hz", intNode(d.Motion.SampleRateHz), "")
	addEntry(motion, "threshold", floatNode(d.Motion.Threshold), "Gravity-normalized magnitude that counts as motion.")
	addEntry(motion, "idle_timeout", durNode(d.Motion.IdleTimeout), "Still for this long pauses the session.")

	photo := addMap(doc, "photo", "")
	addEntry(photo, "dir", strNode(d.Photo.Dir), "Empty derives data_dir/photos.")
	addEntry(photo, "quality", intNode(d.Photo.Quality), "JPEG quality under normal memory conditions.")
	addEntry(photo, "quality_constrained", intNode(d.Photo.QualityConstrained), "JPEG quality under memory pressure.")

	index := addMap(doc, "index", "")
	addEntry(index, "backend", strNode(d.Index.Backend), "\"badger\" persists the photo index, \"memory\" does not.")
	addEntry(index, "path", strNode(d.Index.Path), "Empty derives data_dir/index.")

	journal := addMap(doc, "journal", "")
	addEntry(journal, "path", strNode(d.Journal.Path), "Empty derives data_dir/journal.db.")

	pressure := addMap(doc, "pressure", "Memory-pressure response via PSI. \"none\" disables it.")
	addEntry(pressure, "source", strNode(d.Pressure.Source), "")
	addEntry(pressure, "poll_interval", durNode(d.Pressure.PollInterval), "")
	addEntry(pressure, "high", floatNode(d.Pressure.High), "avg10 full-stall percentage that lowers photo quality.")
	addEntry(pressure, "emergency", floatNode(d.Pressure.Emergency), "avg10 full-stall percentage that stops the session.")

	mirror := addMap(doc, "mirror", "Optional Redis state mirror for external dashboards.")
	addEntry(mirror, "enabled", boolNode(d.Mirror.Enabled), "")
	addEntry(mirror, "addr", strNode(d.Mirror.Addr), "")
	addEntry(mirror, "password", strNode(d.Mirror.Password), "")
	addEntry(mirror, "db", intNode(d.Mirror.DB), "")
	addEntry(mirror, "frame_interval", durNode(d.Mirror.FrameInterval), "")
	addEntry(mirror, "state_ttl", durNode(d.Mirror.StateTTL), "")

	webhooks := addMap(doc, "webhooks", "Event notification targets; empty list disables delivery.")
	addEntry(webhooks, "targets", seqNode(d.Webhooks.Targets), "")
	addEntry(webhooks, "allow_private", boolNode(d.Webhooks.AllowPrivate), "Permit targets resolving to private addresses.")
	addEntry(webhooks, "timeout", durNode(d.Webhooks.Timeout), "")

	api := addMap(doc, "api", "")
	addEntry(api, "rate_limit", intNode(d.API.RateLimit), "Requests per minute per client.")
	addEntry(api, "stream_fps_cap", intNode(d.API.StreamFPSCap), "Per-client MJPEG frame cap.")

	telemetry := addMap(doc, "telemetry", "OTLP trace export.")
	addEntry(telemetry, "enabled", boolNode(d.Telemetry.Enabled), "")
	addEntry(telemetry, "endpoint", strNode(d.Telemetry.Endpoint), "")
	addEntry(telemetry, "protocol", strNode(d.Telemetry.Protocol), "\"grpc\" or \"http\".")
	addEntry(telemetry, "sample_rate", floatNode(d.Telemetry.SampleRate), "")
	addEntry(telemetry, "insecure", boolNode(d.Telemetry.Insecure), "")

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close encoder: %w", err)
	}
	return buf.Bytes(), nil
}

func addEntry(m *yaml.Node, key string, value *yaml.Node, comment string) {
	k := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
	if comment != "" {
		k.HeadComment = comment
	}
	m.Content = append(m.Content, k, value)
}

func addMap(m *yaml.Node, key, comment string) *yaml.Node {
	child := &yaml.Node{Kind: yaml.MappingNode}
	addEntry(m, key, child, comment)
	return child
}

func strNode(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}

func intNode(v int) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(v)}
}

func boolNode(v bool) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(v)}
}

func floatNode(v float64) *yaml.Node {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	// Keep the rendered scalar implicitly a float so the emitter never
	// needs an explicit !!float tag.
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: s}
}

func durNode(v time.Duration) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: formatDuration(v)}
}

func seqNode(values []string) *yaml.Node {
	seq := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
	for _, v := range values {
		seq.Content = append(seq.Content, strNode(v))
	}
	return seq
}

// formatDuration renders d the way operators write it: "30m" instead of
// "30m0s", "2h" instead of "2h0m0s". Zero components are trimmed only
// when they are trailing.
func formatDuration(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	s := d.String()
	if strings.HasSuffix(s, "m0s") {
		s = strings.TrimSuffix(s, "0s")
	}
	if strings.HasSuffix(s, "h0m") {
		s = strings.TrimSuffix(s, "0m")
	}
	return s
}
