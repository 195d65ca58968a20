// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/camwatch/internal/log"
)

// lookupEnv reads key and converts it with parse. Unset and empty
// variables keep the default; a value parse rejects keeps the default
// too, so a typo can never silently zero a tuning knob. Every choice
// is debug-logged with its source.
func lookupEnv[T any](key string, defaultValue T, parse func(string) (T, error)) T {
	logger := log.WithComponent("config")
	raw, ok := os.LookupEnv(key)
	if !ok {
		logger.Debug().
			Str("key", key).
			Any("default", defaultValue).
			Str("source", "default").
			Msg("using default value")
		return defaultValue
	}
	if raw == "" {
		logger.Debug().
			Str("key", key).
			Any("default", defaultValue).
			Str("source", "default").
			Msg("using default value (environment variable is empty)")
		return defaultValue
	}
	v, err := parse(raw)
	if err != nil {
		logger.Warn().
			Str("key", key).
			Str("value", raw).
			Any("default", defaultValue).
			Msg("invalid value in environment variable, using default")
		return defaultValue
	}
	logger.Debug().
		Str("key", key).
		Any("value", v).
		Str("source", "environment").
		Msg("using environment variable")
	return v
}

// ParseString reads a string environment variable. Values of keys that
// look like credentials are never written to the log.
func ParseString(key, defaultValue string) string {
	logger := log.WithComponent("config")
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		logger.Debug().
			Str("key", key).
			Str("default", defaultValue).
			Str("source", "default").
			Msg("using default value")
		return defaultValue
	}
	ev := logger.Debug().Str("key", key).Str("source", "environment")
	if sensitiveKey(key) {
		ev.Bool("sensitive", true)
	} else {
		ev.Str("value", raw)
	}
	ev.Msg("using environment variable")
	return raw
}

func sensitiveKey(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "token") || strings.Contains(k, "password") || strings.Contains(k, "secret")
}

// ParseInt reads an integer environment variable.
func ParseInt(key string, defaultValue int) int {
	return lookupEnv(key, defaultValue, strconv.Atoi)
}

// ParseDuration reads a duration environment variable in Go duration
// format, e.g. "5s" or "1m30s". Bare numbers are rejected.
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	return lookupEnv(key, defaultValue, time.ParseDuration)
}

// ParseFloat reads a float64 environment variable.
func ParseFloat(key string, defaultValue float64) float64 {
	return lookupEnv(key, defaultValue, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}

// ParseBool reads a boolean environment variable. It accepts "true",
// "false", "1", "0", "yes", "no" in any case.
func ParseBool(key string, defaultValue bool) bool {
	return lookupEnv(key, defaultValue, parseBoolWord)
}

func parseBoolWord(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", s)
}
