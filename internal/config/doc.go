// SPDX-License-Identifier: MIT

// Package config loads, validates, and hot-reloads the daemon configuration.
// Precedence is ENV > file > defaults; file parsing is strict (unknown keys
// are rejected).
package config
