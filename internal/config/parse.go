// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"strings"

	platformnet "github.com/ManuGH/camwatch/internal/platform/net"
)

// ParseWebhookTargets parses CAMWATCH_WEBHOOK_TARGETS.
// Supported form: a comma-separated list of http(s) URLs. Duplicates are
// dropped, order of first appearance is kept.
func ParseWebhookTargets(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil // nil => "no targets configured"
	}

	var out []string
	seen := map[string]struct{}{}

	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		if _, ok := platformnet.ParseDirectHTTPURL(p); !ok {
			return nil, fmt.Errorf("invalid webhook target %q: must be a direct http(s) URL", p)
		}

		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}

	return out, nil
}
