// SPDX-License-Identifier: MIT

package ratelimit

import (
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestRateLimiterGlobal(t *testing.T) {
	config := Config{
		GlobalRate:      10,
		GlobalBurst:     20,
		PerIPRate:       100,
		PerIPBurst:      200,
		ClassRates:      map[string]rate.Limit{ClassRead: 100},
		ClassBurst:      map[string]int{ClassRead: 200},
		CleanupInterval: 1 * time.Minute,
	}
	limiter := New(config)

	allowed := 0
	for i := 0; i < 25; i++ {
		if limiter.Allow("192.168.1.1", ClassRead) {
			allowed++
		}
	}

	// Should be around the global burst of 20.
	if allowed < 19 || allowed > 21 {
		t.Errorf("expected ~20 requests to pass with burst=20, got %d", allowed)
	}
}

func TestRateLimiterPerClass(t *testing.T) {
	config := Config{
		GlobalRate:  100,
		GlobalBurst: 200,
		PerIPRate:   100,
		PerIPBurst:  200,
		ClassRates: map[string]rate.Limit{
			ClassCapture: 5,
		},
		ClassBurst: map[string]int{
			ClassCapture: 10,
		},
		CleanupInterval: 1 * time.Minute,
	}
	limiter := New(config)

	allowed := 0
	for i := 0; i < 20; i++ {
		if limiter.Allow("192.168.1.2", ClassCapture) {
			allowed++
		}
	}

	// Should be around the capture class burst of 10.
	if allowed < 9 || allowed > 11 {
		t.Errorf("expected ~10 capture requests to pass with burst=10, got %d", allowed)
	}
}

func TestRateLimiterUnknownClassSkipsClassBudget(t *testing.T) {
	config := Config{
		GlobalRate:      100,
		GlobalBurst:     200,
		PerIPRate:       100,
		PerIPBurst:      200,
		ClassRates:      map[string]rate.Limit{ClassCapture: 1},
		ClassBurst:      map[string]int{ClassCapture: 1},
		CleanupInterval: 1 * time.Minute,
	}
	limiter := New(config)

	allowed := 0
	for i := 0; i < 50; i++ {
		if limiter.Allow("192.168.1.9", "unbudgeted") {
			allowed++
		}
	}

	if allowed != 50 {
		t.Errorf("expected all 50 unbudgeted requests to pass, got %d", allowed)
	}
}

func TestRateLimiterPerIP(t *testing.T) {
	config := Config{
		GlobalRate:      100,
		GlobalBurst:     200,
		PerIPRate:       5,
		PerIPBurst:      10,
		ClassRates:      map[string]rate.Limit{ClassRead: 100},
		ClassBurst:      map[string]int{ClassRead: 200},
		CleanupInterval: 1 * time.Minute,
	}
	limiter := New(config)

	ip := "192.168.1.3"
	allowed := 0
	for i := 0; i < 20; i++ {
		if limiter.Allow(ip, ClassRead) {
			allowed++
		}
	}

	if allowed < 9 || allowed > 11 {
		t.Errorf("expected ~10 per-IP requests to pass with burst=10, got %d", allowed)
	}

	// A different IP gets its own bucket.
	allowed2 := 0
	for i := 0; i < 20; i++ {
		if limiter.Allow("192.168.1.4", ClassRead) {
			allowed2++
		}
	}

	if allowed2 < 9 || allowed2 > 11 {
		t.Errorf("expected ~10 requests for second IP, got %d", allowed2)
	}
}

func TestConfigForRate(t *testing.T) {
	cfg := ConfigForRate(120)
	if cfg.PerIPRate != 2 {
		t.Errorf("expected 2 rps for 120/min, got %v", cfg.PerIPRate)
	}
	if cfg.PerIPBurst != 40 {
		t.Errorf("expected burst 40 for 120/min, got %d", cfg.PerIPBurst)
	}

	// Tiny budgets keep a usable floor burst.
	cfg = ConfigForRate(6)
	if cfg.PerIPBurst != 5 {
		t.Errorf("expected floor burst 5, got %d", cfg.PerIPBurst)
	}

	// Non-positive means defaults.
	def := DefaultConfig()
	cfg = ConfigForRate(0)
	if cfg.PerIPRate != def.PerIPRate || cfg.PerIPBurst != def.PerIPBurst {
		t.Errorf("expected defaults for 0, got rate=%v burst=%d", cfg.PerIPRate, cfg.PerIPBurst)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{
			name:       "X-Forwarded-For single IP",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.1"},
			remoteAddr: "192.168.1.1:12345",
			want:       "203.0.113.1",
		},
		{
			name:       "X-Forwarded-For multiple IPs",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.1, 192.168.1.1, 10.0.0.1"},
			remoteAddr: "127.0.0.1:12345",
			want:       "203.0.113.1",
		},
		{
			name:       "X-Real-IP",
			headers:    map[string]string{"X-Real-IP": "203.0.113.2"},
			remoteAddr: "192.168.1.1:12345",
			want:       "203.0.113.2",
		},
		{
			name:       "Fallback to RemoteAddr",
			headers:    map[string]string{},
			remoteAddr: "192.168.1.100:54321",
			want:       "192.168.1.100",
		},
		{
			name:       "X-Forwarded-For with spaces",
			headers:    map[string]string{"X-Forwarded-For": "  203.0.113.5  "},
			remoteAddr: "192.168.1.1:12345",
			want:       "203.0.113.5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			req.RemoteAddr = tt.remoteAddr

			got := GetClientIP(req)
			if got != tt.want {
				t.Errorf("GetClientIP() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	config := Config{
		GlobalRate:      100,
		GlobalBurst:     200,
		PerIPRate:       10,
		PerIPBurst:      20,
		ClassRates:      map[string]rate.Limit{ClassRead: 100},
		ClassBurst:      map[string]int{ClassRead: 200},
		CleanupInterval: 100 * time.Millisecond,
	}
	limiter := New(config)

	for i := 0; i < 10; i++ {
		ip := fmt.Sprintf("192.168.1.%d", 100+i)
		limiter.Allow(ip, ClassRead)
	}

	limiter.mu.RLock()
	countBefore := len(limiter.perIP)
	limiter.mu.RUnlock()

	if countBefore != 10 {
		t.Errorf("expected 10 IP limiters, got %d", countBefore)
	}

	time.Sleep(150 * time.Millisecond)

	// The next allowed request triggers the sweep, then registers itself.
	limiter.Allow("192.168.1.200", ClassRead)

	limiter.mu.RLock()
	countAfter := len(limiter.perIP)
	limiter.mu.RUnlock()

	if countAfter != 1 {
		t.Errorf("expected 1 IP limiter after cleanup, got %d", countAfter)
	}
}

func BenchmarkRateLimiterAllow(b *testing.B) {
	config := DefaultConfig()
	limiter := New(config)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		limiter.Allow("192.168.1.1", ClassRead)
	}
}

func BenchmarkGetClientIP(b *testing.B) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.1, 192.168.1.1")
	req.RemoteAddr = "192.168.1.100:54321"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		GetClientIP(req)
	}
}
