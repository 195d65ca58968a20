// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/camwatch/internal/config"
	"github.com/ManuGH/camwatch/internal/log"
)

func testHolder() *config.Holder {
	return config.NewHolder(config.Config{}, nil, "")
}

func testDeps(handler http.Handler) Deps {
	return Deps{
		Logger:     log.WithComponent("test"),
		Holder:     testHolder(),
		APIHandler: handler,
	}
}

func testServerConfig(addr string) ServerConfig {
	return ServerConfig{
		ListenAddr:      addr,
		ReadTimeout:     time.Second,
		IdleTimeout:     10 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: 2 * time.Second,
	}
}

func reserveListenAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func waitForListen(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server on %s did not start listening", addr)
}

func TestNewManager_ValidDeps(t *testing.T) {
	mgr, err := NewManager(testServerConfig("127.0.0.1:0"), testDeps(http.NotFoundHandler()))
	require.NoError(t, err)
	require.NotNil(t, mgr)
}

func TestNewManager_RejectsMissingDeps(t *testing.T) {
	tests := []struct {
		name string
		deps Deps
		want error
	}{
		{
			name: "disabled logger",
			deps: Deps{Logger: zerolog.Nop(), Holder: testHolder(), APIHandler: http.NotFoundHandler()},
			want: ErrMissingLogger,
		},
		{
			name: "nil api handler",
			deps: Deps{Logger: log.WithComponent("test"), Holder: testHolder()},
			want: ErrMissingAPIHandler,
		},
		{
			name: "nil config holder",
			deps: Deps{Logger: log.WithComponent("test"), APIHandler: http.NotFoundHandler()},
			want: ErrMissingHolder,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewManager(testServerConfig("127.0.0.1:0"), tt.deps)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestManager_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	addr := reserveListenAddr(t)
	mgr, err := NewManager(testServerConfig(addr), testDeps(handler))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() { errChan <- mgr.Start(ctx) }()

	waitForListen(t, addr)

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + addr + "/")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()

	select {
	case err := <-errChan:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after context cancellation")
	}
}

func TestManager_StartTwice(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	addr := reserveListenAddr(t)
	mgr, err := NewManager(testServerConfig(addr), testDeps(http.NotFoundHandler()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() { errChan <- mgr.Start(ctx) }()
	waitForListen(t, addr)

	err = mgr.Start(ctx)
	require.ErrorContains(t, err, "already started")

	cancel()
	select {
	case err := <-errChan:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after context cancellation")
	}
}

// Request contexts descend from the run context, so long-lived streams
// terminate when the daemon shuts down instead of blocking it.
func TestManager_RequestContextEndsOnShutdown(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	handlerStarted := make(chan struct{})
	handlerCtxDone := make(chan struct{})
	handler := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		close(handlerStarted)
		<-r.Context().Done()
		close(handlerCtxDone)
	})

	addr := reserveListenAddr(t)
	mgr, err := NewManager(testServerConfig(addr), testDeps(handler))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() { errChan <- mgr.Start(ctx) }()
	waitForListen(t, addr)

	requestDone := make(chan struct{})
	go func() {
		defer close(requestDone)
		client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
		req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "http://"+addr, nil)
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
		}
	}()

	select {
	case <-handlerStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("request never reached the handler")
	}

	cancel()

	select {
	case <-handlerCtxDone:
	case <-time.After(2 * time.Second):
		t.Fatal("request context did not end on shutdown")
	}

	select {
	case err := <-errChan:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after context cancellation")
	}

	<-requestDone
}

// A handler that ignores its context still cannot hold shutdown beyond
// the configured timeout.
func TestManager_ShutdownTimesOutOnHungRequest(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	requestStarted := make(chan struct{})
	releaseHandler := make(chan struct{})
	handler := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		close(requestStarted)
		<-releaseHandler
	})

	addr := reserveListenAddr(t)
	cfg := testServerConfig(addr)
	cfg.ShutdownTimeout = 100 * time.Millisecond

	mgr, err := NewManager(cfg, testDeps(handler))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() { errChan <- mgr.Start(ctx) }()
	waitForListen(t, addr)

	requestDone := make(chan struct{})
	go func() {
		defer close(requestDone)
		client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
		req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "http://"+addr, nil)
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
		}
	}()

	select {
	case <-requestStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("expected an in-flight request before shutdown")
	}

	cancel()

	select {
	case err := <-errChan:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "shutdown errors")
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after context cancellation")
	}

	close(releaseHandler)

	select {
	case <-requestDone:
	case <-time.After(2 * time.Second):
		t.Fatal("blocked request did not terminate after shutdown")
	}
}

func TestManager_ShutdownNotStarted(t *testing.T) {
	mgr, err := NewManager(testServerConfig("127.0.0.1:0"), testDeps(http.NotFoundHandler()))
	require.NoError(t, err)

	err = mgr.Shutdown(context.Background())
	require.ErrorIs(t, err, ErrManagerNotStarted)
}

func TestManager_ShutdownIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	addr := reserveListenAddr(t)
	mgr, err := NewManager(testServerConfig(addr), testDeps(http.NotFoundHandler()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() { errChan <- mgr.Start(ctx) }()
	waitForListen(t, addr)

	cancel()
	select {
	case err := <-errChan:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after context cancellation")
	}

	// Everything already stopped; a second shutdown is a no-op.
	require.NoError(t, mgr.Shutdown(context.Background()))
}

func TestManager_HooksRunLIFO(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	addr := reserveListenAddr(t)
	mgr, err := NewManager(testServerConfig(addr), testDeps(http.NotFoundHandler()))
	require.NoError(t, err)

	var mu sync.Mutex
	var order []string
	hook := func(name string) ShutdownHook {
		return func(ctx context.Context) error {
			require.NotNil(t, ctx)
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}
	mgr.RegisterShutdownHook("first", hook("first"))
	mgr.RegisterShutdownHook("second", hook("second"))
	mgr.RegisterShutdownHook("third", hook("third"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() { errChan <- mgr.Start(ctx) }()
	waitForListen(t, addr)

	cancel()
	select {
	case err := <-errChan:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after context cancellation")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"third", "second", "first"}, order)
}

func TestManager_HookFailureSurfaces(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	addr := reserveListenAddr(t)
	mgr, err := NewManager(testServerConfig(addr), testDeps(http.NotFoundHandler()))
	require.NoError(t, err)

	errHook := errors.New("journal refused to close")
	mgr.RegisterShutdownHook("journal", func(context.Context) error { return errHook })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() { errChan <- mgr.Start(ctx) }()
	waitForListen(t, addr)

	cancel()
	select {
	case err := <-errChan:
		require.ErrorIs(t, err, errHook)
		assert.Contains(t, err.Error(), "shutdown errors")
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after context cancellation")
	}
}

func TestManager_PropagatesListenError(t *testing.T) {
	// Occupy the port so the manager cannot bind it.
	occupant := httptest.NewServer(http.NotFoundHandler())
	defer occupant.Close()
	addr := occupant.Listener.Addr().String()

	mgr, err := NewManager(testServerConfig(addr), testDeps(http.NotFoundHandler()))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = mgr.Start(ctx)
	require.ErrorIs(t, err, ErrServerStartFailed)
}
