package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/StanleyZhang1992/stayd/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logging.Logger {
	return logging.New(logging.ERROR, false)
}

func newTestProber(url string, timeout time.Duration, tracker *Tracker) *Prober {
	return NewProber(url, 50*time.Millisecond, timeout, tracker, testLogger())
}

func TestProbeHealthyOn200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := newTestProber(srv.URL+"/healthz", time.Second, NewTracker(3))
	result := p.Probe(context.Background())

	assert.True(t, result.Healthy)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Empty(t, result.Err)
}

func TestProbeUnhealthyOnNon200(t *testing.T) {
	statuses := []int{http.StatusServiceUnavailable, http.StatusNotFound, http.StatusInternalServerError, http.StatusAccepted}
	for _, status := range statuses {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		p := newTestProber(srv.URL, time.Second, NewTracker(3))
		result := p.Probe(context.Background())
		srv.Close()

		assert.False(t, result.Healthy, "status %d must not be healthy", status)
		assert.Equal(t, status, result.StatusCode)
	}
}

func TestProbeConnectionRefusedFailsFast(t *testing.T) {
	// Bind and immediately close so the port is free but refusing.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	p := newTestProber(url, time.Second, NewTracker(3))

	start := time.Now()
	result := p.Probe(context.Background())

	assert.False(t, result.Healthy)
	assert.NotEmpty(t, result.Err)
	assert.Less(t, time.Since(start), 5*time.Second, "refused connection must not hang")
}

func TestProbeTimeoutIsAbandoned(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer func() {
		close(release)
		srv.Close()
	}()

	p := newTestProber(srv.URL, 50*time.Millisecond, NewTracker(3))

	start := time.Now()
	result := p.Probe(context.Background())

	assert.False(t, result.Healthy)
	assert.NotEmpty(t, result.Err)
	assert.Less(t, time.Since(start), 2*time.Second, "stuck probe must be abandoned at its timeout")
}

func TestProbeIsIdempotent(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		assert.Equal(t, http.MethodGet, r.Method)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := newTestProber(srv.URL, time.Second, NewTracker(3))
	for i := 0; i < 5; i++ {
		result := p.Probe(context.Background())
		assert.True(t, result.Healthy)
	}
	assert.EqualValues(t, 5, atomic.LoadInt64(&hits))
}

func TestColdStartScenario(t *testing.T) {
	// Service is "not ready" first, then flips ready, like an app finishing its
	// startup sequence.
	var ready atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tracker := NewTracker(3)
	p := newTestProber(srv.URL, time.Second, tracker)

	tracker.Observe(p.Probe(context.Background()))
	assert.Equal(t, StateStarting, tracker.State(), "probe before readiness must not report healthy")

	ready.Store(true)
	tracker.Observe(p.Probe(context.Background()))
	assert.Equal(t, StateHealthy, tracker.State())
}

func TestRunFeedsTracker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tracker := NewTracker(3)
	p := newTestProber(srv.URL, time.Second, tracker)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx, 0)
		close(done)
	}()

	require.Eventually(t, tracker.IsHealthy, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on context cancellation")
	}
}

func TestRunHonorsStartPeriod(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := newTestProber(srv.URL, time.Second, NewTracker(3))

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx, 200*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 0, atomic.LoadInt64(&hits), "no probe before the start period elapses")
	cancel()
}
