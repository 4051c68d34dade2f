package supervisor

import (
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StanleyZhang1992/stayd/internal/config"
	"github.com/StanleyZhang1992/stayd/pkg/logging"
)

func testLogger() *logging.Logger {
	return logging.New(logging.ERROR, false)
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func testConfig(t *testing.T, command []string) *config.Config {
	t.Helper()
	return &config.Config{
		Port:             freePort(t),
		Workers:          2,
		Command:          command,
		DataDir:          t.TempDir(),
		HealthPath:       "/healthz",
		AdminPort:        freePort(t),
		ProbeInterval:    200 * time.Millisecond,
		ProbeTimeout:     100 * time.Millisecond,
		FailureThreshold: 3,
		StartPeriod:      0,
		GracePeriod:      2 * time.Second,
		AllowRoot:        true,
	}
}

func TestRunAndCleanStop(t *testing.T) {
	cfg := testConfig(t, []string{"sleep", "30"})
	s := New(cfg, "test", testLogger())

	done := make(chan struct{})
	var code int
	var runErr error
	go func() {
		code, runErr = s.Run()
		close(done)
	}()

	// Wait until the admin surface is up, then stop.
	adminURL := fmt.Sprintf("http://127.0.0.1:%d/livez", cfg.AdminPort)
	require.Eventually(t, func() bool {
		resp, err := http.Get(adminURL)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	s.Stop()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after Stop")
	}

	assert.NoError(t, runErr)
	assert.Equal(t, 0, code)
}

func TestWorkerDeathTakesInstanceDown(t *testing.T) {
	cfg := testConfig(t, []string{"sh", "-c", "sleep 0.2; exit 7"})
	s := New(cfg, "test", testLogger())

	done := make(chan struct{})
	var code int
	var runErr error
	go func() {
		code, runErr = s.Run()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(15 * time.Second):
		t.Fatal("Run did not return after worker death")
	}

	assert.Error(t, runErr)
	assert.Equal(t, 7, code)
}

func TestBindConflictFailsStart(t *testing.T) {
	cfg := testConfig(t, []string{"sleep", "30"})

	blocker, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", cfg.Port))
	require.NoError(t, err)
	defer blocker.Close()

	s := New(cfg, "test", testLogger())
	code, runErr := s.Run()

	assert.Error(t, runErr)
	assert.NotZero(t, code)
}

func TestMissingCommandFailsStart(t *testing.T) {
	cfg := testConfig(t, nil)
	s := New(cfg, "test", testLogger())

	code, runErr := s.Run()
	assert.Error(t, runErr)
	assert.NotZero(t, code)
}
