package probe

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/StanleyZhang1992/stayd/pkg/logging"
)

// Result is the outcome of a single liveness probe. Results live in memory
// only; they are never persisted.
type Result struct {
	Healthy    bool          `json:"healthy"`
	StatusCode int           `json:"status_code,omitempty"`
	Err        string        `json:"error,omitempty"`
	CheckedAt  time.Time     `json:"checked_at"`
	Latency    time.Duration `json:"latency"`
}

// Prober issues periodic HTTP GETs against the service liveness endpoint.
// Each probe carries its own timeout; a probe that exceeds it is abandoned and
// counted as a failure, and the tick cadence is never stalled by a slow probe.
type Prober struct {
	url      string
	interval time.Duration
	client   *http.Client
	tracker  *Tracker
	logger   *logging.Logger

	// OnResult, when set before Run, is invoked after every probe with the
	// result and the state it produced. Used to feed metrics.
	OnResult func(Result, State)
}

// NewProber creates a prober for the given liveness URL.
func NewProber(url string, interval, timeout time.Duration, tracker *Tracker, logger *logging.Logger) *Prober {
	return &Prober{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: timeout},
		tracker:  tracker,
		logger:   logger,
	}
}

// Probe issues a single liveness check. Healthy means status exactly 200
// within the timeout; anything else (other status, timeout, refused) is a
// failure. A GET against the liveness path mutates nothing in the service.
func (p *Prober) Probe(ctx context.Context) Result {
	result := Result{CheckedAt: time.Now()}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		result.Err = err.Error()
		return result
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	result.Latency = time.Since(start)

	if err != nil {
		result.Err = err.Error()
		return result
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode
	if resp.StatusCode != http.StatusOK {
		result.Err = fmt.Sprintf("HTTP %d", resp.StatusCode)
		return result
	}

	result.Healthy = true
	return result
}

// Run probes on a fixed interval until ctx is cancelled, feeding every result
// into the tracker. startPeriod delays the first probe so a cold-starting
// service is not immediately counted against.
func (p *Prober) Run(ctx context.Context, startPeriod time.Duration) {
	if startPeriod > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(startPeriod):
		}
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runOnce(ctx)
		}
	}
}

func (p *Prober) runOnce(ctx context.Context) {
	result := p.Probe(ctx)
	state := p.tracker.Observe(result)

	if p.OnResult != nil {
		p.OnResult(result, state)
	}

	if result.Healthy {
		p.logger.Debug("probe ok", map[string]interface{}{
			"latency_ms": float64(result.Latency.Microseconds()) / 1000.0,
			"state":      state.String(),
		})
	} else {
		p.logger.Warn("probe failed", map[string]interface{}{
			"error": result.Err,
			"state": state.String(),
		})
	}
}
