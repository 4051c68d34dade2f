package supervisor

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/StanleyZhang1992/stayd/internal/admin"
	"github.com/StanleyZhang1992/stayd/internal/config"
	"github.com/StanleyZhang1992/stayd/internal/launcher"
	"github.com/StanleyZhang1992/stayd/internal/metrics"
	"github.com/StanleyZhang1992/stayd/internal/preflight"
	"github.com/StanleyZhang1992/stayd/internal/probe"
	"github.com/StanleyZhang1992/stayd/internal/state"
	"github.com/StanleyZhang1992/stayd/pkg/logging"
	"github.com/StanleyZhang1992/stayd/pkg/shutdown"
)

// Supervisor owns one service lifecycle: preflight, bind, spawn, probe,
// observe, drain. It never restarts workers; a worker that dies takes the
// whole instance down with a non-zero exit so the orchestrator can act.
type Supervisor struct {
	cfg        *config.Config
	version    string
	instanceID string
	logger     *logging.Logger

	mgr *shutdown.Manager
}

// New creates a supervisor for one run.
func New(cfg *config.Config, version string, logger *logging.Logger) *Supervisor {
	return &Supervisor{
		cfg:        cfg,
		version:    version,
		instanceID: uuid.New().String(),
		logger:     logger,
		mgr:        shutdown.New(cfg.GracePeriod+5*time.Second, logger),
	}
}

// Stop initiates shutdown from outside (tests, embedding). Safe to call
// multiple times.
func (s *Supervisor) Stop() {
	s.mgr.Trigger()
}

// Run executes the full lifecycle and returns the process exit code:
// 0 for a signal-initiated clean shutdown, non-zero for any startup failure
// or unexpected worker exit.
func (s *Supervisor) Run() (int, error) {
	startedAt := time.Now()
	logger := s.logger.WithField("instance", s.instanceID)

	logger.Info("starting supervisor", map[string]interface{}{
		"version": s.version,
		"port":    s.cfg.Port,
		"workers": s.cfg.Workers,
	})

	// Preflight: identity and data dir, before anything is spawned.
	ident, err := preflight.Run(s.cfg.DataDir, s.cfg.AllowRoot)
	if err != nil {
		return 1, fmt.Errorf("preflight failed: %w", err)
	}
	logger.Info("preflight passed", map[string]interface{}{
		"uid":      ident.UID,
		"username": ident.Username,
		"data_dir": s.cfg.DataDir,
	})

	// Bind the one listening socket; failure here is a failed start.
	l := launcher.New(launcher.Options{
		Addr:        s.cfg.ListenAddr(),
		Command:     s.cfg.Command,
		Workers:     s.cfg.Workers,
		DataDir:     s.cfg.DataDir,
		GracePeriod: s.cfg.GracePeriod,
	}, logger)
	if err := l.Bind(); err != nil {
		return 1, err
	}

	if err := l.Start(); err != nil {
		l.Stop(context.Background())
		return 1, err
	}

	collector := metrics.NewCollector()
	collector.SetWorkersRunning(s.cfg.Workers)

	// Persist lifecycle metadata so operators can correlate restarts.
	stateMgr := state.NewManager(s.cfg.DataDir)
	runState := &state.RunState{
		InstanceID: s.instanceID,
		Version:    s.version,
		PID:        os.Getpid(),
		Port:       l.Port(),
		StartedAt:  startedAt,
	}
	for _, w := range l.Workers() {
		runState.Workers = append(runState.Workers, state.WorkerState{
			ID: w.ID, PID: w.PID, StartedAt: w.StartedAt,
		})
	}
	if err := stateMgr.Save(runState); err != nil {
		logger.Warn("failed to persist run state", map[string]interface{}{
			"error": err.Error(),
		})
	}

	// Liveness prober, decoupled from the workers.
	tracker := probe.NewTracker(s.cfg.FailureThreshold)
	prober := probe.NewProber(s.cfg.HealthURL(), s.cfg.ProbeInterval, s.cfg.ProbeTimeout, tracker, logger)
	prober.OnResult = func(result probe.Result, st probe.State) {
		collector.ObserveProbe(result.Healthy, result.Latency, int(st), tracker.ConsecutiveFailures())
	}

	probeCtx, cancelProbe := context.WithCancel(context.Background())
	go prober.Run(probeCtx, s.cfg.StartPeriod)

	// Local admin surface.
	adminSrv := admin.NewServer(s.cfg.AdminAddr(), admin.Info{
		InstanceID: s.instanceID,
		Version:    s.version,
		PID:        os.Getpid(),
		Port:       l.Port(),
		Workers:    s.cfg.Workers,
		StartedAt:  startedAt,
	}, tracker, l, collector, logger)
	go func() {
		if err := adminSrv.Start(); err != nil {
			logger.Error("admin server failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	// Shutdown order (LIFO): drain workers, remove state, stop admin.
	s.mgr.Register(shutdown.StopHTTPServer(adminSrv, "admin", logger))
	s.mgr.Register(func(ctx context.Context) error {
		return stateMgr.Remove()
	})
	s.mgr.Register(func(ctx context.Context) error {
		cancelProbe()
		return l.Stop(ctx)
	})

	// Watch for a worker dying on its own. No restart: surface and exit.
	exitCode := 0
	workerFailed := make(chan int, 1)
	go func() {
		select {
		case ev := <-l.Exits():
			collector.RecordWorkerExit()
			collector.SetWorkersRunning(s.cfg.Workers - 1)
			code := ev.Code
			if code == 0 {
				// A worker leaving quietly is still a broken instance.
				code = 1
			}
			select {
			case workerFailed <- code:
			default:
			}
			s.mgr.Trigger()
		case <-s.mgr.Done():
		}
	}()

	logger.Info("supervisor running", map[string]interface{}{
		"health_url": s.cfg.HealthURL(),
		"admin_addr": s.cfg.AdminAddr(),
	})

	s.mgr.Wait()

	select {
	case code := <-workerFailed:
		exitCode = code
		return exitCode, fmt.Errorf("worker exited unexpectedly (code %d)", code)
	default:
	}

	return exitCode, nil
}
