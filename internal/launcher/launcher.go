package launcher

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/StanleyZhang1992/stayd/pkg/logging"
)

// Options configures a launcher.
type Options struct {
	// Addr is the service bind address, e.g. "0.0.0.0:8000".
	Addr string

	// Command is the worker argv.
	Command []string

	// Workers is the number of service processes to spawn.
	Workers int

	// DataDir is exported to workers as STAYD_DATA_DIR.
	DataDir string

	// GracePeriod bounds the SIGTERM drain before SIGKILL.
	GracePeriod time.Duration
}

// Worker is one spawned service process.
type Worker struct {
	ID        int       `json:"id"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`

	cmd  *exec.Cmd
	done chan struct{}
}

// ExitEvent reports a worker process exit.
type ExitEvent struct {
	WorkerID int
	PID      int
	Code     int
	Err      error
}

// Launcher binds the service socket exactly once and runs N worker processes
// that inherit it. It observes worker exits but never restarts anything;
// remediation belongs to the container orchestrator.
type Launcher struct {
	opts   Options
	logger *logging.Logger

	mu       sync.Mutex
	listener *net.TCPListener
	workers  []*Worker
	exitCh   chan ExitEvent
	stopping bool
}

// New creates a launcher. Bind and Start are separate steps so a bind failure
// surfaces before any process is spawned.
func New(opts Options, logger *logging.Logger) *Launcher {
	return &Launcher{
		opts:   opts,
		logger: logger,
		exitCh: make(chan ExitEvent, opts.Workers),
	}
}

// Bind opens the single listening socket all workers will share. Failure
// (port in use, permission denied) is fatal for startup.
func (l *Launcher) Bind() error {
	ln, err := net.Listen("tcp", l.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", l.opts.Addr, err)
	}
	l.mu.Lock()
	l.listener = ln.(*net.TCPListener)
	l.mu.Unlock()

	l.logger.Info("listening socket bound", map[string]interface{}{
		"addr": ln.Addr().String(),
	})
	return nil
}

// Addr returns the bound address. Valid after Bind.
func (l *Launcher) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener == nil {
		return nil
	}
	return l.listener.Addr()
}

// Port returns the bound TCP port. Valid after Bind.
func (l *Launcher) Port() int {
	addr := l.Addr()
	if addr == nil {
		return 0
	}
	return addr.(*net.TCPAddr).Port
}

// Start spawns the configured number of workers. Each worker inherits the
// listening socket as fd 3 (socket-activation convention) and runs in its own
// process group so signals can be delivered to the whole worker tree.
func (l *Launcher) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.listener == nil {
		return fmt.Errorf("Start called before Bind")
	}
	if len(l.opts.Command) == 0 {
		return fmt.Errorf("no worker command configured")
	}

	port := l.listener.Addr().(*net.TCPAddr).Port

	for i := 0; i < l.opts.Workers; i++ {
		worker, err := l.spawn(i, port)
		if err != nil {
			// Partial start is a failed start: tear down what came up.
			for _, w := range l.workers {
				syscall.Kill(-w.PID, syscall.SIGKILL)
			}
			l.workers = nil
			return fmt.Errorf("failed to start worker %d: %w", i, err)
		}
		l.workers = append(l.workers, worker)
	}

	return nil
}

// spawn starts one worker. Caller holds the lock.
func (l *Launcher) spawn(id, port int) (*Worker, error) {
	// Each child needs its own dup of the listener; ExtraFiles closes the
	// passed file in the parent after start.
	file, err := l.listener.File()
	if err != nil {
		return nil, fmt.Errorf("failed to dup listener: %w", err)
	}

	cmd := exec.Command(l.opts.Command[0], l.opts.Command[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{file} // becomes fd 3 in the child
	cmd.Env = append(os.Environ(),
		"LISTEN_FDS=1",
		"STAYD_LISTEN_FD=3",
		fmt.Sprintf("STAYD_WORKER_ID=%d", id),
		fmt.Sprintf("STAYD_DATA_DIR=%s", l.opts.DataDir),
		fmt.Sprintf("PORT=%d", port),
	)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true, // worker becomes its own group leader
	}

	if err := cmd.Start(); err != nil {
		file.Close()
		return nil, err
	}
	file.Close()

	worker := &Worker{
		ID:        id,
		PID:       cmd.Process.Pid,
		StartedAt: time.Now(),
		cmd:       cmd,
		done:      make(chan struct{}),
	}

	l.logger.Info("worker started", map[string]interface{}{
		"worker_id": id,
		"pid":       worker.PID,
	})

	go l.reap(worker)
	return worker, nil
}

// reap waits for a worker to exit and publishes the event.
func (l *Launcher) reap(w *Worker) {
	err := w.cmd.Wait()

	code := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}

	l.mu.Lock()
	stopping := l.stopping
	l.mu.Unlock()

	if !stopping {
		l.logger.Warn("worker exited", map[string]interface{}{
			"worker_id": w.ID,
			"pid":       w.PID,
			"exit_code": code,
		})
	}

	// exitCh is buffered to the worker count, so this never blocks even when
	// nobody is consuming (e.g. during Stop).
	l.exitCh <- ExitEvent{WorkerID: w.ID, PID: w.PID, Code: code, Err: err}
	close(w.done)
}

// Exits returns the channel of worker exit events.
func (l *Launcher) Exits() <-chan ExitEvent {
	return l.exitCh
}

// Workers returns a snapshot of the spawned workers.
func (l *Launcher) Workers() []Worker {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Worker, 0, len(l.workers))
	for _, w := range l.workers {
		out = append(out, Worker{ID: w.ID, PID: w.PID, StartedAt: w.StartedAt})
	}
	return out
}

// Stop drains the workers: SIGTERM to every worker process group, wait up to
// the grace period for in-flight requests to finish, then SIGKILL whatever is
// left. Always closes the listener.
func (l *Launcher) Stop(ctx context.Context) error {
	l.mu.Lock()
	l.stopping = true
	workers := make([]*Worker, len(l.workers))
	copy(workers, l.workers)
	listener := l.listener
	l.mu.Unlock()

	for _, w := range workers {
		syscall.Kill(-w.PID, syscall.SIGTERM)
	}

	deadline := time.After(l.opts.GracePeriod)
	killed := false

	for _, w := range workers {
		for {
			select {
			case <-w.done:
			case <-deadline:
				if !killed {
					l.logger.Warn("grace period expired, killing remaining workers")
					for _, kw := range workers {
						syscall.Kill(-kw.PID, syscall.SIGKILL)
					}
					killed = true
				}
				continue
			case <-ctx.Done():
				for _, kw := range workers {
					syscall.Kill(-kw.PID, syscall.SIGKILL)
				}
				return ctx.Err()
			}
			break
		}
	}

	if listener != nil {
		listener.Close()
	}

	l.logger.Info("all workers stopped")
	return nil
}
