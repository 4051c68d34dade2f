package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/StanleyZhang1992/stayd/internal/launcher"
	"github.com/StanleyZhang1992/stayd/internal/metrics"
	"github.com/StanleyZhang1992/stayd/internal/probe"
	"github.com/StanleyZhang1992/stayd/pkg/logging"
)

// Info identifies the running supervisor instance.
type Info struct {
	InstanceID string    `json:"instance_id"`
	Version    string    `json:"version"`
	PID        int       `json:"pid"`
	Port       int       `json:"port"`
	Workers    int       `json:"workers"`
	StartedAt  time.Time `json:"started_at"`
}

// WorkerStatus is the per-worker view served at /status. Resource numbers are
// best effort; a worker that just exited simply reports zeroes.
type WorkerStatus struct {
	ID         int     `json:"id"`
	PID        int     `json:"pid"`
	Uptime     string  `json:"uptime"`
	RSSBytes   uint64  `json:"rss_bytes,omitempty"`
	CPUPercent float64 `json:"cpu_percent,omitempty"`
}

// StatusResponse is the full status document.
type StatusResponse struct {
	Info    Info                   `json:"info"`
	Uptime  string                 `json:"uptime"`
	Health  map[string]interface{} `json:"health"`
	Workers []WorkerStatus         `json:"workers"`
}

// Server is the loopback observability surface: status JSON, supervisor
// liveness, and Prometheus metrics. It never serves application traffic.
type Server struct {
	info      Info
	tracker   *probe.Tracker
	launcher  *launcher.Launcher
	collector *metrics.Collector
	logger    *logging.Logger

	httpSrv *http.Server
}

// NewServer creates the admin server bound to addr.
func NewServer(addr string, info Info, tracker *probe.Tracker, l *launcher.Launcher, collector *metrics.Collector, logger *logging.Logger) *Server {
	s := &Server{
		info:      info,
		tracker:   tracker,
		launcher:  l,
		collector: collector,
		logger:    logger,
	}

	router := mux.NewRouter()
	s.RegisterRoutes(router)

	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// RegisterRoutes mounts the admin endpoints on a router.
func (s *Server) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/status", s.handleStatus).Methods("GET")
	router.HandleFunc("/livez", s.handleLivez).Methods("GET")
	router.Handle("/metrics", s.collector.Handler()).Methods("GET")
}

// Start serves until Shutdown. Blocks; run in a goroutine.
func (s *Server) Start() error {
	s.logger.Info("admin server listening", map[string]interface{}{
		"addr": s.httpSrv.Addr,
	})
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the admin server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// handleLivez reports supervisor (not service) liveness. The service's own
// health is the workers' /healthz, probed out of band.
func (s *Server) handleLivez(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK\n"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Info:    s.info,
		Uptime:  time.Since(s.info.StartedAt).Round(time.Second).String(),
		Health:  s.tracker.Report(),
		Workers: s.workerStatuses(),
	}

	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		s.logger.Error("failed to encode status response",
			map[string]interface{}{"error": err.Error()})
	}
}

func (s *Server) workerStatuses() []WorkerStatus {
	workers := s.launcher.Workers()
	out := make([]WorkerStatus, 0, len(workers))

	for _, worker := range workers {
		ws := WorkerStatus{
			ID:     worker.ID,
			PID:    worker.PID,
			Uptime: time.Since(worker.StartedAt).Round(time.Second).String(),
		}

		if proc, err := process.NewProcess(int32(worker.PID)); err == nil {
			if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
				ws.RSSBytes = mem.RSS
			}
			if cpu, err := proc.CPUPercent(); err == nil {
				ws.CPUPercent = cpu
			}
		}

		out = append(out, ws)
	}
	return out
}
