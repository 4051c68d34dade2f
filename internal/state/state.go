package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileName is the supervisor state file kept in the data directory.
const FileName = "stayd.state.json"

// WorkerState records one spawned worker process.
type WorkerState struct {
	ID        int       `json:"id"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
}

// RunState is the lifecycle metadata of one supervisor run. It carries no
// probe results; health classification lives in memory only.
type RunState struct {
	InstanceID string        `json:"instance_id"`
	Version    string        `json:"version"`
	PID        int           `json:"pid"`
	Port       int           `json:"port"`
	StartedAt  time.Time     `json:"started_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
	Workers    []WorkerState `json:"workers"`
}

// Manager persists the run state to the data directory so operators can
// correlate container restarts with worker generations.
type Manager struct {
	mu   sync.Mutex
	path string
}

// NewManager creates a state manager writing to dir/FileName.
func NewManager(dir string) *Manager {
	return &Manager{path: filepath.Join(dir, FileName)}
}

// Path returns the state file location.
func (m *Manager) Path() string {
	return m.path
}

// Save writes the state atomically (temp file + rename).
func (m *Manager) Save(s *RunState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run state: %w", err)
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write run state: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to commit run state: %w", err)
	}
	return nil
}

// Load reads the persisted run state. Returns os.ErrNotExist when no previous
// run left a state file.
func (m *Manager) Load() (*RunState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}

	var s RunState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse run state %s: %w", m.path, err)
	}
	return &s, nil
}

// Remove deletes the state file. Called on clean shutdown.
func (m *Manager) Remove() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := os.Remove(m.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
