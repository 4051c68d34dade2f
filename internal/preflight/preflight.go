package preflight

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/process"
)

// Identity describes the runtime user the supervisor (and its workers) run as.
type Identity struct {
	UID      int    `json:"uid"`
	Username string `json:"username"`
	Root     bool   `json:"root"`
}

// CheckIdentity resolves the current process identity and rejects root unless
// explicitly allowed. The image creates a dedicated non-privileged user;
// running the supervisor as root means the image contract was bypassed.
func CheckIdentity(allowRoot bool) (*Identity, error) {
	uid := os.Geteuid()

	ident := &Identity{UID: uid, Root: uid == 0}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err == nil {
		if username, err := proc.Username(); err == nil {
			ident.Username = username
		}
	}

	if ident.Root && !allowRoot {
		return ident, fmt.Errorf("refusing to run as root (uid 0); set allow_root to override")
	}
	return ident, nil
}

// EnsureDataDir guarantees the data directory exists and is writable by the
// runtime identity before any worker starts. A failed write test here is a
// start-time failure, not something to discover mid-request.
func EnsureDataDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("data directory not configured")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("failed to stat data directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data path %s exists but is not a directory", dir)
	}

	testFile := filepath.Join(dir, ".stayd_write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return fmt.Errorf("data directory %s is not writable: %w", dir, err)
	}
	f.Close()
	os.Remove(testFile)

	return nil
}

// Run executes all preflight checks in order and returns the resolved
// identity. Any failure aborts startup.
func Run(dataDir string, allowRoot bool) (*Identity, error) {
	ident, err := CheckIdentity(allowRoot)
	if err != nil {
		return ident, err
	}
	if err := EnsureDataDir(dataDir); err != nil {
		return ident, err
	}
	return ident, nil
}
