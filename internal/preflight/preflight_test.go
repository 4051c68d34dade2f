package preflight

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDataDirCreatesMissing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	require.NoError(t, EnsureDataDir(dir))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestEnsureDataDirAcceptsExisting(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, EnsureDataDir(dir))
}

func TestEnsureDataDirWriteTestSucceedsAndCleansUp(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EnsureDataDir(dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "write test file must be removed")
}

func TestEnsureDataDirRejectsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notadir")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	err := EnsureDataDir(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestEnsureDataDirRejectsEmptyPath(t *testing.T) {
	assert.Error(t, EnsureDataDir(""))
}

func TestEnsureDataDirRejectsUnwritable(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root bypasses directory permissions")
	}

	dir := t.TempDir()
	require.NoError(t, os.Chmod(dir, 0o555))
	defer os.Chmod(dir, 0o755)

	err := EnsureDataDir(filepath.Join(dir, "data"))
	assert.Error(t, err)
}

func TestCheckIdentity(t *testing.T) {
	ident, err := CheckIdentity(true)
	require.NoError(t, err)
	assert.Equal(t, os.Geteuid(), ident.UID)
	assert.Equal(t, os.Geteuid() == 0, ident.Root)
}

func TestCheckIdentityRejectsRoot(t *testing.T) {
	ident, err := CheckIdentity(false)
	if os.Geteuid() == 0 {
		assert.Error(t, err)
		assert.True(t, ident.Root)
	} else {
		assert.NoError(t, err)
		assert.False(t, ident.Root)
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	ident, err := Run(dir, true)
	require.NoError(t, err)
	assert.NotNil(t, ident)
}
