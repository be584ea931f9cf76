package sandbox

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchprove/patchprove/policy"
)

func TestCopySandboxExcludesIgnored(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hi"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".git", "HEAD"), []byte("ref"), 0o644))

	sb, err := copySandbox(root)
	require.NoError(t, err)
	defer Cleanup(sb)

	assert.FileExists(t, filepath.Join(sb.Root, "a.txt"))
	assert.NoFileExists(t, filepath.Join(sb.Root, ".git", "HEAD"))
}

func TestRunCommandCapturesExitCode(t *testing.T) {
	dir := t.TempDir()
	res, err := Run("exit 3", dir, 5*time.Second, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
}

func TestRunCommandTimeout(t *testing.T) {
	dir := t.TempDir()
	res, err := Run("sleep 5", dir, 200*time.Millisecond, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 124, res.ExitCode)
	assert.Contains(t, res.Stderr, "timed out")
}

func TestRunCommandArgvForm(t *testing.T) {
	dir := t.TempDir()
	res, err := Run("", dir, 5*time.Second, nil, []string{"echo", "hello"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Contains(t, res.Stdout, "hello")
}

func TestCreateCopyBackend(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hi"), 0o644))

	p := policy.Policy{Sandbox: policy.SandboxPolicy{Backend: "copy"}}
	sb, err := Create(root, p)
	require.NoError(t, err)
	defer Cleanup(sb)

	assert.Equal(t, WorkspaceCopy, sb.WorkspaceBackend)
	assert.Equal(t, BackendNative, sb.Backend)
}
