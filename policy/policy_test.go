package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, resolved, err := LoadFile("", "pytest -q", dir)
	require.NoError(t, err)
	assert.Equal(t, "", resolved)
	assert.Equal(t, 3, cfg.Policy.Limits.MaxAttempts)
	assert.Equal(t, 8, cfg.Policy.Limits.MaxFilesChanged)
	assert.Equal(t, "auto", cfg.Policy.Sandbox.Backend)
	assert.Equal(t, []string{"**"}, cfg.Policy.WriteAllowlist)
	require.Len(t, cfg.ProofTargets, 1)
	assert.Equal(t, "default", cfg.ProofTargets[0].Name)
	assert.Equal(t, "pytest -q", cfg.ProofTargets[0].Cmd)
	assert.Contains(t, cfg.Policy.AllowedCommands, "pytest -q")
}

func TestLoadFileYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pp.yaml")
	content := `
proof_targets:
  - name: unit
    cmd: "pytest -q tests/"
policy:
  deny_write:
    - "secrets/**"
  write_allowlist:
    - "src/**"
  limits:
    max_attempts: 5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, resolved, err := LoadFile("", "pytest -q tests/", dir)
	require.NoError(t, err)
	assert.Equal(t, path, resolved)
	assert.Equal(t, 5, cfg.Policy.Limits.MaxAttempts)
	assert.Equal(t, []string{"src/**"}, cfg.Policy.WriteAllowlist)
	assert.True(t, cfg.Policy.IsPathAllowed("src/a.py"))
	assert.False(t, cfg.Policy.IsPathAllowed("secrets/x.txt"))
}

func TestPolicyHashStableUnderKeyReorder(t *testing.T) {
	p1 := defaultPolicy()
	p1.AllowedCommands = []string{"a", "b"}

	p2 := defaultPolicy()
	p2.AllowedCommands = []string{"a", "b"}

	assert.Equal(t, p1.Hash(), p2.Hash())
}

func TestIsCommandAllowedArgv(t *testing.T) {
	p := defaultPolicy()
	p.AllowedArgv = [][]string{{"pytest", "-q"}}

	ok, argv := p.IsCommandAllowed("pytest -q")
	assert.True(t, ok)
	assert.Equal(t, []string{"pytest", "-q"}, argv)

	ok, _ = p.IsCommandAllowed("pytest -v")
	assert.False(t, ok)
}

func TestIsPathAllowedDenyWins(t *testing.T) {
	p := defaultPolicy()
	p.WriteAllowlist = []string{"**"}
	p.DenyWrite = []string{"secrets/**"}

	assert.True(t, p.IsPathAllowed("src/a.py"))
	assert.False(t, p.IsPathAllowed("secrets/x.txt"))
	assert.False(t, p.IsPathAllowed("/secrets/x.txt"))
}

func TestSaveFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg, _, err := LoadFile("", "echo ok", dir)
	require.NoError(t, err)

	out := filepath.Join(dir, "pp.json")
	require.NoError(t, SaveFile(cfg, out))

	reloaded, resolved, err := LoadFile(out, "echo ok", dir)
	require.NoError(t, err)
	assert.Equal(t, out, resolved)
	assert.Equal(t, cfg.Policy.Hash(), reloaded.Policy.Hash())
}
