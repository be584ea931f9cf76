package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayReconstructsSuccessfulSession(t *testing.T) {
	dir := t.TempDir()
	ctrl := New(dir)
	runSummary, err := ctrl.Run(RunOptions{Command: "true", ProviderName: "stub"})
	require.NoError(t, err)
	require.True(t, runSummary.Success)

	replaySummary, err := ctrl.Replay(ReplayOptions{BundleDir: runSummary.ProofBundleDir})
	require.NoError(t, err)
	assert.True(t, replaySummary.Success)
	assert.Equal(t, 0, replaySummary.ExitCode)
}

func TestReplayMissingReproFails(t *testing.T) {
	dir := t.TempDir()
	ctrl := New(dir)
	_, err := ctrl.Replay(ReplayOptions{BundleDir: dir})
	assert.Error(t, err)
}

func TestReplayWithAttestationVerification(t *testing.T) {
	dir := t.TempDir()
	ctrl := New(dir)
	runSummary, err := ctrl.Run(RunOptions{Command: "true", ProviderName: "stub", Attest: true})
	require.NoError(t, err)

	replaySummary, err := ctrl.Replay(ReplayOptions{BundleDir: runSummary.ProofBundleDir, VerifyBundleAttestation: true})
	require.NoError(t, err)
	require.NotNil(t, replaySummary.Attestation)
	assert.True(t, replaySummary.Attestation.OK)
}

func TestReplayFromExplicitCwdOverride(t *testing.T) {
	dir := t.TempDir()
	ctrl := New(dir)
	runSummary, err := ctrl.Run(RunOptions{Command: "true", ProviderName: "stub"})
	require.NoError(t, err)

	other := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(other, "marker.txt"), []byte("x"), 0o644))

	replaySummary, err := ctrl.Replay(ReplayOptions{BundleDir: runSummary.ProofBundleDir, CwdOverride: other})
	require.NoError(t, err)
	assert.Equal(t, other, replaySummary.Cwd)
}
