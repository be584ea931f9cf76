package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withWorkdir temporarily changes the process working directory, the way
// every subcommand here resolves its session root from os.Getwd().
func withWorkdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(orig) })
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	orig := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	fn()
	require.NoError(t, w.Close())
	os.Stdout = orig

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)
	return buf.String()
}

func TestRunCmdSucceedsAndReportsJSON(t *testing.T) {
	dir := t.TempDir()
	withWorkdir(t, dir)

	runPolicyFlag = ""
	runProviderFlag = "stub"
	runJSONFlag = true
	defer func() { runJSONFlag = false; runProviderFlag = "" }()

	out := captureStdout(t, func() {
		require.NoError(t, runCmd.RunE(runCmd, []string{"true"}))
	})

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	assert.Equal(t, true, payload["success"])
	assert.Equal(t, 0, ExitCode)
}

func TestDoctorCmdReportsResolvedPolicy(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pp.yaml"), []byte("policy:\n  sandbox:\n    backend: copy\n"), 0o644))
	withWorkdir(t, dir)

	doctorPolicyFlag = ""
	doctorCommandFlag = ""
	doctorJSONFlag = true
	defer func() { doctorJSONFlag = false }()

	out := captureStdout(t, func() {
		require.NoError(t, runDoctorOnce(dir, true))
	})

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	assert.Equal(t, "copy", payload["sandbox_backend"])
	assert.NotEmpty(t, payload["policy_hash"])
}

func TestAttestAndVerifyAttestationRoundTrip(t *testing.T) {
	dir := t.TempDir()
	withWorkdir(t, dir)

	runProviderFlag = "stub"
	runJSONFlag = true
	defer func() { runJSONFlag = false; runProviderFlag = "" }()

	var runPayload map[string]any
	out := captureStdout(t, func() {
		require.NoError(t, runCmd.RunE(runCmd, []string{"true"}))
	})
	require.NoError(t, json.Unmarshal([]byte(out), &runPayload))
	bundleDir := runPayload["proof_bundle"].(string)

	attestModeFlag = "none"
	attestKeyEnvFlag = "PP_ATTEST_HMAC_KEY"
	attestJSONFlag = true
	defer func() { attestJSONFlag = false }()

	captureStdout(t, func() {
		require.NoError(t, attestCmd.RunE(attestCmd, []string{bundleDir}))
	})

	verifyAttestationJSONFlag = true
	defer func() { verifyAttestationJSONFlag = false }()

	verifyOut := captureStdout(t, func() {
		require.NoError(t, verifyAttestationCmd.RunE(verifyAttestationCmd, []string{bundleDir}))
	})
	var verifyPayload map[string]any
	require.NoError(t, json.Unmarshal([]byte(verifyOut), &verifyPayload))
	assert.Equal(t, true, verifyPayload["ok"])
	assert.Equal(t, 0, ExitCode)
}
