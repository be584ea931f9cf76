package bundle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewArtifactWriterCreatesAttemptsDir(t *testing.T) {
	dir := t.TempDir()
	w, err := NewArtifactWriter(dir)
	require.NoError(t, err)

	info, err := os.Stat(w.AttemptsDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestWriteProposalAndCommandResult(t *testing.T) {
	dir := t.TempDir()
	w, err := NewArtifactWriter(dir)
	require.NoError(t, err)

	confidence := 0.42
	path, err := w.WriteProposal(1, ProposalPayload{Diff: "x", Rationale: "y", Confidence: &confidence})
	require.NoError(t, err)
	assert.FileExists(t, path)

	path, err = w.WriteCommandResult("attempts/1/verify.json", CommandResultPayload{Cmd: "go test", ExitCode: 0})
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestBuildWorkspaceManifestSkipsIgnoredDirs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "HEAD"), []byte("ref: refs/heads/main\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644))

	entries, err := BuildWorkspaceManifest(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "main.go", entries[0].Path)
	assert.NotEmpty(t, entries[0].SHA256)
}

func TestManifestSHA256StableUnderReorder(t *testing.T) {
	a := []ManifestEntry{{Path: "a.go", Bytes: 1, SHA256: "x"}, {Path: "b.go", Bytes: 2, SHA256: "y"}}
	b := []ManifestEntry{{Path: "b.go", Bytes: 2, SHA256: "y"}, {Path: "a.go", Bytes: 1, SHA256: "x"}}

	ha, err := ManifestSHA256(a)
	require.NoError(t, err)
	hb, err := ManifestSHA256(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}

func TestCollectGitMetadataNonRepo(t *testing.T) {
	dir := t.TempDir()
	meta := CollectGitMetadata(dir)
	assert.False(t, meta.IsGitRepo)
	assert.Nil(t, meta.GitCommit)
}

func TestAttestationRoundTripNoneMode(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello\n"), 0o644))

	path, err := CreateAttestation(dir, ModeNone, "PP_ATTEST_HMAC_KEY", 1700000000)
	require.NoError(t, err)
	assert.FileExists(t, path)

	result := VerifyAttestation(dir)
	assert.True(t, result.OK)
	assert.True(t, result.ContentValid)
	assert.True(t, result.SignatureValid)
}

func TestAttestationRoundTripHMACMode(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello\n"), 0o644))
	t.Setenv("PP_ATTEST_HMAC_KEY", "super-secret")

	_, err := CreateAttestation(dir, ModeHMACSHA256, "PP_ATTEST_HMAC_KEY", 1700000000)
	require.NoError(t, err)

	result := VerifyAttestation(dir)
	assert.True(t, result.OK)
}

func TestAttestationDetectsTamperedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello\n"), 0o644))
	t.Setenv("PP_ATTEST_HMAC_KEY", "super-secret")

	_, err := CreateAttestation(dir, ModeHMACSHA256, "PP_ATTEST_HMAC_KEY", 1700000000)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("tampered\n"), 0o644))

	result := VerifyAttestation(dir)
	assert.False(t, result.OK)
	assert.False(t, result.ContentValid)
}

func TestAttestationDetectsBadSignature(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello\n"), 0o644))
	t.Setenv("PP_ATTEST_HMAC_KEY", "super-secret")

	_, err := CreateAttestation(dir, ModeHMACSHA256, "PP_ATTEST_HMAC_KEY", 1700000000)
	require.NoError(t, err)

	t.Setenv("PP_ATTEST_HMAC_KEY", "wrong-key")
	result := VerifyAttestation(dir)
	assert.False(t, result.SignatureValid)
}
