package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchprove/patchprove/propose"
)

// fixedDiffProposer returns a fixed sequence of diffs, one per call; calls
// past the end of the sequence repeat the last diff. It stands in for a
// real fixing proposer so the core attempt loop can be exercised without a
// network call.
type fixedDiffProposer struct {
	diffs []string
	calls int
}

func (f *fixedDiffProposer) Propose(ctx context.Context, input propose.Input) (propose.Output, error) {
	idx := f.calls
	if idx >= len(f.diffs) {
		idx = len(f.diffs) - 1
	}
	f.calls++
	return propose.Output{Diff: f.diffs[idx], Rationale: "fixed test proposal"}, nil
}

func TestRunSucceedsWhenBaselinePasses(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pp.yaml"), []byte("policy:\n  sandbox:\n    backend: copy\n"), 0o644))

	ctrl := New(dir)
	summary, err := ctrl.Run(RunOptions{Command: "true", ProviderName: "stub"})
	require.NoError(t, err)
	assert.True(t, summary.Success)
	assert.Equal(t, 0, summary.AttemptsUsed)
	assert.FileExists(t, summary.FinalPatchPath)
	assert.DirExists(t, summary.ProofBundleDir)
}

func TestRunFailsWhenStubCannotFixBaselineFailure(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pp.yaml"), []byte("policy:\n  sandbox:\n    backend: copy\n  limits:\n    max_attempts: 1\n"), 0o644))

	ctrl := New(dir)
	summary, err := ctrl.Run(RunOptions{Command: "false", ProviderName: "stub"})
	require.NoError(t, err)
	if !assert.False(t, summary.Success) || !assert.Equal(t, 1, summary.AttemptsUsed) {
		t.Logf("attempt records:\n%s", spew.Sdump(summary.AttemptRecords))
	}
	assert.Equal(t, "provider returned empty diff", summary.AttemptRecords[0].Error)
}

func TestRunWritesRepro(t *testing.T) {
	dir := t.TempDir()
	ctrl := New(dir)
	summary, err := ctrl.Run(RunOptions{Command: "true", ProviderName: "stub"})
	require.NoError(t, err)

	reproPath := filepath.Join(summary.ProofBundleDir, "repro.json")
	assert.FileExists(t, reproPath)
	assert.Equal(t, true, summary.Repro["success"])
}

func TestProveRequiresConfiguredTargets(t *testing.T) {
	dir := t.TempDir()
	ctrl := New(dir)
	_, err := ctrl.Prove(ProveOptions{ProviderName: "stub"})
	assert.Error(t, err)
}

func TestRunWithAttestationWritesAttestationFile(t *testing.T) {
	dir := t.TempDir()
	ctrl := New(dir)
	summary, err := ctrl.Run(RunOptions{Command: "true", ProviderName: "stub", Attest: true})
	require.NoError(t, err)
	assert.NotEmpty(t, summary.AttestationPath)
	assert.FileExists(t, summary.AttestationPath)
}

// TestRunAppliesFixingDiffAndSucceeds drives the core loop with a real
// fixing diff: a median helper is missing the sort the verification command
// checks for, and the fake proposer's patch adds it, turning the baseline
// failure into a success on the first attempt.
func TestRunAppliesFixingDiffAndSucceeds(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pp.yaml"), []byte("policy:\n  sandbox:\n    backend: copy\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "calc.py"), []byte(
		"def median(values):\n"+
			"    n = len(values)\n"+
			"    mid = n // 2\n"+
			"    if n % 2 == 0:\n"+
			"        return (values[mid - 1] + values[mid]) / 2\n"+
			"    return values[mid]\n",
	), 0o644))

	fixDiff := "diff --git a/calc.py b/calc.py\n" +
		"--- a/calc.py\n" +
		"+++ a/calc.py\n" +
		"@@ -1,2 +1,3 @@\n" +
		" def median(values):\n" +
		"+    ordered = sorted(values)\n" +
		"     n = len(values)\n"

	ctrl := New(dir).WithProposer(&fixedDiffProposer{diffs: []string{fixDiff}})
	summary, err := ctrl.Run(RunOptions{Command: `grep -q "ordered = sorted(values)" calc.py`, ProviderName: "stub"})
	require.NoError(t, err)

	if !assert.True(t, summary.Success) {
		t.Logf("attempt records:\n%s", spew.Sdump(summary.AttemptRecords))
	}
	assert.Equal(t, 1, summary.AttemptsUsed)

	patch, err := os.ReadFile(summary.FinalPatchPath)
	require.NoError(t, err)
	assert.Contains(t, string(patch), "+    ordered = sorted(values)")
}

// TestRunAppliesSlugifyFixAndSucceeds mirrors the median scenario with a
// different file and verification command, confirming the loop isn't
// specialised to one shape of fix.
func TestRunAppliesSlugifyFixAndSucceeds(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pp.yaml"), []byte("policy:\n  sandbox:\n    backend: copy\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "slugify.py"), []byte(
		"import re\n\n"+
			"def slugify(text):\n"+
			"    text = text.strip()\n"+
			"    text = re.sub(r\"[^a-z0-9]+\", \"-\", text)\n"+
			"    return text.strip(\"-\")\n",
	), 0o644))

	fixDiff := "diff --git a/slugify.py b/slugify.py\n" +
		"--- a/slugify.py\n" +
		"+++ a/slugify.py\n" +
		"@@ -1,2 +1,2 @@\n" +
		" def slugify(text):\n" +
		"-    text = text.strip()\n" +
		"+    text = text.strip().lower()\n"

	ctrl := New(dir).WithProposer(&fixedDiffProposer{diffs: []string{fixDiff}})
	summary, err := ctrl.Run(RunOptions{Command: `grep -q "text.strip().lower()" slugify.py`, ProviderName: "stub"})
	require.NoError(t, err)

	if !assert.True(t, summary.Success) {
		t.Logf("attempt records:\n%s", spew.Sdump(summary.AttemptRecords))
	}
	assert.Equal(t, 1, summary.AttemptsUsed)
}

// TestRunRejectsDuplicateDiffWithoutConsumingVerifyRun exercises
// deduplication: a proposer that returns the same non-verifying diff twice
// must have its second attempt rejected as a duplicate, recorded in
// error.txt, without a second verify run.
func TestRunRejectsDuplicateDiffWithoutConsumingVerifyRun(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pp.yaml"), []byte(
		"policy:\n  sandbox:\n    backend: copy\n  limits:\n    max_attempts: 2\n",
	), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.txt"), []byte("hello\n"), 0o644))

	sameDiff := "diff --git a/app.txt b/app.txt\n" +
		"--- a/app.txt\n" +
		"+++ a/app.txt\n" +
		"@@ -1,1 +1,1 @@\n" +
		"-hello\n" +
		"+world\n"

	ctrl := New(dir).WithProposer(&fixedDiffProposer{diffs: []string{sameDiff, sameDiff}})
	summary, err := ctrl.Run(RunOptions{Command: "false", ProviderName: "stub"})
	require.NoError(t, err)

	require.Equal(t, 2, summary.AttemptsUsed)
	assert.False(t, summary.Success)
	assert.Contains(t, summary.AttemptRecords[1].Error, "duplicate diff rejected")

	errPath := filepath.Join(summary.ProofBundleDir, "attempts", "2", "error.txt")
	feedback, readErr := os.ReadFile(errPath)
	require.NoError(t, readErr)
	assert.Contains(t, string(feedback), "app.txt")
	assert.Contains(t, string(feedback), "Use these snapshots verbatim")

	assert.NoFileExists(t, filepath.Join(summary.ProofBundleDir, "attempts", "2", "verify", "verify.json"))
}
