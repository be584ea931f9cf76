package diffengine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchprove/patchprove/policy"
)

const sampleDiff = `diff --git a/foo.txt b/foo.txt
--- a/foo.txt
+++ b/foo.txt
@@ -1,3 +1,3 @@
 alpha
-beta
+BETA
 gamma
`

func TestParseBasic(t *testing.T) {
	parsed, err := Parse(sampleDiff)
	require.NoError(t, err)
	require.Len(t, parsed.Files, 1)
	assert.Equal(t, "foo.txt", parsed.Files[0].RelPath())
	require.Len(t, parsed.Files[0].Hunks, 1)
	assert.Equal(t, 1, parsed.Files[0].Hunks[0].OldStart)
}

func TestParseRejectsEmpty(t *testing.T) {
	_, err := Parse("")
	assert.Error(t, err)
}

func TestExtractChangedPaths(t *testing.T) {
	paths := ExtractChangedPaths(sampleDiff)
	assert.Equal(t, []string{"foo.txt"}, paths)
}

func TestValidateConstraintsRejectsEmptyDiff(t *testing.T) {
	_, err := ValidateConstraints("", defaultTestPolicy())
	assert.Error(t, err)
}

func TestApplyEditsFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "foo.txt"), []byte("alpha\nbeta\ngamma\n"), 0o644))

	changed, err := Apply(sampleDiff, dir, defaultTestPolicy())
	require.NoError(t, err)
	assert.Equal(t, []string{"foo.txt"}, changed)

	out, err := os.ReadFile(filepath.Join(dir, "foo.txt"))
	require.NoError(t, err)
	assert.Equal(t, "alpha\nBETA\ngamma\n", string(out))
}

func TestApplyToleratesDriftedLineNumbers(t *testing.T) {
	dir := t.TempDir()
	// Same content the hunk expects, but shifted down by two lines versus
	// what the stale @@ header claims, exercising resolveHunkStart's scan.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "foo.txt"), []byte("pre1\npre2\nalpha\nbeta\ngamma\n"), 0o644))

	changed, err := Apply(sampleDiff, dir, defaultTestPolicy())
	require.NoError(t, err)
	assert.Equal(t, []string{"foo.txt"}, changed)

	out, err := os.ReadFile(filepath.Join(dir, "foo.txt"))
	require.NoError(t, err)
	assert.Equal(t, "pre1\npre2\nalpha\nBETA\ngamma\n", string(out))
}

func TestApplyFailsOnUnresolvableHunk(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "foo.txt"), []byte("nothing in common\n"), 0o644))

	_, err := Apply(sampleDiff, dir, defaultTestPolicy())
	assert.Error(t, err)
}

func TestApplyRejectsDisallowedPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "foo.txt"), []byte("alpha\nbeta\ngamma\n"), 0o644))

	p := defaultTestPolicy()
	p.DenyWrite = []string{"**"}

	_, err := Apply(sampleDiff, dir, p)
	assert.Error(t, err)
}

func TestRenderPatchRoundTrip(t *testing.T) {
	parsed, err := Parse(sampleDiff)
	require.NoError(t, err)
	rendered := RenderPatch(parsed)

	reparsed, err := Parse(rendered)
	require.NoError(t, err)
	require.Len(t, reparsed.Files, 1)
	assert.Equal(t, parsed.Files[0].Hunks[0].Lines, reparsed.Files[0].Hunks[0].Lines)
}

func TestDiffBetweenDirsDetectsEdit(t *testing.T) {
	base := t.TempDir()
	next := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "foo.txt"), []byte("one\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(next, "foo.txt"), []byte("two\n"), 0o644))

	out, err := DiffBetweenDirs(base, next)
	require.NoError(t, err)
	assert.Contains(t, out, "foo.txt")
	assert.Contains(t, out, "-one")
	assert.Contains(t, out, "+two")
}

func TestDiffBetweenDirsNoChangesIsEmpty(t *testing.T) {
	base := t.TempDir()
	next := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "foo.txt"), []byte("same\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(next, "foo.txt"), []byte("same\n"), 0o644))

	out, err := DiffBetweenDirs(base, next)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestMinimizeHunksDropsUnneededHunk(t *testing.T) {
	baseline := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(baseline, "foo.txt"), []byte("alpha\nbeta\ngamma\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(baseline, "bar.txt"), []byte("unrelated\n"), 0o644))

	diff := `diff --git a/foo.txt b/foo.txt
--- a/foo.txt
+++ b/foo.txt
@@ -1,3 +1,3 @@
 alpha
-beta
+BETA
 gamma
diff --git a/bar.txt b/bar.txt
--- a/bar.txt
+++ b/bar.txt
@@ -1,1 +1,1 @@
-unrelated
+unrelated-changed
`

	// Verification only cares that foo.txt contains "BETA"; the bar.txt
	// hunk is unnecessary and should be dropped by the minimizer.
	verify := func(root string) (bool, error) {
		data, err := os.ReadFile(filepath.Join(root, "foo.txt"))
		if err != nil {
			return false, nil
		}
		return string(data) == "alpha\nBETA\ngamma\n", nil
	}

	minimized, err := MinimizeHunks(diff, baseline, defaultTestPolicy(), verify)
	require.NoError(t, err)
	assert.Contains(t, minimized, "foo.txt")
	assert.NotContains(t, minimized, "bar.txt")
}

func defaultTestPolicy() policy.Policy {
	return policy.Policy{
		Network:         policy.NetworkDeny,
		AllowedCommands: []string{"true"},
		WriteAllowlist:  []string{"**"},
		Limits: policy.Limits{
			MaxAttempts:          5,
			MaxFilesChanged:      50,
			MaxPatchBytes:        1 << 20,
			PerCommandTimeoutSec: 30,
		},
		Sandbox: policy.SandboxPolicy{Backend: "copy"},
	}
}
