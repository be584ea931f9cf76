package retention

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeBundle(t *testing.T, artifactsDir, name string, age time.Duration) {
	t.Helper()
	dir := filepath.Join(artifactsDir, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	old := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(dir, old, old))
}

func TestPruneByAgeRemovesOldBundlesOnly(t *testing.T) {
	dir := t.TempDir()
	makeBundle(t, dir, "old-session", 48*time.Hour)
	makeBundle(t, dir, "new-session", 1*time.Minute)

	p := NewPruner(Config{ArtifactsDir: dir, MaxAge: 24 * time.Hour})
	deleted, err := p.Prune()
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	assert.NoDirExists(t, filepath.Join(dir, "old-session"))
	assert.DirExists(t, filepath.Join(dir, "new-session"))
}

func TestPruneByCountKeepsNewestN(t *testing.T) {
	dir := t.TempDir()
	makeBundle(t, dir, "s1", 5*time.Hour)
	makeBundle(t, dir, "s2", 4*time.Hour)
	makeBundle(t, dir, "s3", 3*time.Hour)

	p := NewPruner(Config{ArtifactsDir: dir, MaxRecords: 2})
	deleted, err := p.Prune()
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	assert.NoDirExists(t, filepath.Join(dir, "s1"))
	assert.DirExists(t, filepath.Join(dir, "s2"))
	assert.DirExists(t, filepath.Join(dir, "s3"))
}

func TestPruneDisabledByDefaultDeletesNothing(t *testing.T) {
	dir := t.TempDir()
	makeBundle(t, dir, "s1", 1000*time.Hour)

	p := NewPruner(Config{ArtifactsDir: dir})
	deleted, err := p.Prune()
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
	assert.DirExists(t, filepath.Join(dir, "s1"))
}

func TestPruneMissingArtifactsDirIsNotAnError(t *testing.T) {
	p := NewPruner(Config{ArtifactsDir: filepath.Join(t.TempDir(), "missing"), MaxAge: time.Hour})
	deleted, err := p.Prune()
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
}

func TestSchedulerStartNoopWithoutSchedule(t *testing.T) {
	p := NewPruner(Config{ArtifactsDir: t.TempDir()})
	s := NewScheduler(p, "")
	require.NoError(t, s.Start())
	assert.False(t, s.IsRunning())
	s.Stop()
}

func TestSchedulerRejectsInvalidCronExpression(t *testing.T) {
	p := NewPruner(Config{ArtifactsDir: t.TempDir()})
	s := NewScheduler(p, "not-a-cron-expression")
	assert.Error(t, s.Start())
}
