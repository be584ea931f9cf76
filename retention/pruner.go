// Package retention prunes the proof bundles patch-and-prove sessions
// accumulate under <workspace_root>/.pp-artifacts/. Proof bundles are
// write-once forensic evidence; nothing in the session controller deletes
// them, so left alone they grow without bound. This package adds an
// opt-in age- and count-based pruner plus a cron-driven scheduler.
//
// Grounded on mercator-hq-jupiter's pkg/evidence/retention/pruner.go and
// scheduler.go, adapted from a pluggable evidence.Storage query/delete
// interface to direct directory operations against .pp-artifacts/, since
// proof bundles live on disk rather than in a queryable store.
package retention

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Config controls how the pruner selects bundles to remove.
type Config struct {
	// ArtifactsDir is the .pp-artifacts directory to prune.
	ArtifactsDir string

	// MaxAge is how long a session bundle may live before it becomes
	// eligible for pruning. Zero disables age-based pruning.
	MaxAge time.Duration

	// MaxRecords caps the number of session bundles kept, oldest first.
	// Zero disables count-based pruning.
	MaxRecords int
}

// ConfigFromEnv builds a Config from PP_RETENTION_MAX_AGE (a Go duration
// string, e.g. "720h") and PP_RETENTION_MAX_RECORDS (an integer). Both
// default to disabled so pre-existing behavior (bundles kept forever) is
// unchanged unless an operator opts in.
func ConfigFromEnv(artifactsDir string) Config {
	cfg := Config{ArtifactsDir: artifactsDir}
	if raw := os.Getenv("PP_RETENTION_MAX_AGE"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			cfg.MaxAge = d
		}
	}
	if raw := os.Getenv("PP_RETENTION_MAX_RECORDS"); raw != "" {
		var n int
		if _, err := fmt.Sscanf(raw, "%d", &n); err == nil && n > 0 {
			cfg.MaxRecords = n
		}
	}
	return cfg
}

// bundleInfo records a session directory and the modification time used to
// rank it for age- and count-based pruning.
type bundleInfo struct {
	path    string
	modTime time.Time
}

// Pruner removes session directories from .pp-artifacts/ that fall outside
// the configured retention window or count.
type Pruner struct {
	config Config
}

// NewPruner creates a Pruner for the given configuration.
func NewPruner(config Config) *Pruner {
	return &Pruner{config: config}
}

// Prune deletes session directories older than MaxAge (phase one) and then,
// if more than MaxRecords remain, deletes the oldest until the count fits
// (phase two). It returns how many directories were deleted.
func (p *Pruner) Prune() (int, error) {
	bundles, err := p.listBundles()
	if err != nil {
		return 0, fmt.Errorf("retention: list bundles: %w", err)
	}

	deleted := 0

	if p.config.MaxAge > 0 {
		cutoff := time.Now().Add(-p.config.MaxAge)
		var kept []bundleInfo
		for _, b := range bundles {
			if b.modTime.Before(cutoff) {
				if err := os.RemoveAll(b.path); err != nil {
					return deleted, fmt.Errorf("retention: remove %s: %w", b.path, err)
				}
				deleted++
				continue
			}
			kept = append(kept, b)
		}
		bundles = kept
	}

	if p.config.MaxRecords > 0 && len(bundles) > p.config.MaxRecords {
		sort.Slice(bundles, func(i, j int) bool { return bundles[i].modTime.Before(bundles[j].modTime) })
		toDelete := len(bundles) - p.config.MaxRecords
		for _, b := range bundles[:toDelete] {
			if err := os.RemoveAll(b.path); err != nil {
				return deleted, fmt.Errorf("retention: remove %s: %w", b.path, err)
			}
			deleted++
		}
	}

	return deleted, nil
}

func (p *Pruner) listBundles() ([]bundleInfo, error) {
	entries, err := os.ReadDir(p.config.ArtifactsDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var bundles []bundleInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(p.config.ArtifactsDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			continue
		}
		bundles = append(bundles, bundleInfo{path: path, modTime: info.ModTime()})
	}
	return bundles, nil
}
