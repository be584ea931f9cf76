package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/patchprove/patchprove/canon"
)

// ManifestEntry is one file's content-address record in a workspace
// manifest.
type ManifestEntry struct {
	Path   string `json:"path"`
	Bytes  int64  `json:"bytes"`
	SHA256 string `json:"sha256"`
}

var ignoredDirTokens = []string{".git", ".pp-artifacts", "__pycache__", ".pytest_cache"}

// BuildWorkspaceManifest walks root and returns a sorted, content-addressed
// record of every regular file, excluding the same ignore set the sandbox
// and minimizer use. File hashing is parallelized with an errgroup, since
// a workspace manifest over a large tree is the one place in this module
// where concurrent disk I/O meaningfully shortens wall-clock time.
// Grounded on provenance.py's build_workspace_manifest.
func BuildWorkspaceManifest(root string) ([]ManifestEntry, error) {
	var relPaths []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}
		if info.IsDir() {
			if isIgnoredToken(filepath.Base(rel)) {
				return filepath.SkipDir
			}
			return nil
		}
		if shouldSkipManifestPath(rel) {
			return nil
		}
		relPaths = append(relPaths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(relPaths)

	entries := make([]ManifestEntry, len(relPaths))
	g := new(errgroup.Group)
	g.SetLimit(8)
	for i, rel := range relPaths {
		i, rel := i, rel
		g.Go(func() error {
			size, digest, err := hashFile(filepath.Join(root, filepath.FromSlash(rel)))
			if err != nil {
				return err
			}
			entries[i] = ManifestEntry{Path: rel, Bytes: size, SHA256: digest}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return entries, nil
}

func hashFile(path string) (int64, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, "", err
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return 0, "", err
	}
	return size, hex.EncodeToString(h.Sum(nil)), nil
}

func isIgnoredToken(name string) bool {
	for _, tok := range ignoredDirTokens {
		if name == tok {
			return true
		}
	}
	return false
}

func shouldSkipManifestPath(rel string) bool {
	rel = filepath.ToSlash(rel)
	wrapped := "/" + rel + "/"
	for _, tok := range ignoredDirTokens {
		if strings.Contains(wrapped, "/"+tok+"/") {
			return true
		}
	}
	return false
}

// ManifestSHA256 returns the canonical-JSON hash of a manifest, the single
// value recorded as the workspace's content fingerprint. Grounded on
// provenance.py's manifest_sha256.
func ManifestSHA256(entries []ManifestEntry) (string, error) {
	data, err := canon.Marshal(map[string]any{"files": entries})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
