package diffengine

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// DiffBetweenDirs produces a unified diff over all regular files under
// both roots (excluding sandbox.IgnoreNames), canonicalised to a/<rel> and
// b/<rel> headers, the way Python's difflib.unified_diff is driven by
// diff_between_dirs.
func DiffBetweenDirs(baseDir, newDir string) (string, error) {
	baseFiles, err := listFiles(baseDir)
	if err != nil {
		return "", err
	}
	newFiles, err := listFiles(newDir)
	if err != nil {
		return "", err
	}

	allPaths := map[string]bool{}
	for rel := range baseFiles {
		allPaths[rel] = true
	}
	for rel := range newFiles {
		allPaths[rel] = true
	}
	sorted := make([]string, 0, len(allPaths))
	for rel := range allPaths {
		sorted = append(sorted, rel)
	}
	sort.Strings(sorted)

	var chunks []string
	for _, rel := range sorted {
		basePath, hasBase := baseFiles[rel]
		newPath, hasNew := newFiles[rel]

		var baseLines, newLines []string
		fromFile, toFile := "a/"+rel, "b/"+rel

		if hasBase {
			text, err := readTextReplacing(basePath)
			if err != nil {
				return "", err
			}
			baseLines = splitLinesKeepOrder(text)
		}
		if hasNew {
			text, err := readTextReplacing(newPath)
			if err != nil {
				return "", err
			}
			newLines = splitLinesKeepOrder(text)
		}

		if hasBase && hasNew {
			if equalStrings(baseLines, newLines) {
				continue
			}
		} else if hasBase && !hasNew {
			toFile = "/dev/null"
		} else {
			fromFile = "/dev/null"
		}

		diff := difflib.UnifiedDiff{
			A:        baseLines,
			B:        newLines,
			FromFile: fromFile,
			ToFile:   toFile,
			Context:  3,
		}
		text, err := difflib.GetUnifiedDiffString(diff)
		if err != nil {
			return "", err
		}
		text = strings.TrimRight(text, "\n")
		if text != "" {
			chunks = append(chunks, text)
		}
	}

	out := strings.TrimSpace(strings.Join(chunks, "\n"))
	if out == "" {
		return "", nil
	}
	return out + "\n", nil
}

func listFiles(root string) (map[string]string, error) {
	out := map[string]string{}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return out, nil
	}
	err = filepath.Walk(root, func(path string, fi os.FileInfo, err error) error {
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
		if fi.IsDir() {
			if shouldIgnoreDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if isIgnoredPath(rel) {
			return nil
		}
		out[filepath.ToSlash(rel)] = path
		return nil
	})
	return out, err
}

func shouldIgnoreDir(rel string) bool {
	base := filepath.Base(rel)
	return base == ".git" || base == ".pp-artifacts" || base == "__pycache__" || base == ".pytest_cache"
}

func isIgnoredPath(rel string) bool {
	rel = filepath.ToSlash(rel)
	return strings.HasPrefix(rel, ".git/") || strings.HasPrefix(rel, ".pp-artifacts/") ||
		strings.Contains(rel, "/__pycache__/") || strings.HasPrefix(rel, "__pycache__/")
}

func readTextReplacing(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func splitLinesKeepOrder(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
