package context

import (
	"os"
	"path/filepath"
	"strings"
)

const augmentedSnippetLines = 120
const maxAugmentedFiles = 4

// AugmentWithAllowlist enriches a context slice that references only test
// files with head snippets of up to four allowlisted non-test files,
// prioritising files that look referenced as import modules in the
// snippets already present. allowlistedFiles is the full set of
// workspace-relative paths the write allowlist permits; candidates are
// drawn from it, not from the locations already in s. Grounded on
// original_source/pp/session.py's context-augmentation step.
func AugmentWithAllowlist(s Slice, workspaceRoot string, allowlistedFiles []string) Slice {
	if !onlyTestLocations(s) {
		return s
	}

	candidates := nonTestFiles(allowlistedFiles)
	if len(candidates) == 0 {
		return s
	}
	ordered := prioritizeImported(candidates, s.Snippets)
	if len(ordered) > maxAugmentedFiles {
		ordered = ordered[:maxAugmentedFiles]
	}

	snippets := make(map[string]string, len(s.Snippets)+len(ordered))
	for k, v := range s.Snippets {
		snippets[k] = v
	}
	locations := append([]Location{}, s.Locations...)
	for _, rel := range ordered {
		snippet := headSnippet(workspaceRoot, rel, augmentedSnippetLines)
		if snippet == "" {
			continue
		}
		snippets[rel+":1"] = snippet
		locations = append(locations, Location{File: rel, Line: 1, Reason: "context_augmentation"})
	}

	return Slice{Locations: locations, Snippets: snippets, FailingAssertions: s.FailingAssertions}
}

// onlyTestLocations reports whether every location in s points at a test
// file, and there is at least one location to judge.
func onlyTestLocations(s Slice) bool {
	if len(s.Locations) == 0 {
		return false
	}
	for _, loc := range s.Locations {
		if !isTestPath(loc.File) {
			return false
		}
	}
	return true
}

// isTestPath reports whether rel looks like a test file: under a tests/
// directory at any depth, or named test_*/​*_test.*.
func isTestPath(rel string) bool {
	rel = filepath.ToSlash(rel)
	if strings.HasPrefix(rel, "tests/") || strings.Contains(rel, "/tests/") {
		return true
	}
	base := filepath.Base(rel)
	if strings.HasPrefix(base, "test_") {
		return true
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return strings.HasSuffix(stem, "_test")
}

func nonTestFiles(files []string) []string {
	var out []string
	for _, f := range files {
		if !isTestPath(f) {
			out = append(out, f)
		}
	}
	return out
}

// prioritizeImported reorders candidates so files whose base name (minus
// extension) appears in the text of existing snippets — a loose stand-in
// for "referenced as an import module" — sort before the rest.
func prioritizeImported(candidates []string, snippets map[string]string) []string {
	var blob strings.Builder
	for _, v := range snippets {
		blob.WriteString(v)
		blob.WriteString("\n")
	}
	text := blob.String()

	var imported, rest []string
	for _, rel := range candidates {
		base := filepath.Base(rel)
		stem := strings.TrimSuffix(base, filepath.Ext(base))
		if stem != "" && strings.Contains(text, stem) {
			imported = append(imported, rel)
		} else {
			rest = append(rest, rel)
		}
	}
	return append(imported, rest...)
}

func headSnippet(workspaceRoot, relPath string, maxLines int) string {
	full := filepath.Join(workspaceRoot, filepath.FromSlash(relPath))
	data, err := os.ReadFile(full)
	if err != nil {
		return ""
	}
	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	if len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = padLineNo(i+1) + " | " + line
	}
	return strings.Join(out, "\n")
}
