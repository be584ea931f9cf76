// Package context extracts a bounded, redacted slice of a failed
// verification run's output — file:line locations, source snippets around
// them, and failing-assertion lines — for injection back into the next
// proposal prompt. Grounded on the original prototype's context.py.
package context

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Location is one file:line reference pulled out of a traceback or
// compiler-style diagnostic line.
type Location struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// Slice is the bundle of context handed to the proposer: the locations a
// failure points at, the source around each one, and any assertion lines.
type Slice struct {
	Locations         []Location        `json:"locations"`
	Snippets          map[string]string `json:"snippets"`
	FailingAssertions []string          `json:"failing_assertions"`
}

var (
	tracebackFileRE = regexp.MustCompile(`File "(.+?)", line (\d+)`)
	compilerRE      = regexp.MustCompile(`([\w./\\-]+):(\s)?(\d+)(:(\d+))?`)
	assertRE        = regexp.MustCompile(`AssertionError:.*|E\s+assert\s+.*|FAILED\s+.*`)
)

const maxLocations = 20
const maxAssertions = 20
const snippetRadius = 25

// Extract scans resultText (typically combined stdout+stderr from a failed
// verify command) for file:line locations and failing assertions, and
// renders a source snippet around each location relative to workspaceRoot.
// containerWorkdir, when non-empty, is stripped from absolute paths that
// were reported from inside a container sandbox before they're resolved
// against the host workspace.
func Extract(resultText, workspaceRoot, containerWorkdir string) Slice {
	locations := extractLocations(resultText, workspaceRoot, containerWorkdir)

	snippets := map[string]string{}
	for _, loc := range locations {
		key := loc.File + ":" + strconv.Itoa(loc.Line)
		snippets[key] = snippetFor(workspaceRoot, loc.File, loc.Line, snippetRadius)
	}

	var assertions []string
	for _, m := range assertRE.FindAllString(resultText, -1) {
		assertions = append(assertions, strings.TrimSpace(m))
		if len(assertions) >= maxAssertions {
			break
		}
	}

	return Slice{Locations: locations, Snippets: snippets, FailingAssertions: assertions}
}

type seenKey struct {
	file string
	line int
}

func extractLocations(text, workspaceRoot, containerWorkdir string) []Location {
	var locations []Location
	seen := map[seenKey]bool{}

	addMatches := func(re *regexp.Regexp, fileGroup, lineGroup int, reason string) {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			raw := m[fileGroup]
			line, err := strconv.Atoi(m[lineGroup])
			if err != nil {
				continue
			}
			resolved := resolvePath(raw, workspaceRoot, containerWorkdir)
			rel, ok := toRelative(resolved, workspaceRoot)
			if !ok {
				continue
			}
			key := seenKey{rel, line}
			if seen[key] {
				continue
			}
			seen[key] = true
			locations = append(locations, Location{File: rel, Line: line, Reason: reason})
			if len(locations) >= maxLocations {
				return
			}
		}
	}

	addMatches(tracebackFileRE, 1, 2, "traceback")
	if len(locations) < maxLocations {
		addMatches(compilerRE, 1, 3, "diagnostic")
	}

	if len(locations) > maxLocations {
		locations = locations[:maxLocations]
	}
	return locations
}

func resolvePath(raw, workspaceRoot, containerWorkdir string) string {
	if filepath.IsAbs(raw) {
		if containerWorkdir != "" {
			if rel, ok := stripPrefixDir(raw, containerWorkdir); ok {
				return filepath.Join(workspaceRoot, rel)
			}
		}
		return raw
	}
	return filepath.Join(workspaceRoot, raw)
}

func stripPrefixDir(path, prefix string) (string, bool) {
	prefix = filepath.Clean(prefix)
	path = filepath.Clean(path)
	if path == prefix {
		return "", true
	}
	if strings.HasPrefix(path, prefix+string(filepath.Separator)) {
		return strings.TrimPrefix(path, prefix+string(filepath.Separator)), true
	}
	return "", false
}

func toRelative(path, workspaceRoot string) (string, bool) {
	absWorkspace, err := filepath.Abs(workspaceRoot)
	if err != nil {
		return "", false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(absWorkspace, absPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func snippetFor(workspaceRoot, relPath string, lineNo, radius int) string {
	full := filepath.Join(workspaceRoot, relPath)
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		return ""
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return ""
	}
	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	if len(lines) == 0 {
		return ""
	}

	start := lineNo - radius
	if start < 1 {
		start = 1
	}
	end := lineNo + radius
	if end > len(lines) {
		end = len(lines)
	}

	var out []string
	for i := start; i <= end; i++ {
		marker := "  "
		if i == lineNo {
			marker = ">>"
		}
		out = append(out, marker+" "+padLineNo(i)+" | "+lines[i-1])
	}
	return strings.Join(out, "\n")
}

func padLineNo(n int) string {
	s := strconv.Itoa(n)
	for len(s) < 5 {
		s = " " + s
	}
	return s
}
