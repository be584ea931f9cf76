package diffengine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/patchprove/patchprove/patcherr"
	"github.com/patchprove/patchprove/policy"
	"github.com/patchprove/patchprove/sandbox"
)

// Apply applies diffText to workspaceRoot using the tolerant in-process
// algorithm: fuzzy hunk relocation by content when line numbers drift,
// missing-leading-space context reinstatement (already performed at parse
// time), and `old_count == 0` insertion-index clamping to [0, len(lines)].
// It returns the changed relative paths.
func Apply(diffText string, workspaceRoot string, p policy.Policy) ([]string, error) {
	parsed, err := Parse(diffText)
	if err != nil {
		return nil, err
	}

	if len(parsed.Files) > p.Limits.MaxFilesChanged {
		return nil, patcherr.New(patcherr.PolicyViolation, "apply", fmt.Errorf("patch changes %d files, above max %d", len(parsed.Files), p.Limits.MaxFilesChanged))
	}
	if len(diffText) > p.Limits.MaxPatchBytes {
		return nil, patcherr.New(patcherr.PolicyViolation, "apply", fmt.Errorf("patch size exceeds %d bytes", p.Limits.MaxPatchBytes))
	}

	var changedPaths []string

	for _, fp := range parsed.Files {
		relRaw := fp.RelPath()
		if relRaw == "/dev/null" {
			return nil, patcherr.New(patcherr.PatchApplyFailed, "apply", fmt.Errorf("unsupported patch target path"))
		}
		rel := stripPrefix(relRaw)

		if !p.IsPathAllowed(rel) {
			return nil, patcherr.New(patcherr.PolicyViolation, "apply", fmt.Errorf("patch path is not allowed by policy: %s", rel))
		}

		target := filepath.Join(workspaceRoot, rel)
		oldIsDevNull := fp.OldPath == "/dev/null"
		newIsDevNull := fp.NewPath == "/dev/null"

		var originalLines []string
		hadTrailingNewline := true
		if !oldIsDevNull {
			raw, err := os.ReadFile(target)
			if err != nil {
				return nil, patcherr.New(patcherr.PatchApplyFailed, "apply", fmt.Errorf("target file does not exist: %s", rel))
			}
			text := string(raw)
			hadTrailingNewline = strings.HasSuffix(text, "\n")
			originalLines = splitLines(text)
		}

		lines := append([]string(nil), originalLines...)
		offset := 0

		for _, hunk := range fp.Hunks {
			idx := hunk.OldStart - 1 + offset
			if hunk.OldCount == 0 {
				idx = idx + 1
			}
			idx = clamp(idx, 0, len(lines))
			idx, err := resolveHunkStart(lines, hunk, idx, rel)
			if err != nil {
				return nil, err
			}

			cursor := idx
			var replacement []string
			for _, hline := range hunk.Lines {
				marker, payload := hline[0], hline[1:]
				switch marker {
				case ' ':
					if cursor >= len(lines) || !lineMatches(lines[cursor], payload) {
						return nil, patcherr.New(patcherr.PatchApplyFailed, "apply", fmt.Errorf("context mismatch applying patch to %s", rel))
					}
					replacement = append(replacement, lines[cursor])
					cursor++
				case '-':
					if cursor >= len(lines) || !lineMatches(lines[cursor], payload) {
						return nil, patcherr.New(patcherr.PatchApplyFailed, "apply", fmt.Errorf("removal mismatch applying patch to %s", rel))
					}
					cursor++
				case '+':
					replacement = append(replacement, payload)
				}
			}

			consumed := cursor - idx
			lines = spliceLines(lines, idx, cursor, replacement)
			offset += len(replacement) - consumed
		}

		if newIsDevNull {
			if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
				return nil, patcherr.New(patcherr.PatchApplyFailed, "apply", fmt.Errorf("remove %s: %w", rel, err))
			}
			changedPaths = append(changedPaths, rel)
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nil, patcherr.New(patcherr.PatchApplyFailed, "apply", err)
		}
		finalText := strings.Join(lines, "\n")
		if len(lines) > 0 && (hadTrailingNewline || oldIsDevNull) {
			finalText += "\n"
		}
		if err := os.WriteFile(target, []byte(finalText), 0o644); err != nil {
			return nil, patcherr.New(patcherr.PatchApplyFailed, "apply", err)
		}
		changedPaths = append(changedPaths, rel)
	}

	return changedPaths, nil
}

// ApplyWithFallback validates diffText's constraints, then prefers
// shelling out to `git apply` (whitespace-tolerant) when workspaceRoot is
// version controlled, falling back to the in-process Apply on failure.
// Errors from both paths are merged into one diagnostic.
func ApplyWithFallback(diffText string, workspaceRoot string, p policy.Policy) ([]string, error) {
	changedPaths, err := ValidateConstraints(diffText, p)
	if err != nil {
		return nil, err
	}

	var gitErr error
	if sandbox.IsGitRepo(workspaceRoot) {
		if err := sandbox.ApplyWithGit(workspaceRoot, []byte(diffText)); err == nil {
			return changedPaths, nil
		} else {
			gitErr = err
		}
	}

	if _, err := Apply(diffText, workspaceRoot, p); err != nil {
		if gitErr != nil {
			return nil, patcherr.New(patcherr.PatchApplyFailed, "apply_with_fallback",
				fmt.Errorf("patch apply failed (git apply: %v; parser: %w)", gitErr, err))
		}
		return nil, err
	}
	return changedPaths, nil
}

// lineMatches tolerates a single-leading-space normalisation mismatch:
// some model outputs omit the space on indented context lines, which the
// parser already reinstates, but the same tolerance is needed again here
// since hunk.lines may carry payload captured before reinstatement in
// adversarial inputs.
func lineMatches(actual, payload string) bool {
	if actual == payload {
		return true
	}
	if strings.HasPrefix(payload, " ") && actual == " "+payload {
		return true
	}
	return false
}

func canApplyHunkAt(lines []string, hunk Hunk, startIdx int) bool {
	if startIdx < 0 || startIdx > len(lines) {
		return false
	}
	cursor := startIdx
	for _, hline := range hunk.Lines {
		marker, payload := hline[0], hline[1:]
		if marker == ' ' || marker == '-' {
			if cursor >= len(lines) || !lineMatches(lines[cursor], payload) {
				return false
			}
			cursor++
		}
	}
	return true
}

// resolveHunkStart implements the fuzzy relocation described in spec.md
// §4.3: try the suggested index verbatim; if it doesn't match, scan every
// possible start index, collect all indices where every context/removal
// line matches, and choose the one closest to the suggested index.
func resolveHunkStart(lines []string, hunk Hunk, suggestedIdx int, relPath string) (int, error) {
	suggested := clamp(suggestedIdx, 0, len(lines))

	hasAnchor := false
	for _, hline := range hunk.Lines {
		if hline[0] == ' ' || hline[0] == '-' {
			hasAnchor = true
			break
		}
	}
	if !hasAnchor {
		return suggested, nil
	}
	if canApplyHunkAt(lines, hunk, suggested) {
		return suggested, nil
	}

	var candidates []int
	for idx := 0; idx <= len(lines); idx++ {
		if canApplyHunkAt(lines, hunk, idx) {
			candidates = append(candidates, idx)
		}
	}
	if len(candidates) == 0 {
		var anchors []string
		for _, hline := range hunk.Lines {
			if hline[0] == ' ' || hline[0] == '-' {
				a := strings.TrimSpace(hline[1:])
				if a != "" {
					anchors = append(anchors, a)
				}
			}
		}
		if len(anchors) > 3 {
			anchors = anchors[:3]
		}
		preview := strings.Join(anchors, " | ")
		if len(preview) > 220 {
			preview = preview[:220]
		}
		if preview == "" {
			preview = "(none)"
		}
		return 0, patcherr.New(patcherr.PatchApplyFailed, "apply",
			fmt.Errorf("context mismatch applying patch to %s; no matching hunk anchor near old_start=%d; anchors=%s",
				relPath, hunk.OldStart, preview))
	}

	best := candidates[0]
	bestDist := abs(best - suggested)
	for _, c := range candidates[1:] {
		if d := abs(c - suggested); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func spliceLines(lines []string, start, end int, replacement []string) []string {
	out := make([]string, 0, len(lines)-(end-start)+len(replacement))
	out = append(out, lines[:start]...)
	out = append(out, replacement...)
	out = append(out, lines[end:]...)
	return out
}
