package diffengine

import (
	"fmt"
	"strings"

	"github.com/patchprove/patchprove/patcherr"
	"github.com/patchprove/patchprove/policy"
)

// ExtractChangedPaths returns the workspace-relative paths a diff touches,
// in first-seen order, read straight off the diff --git / --- / +++
// headers rather than requiring a successful Parse.
func ExtractChangedPaths(diffText string) []string {
	var paths []string
	seen := map[string]bool{}
	var pendingOld string
	havePendingOld := false

	for _, line := range strings.Split(diffText, "\n") {
		switch {
		case strings.HasPrefix(line, "diff --git "):
			parts := strings.Fields(line)
			if len(parts) >= 4 {
				candidate := parts[3]
				if candidate == "/dev/null" {
					candidate = parts[2]
				}
				addPath(&paths, seen, stripPrefix(candidate))
			}
			havePendingOld = false

		case strings.HasPrefix(line, "--- "):
			pendingOld = firstField(line[4:])
			havePendingOld = true

		case strings.HasPrefix(line, "+++ ") && havePendingOld:
			newPath := firstField(line[4:])
			candidate := newPath
			if candidate == "/dev/null" {
				candidate = pendingOld
			}
			addPath(&paths, seen, stripPrefix(candidate))
			havePendingOld = false
		}
	}
	return paths
}

func addPath(paths *[]string, seen map[string]bool, rel string) {
	if rel == "" || rel == "/dev/null" || seen[rel] {
		return
	}
	seen[rel] = true
	*paths = append(*paths, rel)
}

// LineChangeCounts returns (additions, deletions) across all hunks.
func LineChangeCounts(diffText string) (int, int) {
	additions, deletions := 0, 0
	for _, line := range strings.Split(diffText, "\n") {
		switch {
		case strings.HasPrefix(line, "diff --git "), strings.HasPrefix(line, "--- "),
			strings.HasPrefix(line, "+++ "), strings.HasPrefix(line, "@@ "),
			strings.HasPrefix(line, `\ No newline`):
			continue
		case strings.HasPrefix(line, "+"):
			additions++
		case strings.HasPrefix(line, "-"):
			deletions++
		}
	}
	return additions, deletions
}

// Stats returns (file count, byte length) for diffText, falling back to
// header-scraping if the patch doesn't parse cleanly.
func Stats(diffText string) (int, int) {
	byteLen := len(diffText)
	parsed, err := Parse(diffText)
	if err != nil {
		return len(ExtractChangedPaths(diffText)), byteLen
	}
	return len(parsed.Files), byteLen
}

// ValidateConstraints checks file count, byte length, presence of at least
// one line-level edit, the absence of a binary-patch sentinel, and that
// every changed path is allowed by p. It returns the changed paths on
// success.
func ValidateConstraints(diffText string, p policy.Policy) ([]string, error) {
	byteLen := len(diffText)
	if byteLen > p.Limits.MaxPatchBytes {
		return nil, patcherr.New(patcherr.PatchMalformed, "validate", fmt.Errorf("patch size %d exceeds %d bytes", byteLen, p.Limits.MaxPatchBytes))
	}

	if strings.Contains(diffText, "GIT binary patch") {
		return nil, patcherr.New(patcherr.PatchMalformed, "validate", fmt.Errorf("binary patches are not supported"))
	}

	changedPaths := ExtractChangedPaths(diffText)
	if len(changedPaths) == 0 {
		return nil, patcherr.New(patcherr.PatchMalformed, "validate", fmt.Errorf("patch did not contain any file targets"))
	}

	additions, deletions := LineChangeCounts(diffText)
	if additions+deletions == 0 {
		return nil, patcherr.New(patcherr.PatchMalformed, "validate", fmt.Errorf("patch contains no line-level edits"))
	}

	if len(changedPaths) > p.Limits.MaxFilesChanged {
		return nil, patcherr.New(patcherr.PolicyViolation, "validate", fmt.Errorf("patch changes %d files, above max %d", len(changedPaths), p.Limits.MaxFilesChanged))
	}

	for _, rel := range changedPaths {
		if !p.IsPathAllowed(rel) {
			return nil, patcherr.New(patcherr.PolicyViolation, "validate", fmt.Errorf("patch path is not allowed by policy: %s", rel))
		}
	}

	return changedPaths, nil
}
