// Package diffengine parses, validates, relocates, applies, renders, and
// minimises unified diffs. It is grounded on the original prototype's
// patch.py (parse_unified_diff, apply_unified_diff, resolve_hunk_start,
// diff_between_dirs, render_patch_from_filepatches, minimize_patch_hunks),
// reworked into Go value types with explicit error returns in place of
// raised exceptions.
package diffengine

import "strings"

// Hunk is one @@ block of a unified diff. Lines are prefixed with one of
// ' ' (context), '+' (addition), or '-' (removal).
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []string
}

// FilePatch is the set of hunks touching one file, as declared by a
// --- / +++ header pair.
type FilePatch struct {
	OldPath string
	NewPath string
	Hunks   []Hunk
}

// RelPath returns the file's workspace-relative path, preferring the new
// path unless it is the creation/deletion sentinel /dev/null, and
// stripping the conventional a/ or b/ prefix.
func (f FilePatch) RelPath() string {
	candidate := f.NewPath
	if candidate == "/dev/null" {
		candidate = f.OldPath
	}
	return stripPrefix(candidate)
}

func stripPrefix(path string) string {
	path = strings.TrimSpace(path)
	if strings.HasPrefix(path, "a/") || strings.HasPrefix(path, "b/") {
		return path[2:]
	}
	return path
}

// ParsedPatch is an ordered list of file patches.
type ParsedPatch struct {
	Files []FilePatch
}
