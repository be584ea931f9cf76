package diffengine

import (
	"strconv"
	"strings"
)

// RenderPatch renders a ParsedPatch back to unified-diff text, grounded on
// render_patch_from_filepatches: one diff --git / --- / +++ header triad
// per file followed by its hunks, each hunk header recomputed from the
// hunk's own line counts.
func RenderPatch(p *ParsedPatch) string {
	var b strings.Builder
	for _, fp := range p.Files {
		oldPath, newPath := fp.OldPath, fp.NewPath
		if oldPath == "" {
			oldPath = "/dev/null"
		}
		if newPath == "" {
			newPath = "/dev/null"
		}
		b.WriteString("diff --git " + withPrefix("a", oldPath) + " " + withPrefix("b", newPath) + "\n")
		b.WriteString("--- " + withPrefix("a", oldPath) + "\n")
		b.WriteString("+++ " + withPrefix("b", newPath) + "\n")
		for _, h := range fp.Hunks {
			b.WriteString(renderHunkHeader(h) + "\n")
			for _, l := range h.Lines {
				b.WriteString(l + "\n")
			}
		}
	}
	return b.String()
}

func withPrefix(prefix, path string) string {
	if path == "/dev/null" {
		return path
	}
	if strings.HasPrefix(path, prefix+"/") {
		return path
	}
	return prefix + "/" + stripPrefix(path)
}

func renderHunkHeader(h Hunk) string {
	old := formatRange(h.OldStart, h.OldCount)
	new_ := formatRange(h.NewStart, h.NewCount)
	return "@@ -" + old + " +" + new_ + " @@"
}

func formatRange(start, count int) string {
	if count == 1 {
		return strconv.Itoa(start)
	}
	return strconv.Itoa(start) + "," + strconv.Itoa(count)
}
