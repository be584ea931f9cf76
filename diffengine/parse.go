package diffengine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/patchprove/patchprove/patcherr"
)

var hunkHeaderRE = regexp.MustCompile(`^@@\s+-(\d+)(?:,(\d+))?\s+\+(\d+)(?:,(\d+))?\s+@@`)

// Parse parses a unified-diff byte stream. Lines inside a hunk that don't
// begin with ' ', '+', or '-' are tolerated: a leading space is
// reinstated, since model output commonly drops the explicit context
// marker on indented lines. An empty patch, or one with zero files, fails
// to parse.
func Parse(diffText string) (*ParsedPatch, error) {
	lines := strings.Split(diffText, "\n")
	// strings.Split on a trailing "\n" yields a final empty element; drop
	// it the way Python's str.splitlines() would.
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	var files []FilePatch
	var current *FilePatch

	idx := 0
	for idx < len(lines) {
		line := lines[idx]

		switch {
		case strings.HasPrefix(line, "diff --git"):
			idx++
			continue

		case strings.HasPrefix(line, "--- "):
			oldPath := firstField(line[4:])
			idx++
			if idx >= len(lines) || !strings.HasPrefix(lines[idx], "+++ ") {
				return nil, patcherr.New(patcherr.PatchMalformed, "parse", fmt.Errorf("malformed patch: expected +++ line"))
			}
			newPath := firstField(lines[idx][4:])
			files = append(files, FilePatch{OldPath: oldPath, NewPath: newPath})
			current = &files[len(files)-1]
			idx++
			continue

		case strings.HasPrefix(line, "@@ "):
			if current == nil {
				return nil, patcherr.New(patcherr.PatchMalformed, "parse", fmt.Errorf("malformed patch: hunk without file header"))
			}
			m := hunkHeaderRE.FindStringSubmatch(line)
			if m == nil {
				return nil, patcherr.New(patcherr.PatchMalformed, "parse", fmt.Errorf("malformed hunk header: %s", line))
			}
			hunk := Hunk{
				OldStart: atoi(m[1]),
				OldCount: atoiDefault(m[2], 1),
				NewStart: atoi(m[3]),
				NewCount: atoiDefault(m[4], 1),
			}
			idx++
			for idx < len(lines) {
				hline := lines[idx]
				if strings.HasPrefix(hline, "@@ ") || strings.HasPrefix(hline, "--- ") || strings.HasPrefix(hline, "diff --git") {
					break
				}
				if strings.HasPrefix(hline, `\ No newline at end of file`) {
					idx++
					continue
				}
				if !(strings.HasPrefix(hline, " ") || strings.HasPrefix(hline, "+") || strings.HasPrefix(hline, "-")) {
					hline = " " + hline
				}
				hunk.Lines = append(hunk.Lines, hline)
				idx++
			}
			current.Hunks = append(current.Hunks, hunk)
			continue

		default:
			idx++
		}
	}

	if len(files) == 0 {
		return nil, patcherr.New(patcherr.PatchMalformed, "parse", fmt.Errorf("patch did not contain any files"))
	}

	return &ParsedPatch{Files: files}, nil
}

func firstField(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\t'); i >= 0 {
		s = s[:i]
	}
	return s
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	return atoi(s)
}
