package diffengine

import (
	"os"
	"path/filepath"

	"github.com/patchprove/patchprove/policy"
	"github.com/patchprove/patchprove/sandbox"
)

// Verifier runs the proof command against workspaceRoot and reports
// whether it passed. The session package supplies the concrete
// implementation (sandbox.Run against the configured verify command),
// which keeps diffengine free of any dependency on the session
// controller and avoids an import cycle.
type Verifier func(workspaceRoot string) (bool, error)

// MinimizeHunks greedily drops one hunk at a time from patchText, re-applies
// the remaining hunks to a fresh copy of baselineRoot, and re-runs verify;
// a drop is kept whenever verify still passes. It repeats until no further
// hunk can be dropped without breaking verification. Grounded on
// minimize_patch_hunks, which plays the same greedy fixed-point game in
// Python using shutil.copytree/apply_unified_diff/run_command.
func MinimizeHunks(patchText string, baselineRoot string, p policy.Policy, verify Verifier) (string, error) {
	if emptyPatch(patchText) {
		return patchText, nil
	}

	parsed, err := Parse(patchText)
	if err != nil {
		return "", err
	}
	current := cloneFiles(parsed.Files)

	for {
		madeProgress := false

	fileLoop:
		for fileIdx := range current {
			for hunkIdx := range current[fileIdx].Hunks {
				candidate := cloneFiles(current)
				candidate[fileIdx].Hunks = dropAt(candidate[fileIdx].Hunks, hunkIdx)
				candidate = nonEmptyFiles(candidate)
				candidatePatch := RenderPatch(&ParsedPatch{Files: candidate})

				ok, err := tryCandidate(candidatePatch, baselineRoot, p, verify)
				if err != nil {
					return "", err
				}
				if ok {
					current = candidate
					madeProgress = true
					break fileLoop
				}
			}
		}

		if !madeProgress {
			break
		}
	}

	if len(current) == 0 {
		return "", nil
	}
	return RenderPatch(&ParsedPatch{Files: current}), nil
}

func tryCandidate(candidatePatch, baselineRoot string, p policy.Policy, verify Verifier) (bool, error) {
	tempParent, err := os.MkdirTemp("", "pp-minimize-")
	if err != nil {
		return false, err
	}
	defer os.RemoveAll(tempParent)

	tempRoot := filepath.Join(tempParent, "workspace")
	if err := copyBaseline(baselineRoot, tempRoot); err != nil {
		return false, err
	}

	if emptyPatch(candidatePatch) == false {
		if _, err := Apply(candidatePatch, tempRoot, p); err != nil {
			return false, nil
		}
	}

	return verify(tempRoot)
}

func copyBaseline(src, dst string) error {
	return sandbox.CopyTreeTo(src, dst)
}

func emptyPatch(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}

func cloneFiles(files []FilePatch) []FilePatch {
	out := make([]FilePatch, len(files))
	for i, fp := range files {
		hunks := make([]Hunk, len(fp.Hunks))
		for j, h := range fp.Hunks {
			lines := append([]string(nil), h.Lines...)
			hunks[j] = Hunk{OldStart: h.OldStart, OldCount: h.OldCount, NewStart: h.NewStart, NewCount: h.NewCount, Lines: lines}
		}
		out[i] = FilePatch{OldPath: fp.OldPath, NewPath: fp.NewPath, Hunks: hunks}
	}
	return out
}

func dropAt(hunks []Hunk, idx int) []Hunk {
	out := make([]Hunk, 0, len(hunks)-1)
	out = append(out, hunks[:idx]...)
	out = append(out, hunks[idx+1:]...)
	return out
}

func nonEmptyFiles(files []FilePatch) []FilePatch {
	out := files[:0:0]
	for _, fp := range files {
		if len(fp.Hunks) > 0 {
			out = append(out, fp)
		}
	}
	return out
}
