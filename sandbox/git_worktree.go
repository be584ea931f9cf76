package sandbox

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"

	"github.com/patchprove/patchprove/patcherr"
)

// IsGitRepo reports whether path is inside a git working tree, following
// the teacher's pattern of shelling out for a definitive answer (session/
// git/util.go's IsGitRepo) rather than trusting go-git's PlainOpen alone,
// since PlainOpen also succeeds when path is merely inside a .git
// directory itself.
func IsGitRepo(path string) bool {
	out, err := exec.Command("git", "-C", path, "rev-parse", "--is-inside-work-tree").Output()
	return err == nil && strings.TrimSpace(string(out)) == "true"
}

// IsGitClean reports whether the working tree has no uncommitted changes.
func IsGitClean(path string) bool {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return false
	}
	wt, err := repo.Worktree()
	if err != nil {
		return false
	}
	status, err := wt.Status()
	if err != nil {
		return false
	}
	return status.IsClean()
}

// gitWorktreeSandbox materialises a detached worktree at HEAD, the way
// GitWorktree.SetupNewWorktree creates a fresh worktree from the current
// HEAD commit rather than inheriting uncommitted changes.
func gitWorktreeSandbox(workspaceRoot string) (*Sandbox, error) {
	tmpParent, err := os.MkdirTemp("", "pp-sandbox-")
	if err != nil {
		return nil, patcherr.New(patcherr.SandboxError, "git_worktree", err)
	}
	sandboxRoot := filepath.Join(tmpParent, "workspace")

	if _, err := runGit(workspaceRoot, "worktree", "add", "--detach", sandboxRoot, "HEAD"); err != nil {
		os.RemoveAll(tmpParent)
		return nil, patcherr.New(patcherr.SandboxError, "git_worktree", fmt.Errorf("failed to create git worktree sandbox: %w", err))
	}

	controlRoot := workspaceRoot
	if out, err := runGit(workspaceRoot, "rev-parse", "--show-toplevel"); err == nil {
		if top := strings.TrimSpace(string(out)); top != "" {
			controlRoot = top
		}
	}

	return &Sandbox{
		Root:             sandboxRoot,
		Backend:          BackendNative,
		WorkspaceBackend: WorkspaceGitWorktree,
		ControlRoot:      controlRoot,
		CleanupToken:     sandboxRoot,
	}, nil
}

// runGit executes a git command rooted at dir and returns its combined
// output, the same shape as the teacher's runGitCommand helper.
func runGit(dir string, args ...string) ([]byte, error) {
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}
	return output, nil
}

// HeadCommit returns the current HEAD commit SHA of path.
func HeadCommit(path string) (string, error) {
	out, err := runGit(path, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// CurrentBranch returns the current branch name of path, or "" if detached.
func CurrentBranch(path string) string {
	out, err := runGit(path, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return ""
	}
	branch := strings.TrimSpace(string(out))
	if branch == "HEAD" {
		return ""
	}
	return branch
}

// RemoteURL returns the "origin" remote URL of path, or "" if none.
func RemoteURL(path string) string {
	out, err := runGit(path, "remote", "get-url", "origin")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// UncommittedDiff returns the full working-tree diff against HEAD, used to
// populate source_git.diff when the source tree is dirty.
func UncommittedDiff(path string) (string, error) {
	out, err := runGit(path, "diff", "HEAD")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// ApplyWithGit invokes `git apply` with whitespace tolerance inside dir,
// the preferred fallback-apply path when dir is version controlled (per
// spec.md's "prefer invoking the native version-control patch-apply
// utility"). patchBytes is written to a temp file since `git apply`
// expects a file argument (stdin works too, but a file gives clearer
// diagnostics on failure for larger patches).
func ApplyWithGit(dir string, patchBytes []byte) error {
	f, err := os.CreateTemp("", "pp-apply-*.patch")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(patchBytes); err != nil {
		f.Close()
		return err
	}
	f.Close()

	cmd := exec.Command("git", "-C", dir, "apply", "--whitespace=nowarn", f.Name())
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git apply: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
