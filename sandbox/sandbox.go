// Package sandbox materialises an isolated, mutable copy of a workspace,
// executes commands inside it (natively or under a container runtime with
// denied network and CPU/memory caps), and guarantees teardown.
//
// The git_worktree backend is grounded on the teacher's
// session/git/worktree.go (GitWorktree.Setup/SetupNewWorktree/Cleanup,
// shelling out to `git worktree add`/`remove`/`prune`); the backend
// selection, copy-with-ignore-patterns, and container command assembly are
// grounded on the original prototype's runner.py (create_sandbox,
// _copy_sandbox, _git_worktree_sandbox, _build_container_command,
// run_command).
package sandbox

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/patchprove/patchprove/log"
	"github.com/patchprove/patchprove/patcherr"
	"github.com/patchprove/patchprove/policy"
)

// Backend is the execution backend a command runs under.
type Backend string

const (
	BackendNative    Backend = "native"
	BackendContainer Backend = "container"
)

// WorkspaceBackend is how the sandbox's root filesystem was materialised.
type WorkspaceBackend string

const (
	WorkspaceCopy        WorkspaceBackend = "copy"
	WorkspaceGitWorktree WorkspaceBackend = "git_worktree"
)

// IgnoreNames are excluded from copies and from workspace manifests: the
// engine's own bookkeeping and language build caches should never be
// treated as part of the workspace under proof.
var IgnoreNames = []string{".git", ".pp-artifacts", "__pycache__", ".pytest_cache"}

// Sandbox is the isolated workspace a session attempts its patches in.
type Sandbox struct {
	Root             string
	Backend          Backend
	WorkspaceBackend WorkspaceBackend
	ControlRoot      string
	CleanupToken     string

	ContainerRuntime string
	ContainerImage   string
	ContainerImageID string
	ContainerWorkdir string

	Network     policy.Network
	CPULimit    string
	MemoryLimit string
}

// Create materialises a sandbox for workspaceRoot according to p.Sandbox's
// backend selection (auto/copy/git_worktree/container).
func Create(workspaceRoot string, p policy.Policy) (*Sandbox, error) {
	requested := strings.ToLower(strings.TrimSpace(p.Sandbox.Backend))
	if requested == "" {
		requested = "auto"
	}

	switch requested {
	case "auto", "copy", "git_worktree", "container":
	default:
		return nil, patcherr.New(patcherr.SandboxError, "create", fmt.Errorf("invalid policy.sandbox.backend: %s", requested))
	}

	if requested == "container" {
		runtime := p.Sandbox.ContainerRuntime
		if _, err := exec.LookPath(runtime); err != nil {
			return nil, patcherr.New(patcherr.SandboxError, "create",
				fmt.Errorf("container backend requested but runtime %q is not available in PATH", runtime))
		}
		sb, err := copySandbox(workspaceRoot)
		if err != nil {
			return nil, err
		}
		sb.Backend = BackendContainer
		sb.ContainerRuntime = runtime
		sb.ContainerImage = p.Sandbox.ContainerImage
		sb.ContainerWorkdir = p.Sandbox.ContainerWorkdir
		sb.Network = p.Network
		sb.CPULimit = p.Sandbox.CPULimit
		sb.MemoryLimit = p.Sandbox.MemoryLimit
		sb.ContainerImageID = containerImageID(runtime, p.Sandbox.ContainerImage)
		return sb, nil
	}

	if requested == "copy" {
		return copySandbox(workspaceRoot)
	}

	if requested == "git_worktree" {
		if !IsGitRepo(workspaceRoot) {
			return nil, patcherr.New(patcherr.SandboxError, "create", fmt.Errorf("policy.sandbox.backend=git_worktree requires a git repository"))
		}
		return gitWorktreeSandbox(workspaceRoot)
	}

	// auto
	if IsGitRepo(workspaceRoot) && IsGitClean(workspaceRoot) {
		sb, err := gitWorktreeSandbox(workspaceRoot)
		if err == nil {
			return sb, nil
		}
		log.WarningLog.Printf("auto sandbox: git_worktree failed (%v), falling back to copy", err)
	}
	return copySandbox(workspaceRoot)
}

// Cleanup tears down sb, guaranteeing the parent temporary directory is
// removed regardless of whether the worktree-removal step succeeds.
func Cleanup(sb *Sandbox) error {
	if sb == nil || sb.CleanupToken == "" {
		return nil
	}

	if sb.WorkspaceBackend == WorkspaceGitWorktree {
		if _, err := runGit(sb.ControlRoot, "worktree", "remove", "--force", sb.Root); err != nil {
			log.WarningLog.Printf("sandbox cleanup: worktree remove failed, removing directory directly: %v", err)
		}
		return os.RemoveAll(filepath.Dir(sb.Root))
	}

	return os.RemoveAll(sb.CleanupToken)
}

func containerImageID(runtime, image string) string {
	out, err := exec.Command(runtime, "image", "inspect", image, "--format", "{{.Id}}").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
