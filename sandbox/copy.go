package sandbox

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/patchprove/patchprove/patcherr"
)

// copySandbox recursively copies workspaceRoot into a fresh temporary
// directory, excluding IgnoreNames, mirroring _copy_sandbox.
func copySandbox(workspaceRoot string) (*Sandbox, error) {
	tmpParent, err := os.MkdirTemp("", "pp-sandbox-")
	if err != nil {
		return nil, patcherr.New(patcherr.SandboxError, "copy", err)
	}
	sandboxRoot := filepath.Join(tmpParent, "workspace")

	if err := copyTree(workspaceRoot, sandboxRoot); err != nil {
		os.RemoveAll(tmpParent)
		return nil, patcherr.New(patcherr.SandboxError, "copy", err)
	}

	return &Sandbox{
		Root:             sandboxRoot,
		Backend:          BackendNative,
		WorkspaceBackend: WorkspaceCopy,
		ControlRoot:      workspaceRoot,
		CleanupToken:     tmpParent,
	}, nil
}

// CopyTreeTo copies src into dst, excluding IgnoreNames. It is exported for
// callers outside the package (the diff engine's hunk minimizer) that need
// a disposable baseline copy without a full Sandbox wrapper.
func CopyTreeTo(src, dst string) error {
	return copyTree(src, dst)
}

func shouldIgnore(name string) bool {
	for _, ignored := range IgnoreNames {
		if name == ignored {
			return true
		}
	}
	return false
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel != "." && shouldIgnore(filepath.Base(path)) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		}

		if info.Mode()&os.ModeSymlink != 0 {
			linkTarget, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(linkTarget, target)
		}

		return copyFile(path, target, info.Mode())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm())
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %s -> %s: %w", src, dst, err)
	}
	return nil
}
