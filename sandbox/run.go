package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"strings"
	"time"

	"github.com/patchprove/patchprove/policy"
)

// CommandResult is the outcome of running a proof target or any other
// sandboxed command. Exit code 124 is reserved for timeout.
type CommandResult struct {
	Cmd         string
	ExitCode    int
	Stdout      string
	Stderr      string
	DurationSec float64
}

// CombinedOutput returns Stdout and Stderr concatenated.
func (r CommandResult) CombinedOutput() string {
	return r.Stdout + r.Stderr
}

// Run executes cmd (or argv, when supplied, bypassing the shell) inside sb
// with a hard wall-clock timeout, never returning an error for a non-zero
// exit -- only for failure to even start the process. On timeout the
// result carries exit code 124 with a trailing diagnostic appended to
// stderr.
func Run(cmd string, cwd string, timeout time.Duration, sb *Sandbox, argv []string) (CommandResult, error) {
	start := time.Now()

	if sb != nil && sb.Backend == BackendContainer {
		return runContainer(cmd, cwd, timeout, sb, argv, start)
	}
	return runNative(cmd, cwd, timeout, argv, start)
}

func runNative(cmd string, cwd string, timeout time.Duration, argv []string, start time.Time) (CommandResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var execCmd *exec.Cmd
	if len(argv) > 0 {
		execCmd = exec.CommandContext(ctx, argv[0], argv[1:]...)
	} else {
		shell := "/bin/sh"
		execCmd = exec.CommandContext(ctx, shell, "-c", cmd)
	}
	execCmd.Dir = cwd
	execCmd.Env = forcedCIEnv(os.Environ())

	var stdout, stderr bytes.Buffer
	execCmd.Stdout = &stdout
	execCmd.Stderr = &stderr

	err := execCmd.Run()
	duration := time.Since(start).Seconds()

	if ctx.Err() == context.DeadlineExceeded {
		stderrText := strings.TrimSpace(stderr.String()) + fmt.Sprintf("\n[patchprove] Command timed out after %s", timeout)
		return CommandResult{Cmd: cmd, ExitCode: 124, Stdout: stdout.String(), Stderr: strings.TrimSpace(stderrText), DurationSec: duration}, nil
	}

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return CommandResult{}, fmt.Errorf("run command: %w", err)
		}
	}

	return CommandResult{Cmd: cmd, ExitCode: exitCode, Stdout: stdout.String(), Stderr: stderr.String(), DurationSec: duration}, nil
}

func runContainer(cmd string, cwd string, timeout time.Duration, sb *Sandbox, argv []string, start time.Time) (CommandResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	containerArgv := buildContainerCommand(cmd, cwd, sb, argv)
	execCmd := exec.CommandContext(ctx, containerArgv[0], containerArgv[1:]...)
	execCmd.Dir = cwd

	var stdout, stderr bytes.Buffer
	execCmd.Stdout = &stdout
	execCmd.Stderr = &stderr

	err := execCmd.Run()
	duration := time.Since(start).Seconds()

	if ctx.Err() == context.DeadlineExceeded {
		stderrText := strings.TrimSpace(stderr.String()) + fmt.Sprintf("\n[patchprove] Container command timed out after %s", timeout)
		return CommandResult{Cmd: cmd, ExitCode: 124, Stdout: stdout.String(), Stderr: strings.TrimSpace(stderrText), DurationSec: duration}, nil
	}

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return CommandResult{}, fmt.Errorf("run container command: %w", err)
		}
	}

	return CommandResult{Cmd: cmd, ExitCode: exitCode, Stdout: stdout.String(), Stderr: stderr.String(), DurationSec: duration}, nil
}

// buildContainerCommand assembles the docker/podman argv, following
// _build_container_command: --rm, --workdir, a bind mount of cwd at
// container_workdir, CI=1, --user uid:gid when the host exposes one,
// --network none when policy denies network, and --cpus/--memory when
// configured.
func buildContainerCommand(cmd string, cwd string, sb *Sandbox, argv []string) []string {
	runtime := sb.ContainerRuntime
	if runtime == "" {
		runtime = "docker"
	}
	image := sb.ContainerImage
	if image == "" {
		image = "python:3.11-slim"
	}
	workdir := sb.ContainerWorkdir
	if workdir == "" {
		workdir = "/workspace"
	}

	args := []string{
		runtime, "run", "--rm",
		"--workdir", workdir,
		"--volume", fmt.Sprintf("%s:%s", cwd, workdir),
		"-e", "CI=1",
	}

	if u, err := user.Current(); err == nil && u.Uid != "" && u.Gid != "" {
		args = append(args, "--user", fmt.Sprintf("%s:%s", u.Uid, u.Gid))
	}

	if sb.Network == policy.NetworkDeny {
		args = append(args, "--network", "none")
	}
	if sb.CPULimit != "" {
		args = append(args, "--cpus", sb.CPULimit)
	}
	if sb.MemoryLimit != "" {
		args = append(args, "--memory", sb.MemoryLimit)
	}

	if len(argv) > 0 {
		args = append(args, image)
		args = append(args, argv...)
	} else {
		args = append(args, image, "sh", "-lc", cmd)
	}
	return args
}

func forcedCIEnv(base []string) []string {
	for _, kv := range base {
		if strings.HasPrefix(kv, "CI=") {
			return base
		}
	}
	return append(base, "CI=1")
}
