package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/patchprove/patchprove/bundle"
	"github.com/patchprove/patchprove/diffengine"
	"github.com/patchprove/patchprove/patcherr"
	"github.com/patchprove/patchprove/policy"
	"github.com/patchprove/patchprove/sandbox"
)

// ReplayResult is the JSON-shaped outcome of re-running a recorded bundle's
// verification command against a fresh copy of its source workspace.
type ReplayResult struct {
	Command        string               `json:"command"`
	Cwd            string               `json:"cwd"`
	ReplayRoot     string               `json:"replay_root"`
	ExitCode       int                  `json:"exit_code"`
	DurationSec    float64              `json:"duration_sec"`
	Stdout         string               `json:"stdout"`
	Stderr         string               `json:"stderr"`
	Success        bool                 `json:"success"`
	SandboxBackend string               `json:"sandbox_backend"`
	TargetResults  []TargetResult       `json:"target_results"`
	Attestation    *bundle.VerifyResult `json:"attestation,omitempty"`
}

// ReplayOptions configure a replay run.
type ReplayOptions struct {
	BundleDir               string
	CwdOverride             string
	VerifyBundleAttestation bool
}

// Replay reconstructs the exact command(s) a proof bundle recorded, copies
// the bundle's source workspace, re-applies its final.patch, and re-runs
// verification -- confirming the proof still holds without needing a
// provider or a live session. Grounded on session.py's
// SessionController.replay.
func (c *Controller) Replay(opts ReplayOptions) (ReplayResult, error) {
	reproPath := filepath.Join(opts.BundleDir, "repro.json")
	reproRaw, err := os.ReadFile(reproPath)
	if err != nil {
		return ReplayResult{}, patcherr.New(patcherr.SandboxError, "replay", fmt.Errorf("missing repro.json in %s", opts.BundleDir))
	}

	var repro map[string]any
	if err := json.Unmarshal(reproRaw, &repro); err != nil {
		return ReplayResult{}, patcherr.New(patcherr.SandboxError, "replay", fmt.Errorf("malformed repro.json: %w", err))
	}

	fallbackCommand := strings.TrimSpace(stringField(repro, "command"))
	targets := parseReproTargets(repro)
	if len(targets) == 0 {
		if fallbackCommand == "" {
			return ReplayResult{}, patcherr.New(patcherr.SandboxError, "replay", fmt.Errorf("repro.json does not include command/proof_targets"))
		}
		targets = []policy.ProofTarget{{Name: "default", Cmd: fallbackCommand}}
	}

	sourceRoot := opts.CwdOverride
	if sourceRoot == "" {
		sourceRoot = stringField(repro, "workspace_root")
	}
	if sourceRoot == "" {
		sourceRoot = c.WorkspaceRoot
	}
	absSource, err := filepath.Abs(sourceRoot)
	if err != nil {
		return ReplayResult{}, err
	}
	info, err := os.Stat(absSource)
	if err != nil || !info.IsDir() {
		return ReplayResult{}, patcherr.New(patcherr.SandboxError, "replay", fmt.Errorf("replay source root does not exist: %s", absSource))
	}

	tempParent, err := os.MkdirTemp("", "pp-replay-")
	if err != nil {
		return ReplayResult{}, err
	}
	defer os.RemoveAll(tempParent)

	replayRoot := filepath.Join(tempParent, "workspace")
	if err := sandbox.CopyTreeTo(absSource, replayRoot); err != nil {
		return ReplayResult{}, err
	}

	timeoutSec := 600
	p := policy.Policy{AllowedCommands: commandsOf(targets)}

	policyPath := filepath.Join(opts.BundleDir, "policy.json")
	if raw, err := os.ReadFile(policyPath); err == nil {
		var mapping map[string]any
		if err := json.Unmarshal(raw, &mapping); err == nil {
			if loaded, loadErr := policy.FromMapping(mapping, targets[0].Cmd); loadErr == nil {
				p = loaded.Policy
				timeoutSec = p.Limits.PerCommandTimeoutSec
			}
		}
	}

	finalPatchPath := filepath.Join(opts.BundleDir, "final.patch")
	if raw, err := os.ReadFile(finalPatchPath); err == nil {
		patchText := string(raw)
		if strings.TrimSpace(patchText) != "" {
			if _, err := diffengine.ApplyWithFallback(patchText, replayRoot, p); err != nil {
				return ReplayResult{}, err
			}
		}
	}

	var replaySandbox *sandbox.Sandbox
	if strings.ToLower(strings.TrimSpace(p.Sandbox.Backend)) == "container" {
		replaySandbox = &sandbox.Sandbox{
			Root:             replayRoot,
			Backend:          sandbox.BackendContainer,
			WorkspaceBackend: sandbox.WorkspaceCopy,
			ControlRoot:      replayRoot,
			ContainerRuntime: p.Sandbox.ContainerRuntime,
			ContainerImage:   p.Sandbox.ContainerImage,
			ContainerWorkdir: p.Sandbox.ContainerWorkdir,
			Network:          p.Network,
			CPULimit:         p.Sandbox.CPULimit,
			MemoryLimit:      p.Sandbox.MemoryLimit,
		}
	}

	ok, representative, _, rows, err := c.runTargets(targets, replaySandbox, time.Duration(timeoutSec)*time.Second, p, replayRoot, nil, "")
	if err != nil {
		return ReplayResult{}, err
	}

	backend := "native"
	if replaySandbox != nil {
		backend = string(replaySandbox.Backend)
	}

	result := ReplayResult{
		Command:        combinedVerifyCommand(targets),
		Cwd:            absSource,
		ReplayRoot:     replayRoot,
		ExitCode:       representative.ExitCode,
		DurationSec:    representative.DurationSec,
		Stdout:         representative.Stdout,
		Stderr:         representative.Stderr,
		Success:        ok,
		SandboxBackend: backend,
		TargetResults:  rows,
	}

	if opts.VerifyBundleAttestation {
		v := bundle.VerifyAttestation(opts.BundleDir)
		result.Attestation = &v
	}

	return result, nil
}

func parseReproTargets(repro map[string]any) []policy.ProofTarget {
	raw, ok := repro["proof_targets"].([]any)
	if !ok {
		return nil
	}
	var targets []policy.ProofTarget
	for idx, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		cmd := strings.TrimSpace(stringField(m, "cmd"))
		if cmd == "" {
			continue
		}
		name := stringField(m, "name")
		if name == "" {
			name = fmt.Sprintf("target-%d", idx+1)
		}
		targets = append(targets, policy.ProofTarget{Name: name, Cmd: cmd})
	}
	return targets
}

func stringField(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func commandsOf(targets []policy.ProofTarget) []string {
	out := make([]string, len(targets))
	for i, t := range targets {
		out[i] = t.Cmd
	}
	return out
}
