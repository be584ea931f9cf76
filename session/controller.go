package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/patchprove/patchprove/bundle"
	pcontext "github.com/patchprove/patchprove/context"
	"github.com/patchprove/patchprove/diffengine"
	"github.com/patchprove/patchprove/metrics"
	"github.com/patchprove/patchprove/patcherr"
	"github.com/patchprove/patchprove/policy"
	"github.com/patchprove/patchprove/propose"
	"github.com/patchprove/patchprove/sandbox"
)

// Controller drives one session's attempts against a workspace.
type Controller struct {
	WorkspaceRoot string

	// Metrics is optional; when nil, recording calls are skipped. Set it
	// via WithMetrics to have attempts, verify durations, and policy
	// checks observed through Prometheus collectors.
	Metrics *metrics.Metrics

	overrideProposer propose.Proposer
}

// New returns a Controller rooted at the given (already-absolute)
// workspace directory.
func New(workspaceRoot string) *Controller {
	return &Controller{WorkspaceRoot: workspaceRoot}
}

// WithMetrics attaches a metrics sink to the controller and returns it for
// chaining.
func (c *Controller) WithMetrics(m *metrics.Metrics) *Controller {
	c.Metrics = m
	return c
}

// WithProposer overrides the proposer the controller resolves by name,
// bypassing propose.New's registry lookup. Tests use this to drive the
// core attempt loop with a fixed fake proposer instead of the stub or a
// networked provider.
func (c *Controller) WithProposer(p propose.Proposer) *Controller {
	c.overrideProposer = p
	return c
}

func (c *Controller) recordPolicyCheck(kind string, allowed bool) {
	if c.Metrics != nil {
		c.Metrics.RecordPolicyCheck(kind, allowed)
	}
}

func (c *Controller) recordAttempt(succeeded bool) {
	if c.Metrics != nil {
		c.Metrics.RecordAttempt(succeeded)
	}
}

func (c *Controller) recordVerifyDuration(target string, seconds float64) {
	if c.Metrics != nil {
		c.Metrics.RecordVerifyDuration(target, seconds)
	}
}

func (c *Controller) recordSessionOutcome(success bool, attemptsUsed int) {
	if c.Metrics != nil {
		c.Metrics.RecordSessionOutcome(success, attemptsUsed)
	}
}

func (c *Controller) recordAttestation(operation string, ok bool) {
	if c.Metrics != nil {
		c.Metrics.RecordAttestation(operation, ok)
	}
}

// RunOptions configure a single-command session (the `run` subcommand).
type RunOptions struct {
	Command            string
	PolicyPath         string
	ProviderName       string
	KeepSandbox        bool
	Attest             bool
	AttestationMode    string
	AttestationKeyEnv  string
}

// Run builds a one-target config around Command and executes a session.
// Grounded on session.py's SessionController.run.
func (c *Controller) Run(opts RunOptions) (Summary, error) {
	cfg, resolvedPath, err := policy.LoadFile(opts.PolicyPath, opts.Command, c.WorkspaceRoot)
	if err != nil {
		return Summary{}, err
	}
	cfg.ProofTargets = []policy.ProofTarget{{Name: "default", Cmd: opts.Command}}

	return c.execute(cfg, resolvedPath, opts.ProviderName, opts.KeepSandbox, opts.Attest, opts.AttestationMode, opts.AttestationKeyEnv)
}

// ProveOptions configure a multi-target session driven entirely by the
// policy file's declared proof_targets (the `prove` subcommand).
type ProveOptions struct {
	PolicyPath        string
	ProviderName      string
	KeepSandbox       bool
	Attest            bool
	AttestationMode   string
	AttestationKeyEnv string
}

// Prove loads a policy file's proof targets and executes a session against
// them. Grounded on session.py's SessionController.prove.
func (c *Controller) Prove(opts ProveOptions) (Summary, error) {
	cfg, resolvedPath, err := policy.LoadFile(opts.PolicyPath, "true", c.WorkspaceRoot)
	if err != nil {
		return Summary{}, err
	}
	if len(cfg.ProofTargets) == 0 {
		return Summary{}, patcherr.New(patcherr.PolicyViolation, "prove", fmt.Errorf("no proof targets configured; add proof_targets in policy file"))
	}

	return c.execute(cfg, resolvedPath, opts.ProviderName, opts.KeepSandbox, opts.Attest, opts.AttestationMode, opts.AttestationKeyEnv)
}

func (c *Controller) execute(cfg *policy.Config, resolvedPolicyPath string, providerName string, keepSandbox bool, attest bool, attestationMode, attestationKeyEnv string) (Summary, error) {
	startedAt := time.Now()
	p := cfg.Policy

	if len(cfg.ProofTargets) == 0 {
		return Summary{}, patcherr.New(patcherr.PolicyViolation, "execute", fmt.Errorf("no proof targets configured"))
	}
	for _, target := range cfg.ProofTargets {
		allowed, _ := p.IsCommandAllowed(target.Cmd)
		c.recordPolicyCheck("proof_target", allowed)
		if !allowed {
			return Summary{}, patcherr.New(patcherr.PolicyViolation, "execute",
				fmt.Errorf("command is not allowed by policy: %s (allowed: %v)", target.Cmd, p.AllowedCommands))
		}
	}

	proposer := c.overrideProposer
	if proposer == nil {
		resolved, err := propose.New(providerName)
		if err != nil {
			return Summary{}, patcherr.New(patcherr.ProviderError, "execute", err)
		}
		proposer = resolved
	}

	artifacts, err := bundle.NewArtifactWriter(c.WorkspaceRoot)
	if err != nil {
		return Summary{}, patcherr.New(patcherr.SandboxError, "execute", err)
	}

	sb, err := sandbox.Create(c.WorkspaceRoot, p)
	if err != nil {
		return Summary{}, err
	}

	networkPolicy := string(p.Network)
	if _, err := artifacts.WriteEnvironment(string(sb.Backend), map[string]any{
		"workspace_backend":   string(sb.WorkspaceBackend),
		"network_policy":      networkPolicy,
		"container_runtime":   sb.ContainerRuntime,
		"container_image":     sb.ContainerImage,
		"container_image_id":  sb.ContainerImageID,
		"container_workdir":   sb.ContainerWorkdir,
		"cpu_limit":           sb.CPULimit,
		"memory_limit":        sb.MemoryLimit,
	}); err != nil {
		return Summary{}, err
	}

	policyPayload, err := configToMap(cfg)
	if err != nil {
		return Summary{}, err
	}
	if _, err := artifacts.WritePolicy(policyPayload); err != nil {
		return Summary{}, err
	}

	manifestEntries, err := bundle.BuildWorkspaceManifest(c.WorkspaceRoot)
	if err != nil {
		return Summary{}, err
	}
	manifestDigest, err := bundle.ManifestSHA256(manifestEntries)
	if err != nil {
		return Summary{}, err
	}
	if _, err := artifacts.WriteJSON("workspace_manifest.json", map[string]any{"files": manifestEntries}); err != nil {
		return Summary{}, err
	}

	gitMeta := bundle.CollectGitMetadata(c.WorkspaceRoot)
	var sourceGitDiffPath string
	if gitMeta.GitDiff != nil && *gitMeta.GitDiff != "" {
		path, err := artifacts.WriteText("source_git.diff", *gitMeta.GitDiff)
		if err != nil {
			return Summary{}, err
		}
		sourceGitDiffPath = filepath.Base(path)
	}

	var containerRuntimeVersion string
	if sb.ContainerRuntime != "" {
		containerRuntimeVersion = commandVersion(sb.ContainerRuntime, "--version")
	}

	targetPayload := make([]map[string]string, len(cfg.ProofTargets))
	for i, t := range cfg.ProofTargets {
		targetPayload[i] = map[string]string{"name": t.Name, "cmd": t.Cmd}
	}

	repro := map[string]any{
		"command":                    combinedVerifyCommand(cfg.ProofTargets),
		"workspace_root":             c.WorkspaceRoot,
		"policy_path":                nilIfEmpty(resolvedPolicyPath),
		"policy_hash":                p.Hash(),
		"provider":                   fmt.Sprintf("%T", proposer),
		"started_at_unix":            float64(startedAt.Unix()),
		"sandbox_backend":            string(sb.Backend),
		"workspace_backend":          string(sb.WorkspaceBackend),
		"network_policy":             networkPolicy,
		"container_runtime":          sb.ContainerRuntime,
		"container_image":            sb.ContainerImage,
		"container_image_id":         sb.ContainerImageID,
		"container_workdir":          sb.ContainerWorkdir,
		"cpu_limit":                  sb.CPULimit,
		"memory_limit":               sb.MemoryLimit,
		"container_runtime_version":  nilIfEmpty(containerRuntimeVersion),
		"proof_targets":              targetPayload,
		"is_git_repo":                gitMeta.IsGitRepo,
		"git_commit":                 derefString(gitMeta.GitCommit),
		"git_branch":                 derefString(gitMeta.GitBranch),
		"git_remote_url":             derefString(gitMeta.GitRemoteURL),
		"git_dirty":                  derefBool(gitMeta.GitDirty),
		"workspace_manifest_path":    "workspace_manifest.json",
		"workspace_manifest_sha256":  manifestDigest,
		"source_git_diff_path":       nilIfEmpty(sourceGitDiffPath),
	}

	var attemptRecords []AttemptRecord
	maxAttempts := p.Limits.MaxAttempts
	timeout := time.Duration(p.Limits.PerCommandTimeoutSec) * time.Second
	var previousErrors []string
	seenDiffs := map[string]bool{}

	baselineOK, baselineResult, failingCmd, _, err := c.runTargets(cfg.ProofTargets, sb, timeout, p, sb.Root, artifacts, "attempts/0_baseline")
	if err != nil {
		return Summary{}, err
	}
	finalResult := baselineResult
	activeFailureCmd := failingCmd
	success := baselineOK

	if !success {
		for attemptNo := 1; attemptNo <= maxAttempts; attemptNo++ {
			var containerWorkdir string
			if sb.Backend == sandbox.BackendContainer {
				containerWorkdir = sb.ContainerWorkdir
			}
			extracted := pcontext.Extract(finalResult.CombinedOutput(), sb.Root, containerWorkdir)
			allowlistedFiles := listAllowlistedFiles(sb.Root, p, 0)
			augmented := pcontext.AugmentWithAllowlist(extracted, sb.Root, allowlistedFiles)
			sanitizedOutput := pcontext.Redact(finalResult.CombinedOutput())
			redacted := redactContext(augmented)

			proposalInput := propose.Input{
				Command:          activeFailureCmd,
				FailureOutput:    sanitizedOutput,
				Context:          redacted,
				PreviousAttempts: previousErrors,
				WriteAllowlist:   p.WriteAllowlist,
				DenyWrite:        p.DenyWrite,
				EditableFiles:    readEditableFiles(sb.Root, allowlistedFiles, 8),
			}

			proposal, proposeErr := proposer.Propose(context.Background(), proposalInput)
			if proposeErr != nil {
				errMsg := fmt.Sprintf("provider error: %v", proposeErr)
				attemptRecords = append(attemptRecords, AttemptRecord{Number: attemptNo, ApplyOK: false, Error: errMsg})
				artifacts.WriteText(fmt.Sprintf("attempts/%d/error.txt", attemptNo), errMsg)
				previousErrors = append(previousErrors, errMsg)
				c.recordAttempt(false)
				continue
			}

			artifacts.WriteProposal(attemptNo, bundle.ProposalPayload{
				Diff: proposal.Diff, Rationale: proposal.Rationale, RiskNotes: proposal.RiskNotes,
				Confidence: proposal.Confidence, RawResponse: proposal.RawResponse,
			})
			artifacts.WriteText(fmt.Sprintf("attempts/%d/applied.patch", attemptNo), proposal.Diff)

			if strings.TrimSpace(proposal.Diff) == "" {
				errMsg := "provider returned empty diff"
				attemptRecords = append(attemptRecords, AttemptRecord{Number: attemptNo, Proposed: &proposal, ApplyOK: false, Error: errMsg})
				artifacts.WriteText(fmt.Sprintf("attempts/%d/error.txt", attemptNo), errMsg)
				previousErrors = append(previousErrors, errMsg)
				c.recordAttempt(false)
				continue
			}

			if seenDiffs[proposal.Diff] {
				errMsg := "duplicate diff rejected: identical patch already attempted this session"
				feedback := synthesizeRetryFeedback(errMsg, proposal.Diff, sb.Root)
				attemptRecords = append(attemptRecords, AttemptRecord{Number: attemptNo, Proposed: &proposal, ApplyOK: false, Error: errMsg})
				artifacts.WriteText(fmt.Sprintf("attempts/%d/error.txt", attemptNo), feedback)
				previousErrors = append(previousErrors, feedback)
				c.recordAttempt(false)
				continue
			}
			seenDiffs[proposal.Diff] = true

			fileCount, patchBytes := diffengine.Stats(proposal.Diff)
			artifacts.WriteJSON(fmt.Sprintf("attempts/%d/patch_stats.json", attemptNo), map[string]int{"files": fileCount, "bytes": patchBytes})

			changedPaths, applyErr := diffengine.ApplyWithFallback(proposal.Diff, sb.Root, p)
			if applyErr != nil {
				errMsg := fmt.Sprintf("patch apply rejected: %v", applyErr)
				feedback := synthesizeRetryFeedback(errMsg, proposal.Diff, sb.Root)
				attemptRecords = append(attemptRecords, AttemptRecord{Number: attemptNo, Proposed: &proposal, ApplyOK: false, Error: errMsg})
				artifacts.WriteText(fmt.Sprintf("attempts/%d/error.txt", attemptNo), feedback)
				previousErrors = append(previousErrors, feedback)
				c.recordAttempt(false)
				continue
			}
			artifacts.WriteJSON(fmt.Sprintf("attempts/%d/changed_paths.json", attemptNo), changedPaths)

			verifyOK, verifyResult, failCmd, _, err := c.runTargets(cfg.ProofTargets, sb, timeout, p, sb.Root, artifacts, fmt.Sprintf("attempts/%d/verify", attemptNo))
			if err != nil {
				return Summary{}, err
			}

			attemptRecords = append(attemptRecords, AttemptRecord{
				Number: attemptNo, Proposed: &proposal, ApplyOK: true, VerifyResult: &verifyResult,
			})
			c.recordAttempt(verifyOK)

			finalResult = verifyResult
			if verifyOK {
				success = true
				break
			}

			activeFailureCmd = failCmd
			previousErrors = append(previousErrors, fmt.Sprintf("attempt %d verify failed for `%s` with exit code %d", attemptNo, failCmd, verifyResult.ExitCode))
		}
	}

	finalPatch, err := diffengine.DiffBetweenDirs(c.WorkspaceRoot, sb.Root)
	if err != nil {
		return Summary{}, err
	}

	if success && strings.TrimSpace(finalPatch) != "" && p.Minimize {
		verifier := func(root string) (bool, error) {
			ok, _, _, _, err := c.runTargets(cfg.ProofTargets, nil, timeout, p, root, nil, "")
			return ok, err
		}
		minimized, err := diffengine.MinimizeHunks(finalPatch, c.WorkspaceRoot, p, verifier)
		if err == nil && strings.TrimSpace(minimized) != "" {
			finalPatch = minimized
		}
	}

	finalPatchPath, err := artifacts.WriteText("final.patch", finalPatch)
	if err != nil {
		return Summary{}, err
	}

	shouldAttest := attest || p.Attestation.Enabled
	resolvedMode := strings.ToLower(strings.TrimSpace(firstNonEmptyStr(attestationMode, p.Attestation.Mode, "none")))
	resolvedKeyEnv := strings.TrimSpace(firstNonEmptyStr(attestationKeyEnv, p.Attestation.KeyEnv, "PP_ATTEST_HMAC_KEY"))

	summaryLines := []string{
		"# patchprove summary",
		"",
		fmt.Sprintf("- success: %t", success),
		fmt.Sprintf("- proof_target_count: %d", len(cfg.ProofTargets)),
		fmt.Sprintf("- verify_command: `%s`", combinedVerifyCommand(cfg.ProofTargets)),
		fmt.Sprintf("- attempts_used: %d", len(attemptRecords)),
		fmt.Sprintf("- final_exit_code: %d", finalResult.ExitCode),
		fmt.Sprintf("- policy_hash: `%s`", p.Hash()),
	}
	if shouldAttest {
		summaryLines = append(summaryLines, fmt.Sprintf("- attestation_mode: `%s`", resolvedMode))
	}
	summaryLines = append(summaryLines,
		"",
		"## Final result",
		"",
		"```text",
		truncate(finalResult.Stdout, 4000),
		truncate(finalResult.Stderr, 4000),
		"```",
	)
	if _, err := artifacts.WriteSummary(strings.Join(summaryLines, "\n")); err != nil {
		return Summary{}, err
	}

	repro["finished_at_unix"] = float64(time.Now().Unix())
	repro["success"] = success
	repro["attempts_used"] = len(attemptRecords)
	repro["final_exit_code"] = finalResult.ExitCode
	repro["artifact_dir"] = artifacts.ProofBundleDir
	if _, err := artifacts.WriteRepro(repro); err != nil {
		return Summary{}, err
	}

	var attestationPath string
	if shouldAttest {
		path, err := bundle.CreateAttestation(artifacts.ProofBundleDir, resolvedMode, resolvedKeyEnv, float64(time.Now().Unix()))
		c.recordAttestation("create", err == nil)
		if err != nil {
			return Summary{}, patcherr.New(patcherr.AttestationError, "execute", err)
		}
		attestationPath = path
	}

	c.recordSessionOutcome(success, len(attemptRecords))

	if !keepSandbox {
		if err := sandbox.Cleanup(sb); err != nil {
			return Summary{}, err
		}
	} else {
		artifacts.WriteText("sandbox_path.txt", sb.Root)
	}

	return Summary{
		Success:         success,
		AttemptsUsed:    len(attemptRecords),
		FinalPatchPath:  finalPatchPath,
		ProofBundleDir:  artifacts.ProofBundleDir,
		FinalResult:     finalResult,
		AttemptRecords:  attemptRecords,
		SessionDir:      artifacts.SessionDir,
		Repro:           repro,
		AttestationPath: attestationPath,
	}, nil
}

// runTargets executes every proof target in order against a sandbox (or
// nil, meaning run directly in workCwd with no sandbox wrapper), returning
// whether all targets passed, the first failure (or the last result if all
// passed), the failing command, and the per-target rows. Grounded on
// session.py's _run_targets.
func (c *Controller) runTargets(targets []policy.ProofTarget, sb *sandbox.Sandbox, timeout time.Duration, p policy.Policy, workCwd string, artifacts *bundle.ArtifactWriter, artifactRelPrefix string) (bool, sandbox.CommandResult, string, []TargetResult, error) {
	if len(targets) == 0 {
		return false, sandbox.CommandResult{}, "", nil, patcherr.New(patcherr.PolicyViolation, "run_targets", fmt.Errorf("no proof targets configured"))
	}

	var firstFailure *sandbox.CommandResult
	var firstFailureCmd string
	var lastResult sandbox.CommandResult
	var lastCmd string
	rows := make([]TargetResult, 0, len(targets))

	for idx, target := range targets {
		allowed, argv := p.IsCommandAllowed(target.Cmd)
		c.recordPolicyCheck("run_target", allowed)
		if !allowed {
			return false, sandbox.CommandResult{}, "", nil, patcherr.New(patcherr.PolicyViolation, "run_targets", fmt.Errorf("command is not allowed by policy: %s", target.Cmd))
		}

		result, err := sandbox.Run(target.Cmd, workCwd, timeout, sb, argv)
		if err != nil {
			return false, sandbox.CommandResult{}, "", nil, patcherr.New(patcherr.SandboxError, "run_targets", err)
		}
		c.recordVerifyDuration(target.Name, result.DurationSec)
		lastResult = result
		lastCmd = target.Cmd

		rows = append(rows, TargetResult{Name: target.Name, Cmd: target.Cmd, ExitCode: result.ExitCode, DurationSec: result.DurationSec})

		if artifacts != nil && artifactRelPrefix != "" {
			artifacts.WriteCommandResult(
				fmt.Sprintf("%s/%s.json", artifactRelPrefix, safeTargetName(target.Name, idx+1)),
				bundle.CommandResultPayload{Cmd: result.Cmd, ExitCode: result.ExitCode, DurationSec: result.DurationSec, Stdout: result.Stdout, Stderr: result.Stderr},
			)
		}

		if firstFailure == nil && result.ExitCode != 0 {
			failureCopy := result
			firstFailure = &failureCopy
			firstFailureCmd = target.Cmd
		}
	}

	if artifacts != nil && artifactRelPrefix != "" {
		artifacts.WriteJSON(fmt.Sprintf("%s/target_results.json", artifactRelPrefix), rows)
		if len(targets) == 1 {
			artifacts.WriteCommandResult(fmt.Sprintf("%s/verify.json", artifactRelPrefix),
				bundle.CommandResultPayload{Cmd: lastResult.Cmd, ExitCode: lastResult.ExitCode, DurationSec: lastResult.DurationSec, Stdout: lastResult.Stdout, Stderr: lastResult.Stderr})
		}
	}

	representative := lastResult
	representativeCmd := lastCmd
	if firstFailure != nil {
		representative = *firstFailure
		representativeCmd = firstFailureCmd
	}

	return firstFailure == nil, representative, representativeCmd, rows, nil
}

func combinedVerifyCommand(targets []policy.ProofTarget) string {
	if len(targets) == 1 {
		return targets[0].Cmd
	}
	parts := make([]string, len(targets))
	for i, t := range targets {
		parts[i] = "(" + t.Cmd + ")"
	}
	return strings.Join(parts, " && ")
}

func safeTargetName(name string, index int) string {
	raw := strings.TrimSpace(name)
	if raw == "" {
		raw = fmt.Sprintf("target%d", index)
	}
	var b strings.Builder
	for _, r := range raw {
		if isAlnum(r) || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	sanitized := strings.Trim(b.String(), "_")
	if sanitized == "" {
		sanitized = fmt.Sprintf("target%d", index)
	}
	return fmt.Sprintf("%02d_%s", index, sanitized)
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// listAllowlistedFiles returns the workspace-relative paths under root that
// the policy's write allowlist permits, in sorted order. limit caps the
// result to the first N matches; 0 means unbounded.
func listAllowlistedFiles(root string, p policy.Policy, limit int) []string {
	entries, err := bundle.BuildWorkspaceManifest(root)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if !p.IsPathAllowed(e.Path) {
			continue
		}
		out = append(out, e.Path)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// readEditableFiles reads the raw content of up to limit allowlisted files,
// the "editable-file snapshots" spec.md's proposer contract calls for.
func readEditableFiles(root string, allowlistedFiles []string, limit int) map[string]string {
	out := map[string]string{}
	for i, rel := range allowlistedFiles {
		if i >= limit {
			break
		}
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			continue
		}
		out[rel] = string(data)
	}
	return out
}

// synthesizeRetryFeedback builds the feedback string appended to
// previous_attempts when a duplicate or an apply rejection is recorded: the
// rejection reason, the current raw snapshot (first ~60 lines) of each file
// the rejected patch claimed to touch, and a fixed instruction to use those
// snapshots verbatim in the next proposal.
func synthesizeRetryFeedback(reason, diffText, root string) string {
	paths := diffengine.ExtractChangedPaths(diffText)

	var b strings.Builder
	b.WriteString(reason)
	b.WriteString("\n")
	if len(paths) == 0 {
		return b.String()
	}

	b.WriteString("\nCurrent raw snapshots of the files the rejected patch touched:\n")
	for _, rel := range paths {
		fmt.Fprintf(&b, "\n### %s\n%s\n", rel, headLines(root, rel, 60))
	}
	b.WriteString("\nUse these snapshots verbatim as the basis for the next proposal; do not guess at file contents.\n")
	return b.String()
}

func headLines(root, relPath string, maxLines int) string {
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(relPath)))
	if err != nil {
		return fmt.Sprintf("(could not read %s: %v)", relPath, err)
	}
	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	if len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	return strings.Join(lines, "\n")
}

func redactContext(s pcontext.Slice) pcontext.Slice {
	snippets := make(map[string]string, len(s.Snippets))
	for k, v := range s.Snippets {
		snippets[k] = pcontext.Redact(v)
	}
	assertions := make([]string, len(s.FailingAssertions))
	for i, a := range s.FailingAssertions {
		assertions[i] = pcontext.Redact(a)
	}
	return pcontext.Slice{Locations: s.Locations, Snippets: snippets, FailingAssertions: assertions}
}

func commandVersion(argv ...string) string {
	cmd := exec.Command(argv[0], argv[1:]...)
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func configToMap(cfg *policy.Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func derefString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func derefBool(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}

func firstNonEmptyStr(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

