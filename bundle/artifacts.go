// Package bundle assembles the proof bundle a session leaves behind: the
// attempt-by-attempt record of proposals and verify results, the
// workspace manifest and git provenance, and an optional HMAC-signed
// attestation statement over the whole bundle. Grounded on the original
// prototype's artifacts.py, provenance.py, and attest.py.
package bundle

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const randomSuffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// NewSessionID mints a session identifier: the process id plus a short
// random suffix, mirroring _session_id.
func NewSessionID() string {
	suffix := make([]byte, 6)
	randomBytes := make([]byte, 6)
	if _, err := rand.Read(randomBytes); err != nil {
		// crypto/rand failing is effectively unrecoverable on any real
		// platform; fall back to a fixed suffix rather than panic.
		copy(suffix, "abcdef")
	} else {
		for i, b := range randomBytes {
			suffix[i] = randomSuffixAlphabet[int(b)%len(randomSuffixAlphabet)]
		}
	}
	return fmt.Sprintf("%d-%s", os.Getpid(), suffix)
}

// ArtifactWriter writes every file that makes up one session's proof
// bundle under <workspace_root>/.pp-artifacts/<session_id>/proof_bundle/.
type ArtifactWriter struct {
	WorkspaceRoot  string
	SessionID      string
	SessionDir     string
	ProofBundleDir string
	AttemptsDir    string
}

// NewArtifactWriter creates the attempts directory and returns a writer
// rooted at it.
func NewArtifactWriter(workspaceRoot string) (*ArtifactWriter, error) {
	sessionID := NewSessionID()
	sessionDir := filepath.Join(workspaceRoot, ".pp-artifacts", sessionID)
	proofBundleDir := filepath.Join(sessionDir, "proof_bundle")
	attemptsDir := filepath.Join(proofBundleDir, "attempts")

	if err := os.MkdirAll(attemptsDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating proof bundle directory: %w", err)
	}

	return &ArtifactWriter{
		WorkspaceRoot:  workspaceRoot,
		SessionID:      sessionID,
		SessionDir:     sessionDir,
		ProofBundleDir: proofBundleDir,
		AttemptsDir:    attemptsDir,
	}, nil
}

// WriteJSON writes payload as indented, key-sorted JSON to relPath inside
// the proof bundle directory.
func (w *ArtifactWriter) WriteJSON(relPath string, payload any) (string, error) {
	target := filepath.Join(w.ProofBundleDir, relPath)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", err
	}
	return target, nil
}

// WriteText writes text verbatim to relPath inside the proof bundle
// directory.
func (w *ArtifactWriter) WriteText(relPath, text string) (string, error) {
	target := filepath.Join(w.ProofBundleDir, relPath)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(target, []byte(text), 0o644); err != nil {
		return "", err
	}
	return target, nil
}

// CommandResultPayload is the JSON shape written for a verify/command run.
type CommandResultPayload struct {
	Cmd         string  `json:"cmd"`
	ExitCode    int     `json:"exit_code"`
	DurationSec float64 `json:"duration_sec"`
	Stdout      string  `json:"stdout"`
	Stderr      string  `json:"stderr"`
}

// WriteCommandResult writes one CommandResultPayload to relPath.
func (w *ArtifactWriter) WriteCommandResult(relPath string, result CommandResultPayload) (string, error) {
	return w.WriteJSON(relPath, result)
}

// ProposalPayload is the JSON shape written for one attempt's proposal.
type ProposalPayload struct {
	Diff        string   `json:"diff"`
	Rationale   string   `json:"rationale"`
	RiskNotes   string   `json:"risk_notes"`
	Confidence  *float64 `json:"confidence"`
	RawResponse string   `json:"raw_response"`
}

// WriteProposal writes an attempt's proposal under attempts/<n>/proposed.json.
func (w *ArtifactWriter) WriteProposal(attemptNo int, proposal ProposalPayload) (string, error) {
	return w.WriteJSON(fmt.Sprintf("attempts/%d/proposed.json", attemptNo), proposal)
}

// WriteEnvironment records the platform and sandbox backend in use,
// merging in any extra caller-supplied fields.
func (w *ArtifactWriter) WriteEnvironment(sandboxBackend string, extra map[string]any) (string, error) {
	payload := map[string]any{
		"platform":        runtime.GOOS + "/" + runtime.GOARCH,
		"go_version":      runtime.Version(),
		"sandbox_backend": sandboxBackend,
		"cwd":             w.WorkspaceRoot,
	}
	for k, v := range extra {
		payload[k] = v
	}
	return w.WriteJSON("environment.json", payload)
}

// WriteSummary writes the bundle's human-readable final_summary.md.
func (w *ArtifactWriter) WriteSummary(text string) (string, error) {
	return w.WriteText("final_summary.md", text)
}

// WriteRepro writes the reproduction recipe to repro.json.
func (w *ArtifactWriter) WriteRepro(payload map[string]any) (string, error) {
	return w.WriteJSON("repro.json", payload)
}

// WritePolicy writes the effective policy, as applied, to policy.json.
func (w *ArtifactWriter) WritePolicy(payload map[string]any) (string, error) {
	return w.WriteJSON("policy.json", payload)
}
