// Package session drives the propose -> apply -> verify -> minimize loop
// described by the attempt state machine: it owns sandbox lifecycle,
// attempt bookkeeping, and proof bundle assembly, delegating to policy,
// sandbox, diffengine, context, propose, and bundle for their respective
// concerns. Grounded on the original prototype's session.py
// (SessionController._execute_session/run/prove/replay).
package session

import (
	"github.com/patchprove/patchprove/propose"
	"github.com/patchprove/patchprove/sandbox"
)

// AttemptRecord is the bookkeeping kept for one propose/apply/verify cycle.
type AttemptRecord struct {
	Number       int
	Proposed     *propose.Output
	ApplyOK      bool
	VerifyResult *sandbox.CommandResult
	Error        string
}

// TargetResult is one proof target's outcome within a single verify pass.
type TargetResult struct {
	Name        string  `json:"name"`
	Cmd         string  `json:"cmd"`
	ExitCode    int     `json:"exit_code"`
	DurationSec float64 `json:"duration_sec"`
}

// Summary is the outcome handed back to the CLI layer once a session
// finishes.
type Summary struct {
	Success         bool
	AttemptsUsed    int
	FinalPatchPath  string
	ProofBundleDir  string
	FinalResult     sandbox.CommandResult
	AttemptRecords  []AttemptRecord
	SessionDir      string
	Repro           map[string]any
	AttestationPath string
}
