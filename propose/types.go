// Package propose defines the pluggable patch-proposer boundary and its
// implementations: a deterministic offline stub and an OpenAI-compatible
// HTTP client usable against hosted or local inference servers. Grounded
// on the original prototype's providers package (base.py, stub.py,
// openai_compatible.py, openai.py, local.py, __init__.py).
package propose

import (
	"context"

	pcontext "github.com/patchprove/patchprove/context"
)

// Input is everything a proposer needs to suggest the next patch: the
// command that failed, its raw output, the extracted context slice, the
// attempts already tried this session, and the policy's write boundaries.
type Input struct {
	Command          string
	FailureOutput    string
	Context          pcontext.Slice
	PreviousAttempts []string
	WriteAllowlist   []string
	DenyWrite        []string
	EditableFiles    map[string]string
}

// Output is a proposer's answer: a unified diff (empty when it has no safe
// fix), the reasoning behind it, any risk callouts, an optional
// self-reported confidence, and the raw model response for audit.
type Output struct {
	Diff        string
	Rationale   string
	RiskNotes   string
	Confidence  *float64
	RawResponse string
}

// Proposer is the pluggable patch-suggestion boundary the session
// controller drives once per attempt.
type Proposer interface {
	Propose(ctx context.Context, input Input) (Output, error)
}
