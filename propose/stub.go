package propose

import "context"

// StubProposer is the deterministic offline fallback: it proposes nothing,
// keeping the engine runnable without any model credentials configured.
// Grounded on stub.py's StubPatchProposer.
type StubProposer struct{}

func (StubProposer) Propose(_ context.Context, _ Input) (Output, error) {
	return Output{
		Diff:        "",
		Rationale:   "Stub provider returns no patch.",
		RiskNotes:   "No changes proposed.",
		Confidence:  floatPtr(0.0),
		RawResponse: "stub",
	}, nil
}

func floatPtr(f float64) *float64 { return &f }
