package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/patchprove/patchprove/session"
)

var (
	runPolicyFlag            string
	runProviderFlag          string
	runKeepSandboxFlag       bool
	runAttestFlag            bool
	runAttestationModeFlag   string
	runAttestationKeyEnvFlag string
	runJSONFlag              bool
)

var runCmd = &cobra.Command{
	Use:   "run <command>",
	Short: "Run the patch-and-prove loop against a failing command",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wd, err := os.Getwd()
		if err != nil {
			return fail(err)
		}

		ctrl := session.New(wd).WithMetrics(sessionMetrics())
		summary, err := ctrl.Run(session.RunOptions{
			Command:           args[0],
			PolicyPath:        runPolicyFlag,
			ProviderName:      runProviderFlag,
			KeepSandbox:       runKeepSandboxFlag,
			Attest:            runAttestFlag,
			AttestationMode:   runAttestationModeFlag,
			AttestationKeyEnv: runAttestationKeyEnvFlag,
		})
		if err != nil {
			return fail(err)
		}

		if err := printPayload(summaryPayload(summary), runJSONFlag); err != nil {
			return fail(err)
		}
		ExitCode = exitCode(summary.Success)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runPolicyFlag, "policy", "", "path to pp.yaml/pp.json")
	runCmd.Flags().StringVar(&runProviderFlag, "provider", "", "provider name: stub|openai|local")
	runCmd.Flags().BoolVar(&runKeepSandboxFlag, "keep-sandbox", false, "do not delete sandbox on exit")
	runCmd.Flags().BoolVar(&runAttestFlag, "attest", false, "emit attestation.json for the proof bundle")
	runCmd.Flags().StringVar(&runAttestationModeFlag, "attestation-mode", "", "attestation signing mode override (none|hmac-sha256)")
	runCmd.Flags().StringVar(&runAttestationKeyEnvFlag, "attestation-key-env", "", "environment variable name containing the hmac-sha256 attestation key")
	runCmd.Flags().BoolVar(&runJSONFlag, "json", false, "emit machine-readable JSON output")
}

// summaryPayload renders a session.Summary the way _summary_payload does
// in pp/cli.py.
func summaryPayload(summary session.Summary) map[string]any {
	payload := map[string]any{
		"success":         summary.Success,
		"attempts_used":   summary.AttemptsUsed,
		"final_exit_code": summary.FinalResult.ExitCode,
		"final_patch":     summary.FinalPatchPath,
		"proof_bundle":    summary.ProofBundleDir,
	}
	if summary.AttestationPath != "" {
		payload["attestation"] = summary.AttestationPath
	}
	return payload
}
