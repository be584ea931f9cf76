package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/patchprove/patchprove/session"
)

var (
	provePolicyFlag            string
	proveProviderFlag          string
	proveKeepSandboxFlag       bool
	proveAttestFlag            bool
	proveAttestationModeFlag   string
	proveAttestationKeyEnvFlag string
	proveJSONFlag              bool
)

var proveCmd = &cobra.Command{
	Use:   "prove",
	Short: "Run the patch-and-prove loop against every proof_targets entry in the policy",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		wd, err := os.Getwd()
		if err != nil {
			return fail(err)
		}

		ctrl := session.New(wd).WithMetrics(sessionMetrics())
		summary, err := ctrl.Prove(session.ProveOptions{
			PolicyPath:        provePolicyFlag,
			ProviderName:      proveProviderFlag,
			KeepSandbox:       proveKeepSandboxFlag,
			Attest:            proveAttestFlag,
			AttestationMode:   proveAttestationModeFlag,
			AttestationKeyEnv: proveAttestationKeyEnvFlag,
		})
		if err != nil {
			return fail(err)
		}

		if err := printPayload(summaryPayload(summary), proveJSONFlag); err != nil {
			return fail(err)
		}
		ExitCode = exitCode(summary.Success)
		return nil
	},
}

func init() {
	proveCmd.Flags().StringVar(&provePolicyFlag, "policy", "", "path to pp.yaml/pp.json")
	proveCmd.Flags().StringVar(&proveProviderFlag, "provider", "", "provider name: stub|openai|local")
	proveCmd.Flags().BoolVar(&proveKeepSandboxFlag, "keep-sandbox", false, "do not delete sandbox on exit")
	proveCmd.Flags().BoolVar(&proveAttestFlag, "attest", false, "emit attestation.json for the proof bundle")
	proveCmd.Flags().StringVar(&proveAttestationModeFlag, "attestation-mode", "", "attestation signing mode override (none|hmac-sha256)")
	proveCmd.Flags().StringVar(&proveAttestationKeyEnvFlag, "attestation-key-env", "", "environment variable name containing the hmac-sha256 attestation key")
	proveCmd.Flags().BoolVar(&proveJSONFlag, "json", false, "emit machine-readable JSON output")
}
