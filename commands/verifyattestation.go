package commands

import (
	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/patchprove/patchprove/bundle"
)

var (
	verifyAttestationJSONFlag bool
	verifyAttestationCopyFlag bool
)

var verifyAttestationCmd = &cobra.Command{
	Use:   "verify-attestation <bundle>",
	Short: "Verify a proof bundle's attestation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bundleDir, err := resolveBundleDir(args[0])
		if err != nil {
			return fail(err)
		}

		result := bundle.VerifyAttestation(bundleDir)
		if m := sessionMetrics(); m != nil {
			m.RecordAttestation("verify", result.OK)
		}

		if verifyAttestationCopyFlag {
			if data, jsonErr := jsonCompact(result); jsonErr == nil {
				_ = clipboard.WriteAll(data)
			}
		}

		if verifyAttestationJSONFlag {
			if err := printJSON(result); err != nil {
				return fail(err)
			}
		} else {
			printKV("result", result)
		}

		ExitCode = exitCode(result.OK)
		return nil
	},
}

func init() {
	verifyAttestationCmd.Flags().BoolVar(&verifyAttestationJSONFlag, "json", false, "emit machine-readable JSON output")
	verifyAttestationCmd.Flags().BoolVar(&verifyAttestationCopyFlag, "copy", false, "copy the verification JSON to the clipboard")
}
