package commands

import (
	"time"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/patchprove/patchprove/bundle"
)

var (
	attestModeFlag   string
	attestKeyEnvFlag string
	attestJSONFlag   bool
	attestCopyFlag   bool
)

var attestCmd = &cobra.Command{
	Use:   "attest <bundle>",
	Short: "Create or overwrite a proof bundle's attestation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bundleDir, err := resolveBundleDir(args[0])
		if err != nil {
			return fail(err)
		}

		path, err := bundle.CreateAttestation(bundleDir, attestModeFlag, attestKeyEnvFlag, nowUnix())
		if m := sessionMetrics(); m != nil {
			m.RecordAttestation("create", err == nil)
		}
		if err != nil {
			return fail(err)
		}

		if attestCopyFlag {
			_ = clipboard.WriteAll(path)
		}

		payload := map[string]any{"attestation": path}
		if err := printPayload(payload, attestJSONFlag); err != nil {
			return fail(err)
		}
		ExitCode = 0
		return nil
	},
}

func init() {
	attestCmd.Flags().StringVar(&attestModeFlag, "mode", bundle.ModeNone, "attestation signing mode (none|hmac-sha256)")
	attestCmd.Flags().StringVar(&attestKeyEnvFlag, "key-env", "PP_ATTEST_HMAC_KEY", "environment variable name containing the hmac-sha256 attestation key")
	attestCmd.Flags().BoolVar(&attestJSONFlag, "json", false, "emit machine-readable JSON output")
	attestCmd.Flags().BoolVar(&attestCopyFlag, "copy", false, "copy the resulting attestation path to the clipboard")
}

// nowUnix returns the current Unix timestamp as a float64, the shape
// bundle.CreateAttestation takes its "now" parameter in.
func nowUnix() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
