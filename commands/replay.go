package commands

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/patchprove/patchprove/session"
)

var (
	replayCwdFlag          string
	replayVerifyAttestFlag bool
	replayJSONFlag         bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <bundle>",
	Short: "Replay a proof bundle's verification command against a fresh copy of its workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bundleDir, err := filepath.Abs(args[0])
		if err != nil {
			return fail(err)
		}

		var cwdOverride string
		if replayCwdFlag != "" {
			cwdOverride, err = filepath.Abs(replayCwdFlag)
			if err != nil {
				return fail(err)
			}
		}

		wd, err := os.Getwd()
		if err != nil {
			return fail(err)
		}

		ctrl := session.New(wd)
		result, err := ctrl.Replay(session.ReplayOptions{
			BundleDir:               bundleDir,
			CwdOverride:             cwdOverride,
			VerifyBundleAttestation: replayVerifyAttestFlag,
		})
		if err != nil {
			return fail(err)
		}

		if err := printReplayResult(result, replayJSONFlag, replayVerifyAttestFlag); err != nil {
			return fail(err)
		}
		ExitCode = exitCode(result.Success)
		return nil
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayCwdFlag, "cwd", "", "override replay working directory")
	replayCmd.Flags().BoolVar(&replayVerifyAttestFlag, "verify-attestation", false, "verify bundle attestation while replaying")
	replayCmd.Flags().BoolVar(&replayJSONFlag, "json", false, "emit machine-readable JSON output")
}

// printReplayResult mirrors _cmd_replay's dual JSON/plain-text rendering
// in pp/cli.py.
func printReplayResult(result session.ReplayResult, asJSON bool, withAttestation bool) error {
	if asJSON {
		return printJSON(result)
	}

	printKV("success", result.Success)
	printKV("exit_code", result.ExitCode)
	printKVf("duration_sec", "%.3f", result.DurationSec)
	printKV("sandbox_backend", result.SandboxBackend)
	if len(result.TargetResults) > 0 {
		printKV("target_results", result.TargetResults)
	}
	printLine("--- stdout ---")
	printLine(result.Stdout)
	printLine("--- stderr ---")
	printLine(result.Stderr)
	if withAttestation {
		printLine("--- attestation ---")
		printKV("attestation", result.Attestation)
	}
	return nil
}
