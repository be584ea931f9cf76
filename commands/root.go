// Package commands wires the patch-and-prove CLI's cobra subcommands:
// run, prove, replay, doctor, attest, and verify-attestation. Grounded on
// the teacher's main.go/commands package shape (one *cobra.Command per
// subcommand, package-level flag variables bound in init) and on
// pp/cli.py's build_parser for the exact subcommand names, arguments, and
// flags.
package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/patchprove/patchprove/log"
	"github.com/patchprove/patchprove/metrics"
)

// printJSON marshals payload as sorted-key indented JSON, matching
// json.dumps(..., indent=2, sort_keys=True) in pp/cli.py. encoding/json
// already sorts map[string]any keys alphabetically.
func printJSON(payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// jsonCompact marshals payload as single-line JSON, for clipboard copies
// where indentation only wastes space.
func jsonCompact(payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

var (
	metricsAddrFlag string
	activeMetrics   *metrics.Metrics
)

// ExitCode is set by a subcommand's RunE to the process exit code it wants
// (0 success, 2 proof failure), mirroring pp/cli.py's main() returning
// args.func(args) as the process exit status. main.go reads this after
// Execute returns.
var ExitCode int

// Execute runs the CLI and returns the process exit code: 1 if cobra
// itself reported an error (bad flags, unknown subcommand), otherwise
// whatever the invoked subcommand set via ExitCode.
func Execute() int {
	if err := RootCmd.Execute(); err != nil {
		return 1
	}
	return ExitCode
}

// RootCmd is the patch-and-prove CLI's entry point, assembled by main.go.
var RootCmd = &cobra.Command{
	Use:   "pp",
	Short: "pp - an automated patch-and-prove engine",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log.Initialize("")
		if metricsAddrFlag != "" {
			activeMetrics = metrics.New()
			go func() {
				if err := metrics.Serve(metricsAddrFlag); err != nil {
					log.ErrorLog.Printf("metrics listener stopped: %v", err)
				}
			}()
		}
		return nil
	},
}

// sessionMetrics returns the process-wide metrics sink, or nil when
// --metrics-addr was not set. session.Controller treats a nil sink as a
// no-op, so callers never need to branch on this themselves.
func sessionMetrics() *metrics.Metrics {
	return activeMetrics
}

func init() {
	RootCmd.PersistentFlags().StringVar(&metricsAddrFlag, "metrics-addr", "",
		"if set, serve Prometheus metrics on this address (e.g. 127.0.0.1:9090)")

	RootCmd.AddCommand(runCmd)
	RootCmd.AddCommand(proveCmd)
	RootCmd.AddCommand(replayCmd)
	RootCmd.AddCommand(doctorCmd)
	RootCmd.AddCommand(attestCmd)
	RootCmd.AddCommand(verifyAttestationCmd)
}

// printPayload renders a result map either as indented JSON or as
// key=value lines, mirroring _print_payload in pp/cli.py.
func printPayload(payload map[string]any, asJSON bool) error {
	if asJSON {
		return printJSON(payload)
	}
	for _, k := range payloadKeys(payload) {
		fmt.Printf("%s=%v\n", k, payload[k])
	}
	return nil
}

// payloadKeys returns a stable key order so non-JSON output doesn't jitter
// between runs the way ranging over a map directly would.
func payloadKeys(payload map[string]any) []string {
	order := []string{
		"success", "attempts_used", "final_exit_code", "final_patch",
		"proof_bundle", "attestation",
	}
	seen := make(map[string]bool, len(order))
	keys := make([]string, 0, len(payload))
	for _, k := range order {
		if _, ok := payload[k]; ok {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	for k := range payload {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	return keys
}

func exitCode(success bool) int {
	if success {
		return 0
	}
	return 2
}

func fail(err error) error {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	return err
}

func printKV(key string, value any) {
	fmt.Printf("%s=%v\n", key, value)
}

func printKVf(key, format string, value any) {
	fmt.Printf("%s="+format+"\n", key, value)
}

func printLine(s string) {
	fmt.Println(s)
}

// resolveBundleDir resolves a bundle argument to an absolute path, the way
// every attest/verify/replay subcommand in pp/cli.py does via
// Path(args.bundle).resolve().
func resolveBundleDir(arg string) (string, error) {
	return filepath.Abs(arg)
}
