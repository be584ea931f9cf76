package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/singleflight"

	"github.com/patchprove/patchprove/policy"
	"github.com/patchprove/patchprove/watch"
)

// reloadGroup collapses concurrent policy reload/hash recomputations
// triggered for the same resolved policy path into a single call, the way a
// burst of overlapping watch callbacks and a concurrently issued doctor
// invocation would otherwise duplicate the same work.
var reloadGroup singleflight.Group

var (
	doctorPolicyFlag  string
	doctorCommandFlag string
	doctorJSONFlag    bool
	doctorWatchFlag   bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Validate policy and runtime settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		wd, err := os.Getwd()
		if err != nil {
			return fail(err)
		}

		if err := runDoctorOnce(wd, doctorJSONFlag); err != nil {
			return fail(err)
		}

		if !doctorWatchFlag {
			return nil
		}

		resolved := doctorPolicyFlag
		if resolved == "" {
			if _, path, err := policy.LoadFile("", doctorFallbackCommand(), wd); err == nil && path != "" {
				resolved = path
			}
		}
		if resolved == "" {
			return fail(fmt.Errorf("doctor --watch requires a policy file to watch"))
		}

		w, err := watch.New(watch.DefaultConfig(resolved))
		if err != nil {
			return fail(err)
		}
		fmt.Printf("watching %s for changes (ctrl-c to stop)\n", resolved)
		return w.Watch(context.Background(), func() error {
			_, err, _ := reloadGroup.Do(resolved, func() (any, error) {
				return nil, runDoctorOnce(wd, doctorJSONFlag)
			})
			return err
		})
	},
}

func init() {
	doctorCmd.Flags().StringVar(&doctorPolicyFlag, "policy", "", "path to policy file")
	doctorCmd.Flags().StringVar(&doctorCommandFlag, "command", "", "command to check against allowed_commands")
	doctorCmd.Flags().BoolVar(&doctorJSONFlag, "json", false, "emit machine-readable JSON output")
	doctorCmd.Flags().BoolVar(&doctorWatchFlag, "watch", false,
		"watch the policy file and re-validate on every save, recomputing policy_hash")
}

func doctorFallbackCommand() string {
	if doctorCommandFlag != "" {
		return doctorCommandFlag
	}
	return "true"
}

// runDoctorOnce resolves and validates the policy once, printing the full
// diagnostic payload _cmd_doctor reports in pp/cli.py: resolved policy
// path, allowed commands/argv, write allowlist/denylist, max attempts,
// sandbox backend/runtime/image, and attestation enabled/mode.
func runDoctorOnce(workspaceRoot string, asJSON bool) error {
	cfg, resolved, err := policy.LoadFile(doctorPolicyFlag, doctorFallbackCommand(), workspaceRoot)
	if err != nil {
		return err
	}

	var resolvedPath any
	if resolved != "" {
		resolvedPath = resolved
	}

	payload := map[string]any{
		"policy_path":         resolvedPath,
		"policy_hash":         cfg.Policy.Hash(),
		"allowed_commands":    cfg.Policy.AllowedCommands,
		"allowed_argv":        cfg.Policy.AllowedArgv,
		"write_allowlist":     cfg.Policy.WriteAllowlist,
		"deny_write":          cfg.Policy.DenyWrite,
		"max_attempts":        cfg.Policy.Limits.MaxAttempts,
		"sandbox_backend":     cfg.Policy.Sandbox.Backend,
		"container_runtime":   cfg.Policy.Sandbox.ContainerRuntime,
		"container_image":     cfg.Policy.Sandbox.ContainerImage,
		"attestation_enabled": cfg.Policy.Attestation.Enabled,
		"attestation_mode":    cfg.Policy.Attestation.Mode,
	}

	if asJSON {
		return printJSON(payload)
	}

	fmt.Println("pp doctor")
	fmt.Printf("policy_path=%v\n", orDefault(resolvedPath))
	fmt.Printf("policy_hash=%s\n", cfg.Policy.Hash())
	fmt.Printf("allowed_commands=%v\n", cfg.Policy.AllowedCommands)
	fmt.Printf("allowed_argv=%v\n", cfg.Policy.AllowedArgv)
	fmt.Printf("write_allowlist=%v\n", cfg.Policy.WriteAllowlist)
	fmt.Printf("deny_write=%v\n", cfg.Policy.DenyWrite)
	fmt.Printf("max_attempts=%d\n", cfg.Policy.Limits.MaxAttempts)
	fmt.Printf("sandbox_backend=%s\n", cfg.Policy.Sandbox.Backend)
	fmt.Printf("container_runtime=%s\n", cfg.Policy.Sandbox.ContainerRuntime)
	fmt.Printf("container_image=%s\n", cfg.Policy.Sandbox.ContainerImage)
	fmt.Printf("attestation_enabled=%v\n", cfg.Policy.Attestation.Enabled)
	fmt.Printf("attestation_mode=%s\n", cfg.Policy.Attestation.Mode)
	return nil
}

func orDefault(v any) any {
	if v == nil {
		return "(default)"
	}
	return v
}
