// Package policy loads, defaults, and hashes the gating policy that every
// other subsystem consults before touching the sandbox: which commands may
// run, which paths may be written, what resource limits apply, which
// sandbox backend and attestation mode are in effect.
//
// The load/default-fill/save shape follows config.LoadConfig/DefaultConfig
// in the teacher; the field set and default values follow the Policy/
// Limits/SandboxPolicy/AttestationPolicy dataclasses in the original
// prototype's config.py.
package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/patchprove/patchprove/canon"
)

// Limits bounds the size and duration of a session's work.
type Limits struct {
	MaxAttempts          int `json:"max_attempts" yaml:"max_attempts"`
	MaxFilesChanged      int `json:"max_files_changed" yaml:"max_files_changed"`
	MaxPatchBytes        int `json:"max_patch_bytes" yaml:"max_patch_bytes"`
	PerCommandTimeoutSec int `json:"per_command_timeout_sec" yaml:"per_command_timeout_sec"`
}

// SandboxPolicy selects and configures the workspace isolation backend.
type SandboxPolicy struct {
	Backend          string `json:"backend" yaml:"backend"`
	ContainerRuntime string `json:"container_runtime" yaml:"container_runtime"`
	ContainerImage   string `json:"container_image" yaml:"container_image"`
	ContainerWorkdir string `json:"container_workdir" yaml:"container_workdir"`
	CPULimit         string `json:"cpu_limit,omitempty" yaml:"cpu_limit,omitempty"`
	MemoryLimit      string `json:"memory_limit,omitempty" yaml:"memory_limit,omitempty"`
}

// AttestationPolicy configures whether and how a proof bundle is signed.
type AttestationPolicy struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Mode    string `json:"mode" yaml:"mode"`
	KeyEnv  string `json:"key_env" yaml:"key_env"`
}

// Network is the allow/deny toggle for container network access.
type Network string

const (
	NetworkDeny  Network = "deny"
	NetworkAllow Network = "allow"
)

// Policy is the immutable-once-loaded gate every command and file write
// passes through.
type Policy struct {
	Network          Network            `json:"network" yaml:"network"`
	AllowedCommands  []string           `json:"allowed_commands" yaml:"allowed_commands"`
	AllowedArgv      [][]string         `json:"allowed_argv,omitempty" yaml:"allowed_argv,omitempty"`
	WriteAllowlist   []string           `json:"write_allowlist" yaml:"write_allowlist"`
	DenyWrite        []string           `json:"deny_write" yaml:"deny_write"`
	Limits           Limits             `json:"limits" yaml:"limits"`
	Minimize         bool               `json:"minimize" yaml:"minimize"`
	Sandbox          SandboxPolicy      `json:"sandbox" yaml:"sandbox"`
	Attestation      AttestationPolicy  `json:"attestation" yaml:"attestation"`
}

// ProofTarget is one named verification command. A session's proof targets
// form an ordered suite; success requires all of them to pass.
type ProofTarget struct {
	Name string `json:"name" yaml:"name"`
	Cmd  string `json:"cmd" yaml:"cmd"`
}

// Config is the top-level shape of a policy file: the proof targets plus
// the policy gating them.
type Config struct {
	ProofTargets []ProofTarget `json:"proof_targets" yaml:"proof_targets"`
	Policy       Policy        `json:"policy" yaml:"policy"`
}

func defaultPolicy() Policy {
	return Policy{
		Network:        NetworkDeny,
		WriteAllowlist: []string{"**"},
		Limits: Limits{
			MaxAttempts:          3,
			MaxFilesChanged:      8,
			MaxPatchBytes:        200_000,
			PerCommandTimeoutSec: 600,
		},
		Minimize: true,
		Sandbox: SandboxPolicy{
			Backend:          "auto",
			ContainerRuntime: "docker",
			ContainerImage:   "python:3.11-slim",
			ContainerWorkdir: "/workspace",
		},
		Attestation: AttestationPolicy{
			Enabled: false,
			Mode:    "none",
			KeyEnv:  "PP_ATTEST_HMAC_KEY",
		},
	}
}

// candidateNames are the default policy file names searched for under the
// workspace root when --policy is not given.
var candidateNames = []string{"pp.yaml", "pp.yml", "pp.json"}

// LoadFile resolves a policy file (explicit path, or the first candidate
// found under workspaceRoot), parses it as YAML or JSON, and default-fills
// unset fields. fallbackCmd is the command passed to `run` on the CLI; it
// seeds proof_targets when the file declares none, and is appended to
// allowed_commands, mirroring _build_config's fallback_cmd handling.
//
// It returns the resolved Config, the path actually used (nil if no file
// was found and none was given), and an error.
func LoadFile(policyPath string, fallbackCmd string, workspaceRoot string) (*Config, string, error) {
	resolved := policyPath
	if resolved == "" {
		for _, name := range candidateNames {
			candidate := filepath.Join(workspaceRoot, name)
			if _, err := os.Stat(candidate); err == nil {
				resolved = candidate
				break
			}
		}
	}

	var raw map[string]any
	if resolved != "" {
		data, err := os.ReadFile(resolved)
		if err != nil {
			return nil, "", fmt.Errorf("policy: read %s: %w", resolved, err)
		}
		raw = map[string]any{}
		if strings.EqualFold(filepath.Ext(resolved), ".json") {
			if err := json.Unmarshal(data, &raw); err != nil {
				return nil, "", fmt.Errorf("policy: parse json %s: %w", resolved, err)
			}
		} else {
			if err := yaml.Unmarshal(data, &raw); err != nil {
				return nil, "", fmt.Errorf("policy: parse yaml %s: %w", resolved, err)
			}
		}
	}

	cfg, err := build(raw, fallbackCmd)
	if err != nil {
		return nil, "", err
	}
	return cfg, resolved, nil
}

// FromMapping builds a fully defaulted Config directly from an
// already-parsed mapping (as recorded verbatim in a proof bundle's
// policy.json), bypassing file resolution entirely. Grounded on
// load_config_from_mapping, used by replay to reconstruct the policy a
// bundle was produced under.
func FromMapping(raw map[string]any, fallbackCmd string) (*Config, error) {
	return build(raw, fallbackCmd)
}

// build turns a raw parsed mapping into a fully defaulted Config, following
// _build_config's shape: re-marshal the "policy" sub-mapping onto the
// default policy via mergo so every unset leaf field keeps its default,
// then resolve proof_targets with the same fallback rules as the source.
func build(raw map[string]any, fallbackCmd string) (*Config, error) {
	def := defaultPolicy()

	if policyRaw, ok := raw["policy"]; ok && policyRaw != nil {
		// Round-trip the sub-mapping through JSON into a Policy value so
		// mergo sees a typed struct on both sides rather than merging
		// raw maps field by field.
		data, err := json.Marshal(policyRaw)
		if err != nil {
			return nil, fmt.Errorf("policy: remarshal policy block: %w", err)
		}
		var override Policy
		if err := json.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("policy: decode policy block: %w", err)
		}
		if err := mergo.Merge(&def, override, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("policy: merge defaults: %w", err)
		}
	}
	if len(def.WriteAllowlist) == 0 {
		def.WriteAllowlist = []string{"**"}
	}

	var targets []ProofTarget
	if rawTargets, ok := raw["proof_targets"].([]any); ok {
		for idx, item := range rawTargets {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			cmd := strings.TrimSpace(fmt.Sprint(m["cmd"]))
			if cmd == "" || cmd == "<nil>" {
				continue
			}
			name, _ := m["name"].(string)
			if name == "" {
				name = fmt.Sprintf("target-%d", idx+1)
			}
			targets = append(targets, ProofTarget{Name: name, Cmd: cmd})
		}
	}
	if len(targets) == 0 {
		targets = []ProofTarget{{Name: "default", Cmd: fallbackCmd}}
	}

	if len(def.AllowedCommands) == 0 {
		for _, t := range targets {
			def.AllowedCommands = append(def.AllowedCommands, t.Cmd)
		}
	}
	if fallbackCmd != "" && !contains(def.AllowedCommands, fallbackCmd) {
		def.AllowedCommands = append(def.AllowedCommands, fallbackCmd)
	}

	return &Config{ProofTargets: targets, Policy: def}, nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// SaveFile serialises cfg back to path as YAML (or JSON, by extension),
// round-tripping exactly the fields LoadFile understands -- grounding the
// `load_config(serialise(config)) = config` testable property.
func SaveFile(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("policy: create policy dir: %w", err)
	}

	var data []byte
	var err error
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("policy: marshal: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Hash returns the SHA-256 hex digest of the policy's canonical JSON
// encoding. It must be stable across sessions given identical inputs, and
// invariant under reordering of equivalent JSON keys.
func (p Policy) Hash() string {
	enc, err := canon.Marshal(p)
	if err != nil {
		// Policy is always json.Marshal-able; a failure here means a
		// programming error, not bad input.
		panic(fmt.Sprintf("policy: canonical marshal failed: %v", err))
	}
	sum := sha256.Sum256(enc)
	return hex.EncodeToString(sum[:])
}

// IsCommandAllowed reports whether cmd is permitted to run, either by exact
// string match against AllowedCommands, or, when AllowedArgv is configured,
// by matching a shell-split tokenisation of cmd against one of those
// vectors.
func (p Policy) IsCommandAllowed(cmd string) (bool, []string) {
	normalized := strings.TrimSpace(cmd)
	for _, c := range p.AllowedCommands {
		if strings.TrimSpace(c) == normalized {
			return true, nil
		}
	}
	if len(p.AllowedArgv) > 0 {
		tokens := shellSplit(normalized)
		for _, argv := range p.AllowedArgv {
			if equalSlices(tokens, argv) {
				return true, argv
			}
		}
	}
	return false, nil
}

func equalSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// shellSplit performs simple whitespace/quote tokenisation, sufficient for
// matching against a configured allowed_argv vector; it does not implement
// full shell grammar (no globbing, no variable expansion).
func shellSplit(s string) []string {
	var tokens []string
	var cur strings.Builder
	var quote rune
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
		case r == ' ' || r == '\t':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}

// IsPathAllowed reports whether relPath may be written: it must match at
// least one WriteAllowlist glob and no DenyWrite glob, after normalising
// backslashes and stripping leading slashes.
func (p Policy) IsPathAllowed(relPath string) bool {
	normalized := strings.TrimPrefix(strings.ReplaceAll(relPath, "\\", "/"), "/")

	for _, deny := range p.DenyWrite {
		if globMatch(deny, normalized) {
			return false
		}
	}
	for _, allow := range p.WriteAllowlist {
		if globMatch(allow, normalized) {
			return true
		}
	}
	return false
}

// globMatch supports "**" (match across path separators) in addition to
// filepath.Match's single-segment "*" and "?", since policy globs are
// specified the way .gitignore-style tools specify them.
func globMatch(pattern, name string) bool {
	if pattern == "**" {
		return true
	}
	if strings.Contains(pattern, "**") {
		parts := strings.SplitN(pattern, "**", 2)
		prefix, suffix := parts[0], strings.TrimPrefix(parts[1], "/")
		if !strings.HasPrefix(name, prefix) {
			return false
		}
		rest := strings.TrimPrefix(name, prefix)
		if suffix == "" {
			return true
		}
		ok, _ := filepath.Match(suffix, filepath.Base(rest))
		if ok {
			return true
		}
		return strings.HasSuffix(rest, suffix)
	}
	ok, err := filepath.Match(pattern, name)
	if err == nil && ok {
		return true
	}
	// Allow a single-segment glob to match a same-named file at any depth
	// when the pattern itself has no slash, mirroring fnmatch semantics
	// used by the prototype's _is_path_allowed for bare patterns like
	// "*.py".
	if !strings.Contains(pattern, "/") {
		ok, _ := filepath.Match(pattern, filepath.Base(name))
		return ok
	}
	return false
}
