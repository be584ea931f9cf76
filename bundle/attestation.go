package bundle

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/patchprove/patchprove/canon"
)

const attestationFilename = "attestation.json"

// FileDigest is one file's content address within an attestation
// statement.
type FileDigest struct {
	SHA256 string `json:"sha256"`
	Bytes  int    `json:"bytes"`
}

// Statement is the content-addressed description of a bundle's files: a
// digest per file plus the combined manifest hash over all of them.
type Statement struct {
	Version              string                `json:"version"`
	BundleManifestSHA256 string                `json:"bundle_manifest_sha256"`
	Files                map[string]FileDigest `json:"files"`
}

// Signing describes how (or whether) a Statement was signed.
type Signing struct {
	Mode      string `json:"mode"`
	KeyEnv    string `json:"key_env"`
	Signature string `json:"signature,omitempty"`
	KeyID     string `json:"key_id,omitempty"`
}

// Attestation is the full signed artifact written to attestation.json.
type Attestation struct {
	Version       string    `json:"version"`
	CreatedAtUnix float64   `json:"created_at_unix"`
	Statement     Statement `json:"statement"`
	Signing       Signing   `json:"signing"`
}

const (
	ModeNone       = "none"
	ModeHMACSHA256 = "hmac-sha256"
)

func statementForBundle(bundleDir string) (Statement, error) {
	files := map[string]FileDigest{}

	var relPaths []string
	err := filepath.Walk(bundleDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(bundleDir, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if rel == attestationFilename {
			return nil
		}
		relPaths = append(relPaths, rel)
		return nil
	})
	if err != nil {
		return Statement{}, err
	}
	sort.Strings(relPaths)

	for _, rel := range relPaths {
		raw, err := os.ReadFile(filepath.Join(bundleDir, filepath.FromSlash(rel)))
		if err != nil {
			return Statement{}, err
		}
		sum := sha256.Sum256(raw)
		files[rel] = FileDigest{SHA256: hex.EncodeToString(sum[:]), Bytes: len(raw)}
	}

	manifestBytes, err := canon.Marshal(map[string]any{"files": files})
	if err != nil {
		return Statement{}, err
	}
	manifestHash := sha256.Sum256(manifestBytes)

	return Statement{
		Version:              "pp-attestation-statement/v1",
		BundleManifestSHA256: hex.EncodeToString(manifestHash[:]),
		Files:                files,
	}, nil
}

// CreateAttestation builds a statement over every file in bundleDir
// (except attestation.json itself), optionally signs it with an
// HMAC-SHA256 key read from keyEnv, and writes the result to
// <bundleDir>/attestation.json. now is injected by the caller (unix
// seconds) so this package never calls time.Now() itself. Grounded on
// attest.py's create_attestation.
func CreateAttestation(bundleDir string, mode string, keyEnv string, now float64) (string, error) {
	modeNorm := strings.ToLower(strings.TrimSpace(mode))
	if modeNorm != ModeNone && modeNorm != ModeHMACSHA256 {
		return "", fmt.Errorf("unsupported attestation mode: %s", mode)
	}

	statement, err := statementForBundle(bundleDir)
	if err != nil {
		return "", err
	}

	signing := Signing{Mode: modeNorm, KeyEnv: keyEnv}
	if modeNorm == ModeHMACSHA256 {
		key := os.Getenv(keyEnv)
		if key == "" {
			return "", fmt.Errorf("attestation mode hmac-sha256 requires environment variable %s", keyEnv)
		}
		statementBytes, err := canon.Marshal(statement)
		if err != nil {
			return "", err
		}
		mac := hmac.New(sha256.New, []byte(key))
		mac.Write(statementBytes)
		signing.Signature = hex.EncodeToString(mac.Sum(nil))

		keyIDSum := sha256.Sum256([]byte(key))
		signing.KeyID = hex.EncodeToString(keyIDSum[:])[:16]
	}

	attestation := Attestation{
		Version:       "pp-attestation/v1",
		CreatedAtUnix: now,
		Statement:     statement,
		Signing:       signing,
	}

	target := filepath.Join(bundleDir, attestationFilename)
	data, err := json.MarshalIndent(attestation, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", err
	}
	return target, nil
}

// VerifyResult is the outcome of re-checking a bundle against its
// attestation.json.
type VerifyResult struct {
	OK             bool   `json:"ok"`
	ContentValid   bool   `json:"content_valid"`
	SignatureValid bool   `json:"signature_valid"`
	SignatureError string `json:"signature_error,omitempty"`
	Mode           string `json:"mode"`
	Path           string `json:"path"`
	Error          string `json:"error,omitempty"`
}

// VerifyAttestation recomputes the bundle's current statement and compares
// it against the one recorded in attestation.json, then re-checks the
// signature (constant-time for hmac-sha256) if the statement still
// matches. Grounded on attest.py's verify_attestation.
func VerifyAttestation(bundleDir string) VerifyResult {
	path := filepath.Join(bundleDir, attestationFilename)
	raw, err := os.ReadFile(path)
	if err != nil {
		return VerifyResult{OK: false, Error: fmt.Sprintf("missing %s", path), SignatureValid: false, ContentValid: false, Path: path}
	}

	var saved Attestation
	if err := json.Unmarshal(raw, &saved); err != nil {
		return VerifyResult{OK: false, Error: fmt.Sprintf("malformed attestation: %v", err), Path: path}
	}

	current, err := statementForBundle(bundleDir)
	if err != nil {
		return VerifyResult{OK: false, Error: err.Error(), Path: path}
	}

	contentValid := statementsEqual(saved.Statement, current)
	mode := strings.ToLower(strings.TrimSpace(saved.Signing.Mode))
	if mode == "" {
		mode = ModeNone
	}

	var signatureValid bool
	var signatureError string

	switch mode {
	case ModeNone:
		signatureValid = true
	case ModeHMACSHA256:
		keyEnv := saved.Signing.KeyEnv
		if keyEnv == "" {
			keyEnv = "PP_ATTEST_HMAC_KEY"
		}
		key := os.Getenv(keyEnv)
		if key == "" {
			signatureError = fmt.Sprintf("missing environment variable for verification: %s", keyEnv)
		} else {
			statementBytes, marshalErr := canon.Marshal(saved.Statement)
			if marshalErr != nil {
				signatureError = marshalErr.Error()
				break
			}
			mac := hmac.New(sha256.New, []byte(key))
			mac.Write(statementBytes)
			expected := hex.EncodeToString(mac.Sum(nil))
			given := saved.Signing.Signature
			signatureValid = hmac.Equal([]byte(expected), []byte(given))
			if !signatureValid {
				signatureError = "signature mismatch"
			}
		}
	default:
		signatureError = fmt.Sprintf("unsupported signing mode: %s", mode)
	}

	return VerifyResult{
		OK:             contentValid && signatureValid,
		ContentValid:   contentValid,
		SignatureValid: signatureValid,
		SignatureError: signatureError,
		Mode:           mode,
		Path:           path,
	}
}

func statementsEqual(a, b Statement) bool {
	aBytes, err1 := canon.Marshal(a)
	bBytes, err2 := canon.Marshal(b)
	if err1 != nil || err2 != nil {
		return false
	}
	return string(aBytes) == string(bBytes)
}
