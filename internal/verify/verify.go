// Package verify checks downloaded assembly files against their MD5
// checksum manifest and quarantines any file that fails.
//
// Verification is content-addressed: the bytes persisted on disk are
// hashed and compared case-sensitively against the manifest entry for
// the file's name. A file that fails is removed immediately so corrupt
// or unverifiable data never survives a run, and its name is recorded
// in a per-assembly sidecar file.
package verify

import (
	"crypto/md5" //nolint:gosec // NCBI manifests are MD5; integrity only, not authenticity
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FailedSidecarFilename is the per-assembly file listing every asset
// that failed verification, one filename per line.
const FailedSidecarFilename = "md5checksums_failed.txt"

// Verdict is the per-file outcome of integrity verification.
type Verdict int

const (
	// Verified means the computed checksum matched the manifest.
	Verified Verdict = iota
	// ChecksumMismatch means the manifest entry exists but differs.
	ChecksumMismatch
	// ManifestMissing means the manifest has no entry for the file.
	ManifestMissing
)

// String returns the string representation of the verdict.
func (v Verdict) String() string {
	switch v {
	case Verified:
		return "verified"
	case ChecksumMismatch:
		return "checksum mismatch"
	case ManifestMissing:
		return "manifest missing"
	default:
		return "unknown"
	}
}

// Verifier checks persisted files against one assembly's manifest.
type Verifier struct {
	checksums map[string]string
}

// NewVerifier creates a verifier for the given filename-to-checksum
// mapping.
func NewVerifier(checksums map[string]string) *Verifier {
	return &Verifier{checksums: checksums}
}

// VerifyFile hashes the file at path and compares it to the manifest
// entry for filename. On ChecksumMismatch or ManifestMissing the file
// is deleted from disk. The returned error covers I/O failures only;
// a non-Verified verdict with a nil error is a normal outcome.
func (v *Verifier) VerifyFile(path, filename string) (Verdict, error) {
	expected, ok := v.checksums[filename]
	if !ok {
		if err := os.Remove(path); err != nil {
			return ManifestMissing, fmt.Errorf("quarantine %s: %w", filename, err)
		}
		return ManifestMissing, nil
	}

	actual, err := MD5File(path)
	if err != nil {
		return ChecksumMismatch, fmt.Errorf("hash %s: %w", filename, err)
	}

	if actual != expected {
		if err := os.Remove(path); err != nil {
			return ChecksumMismatch, fmt.Errorf("quarantine %s: %w", filename, err)
		}
		return ChecksumMismatch, nil
	}

	return Verified, nil
}

// MD5File computes the hex-encoded MD5 digest of the file at path.
func MD5File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hasher := md5.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// WriteFailedSidecar writes the failure list for one assembly into its
// directory, one filename per line. An empty list still produces the
// sidecar file so a completed record is distinguishable from one that
// was never verified.
func WriteFailedSidecar(dir string, failed []string) error {
	var b strings.Builder
	for _, name := range failed {
		b.WriteString(name)
		b.WriteByte('\n')
	}
	path := filepath.Join(dir, FailedSidecarFilename)
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("write failure sidecar: %w", err)
	}
	return nil
}
