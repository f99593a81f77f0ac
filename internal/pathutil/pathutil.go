// Package pathutil resolves and compares data-directory paths: symlink
// canonicalization, legacy vs. current jsonl file-name discovery, and
// the heuristics used to recover a human-readable prefix from a
// content-addressed issue id.
package pathutil

import (
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
)

// CanonicalizePath resolves input to an absolute, symlink-resolved path.
// An empty input returns empty. If symlink resolution fails (path does
// not exist yet), the absolute path is returned unresolved.
func CanonicalizePath(input string) string {
	if input == "" {
		return ""
	}
	abs, err := filepath.Abs(input)
	if err != nil {
		return input
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return abs
	}
	return resolved
}

// CanonicalizeIfRelative canonicalizes input only when it is not already
// absolute, and never expands a leading "~".
func CanonicalizeIfRelative(input string) string {
	if input == "" || filepath.IsAbs(input) {
		return input
	}
	return CanonicalizePath(input)
}

// NormalizePathForComparison prepares a path for equality comparison:
// absolute, symlink-resolved, and case-folded on platforms with
// case-insensitive file systems.
func NormalizePathForComparison(path string) string {
	if path == "" {
		return ""
	}
	p := CanonicalizePath(path)
	if caseInsensitiveFS() {
		p = strings.ToLower(p)
	}
	return p
}

// PathsEqual reports whether a and b refer to the same file after
// normalization. Two empty paths are considered equal.
func PathsEqual(a, b string) bool {
	if a == "" && b == "" {
		return true
	}
	return NormalizePathForComparison(a) == NormalizePathForComparison(b)
}

func caseInsensitiveFS() bool {
	return runtime.GOOS == "darwin" || runtime.GOOS == "windows"
}

// ResolveForWrite resolves path through any symlinks if it already
// exists, so writes land on the real file rather than creating a new
// one over a dangling or relocated symlink. Non-existent paths are
// returned unchanged.
func ResolveForWrite(path string) (string, error) {
	if _, err := os.Lstat(path); err != nil {
		return path, nil
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return path, err
	}
	return resolved, nil
}

var mergeArtifactSuffixes = []string{".base.jsonl", ".left.jsonl", ".right.jsonl"}

// FindJSONLInDir returns the snapshot file name that should be used in
// dir: the current "issues.jsonl" if present, the legacy "beads.jsonl"
// if that's the only one present, otherwise "issues.jsonl" as the
// default for a fresh directory. Deletion logs, interaction logs, and
// merge-artifact files are never returned.
func FindJSONLInDir(dir string) string {
	const current = "issues.jsonl"
	const legacy = "beads.jsonl"

	if fileExists(filepath.Join(dir, current)) {
		return current
	}
	if fileExists(filepath.Join(dir, legacy)) && !isMergeArtifact(legacy) {
		return legacy
	}
	return current
}

// FindMoleculesJSONLInDir returns the path to molecules.jsonl within
// dir, or "" if it does not exist.
func FindMoleculesJSONLInDir(dir string) string {
	p := filepath.Join(dir, "molecules.jsonl")
	if fileExists(p) {
		return p
	}
	return ""
}

func isMergeArtifact(name string) bool {
	for _, suffix := range mergeArtifactSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

var hashSuffixDigit = regexp.MustCompile(`[0-9]`)

// ExtractIssuePrefix strips a trailing content-hash suffix from an
// issue id, returning the human-chosen prefix that precedes it. ids
// with no recognizable hash suffix are returned unchanged.
//
// A suffix is treated as a hash when it is 3-8 characters: a 3-letter
// suffix is accepted outright (the false-positive rate against real
// English words is low enough at that length), while a 4+ character
// all-letter suffix is rejected unless it contains at least one digit
// -- this keeps ordinary words like "test" or "baseline" from being
// misread as hashes. Only the last hyphen-segment is considered, so
// multi-hyphen prefixes like "hacker-news-ko4" keep their full
// "hacker-news" prefix.
func ExtractIssuePrefix(issueID string) string {
	idx := strings.LastIndex(issueID, "-")
	if idx < 0 || idx == len(issueID)-1 {
		return issueID
	}
	prefix, suffix := issueID[:idx], issueID[idx+1:]
	if isLikelyHash(suffix) {
		return prefix
	}
	return issueID
}

func isLikelyHash(suffix string) bool {
	n := len(suffix)
	if n < 3 || n > 8 {
		return false
	}
	for _, r := range suffix {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')) {
			return false
		}
	}
	if n == 3 {
		return true
	}
	return hashSuffixDigit.MatchString(suffix)
}

// Layout selects where volatile, non-version-controlled files are
// placed relative to the data directory.
type Layout int

const (
	// LayoutV1 keeps volatile files alongside the snapshot at the data
	// directory root.
	LayoutV1 Layout = iota
	// LayoutV2 places volatile files under a var/ subdirectory, keeping
	// the data directory root limited to files meant for version
	// control.
	LayoutV2
)

// VolatileFiles lists exact file names that are never meant to be
// version controlled: the lock file, the generation marker, and the
// audit log. WAL files are excluded here because they are
// generation-numbered (beads.wal.{N}); see IsVolatileFile.
var VolatileFiles = []string{
	"beads.lock",
	"generation",
	"events.jsonl",
}

const walFilePrefix = "beads.wal."

// IsVolatileFile reports whether name is one of VolatileFiles or a
// generation-numbered WAL file (beads.wal.{N}).
func IsVolatileFile(name string) bool {
	if strings.HasPrefix(name, walFilePrefix) {
		return true
	}
	for _, f := range VolatileFiles {
		if f == name {
			return true
		}
	}
	return false
}

// VarDir returns the var/ subdirectory path for dataDir under
// LayoutV2; under LayoutV1 it returns dataDir itself.
func VarDir(dataDir string, layout Layout) string {
	if layout == LayoutV2 {
		return filepath.Join(dataDir, "var")
	}
	return dataDir
}

// EnsureVarDir creates the var/ subdirectory for dataDir if it does
// not already exist.
func EnsureVarDir(dataDir string) error {
	return os.MkdirAll(filepath.Join(dataDir, "var"), 0o755)
}

// IsVarLayout reports whether dataDir is using LayoutV2: either the
// caller already knows via layout, or a var/ subdirectory exists on
// disk (bootstrap detection for directories created before layout was
// explicit).
func IsVarLayout(dataDir string, layout Layout) bool {
	if layout == LayoutV2 {
		return true
	}
	info, err := os.Stat(filepath.Join(dataDir, "var"))
	return err == nil && info.IsDir()
}

// VarPath resolves the read path for filename: it prefers an existing
// file under var/, falls back to the data directory root, and only
// consults layout to pick where a brand new file should be created.
func VarPath(dataDir, filename string, layout Layout) string {
	varPath := filepath.Join(dataDir, "var", filename)
	if fileExists(varPath) {
		return varPath
	}
	rootPath := filepath.Join(dataDir, filename)
	if fileExists(rootPath) {
		return rootPath
	}
	if IsVarLayout(dataDir, layout) {
		return varPath
	}
	return rootPath
}

// VarPathForWrite resolves the path a new file should be written to,
// always honoring layout rather than preferring whichever copy
// already exists.
func VarPathForWrite(dataDir, filename string, layout Layout) string {
	if layout == LayoutV2 {
		return filepath.Join(dataDir, "var", filename)
	}
	return filepath.Join(dataDir, filename)
}
