package pathutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCanonicalizePathResolvesSymlink(t *testing.T) {
	dir := t.TempDir()
	real := filepath.Join(dir, "real")
	if err := os.Mkdir(real, 0o755); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "link")
	if err := os.Symlink(real, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	if got := CanonicalizePath(link); got != real {
		t.Errorf("expected %s, got %s", real, got)
	}
}

func TestCanonicalizePathEmpty(t *testing.T) {
	if got := CanonicalizePath(""); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}

func TestCanonicalizeIfRelativeLeavesAbsoluteAlone(t *testing.T) {
	abs := string(filepath.Separator) + filepath.Join("nonexistent", "path")
	if got := CanonicalizeIfRelative(abs); got != abs {
		t.Errorf("expected absolute path unchanged, got %q", got)
	}
}

func TestPathsEqual(t *testing.T) {
	if !PathsEqual("", "") {
		t.Error("expected two empty paths to be equal")
	}
	dir := t.TempDir()
	if !PathsEqual(dir, dir) {
		t.Error("expected identical paths to be equal")
	}
	if PathsEqual(dir, filepath.Join(dir, "other")) {
		t.Error("expected distinct paths to differ")
	}
}

func TestResolveForWriteNonExistent(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "new.jsonl")
	got, err := ResolveForWrite(p)
	if err != nil {
		t.Fatalf("ResolveForWrite: %v", err)
	}
	if got != p {
		t.Errorf("expected unchanged path for non-existent file, got %q", got)
	}
}

func TestFindJSONLInDirPrefersCurrent(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "issues.jsonl"), "")
	write(t, filepath.Join(dir, "beads.jsonl"), "")
	if got := FindJSONLInDir(dir); got != "issues.jsonl" {
		t.Errorf("expected issues.jsonl, got %s", got)
	}
}

func TestFindJSONLInDirFallsBackToLegacy(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "beads.jsonl"), "")
	if got := FindJSONLInDir(dir); got != "beads.jsonl" {
		t.Errorf("expected beads.jsonl, got %s", got)
	}
}

func TestFindJSONLInDirDefaultsWhenEmpty(t *testing.T) {
	dir := t.TempDir()
	if got := FindJSONLInDir(dir); got != "issues.jsonl" {
		t.Errorf("expected default issues.jsonl, got %s", got)
	}
}

func TestFindMoleculesJSONLInDir(t *testing.T) {
	dir := t.TempDir()
	if got := FindMoleculesJSONLInDir(dir); got != "" {
		t.Errorf("expected empty when missing, got %s", got)
	}
	p := filepath.Join(dir, "molecules.jsonl")
	write(t, p, "")
	if got := FindMoleculesJSONLInDir(dir); got != p {
		t.Errorf("expected %s, got %s", p, got)
	}
}

func TestExtractIssuePrefixThreeLetterHash(t *testing.T) {
	cases := map[string]string{
		"bd-bat": "bd",
		"bd-dev": "bd",
		"bd-oil": "bd",
		"bd-fbi": "bd",
	}
	for id, want := range cases {
		if got := ExtractIssuePrefix(id); got != want {
			t.Errorf("ExtractIssuePrefix(%q) = %q, want %q", id, got, want)
		}
	}
}

func TestExtractIssuePrefixRejectsFourLetterWord(t *testing.T) {
	cases := []string{"bd-test", "bd-hello", "bd-baseline"}
	for _, id := range cases {
		if got := ExtractIssuePrefix(id); got != id {
			t.Errorf("ExtractIssuePrefix(%q) = %q, want unchanged", id, got)
		}
	}
}

func TestExtractIssuePrefixAcceptsFourCharWithDigit(t *testing.T) {
	if got := ExtractIssuePrefix("bd-a1b2"); got != "bd" {
		t.Errorf("expected bd, got %s", got)
	}
}

func TestExtractIssuePrefixMultiHyphen(t *testing.T) {
	if got := ExtractIssuePrefix("hacker-news-ko4"); got != "hacker-news" {
		t.Errorf("expected hacker-news, got %s", got)
	}
	if got := ExtractIssuePrefix("me-py-toolkit-a1b"); got != "me-py-toolkit" {
		t.Errorf("expected me-py-toolkit, got %s", got)
	}
}

func TestExtractIssuePrefixNoHyphen(t *testing.T) {
	if got := ExtractIssuePrefix("standalone"); got != "standalone" {
		t.Errorf("expected unchanged, got %s", got)
	}
}

func TestVarPathPrefersExistingRoot(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "beads.wal.1"), "x")
	got := VarPath(dir, "beads.wal.1", LayoutV1)
	if got != filepath.Join(dir, "beads.wal.1") {
		t.Errorf("expected root path, got %s", got)
	}
}

func TestVarPathForWriteHonorsLayout(t *testing.T) {
	dir := t.TempDir()
	got := VarPathForWrite(dir, "beads.wal.1", LayoutV2)
	if got != filepath.Join(dir, "var", "beads.wal.1") {
		t.Errorf("expected var path, got %s", got)
	}
}

func TestIsVolatileFile(t *testing.T) {
	if !IsVolatileFile("beads.wal.3") {
		t.Error("expected beads.wal.3 to be volatile")
	}
	if !IsVolatileFile("beads.lock") {
		t.Error("expected beads.lock to be volatile")
	}
	if IsVolatileFile("issues.jsonl") {
		t.Error("expected issues.jsonl to not be volatile")
	}
}

func TestEnsureVarDir(t *testing.T) {
	dir := t.TempDir()
	if err := EnsureVarDir(dir); err != nil {
		t.Fatalf("EnsureVarDir: %v", err)
	}
	if !IsVarLayout(dir, LayoutV1) {
		t.Error("expected var/ presence to imply var layout")
	}
}

func write(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
