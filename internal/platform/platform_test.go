package platform_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Open-Technology-Foundation/checkpoint/internal/platform"
)

func TestCanonicaliseResolvesSymlinksAndTrailingSlash(t *testing.T) {
	dir := t.TempDir()
	real := filepath.Join(dir, "real")
	if err := os.Mkdir(real, 0o755); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "link")
	if err := os.Symlink(real, link); err != nil {
		t.Fatal(err)
	}

	got, err := platform.Canonicalise(link + "/")
	if err != nil {
		t.Fatal(err)
	}
	want, err := filepath.EvalSymlinks(real)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestIsoNowMatchesSnapshotNameLayout(t *testing.T) {
	ts := platform.IsoNow()
	if len(ts) != len("20060102_150405") {
		t.Fatalf("unexpected timestamp length: %q", ts)
	}
	if ts[8] != '_' {
		t.Fatalf("expected underscore separator at index 8, got %q", ts)
	}
}

func TestRelativeToFallsBackToAbsoluteOutsideBase(t *testing.T) {
	got := platform.RelativeTo("/a/b", "/c/d")
	if got != "/c/d" {
		t.Fatalf("got %q, want /c/d", got)
	}
	got = platform.RelativeTo("/a/b", "/a/b/c")
	if got != "c" {
		t.Fatalf("got %q, want c", got)
	}
}
