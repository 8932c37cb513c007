package checksum_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Open-Technology-Foundation/checkpoint/internal/checksum"
)

func TestDigestSHA256IsStableAndContentSensitive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := checksum.New(checksum.SHA256)
	a, err := p.Digest(path)
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.Digest(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Fatal("digest of unchanged file should be stable")
	}

	if err := os.WriteFile(path, []byte("world"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := p.Digest(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(a) == string(c) {
		t.Fatal("digest should change when content changes")
	}
}

func TestSizeOnlyIgnoresContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := checksum.New(checksum.SizeOnly)
	d1, err := p.Digest(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte("HELLO"), 0o644); err != nil {
		t.Fatal(err)
	}
	d2, err := p.Digest(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(d1) != string(d2) {
		t.Fatal("size-only digest must match for same-length content")
	}
}
