package fsutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	if runtime.GOOS == "windows" {
		t.Setenv("USERPROFILE", home)
	}

	cases := map[string]string{
		"":             "",
		"/tmp":         "/tmp",
		"~":            home,
		"~/runs/spill": filepath.Join(home, "runs", "spill"),
	}
	for in, want := range cases {
		got, err := ExpandHome(in)
		if err != nil {
			t.Fatalf("%q: %v", in, err)
		}
		if got != want {
			t.Fatalf("ExpandHome(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestResolve(t *testing.T) {
	got, err := Resolve("relative/run.jsonl")
	if err != nil {
		t.Fatal(err)
	}
	if !filepath.IsAbs(got) || filepath.Base(got) != "run.jsonl" {
		t.Fatalf("unexpected resolved path: %q", got)
	}
}

func TestListByExt(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"b.jsonl", "a.NDJSON", "notes.txt", "c.jsonl"} {
		if err := os.WriteFile(filepath.Join(dir, n), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "d.jsonl"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := ListByExt(dir, ".jsonl", ".ndjson")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a.NDJSON", "b.jsonl", "c.jsonl"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if filepath.Base(got[i]) != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}

	if _, err := ListByExt(filepath.Join(dir, "missing"), ".jsonl"); err == nil {
		t.Fatalf("expected error for a missing dir")
	}
}
