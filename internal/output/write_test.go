package output

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "report.json")

	if err := WriteFileAtomic(path, []byte("hello")); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back failed: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("got %q, want %q", got, "hello")
	}

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("leftover temp file: %s", e.Name())
		}
	}
}

func TestWriteJSONLAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rows.jsonl")

	rows := []interface{}{
		map[string]int{"b": 2, "a": 1},
		map[string]string{"k": "v"},
	}
	if err := WriteJSONLAtomic(path, rows); err != nil {
		t.Fatalf("WriteJSONLAtomic failed: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "{\"a\":1,\"b\":2}\n{\"k\":\"v\"}\n"
	if string(got) != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestReplaceDirAtomicRefusesExisting(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "staging")
	dst := filepath.Join(root, "final")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		t.Fatal(err)
	}

	if err := ReplaceDirAtomic(src, dst, false); err == nil {
		t.Fatal("expected refusal when target exists")
	}
	if err := ReplaceDirAtomic(src, dst, true); err != nil {
		t.Fatalf("forced replace failed: %v", err)
	}
}
