package output

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
)

// WriteFileAtomic writes data to path via a temporary file and rename.
// Readers never observe a partially-written artifact.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file for %s: %w", path, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to rename into %s: %w", path, err)
	}
	return nil
}

// WriteJSONAtomic encodes v deterministically (indented) and writes it
// atomically to path with a trailing newline.
func WriteJSONAtomic(path string, v interface{}) error {
	data, err := EncodeIndented(v, "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return WriteFileAtomic(path, append(data, '\n'))
}

// WriteJSONLAtomic encodes each row deterministically (compact, one per
// line) and writes the whole file atomically.
func WriteJSONLAtomic(path string, rows []interface{}) error {
	var buf bytes.Buffer
	for _, row := range rows {
		data, err := Encode(row)
		if err != nil {
			return fmt.Errorf("failed to encode row for %s: %w", path, err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	return WriteFileAtomic(path, buf.Bytes())
}

// ReplaceDirAtomic atomically replaces dst with the fully-written src
// directory. If dst exists and force is false, the replace is refused.
func ReplaceDirAtomic(src, dst string, force bool) error {
	if _, err := os.Stat(dst); err == nil {
		if !force {
			return fmt.Errorf("target directory already exists: %s", dst)
		}
		stale := dst + ".stale"
		if err := os.RemoveAll(stale); err != nil {
			return err
		}
		if err := os.Rename(dst, stale); err != nil {
			return fmt.Errorf("failed to move aside %s: %w", dst, err)
		}
		defer os.RemoveAll(stale)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("failed to rename %s to %s: %w", src, dst, err)
	}
	return nil
}
