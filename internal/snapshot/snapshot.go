// Package snapshot models the immutable source input of a build job.
//
// A snapshot is an ordered list of (relative path, bytes) pairs with
// per-file hashes and a deterministic archive hash over the normalized
// tar. The builder owns the on-disk copy; everything downstream refers
// to the snapshot only through its hash.
package snapshot

import (
	"archive/tar"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/NicolasKol/reforge/internal/stageerr"
)

// FileRole classifies a source file within the snapshot.
type FileRole string

const (
	RoleCUnit  FileRole = "c_unit"
	RoleHeader FileRole = "header"
	RoleOther  FileRole = "other"
)

// File is a single source file in the snapshot.
type File struct {
	PathRel   string   `json:"path_rel"`
	SHA256    string   `json:"sha256"`
	SizeBytes int64    `json:"size_bytes"`
	Role      FileRole `json:"role"`

	content []byte
}

// Content returns the raw file bytes.
func (f *File) Content() []byte {
	return f.content
}

// Snapshot is a validated, hashed source snapshot.
type Snapshot struct {
	Kind           string   `json:"kind"`
	EntryType      string   `json:"entry_type"` // "single_file" | "multi_file"
	EntryCFiles    []string `json:"entry_c_files"`
	Files          []File   `json:"files"`
	SnapshotSHA256 string   `json:"snapshot_sha256"`
	Language       string   `json:"language"`
}

// Input is one submitted source file before validation.
type Input struct {
	PathRel string
	Content []byte
}

// classifyRole assigns a role from the file extension.
func classifyRole(pathRel string) FileRole {
	switch strings.ToLower(filepath.Ext(pathRel)) {
	case ".c":
		return RoleCUnit
	case ".h":
		return RoleHeader
	default:
		return RoleOther
	}
}

// New validates inputs and builds a Snapshot.
//
// Validation rules: at least one .c unit, relative forward-slash paths
// with no traversal, unique paths.
func New(inputs []Input) (*Snapshot, error) {
	if len(inputs) == 0 {
		return nil, stageerr.Newf(stageerr.SnapshotInvalid, "snapshot has no files")
	}

	seen := make(map[string]bool, len(inputs))
	files := make([]File, 0, len(inputs))
	var cFiles []string

	for _, in := range inputs {
		rel := filepath.ToSlash(in.PathRel)
		if rel == "" || strings.HasPrefix(rel, "/") || strings.Contains(rel, "..") {
			return nil, stageerr.Newf(stageerr.SnapshotInvalid, "invalid snapshot path: %q", in.PathRel)
		}
		if seen[rel] {
			return nil, stageerr.Newf(stageerr.SnapshotInvalid, "duplicate snapshot path: %q", rel)
		}
		seen[rel] = true

		sum := sha256.Sum256(in.Content)
		role := classifyRole(rel)
		if role == RoleCUnit {
			cFiles = append(cFiles, rel)
		}
		files = append(files, File{
			PathRel:   rel,
			SHA256:    hex.EncodeToString(sum[:]),
			SizeBytes: int64(len(in.Content)),
			Role:      role,
			content:   in.Content,
		})
	}

	if len(cFiles) == 0 {
		return nil, stageerr.Newf(stageerr.SnapshotInvalid, "snapshot has no .c translation units")
	}

	sort.Slice(files, func(i, j int) bool { return files[i].PathRel < files[j].PathRel })
	sort.Strings(cFiles)

	entryType := "multi_file"
	if len(files) == 1 {
		entryType = "single_file"
	}

	snap := &Snapshot{
		Kind:        "synthetic_local_files",
		EntryType:   entryType,
		EntryCFiles: cFiles,
		Files:       files,
		Language:    "c",
	}
	snap.SnapshotSHA256 = snap.computeHash()
	return snap, nil
}

// computeHash hashes (path, content) pairs in sorted path order.
func (s *Snapshot) computeHash() string {
	h := sha256.New()
	for _, f := range s.Files {
		h.Write([]byte(f.PathRel))
		h.Write(f.content)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// WriteTo materializes the snapshot under dir, preserving relative paths.
func (s *Snapshot) WriteTo(dir string) error {
	for _, f := range s.Files {
		dst := filepath.Join(dir, filepath.FromSlash(f.PathRel))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", filepath.Dir(dst), err)
		}
		if err := os.WriteFile(dst, f.content, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", dst, err)
		}
	}
	return nil
}

// Load reads a snapshot back from an on-disk src directory.
func Load(dir string) (*Snapshot, error) {
	var inputs []Input
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		inputs = append(inputs, Input{PathRel: filepath.ToSlash(rel), Content: content})
		return nil
	})
	if err != nil {
		return nil, stageerr.New(stageerr.InputUnreadable, "failed to load snapshot "+dir, err)
	}
	return New(inputs)
}

// WriteArchive writes the normalized tar of the snapshot, zstd-compressed,
// to path. Returns the SHA-256 of the uncompressed normalized tar, which
// is the snapshot archive hash.
//
// Normalization: files in sorted path order, zero mtime, fixed mode,
// no owner information. Two identical snapshots produce identical tars.
func (s *Snapshot) WriteArchive(path string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create archive %s: %w", path, err)
	}
	defer out.Close()

	zw, err := zstd.NewWriter(out)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	tw := tar.NewWriter(writerFanout{zw, h})

	for _, f := range s.Files {
		hdr := &tar.Header{
			Name:     f.PathRel,
			Mode:     0o644,
			Size:     f.SizeBytes,
			Typeflag: tar.TypeReg,
			Format:   tar.FormatPAX,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return "", fmt.Errorf("failed to write tar header %s: %w", f.PathRel, err)
		}
		if _, err := tw.Write(f.content); err != nil {
			return "", fmt.Errorf("failed to write tar entry %s: %w", f.PathRel, err)
		}
	}
	if err := tw.Close(); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// writerFanout duplicates writes to the archive and the hash.
type writerFanout struct {
	a *zstd.Encoder
	b interface{ Write([]byte) (int, error) }
}

func (w writerFanout) Write(p []byte) (int, error) {
	if _, err := w.b.Write(p); err != nil {
		return 0, err
	}
	return w.a.Write(p)
}
