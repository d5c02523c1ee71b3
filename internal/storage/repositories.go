package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// SyntheticCode is one row of the synthetic case registry.
type SyntheticCode struct {
	ID             int64    `json:"id"`
	Name           string   `json:"name"`
	TestCategory   string   `json:"test_category,omitempty"`
	SnapshotSHA256 string   `json:"snapshot_sha256"`
	SourceFiles    []string `json:"source_files"`
	Status         string   `json:"status"`
}

// Binary is one row per produced binary artifact, keyed by file hash.
type Binary struct {
	FileHash          string `json:"file_hash"`
	SyntheticCodeID   int64  `json:"synthetic_code_id"`
	OptimizationLevel string `json:"optimization_level"`
	VariantType       string `json:"variant_type"`
	HasDebugInfo      bool   `json:"has_debug_info"`
	IsStripped        bool   `json:"is_stripped"`
	ElfType           string `json:"elf_type,omitempty"`
	Arch              string `json:"arch,omitempty"`
	BuildID           string `json:"build_id,omitempty"`
	SizeBytes         int64  `json:"size_bytes"`
	PathRel           string `json:"path_rel,omitempty"`
}

// UpsertSyntheticCode inserts or updates a synthetic case by name and
// returns its row id.
func (db *DB) UpsertSyntheticCode(code SyntheticCode) (int64, error) {
	files, err := json.Marshal(code.SourceFiles)
	if err != nil {
		return 0, err
	}

	var id int64
	err = db.WithTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO synthetic_code (name, test_category, snapshot_sha256, source_files, status)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET
				test_category = excluded.test_category,
				snapshot_sha256 = excluded.snapshot_sha256,
				source_files = excluded.source_files,
				status = excluded.status,
				updated_at = datetime('now')
		`, code.Name, code.TestCategory, code.SnapshotSHA256, string(files), code.Status)
		if err != nil {
			return err
		}
		return tx.QueryRow(`SELECT id FROM synthetic_code WHERE name = ?`, code.Name).Scan(&id)
	})
	return id, err
}

// GetSyntheticCode loads a synthetic case by name.
func (db *DB) GetSyntheticCode(name string) (*SyntheticCode, error) {
	var code SyntheticCode
	var files string
	err := db.conn.QueryRow(`
		SELECT id, name, COALESCE(test_category, ''), snapshot_sha256, source_files, status
		FROM synthetic_code WHERE name = ?
	`, name).Scan(&code.ID, &code.Name, &code.TestCategory, &code.SnapshotSHA256, &files, &code.Status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(files), &code.SourceFiles); err != nil {
		return nil, fmt.Errorf("corrupt source_files for %s: %w", name, err)
	}
	return &code, nil
}

// UpsertBinary inserts or replaces one binary row. Exactly one row per
// produced artifact.
func (db *DB) UpsertBinary(bin Binary) error {
	_, err := db.conn.Exec(`
		INSERT INTO binaries (
			file_hash, synthetic_code_id, optimization_level, variant_type,
			has_debug_info, is_stripped, elf_type, arch, build_id, size_bytes, path_rel
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_hash) DO UPDATE SET
			synthetic_code_id = excluded.synthetic_code_id,
			optimization_level = excluded.optimization_level,
			variant_type = excluded.variant_type,
			has_debug_info = excluded.has_debug_info,
			is_stripped = excluded.is_stripped,
			elf_type = excluded.elf_type,
			arch = excluded.arch,
			build_id = excluded.build_id,
			size_bytes = excluded.size_bytes,
			path_rel = excluded.path_rel
	`, bin.FileHash, bin.SyntheticCodeID, bin.OptimizationLevel, bin.VariantType,
		bin.HasDebugInfo, bin.IsStripped, bin.ElfType, bin.Arch, bin.BuildID,
		bin.SizeBytes, bin.PathRel)
	return err
}

// GetBinary loads one binary row by file hash.
func (db *DB) GetBinary(fileHash string) (*Binary, error) {
	var bin Binary
	err := db.conn.QueryRow(`
		SELECT file_hash, synthetic_code_id, optimization_level, variant_type,
			has_debug_info, is_stripped,
			COALESCE(elf_type, ''), COALESCE(arch, ''), COALESCE(build_id, ''),
			COALESCE(size_bytes, 0), COALESCE(path_rel, '')
		FROM binaries WHERE file_hash = ?
	`, fileHash).Scan(&bin.FileHash, &bin.SyntheticCodeID, &bin.OptimizationLevel,
		&bin.VariantType, &bin.HasDebugInfo, &bin.IsStripped, &bin.ElfType,
		&bin.Arch, &bin.BuildID, &bin.SizeBytes, &bin.PathRel)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &bin, nil
}

// ListBinaries returns the binaries of one synthetic case, ordered by
// (optimization_level, variant_type).
func (db *DB) ListBinaries(syntheticCodeID int64) ([]Binary, error) {
	rows, err := db.conn.Query(`
		SELECT file_hash, synthetic_code_id, optimization_level, variant_type,
			has_debug_info, is_stripped,
			COALESCE(elf_type, ''), COALESCE(arch, ''), COALESCE(build_id, ''),
			COALESCE(size_bytes, 0), COALESCE(path_rel, '')
		FROM binaries WHERE synthetic_code_id = ?
		ORDER BY optimization_level, variant_type
	`, syntheticCodeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bins []Binary
	for rows.Next() {
		var bin Binary
		if err := rows.Scan(&bin.FileHash, &bin.SyntheticCodeID, &bin.OptimizationLevel,
			&bin.VariantType, &bin.HasDebugInfo, &bin.IsStripped, &bin.ElfType,
			&bin.Arch, &bin.BuildID, &bin.SizeBytes, &bin.PathRel); err != nil {
			return nil, err
		}
		bins = append(bins, bin)
	}
	return bins, rows.Err()
}
