// Package elfmeta extracts structural metadata from ELF binaries: type,
// architecture, build-id, and debug-section presence. It intentionally
// does not parse DWARF data; that belongs to the DWARF oracle.
package elfmeta

import (
	"crypto/sha256"
	"debug/elf"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// Meta is the structural metadata of one ELF binary.
type Meta struct {
	Path       string `json:"path"`
	FileSHA256 string `json:"sha256"`
	SizeBytes  int64  `json:"size_bytes"`

	ElfType    string `json:"elf_type"` // ET_EXEC, ET_DYN, ...
	Machine    string `json:"arch"`     // EM_X86_64, ...
	Class      string `json:"class"`    // ELFCLASS32 | ELFCLASS64
	Endianness string `json:"endianness"`

	HasDebugInfo   bool     `json:"has_debug_info"`
	HasDebugLine   bool     `json:"has_debug_line"`
	HasDebugRanges bool     `json:"has_debug_ranges"`
	DebugSections  []string `json:"debug_sections"`

	BuildID string `json:"build_id,omitempty"`

	HasSplitDwarf bool `json:"has_split_dwarf"`
}

// IsELF reports whether the file at path begins with the ELF magic.
func IsELF(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	var magic [4]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		return false
	}
	return magic == [4]byte{0x7f, 'E', 'L', 'F'}
}

// HashFile computes the SHA-256 of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Read opens the file at path and extracts ELF metadata.
func Read(path string) (*Meta, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("binary not found: %s: %w", path, err)
	}

	sum, err := HashFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to hash %s: %w", path, err)
	}

	ef, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("not a valid ELF binary: %s: %w", path, err)
	}
	defer ef.Close()

	meta := &Meta{
		Path:       path,
		FileSHA256: sum,
		SizeBytes:  st.Size(),
		ElfType:    ef.Type.String(),
		Machine:    ef.Machine.String(),
		Class:      ef.Class.String(),
		Endianness: endianness(ef),
	}

	for _, sec := range ef.Sections {
		name := sec.Name
		if strings.HasPrefix(name, ".debug_") {
			meta.DebugSections = append(meta.DebugSections, name)
		}
		switch {
		case name == ".debug_info":
			meta.HasDebugInfo = true
		case name == ".debug_line":
			meta.HasDebugLine = true
		case name == ".debug_ranges" || name == ".debug_rnglists":
			meta.HasDebugRanges = true
		}
		// Split DWARF: .dwo sections or a debug-altlink reference
		if strings.HasSuffix(name, ".dwo") || name == ".gnu_debugaltlink" {
			meta.HasSplitDwarf = true
		}
	}

	meta.BuildID = readBuildID(ef)
	return meta, nil
}

func endianness(ef *elf.File) string {
	if ef.Data == elf.ELFDATA2MSB {
		return "big"
	}
	return "little"
}

// readBuildID extracts the GNU build-id from .note.gnu.build-id.
// Note layout: namesz(4) descsz(4) type(4) name(namesz, padded) desc.
func readBuildID(ef *elf.File) string {
	sec := ef.Section(".note.gnu.build-id")
	if sec == nil {
		return ""
	}
	data, err := sec.Data()
	if err != nil || len(data) < 16 {
		return ""
	}
	bo := ef.ByteOrder
	namesz := bo.Uint32(data[0:4])
	descsz := bo.Uint32(data[4:8])
	noteType := bo.Uint32(data[8:12])
	const ntGNUBuildID = 3
	if noteType != ntGNUBuildID {
		return ""
	}
	nameEnd := 12 + int(namesz+3)&^3
	if nameEnd+int(descsz) > len(data) {
		return ""
	}
	return hex.EncodeToString(data[nameEnd : nameEnd+int(descsz)])
}
