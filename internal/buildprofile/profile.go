// Package buildprofile defines the build profile: the fixed base flags,
// allowed link libraries, and per-variant deltas that parameterize a
// build job. Profiles load from YAML documents; the locked default is
// embedded so a job never depends on workspace files for reproducibility.
package buildprofile

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	_ "embed"

	"gopkg.in/yaml.v3"
)

// Variant names the post-compilation treatment of an artifact.
type Variant string

const (
	VariantDebug    Variant = "debug"
	VariantRelease  Variant = "release"
	VariantStripped Variant = "stripped"
)

// Variants is the canonical cell iteration order.
var Variants = []Variant{VariantDebug, VariantRelease, VariantStripped}

// OptLevels is the canonical optimization iteration order.
var OptLevels = []string{"O0", "O1", "O2", "O3"}

// VariantDelta is the per-variant compile policy delta.
type VariantDelta struct {
	AddCflags          []string `json:"add_cflags" yaml:"add_cflags"`
	DwarfPresenceCheck bool     `json:"dwarf_presence_check" yaml:"dwarf_presence_check"`
	Strip              bool     `json:"strip" yaml:"strip"`
}

// Profile is the complete build profile for a job.
type Profile struct {
	ProfileID    string `json:"profile_id" yaml:"profile_id"`
	Compiler     string `json:"compiler" yaml:"compiler"`
	OutputFormat string `json:"output_format" yaml:"output_format"`
	Arch         string `json:"arch" yaml:"arch"`
	Language     string `json:"language" yaml:"language"`

	BaseCflags  []string `json:"base_cflags" yaml:"base_cflags"`
	IncludeDirs []string `json:"include_dirs" yaml:"include_dirs"`
	Defines     []string `json:"defines" yaml:"defines"`
	LinkLibs    []string `json:"link_libs" yaml:"link_libs"`

	VariantDeltas map[Variant]VariantDelta `json:"variant_deltas" yaml:"variant_deltas"`

	Optimizations []string `json:"optimizations" yaml:"optimizations"`
}

//go:embed locked_profile.yaml
var lockedProfileText []byte

// Locked returns the embedded locked profile and the SHA-256 of its text.
// The hash is recorded in every receipt as lock_text_hash.
func Locked() (*Profile, string, error) {
	var p Profile
	if err := yaml.Unmarshal(lockedProfileText, &p); err != nil {
		return nil, "", fmt.Errorf("embedded locked profile is invalid: %w", err)
	}
	sum := sha256.Sum256(lockedProfileText)
	return &p, hex.EncodeToString(sum[:]), nil
}

// LoadFile reads a profile YAML document from path. Returns the profile
// and the SHA-256 of the document text.
func LoadFile(path string) (*Profile, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read profile %s: %w", path, err)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, "", fmt.Errorf("failed to parse profile %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, "", fmt.Errorf("profile %s: %w", path, err)
	}
	sum := sha256.Sum256(data)
	return &p, hex.EncodeToString(sum[:]), nil
}

// Validate checks structural completeness of the profile.
func (p *Profile) Validate() error {
	if p.ProfileID == "" {
		return fmt.Errorf("profile_id must not be empty")
	}
	if p.Compiler == "" {
		return fmt.Errorf("compiler must not be empty")
	}
	for _, v := range Variants {
		if _, ok := p.VariantDeltas[v]; !ok {
			return fmt.Errorf("variant delta missing for %q", v)
		}
	}
	for _, opt := range p.Optimizations {
		if !validOpt(opt) {
			return fmt.Errorf("unknown optimization level %q", opt)
		}
	}
	return nil
}

func validOpt(opt string) bool {
	for _, o := range OptLevels {
		if o == opt {
			return true
		}
	}
	return false
}

// EffectiveOptimizations returns the requested levels or the full canonical
// matrix when the profile leaves them unset.
func (p *Profile) EffectiveOptimizations() []string {
	if len(p.Optimizations) > 0 {
		return p.Optimizations
	}
	return OptLevels
}

// CellCflags returns the flag list for one (optimization, variant) cell:
// base flags + variant delta + -O{level}.
func (p *Profile) CellCflags(opt string, variant Variant) []string {
	flags := make([]string, 0, len(p.BaseCflags)+4)
	flags = append(flags, p.BaseCflags...)
	for _, dir := range p.IncludeDirs {
		flags = append(flags, "-I"+dir)
	}
	for _, def := range p.Defines {
		flags = append(flags, "-D"+def)
	}
	flags = append(flags, p.VariantDeltas[variant].AddCflags...)
	flags = append(flags, "-"+opt)
	return flags
}

// PreprocessFlags returns the flag list for the preprocess-only phase:
// language flags plus include paths, no optimization and no debug flags.
func (p *Profile) PreprocessFlags() []string {
	flags := make([]string, 0, len(p.BaseCflags)+len(p.IncludeDirs))
	for _, f := range p.BaseCflags {
		// -g never appears in BaseCflags by construction, but keep the
		// preprocess invocation free of codegen-tuning flags too.
		if f == "-fno-omit-frame-pointer" || f == "-mno-omit-leaf-frame-pointer" {
			continue
		}
		flags = append(flags, f)
	}
	for _, dir := range p.IncludeDirs {
		flags = append(flags, "-I"+dir)
	}
	for _, def := range p.Defines {
		flags = append(flags, "-D"+def)
	}
	return flags
}
