// Package envelope provides the provenance header carried by every pipeline
// artifact. Downstream consumers resolve a document's origin through this
// header; binary_sha256 is the primary cross-stage key.
package envelope

import (
	"time"

	"github.com/NicolasKol/reforge/internal/version"
)

// Envelope is embedded at the top of every report and artifact document.
type Envelope struct {
	PackageName   string `json:"package_name"`
	Version       string `json:"version"`
	SchemaVersion string `json:"schema_version"`
	ProfileID     string `json:"profile_id"`
	BinarySHA256  string `json:"binary_sha256,omitempty"`

	// GeneratedAt is the single permitted nondeterministic field in any
	// report. Byte-identity checks ignore it.
	GeneratedAt string `json:"generated_at,omitempty"`
}

// New builds an envelope for the given stage package.
func New(packageName, profileID, binarySHA256 string) Envelope {
	return Envelope{
		PackageName:   packageName,
		Version:       version.Version,
		SchemaVersion: version.SchemaVersion,
		ProfileID:     profileID,
		BinarySHA256:  binarySHA256,
	}
}

// Stamped returns a copy with GeneratedAt set to the current UTC time.
// Only report documents are stamped; per-function artifacts never are.
func (e Envelope) Stamped() Envelope {
	e.GeneratedAt = time.Now().UTC().Format(time.RFC3339)
	return e
}
