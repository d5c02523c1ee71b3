// Package noise holds the frozen noise-name lists and the decompiler
// warning taxonomy. Both the reshape stage and the address-overlap join
// read from here so the two can never diverge. The data ships as
// embedded TOML; the version string travels with every report that
// applied it.
package noise

import (
	"strings"
	"sync"

	_ "embed"

	"github.com/BurntSushi/toml"
)

//go:embed noise_lists.toml
var noiseListsText []byte

// Lists is the decoded frozen noise data.
type Lists struct {
	Version string `toml:"version"`

	AuxInitFiniNames []string `toml:"aux_init_fini_names"`
	CompilerAuxNames []string `toml:"compiler_aux_names"`

	PltSectionPrefixes []string `toml:"plt_section_prefixes"`
	StubNamePrefixes   []string `toml:"stub_name_prefixes"`

	// FatalWarnings disqualify a joined row from high confidence.
	FatalWarnings []string `toml:"fatal_warnings"`

	// KnownWarnings is the frozen warning taxonomy; decompiler warning
	// text is classified into exactly these codes.
	KnownWarnings []string `toml:"known_warnings"`

	auxSet   map[string]bool
	fatalSet map[string]bool
	knownSet map[string]bool
}

var (
	loadOnce sync.Once
	loaded   *Lists
	loadErr  error
)

// Load decodes the embedded lists once and caches them.
func Load() (*Lists, error) {
	loadOnce.Do(func() {
		var l Lists
		if _, err := toml.Decode(string(noiseListsText), &l); err != nil {
			loadErr = err
			return
		}
		l.auxSet = toSet(append(append([]string{}, l.AuxInitFiniNames...), l.CompilerAuxNames...))
		l.fatalSet = toSet(l.FatalWarnings)
		l.knownSet = toSet(l.KnownWarnings)
		loaded = &l
	})
	return loaded, loadErr
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[it] = true
	}
	return set
}

// NormalizeGlibcName strips @@GLIBC_* version suffixes for set lookups:
// "__cxa_finalize@@GLIBC_2.17" → "__cxa_finalize".
func NormalizeGlibcName(name string) string {
	if idx := strings.Index(name, "@@GLIBC_"); idx >= 0 {
		return name[:idx]
	}
	return name
}

// IsAuxName reports whether a (glibc-normalized) name is an init/fini or
// compiler auxiliary.
func (l *Lists) IsAuxName(name string) bool {
	return l.auxSet[NormalizeGlibcName(strings.TrimSpace(name))]
}

// IsInitFiniAux reports membership in the init/fini auxiliary set.
func (l *Lists) IsInitFiniAux(name string) bool {
	n := NormalizeGlibcName(strings.TrimSpace(name))
	for _, aux := range l.AuxInitFiniNames {
		if n == aux {
			return true
		}
	}
	return false
}

// IsCompilerAux reports membership in the compiler auxiliary set.
func (l *Lists) IsCompilerAux(name string) bool {
	n := NormalizeGlibcName(strings.TrimSpace(name))
	for _, aux := range l.CompilerAuxNames {
		if n == aux {
			return true
		}
	}
	return false
}

// IsPltOrStub classifies PLT stubs by section prefix or stub name prefix.
func (l *Lists) IsPltOrStub(name, sectionHint string) bool {
	for _, pfx := range l.PltSectionPrefixes {
		if sectionHint != "" && strings.HasPrefix(sectionHint, pfx) {
			return true
		}
	}
	for _, pfx := range l.StubNamePrefixes {
		if strings.HasPrefix(strings.TrimSpace(name), pfx) {
			return true
		}
	}
	return false
}

// IsFatalWarning reports whether a warning code disqualifies high
// confidence.
func (l *Lists) IsFatalWarning(code string) bool {
	return l.fatalSet[code]
}

// IsKnownWarning reports whether a code belongs to the frozen taxonomy.
func (l *Lists) IsKnownWarning(code string) bool {
	return l.knownSet[code]
}
