// Package joindwts aligns DWARF functions to tree-sitter functions via
// preprocessor #line directives, bridging binary and source coordinates.
package joindwts

import (
	"regexp"
	"strings"
)

// PackageName identifies the join stage in its output envelopes.
const PackageName = "join_dwarf_ts"

// lineDirectiveRe matches GCC preprocessor line markers:
//
//	# 123 "path"
//	# 123 "path" 1 3 4
//	#line 123 "path"
var lineDirectiveRe = regexp.MustCompile(`^#(?:\s*line)?\s+(\d+)\s+"((?:[^"\\]|\\.)*)"(?:\s+([\d\s]*))?$`)

// Origin is an original (file, line) location.
type Origin struct {
	File string
	Line int
}

// OriginMap is the forward map from 0-based .i line numbers to original
// source locations. Lines under excluded prefixes or synthetic markers
// map to absent so they never dilute overlap scoring.
type OriginMap struct {
	TuPath          string
	Forward         []*Origin
	OriginAvailable bool
	NTotalLines     int
}

// isExcludedPath reports whether a directive path is synthetic or under
// an excluded prefix.
func isExcludedPath(path string, excludedPrefixes []string) bool {
	if strings.HasPrefix(path, "<") && strings.HasSuffix(path, ">") {
		return true
	}
	for _, prefix := range excludedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// BuildOriginMap parses the content of one .i file into a forward map.
func BuildOriginMap(iContent, tuPath string, excludedPrefixes []string) *OriginMap {
	lines := strings.Split(iContent, "\n")
	forward := make([]*Origin, len(lines))

	var currentPath string
	var currentLine int
	currentExcluded := true
	foundAny := false

	for idx, rawLine := range lines {
		stripped := strings.TrimRight(rawLine, " \t\r")

		m := lineDirectiveRe.FindStringSubmatch(stripped)
		if m != nil {
			foundAny = true
			origLine := atoiSafe(m[1])
			origPath := strings.ReplaceAll(m[2], `\\`, `\`)
			origPath = strings.ReplaceAll(origPath, `\"`, `"`)

			currentPath = origPath
			currentLine = origLine
			currentExcluded = isExcludedPath(origPath, excludedPrefixes)

			// GCC flag 3 marks a system header.
			if m[3] != "" {
				for _, f := range strings.Fields(m[3]) {
					if f == "3" {
						currentExcluded = true
					}
				}
			}

			// The directive line itself maps to no source content.
			forward[idx] = nil
			continue
		}

		if currentPath != "" && currentLine > 0 {
			if !currentExcluded {
				forward[idx] = &Origin{File: currentPath, Line: currentLine}
			}
			currentLine++
		}
	}

	return &OriginMap{
		TuPath:          tuPath,
		Forward:         forward,
		OriginAvailable: foundAny,
		NTotalLines:     len(lines),
	}
}

// Lookup returns the origin of a 0-based .i line, or nil.
func (m *OriginMap) Lookup(iLine int) *Origin {
	if iLine < 0 || iLine >= len(m.Forward) {
		return nil
	}
	return m.Forward[iLine]
}

func atoiSafe(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n
}
