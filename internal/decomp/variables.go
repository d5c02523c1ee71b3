package decomp

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// tempNameRe matches decompiler-generated temporary names.
var tempNameRe = regexp.MustCompile(`^(uVar|iVar|bVar|cVar|lVar|sVar|fVar|dVar|ppVar|pVar|auVar|abVar|aiVar)\d+$`)

// classifyVarKind assigns PARAM | LOCAL | GLOBAL_REF | TEMP.
func classifyVarKind(v *RawVariable) VarKind {
	switch {
	case v.IsParam:
		return VarParam
	case v.StorageClass == string(StorageMemory) && v.AddrVA != nil:
		return VarGlobalRef
	case v.StorageClass == string(StorageUnique) || tempNameRe.MatchString(v.Name):
		return VarTemp
	default:
		return VarLocal
	}
}

// storageClassOf maps the raw storage class string into the sum type.
func storageClassOf(raw string) StorageClass {
	switch raw {
	case string(StorageStack), string(StorageRegister), string(StorageMemory), string(StorageUnique):
		return StorageClass(raw)
	default:
		return StorageUnknown
	}
}

// computeStorageKey builds the deterministic storage key:
//
//	STACK    → "stack:off:±0xN"
//	REGISTER → "reg:NAME"
//	MEMORY   → "mem:0xADDR"
//	UNIQUE   → "uniq:NAME"
//	UNKNOWN  → "unk:NAME"
func computeStorageKey(v *RawVariable) string {
	switch {
	case v.StorageClass == string(StorageStack) && v.StackOffset != nil:
		off := *v.StackOffset
		sign := "+"
		if off < 0 {
			sign = "-"
			off = -off
		}
		return fmt.Sprintf("stack:off:%s0x%x", sign, off)
	case v.StorageClass == string(StorageRegister) && v.RegisterName != nil && *v.RegisterName != "":
		return "reg:" + *v.RegisterName
	case v.StorageClass == string(StorageMemory) && v.AddrVA != nil:
		return fmt.Sprintf("mem:0x%x", *v.AddrVA)
	case v.StorageClass == string(StorageUnique):
		return "uniq:" + v.Name
	default:
		return "unk:" + v.Name
	}
}

// computeAccessSig hashes the sorted access sites; with no sites the
// storage key is the fallback input.
func computeAccessSig(accessSites []int64, storageKey string) string {
	var data string
	if len(accessSites) > 0 {
		sorted := append([]int64(nil), accessSites...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		parts := make([]string, len(sorted))
		for i, a := range sorted {
			parts[i] = strconv.FormatInt(a, 10)
		}
		data = strings.Join(parts, ",")
	} else {
		data = storageKey
	}
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])[:16]
}

// isTempSingleton applies the naming + storage heuristic for decompiler
// temporaries.
func isTempSingleton(name string, kind VarKind, storageClass string) bool {
	if kind == VarTemp {
		return true
	}
	return tempNameRe.MatchString(name) && storageClass == string(StorageUnique)
}

// processVariables reshapes one function's variables, sorted by
// (var_kind, storage_key).
func processVariables(raw []RawVariable, binarySHA, functionID string, entryVA uint64) []VariableRow {
	rows := make([]VariableRow, 0, len(raw))
	for i := range raw {
		v := &raw[i]
		kind := classifyVarKind(v)
		storageKey := computeStorageKey(v)
		accessSig := computeAccessSig(v.AccessSites, storageKey)

		sortedSites := append([]int64(nil), v.AccessSites...)
		sort.Slice(sortedSites, func(a, b int) bool { return sortedSites[a] < sortedSites[b] })

		var sizePtr *int
		if v.SizeBytes > 0 {
			size := v.SizeBytes
			sizePtr = &size
		}

		rows = append(rows, VariableRow{
			BinarySHA256:         binarySHA,
			FunctionID:           functionID,
			EntryVA:              entryVA,
			VarID:                fmt.Sprintf("%s:%s:%s:%s", functionID, kind, storageKey, accessSig),
			VarKind:              kind,
			Name:                 v.Name,
			TypeStr:              v.TypeStr,
			SizeBytes:            sizePtr,
			StorageClass:         storageClassOf(v.StorageClass),
			StorageKey:           storageKey,
			StackOffset:          v.StackOffset,
			RegisterName:         v.RegisterName,
			AddrVA:               v.AddrVA,
			IsTempSingleton:      isTempSingleton(v.Name, kind, v.StorageClass),
			AccessSites:          sortedSites,
			AccessSitesTruncated: v.AccessSitesTruncated,
			AccessSig:            accessSig,
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].VarKind != rows[j].VarKind {
			return rows[i].VarKind < rows[j].VarKind
		}
		return rows[i].StorageKey < rows[j].StorageKey
	})
	return rows
}
