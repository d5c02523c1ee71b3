package decomp

// processCFG reshapes one function's basic blocks into a CFG record with
// resolved successor ids, edge counts, and a completeness grade derived
// from the normalized warning set.
func processCFG(blocks []RawBlock, warnings []string, binarySHA, functionID string, entryVA uint64) CfgRow {
	addrToID := make(map[uint64]int, len(blocks))
	for _, b := range blocks {
		addrToID[b.StartVA] = b.BlockID
	}

	out := make([]BlockRow, 0, len(blocks))
	edgeCount := 0
	for _, b := range blocks {
		var succ []int
		for _, sva := range b.SuccVA {
			if id, ok := addrToID[sva]; ok {
				succ = append(succ, id)
				edgeCount++
			}
		}
		out = append(out, BlockRow{
			BlockID: b.BlockID,
			StartVA: b.StartVA,
			EndVA:   b.EndVA,
			Succ:    succ,
		})
	}

	bbCount := len(blocks)
	cyclomatic := 0
	if bbCount > 0 {
		cyclomatic = edgeCount - bbCount + 2
	}

	unresolved := 0
	for _, w := range warnings {
		if w == "UNRESOLVED_INDIRECT_JUMP" {
			unresolved++
		}
	}

	completeness := cfgCompleteness(warnings)
	if bbCount == 0 && completeness == CfgHigh {
		completeness = CfgLow
	}

	return CfgRow{
		BinarySHA256:                binarySHA,
		FunctionID:                  functionID,
		EntryVA:                     entryVA,
		BBCount:                     bbCount,
		EdgeCount:                   edgeCount,
		Cyclomatic:                  cyclomatic,
		HasIndirectJumps:            unresolved > 0,
		UnresolvedIndirectJumpCount: unresolved,
		CfgCompleteness:             completeness,
		Blocks:                      out,
	}
}

// cfgCompleteness grades the CFG from the warning set: LOW on broken
// control flow, MEDIUM on lossy structuring, HIGH otherwise.
func cfgCompleteness(warnings []string) CfgCompleteness {
	low := map[string]bool{
		"UNRESOLVED_INDIRECT_JUMP": true,
		"TRUNCATED_CONTROL_FLOW":   true,
		"BAD_INSTRUCTION_DATA":     true,
	}
	medium := map[string]bool{
		"UNREACHABLE_BLOCKS_REMOVED": true,
		"SWITCH_RECOVERY_FAILED":     true,
	}

	for _, w := range warnings {
		if low[w] {
			return CfgLow
		}
	}
	for _, w := range warnings {
		if medium[w] {
			return CfgMedium
		}
	}
	return CfgHigh
}
