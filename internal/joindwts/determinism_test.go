package joindwts

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/NicolasKol/reforge/internal/output"
)

// Two independent runs over identical inputs must produce byte-identical
// pair documents. The report differs only in its generated_at stamp, so
// the comparison targets the pairs file.
func TestJoinIsByteIdenticalAcrossRuns(t *testing.T) {
	build := func() Inputs {
		in := baseInputs()
		for i := 1; i <= 4; i++ {
			file := fmt.Sprintf("f%d.c", i)
			iPath := fmt.Sprintf("f%d.i", i)
			in.DwarfFunctions.Functions = append(in.DwarfFunctions.Functions,
				dwarfFn(fmt.Sprintf("cu0x%d:die0x10", i), fmt.Sprintf("fn%d", i), file, 1, 2, 3))
			in.TsFunctions.Functions = append(in.TsFunctions.Functions,
				tsFn(iPath, 1, 3, fmt.Sprintf("fn%d", i), fmt.Sprintf("h%d", i)))
			in.IContents[iPath] = iFileFor(file, 5)
		}
		return in
	}

	first, _, err := testJoiner().Run(build())
	if err != nil {
		t.Fatal(err)
	}
	second, _, err := testJoiner().Run(build())
	if err != nil {
		t.Fatal(err)
	}

	a, err := output.Encode(first)
	if err != nil {
		t.Fatal(err)
	}
	b, err := output.Encode(second)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Errorf("pair documents differ across runs:\n%s\n%s", a, b)
	}
}
