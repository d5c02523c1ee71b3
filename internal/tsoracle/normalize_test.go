package tsoracle

import (
	"testing"
)

func TestNormalizeTextStripsComments(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "block comment",
			in:   "int x; /* comment */ int y;",
			want: "int x; int y;",
		},
		{
			name: "line comment",
			in:   "int x; // trailing\nint y;",
			want: "int x; int y;",
		},
		{
			name: "multiline block comment",
			in:   "int a;\n/* spans\nlines */\nint b;",
			want: "int a; int b;",
		},
		{
			name: "whitespace collapse",
			in:   "int   add( int a,\n\tint b )",
			want: "int add( int a, int b )",
		},
		{
			name: "leading trailing trim",
			in:   "\n\n  int f();  \n",
			want: "int f();",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(NormalizeText([]byte(tt.in))); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalizeDoesNotRewriteTokens(t *testing.T) {
	// No hex→decimal conversion, no identifier renaming.
	in := "return 0xFF + value_1;"
	if got := string(NormalizeText([]byte(in))); got != in {
		t.Errorf("tokens rewritten: %q", got)
	}
}

func TestContextHashInsensitiveToWhitespaceAndComments(t *testing.T) {
	a := []byte("int add(int a, int b) { return a + b; }")
	b := []byte("int add(int a,\n\tint b)\n{\n\t/* sum */ return a + b;\n}")
	if ContextHash(a) != ContextHash(b) {
		t.Error("context hash differs across whitespace/comment variants")
	}

	c := []byte("int add(int a, int b) { return a - b; }")
	if ContextHash(a) == ContextHash(c) {
		t.Error("context hash collides across different bodies")
	}
}

func TestRawHashIsExact(t *testing.T) {
	a := []byte("int f() {}")
	b := []byte("int f()  {}")
	if RawHash(a) == RawHash(b) {
		t.Error("raw hash ignored whitespace")
	}
	if len(RawHash(a)) != 64 {
		t.Errorf("raw hash length = %d", len(RawHash(a)))
	}
}

// Pinned value: the normalization rule is a cross-consumer contract, so
// the hash of a known input must never drift.
func TestContextHashPinned(t *testing.T) {
	in := []byte("int main() { return 0; }")
	normalized := string(NormalizeText(in))
	if normalized != "int main() { return 0; }" {
		t.Fatalf("normalization drifted: %q", normalized)
	}
	if got := ContextHash(in); got != RawHash([]byte(normalized)) {
		t.Error("context hash must equal sha256 of normalized text")
	}
}
