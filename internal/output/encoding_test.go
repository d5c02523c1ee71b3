package output

import (
	"bytes"
	"testing"
)

func TestEncodeSortsMapKeys(t *testing.T) {
	v := map[string]int{"zebra": 1, "alpha": 2, "mid": 3}

	got, err := Encode(v)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	want := `{"alpha":2,"mid":3,"zebra":1}`
	if string(got) != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	v := map[string]interface{}{
		"b": map[string]int{"y": 2, "x": 1},
		"a": []float64{0.1234567, 1.0},
	}

	first, err := Encode(v)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := Encode(v)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("run %d differs: %s vs %s", i, first, again)
		}
	}
}

func TestEncodeStructHonorsJSONTags(t *testing.T) {
	type inner struct {
		Ratio float64 `json:"ratio"`
		Skip  string  `json:"-"`
		Empty string  `json:"empty,omitempty"`
	}
	got, err := Encode(inner{Ratio: 0.5, Skip: "x"})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	want := `{"ratio":0.5}`
	if string(got) != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestEncodeFlattensEmbeddedStructs(t *testing.T) {
	type header struct {
		PackageName string `json:"package_name"`
	}
	type doc struct {
		header
		Name string `json:"name"`
	}
	got, err := Encode(doc{header: header{PackageName: "oracle"}, Name: "f"})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	want := `{"name":"f","package_name":"oracle"}`
	if string(got) != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestRoundFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0.123456789, 0.123457},
		{1.0, 1.0},
		{0.7000001, 0.7},
		{0, 0},
	}
	for _, tt := range tests {
		if got := RoundFloat(tt.in); got != tt.want {
			t.Errorf("RoundFloat(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestEncodeNilSliceIsNull(t *testing.T) {
	type doc struct {
		Items []string `json:"items"`
	}
	got, err := Encode(doc{})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	want := `{"items":null}`
	if string(got) != want {
		t.Errorf("got %s, want %s", got, want)
	}
}
