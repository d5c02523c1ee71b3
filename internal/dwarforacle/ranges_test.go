package dwarforacle

import (
	"reflect"
	"testing"
)

func TestNormalizeRanges(t *testing.T) {
	tests := []struct {
		name string
		in   [][2]uint64
		want []rawRange
	}{
		{
			name: "empty",
			in:   nil,
			want: nil,
		},
		{
			name: "drops empty segments",
			in:   [][2]uint64{{0x10, 0x10}, {0x20, 0x30}},
			want: []rawRange{{low: 0x20, high: 0x30}},
		},
		{
			name: "sorts",
			in:   [][2]uint64{{0x30, 0x40}, {0x10, 0x20}},
			want: []rawRange{{low: 0x10, high: 0x20}, {low: 0x30, high: 0x40}},
		},
		{
			name: "merges overlapping",
			in:   [][2]uint64{{0x10, 0x25}, {0x20, 0x30}},
			want: []rawRange{{low: 0x10, high: 0x30}},
		},
		{
			name: "merges adjacent",
			in:   [][2]uint64{{0x10, 0x20}, {0x20, 0x30}},
			want: []rawRange{{low: 0x10, high: 0x30}},
		},
		{
			name: "keeps disjoint",
			in:   [][2]uint64{{0x10, 0x20}, {0x40, 0x50}},
			want: []rawRange{{low: 0x10, high: 0x20}, {low: 0x40, high: 0x50}},
		},
		{
			name: "contained segment",
			in:   [][2]uint64{{0x10, 0x50}, {0x20, 0x30}},
			want: []rawRange{{low: 0x10, high: 0x50}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeRanges(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNormalizedRangesAreSortedAndNonOverlapping(t *testing.T) {
	got := normalizeRanges([][2]uint64{
		{0x100, 0x180}, {0x80, 0x100}, {0x200, 0x210}, {0x1f0, 0x205},
	})
	for i := range got {
		if got[i].low >= got[i].high {
			t.Errorf("segment %d empty: %+v", i, got[i])
		}
		if i > 0 && got[i-1].high > got[i].low {
			t.Errorf("segments %d and %d overlap: %+v %+v", i-1, i, got[i-1], got[i])
		}
	}
}

func TestTotalBytes(t *testing.T) {
	segs := []rawRange{{low: 0x10, high: 0x20}, {low: 0x40, high: 0x48}}
	if got := totalBytes(segs); got != 0x18 {
		t.Errorf("totalBytes = %#x, want 0x18", got)
	}
}

func TestInRanges(t *testing.T) {
	segs := []rawRange{{low: 0x10, high: 0x20}}
	tests := []struct {
		addr uint64
		want bool
	}{
		{0x0f, false},
		{0x10, true},
		{0x1f, true},
		{0x20, false}, // high is exclusive
	}
	for _, tt := range tests {
		if got := inRanges(tt.addr, segs); got != tt.want {
			t.Errorf("inRanges(%#x) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}

func TestToAddressRanges(t *testing.T) {
	got := toAddressRanges([]rawRange{{low: 0x1149, high: 0x1160}})
	if got[0].Low != "0x1149" || got[0].High != "0x1160" {
		t.Errorf("got %+v", got[0])
	}
}
