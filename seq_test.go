package rdp

import "testing"

func TestSeq16Diff(t *testing.T) {
	tests := []struct {
		a, b Seq16
		want int
	}{
		{0, 1, 1},
		{1, 0, -1},
		{0xFFFF, 0, 1},
		{0, 0xFFFF, -1},
		{5, 5, 0},
	}
	for _, tt := range tests {
		if got := tt.a.Diff(tt.b); got != tt.want {
			t.Errorf("Seq16(%d).Diff(%d) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSeq16Less(t *testing.T) {
	if !Seq16(0).Less(1) {
		t.Error("0 should be less than 1")
	}
	if !Seq16(0xFFFF).Less(0) {
		t.Error("0xFFFF should be less than 0 (wraparound)")
	}
	if Seq16(5).Less(5) {
		t.Error("a value should not be less than itself")
	}
}

func TestSeq16Add(t *testing.T) {
	if got := Seq16(0xFFFF).Add(1); got != 0 {
		t.Errorf("0xFFFF+1 = %d, want 0", got)
	}
	if got := Seq16(0).Add(-1); got != 0xFFFF {
		t.Errorf("0-1 = %d, want 0xFFFF", got)
	}
}

func TestInClosedRange(t *testing.T) {
	tests := []struct {
		seq, lo, hi Seq16
		want        bool
	}{
		{5, 0, 10, true},
		{0, 0, 10, true},
		{10, 0, 10, true},
		{11, 0, 10, false},
		{0xFFFE, 0xFFF0, 5, true}, // wraps past 0xFFFF
	}
	for _, tt := range tests {
		if got := InClosedRange(tt.seq, tt.lo, tt.hi); got != tt.want {
			t.Errorf("InClosedRange(%d, %d, %d) = %v, want %v", tt.seq, tt.lo, tt.hi, got, tt.want)
		}
	}
}
