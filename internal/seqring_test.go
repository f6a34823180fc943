package internal

import "testing"

func TestSeqRingBasic(t *testing.T) {
	r := NewSeqRing[int](8)
	if r.Cap() != 8 {
		t.Fatalf("want cap 8, got %d", r.Cap())
	}
	r.Set(10, 100)
	r.Set(11, 101)
	if r.Len() != 2 {
		t.Fatalf("want len 2, got %d", r.Len())
	}
	v, ok := r.Get(10)
	if !ok || v != 100 {
		t.Fatalf("got %d,%v want 100,true", v, ok)
	}
	if !r.Has(11) {
		t.Fatal("expected slot 11 occupied")
	}
	if r.Has(12) {
		t.Fatal("slot 12 should be empty")
	}
	removed, ok := r.Remove(10)
	if !ok || removed != 100 {
		t.Fatalf("remove: got %d,%v want 100,true", removed, ok)
	}
	if r.Len() != 1 {
		t.Fatalf("want len 1 after remove, got %d", r.Len())
	}
	if _, ok := r.Get(10); ok {
		t.Fatal("slot 10 should be empty after remove")
	}
}

func TestSeqRingWraparound(t *testing.T) {
	r := NewSeqRing[string](4)
	// Sequence numbers straddling the 16 bit wrap boundary.
	r.Set(0xFFFE, "a")
	r.Set(0xFFFF, "b")
	r.Set(0x0000, "c")
	r.Set(0x0001, "d")
	for _, tc := range []struct {
		seq  uint16
		want string
	}{
		{0xFFFE, "a"}, {0xFFFF, "b"}, {0x0000, "c"}, {0x0001, "d"},
	} {
		v, ok := r.Get(tc.seq)
		if !ok || v != tc.want {
			t.Errorf("seq=%#x: got %q,%v want %q,true", tc.seq, v, ok, tc.want)
		}
	}
}

func TestSeqRingEnsureCapacityRehomesEntries(t *testing.T) {
	r := NewSeqRing[int](4)
	r.Set(1, 111)
	r.Set(3, 333)
	r.EnsureCapacity(16)
	if r.Cap() < 16 {
		t.Fatalf("expected capacity >= 16, got %d", r.Cap())
	}
	if r.Len() != 2 {
		t.Fatalf("expected entries preserved across grow, got len=%d", r.Len())
	}
	for seq, want := range map[uint16]int{1: 111, 3: 333} {
		v, ok := r.Get(seq)
		if !ok || v != want {
			t.Errorf("seq=%d: got %d,%v want %d,true", seq, v, ok, want)
		}
	}
}

func TestSeqRingGrowsToHoldQueueSizeMax(t *testing.T) {
	// Mirrors the boundary property: receive ring must grow from a small
	// initial size to hold at least QueueSizeMax slots without data loss.
	r := NewSeqRing[byte](64)
	const want = 16384 // QueueSizeMax, mirrored from the rdp package's constants.go
	r.EnsureCapacity(want)
	if r.Cap() < want {
		t.Fatalf("want cap >= %d, got %d", want, r.Cap())
	}
}

func TestSeqRingForEachInRange(t *testing.T) {
	r := NewSeqRing[int](8)
	r.Set(5, 50)
	r.Set(7, 70)
	var seen []uint16
	r.ForEachInRange(4, 6, func(seq uint16, v int) {
		seen = append(seen, seq)
	})
	if len(seen) != 2 || seen[0] != 5 || seen[1] != 7 {
		t.Fatalf("unexpected visit order/set: %v", seen)
	}
}
