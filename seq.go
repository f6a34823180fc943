package rdp

// Seq16 is a 16 bit sequence or acknowledgement number. Arithmetic on Seq16
// wraps modulo 2^16; comparisons are defined in terms of signed distance so
// that wraparound never produces a spurious ordering, per spec.md §8
// ("correctness of all comparisons uses signed 16-bit distance").
type Seq16 uint16

// Add returns a+delta, wrapping modulo 2^16.
func (a Seq16) Add(delta int) Seq16 {
	return Seq16(uint16(int32(a) + int32(delta)))
}

// Diff returns the signed distance b-a in [-32768, 32767], the minimal
// signed displacement that, added to a, yields b modulo 2^16.
func (a Seq16) Diff(b Seq16) int {
	return int(int16(b - a))
}

// Less reports whether a precedes b in sequence order, i.e. whether b lies
// in the "ahead" half of the 16 bit circle relative to a.
func (a Seq16) Less(b Seq16) bool {
	return a.Diff(b) > 0
}

// LessEq reports whether a precedes or equals b.
func (a Seq16) LessEq(b Seq16) bool {
	return a == b || a.Less(b)
}

// InClosedRange reports whether seq lies in the closed interval [lo, hi]
// under wraparound-aware signed distance, i.e. lo <= seq <= hi going
// forward around the circle from lo.
func InClosedRange(seq, lo, hi Seq16) bool {
	return lo.LessEq(seq) && seq.LessEq(hi)
}
