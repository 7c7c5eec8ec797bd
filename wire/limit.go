package wire

// SizeLimit bounds the cumulative logical bytes a Decoder will request
// before failing with ErrSizeLimit (spec.md §6.2).
//
// The zero value is Unbounded. Construct a bound with Bounded.
type SizeLimit struct {
	bounded bool
	max     uint64
}

// Unbounded returns a SizeLimit that never rejects a read.
func Unbounded() SizeLimit { return SizeLimit{} }

// Bounded returns a SizeLimit that fails the first time the running total of
// logically-requested bytes would exceed n.
func Bounded(n uint64) SizeLimit { return SizeLimit{bounded: true, max: n} }

// IsBounded reports whether the limit caps reads.
func (s SizeLimit) IsBounded() bool { return s.bounded }

// Max returns the configured bound. Only meaningful when IsBounded is true.
func (s SizeLimit) Max() uint64 { return s.max }
