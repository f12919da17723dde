package prevalence

import "sync/atomic"

// Sequence hands out the journal seq numbers. Every command gets the next
// value; a snapshot covers every command up to Current.
//
// The System's write lock already serializes Next, but Sequence is safe for
// concurrent use on its own.
type Sequence struct {
	seq atomic.Int64
}

// NewSequence returns a sequence whose first Next is start+1.
func NewSequence(start int64) *Sequence {
	s := &Sequence{}
	s.seq.Store(start)
	return s
}

// Next returns the next seq number.
func (s *Sequence) Next() int64 {
	return s.seq.Add(1)
}

// Current returns the last seq number handed out.
func (s *Sequence) Current() int64 {
	return s.seq.Load()
}

// Rewind gives back n, which must be the value just returned by Next, when
// the command it numbered never reached the journal.
func (s *Sequence) Rewind(n int64) {
	s.seq.CompareAndSwap(n, n-1)
}
