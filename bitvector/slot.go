package bitvector

// SlotState is the state of a single bitvector slot held by an
// encoding.
type SlotState uint8

const (
	// StateEmpty: the index holds no materialized bitvector for this
	// slot, only the offset table entry.
	StateEmpty SlotState = iota
	// StateLiveMapped: the bitvector aliases the backing store (built
	// via FromBuffer over a memory-mapped region).
	StateLiveMapped
	// StateLiveOwned: the bitvector owns its bytes.
	StateLiveOwned
	// StateDirty: being built, not yet serialized.
	StateDirty
)

// Slot pairs a bitvector with its lifecycle state. A store that
// materializes bitvectors on demand holds one Slot per offset-table
// entry rather than a bare []*Bitvector, so the empty/live/dirty
// transitions are enforced uniformly.
type Slot struct {
	State SlotState
	BV    *Bitvector
}

// Materialize transitions empty -> live_owned|live_mapped by
// installing bv, as returned by the store's GetBitmap.
func (s *Slot) Materialize(bv *Bitvector, mapped bool) {
	s.BV = bv
	if mapped {
		s.State = StateLiveMapped
	} else {
		s.State = StateLiveOwned
	}
}

// Release transitions live_owned -> empty under memory pressure, or
// live_mapped -> empty automatically when the backing store releases
// its mapping. Callers must not hold a reference to s.BV across this
// call once the store that produced it has released its mapping.
func (s *Slot) Release() {
	s.BV = nil
	s.State = StateEmpty
}

// Seal transitions dirty -> live_owned once a bitvector under
// construction has its final bits.
func (s *Slot) Seal(bv *Bitvector) {
	s.BV = bv
	s.State = StateLiveOwned
}

// StartBuild transitions empty -> dirty.
func (s *Slot) StartBuild() {
	s.State = StateDirty
}
