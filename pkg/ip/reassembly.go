package ip

import "sort"

// fragmentPiece is one (byte-offset, data) pair belonging to a reassembly
// slot.
type fragmentPiece struct {
	offset int
	data   []byte
}

// reassemblySlot tracks the fragments seen for one IP identification.
// totalLength is -1 ("unknown") until the final fragment (MF=0) arrives,
// at which point it becomes offset*8 + len(data) for that fragment.
type reassemblySlot struct {
	totalLength int
	fragments   []fragmentPiece
}

func newReassemblySlot() *reassemblySlot {
	return &reassemblySlot{totalLength: -1}
}

// add records one fragment's payload at its byte offset, and if it is the
// final fragment (more=false), fixes totalLength.
func (s *reassemblySlot) add(byteOffset int, data []byte, more bool) {
	s.fragments = append(s.fragments, fragmentPiece{offset: byteOffset, data: data})
	if !more {
		s.totalLength = byteOffset + len(data)
	}
}

// complete reports whether the slot's fragments, sorted by offset, cover
// [0, totalLength) with no gaps and no overlap, and returns the assembled
// bytes if so.
func (s *reassemblySlot) complete() ([]byte, bool) {
	if s.totalLength < 0 {
		return nil, false
	}

	pieces := make([]fragmentPiece, len(s.fragments))
	copy(pieces, s.fragments)
	sort.Slice(pieces, func(i, j int) bool { return pieces[i].offset < pieces[j].offset })

	assembled := make([]byte, s.totalLength)
	covered := 0
	for _, p := range pieces {
		if p.offset != covered {
			return nil, false // gap or overlap
		}
		end := p.offset + len(p.data)
		if end > s.totalLength {
			return nil, false
		}
		copy(assembled[p.offset:end], p.data)
		covered = end
	}

	return assembled, covered == s.totalLength
}

// Reassembler holds one reassembly slot per IP identification currently in
// flight. A connection only ever reassembles traffic from a single peer,
// so a slot is addressed purely by identification, per spec §3.
type Reassembler struct {
	slots map[uint16]*reassemblySlot
}

// NewReassembler creates an empty reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{slots: make(map[uint16]*reassemblySlot)}
}

// Consume feeds one fragment into its slot and, if the slot just became
// complete, returns the assembled payload and drops the slot.
func (r *Reassembler) Consume(id uint16, fragmentOffsetUnits uint16, moreFragments bool, data []byte) ([]byte, bool) {
	slot, ok := r.slots[id]
	if !ok {
		slot = newReassemblySlot()
		r.slots[id] = slot
	}

	byteOffset := int(fragmentOffsetUnits) * 8
	slot.add(byteOffset, data, moreFragments)

	if assembled, done := slot.complete(); done {
		delete(r.slots, id)
		return assembled, true
	}

	return nil, false
}
