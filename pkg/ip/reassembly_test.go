package ip

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestReassemblyOutOfOrder checks that a 2000-byte payload fragmented at
// MTU 800 into three fragments (800, 800, 400 bytes; offsets 0, 100, 200
// in 8-byte units; MF 1, 1, 0), delivered out of order, reassembles to
// the original 2000 bytes.
func TestReassemblyOutOfOrder(t *testing.T) {
	payload := make([]byte, 2000)
	for i := range payload {
		payload[i] = byte(i % 256)
	}

	const id = uint16(42)
	frag1 := payload[0:800]
	frag2 := payload[800:1600]
	frag3 := payload[1600:2000]

	r := NewReassembler()

	_, done := r.Consume(id, 200, false, frag3) // third, delivered first
	require.False(t, done, "slot should not be complete after one fragment")

	_, done = r.Consume(id, 0, true, frag1) // first
	require.False(t, done, "slot should not be complete after two fragments")

	assembled, done := r.Consume(id, 100, true, frag2) // second, completes it
	require.True(t, done, "slot should complete once all fragments arrive")
	require.True(t, bytes.Equal(assembled, payload), "reassembled payload must match original")
}

func TestReassemblyRejectsGap(t *testing.T) {
	r := NewReassembler()

	_, done := r.Consume(1, 0, true, make([]byte, 800))
	require.False(t, done)

	// Skip straight to the final fragment at offset 1600 (200*8), leaving
	// a gap between byte 800 and byte 1600.
	_, done = r.Consume(1, 200, false, make([]byte, 400))
	require.False(t, done, "a gap must never be reported as complete")
}

func TestReassemblySingleFragmentDatagram(t *testing.T) {
	r := NewReassembler()
	data := []byte("hello world")

	assembled, done := r.Consume(7, 0, false, data)
	require.True(t, done)
	require.Equal(t, data, assembled)
}
