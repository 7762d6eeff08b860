package ip

import (
	"testing"

	"github.com/namelessChessfoot/tcpfetch/pkg/common"
)

type capturingLink struct {
	sent [][]byte
}

func (c *capturingLink) Send(datagram []byte) error {
	cp := make([]byte, len(datagram))
	copy(cp, datagram)
	c.sent = append(c.sent, cp)
	return nil
}

func TestSenderFragmentsAtMTU(t *testing.T) {
	link := &capturingLink{}
	src, _ := common.ParseIPv4("10.0.0.2")
	dst, _ := common.ParseIPv4("10.0.0.1")

	sender := NewSender(link, src, common.ProtocolTCP)

	payload := make([]byte, 2000)
	if err := sender.Send(dst, payload); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if len(link.sent) != 3 {
		t.Fatalf("got %d fragments, want 3", len(link.sent))
	}

	wantSizes := []int{800, 800, 400}
	wantOffsets := []uint16{0, 100, 200}
	wantMore := []bool{true, true, false}

	var gotID uint16
	for i, raw := range link.sent {
		pkt, err := Parse(raw)
		if err != nil {
			t.Fatalf("fragment %d: Parse() error = %v", i, err)
		}
		if len(pkt.Payload) != wantSizes[i] {
			t.Errorf("fragment %d: payload size = %d, want %d", i, len(pkt.Payload), wantSizes[i])
		}
		if pkt.FragmentOffset != wantOffsets[i] {
			t.Errorf("fragment %d: offset = %d, want %d", i, pkt.FragmentOffset, wantOffsets[i])
		}
		more := pkt.Flags&FlagMoreFragments != 0
		if more != wantMore[i] {
			t.Errorf("fragment %d: MF = %v, want %v", i, more, wantMore[i])
		}
		if i == 0 {
			gotID = pkt.Identification
		} else if pkt.Identification != gotID {
			t.Errorf("fragment %d: identification = %d, want %d (all fragments of one Send share an id)", i, pkt.Identification, gotID)
		}
	}
}

// TestSenderUsesRandomIdentification checks that successive Send calls
// draw a fresh identification rather than incrementing a counter: it
// makes five single-fragment sends and fails only if every
// identification is exactly one more than the one before it.
func TestSenderUsesRandomIdentification(t *testing.T) {
	link := &capturingLink{}
	src, _ := common.ParseIPv4("10.0.0.2")
	dst, _ := common.ParseIPv4("10.0.0.1")
	sender := NewSender(link, src, common.ProtocolTCP)

	for i := 0; i < 5; i++ {
		if err := sender.Send(dst, []byte("x")); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}

	sequential := true
	var prev uint16
	for i, raw := range link.sent {
		pkt, err := Parse(raw)
		if err != nil {
			t.Fatalf("fragment %d: Parse() error = %v", i, err)
		}
		if i > 0 && pkt.Identification != prev+1 {
			sequential = false
		}
		prev = pkt.Identification
	}
	if sequential {
		t.Error("identifications were sequential across Send calls, want random draws")
	}
}
