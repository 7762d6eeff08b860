package ip

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/namelessChessfoot/tcpfetch/pkg/common"
)

// FragmentMTU is the payload bytes per IP fragment. It must be a multiple
// of 8 so fragment offsets (stored in 8-byte units) stay exact. 800 is
// conservative: well under the ~1480-byte ceiling the Ethernet MTU leaves
// for an IP payload. A var, not a const, so internal/config can override
// it at startup.
var FragmentMTU = 800

// linkSender is the narrow interface pkg/ip needs from pkg/link: hand a
// ready-to-go IPv4 datagram to the Ethernet layer.
type linkSender interface {
	Send(datagram []byte) error
}

// Sender fragments outgoing payloads into MTU-sized IPv4 datagrams and
// hands each one to the link layer.
type Sender struct {
	link     linkSender
	localIP  common.IPv4Address
	protocol common.Protocol
}

// randomIdentification picks a random 16-bit IPv4 identification value.
// Every datagram family (a payload and the fragments it splits into)
// shares one draw, picked fresh per Send call so identifications aren't
// guessable across connections.
func randomIdentification() uint16 {
	var b [2]byte
	rand.Read(b[:])
	return binary.BigEndian.Uint16(b[:])
}

// NewSender creates a Sender that frames traffic from localIP as protocol
// (always TCP in this stack) and transmits through link.
func NewSender(link linkSender, localIP common.IPv4Address, protocol common.Protocol) *Sender {
	return &Sender{link: link, localIP: localIP, protocol: protocol}
}

// Send fragments data (an already-serialized TCP segment) into one or more
// IPv4 datagrams addressed to dst, and transmits each in order.
func (s *Sender) Send(dst common.IPv4Address, data []byte) error {
	id := randomIdentification()

	if len(data) == 0 {
		return s.sendFragment(dst, id, 0, false, nil)
	}

	for offset := 0; offset < len(data); offset += FragmentMTU {
		end := offset + FragmentMTU
		more := true
		if end >= len(data) {
			end = len(data)
			more = false
		}

		if err := s.sendFragment(dst, id, offset, more, data[offset:end]); err != nil {
			return err
		}
	}

	return nil
}

func (s *Sender) sendFragment(dst common.IPv4Address, id uint16, byteOffset int, more bool, payload []byte) error {
	pkt := NewPacket(s.localIP, dst, id, s.protocol, payload)
	pkt.FragmentOffset = uint16(byteOffset / 8)
	if more {
		pkt.Flags = FlagMoreFragments
	}

	datagram := pkt.Serialize()
	if err := s.link.Send(datagram); err != nil {
		return fmt.Errorf("send IP fragment (id=%d offset=%d): %w", id, byteOffset, err)
	}

	return nil
}
