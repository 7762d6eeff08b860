// Package ethernet implements Ethernet II frame handling and the raw
// AF_PACKET link socket used to send and receive them.
package ethernet

import (
	"encoding/binary"
	"fmt"

	"github.com/namelessChessfoot/tcpfetch/pkg/common"
)

// Ethernet frame format (IEEE 802.3):
// +-------------------+-------------------+----------+---------+-----+
// | Destination (6B)  | Source (6B)       | Type (2B)| Payload | FCS |
// +-------------------+-------------------+----------+---------+-----+
//
// Raw AF_PACKET captures on Linux never carry the FCS trailer, so this
// package neither parses nor appends one.

const (
	// HeaderSize is the size of an Ethernet header (14 bytes).
	HeaderSize = 14

	// MinFrameSize is the minimum Ethernet frame size including FCS (64 bytes).
	MinFrameSize = 64

	// MaxFrameSize is the maximum Ethernet frame size including FCS (1518 bytes).
	MaxFrameSize = 1518

	// MinPayloadSize is the minimum payload size (46 bytes); shorter
	// payloads are zero-padded on the wire.
	MinPayloadSize = 46

	// MaxPayloadSize is the maximum payload size (1500 bytes, MTU).
	MaxPayloadSize = 1500
)

// Frame represents an Ethernet II frame.
type Frame struct {
	Destination common.MACAddress
	Source      common.MACAddress
	EtherType   common.EtherType
	Payload     []byte
}

// Parse parses an Ethernet frame from raw bytes read off the wire.
func Parse(data []byte) (*Frame, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("ethernet frame too short: %d bytes (want at least %d)", len(data), HeaderSize)
	}

	return &Frame{
		Destination: common.MACFrom(data[0:6]),
		Source:      common.MACFrom(data[6:12]),
		EtherType:   common.EtherType(binary.BigEndian.Uint16(data[12:14])),
		Payload:     data[HeaderSize:],
	}, nil
}

// wireSize returns the on-wire size for a frame carrying payloadLen bytes
// of payload, accounting for the minimum-payload zero pad.
func wireSize(payloadLen int) int {
	if payloadLen < MinPayloadSize {
		payloadLen = MinPayloadSize
	}
	return HeaderSize + payloadLen
}

// Serialize converts the frame to bytes for transmission, padding the
// payload up to MinPayloadSize with zero bytes when it is shorter. It
// builds the frame as a single append chain rather than writing into a
// preallocated buffer field by field.
func (f *Frame) Serialize() []byte {
	buf := make([]byte, 0, wireSize(len(f.Payload)))
	buf = f.Destination.AppendTo(buf)
	buf = f.Source.AppendTo(buf)
	buf = binary.BigEndian.AppendUint16(buf, uint16(f.EtherType))
	buf = append(buf, f.Payload...)

	if pad := MinPayloadSize - len(f.Payload); pad > 0 {
		buf = append(buf, make([]byte, pad)...)
	}

	return buf
}

// Size returns the total size of the serialized frame in bytes.
func (f *Frame) Size() int {
	return wireSize(len(f.Payload))
}

// String returns a human-readable representation of the frame.
func (f *Frame) String() string {
	return fmt.Sprintf("Ethernet{Dst=%s, Src=%s, Type=%s, PayloadLen=%d}",
		f.Destination, f.Source, f.EtherType, len(f.Payload))
}

// IsBroadcast reports whether this frame is addressed to the broadcast MAC.
func (f *Frame) IsBroadcast() bool {
	return f.Destination.IsBroadcast()
}

// NewFrame creates a new Ethernet frame.
func NewFrame(dst, src common.MACAddress, etherType common.EtherType, payload []byte) *Frame {
	return &Frame{
		Destination: dst,
		Source:      src,
		EtherType:   etherType,
		Payload:     payload,
	}
}
