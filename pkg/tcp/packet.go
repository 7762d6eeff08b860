// Package tcp implements the client-side TCP (RFC 793) state machine this
// stack drives over the IP layer: segment construction, sequence-number
// bookkeeping with 32-bit wraparound, congestion control, and the
// handshake/data/teardown engine itself.
package tcp

import (
	"encoding/binary"
	"fmt"

	"github.com/namelessChessfoot/tcpfetch/pkg/common"
)

const (
	// HeaderLength is the fixed TCP header length this stack emits and
	// expects: 20 bytes, data offset 5, no options (a non-goal).
	HeaderLength = 20

	// DefaultWindow is the window size advertised in every segment.
	DefaultWindow = 65535
)

// TCP control flags, canonical single-bit-per-flag layout (RFC 793).
const (
	FlagFIN uint8 = 1 << 0
	FlagSYN uint8 = 1 << 1
	FlagRST uint8 = 1 << 2
	FlagPSH uint8 = 1 << 3
	FlagACK uint8 = 1 << 4
	FlagURG uint8 = 1 << 5
)

// Segment is a TCP segment with 32-bit wire sequence/ack numbers (the
// engine reconstructs 64-bit internal counters from these via Lift).
type Segment struct {
	SourcePort      uint16
	DestinationPort uint16
	SequenceNumber  uint32
	AckNumber       uint32
	Flags           uint8
	WindowSize      uint16
	Checksum        uint16
	UrgentPointer   uint16
	Data            []byte
}

// Parse parses a TCP segment from raw bytes. Data offset must be exactly
// 5 (20-byte header, no options).
func Parse(data []byte) (*Segment, error) {
	if len(data) < HeaderLength {
		return nil, fmt.Errorf("TCP segment too short: %d bytes (minimum %d)", len(data), HeaderLength)
	}

	seg := &Segment{
		SourcePort:      binary.BigEndian.Uint16(data[0:2]),
		DestinationPort: binary.BigEndian.Uint16(data[2:4]),
		SequenceNumber:  binary.BigEndian.Uint32(data[4:8]),
		AckNumber:       binary.BigEndian.Uint32(data[8:12]),
	}

	dataOffset := data[12] >> 4
	if dataOffset != 5 {
		return nil, fmt.Errorf("unsupported data offset %d (only 20-byte headers, no options, are supported)", dataOffset)
	}
	seg.Flags = data[13]
	seg.WindowSize = binary.BigEndian.Uint16(data[14:16])
	seg.Checksum = binary.BigEndian.Uint16(data[16:18])
	seg.UrgentPointer = binary.BigEndian.Uint16(data[18:20])

	if len(data) > HeaderLength {
		seg.Data = make([]byte, len(data)-HeaderLength)
		copy(seg.Data, data[HeaderLength:])
	}

	return seg, nil
}

// Serialize renders the segment to bytes. The checksum field is written
// as-is; callers compute it with CalculateChecksum first.
func (s *Segment) Serialize() []byte {
	buf := make([]byte, HeaderLength+len(s.Data))

	binary.BigEndian.PutUint16(buf[0:2], s.SourcePort)
	binary.BigEndian.PutUint16(buf[2:4], s.DestinationPort)
	binary.BigEndian.PutUint32(buf[4:8], s.SequenceNumber)
	binary.BigEndian.PutUint32(buf[8:12], s.AckNumber)
	buf[12] = 5 << 4
	buf[13] = s.Flags
	binary.BigEndian.PutUint16(buf[14:16], s.WindowSize)
	binary.BigEndian.PutUint16(buf[16:18], s.Checksum)
	binary.BigEndian.PutUint16(buf[18:20], s.UrgentPointer)
	copy(buf[HeaderLength:], s.Data)

	return buf
}

// CalculateChecksum computes the TCP checksum over the pseudo-header and
// the serialized segment (with Checksum treated as zero).
func (s *Segment) CalculateChecksum(srcIP, dstIP common.IPv4Address) uint16 {
	original := s.Checksum
	s.Checksum = 0
	serialized := s.Serialize()
	s.Checksum = original

	pseudo := common.PseudoHeader{
		Source:      srcIP,
		Destination: dstIP,
		Protocol:    common.ProtocolTCP,
		Length:      uint16(len(serialized)),
	}

	combined := append(pseudo.Bytes(), serialized...)
	return common.CalculateChecksum(combined)
}

// VerifyChecksum reports whether the segment's Checksum field, as parsed,
// is correct for srcIP/dstIP.
func (s *Segment) VerifyChecksum(srcIP, dstIP common.IPv4Address) bool {
	serialized := s.Serialize()

	pseudo := common.PseudoHeader{
		Source:      srcIP,
		Destination: dstIP,
		Protocol:    common.ProtocolTCP,
		Length:      uint16(len(serialized)),
	}

	combined := append(pseudo.Bytes(), serialized...)
	return common.CalculateChecksum(combined) == 0
}

// HasFlag reports whether all bits in flag are set.
func (s *Segment) HasFlag(flag uint8) bool {
	return s.Flags&flag == flag
}

// String returns a human-readable representation of the segment.
func (s *Segment) String() string {
	return fmt.Sprintf("TCP{%d->%d, seq=%d ack=%d flags=%#02x len=%d}",
		s.SourcePort, s.DestinationPort, s.SequenceNumber, s.AckNumber, s.Flags, len(s.Data))
}
