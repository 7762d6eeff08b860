// Package ip implements IPv4 (RFC 791) datagram construction and parsing,
// fragmentation and reassembly, and the send/receive sides that move
// datagrams across the link layer.
package ip

import (
	"encoding/binary"
	"fmt"

	"github.com/namelessChessfoot/tcpfetch/pkg/common"
)

const (
	// IPv4Version is the version field value for IPv4.
	IPv4Version = 4

	// HeaderLength is the fixed IPv4 header length this stack emits and
	// expects: 20 bytes, no options (a non-goal).
	HeaderLength = 20

	// MaxPacketSize is the largest IPv4 datagram this stack will build or
	// accept.
	MaxPacketSize = 65535

	// DefaultTTL is the TTL every outgoing datagram is stamped with.
	DefaultTTL = 64
)

// Flags holds the three-bit IPv4 flags field.
type Flags uint8

const (
	FlagReserved      Flags = 1 << 2
	FlagDontFragment  Flags = 1 << 1
	FlagMoreFragments Flags = 1 << 0
)

// Packet is a parsed or to-be-serialized IPv4 datagram. There are no
// options: IHL is always 5.
type Packet struct {
	DSCP           uint8
	ECN            uint8
	TotalLength    uint16
	Identification uint16
	Flags          Flags
	FragmentOffset uint16 // in 8-byte units
	TTL            uint8
	Protocol       common.Protocol
	Checksum       uint16
	Source         common.IPv4Address
	Destination    common.IPv4Address
	Payload        []byte
}

// Parse parses an IPv4 datagram from raw bytes. It rejects non-version-4
// packets, headers shorter than 20 bytes, and headers whose IHL claims
// options are present (a non-goal of this stack).
func Parse(data []byte) (*Packet, error) {
	if len(data) < HeaderLength {
		return nil, fmt.Errorf("packet too short: %d bytes (minimum %d)", len(data), HeaderLength)
	}

	versionIHL := data[0]
	version := versionIHL >> 4
	ihl := versionIHL & 0x0F

	if version != IPv4Version {
		return nil, fmt.Errorf("invalid IP version: %d (expected %d)", version, IPv4Version)
	}
	if ihl != 5 {
		return nil, fmt.Errorf("unsupported IHL %d (only 20-byte headers, no options, are supported)", ihl)
	}

	pkt := &Packet{}
	dscpECN := data[1]
	pkt.DSCP = dscpECN >> 2
	pkt.ECN = dscpECN & 0x03

	pkt.TotalLength = binary.BigEndian.Uint16(data[2:4])
	pkt.Identification = binary.BigEndian.Uint16(data[4:6])

	flagsFragOffset := binary.BigEndian.Uint16(data[6:8])
	pkt.Flags = Flags(flagsFragOffset >> 13)
	pkt.FragmentOffset = flagsFragOffset & 0x1FFF

	pkt.TTL = data[8]
	pkt.Protocol = common.Protocol(data[9])
	pkt.Checksum = binary.BigEndian.Uint16(data[10:12])
	copy(pkt.Source[:], data[12:16])
	copy(pkt.Destination[:], data[16:20])

	// Total Length must equal what was actually received: a mismatch here
	// means either a malformed or truncated datagram. (Resolves the open
	// question left by original_source/MyIP.py's mislabeled "ttl" check,
	// which was really comparing these same two bytes.)
	if int(pkt.TotalLength) != len(data) {
		return nil, fmt.Errorf("total length mismatch: header says %d, got %d bytes", pkt.TotalLength, len(data))
	}

	pkt.Payload = data[HeaderLength:pkt.TotalLength]

	return pkt, nil
}

// Serialize renders the packet to bytes, computing TotalLength and the
// header checksum from scratch every call (no incremental updates).
func (p *Packet) Serialize() []byte {
	totalLength := HeaderLength + len(p.Payload)
	buf := make([]byte, totalLength)

	buf[0] = (IPv4Version << 4) | 5
	buf[1] = (p.DSCP << 2) | p.ECN
	binary.BigEndian.PutUint16(buf[2:4], uint16(totalLength))
	binary.BigEndian.PutUint16(buf[4:6], p.Identification)

	flagsFragOffset := (uint16(p.Flags) << 13) | (p.FragmentOffset & 0x1FFF)
	binary.BigEndian.PutUint16(buf[6:8], flagsFragOffset)

	buf[8] = p.TTL
	buf[9] = uint8(p.Protocol)
	buf[10] = 0
	buf[11] = 0
	copy(buf[12:16], p.Source[:])
	copy(buf[16:20], p.Destination[:])

	checksum := common.CalculateChecksum(buf[:HeaderLength])
	binary.BigEndian.PutUint16(buf[10:12], checksum)

	copy(buf[HeaderLength:], p.Payload)

	p.TotalLength = uint16(totalLength)
	p.Checksum = checksum

	return buf
}

// VerifyChecksum reports whether the header checksum as parsed is correct.
func (p *Packet) VerifyChecksum() bool {
	buf := make([]byte, HeaderLength)
	buf[0] = (IPv4Version << 4) | 5
	buf[1] = (p.DSCP << 2) | p.ECN
	binary.BigEndian.PutUint16(buf[2:4], p.TotalLength)
	binary.BigEndian.PutUint16(buf[4:6], p.Identification)
	flagsFragOffset := (uint16(p.Flags) << 13) | (p.FragmentOffset & 0x1FFF)
	binary.BigEndian.PutUint16(buf[6:8], flagsFragOffset)
	buf[8] = p.TTL
	buf[9] = uint8(p.Protocol)
	binary.BigEndian.PutUint16(buf[10:12], p.Checksum)
	copy(buf[12:16], p.Source[:])
	copy(buf[16:20], p.Destination[:])

	return common.CalculateChecksum(buf) == 0
}

// IsFragment reports whether this packet is part of a fragmented datagram.
func (p *Packet) IsFragment() bool {
	return p.FragmentOffset != 0 || p.Flags&FlagMoreFragments != 0
}

// String returns a human-readable representation of the packet.
func (p *Packet) String() string {
	return fmt.Sprintf("IPv4{%s -> %s, Proto=%s, TTL=%d, ID=%d, Len=%d}",
		p.Source, p.Destination, p.Protocol, p.TTL, p.Identification, p.TotalLength)
}

// NewPacket builds a packet with the stack's fixed defaults (TTL 64, no
// options, no fragmentation flags set).
func NewPacket(src, dst common.IPv4Address, id uint16, protocol common.Protocol, payload []byte) *Packet {
	return &Packet{
		Identification: id,
		TTL:            DefaultTTL,
		Protocol:       protocol,
		Source:         src,
		Destination:    dst,
		Payload:        payload,
	}
}
