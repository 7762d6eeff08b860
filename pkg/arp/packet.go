// Package arp implements Address Resolution Protocol (RFC 826) request
// construction and reply parsing, and the synchronous resolver that drives
// them over a link-layer socket.
package arp

import (
	"encoding/binary"
	"fmt"

	"github.com/namelessChessfoot/tcpfetch/pkg/common"
)

// ARP packet format (RFC 826), fixed to Ethernet/IPv4:
//  0                   1                   2                   3
//  0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// |        Hardware Type          |        Protocol Type          |
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// | HW Addr Len | Proto Addr Len|          Operation            |
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// |                 Sender Hardware Address (6 bytes)             |
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// |                 Sender Protocol Address (4 bytes)             |
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// |                 Target Hardware Address (6 bytes)             |
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// |                 Target Protocol Address (4 bytes)             |
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+

const (
	// PacketSize is the size of an ARP packet for Ethernet/IPv4 (28 bytes).
	PacketSize = 28

	// HardwareTypeEthernet is the ARP hardware type for Ethernet.
	HardwareTypeEthernet = 1

	// ProtocolTypeIPv4 is the ARP protocol type for IPv4 (same value as
	// the IPv4 EtherType).
	ProtocolTypeIPv4 = 0x0800
)

// Operation is the ARP opcode.
type Operation uint16

const (
	OperationRequest Operation = 1
	OperationReply   Operation = 2
)

func (op Operation) String() string {
	switch op {
	case OperationRequest:
		return "Request"
	case OperationReply:
		return "Reply"
	default:
		return fmt.Sprintf("Unknown(%d)", uint16(op))
	}
}

// Packet is an ARP packet restricted to Ethernet hardware addresses and
// IPv4 protocol addresses, the only combination this stack ever sends or
// expects to receive.
type Packet struct {
	HardwareType   uint16
	ProtocolType   uint16
	HardwareLength uint8
	ProtocolLength uint8
	Operation      Operation
	SenderMAC      common.MACAddress
	SenderIP       common.IPv4Address
	TargetMAC      common.MACAddress
	TargetIP       common.IPv4Address
}

// fixedField names one of the packet's fixed (non-address) header values,
// so Parse can validate all four in a loop instead of four standalone ifs.
type fixedField struct {
	name     string
	got      uint16
	expected uint16
}

// Parse parses an ARP packet from raw bytes, rejecting anything that is not
// Ethernet/IPv4.
func Parse(data []byte) (*Packet, error) {
	if len(data) < PacketSize {
		return nil, fmt.Errorf("ARP packet too short: %d bytes (expected %d)", len(data), PacketSize)
	}

	packet := &Packet{
		HardwareType:   binary.BigEndian.Uint16(data[0:2]),
		ProtocolType:   binary.BigEndian.Uint16(data[2:4]),
		HardwareLength: data[4],
		ProtocolLength: data[5],
		Operation:      Operation(binary.BigEndian.Uint16(data[6:8])),
	}

	fixed := []fixedField{
		{"hardware type", packet.HardwareType, HardwareTypeEthernet},
		{"protocol type", packet.ProtocolType, ProtocolTypeIPv4},
		{"hardware address length", uint16(packet.HardwareLength), 6},
		{"protocol address length", uint16(packet.ProtocolLength), 4},
	}
	for _, f := range fixed {
		if f.got != f.expected {
			return nil, fmt.Errorf("invalid ARP %s: %d (want %d)", f.name, f.got, f.expected)
		}
	}

	packet.SenderMAC = common.MACFrom(data[8:14])
	packet.SenderIP = common.IPv4From(data[14:18])
	packet.TargetMAC = common.MACFrom(data[18:24])
	packet.TargetIP = common.IPv4From(data[24:28])

	return packet, nil
}

// Serialize converts the ARP packet to bytes for transmission, built as a
// single append chain rather than indexed writes into a preallocated
// buffer.
func (p *Packet) Serialize() []byte {
	buf := make([]byte, 0, PacketSize)
	buf = binary.BigEndian.AppendUint16(buf, p.HardwareType)
	buf = binary.BigEndian.AppendUint16(buf, p.ProtocolType)
	buf = append(buf, p.HardwareLength, p.ProtocolLength)
	buf = binary.BigEndian.AppendUint16(buf, uint16(p.Operation))
	buf = p.SenderMAC.AppendTo(buf)
	buf = p.SenderIP.AppendTo(buf)
	buf = p.TargetMAC.AppendTo(buf)
	buf = p.TargetIP.AppendTo(buf)
	return buf
}

// String returns a human-readable representation of the packet.
func (p *Packet) String() string {
	return fmt.Sprintf("ARP{Op=%s, Sender=%s(%s), Target=%s(%s)}",
		p.Operation, p.SenderIP, p.SenderMAC, p.TargetIP, p.TargetMAC)
}

// NewRequest builds a "who has targetIP? tell senderIP" request.
func NewRequest(senderMAC common.MACAddress, senderIP, targetIP common.IPv4Address) *Packet {
	return &Packet{
		HardwareType:   HardwareTypeEthernet,
		ProtocolType:   ProtocolTypeIPv4,
		HardwareLength: 6,
		ProtocolLength: 4,
		Operation:      OperationRequest,
		SenderMAC:      senderMAC,
		SenderIP:       senderIP,
		TargetMAC:      common.MACAddress{},
		TargetIP:       targetIP,
	}
}

// IsReply reports whether this is an ARP reply.
func (p *Packet) IsReply() bool {
	return p.Operation == OperationReply
}
