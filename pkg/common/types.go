// Package common holds the wire-level types shared by every layer of the
// stack: MAC and IPv4 addresses, EtherTypes and IP protocol numbers.
package common

import (
	"encoding/binary"
	"fmt"
	"net"
)

// MACAddress is a 48-bit Ethernet hardware address.
type MACAddress [6]byte

// String returns the MAC in standard colon-hex form.
func (m MACAddress) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x",
		m[0], m[1], m[2], m[3], m[4], m[5])
}

// IsBroadcast reports whether m is FF:FF:FF:FF:FF:FF.
func (m MACAddress) IsBroadcast() bool {
	return m == BroadcastMAC
}

// MACFrom reads a MACAddress from the first 6 bytes of buf.
func MACFrom(buf []byte) MACAddress {
	var m MACAddress
	copy(m[:], buf[:6])
	return m
}

// AppendTo appends m's 6 bytes to buf and returns the extended slice, the
// same growth-friendly shape as binary.BigEndian.AppendUint16, so wire
// encoders can build a frame as one append chain instead of indexing into
// a preallocated buffer field by field.
func (m MACAddress) AppendTo(buf []byte) []byte {
	return append(buf, m[:]...)
}

// ParseMAC parses a string MAC address such as "00:11:22:33:44:55".
func ParseMAC(s string) (MACAddress, error) {
	hw, err := net.ParseMAC(s)
	if err != nil {
		return MACAddress{}, err
	}
	if len(hw) != 6 {
		return MACAddress{}, fmt.Errorf("invalid MAC address length: %d", len(hw))
	}
	var mac MACAddress
	copy(mac[:], hw)
	return mac, nil
}

// BroadcastMAC is FF:FF:FF:FF:FF:FF.
var BroadcastMAC = MACAddress{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// IPv4Address is a 32-bit IPv4 address in network byte order.
type IPv4Address [4]byte

// String returns dotted-decimal form.
func (ip IPv4Address) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", ip[0], ip[1], ip[2], ip[3])
}

// ToUint32 returns the address as a big-endian uint32.
func (ip IPv4Address) ToUint32() uint32 {
	return binary.BigEndian.Uint32(ip[:])
}

// IPv4From reads an IPv4Address from the first 4 bytes of buf.
func IPv4From(buf []byte) IPv4Address {
	var ip IPv4Address
	copy(ip[:], buf[:4])
	return ip
}

// AppendTo appends ip's 4 bytes to buf and returns the extended slice.
func (ip IPv4Address) AppendTo(buf []byte) []byte {
	return append(buf, ip[:]...)
}

// ParseIPv4 parses a dotted-decimal IPv4 address.
func ParseIPv4(s string) (IPv4Address, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return IPv4Address{}, fmt.Errorf("invalid IP address: %s", s)
	}
	v4 := ip.To4()
	if v4 == nil {
		return IPv4Address{}, fmt.Errorf("not an IPv4 address: %s", s)
	}
	var addr IPv4Address
	copy(addr[:], v4)
	return addr, nil
}

// EtherType identifies the payload protocol carried by an Ethernet frame.
type EtherType uint16

// Ethertypes used by this stack.
const (
	EtherTypeIPv4 EtherType = 0x0800
	EtherTypeARP  EtherType = 0x0806
)

func (et EtherType) String() string {
	switch et {
	case EtherTypeIPv4:
		return "IPv4"
	case EtherTypeARP:
		return "ARP"
	default:
		return fmt.Sprintf("Unknown(0x%04x)", uint16(et))
	}
}

// Protocol identifies the payload protocol carried by an IPv4 datagram.
type Protocol uint8

// IP protocol numbers used by this stack.
const (
	ProtocolTCP Protocol = 6
)

func (p Protocol) String() string {
	switch p {
	case ProtocolTCP:
		return "TCP"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(p))
	}
}
