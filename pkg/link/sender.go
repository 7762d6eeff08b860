// Package link combines a raw Ethernet interface with ARP resolution into
// the single "send this IP datagram to the gateway" operation the IP layer
// needs. It mirrors what original_source/MyChallenge.py's EtherSend class
// does: resolve the gateway's MAC once, then wrap every outgoing IP
// datagram in an Ethernet frame addressed to it.
package link

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/namelessChessfoot/tcpfetch/pkg/arp"
	"github.com/namelessChessfoot/tcpfetch/pkg/common"
	"github.com/namelessChessfoot/tcpfetch/pkg/ethernet"
)

// Sender resolves the default gateway's MAC address once and thereafter
// frames and transmits raw IP datagrams to it.
type Sender struct {
	iface      *ethernet.Interface
	resolver   *arp.Resolver
	selfMAC    common.MACAddress
	selfIP     common.IPv4Address
	gatewayIP  common.IPv4Address
	gatewayMAC common.MACAddress
	log        *logrus.Entry
}

// NewSender opens ifname, resolves the gateway's MAC address via ARP, and
// returns a Sender ready to carry IP datagrams to it.
func NewSender(ifname string, selfIP, gatewayIP common.IPv4Address, log *logrus.Entry) (*Sender, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	iface, err := ethernet.OpenInterface(ifname)
	if err != nil {
		return nil, fmt.Errorf("open interface %s: %w", ifname, err)
	}

	resolver, err := arp.NewResolver(iface, log.WithField("component", "arp"))
	if err != nil {
		iface.Close()
		return nil, fmt.Errorf("create ARP resolver: %w", err)
	}

	gatewayMAC, err := resolver.Resolve(iface.MACAddress(), selfIP, gatewayIP)
	if err != nil {
		iface.Close()
		return nil, fmt.Errorf("resolve gateway %s: %w", gatewayIP, err)
	}

	log.WithFields(logrus.Fields{
		"interface": ifname,
		"gateway":   gatewayIP,
		"gatewayMAC": gatewayMAC,
	}).Info("gateway resolved")

	return &Sender{
		iface:      iface,
		resolver:   resolver,
		selfMAC:    iface.MACAddress(),
		selfIP:     selfIP,
		gatewayIP:  gatewayIP,
		gatewayMAC: gatewayMAC,
		log:        log,
	}, nil
}

// Close releases the underlying link socket.
func (s *Sender) Close() error {
	return s.iface.Close()
}

// SelfMAC returns this host's own hardware address.
func (s *Sender) SelfMAC() common.MACAddress { return s.selfMAC }

// Send wraps an IP datagram in an Ethernet frame addressed to the gateway
// and transmits it. Datagrams larger than the Ethernet MTU are rejected:
// fragmentation happens one layer up, in pkg/ip, before reaching here.
func (s *Sender) Send(datagram []byte) error {
	if len(datagram) > ethernet.MaxPayloadSize {
		return fmt.Errorf("cannot send %d bytes in an Ethernet frame (max %d)", len(datagram), ethernet.MaxPayloadSize)
	}

	frame := ethernet.NewFrame(s.gatewayMAC, s.selfMAC, common.EtherTypeIPv4, datagram)
	return s.iface.WriteFrame(frame)
}

// Interface exposes the underlying link socket.
func (s *Sender) Interface() *ethernet.Interface {
	return s.iface
}
