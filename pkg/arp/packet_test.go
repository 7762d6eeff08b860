package arp

import (
	"testing"

	"github.com/namelessChessfoot/tcpfetch/pkg/common"
	"github.com/namelessChessfoot/tcpfetch/pkg/ethernet"
)

func TestNewRequestSerializeParseRoundTrip(t *testing.T) {
	selfMAC := common.MACAddress{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	selfIP, _ := common.ParseIPv4("192.168.1.50")
	gatewayIP, _ := common.ParseIPv4("192.168.1.1")

	req := NewRequest(selfMAC, selfIP, gatewayIP)
	parsed, err := Parse(req.Serialize())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if parsed.Operation != OperationRequest {
		t.Errorf("Operation = %v, want Request", parsed.Operation)
	}
	if parsed.SenderMAC != selfMAC {
		t.Errorf("SenderMAC = %v, want %v", parsed.SenderMAC, selfMAC)
	}
	if parsed.SenderIP != selfIP {
		t.Errorf("SenderIP = %v, want %v", parsed.SenderIP, selfIP)
	}
	if parsed.TargetIP != gatewayIP {
		t.Errorf("TargetIP = %v, want %v", parsed.TargetIP, gatewayIP)
	}
	if parsed.TargetMAC != (common.MACAddress{}) {
		t.Errorf("TargetMAC = %v, want zero", parsed.TargetMAC)
	}
}

// TestRequestFrameShape checks that an ARP request wrapped in its Ethernet
// frame is exactly 60 bytes, broadcast to FF:FF:FF:FF:FF:FF, carries
// EtherType 0x0806, and lays out the ARP header starting at byte 14.
func TestRequestFrameShape(t *testing.T) {
	selfMAC := common.MACAddress{0xde, 0xad, 0xbe, 0xef, 0x00, 0x01}
	selfIP, _ := common.ParseIPv4("192.168.1.50")
	gatewayIP, _ := common.ParseIPv4("192.168.1.1")

	req := NewRequest(selfMAC, selfIP, gatewayIP)
	frame := ethernet.NewFrame(common.BroadcastMAC, selfMAC, common.EtherTypeARP, req.Serialize())
	out := frame.Serialize()

	if len(out) != 60 {
		t.Fatalf("frame length = %d, want 60", len(out))
	}
	for i := 0; i < 6; i++ {
		if out[i] != 0xFF {
			t.Errorf("byte %d = %#x, want 0xFF", i, out[i])
		}
	}
	if out[12] != 0x08 || out[13] != 0x06 {
		t.Errorf("EtherType bytes = %#x %#x, want 08 06", out[12], out[13])
	}

	arpBytes := out[14:42]
	parsed, err := Parse(arpBytes)
	if err != nil {
		t.Fatalf("Parse(arp section) error = %v", err)
	}
	if parsed.TargetIP != gatewayIP {
		t.Errorf("TargetIP = %v, want %v", parsed.TargetIP, gatewayIP)
	}
}

func TestParseRejectsNonEthernetHardwareType(t *testing.T) {
	data := make([]byte, PacketSize)
	data[1] = 6 // HardwareType = 6, not Ethernet(1)
	data[3] = 0x00
	data[2] = 0x08
	data[4] = 6
	data[5] = 4

	if _, err := Parse(data); err == nil {
		t.Error("Parse() should reject non-Ethernet hardware type")
	}
}
