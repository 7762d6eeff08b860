package ethernet

import (
	"bytes"
	"testing"

	"github.com/namelessChessfoot/tcpfetch/pkg/common"
)

func TestParse(t *testing.T) {
	data := []byte{
		// Destination MAC (6 bytes)
		0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
		// Source MAC (6 bytes)
		0x00, 0x11, 0x22, 0x33, 0x44, 0x55,
		// EtherType (2 bytes) - IPv4
		0x08, 0x00,
		// Payload
		0x45, 0x00, 0x00, 0x54,
	}

	frame, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if frame.Destination != common.BroadcastMAC {
		t.Errorf("Destination = %v, want broadcast", frame.Destination)
	}

	expectedSrc := common.MACAddress{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	if frame.Source != expectedSrc {
		t.Errorf("Source = %v, want %v", frame.Source, expectedSrc)
	}

	if frame.EtherType != common.EtherTypeIPv4 {
		t.Errorf("EtherType = %v, want %v", frame.EtherType, common.EtherTypeIPv4)
	}

	expectedPayload := []byte{0x45, 0x00, 0x00, 0x54}
	if !bytes.Equal(frame.Payload, expectedPayload) {
		t.Errorf("Payload = %v, want %v", frame.Payload, expectedPayload)
	}
}

func TestParseTooShort(t *testing.T) {
	data := []byte{0x00, 0x11, 0x22}

	if _, err := Parse(data); err == nil {
		t.Error("Parse() should return error for too short frame")
	}
}

func TestSerializePadsToMinPayload(t *testing.T) {
	frame := NewFrame(
		common.BroadcastMAC,
		common.MACAddress{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		common.EtherTypeARP,
		[]byte{0x01, 0x02},
	)

	out := frame.Serialize()
	if len(out) != MinFrameSize-4 { // no FCS appended, so 60 not 64
		t.Fatalf("Serialize() length = %d, want %d", len(out), MinFrameSize-4)
	}
	if out[len(out)-1] != 0x00 {
		t.Errorf("expected zero padding, got %#x", out[len(out)-1])
	}
}

func TestSerializeParseRoundTrip(t *testing.T) {
	original := NewFrame(
		common.MACAddress{1, 2, 3, 4, 5, 6},
		common.MACAddress{7, 8, 9, 10, 11, 12},
		common.EtherTypeIPv4,
		bytes.Repeat([]byte{0xAB}, 100),
	)

	parsed, err := Parse(original.Serialize())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if parsed.Destination != original.Destination || parsed.Source != original.Source {
		t.Errorf("round trip changed addresses: %+v", parsed)
	}
	if !bytes.Equal(parsed.Payload, original.Payload) {
		t.Errorf("round trip changed payload")
	}
}
