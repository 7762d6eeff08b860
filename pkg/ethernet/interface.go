package ethernet

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"

	"github.com/namelessChessfoot/tcpfetch/pkg/common"
)

// Interface is a raw AF_PACKET link-layer socket bound to one network
// device, used to send and receive whole Ethernet frames without kernel
// transport-layer involvement.
type Interface struct {
	name       string
	fd         int
	macAddress common.MACAddress
	index      int
}

// OpenInterface opens ifname for raw frame capture and transmission. This
// requires CAP_NET_RAW (root on most systems).
func OpenInterface(ifname string) (*Interface, error) {
	iface, err := net.InterfaceByName(ifname)
	if err != nil {
		return nil, fmt.Errorf("failed to get interface %s: %w", ifname, err)
	}

	if len(iface.HardwareAddr) != 6 {
		return nil, fmt.Errorf("invalid MAC address length: %d", len(iface.HardwareAddr))
	}
	var mac common.MACAddress
	copy(mac[:], iface.HardwareAddr)

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(unix.ETH_P_ALL)))
	if err != nil {
		return nil, fmt.Errorf("failed to create raw socket: %w (you may need root/sudo)", err)
	}

	addr := &unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  iface.Index,
	}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to bind socket to interface: %w", err)
	}

	return &Interface{
		name:       ifname,
		fd:         fd,
		macAddress: mac,
		index:      iface.Index,
	}, nil
}

// Close closes the underlying socket.
func (i *Interface) Close() error {
	if i.fd >= 0 {
		return unix.Close(i.fd)
	}
	return nil
}

// Name returns the interface name.
func (i *Interface) Name() string { return i.name }

// MACAddress returns the hardware address of this interface.
func (i *Interface) MACAddress() common.MACAddress { return i.macAddress }

// Index returns the kernel interface index.
func (i *Interface) Index() int { return i.index }

// FD returns the underlying raw socket file descriptor, for callers that
// need to attach socket options (such as a BPF filter) directly.
func (i *Interface) FD() int { return i.fd }

// SetReadTimeout bounds how long ReadFrame blocks waiting for a packet.
// A zero duration clears the timeout (blocking reads).
func (i *Interface) SetReadTimeout(d time.Duration) error {
	tv := unix.NsecToTimeval(d.Nanoseconds())
	return unix.SetsockoptTimeval(i.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv)
}

// ReadFrame reads and parses the next Ethernet frame from the interface. If
// a read timeout has been set and nothing arrives in time, it returns the
// kernel's EAGAIN/EWOULDBLOCK wrapped as an error.
func (i *Interface) ReadFrame() (*Frame, error) {
	buf := make([]byte, MaxFrameSize)

	n, _, err := unix.Recvfrom(i.fd, buf, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to receive frame: %w", err)
	}

	frame, err := Parse(buf[:n])
	if err != nil {
		return nil, fmt.Errorf("failed to parse frame: %w", err)
	}

	return frame, nil
}

// WriteFrame serializes and sends frame out the interface.
func (i *Interface) WriteFrame(frame *Frame) error {
	data := frame.Serialize()

	addr := &unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  i.index,
		Halen:    6,
	}
	copy(addr.Addr[:], frame.Destination[:])

	if err := unix.Sendto(i.fd, data, 0, addr); err != nil {
		return fmt.Errorf("failed to send frame: %w", err)
	}

	return nil
}

// htons converts a 16-bit value from host to network byte order.
func htons(v uint16) uint16 {
	return (v << 8) | (v >> 8)
}

// ListInterfaces returns the names of all up, non-loopback interfaces.
func ListInterfaces() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(ifaces))
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		names = append(names, iface.Name)
	}

	return names, nil
}
