package arp

import (
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"

	"github.com/sirupsen/logrus"

	"github.com/namelessChessfoot/tcpfetch/pkg/common"
	"github.com/namelessChessfoot/tcpfetch/pkg/ethernet"
)

const (
	// maxRetries is how many ARP requests are sent before giving up.
	maxRetries = 3

	// replyWindow is how long each request waits for a matching reply.
	replyWindow = 500 * time.Millisecond
)

// Resolver resolves IPv4 addresses to MAC addresses over a link socket. It
// runs synchronously on the caller's goroutine: there is no background
// listener, matching the single-threaded cooperative scheduling the rest of
// this stack uses.
type Resolver struct {
	iface *ethernet.Interface
	log   *logrus.Entry
}

// NewResolver creates a Resolver bound to iface and attaches a kernel BPF
// filter that admits only ARP-reply frames, so userspace never has to sift
// through unrelated traffic arriving on the raw socket.
func NewResolver(iface *ethernet.Interface, log *logrus.Entry) (*Resolver, error) {
	if err := attachARPReplyFilter(iface); err != nil {
		return nil, fmt.Errorf("attach ARP filter: %w", err)
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Resolver{iface: iface, log: log}, nil
}

// attachARPReplyFilter classic-BPF filters the link socket down to frames
// whose EtherType is ARP (offset 12, 2 bytes) and whose ARP operation is
// Reply (offset 14+6=20, 2 bytes). Everything else is dropped in the
// kernel before it reaches Recvfrom.
func attachARPReplyFilter(iface *ethernet.Interface) error {
	const (
		offEtherType = 12
		offARPOp     = ethernet.HeaderSize + 6
	)

	program := []bpf.Instruction{
		bpf.LoadAbsolute{Off: offEtherType, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(common.EtherTypeARP), SkipTrue: 0, SkipFalse: 3},
		bpf.LoadAbsolute{Off: offARPOp, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(OperationReply), SkipTrue: 0, SkipFalse: 1},
		bpf.RetConstant{Val: ethernet.MaxFrameSize},
		bpf.RetConstant{Val: 0},
	}

	assembled, err := bpf.Assemble(program)
	if err != nil {
		return fmt.Errorf("assemble BPF program: %w", err)
	}

	sockFilter := make([]unix.SockFilter, len(assembled))
	for i, inst := range assembled {
		sockFilter[i] = unix.SockFilter{
			Code: inst.Op,
			Jt:   inst.Jt,
			Jf:   inst.Jf,
			K:    inst.K,
		}
	}

	fprog := unix.SockFprog{
		Len:    uint16(len(sockFilter)),
		Filter: (*unix.SockFilter)(unsafe.Pointer(&sockFilter[0])),
	}

	return unix.SetsockoptSockFprog(iface.FD(), unix.SOL_SOCKET, unix.SO_ATTACH_FILTER, &fprog)
}

// Resolve finds the MAC address owning targetIP, retrying up to maxRetries
// times with a replyWindow timeout each attempt.
func (r *Resolver) Resolve(selfMAC common.MACAddress, selfIP, targetIP common.IPv4Address) (common.MACAddress, error) {
	request := NewRequest(selfMAC, selfIP, targetIP)
	requestFrame := ethernet.NewFrame(common.BroadcastMAC, selfMAC, common.EtherTypeARP, request.Serialize())

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		r.log.WithFields(logrus.Fields{"target": targetIP, "attempt": attempt}).Debug("sending ARP request")

		if err := r.iface.WriteFrame(requestFrame); err != nil {
			lastErr = fmt.Errorf("send ARP request: %w", err)
			continue
		}

		if err := r.iface.SetReadTimeout(replyWindow); err != nil {
			lastErr = fmt.Errorf("set ARP read timeout: %w", err)
			continue
		}

		mac, found, err := r.awaitReply(selfIP, targetIP, time.Now().Add(replyWindow))
		if err != nil {
			lastErr = err
			continue
		}
		if found {
			r.log.WithFields(logrus.Fields{"target": targetIP, "mac": mac}).Debug("ARP resolved")
			return mac, nil
		}
		lastErr = fmt.Errorf("no ARP reply for %s within %s", targetIP, replyWindow)
	}

	return common.MACAddress{}, fmt.Errorf("ARP resolution of %s failed after %d attempts: %w", targetIP, maxRetries, lastErr)
}

// awaitReply reads frames (already kernel-filtered to ARP replies) until it
// sees one naming targetIP as the sender, or deadline passes.
func (r *Resolver) awaitReply(selfIP, targetIP common.IPv4Address, deadline time.Time) (common.MACAddress, bool, error) {
	for time.Now().Before(deadline) {
		frame, err := r.iface.ReadFrame()
		if err != nil {
			// Read timeout: stop polling, let the caller retry.
			return common.MACAddress{}, false, nil
		}

		packet, err := Parse(frame.Payload)
		if err != nil {
			continue
		}
		if !packet.IsReply() {
			continue
		}
		if packet.SenderIP != targetIP {
			continue
		}
		if packet.TargetIP != selfIP {
			continue
		}

		return packet.SenderMAC, true, nil
	}

	return common.MACAddress{}, false, nil
}
