package ip

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sirupsen/logrus"

	"github.com/namelessChessfoot/tcpfetch/pkg/common"
)

// StallTimeout is how long the receiver will go without a matching
// datagram before treating the connection as dead. A var, not a const,
// so internal/config can override it at startup.
var StallTimeout = 180 * time.Second

// ErrStalled is returned when no matching datagram has arrived for
// StallTimeout.
var ErrStalled = errors.New("ip: no datagrams received from peer within the stall timeout, connection appears stalled")

// Receiver owns a raw IPPROTO_TCP socket and reassembles the IPv4
// fragments it sees into whole TCP-bearing payloads.
type Receiver struct {
	fd          int
	localIP     common.IPv4Address
	reassembler *Reassembler
	lastRecv    time.Time
	log         *logrus.Entry
}

// NewReceiver opens a raw IPPROTO_TCP socket for localIP. This requires
// CAP_NET_RAW.
func NewReceiver(localIP common.IPv4Address, log *logrus.Entry) (*Receiver, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_RAW, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("open raw IP receive socket: %w (you may need root/sudo)", err)
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Receiver{
		fd:          fd,
		localIP:     localIP,
		reassembler: NewReassembler(),
		lastRecv:    time.Now(),
		log:         log,
	}, nil
}

// Close releases the raw socket.
func (r *Receiver) Close() error {
	return unix.Close(r.fd)
}

// SetReadTimeout bounds how long a single Recvfrom blocks.
func (r *Receiver) SetReadTimeout(d time.Duration) error {
	tv := unix.NsecToTimeval(d.Nanoseconds())
	return unix.SetsockoptTimeval(r.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv)
}

// Recv pumps the socket for up to timeout, returning every fully
// reassembled TCP-bearing payload that arrived from expectSrc addressed to
// the local IP during that window. It returns ErrStalled if no matching
// datagram has arrived in StallTimeout, regardless of how this call's own
// timeout elapses.
func (r *Receiver) Recv(expectSrc common.IPv4Address, timeout time.Duration) ([][]byte, error) {
	if err := r.SetReadTimeout(timeout); err != nil {
		return nil, fmt.Errorf("set read timeout: %w", err)
	}

	var assembled [][]byte
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		buf := make([]byte, 65535)
		n, from, err := unix.Recvfrom(r.fd, buf, 0)
		if err != nil {
			// Read timeout elapsed; nothing more to drain this slice.
			break
		}

		sa4, ok := from.(*unix.SockaddrInet4)
		if !ok {
			continue
		}
		var src common.IPv4Address
		copy(src[:], sa4.Addr[:])
		if src != expectSrc {
			continue
		}

		if time.Since(r.lastRecv) > StallTimeout {
			return assembled, ErrStalled
		}
		r.lastRecv = time.Now()

		pkt, err := Parse(buf[:n])
		if err != nil {
			r.log.WithError(err).Debug("dropping malformed IP datagram")
			continue
		}
		if !pkt.VerifyChecksum() {
			r.log.Debug("dropping IP datagram with bad checksum")
			continue
		}
		if pkt.Protocol != common.ProtocolTCP {
			continue
		}
		if pkt.Source != expectSrc || pkt.Destination != r.localIP {
			continue
		}

		more := pkt.Flags&FlagMoreFragments != 0
		if payload, done := r.reassembler.Consume(pkt.Identification, pkt.FragmentOffset, more, pkt.Payload); done {
			assembled = append(assembled, payload)
		}
	}

	if time.Since(r.lastRecv) > StallTimeout {
		return assembled, ErrStalled
	}

	return assembled, nil
}
