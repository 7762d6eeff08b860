package tcp

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/namelessChessfoot/tcpfetch/pkg/common"
	"github.com/namelessChessfoot/tcpfetch/pkg/ip"
	"github.com/namelessChessfoot/tcpfetch/pkg/sendbuffer"
)

// HandshakeAttemptTimeout is how long a single SYN gets to draw a
// SYN+ACK before the handshake retries. internal/config overrides it at
// startup (derived from the configured total handshake timeout divided
// by handshakeMaxAttempts).
var HandshakeAttemptTimeout = 3 * time.Second

// handshakeMaxAttempts bounds the handshake to three SYNs (roughly nine
// seconds total) before giving up.
const handshakeMaxAttempts = 3

// receivePollInterval is how long a single pass through the receive
// phase blocks waiting for a datagram.
const receivePollInterval = 1 * time.Millisecond

// ErrHandshakeFailed is returned when no SYN+ACK arrives within
// handshakeMaxAttempts attempts.
var ErrHandshakeFailed = errors.New("tcp: handshake failed, no SYN+ACK received after 3 attempts")

// ipSender is the narrow interface the connection needs from pkg/ip to
// transmit a serialized TCP segment.
type ipSender interface {
	Send(dst common.IPv4Address, data []byte) error
}

// ipReceiver is the narrow interface the connection needs from pkg/ip to
// collect reassembled TCP-bearing payloads.
type ipReceiver interface {
	Recv(expectSrc common.IPv4Address, timeout time.Duration) ([][]byte, error)
}

// Connection drives one client-side TCP connection end to end: the
// three-way handshake, a four-phase transmit/FIN/retransmit/receive data
// loop, and FIN-based teardown. It never listens or accepts; it is always
// the active opener.
type Connection struct {
	localIP    common.IPv4Address
	localPort  uint16
	remoteIP   common.IPv4Address
	remotePort uint16

	mySeq         uint64
	myAck         uint64
	serverSeq     uint64
	serverAck     uint64
	myFinSent     bool
	serverFinSeen bool
	nextAck       uint64

	cwnd    *CongestionWindow
	sendBuf *sendbuffer.SendBuffer
	recvBuf map[uint64]*Segment

	sender   ipSender
	receiver ipReceiver

	state State
	log   *logrus.Entry
	mtr   *Metrics

	startTime       time.Time
	lastProgressLog time.Time
}

// progressLogInterval is how often Run's data loop emits a debug-level
// progress line, mirroring MyTCP.py's periodic download printout.
const progressLogInterval = 3 * time.Second

// NewConnection builds a connection endpoint for the given four-tuple,
// driven over sender/receiver. log and mtr may be nil.
func NewConnection(localIP common.IPv4Address, localPort uint16, remoteIP common.IPv4Address, remotePort uint16, sender *ip.Sender, receiver *ip.Receiver, log *logrus.Entry, mtr *Metrics) *Connection {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if mtr == nil {
		mtr = NewMetrics()
	}

	return &Connection{
		localIP:    localIP,
		localPort:  localPort,
		remoteIP:   remoteIP,
		remotePort: remotePort,
		cwnd:       NewCongestionWindow(),
		sendBuf:    sendbuffer.New(),
		recvBuf:    make(map[uint64]*Segment),
		sender:     sender,
		receiver:   receiver,
		state:      StateClosed,
		log:        log,
		mtr:        mtr,
	}
}

// generateISN picks a random 32-bit initial sequence number.
func generateISN() uint32 {
	var b [4]byte
	rand.Read(b[:])
	return binary.BigEndian.Uint32(b[:])
}

// Metrics returns the connection's instrument set, so a caller can
// register it against a registry and log a summary once the run ends.
func (c *Connection) Metrics() *Metrics {
	return c.mtr
}

// Handshake performs the active-open three-way handshake: send SYN, wait
// up to HandshakeAttemptTimeout for a matching SYN+ACK, retry up to
// handshakeMaxAttempts times, then send the final ACK. It returns
// ErrHandshakeFailed if no SYN+ACK arrives in time.
func (c *Connection) Handshake() error {
	c.mySeq = uint64(generateISN())
	c.state = StateSynSent

	for attempt := 1; attempt <= handshakeMaxAttempts; attempt++ {
		c.log.WithFields(logrus.Fields{"attempt": attempt, "iss": c.mySeq}).Debug("sending SYN")

		syn := c.buildSegment(FlagSYN, c.mySeq, 0, nil)
		if err := c.transmit(syn); err != nil {
			return fmt.Errorf("send SYN: %w", err)
		}
		c.mtr.segmentsSent.Inc()

		attemptDeadline := time.Now().Add(HandshakeAttemptTimeout)
		for time.Now().Before(attemptDeadline) {
			datagrams, err := c.receiver.Recv(c.remoteIP, receivePollInterval)
			if err != nil && !errors.Is(err, ip.ErrStalled) {
				return fmt.Errorf("receive during handshake: %w", err)
			}

			for _, dgram := range datagrams {
				seg, perr := Parse(dgram)
				if perr != nil {
					continue
				}
				if !c.addressedToUs(seg) {
					continue
				}
				if !seg.VerifyChecksum(c.remoteIP, c.localIP) {
					continue
				}
				if !seg.HasFlag(FlagSYN|FlagACK) || seg.AckNumber != uint32(c.mySeq+1) {
					continue
				}

				c.serverSeq = uint64(seg.SequenceNumber) + 1
				c.myAck = c.serverSeq
				c.nextAck = c.serverSeq
				c.mySeq++

				ack := c.buildSegment(FlagACK, c.mySeq, c.myAck, nil)
				if err := c.transmit(ack); err != nil {
					return fmt.Errorf("send handshake ACK: %w", err)
				}
				c.mtr.segmentsSent.Inc()

				c.state = StateEstablished
				c.log.WithFields(logrus.Fields{"server_seq": c.serverSeq, "my_seq": c.mySeq}).Debug("handshake established")
				return nil
			}
		}

		c.log.WithField("attempt", attempt).Warn("no SYN+ACK within attempt window, retrying")
	}

	return ErrHandshakeFailed
}

// Run drives the data exchange loop to completion: it queues request as
// the only outbound payload, runs the transmit/FIN/retransmit/receive
// phases until both sides have exchanged FINs and every byte is
// accounted for, and returns every byte delivered by the peer.
func (c *Connection) Run(request []byte) ([]byte, error) {
	pending := append([]byte(nil), request...)
	var delivered bytes.Buffer

	c.startTime = time.Now()
	c.lastProgressLog = c.startTime

	for !c.done(len(pending)) {
		if err := c.transmitPhase(&pending); err != nil {
			return delivered.Bytes(), err
		}
		if err := c.finPhase(len(pending)); err != nil {
			return delivered.Bytes(), err
		}
		if err := c.retransmitPhase(); err != nil {
			return delivered.Bytes(), err
		}
		if err := c.receivePhase(&delivered); err != nil {
			return delivered.Bytes(), err
		}
		c.logProgress(delivered.Len())
	}

	return delivered.Bytes(), nil
}

func (c *Connection) done(pendingLen int) bool {
	return c.myFinSent && c.serverFinSeen && c.myAck >= c.nextAck && pendingLen == 0 && c.sendBuf.Size() == 0
}

// logProgress emits a debug-level "still downloading" line roughly every
// progressLogInterval, mirroring the periodic download printout the
// Python original produced while a transfer was in flight. At info level
// and above this is silent.
func (c *Connection) logProgress(deliveredBytes int) {
	now := time.Now()
	if now.Sub(c.lastProgressLog) < progressLogInterval {
		return
	}
	c.lastProgressLog = now

	c.log.WithFields(logrus.Fields{
		"elapsed_s":  now.Sub(c.startTime).Truncate(time.Second).Seconds(),
		"downloaded": fmt.Sprintf("%.1fKB", float64(deliveredBytes)/1024),
	}).Debug("transfer in progress")
}

// transmitPhase pops payload off pending while the congestion window
// allows, sending each chunk as a data segment, and tops off with a bare
// ACK if the peer is owed an acknowledgment our last send didn't carry.
func (c *Connection) transmitPhase(pending *[]byte) error {
	for len(*pending) > 0 && c.sendBuf.Size() < c.cwnd.Size() {
		chunkLen := len(*pending)
		if chunkLen > ip.FragmentMTU {
			chunkLen = ip.FragmentMTU
		}
		payload := (*pending)[:chunkLen]
		*pending = (*pending)[chunkLen:]

		seg := c.buildSegment(FlagACK, c.mySeq, c.myAck, payload)
		if err := c.transmit(seg); err != nil {
			return fmt.Errorf("send data segment: %w", err)
		}
		c.mtr.segmentsSent.Inc()

		expectedAck := c.mySeq + uint64(len(payload))
		c.sendBuf.Push(expectedAck, sendbuffer.Entry{Seq: c.mySeq, Payload: payload, Flags: FlagACK})
		c.mySeq = expectedAck
	}

	if c.myAck < c.nextAck {
		c.myAck = c.nextAck
		ack := c.buildSegment(FlagACK, c.mySeq, c.myAck, nil)
		if err := c.transmit(ack); err != nil {
			return fmt.Errorf("send bare ACK: %w", err)
		}
		c.mtr.segmentsSent.Inc()
	}

	return nil
}

// finPhase sends our FIN once there is nothing left to transmit.
func (c *Connection) finPhase(pendingLen int) error {
	if pendingLen != 0 || c.myFinSent {
		return nil
	}

	fin := c.buildSegment(FlagFIN|FlagACK, c.mySeq, c.myAck, nil)
	if err := c.transmit(fin); err != nil {
		return fmt.Errorf("send FIN: %w", err)
	}
	c.mtr.segmentsSent.Inc()

	expectedAck := c.mySeq + 1
	c.sendBuf.Push(expectedAck, sendbuffer.Entry{Seq: c.mySeq, Flags: FlagFIN | FlagACK})
	c.mySeq = expectedAck
	c.myFinSent = true
	c.state = StateFinWait

	return nil
}

// retransmitPhase resends anything the send buffer has decided is
// overdue: confirmed-but-unpopped entries are discarded quietly, the rest
// collapse the congestion window to MinCwnd and go back out.
func (c *Connection) retransmitPhase() error {
	for c.sendBuf.ShouldSend() || (c.myFinSent && c.serverFinSeen && c.sendBuf.Size() > 0) {
		expectedAck, entry, ok := c.sendBuf.Get()
		if !ok {
			break
		}

		if c.serverAck >= expectedAck {
			c.sendBuf.Confirm(expectedAck)
			continue
		}

		c.cwnd.OnRetransmit()
		seg := c.buildSegment(entry.Flags, entry.Seq, c.myAck, entry.Payload)
		if err := c.transmit(seg); err != nil {
			return fmt.Errorf("retransmit segment: %w", err)
		}
		c.mtr.segmentsSent.Inc()
		c.mtr.segmentsRetransmitted.Inc()
		c.log.WithField("seq", entry.Seq).Debug("retransmitting overdue segment")
	}

	return nil
}

// receivePhase drains whatever the IP layer has reassembled, buffers
// out-of-order segments by lifted sequence number, and delivers every
// consecutive run starting at server_seq to delivered.
func (c *Connection) receivePhase(delivered *bytes.Buffer) error {
	datagrams, err := c.receiver.Recv(c.remoteIP, receivePollInterval)
	if err != nil {
		if errors.Is(err, ip.ErrStalled) {
			return err
		}
		return fmt.Errorf("receive: %w", err)
	}

	for _, dgram := range datagrams {
		c.mtr.IncFragmentsReassembled()

		seg, perr := Parse(dgram)
		if perr != nil {
			c.log.WithError(perr).Debug("dropping malformed TCP segment")
			continue
		}
		if !c.addressedToUs(seg) {
			continue
		}
		if !seg.VerifyChecksum(c.remoteIP, c.localIP) {
			c.log.Debug("dropping TCP segment with bad checksum")
			continue
		}

		seq := Lift(seg.SequenceNumber, c.serverSeq)
		if seq >= c.serverSeq {
			c.recvBuf[seq] = seg
		} else if c.myAck > 0 {
			// Peer retransmitted something we've already consumed; nudge
			// my_ack down so the next transmit phase re-announces it.
			c.myAck--
		}
	}

	for {
		seg, ok := c.recvBuf[c.serverSeq]
		if !ok {
			break
		}
		delete(c.recvBuf, c.serverSeq)

		if len(seg.Data) > 0 {
			delivered.Write(seg.Data)
			c.mtr.bytesDelivered.Add(float64(len(seg.Data)))
		}
		c.serverSeq += uint64(len(seg.Data))

		if seg.HasFlag(FlagACK) {
			ackVal := Lift(seg.AckNumber, c.serverAck)
			if ackVal > c.serverAck {
				c.serverAck = ackVal
			}
			c.sendBuf.Confirm(c.serverAck)
			c.cwnd.OnAck()
			c.mtr.cwnd.Set(float64(c.cwnd.Size()))
		}

		if seg.HasFlag(FlagFIN) {
			c.serverSeq++
			c.serverFinSeen = true
			c.state = StateClosing
		}

		if c.serverSeq > c.nextAck {
			c.nextAck = c.serverSeq
		}
	}

	return nil
}

// addressedToUs reports whether seg's ports match this connection's
// remote/local pair.
func (c *Connection) addressedToUs(seg *Segment) bool {
	return seg.SourcePort == c.remotePort && seg.DestinationPort == c.localPort
}

// buildSegment assembles and checksums an outgoing segment.
func (c *Connection) buildSegment(flags uint8, seq, ack uint64, payload []byte) *Segment {
	seg := &Segment{
		SourcePort:      c.localPort,
		DestinationPort: c.remotePort,
		SequenceNumber:  uint32(seq),
		AckNumber:       uint32(ack),
		Flags:           flags,
		WindowSize:      DefaultWindow,
		Data:            payload,
	}
	seg.Checksum = seg.CalculateChecksum(c.localIP, c.remoteIP)
	return seg
}

// transmit serializes and hands seg to the IP layer.
func (c *Connection) transmit(seg *Segment) error {
	return c.sender.Send(c.remoteIP, seg.Serialize())
}
