package httpclient

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"os"
	"path"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/namelessChessfoot/tcpfetch/pkg/common"
	"github.com/namelessChessfoot/tcpfetch/pkg/hostctx"
	"github.com/namelessChessfoot/tcpfetch/pkg/ip"
	"github.com/namelessChessfoot/tcpfetch/pkg/link"
	"github.com/namelessChessfoot/tcpfetch/pkg/tcp"
)

// ephemeralPortLow and ephemeralPortHigh bound the local source port this
// client picks for each connection, matching the original client's
// (commented-in) intent of a wide ephemeral range rather than a fixed
// debugging port.
const (
	ephemeralPortLow  = 5000
	ephemeralPortHigh = 65535
)

// randomLocalPort draws a uniform random port in
// [ephemeralPortLow, ephemeralPortHigh] via crypto/rand, so back-to-back
// connections don't collide the way a coarse wall-clock-derived value can.
func randomLocalPort() uint16 {
	span := uint32(ephemeralPortHigh - ephemeralPortLow + 1)
	var b [4]byte
	rand.Read(b[:])
	offset := binary.BigEndian.Uint32(b[:]) % span
	return uint16(ephemeralPortLow + offset)
}

// dnsTimeout bounds the one kernel-assisted step this stack allows
// itself: resolving the target host to an IPv4 address. DNS is UDP and
// out of scope for the from-scratch transport (spec non-goal), so this
// is the system resolver, not a hand-rolled client.
const dnsTimeout = 5 * time.Second

// Fetch resolves rawURL, drives the TCP engine through a full GET, and
// writes the response body to a file named after the URL's last path
// segment (index.html if that segment is empty). It returns the path
// written and the connection's metrics, so a caller can log a run
// summary; mtr is nil if the connection was never built (a failure
// before then has nothing to report).
func Fetch(rawURL string, ifaceOverride string, log *logrus.Entry) (string, *tcp.Metrics, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	req, err := NewGetRequest(rawURL)
	if err != nil {
		return "", nil, err
	}

	remoteIP, err := resolveHost(req.Host())
	if err != nil {
		return "", nil, fmt.Errorf("resolve %s: %w", req.Host(), err)
	}

	hostCtx, err := hostctx.Discover(ifaceOverride)
	if err != nil {
		return "", nil, fmt.Errorf("discover host networking context: %w", err)
	}

	linkSender, err := link.NewSender(hostCtx.InterfaceName, hostCtx.LocalIP, hostCtx.GatewayIP, log)
	if err != nil {
		return "", nil, fmt.Errorf("open link sender: %w", err)
	}
	defer linkSender.Close()

	ipReceiver, err := ip.NewReceiver(hostCtx.LocalIP, log)
	if err != nil {
		return "", nil, fmt.Errorf("open IP receiver: %w", err)
	}
	defer ipReceiver.Close()

	ipSender := ip.NewSender(linkSender, hostCtx.LocalIP, common.ProtocolTCP)

	localPort := randomLocalPort()
	mtr := tcp.NewMetrics()
	conn := tcp.NewConnection(hostCtx.LocalIP, localPort, remoteIP, req.Port(), ipSender, ipReceiver, log, mtr)

	if err := conn.Handshake(); err != nil {
		return "", mtr, fmt.Errorf("TCP handshake with %s: %w", remoteIP, err)
	}

	raw, err := conn.Run(req.Build())
	if err != nil {
		return "", mtr, fmt.Errorf("HTTP exchange with %s: %w", remoteIP, err)
	}

	resp, err := ParseResponse(raw)
	if err != nil {
		return "", mtr, err
	}

	outPath := outputFilename(req.Path())
	if err := os.WriteFile(outPath, resp.Body, 0o644); err != nil {
		return "", mtr, fmt.Errorf("write response body to %s: %w", outPath, err)
	}

	log.WithFields(logrus.Fields{"status": resp.StatusLine, "bytes": len(resp.Body), "file": outPath}).Info("fetch complete")
	return outPath, mtr, nil
}

// resolveHost resolves host to its first IPv4 address via the system
// resolver.
func resolveHost(host string) (common.IPv4Address, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dnsTimeout)
	defer cancel()

	ips, err := net.DefaultResolver.LookupIP(ctx, "ip4", host)
	if err != nil {
		return common.IPv4Address{}, err
	}
	if len(ips) == 0 {
		return common.IPv4Address{}, fmt.Errorf("no A record for %s", host)
	}

	return common.ParseIPv4(ips[0].String())
}

// outputFilename derives the local filename for a response body from the
// request path's last segment, defaulting to index.html.
func outputFilename(reqPath string) string {
	if reqPath == "" || reqPath[len(reqPath)-1] == '/' {
		return "index.html"
	}
	name := path.Base(reqPath)
	if name == "" || name == "/" || name == "." {
		return "index.html"
	}
	return name
}
