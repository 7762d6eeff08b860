// Package hostctx discovers the local networking context this stack needs
// to operate: which interface to bind, its MAC and IPv4 address, and the
// default gateway's IPv4 address. original_source/MyChallenge.py gets this
// by shelling out to `ip route list 0/0` and `ifconfig -a`; Go can read the
// same information natively, so this package reads /proc/net/route and
// uses net.Interfaces() instead of forking a subprocess.
package hostctx

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/namelessChessfoot/tcpfetch/pkg/common"
)

// Context is the resolved local networking environment: the interface to
// send and receive frames on, its addresses, and the default gateway.
type Context struct {
	InterfaceName string
	LocalMAC      common.MACAddress
	LocalIP       common.IPv4Address
	GatewayIP     common.IPv4Address
}

// Discover finds the default-route interface, its addresses, and the
// gateway IP it routes through. If ifnameOverride is non-empty it is used
// instead of discovering the default-route interface (the gateway is still
// looked up from /proc/net/route for that interface).
func Discover(ifnameOverride string) (*Context, error) {
	routes, err := readRouteTable()
	if err != nil {
		return nil, fmt.Errorf("read routing table: %w", err)
	}

	var chosen *routeEntry
	for i := range routes {
		if routes[i].destination == 0 {
			if ifnameOverride == "" || routes[i].iface == ifnameOverride {
				chosen = &routes[i]
				break
			}
		}
	}
	if chosen == nil {
		return nil, fmt.Errorf("no default route found in /proc/net/route")
	}

	iface, err := net.InterfaceByName(chosen.iface)
	if err != nil {
		return nil, fmt.Errorf("lookup interface %s: %w", chosen.iface, err)
	}
	if len(iface.HardwareAddr) != 6 {
		return nil, fmt.Errorf("interface %s has no Ethernet MAC", chosen.iface)
	}

	var mac common.MACAddress
	copy(mac[:], iface.HardwareAddr)

	localIP, err := interfaceIPv4(iface)
	if err != nil {
		return nil, fmt.Errorf("interface %s has no IPv4 address: %w", chosen.iface, err)
	}

	var gatewayIP common.IPv4Address
	binary.LittleEndian.PutUint32(gatewayIP[:], chosen.gateway)

	return &Context{
		InterfaceName: chosen.iface,
		LocalMAC:      mac,
		LocalIP:       localIP,
		GatewayIP:     gatewayIP,
	}, nil
}

func interfaceIPv4(iface *net.Interface) (common.IPv4Address, error) {
	addrs, err := iface.Addrs()
	if err != nil {
		return common.IPv4Address{}, err
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		v4 := ipNet.IP.To4()
		if v4 == nil {
			continue
		}
		var ip common.IPv4Address
		copy(ip[:], v4)
		return ip, nil
	}
	return common.IPv4Address{}, fmt.Errorf("no IPv4 address assigned")
}

type routeEntry struct {
	iface       string
	destination uint32
	gateway     uint32
}

// readRouteTable parses /proc/net/route, the kernel's IPv4 routing table.
// Destination and gateway fields are little-endian hex per the kernel's
// format, e.g. "00000000" for the default route's destination.
func readRouteTable() ([]routeEntry, error) {
	f, err := os.Open("/proc/net/route")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []routeEntry
	scanner := bufio.NewScanner(f)
	first := true
	for scanner.Scan() {
		if first {
			first = false
			continue // header line
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}

		dest, err := strconv.ParseUint(fields[1], 16, 32)
		if err != nil {
			continue
		}
		gw, err := strconv.ParseUint(fields[2], 16, 32)
		if err != nil {
			continue
		}

		entries = append(entries, routeEntry{
			iface:       fields[0],
			destination: uint32(dest),
			gateway:     uint32(gw),
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}
