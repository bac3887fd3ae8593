package network

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strconv"
)

// Resolves "host", "host:port" or a literal address into an IPv4
// address/port pair. Missing ports take defaultPort.
func ResolveServer(ctx context.Context, server string, defaultPort uint16) (addr netip.AddrPort, err error) {
	host, portText, splitErr := net.SplitHostPort(server)
	if splitErr != nil {
		host = server
		portText = ""
	}
	if host == "" {
		err = fmt.Errorf("empty server address")
		return
	}

	port := defaultPort
	if portText != "" {
		var parsed uint64
		parsed, err = strconv.ParseUint(portText, 10, 16)
		if err != nil {
			err = fmt.Errorf("invalid port %q: %w", portText, err)
			return
		}
		port = uint16(parsed)
	}

	ip, parseErr := netip.ParseAddr(host)
	if parseErr == nil {
		ip = ip.Unmap()
		if !ip.Is4() {
			err = fmt.Errorf("server address %s is not IPv4", ip)
			return
		}
		addr = netip.AddrPortFrom(ip, port)
		return
	}

	resolved, err := net.DefaultResolver.LookupNetIP(ctx, "ip4", host)
	if err != nil {
		err = fmt.Errorf("failed to resolve server %q: %w", host, err)
		return
	}
	if len(resolved) == 0 {
		err = fmt.Errorf("server %q resolved to no IPv4 addresses", host)
		return
	}
	addr = netip.AddrPortFrom(resolved[0].Unmap(), port)
	return
}
