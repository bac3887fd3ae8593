package network

import (
	"fmt"
	"net"
	"net/netip"
)

// Local address the system would use to reach the destination.
// Nothing is sent; the connected UDP socket only consults the route table.
func localAddrFor(destination netip.AddrPort) (local netip.Addr, err error) {
	conn, err := net.Dial("udp", destination.String())
	if err != nil {
		err = fmt.Errorf("failed to find route to %s: %w", destination, err)
		return
	}
	defer conn.Close()

	localAddr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		err = fmt.Errorf("unexpected local address type %T", conn.LocalAddr())
		return
	}
	local = localAddr.AddrPort().Addr().Unmap()
	return
}

// Interface that carries traffic to the destination
func interfaceForDestination(destination netip.AddrPort) (iface *net.Interface, err error) {
	local, err := localAddrFor(destination)
	if err != nil {
		return
	}
	iface, err = interfaceForAddress(local)
	return
}
