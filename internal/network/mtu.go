package network

import (
	"fmt"
	"net/netip"
)

const (
	defaultMTU  int = 1500
	ip4Overhead int = 60
	ip6Overhead int = 80
	udpOverhead int = 8
)

// Largest UDP payload that reaches the destination without IP fragmentation
func MaxUDPPayload(destination netip.AddrPort) (maxPayloadSize int, err error) {
	if !destination.IsValid() {
		err = fmt.Errorf("invalid destination address %v", destination)
		return
	}

	overhead := ip4Overhead + udpOverhead
	if destination.Addr().Unmap().Is6() {
		overhead = ip6Overhead + udpOverhead
	}

	mtu := defaultMTU
	iface, err := interfaceForDestination(destination)
	if err != nil {
		// No route found - fail early
		return
	}
	if iface.MTU > 0 {
		mtu = iface.MTU
	}

	maxPayloadSize = mtu - overhead
	return
}
