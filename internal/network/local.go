package network

import (
	"fmt"
	"net"
	"net/netip"
)

// Retrieves the network interface holding a specific address
func interfaceForAddress(address netip.Addr) (iface *net.Interface, err error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return
	}

	for index := range ifaces {
		addrs, addrErr := ifaces[index].Addrs()
		if addrErr != nil {
			continue
		}

		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			candidate, ok := netip.AddrFromSlice(ipNet.IP)
			if ok && candidate.Unmap() == address.Unmap() {
				iface = &ifaces[index]
				return
			}
		}
	}

	err = fmt.Errorf("no matching interface found for address %v", address)
	return
}
