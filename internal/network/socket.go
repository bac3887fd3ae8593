package network

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"syscall"

	"golang.org/x/sys/unix"
)

// Binds the client's UDP socket. Port 0 picks an ephemeral port.
// A positive receive buffer size is applied before bind.
func listenUDP(ctx context.Context, port uint16, receiveBuffer int) (conn *net.UDPConn, err error) {
	// Using x/sys/unix package for more up-to-date syscall numbers
	cfg := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
				if sockErr != nil {
					return
				}
				if receiveBuffer > 0 {
					sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, receiveBuffer)
				}
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	addr := netip.AddrPortFrom(netip.IPv4Unspecified(), port)
	pc, err := cfg.ListenPacket(ctx, "udp4", addr.String())
	if err != nil {
		err = fmt.Errorf("failed to bind udp port %d: %w", port, err)
		return
	}
	conn = pc.(*net.UDPConn)
	return
}

// Converts a kernel socket address into an address/port pair
func sockaddrToAddrPort(sa unix.Sockaddr) (addr netip.AddrPort) {
	switch from := sa.(type) {
	case *unix.SockaddrInet4:
		addr = netip.AddrPortFrom(netip.AddrFrom4(from.Addr), uint16(from.Port))
	case *unix.SockaddrInet6:
		addr = netip.AddrPortFrom(netip.AddrFrom16(from.Addr).Unmap(), uint16(from.Port))
	}
	return
}
