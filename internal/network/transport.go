package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"syscall"
	"time"
	"zephyr/internal/global"
	"zephyr/pkg/protocol"

	"golang.org/x/sys/unix"
)

type TransportConfig struct {
	Server        netip.AddrPort
	LocalPort     uint16 // 0 for ephemeral
	ReceiveBuffer int    // SO_RCVBUF, 0 leaves the kernel default
	PollSlice     time.Duration
}

type Datagram struct {
	Data []byte
	From netip.AddrPort
}

// Client UDP endpoint. Send is safe for concurrent use; receive-side
// methods serialize on an internal lock.
type Transport struct {
	conn      *net.UDPConn
	raw       syscall.RawConn
	server    netip.AddrPort
	local     netip.AddrPort
	pollSlice time.Duration

	mutex   sync.Mutex
	queued  []Datagram
	readBuf []byte
}

func Open(ctx context.Context, cfg TransportConfig) (transport *Transport, err error) {
	if !cfg.Server.IsValid() {
		err = newTransportError("open", fmt.Errorf("invalid server address %v", cfg.Server))
		return
	}

	localIP, err := localAddrFor(cfg.Server)
	if err != nil {
		err = newTransportError("route", err)
		return
	}

	conn, err := listenUDP(ctx, cfg.LocalPort, cfg.ReceiveBuffer)
	if err != nil {
		err = newTransportError("bind", err)
		return
	}
	raw, err := conn.SyscallConn()
	if err != nil {
		conn.Close()
		err = newTransportError("bind", err)
		return
	}

	boundPort := conn.LocalAddr().(*net.UDPAddr).AddrPort().Port()
	transport = &Transport{
		conn:      conn,
		raw:       raw,
		server:    cfg.Server,
		local:     netip.AddrPortFrom(localIP, boundPort),
		pollSlice: cfg.PollSlice,
		readBuf:   make([]byte, protocol.MaxDatagramLen+1),
	}
	if transport.pollSlice <= 0 {
		transport.pollSlice = global.DefaultPollSlice
	}
	return
}

// Address stamped into notice uids and the bound port
func (transport *Transport) LocalAddr() netip.AddrPort {
	return transport.local
}

func (transport *Transport) Port() uint16 {
	return transport.local.Port()
}

// Socket descriptor for host event loops. Valid until Close.
func (transport *Transport) FD() (fd int) {
	fd = -1
	transport.raw.Control(func(sysfd uintptr) {
		fd = int(sysfd)
	})
	return
}

func (transport *Transport) Server() netip.AddrPort {
	return transport.server
}

// Transmits a datagram to the configured server
func (transport *Transport) Send(ctx context.Context, packet []byte) (err error) {
	err = transport.SendTo(ctx, packet, transport.server)
	return
}

func (transport *Transport) SendTo(ctx context.Context, packet []byte, destination netip.AddrPort) (err error) {
	err = ctx.Err()
	if err != nil {
		return
	}
	_, err = transport.conn.WriteToUDPAddrPort(packet, destination)
	if err != nil {
		err = newTransportError("send", err)
		return
	}
	return
}

// Returns the next datagram. Without block, ErrNonePending is returned
// when nothing is queued. Blocking receives end early on ctx cancellation.
func (transport *Transport) Receive(ctx context.Context, block bool) (datagram Datagram, err error) {
	for {
		datagram, err = transport.next()
		if err == nil || !errors.Is(err, ErrNonePending) || !block {
			return
		}

		_, err = transport.WaitReadable(ctx, -1)
		if err != nil {
			return
		}
	}
}

// Waits until a datagram can be read or timeout passes. A negative
// timeout waits until ctx is done.
func (transport *Transport) WaitReadable(ctx context.Context, timeout time.Duration) (ready bool, err error) {
	transport.mutex.Lock()
	ready = len(transport.queued) > 0
	transport.mutex.Unlock()
	if ready {
		return
	}

	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		err = ctx.Err()
		if err != nil {
			return
		}

		slice := transport.pollSlice
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return
			}
			slice = min(slice, remaining)
		}

		ready, err = transport.poll(slice)
		if err != nil || ready {
			return
		}
	}
}

// Number of datagrams waiting, draining the socket into the local queue
func (transport *Transport) Pending() (count int, err error) {
	transport.mutex.Lock()
	defer transport.mutex.Unlock()

	for {
		var datagram Datagram
		datagram, err = transport.recvNonBlocking()
		if errors.Is(err, ErrNonePending) {
			err = nil
			break
		}
		if err != nil {
			break
		}
		transport.queued = append(transport.queued, datagram)
	}
	count = len(transport.queued)
	return
}

func (transport *Transport) Close() (err error) {
	err = transport.conn.Close()
	if err != nil {
		err = newTransportError("close", err)
		return
	}
	return
}

func (transport *Transport) next() (datagram Datagram, err error) {
	transport.mutex.Lock()
	defer transport.mutex.Unlock()

	if len(transport.queued) > 0 {
		datagram = transport.queued[0]
		transport.queued[0] = Datagram{}
		transport.queued = transport.queued[1:]
		return
	}
	datagram, err = transport.recvNonBlocking()
	return
}

// Caller holds the mutex
func (transport *Transport) recvNonBlocking() (datagram Datagram, err error) {
	var (
		n       int
		from    unix.Sockaddr
		recvErr error
	)
	err = transport.raw.Read(func(fd uintptr) bool {
		n, from, recvErr = unix.Recvfrom(int(fd), transport.readBuf, unix.MSG_DONTWAIT)
		return true
	})
	if err != nil {
		err = newTransportError("receive", err)
		return
	}
	if errors.Is(recvErr, unix.EAGAIN) || errors.Is(recvErr, unix.EWOULDBLOCK) {
		err = ErrNonePending
		return
	}
	if recvErr != nil {
		err = newTransportError("receive", recvErr)
		return
	}

	datagram.Data = append([]byte(nil), transport.readBuf[:n]...)
	datagram.From = sockaddrToAddrPort(from)
	return
}

func (transport *Transport) poll(timeout time.Duration) (ready bool, err error) {
	var (
		n       int
		pollErr error
	)
	// Round up so sub-millisecond remainders still sleep
	timeoutMs := int((timeout + time.Millisecond - 1) / time.Millisecond)
	err = transport.raw.Read(func(fd uintptr) bool {
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		n, pollErr = unix.Poll(fds, timeoutMs)
		return true
	})
	if err != nil {
		err = newTransportError("poll", err)
		return
	}
	if errors.Is(pollErr, unix.EINTR) {
		return
	}
	if pollErr != nil {
		err = newTransportError("poll", pollErr)
		return
	}
	ready = n > 0
	return
}
