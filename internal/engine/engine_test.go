package engine

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"zephyr/internal/auth"
	"zephyr/internal/network"
	"zephyr/internal/queue"
	"zephyr/pkg/protocol"

	"github.com/stretchr/testify/require"
)

var sharedKey = []byte("engine test session key")

type received struct {
	notice *protocol.Notice
	packet []byte
	from   netip.AddrPort
}

// Loopback stand-in for the host manager / server
type fakeServer struct {
	t       *testing.T
	conn    *net.UDPConn
	addr    netip.AddrPort
	inbound chan received
	signer  *auth.Verifier
}

func startServer(t *testing.T, handler func(server *fakeServer, msg received)) (server *fakeServer) {
	t.Helper()
	conn, err := net.ListenUDP("udp4", net.UDPAddrFromAddrPort(netip.MustParseAddrPort("127.0.0.1:0")))
	require.NoError(t, err)

	server = &fakeServer{
		t:       t,
		conn:    conn,
		addr:    conn.LocalAddr().(*net.UDPAddr).AddrPort(),
		inbound: make(chan received, 64),
		signer:  auth.NewVerifier(auth.StaticKeySource{Key: sharedKey}, "TEST.REALM", "server", nil),
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		buf := make([]byte, protocol.MaxDatagramLen)
		for {
			n, from, err := conn.ReadFromUDPAddrPort(buf)
			if err != nil {
				return
			}
			packet := append([]byte(nil), buf[:n]...)
			notice, err := protocol.Decode(packet)
			if err != nil {
				continue
			}
			msg := received{notice: notice, packet: packet, from: from}
			if handler != nil {
				handler(server, msg)
			}
			server.inbound <- msg
		}
	}()
	t.Cleanup(func() {
		conn.Close()
		wg.Wait()
	})
	return
}

func (server *fakeServer) reply(kind protocol.Kind, to *protocol.Notice, from netip.AddrPort, body ...[]byte) {
	ack := &protocol.Notice{
		Kind:     kind,
		UID:      to.UID,
		Class:    to.Class,
		Instance: to.Instance,
		Opcode:   to.Opcode,
		Body:     body,
	}
	server.send(ack, from)
}

func (server *fakeServer) send(notice *protocol.Notice, to netip.AddrPort) {
	packet, err := notice.Encode()
	require.NoError(server.t, err)
	server.sendRaw(packet, to)
}

func (server *fakeServer) sendRaw(packet []byte, to netip.AddrPort) {
	_, err := server.conn.WriteToUDPAddrPort(packet, to)
	require.NoError(server.t, err)
}

func (server *fakeServer) next(t *testing.T) received {
	t.Helper()
	select {
	case msg := <-server.inbound:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("server received nothing")
	}
	return received{}
}

func newTestEngine(t *testing.T, server *fakeServer, cfg Config) (*Engine, *network.Transport) {
	t.Helper()
	transport, err := network.Open(context.Background(), network.TransportConfig{
		Server:    server.addr,
		PollSlice: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { transport.Close() })

	if cfg.AckTimeout == 0 {
		cfg.AckTimeout = 2 * time.Second
	}
	if cfg.Sender == "" {
		cfg.Sender = "alice@TEST.REALM"
	}
	verifier := auth.NewVerifier(auth.StaticKeySource{Key: sharedKey}, "TEST.REALM", "alice", nil)
	inbox := queue.New([]string{"Test"}, queue.Config{MaxNotices: 64, MaxBytes: 1 << 20})
	return New([]string{"Test"}, transport, verifier, inbox, cfg), transport
}

func testNotice(kind protocol.Kind, body ...string) *protocol.Notice {
	notice := &protocol.Notice{
		Kind:      kind,
		Class:     "message",
		Instance:  "personal",
		Recipient: "bob@TEST.REALM",
	}
	for _, field := range body {
		notice.Body = append(notice.Body, []byte(field))
	}
	return notice
}

func TestAcknowledgementStates(t *testing.T) {
	testCases := []struct {
		name      string
		kind      protocol.Kind
		replies   []protocol.Kind
		expected  State
		expectErr error
		hostAcked bool
	}{
		{name: "unacked resolves on host ack", kind: protocol.Unacked, replies: []protocol.Kind{protocol.HMAck}, expected: Acked, hostAcked: true},
		{name: "unacked resolves on servack", kind: protocol.Unacked, replies: []protocol.Kind{protocol.ServAck}, expected: ServerAcked},
		{name: "acked waits past host ack", kind: protocol.Acked, replies: []protocol.Kind{protocol.HMAck, protocol.ServAck}, expected: ServerAcked, hostAcked: true},
		{name: "servnak", kind: protocol.Acked, replies: []protocol.Kind{protocol.ServNak}, expected: ServerNaked, expectErr: protocol.ErrServerNak},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := startServer(t, func(server *fakeServer, msg received) {
				for _, kind := range tc.replies {
					server.reply(kind, msg.notice, msg.from)
				}
			})
			engine, _ := newTestEngine(t, server, Config{})

			outcome, err := engine.SendAndAwait(context.Background(), testNotice(tc.kind, "hi"))
			if tc.expectErr != nil {
				require.ErrorIs(t, err, tc.expectErr)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tc.expected, outcome.State)
			require.Equal(t, tc.hostAcked, outcome.HostAcked)
			require.Equal(t, 1, outcome.Attempts)
		})
	}
}

func TestAckMatchingWithStray(t *testing.T) {
	server := startServer(t, nil)
	engine, transport := newTestEngine(t, server, Config{})
	ctx := context.Background()

	first, err := engine.Send(ctx, testNotice(protocol.Unacked, "one"))
	require.NoError(t, err)
	second, err := engine.Send(ctx, testNotice(protocol.Unacked, "two"))
	require.NoError(t, err)
	require.NotEqual(t, first.UID, second.UID)

	msgs := map[protocol.UniqueID]received{}
	for range 2 {
		msg := server.next(t)
		msgs[msg.notice.UID] = msg
	}
	from := msgs[first.UID].from
	require.Equal(t, transport.Port(), from.Port())

	stray := &protocol.Notice{UID: protocol.UniqueID{Addr: netip.MustParseAddr("127.0.0.1"), Sec: 1, Frac: 1}}
	server.reply(protocol.ServAck, stray, from)
	server.reply(protocol.ServAck, msgs[second.UID].notice, from, []byte("second"))
	server.reply(protocol.ServAck, msgs[first.UID].notice, from, []byte("first"))

	outcome, err := engine.Await(ctx, first)
	require.NoError(t, err)
	require.Equal(t, ServerAcked, outcome.State)
	require.Equal(t, first.UID, outcome.Ack.UID)
	require.Equal(t, "first", string(outcome.Ack.Body[0]))

	outcome, err = engine.Await(ctx, second)
	require.NoError(t, err)
	require.Equal(t, second.UID, outcome.Ack.UID)
	require.Equal(t, "second", string(outcome.Ack.Body[0]))

	require.Equal(t, protocol.AuthNo, outcome.Ack.Authenticated)

	require.EqualValues(t, 1, engine.Metrics.StrayAcks.Load())
	count, err := engine.Pending(ctx)
	require.NoError(t, err)
	require.Zero(t, count, "acknowledgements must not reach the receive queue")
}

func TestTimeoutReportedOnce(t *testing.T) {
	server := startServer(t, nil)
	engine, _ := newTestEngine(t, server, Config{AckTimeout: 50 * time.Millisecond})
	ctx := context.Background()

	ticket, err := engine.Send(ctx, testNotice(protocol.Acked, "void"))
	require.NoError(t, err)

	start := time.Now()
	outcome, err := engine.Await(ctx, ticket)
	require.ErrorIs(t, err, protocol.ErrTimeout)
	require.Equal(t, TimedOut, outcome.State)
	require.GreaterOrEqual(t, time.Since(start), 45*time.Millisecond)

	_, err = engine.Await(ctx, ticket)
	require.ErrorIs(t, err, protocol.ErrNotPending)
	require.EqualValues(t, 1, engine.Metrics.Timeouts.Load())

	// A late acknowledgement is stray
	msg := server.next(t)
	server.reply(protocol.ServAck, msg.notice, msg.from)
	require.Eventually(t, func() bool {
		engine.Pending(ctx)
		return engine.Metrics.StrayAcks.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUnawaitedSendsExpire(t *testing.T) {
	server := startServer(t, nil)
	engine, _ := newTestEngine(t, server, Config{
		AckTimeout:       20 * time.Millisecond,
		OutcomeRetention: 200 * time.Millisecond,
	})
	ctx := context.Background()

	var tickets []*Ticket
	for range 5 {
		ticket, err := engine.Send(ctx, testNotice(protocol.Unacked, "unanswered"))
		require.NoError(t, err)
		tickets = append(tickets, ticket)
	}
	time.Sleep(60 * time.Millisecond)

	// Receive-only event loop still times sends out
	_, _, err := engine.Receive(ctx, false)
	require.ErrorIs(t, err, network.ErrNonePending)
	require.EqualValues(t, 5, engine.Metrics.Timeouts.Load())

	// A late Await gets the outcome exactly once
	outcome, err := engine.Await(ctx, tickets[0])
	require.ErrorIs(t, err, protocol.ErrTimeout)
	require.Equal(t, TimedOut, outcome.State)
	_, err = engine.Await(ctx, tickets[0])
	require.ErrorIs(t, err, protocol.ErrNotPending)

	// Outcomes nobody claims are dropped after the retention
	time.Sleep(250 * time.Millisecond)
	_, err = engine.Pending(ctx)
	require.NoError(t, err)
	require.Zero(t, engine.Metrics.Pending.Load())
	require.EqualValues(t, 4, engine.Metrics.Unclaimed.Load())
	require.EqualValues(t, 5, engine.Metrics.Timeouts.Load())

	_, err = engine.Await(ctx, tickets[1])
	require.ErrorIs(t, err, protocol.ErrNotPending)
}

// Transport whose sends start failing on demand
type breakableTransport struct {
	*network.Transport
	broken atomic.Bool
}

func (transport *breakableTransport) Send(ctx context.Context, packet []byte) error {
	if transport.broken.Load() {
		return &network.TransportError{Op: "send", Err: errors.New("network is unreachable")}
	}
	return transport.Transport.Send(ctx, packet)
}

func TestRetransmitTransportFailure(t *testing.T) {
	server := startServer(t, nil)
	_, transport := newTestEngine(t, server, Config{})
	breakable := &breakableTransport{Transport: transport}
	engine := New([]string{"Test"}, breakable, nil, nil, Config{
		Sender:     "alice@TEST.REALM",
		AckTimeout: 30 * time.Millisecond,
		Retry:      RetryPolicy{Retries: 2, InitialDelay: time.Millisecond},
	})
	ctx := context.Background()

	ticket, err := engine.Send(ctx, testNotice(protocol.Unacked, "lost"))
	require.NoError(t, err)
	breakable.broken.Store(true)

	outcome, err := engine.Await(ctx, ticket)
	require.ErrorIs(t, err, protocol.ErrTransport)
	require.NotErrorIs(t, err, protocol.ErrTimeout)
	require.Equal(t, 2, outcome.Attempts)
	require.Zero(t, engine.Metrics.Retransmits.Load())
	require.Zero(t, engine.Metrics.Timeouts.Load())

	_, err = engine.Await(ctx, ticket)
	require.ErrorIs(t, err, protocol.ErrNotPending)
}

func TestSignedAckVerified(t *testing.T) {
	server := startServer(t, func(server *fakeServer, msg received) {
		ack := &protocol.Notice{
			Kind:     protocol.ServAck,
			UID:      msg.notice.UID,
			Class:    msg.notice.Class,
			Instance: msg.notice.Instance,
		}
		require.NoError(server.t, server.signer.Sign(context.Background(), ack))
		server.send(ack, msg.from)
	})
	engine, _ := newTestEngine(t, server, Config{})

	outcome, err := engine.SendAndAwait(context.Background(), testNotice(protocol.Unacked, "signed reply"))
	require.NoError(t, err)
	require.Equal(t, ServerAcked, outcome.State)
	require.Equal(t, protocol.AuthYes, outcome.Ack.Authenticated)
}

func TestRetryResendsSameBytes(t *testing.T) {
	var mutex sync.Mutex
	copies := 0
	server := startServer(t, func(server *fakeServer, msg received) {
		mutex.Lock()
		copies++
		current := copies
		mutex.Unlock()
		if current == 3 {
			server.reply(protocol.ServAck, msg.notice, msg.from)
		}
	})
	engine, _ := newTestEngine(t, server, Config{
		AckTimeout: 40 * time.Millisecond,
		Retry:      RetryPolicy{Retries: 3, InitialDelay: time.Millisecond, Multiplier: 2},
	})

	outcome, err := engine.SendAndAwait(context.Background(), testNotice(protocol.Unacked, "again"))
	require.NoError(t, err)
	require.Equal(t, ServerAcked, outcome.State)
	require.Equal(t, 3, outcome.Attempts)

	first := server.next(t)
	for range 2 {
		again := server.next(t)
		require.True(t, bytes.Equal(first.packet, again.packet), "retransmission must reuse the original datagram")
	}
	require.EqualValues(t, 2, engine.Metrics.Retransmits.Load())
}

func TestUnsafeNotTracked(t *testing.T) {
	server := startServer(t, nil)
	engine, _ := newTestEngine(t, server, Config{})
	ctx := context.Background()

	ticket, err := engine.Send(ctx, testNotice(protocol.Unsafe, "fire and forget"))
	require.NoError(t, err)
	require.False(t, ticket.Tracked())

	outcome, err := engine.Await(ctx, ticket)
	require.NoError(t, err)
	require.Equal(t, Sent, outcome.State)
	require.Equal(t, protocol.Unsafe, server.next(t).notice.Kind)
	require.Zero(t, engine.Metrics.Pending.Load())
}

func TestReceiveVerifiesAndAcknowledges(t *testing.T) {
	server := startServer(t, func(server *fakeServer, msg received) {
		if msg.notice.Kind != protocol.Unacked {
			return
		}
		server.reply(protocol.HMAck, msg.notice, msg.from)

		echo := msg.notice.Clone()
		echo.Kind = protocol.Acked
		require.NoError(server.t, server.signer.Sign(context.Background(), echo))
		server.send(echo, msg.from)
	})
	engine, _ := newTestEngine(t, server, Config{})
	ctx := context.Background()

	notice := testNotice(protocol.Unacked, "hello")
	notice.Auth = true
	outcome, err := engine.SendAndAwait(ctx, notice)
	require.NoError(t, err)
	require.Equal(t, Acked, outcome.State)

	echo, from, err := engine.Receive(ctx, true)
	require.NoError(t, err)
	require.Equal(t, server.addr, from)
	require.Equal(t, protocol.Acked, echo.Kind)
	require.Equal(t, notice.UID, echo.UID)
	require.Equal(t, protocol.AuthYes, echo.Authenticated)
	require.Equal(t, "hello", string(echo.Body[0]))

	require.Equal(t, protocol.Unacked, server.next(t).notice.Kind)
	clientAck := server.next(t)
	require.Equal(t, protocol.ClientAck, clientAck.notice.Kind)
	require.Equal(t, notice.UID, clientAck.notice.UID)
	require.Empty(t, clientAck.notice.Body)
}

func TestReceiveDropsMalformed(t *testing.T) {
	server := startServer(t, nil)
	engine, transport := newTestEngine(t, server, Config{})
	ctx := context.Background()

	_, _, err := engine.Receive(ctx, false)
	require.ErrorIs(t, err, network.ErrNonePending)

	to := netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), transport.Port())
	server.sendRaw([]byte("definitely not a notice"), to)
	plain := testNotice(protocol.Unsafe, "fine")
	plain.UID = protocol.UniqueID{Addr: netip.MustParseAddr("127.0.0.1"), Sec: 5, Frac: 5}
	plain.Auth = true // claimed without a checksum
	server.send(plain, to)

	notice, _, err := engine.Receive(ctx, true)
	require.NoError(t, err)
	require.Equal(t, "fine", string(notice.Body[0]))
	require.Equal(t, protocol.AuthNo, notice.Authenticated)
	require.EqualValues(t, 1, engine.Metrics.Malformed.Load())
}

func TestFragmentedRoundTrip(t *testing.T) {
	var mutex sync.Mutex
	var fragments [][]byte
	server := startServer(t, func(server *fakeServer, msg received) {
		if msg.notice.Kind != protocol.Acked {
			return
		}
		server.reply(protocol.ServAck, msg.notice, msg.from)
		mutex.Lock()
		fragments = append(fragments, msg.packet)
		mutex.Unlock()
	})
	engine, transport := newTestEngine(t, server, Config{MaxPacketLen: 512})
	ctx := context.Background()

	payload := bytes.Repeat([]byte("zephyr "), 400)
	notice := testNotice(protocol.Acked, "alice", string(payload))
	notice.Auth = true
	outcome, err := engine.SendAndAwait(ctx, notice)
	require.NoError(t, err)
	require.Equal(t, ServerAcked, outcome.State)

	mutex.Lock()
	packets := append([][]byte(nil), fragments...)
	mutex.Unlock()
	require.Greater(t, len(packets), 2)
	for _, packet := range packets {
		require.LessOrEqual(t, len(packet), 512)
	}

	// Reflect every fragment back in reverse order
	to := netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), transport.Port())
	for i := len(packets) - 1; i >= 0; i-- {
		server.sendRaw(packets[i], to)
	}

	whole, _, err := engine.Receive(ctx, true)
	require.NoError(t, err)
	require.Equal(t, notice.UID, whole.UID)
	require.Len(t, whole.Body, 2)
	require.Equal(t, payload, whole.Body[1])
	require.Equal(t, protocol.AuthYes, whole.Authenticated)
}

func TestSendTransportFailure(t *testing.T) {
	server := startServer(t, nil)
	engine, transport := newTestEngine(t, server, Config{})
	transport.Close()

	_, err := engine.Send(context.Background(), testNotice(protocol.Acked, "x"))
	require.ErrorIs(t, err, protocol.ErrTransport)
	require.Zero(t, engine.Metrics.Pending.Load())

	var transportErr *network.TransportError
	require.True(t, errors.As(err, &transportErr))
}

func TestBackoffDelays(t *testing.T) {
	policy := RetryPolicy{InitialDelay: 100 * time.Millisecond, Multiplier: 2, MaxDelay: 300 * time.Millisecond}
	require.Equal(t, 100*time.Millisecond, policy.nextDelay(1))
	require.Equal(t, 200*time.Millisecond, policy.nextDelay(2))
	require.Equal(t, 300*time.Millisecond, policy.nextDelay(3))

	policy.Jitter = true
	for range 50 {
		delay := policy.nextDelay(2)
		require.GreaterOrEqual(t, delay, 100*time.Millisecond)
		require.Less(t, delay, 300*time.Millisecond)
	}

	require.Zero(t, RetryPolicy{}.nextDelay(4))
}

func TestCollectMetrics(t *testing.T) {
	server := startServer(t, func(server *fakeServer, msg received) {
		server.reply(protocol.ServAck, msg.notice, msg.from)
	})
	engine, _ := newTestEngine(t, server, Config{})

	for range 3 {
		_, err := engine.SendAndAwait(context.Background(), testNotice(protocol.Unacked, "hi"))
		require.NoError(t, err)
	}

	values := make(map[string]any)
	for _, metric := range engine.CollectMetrics(time.Second) {
		values[metric.Name] = metric.Value.Raw
	}
	require.Equal(t, uint64(3), values["sent"])
	require.Equal(t, uint64(3), values["server_acks"])
	require.Equal(t, uint64(0), values["pending"])
	require.Contains(t, values, "ack_latency")
	require.Greater(t, values["ack_latency"].(uint64), uint64(0))

	// Counters and latency samples reset after collection
	values = make(map[string]any)
	for _, metric := range engine.CollectMetrics(time.Second) {
		values[metric.Name] = metric.Value.Raw
	}
	require.Equal(t, uint64(0), values["sent"])
	require.NotContains(t, values, "ack_latency")
}
