// Client session: binds the notice port and wires transport, checksum
// verification, the receive queue, the protocol engine and the
// subscription manager together.
package session

import (
	"context"
	"fmt"
	"net/netip"
	"zephyr/internal/auth"
	"zephyr/internal/engine"
	"zephyr/internal/global"
	"zephyr/internal/logctx"
	"zephyr/internal/metrics"
	"zephyr/internal/network"
	"zephyr/internal/queue"
	"zephyr/internal/subscription"
	"zephyr/pkg/protocol"
)

// Opens a session. A nil key source reads session keys from cfg.KeyFile.
func Open(ctx context.Context, cfg Config, keys auth.KeySource) (session *Session, err error) {
	cfg.setDefaults()
	if keys == nil {
		keys = auth.FileKeySource{Path: cfg.KeyFile}
	}

	session = &Session{
		Namespace: []string{global.NSSession},
		cfg:       cfg,
	}
	session.ctx, session.cancel = context.WithCancel(context.Background())
	session.ctx = logctx.WithLogger(session.ctx, logctx.GetLogger(ctx))
	session.ctx = logctx.AppendCtxTag(session.ctx, global.NSSession)

	server, err := network.ResolveServer(ctx, cfg.Server, uint16(global.DefaultHostManagerPort))
	if err != nil {
		session.cancel()
		session = nil
		return
	}

	session.transport, err = network.Open(ctx, network.TransportConfig{
		Server:        server,
		LocalPort:     cfg.LocalPort,
		ReceiveBuffer: cfg.ReceiveBuffer,
		PollSlice:     cfg.PollSlice,
	})
	if err != nil {
		session.cancel()
		session = nil
		return
	}

	maxPacketLen := packetBudget(session.ctx, cfg.MaxPacketLen, server)

	session.Verifier = auth.NewVerifier(keys, cfg.Realm, cfg.Sender, cfg.TrustedServers)
	session.Inbox = queue.New(session.Namespace, queue.Config{
		MaxNotices: cfg.MaxQueuedNotices,
		MaxBytes:   cfg.MaxQueueBytes,
	})
	session.Engine = engine.New(session.Namespace, session.transport, session.Verifier, session.Inbox, engine.Config{
		Sender:            cfg.Sender,
		AckTimeout:        cfg.AckTimeout,
		Retry:             cfg.Retry,
		MaxPacketLen:      maxPacketLen,
		ReassemblyTimeout: cfg.ReassemblyTimeout,
	})
	session.Subscriptions = subscription.New(session.Namespace, session.Engine, subscription.Config{
		Sender:       cfg.Sender,
		Authenticate: true,
		MaxPacketLen: maxPacketLen,
		Reserve:      session.Verifier.ChecksumReserve(),
	})

	// Metrics Collector
	session.Metrics = metrics.New()
	workerCtx := session.ctx
	session.wg.Add(1)
	go func() {
		defer session.wg.Done()
		metrics.Run(workerCtx, session.Metrics,
			cfg.MetricCollectionInterval,
			cfg.MetricMaxAge,
			session.Engine, session.Inbox)
	}()

	logctx.LogEvent(session.ctx, global.VerbosityProgress, global.InfoLog,
		"Opened port %d for %s@%s (server %s, packet limit %d)\n",
		session.transport.Port(), cfg.Sender, cfg.Realm, server, maxPacketLen)
	return
}

// Configured limit, defaulting to the protocol limit, never above what the
// path to the server carries unfragmented
func packetBudget(ctx context.Context, configured int, server netip.AddrPort) (budget int) {
	budget = configured
	if budget <= 0 {
		budget = protocol.MaxPacketLen
	}
	pathLimit, err := network.MaxUDPPayload(server)
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityDebug, global.WarnLog,
			"could not determine path MTU to %s: %v\n", server, err)
		return
	}
	if pathLimit > 0 && pathLimit < budget {
		budget = pathLimit
	}
	return
}

// Sends a notice and waits for its acknowledgement
func (session *Session) Send(ctx context.Context, notice *protocol.Notice) (outcome engine.Outcome, err error) {
	outcome, err = session.Engine.SendAndAwait(session.withLogger(ctx), notice)
	return
}

// Next queued or arriving notice. Non-blocking calls return
// network.ErrNonePending when nothing is available.
func (session *Session) Receive(ctx context.Context, block bool) (notice *protocol.Notice, from netip.AddrPort, err error) {
	notice, from, err = session.Engine.Receive(session.withLogger(ctx), block)
	return
}

// Notices ready for Receive without blocking
func (session *Session) Pending(ctx context.Context) (count int, err error) {
	count, err = session.Engine.Pending(session.withLogger(ctx))
	return
}

func (session *Session) Port() uint16 {
	return session.transport.Port()
}

// Socket descriptor for callers running their own event loop
func (session *Session) FD() int {
	return session.transport.FD()
}

func (session *Session) Server() netip.AddrPort {
	return session.transport.Server()
}

func (session *Session) Sender() string {
	return session.cfg.Sender
}

func (session *Session) Realm() string {
	return session.cfg.Realm
}

// Settings after defaults were applied
func (session *Session) Config() Config {
	return session.cfg
}

// Stops background work and releases the port. Safe to call more than once.
func (session *Session) Close() (err error) {
	if session == nil {
		return
	}
	session.closeOnce.Do(func() {
		session.cancel()
		session.wg.Wait()

		err = session.transport.Close()
		if err != nil {
			err = fmt.Errorf("failed to close port %d: %w", session.transport.Port(), err)
		}
		logctx.LogEvent(session.ctx, global.VerbosityProgress, global.InfoLog, "Closed session\n")
	})
	return
}

// Carries the session logger and tags into caller contexts that have none
func (session *Session) withLogger(ctx context.Context) context.Context {
	if logctx.GetLogger(ctx) != nil || logctx.GetLogger(session.ctx) == nil {
		return ctx
	}
	ctx = logctx.WithLogger(ctx, logctx.GetLogger(session.ctx))
	return logctx.AppendCtxTag(ctx, global.NSSession)
}
