package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"time"
	"zephyr/internal/externalio/beats"
	"zephyr/internal/externalio/server"
	"zephyr/internal/global"
	"zephyr/internal/lifecycle"
	"zephyr/internal/logctx"
	"zephyr/internal/metrics"
	"zephyr/internal/session"
	"zephyr/internal/subscription"
	"zephyr/pkg/protocol"
)

func ReceiveMode(ctx context.Context, cliOpts *global.CommandSet, commandname string, args []string) {
	var configPath, beatsAddress, subsFile string
	var count, metricsPort int
	var keepSubs, noDefaultSubs, printStats bool

	commandFlags := flag.NewFlagSet(commandname, flag.ExitOnError)
	SetGlobalArguments(commandFlags)
	SetCommon(commandFlags, &configPath)
	commandFlags.StringVar(&beatsAddress, "beats", "", "Forward notices to this Beats/Logstash endpoint (host:port)")
	commandFlags.StringVar(&subsFile, "subs", "", "Subscription file to load at startup [default: ~/"+global.DefaultSubsFile+"]")
	commandFlags.IntVar(&count, "n", 0, "Exit after this many notices")
	commandFlags.IntVar(&count, "count", 0, "Exit after this many notices")
	commandFlags.BoolVar(&keepSubs, "keep-subs", false, "Leave subscriptions in place on exit")
	commandFlags.BoolVar(&noDefaultSubs, "no-default-subs", false, "Do not subscribe to personal messages")
	commandFlags.BoolVar(&printStats, "stats", false, "Print session metrics as JSON on exit")
	commandFlags.IntVar(&metricsPort, "metrics-port", 0, "Serve session metrics on this localhost port")

	commandFlags.Usage = func() {
		PrintHelpMenu(commandFlags, commandname, cliOpts)
	}
	parseFlags(ctx, commandFlags, args)

	sess := openSession(ctx, configPath)
	defer sess.Close()

	if beatsAddress == "" {
		beatsAddress = sess.Config().BeatsAddress
	}
	output, err := beats.NewOutput(beatsAddress)
	if err != nil {
		exitError(err)
	}
	defer output.Shutdown()

	sigCtx, stop := lifecycle.SignalHandler(ctx)
	defer stop()

	if metricsPort == 0 {
		metricsPort = sess.Config().MetricQueryServerPort
	}
	if metricsPort > 0 {
		var queryServer *http.Server
		queryServer, err = server.SetupListener(ctx, metricsPort, sess.Metrics)
		if err != nil {
			sess.Close()
			exitError(err)
		}
		go server.Start(ctx, queryServer)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			queryServer.Shutdown(shutdownCtx)
		}()
	}

	err = startupSubscriptions(sigCtx, sess, subsFile, noDefaultSubs)
	if err != nil {
		sess.Close()
		exitError(err)
	}

	err = lifecycle.NotifyReady(sigCtx, fmt.Sprintf("receiving on port %d", sess.Port()))
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog, "Systemd notify ready failed: %v\n", err)
	}
	logctx.LogEvent(ctx, global.VerbosityStandard, global.InfoLog,
		"Receiving notices for %s on port %d\n", sess.Sender(), sess.Port())

	received := 0
	for count <= 0 || received < count {
		notice, from, err := sess.Receive(sigCtx, true)
		if err != nil {
			if sigCtx.Err() != nil {
				break
			}
			logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog, "Receive failed: %v\n", err)
			break
		}
		received++

		fmt.Print(formatNotice(notice, from))

		_, err = output.Write(ctx, notice, from)
		if err != nil {
			logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog, "%v\n", err)
		}
	}

	if !keepSubs {
		cancelCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = sess.Subscriptions.CancelAll(cancelCtx)
		cancel()
		if err != nil {
			logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog, "Failed to cancel subscriptions: %v\n", err)
		}
	}

	err = sess.Close()
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog, "%v\n", err)
	}
	if printStats {
		err = metrics.WriteJSON(os.Stdout, sess.Metrics.Search("", nil, time.Time{}, time.Time{}))
		if err != nil {
			exitError(err)
		}
	}
}

// Personal subscription plus the user's subscription file, if any
func startupSubscriptions(ctx context.Context, sess *session.Session, subsFile string, noDefaults bool) (err error) {
	var subs, removals []protocol.Subscription
	if !noDefaults {
		subs = append(subs, protocol.Subscription{
			Class:     protocol.DefaultClass,
			Instance:  protocol.WildcardInstance,
			Recipient: subscription.SelfRecipient,
		})
	}

	explicit := subsFile != ""
	if !explicit {
		home, homeErr := os.UserHomeDir()
		if homeErr == nil {
			subsFile = filepath.Join(home, global.DefaultSubsFile)
		}
	}
	if subsFile != "" {
		var fileSubs, fileRemovals []protocol.Subscription
		fileSubs, fileRemovals, err = loadSubsFile(subsFile)
		if err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return
			}
			err = nil
		}
		subs = append(subs, fileSubs...)
		removals = append(removals, fileRemovals...)
	}

	if len(subs) > 0 {
		err = sess.Subscriptions.Add(ctx, subs...)
		if err != nil {
			return
		}
	}
	if len(removals) > 0 {
		err = sess.Subscriptions.Remove(ctx, removals...)
		if err != nil {
			return
		}
	}
	logctx.LogEvent(ctx, global.VerbosityProgress, global.InfoLog,
		"Subscribed to %d triple(s)\n", len(sess.Subscriptions.Local()))
	return
}

func loadSubsFile(path string) (subs []protocol.Subscription, removals []protocol.Subscription, err error) {
	file, err := os.Open(path)
	if err != nil {
		err = fmt.Errorf("failed to open subscription file: %w", err)
		return
	}
	defer file.Close()

	subs, removals, err = subscription.ParseFile(file)
	if err != nil {
		err = fmt.Errorf("%s: %w", path, err)
	}
	return
}

// Human readable rendering of a received notice
func formatNotice(notice *protocol.Notice, from netip.AddrPort) string {
	var text strings.Builder

	fmt.Fprintf(&text, "Notice from %s <%s,%s", notice.Sender, notice.Class, notice.Instance)
	if notice.Opcode != "" {
		fmt.Fprintf(&text, ",%s", notice.Opcode)
	}
	fmt.Fprintf(&text, "> at %s", notice.Time().Local().Format(time.DateTime))
	if notice.Recipient != "" {
		fmt.Fprintf(&text, " to %s", notice.Recipient)
	}
	fmt.Fprintf(&text, " [%s] via %s\n", notice.Authenticated, from)

	for _, field := range notice.Body {
		for _, line := range strings.Split(string(field), "\n") {
			fmt.Fprintf(&text, "  %s\n", line)
		}
	}
	return text.String()
}
