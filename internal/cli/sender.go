package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"zephyr/internal/engine"
	"zephyr/internal/global"
	"zephyr/pkg/protocol"

	"golang.org/x/term"
)

func SendMode(ctx context.Context, cliOpts *global.CommandSet, commandname string, args []string) {
	var configPath string
	var class, instance, opcode string
	var signature, message, kindName string
	var noAuth bool

	commandFlags := flag.NewFlagSet(commandname, flag.ExitOnError)
	SetGlobalArguments(commandFlags)
	SetCommon(commandFlags, &configPath)
	commandFlags.StringVar(&class, "class", protocol.DefaultClass, "Notice class")
	commandFlags.StringVar(&instance, "i", protocol.DefaultInstance, "Notice instance")
	commandFlags.StringVar(&instance, "instance", protocol.DefaultInstance, "Notice instance")
	commandFlags.StringVar(&opcode, "opcode", "", "Notice opcode")
	commandFlags.StringVar(&signature, "s", "", "Signature field placed before the message")
	commandFlags.StringVar(&signature, "signature", "", "Signature field placed before the message")
	commandFlags.StringVar(&message, "m", "", "Message text (read from stdin when omitted)")
	commandFlags.StringVar(&message, "message", "", "Message text (read from stdin when omitted)")
	commandFlags.StringVar(&kindName, "kind", "acked", "Delivery kind <unsafe|unacked|acked>")
	commandFlags.BoolVar(&noAuth, "noauth", false, "Send without a checksum")

	commandFlags.Usage = func() {
		PrintHelpMenu(commandFlags, commandname, cliOpts)
	}
	parseFlags(ctx, commandFlags, args)
	recipients := commandFlags.Args()

	kind, err := parseKind(kindName)
	if err != nil {
		exitError(err)
	}
	if len(recipients) == 0 && class == protocol.DefaultClass && instance == protocol.DefaultInstance {
		exitError(fmt.Errorf("no recipients given for a personal message"))
	}

	if !flagGiven(commandFlags, "m", "message") {
		message, err = readMessage(os.Stdin)
		if err != nil {
			exitError(err)
		}
	}

	body := []string{message}
	if signature != "" {
		body = []string{signature, message}
	}

	sess := openSession(ctx, configPath)
	defer sess.Close()

	// Class/instance broadcasts go out once with an empty recipient
	if len(recipients) == 0 {
		recipients = []string{""}
	}

	failed := false
	for _, recipient := range recipients {
		notice := protocol.NewNotice(recipient, body...)
		notice.Kind = kind
		notice.Class = class
		notice.Instance = instance
		notice.Opcode = opcode
		notice.Auth = !noAuth

		outcome, err := sess.Send(ctx, notice)
		if err != nil && !errors.Is(err, protocol.ErrServerNak) && !errors.Is(err, protocol.ErrTimeout) {
			fmt.Fprintf(os.Stderr, "Error sending to %s: %v\n", displayRecipient(recipient, class, instance), err)
			failed = true
			continue
		}
		line, ok := describeOutcome(displayRecipient(recipient, class, instance), outcome)
		if !ok {
			failed = true
		}
		fmt.Println(line)
	}
	if failed {
		sess.Close()
		os.Exit(1)
	}
}

func parseKind(name string) (kind protocol.Kind, err error) {
	switch strings.ToLower(name) {
	case "unsafe":
		kind = protocol.Unsafe
	case "unacked":
		kind = protocol.Unacked
	case "acked":
		kind = protocol.Acked
	default:
		err = fmt.Errorf("unknown delivery kind '%s'", name)
	}
	return
}

func flagGiven(fs *flag.FlagSet, names ...string) (given bool) {
	fs.Visit(func(arg *flag.Flag) {
		for _, name := range names {
			if arg.Name == name {
				given = true
			}
		}
	})
	return
}

// Interactive entry on a terminal (ends at "." or Ctrl-D), whole stream otherwise
func readMessage(input *os.File) (message string, err error) {
	fd := int(input.Fd())
	if !term.IsTerminal(fd) {
		message, err = readPiped(input)
		return
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		err = fmt.Errorf("failed to prepare terminal: %w", err)
		return
	}
	defer term.Restore(fd, oldState)

	screen := struct {
		io.Reader
		io.Writer
	}{input, os.Stdout}
	terminal := term.NewTerminal(screen, "> ")
	fmt.Fprint(terminal, "Type your message now. End with a line containing only '.' or Ctrl-D.\r\n")

	var lines []string
	for {
		var line string
		line, err = terminal.ReadLine()
		if err == io.EOF {
			err = nil
			break
		}
		if err != nil {
			err = fmt.Errorf("failed to read message: %w", err)
			return
		}
		if line == "." {
			break
		}
		lines = append(lines, line)
	}
	message = strings.Join(lines, "\n")
	return
}

func readPiped(input io.Reader) (message string, err error) {
	data, err := io.ReadAll(input)
	if err != nil {
		err = fmt.Errorf("failed to read message from stdin: %w", err)
		return
	}
	message = strings.TrimRight(string(data), "\n")
	return
}

func displayRecipient(recipient string, class string, instance string) string {
	if recipient != "" {
		return recipient
	}
	return fmt.Sprintf("<%s,%s>", class, instance)
}

// One-line summary of a send result. ok is false for deliveries that failed.
func describeOutcome(target string, outcome engine.Outcome) (line string, ok bool) {
	ok = true
	switch outcome.State {
	case engine.ServerAcked:
		status := ""
		if outcome.Ack != nil && len(outcome.Ack.Body) > 0 {
			status = string(outcome.Ack.Body[0])
		}
		switch status {
		case "", "SENT":
			line = fmt.Sprintf("Message sent to %s", target)
		case "LOST", "NOT_SENT":
			line = fmt.Sprintf("%s: not logged in or not subscribing", target)
			ok = false
		default:
			line = fmt.Sprintf("Message to %s acknowledged: %s", target, status)
		}
	case engine.Acked:
		line = fmt.Sprintf("Message for %s accepted by host manager", target)
	case engine.ServerNaked:
		line = fmt.Sprintf("Server refused message to %s", target)
		ok = false
	case engine.TimedOut:
		line = fmt.Sprintf("No acknowledgement for message to %s after %d attempt(s)", target, outcome.Attempts)
		ok = false
	case engine.Sent:
		line = fmt.Sprintf("Message sent to %s (unacknowledged)", target)
	default:
		line = fmt.Sprintf("Message to %s: %s", target, outcome.State)
	}
	return
}
