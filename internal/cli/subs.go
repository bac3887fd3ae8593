package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"zephyr/internal/global"
	"zephyr/internal/subscription"
	"zephyr/pkg/protocol"
)

// Subscription management against the configured port
func SubsMode(ctx context.Context, cliOpts *global.CommandSet, commandname string, args []string) {
	var configPath string
	var save bool

	if len(args) < 1 {
		PrintHelpMenu(nil, commandname, cliOpts)
		os.Exit(1)
	}
	action := args[0]
	args = args[1:]

	commandFlags := flag.NewFlagSet(action, flag.ExitOnError)
	SetGlobalArguments(commandFlags)
	SetCommon(commandFlags, &configPath)
	if action == "list" {
		commandFlags.BoolVar(&save, "save", false, "Also write the list to ~/"+global.DefaultSubsFile)
	}
	commandFlags.Usage = func() {
		PrintHelpMenu(commandFlags, action, cliOpts)
	}
	parseFlags(ctx, commandFlags, args)
	operands := commandFlags.Args()

	var work func(manager *subscription.Manager) error
	switch action {
	case "add", "remove":
		sub, err := parseTriple(operands)
		if err != nil {
			exitError(err)
		}
		work = func(manager *subscription.Manager) error {
			if action == "add" {
				return manager.Add(ctx, sub)
			}
			return manager.Remove(ctx, sub)
		}
	case "cancel":
		work = func(manager *subscription.Manager) error {
			return manager.CancelAll(ctx)
		}
	case "list":
		work = func(manager *subscription.Manager) (err error) {
			subs, err := manager.List(ctx)
			if err != nil {
				return
			}
			err = subscription.WriteFile(os.Stdout, subs)
			if err != nil || !save {
				return
			}
			err = saveSubsFile(subs)
			return
		}
	case "load":
		path := ""
		if len(operands) > 0 {
			path = operands[0]
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				exitError(fmt.Errorf("failed to locate home directory: %w", err))
			}
			path = filepath.Join(home, global.DefaultSubsFile)
		}
		subs, removals, err := loadSubsFile(path)
		if err != nil {
			exitError(err)
		}
		work = func(manager *subscription.Manager) (err error) {
			if len(subs) > 0 {
				err = manager.Add(ctx, subs...)
				if err != nil {
					return
				}
			}
			if len(removals) > 0 {
				err = manager.Remove(ctx, removals...)
			}
			if err == nil {
				fmt.Printf("Applied %d subscription(s) and %d removal(s) from %s\n", len(subs), len(removals), path)
			}
			return
		}
	default:
		PrintHelpMenu(nil, "subs", cliOpts)
		os.Exit(1)
	}

	sess := openSession(ctx, configPath)
	err := work(sess.Subscriptions)
	sess.Close()
	if err != nil {
		exitError(err)
	}
}

// <class> <instance> [recipient]
func parseTriple(operands []string) (sub protocol.Subscription, err error) {
	if len(operands) < 2 || len(operands) > 3 {
		err = fmt.Errorf("expected <class> <instance> [recipient]")
		return
	}
	sub.Class = operands[0]
	sub.Instance = operands[1]
	if len(operands) == 3 {
		sub.Recipient = operands[2]
	}
	return
}

func saveSubsFile(subs []protocol.Subscription) (err error) {
	home, err := os.UserHomeDir()
	if err != nil {
		err = fmt.Errorf("failed to locate home directory: %w", err)
		return
	}
	path := filepath.Join(home, global.DefaultSubsFile)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		err = fmt.Errorf("failed to open subscription file: %w", err)
		return
	}
	defer file.Close()

	err = subscription.WriteFile(file, subs)
	if err != nil {
		err = fmt.Errorf("failed to write subscription file: %w", err)
	}
	return
}
