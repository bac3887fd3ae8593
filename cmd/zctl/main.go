package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"zephyr/internal/cli"
	"zephyr/internal/global"
	"zephyr/internal/logctx"
)

func main() {
	cliOpts := cli.DefineOptions()
	global.CmdOpts = cliOpts
	global.Verbosity = global.VerbosityStandard

	args := os.Args
	commandFlags := flag.NewFlagSet(args[0], flag.ExitOnError)
	cli.SetGlobalArguments(commandFlags)

	commandFlags.Usage = func() {
		cli.PrintHelpMenu(commandFlags, cli.RootCLICommand, cliOpts)
	}
	if len(args) < 2 {
		cli.PrintHelpMenu(commandFlags, cli.RootCLICommand, cliOpts)
		os.Exit(1)
	}
	commandFlags.Parse(args[1:])
	if commandFlags.NArg() < 1 {
		cli.PrintHelpMenu(commandFlags, cli.RootCLICommand, cliOpts)
		os.Exit(1)
	}

	// Retrieve command and args
	command := commandFlags.Arg(0)
	args = commandFlags.Args()[1:]

	// Setting global logging
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger := logctx.NewLogger("global", global.Verbosity, ctx.Done()) // New logger tied to global
	ctx = logctx.WithLogger(ctx, logger)                               // Add logger to global ctx
	logctx.StartWatcher(logger, os.Stderr)                             // Notices go to stdout, logs to stderr

	// Process commands
	switch command {
	case "send":
		cli.SendMode(ctx, cliOpts, command, args)
	case "receive":
		cli.ReceiveMode(ctx, cliOpts, command, args)
	case "subs":
		cli.SubsMode(ctx, cliOpts, command, args)
	case "configure":
		cli.SetupMode(cliOpts, command, args)
	case "version":
		if len(args) > 0 && (args[0] == "--verbosity" || args[0] == "-v") {
			fmt.Printf("zctl %s\n", global.ProgVersion)
			fmt.Printf("Built using %s(%s) for %s on %s\n", runtime.Version(), runtime.Compiler, runtime.GOOS, runtime.GOARCH)
		} else {
			fmt.Println(global.ProgVersion)
		}
	default:
		cli.PrintHelpMenu(commandFlags, cli.RootCLICommand, cliOpts)
		os.Exit(1)
	}

	// Finish up any writes for global logger
	cancel()
	logger.Wake()
	logger.Wait()
}
