package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"zephyr/internal/global"
	"zephyr/internal/logctx"
	"zephyr/internal/session"
)

func SetGlobalArguments(fs *flag.FlagSet) {
	fs.IntVar(&global.Verbosity, "v", global.Verbosity, "Increase detailed progress messages (Higher is more verbose) <0...5>")
	fs.IntVar(&global.Verbosity, "verbosity", global.Verbosity, "Increase detailed progress messages (Higher is more verbose) <0...5>")
}

func SetCommon(fs *flag.FlagSet, configPath *string) {
	fs.StringVar(configPath, "c", global.DefaultConfigPath, "Path to the configuration file")
	fs.StringVar(configPath, "config", global.DefaultConfigPath, "Path to the configuration file")
}

// Parses subcommand flags and applies the requested verbosity to the global logger
func parseFlags(ctx context.Context, commandFlags *flag.FlagSet, args []string) {
	commandFlags.Parse(args)
	logctx.SetLogLevel(ctx, global.Verbosity)
}

// Session settings from the config file. A missing file at the default
// path falls back to built-in defaults.
func loadSessionConfig(configPath string) (cfg session.Config, err error) {
	jsonCfg, err := session.LoadConfig(configPath)
	if err != nil {
		if configPath == global.DefaultConfigPath && errors.Is(err, fs.ErrNotExist) {
			err = nil
			return
		}
		return
	}
	cfg, err = jsonCfg.NewSessionConf()
	return
}

func openSession(ctx context.Context, configPath string) (sess *session.Session) {
	cfg, err := loadSessionConfig(configPath)
	if err != nil {
		exitError(err)
	}
	sess, err = session.Open(ctx, cfg, nil)
	if err != nil {
		exitError(fmt.Errorf("failed to open session: %w", err))
	}
	return
}

func exitError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
