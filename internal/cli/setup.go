package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"zephyr/internal/auth"
	"zephyr/internal/crypto/hash"
	"zephyr/internal/crypto/random"
	"zephyr/internal/global"
	"zephyr/internal/session"

	"golang.org/x/term"
)

// Setup options
func SetupMode(cliOpts *global.CommandSet, commandname string, args []string) {
	var configPath, templatePath, keyFile string
	var createKey bool

	commandFlags := flag.NewFlagSet(commandname, flag.ExitOnError)
	SetCommon(commandFlags, &configPath)
	commandFlags.StringVar(&templatePath, "config-template", "", "Write a template configuration file to this path")
	commandFlags.BoolVar(&createKey, "create-key", false, "Generate a session key for the configured sender and realm")
	commandFlags.StringVar(&keyFile, "key-file", "", "Key file to write (overrides the configured keyFile)")

	commandFlags.Usage = func() {
		PrintHelpMenu(commandFlags, commandname, cliOpts)
	}
	if len(args) < 1 {
		PrintHelpMenu(commandFlags, commandname, cliOpts)
		os.Exit(1)
	}
	commandFlags.Parse(args)

	var err error
	if templatePath != "" {
		err = writeTemplate(templatePath)
		if err == nil {
			fmt.Printf("Successfully wrote template configuration file to '%s'\n", templatePath)
		}
	} else if createKey {
		var cfg session.Config
		cfg, err = loadSessionConfig(configPath)
		if err == nil {
			err = createSessionKey(cfg, keyFile)
		}
	} else {
		PrintHelpMenu(commandFlags, commandname, cliOpts)
		os.Exit(1)
	}
	if err != nil {
		exitError(err)
	}
}

func templateConfig() (newCfg session.JSONConfig) {
	newCfg.Realm = global.DefaultRealm
	newCfg.Sender = "user"
	newCfg.KeyFile = global.DefaultKeyFile
	newCfg.Server = global.DefaultServerAddress
	newCfg.MaxPacketLen = 1024
	newCfg.AckTimeout = global.DefaultAckTimeout.String()
	newCfg.ReassemblyTimeout = global.DefaultReassemblyTimeout.String()
	newCfg.Retries = 2
	newCfg.RetryBackoff.Initial = global.DefaultRetryInitial.String()
	newCfg.RetryBackoff.Multiplier = global.DefaultRetryMultiplier
	newCfg.RetryBackoff.Max = global.DefaultRetryMax.String()
	newCfg.RetryBackoff.Jitter = true
	newCfg.Queue.MaxNotices = global.DefaultMaxQueuedNotices
	newCfg.Metrics.Interval = global.DefaultMetricInterval.String()
	newCfg.Metrics.MaxAge = global.DefaultMetricMaxAge.String()
	return
}

func writeTemplate(path string) (err error) {
	// Don't overwrite existing without confirmation
	_, err = os.Stat(path)
	if err == nil {
		if !confirm(fmt.Sprintf("Configuration file already exists at '%s'. Are you SURE you want to overwrite it? (yes/no): ", path)) {
			err = fmt.Errorf("not overwriting configuration file")
			return
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		err = fmt.Errorf("failed checking configuration file: %v", err)
		return
	}

	confBytes, err := json.MarshalIndent(templateConfig(), "", "  ")
	if err != nil {
		err = fmt.Errorf("error marshaling new config: %v", err)
		return
	}
	confBytes = append(confBytes, '\n')

	err = os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		err = fmt.Errorf("failed to create configuration directory: %v", err)
		return
	}
	err = os.WriteFile(path, confBytes, 0600)
	if err != nil {
		err = fmt.Errorf("failed to write config to file: %v", err)
		return
	}
	return
}

func createSessionKey(cfg session.Config, keyFile string) (err error) {
	identity, err := resolveIdentity(cfg)
	if err != nil {
		return
	}
	if keyFile == "" {
		keyFile = identity.KeyFile
	}

	key, err := random.Key(hash.Size)
	if err != nil {
		return
	}
	err = auth.WriteKeyFile(keyFile, identity.Realm, identity.Sender, key)
	if err != nil {
		return
	}
	fmt.Printf("Wrote new session key for %s@%s to '%s'\n", identity.Sender, identity.Realm, keyFile)
	return
}

// Applies the same defaults Open would, without binding a port
func resolveIdentity(cfg session.Config) (resolved session.Config, err error) {
	resolved = cfg.WithDefaults()
	if resolved.Sender == "" {
		err = fmt.Errorf("no sender configured and USER is unset")
	}
	return
}

// Interactive yes/no. Without a terminal the answer is no.
func confirm(prompt string) bool {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false
	}
	fmt.Print(prompt)
	input, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	return strings.ToLower(strings.TrimSpace(input)) == "yes"
}
