package cli

import (
	"cmp"
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"
	"zephyr/internal/global"
)

const (
	RootCLICommand  string = "root"
	helpMenuTrailer string = `
Configuration is read from ` + global.DefaultConfigPath + ` unless --config is given.
Session keys are read from the configured keyFile (see 'configure --create-key').
`
)

// Full standardized help menu (wraps option printer as well)
func PrintHelpMenu(fs *flag.FlagSet, command string, rootCmd *global.CommandSet) {
	const baseIndentSpaces = 2

	curCmdSet, parents := findCommand(rootCmd, command)
	if curCmdSet == nil {
		fmt.Printf("Unknown command: %s\n", command)
		return
	}

	// Build full usage path, leaving out the root name
	usageParts := []string{os.Args[0]}
	for _, parent := range parents[min(1, len(parents)):] {
		usageParts = append(usageParts, parent.CommandName)
	}
	if curCmdSet != rootCmd {
		usageParts = append(usageParts, curCmdSet.CommandName)
	}
	if len(curCmdSet.ChildCommands) > 0 {
		usageParts = append(usageParts, "[subcommand]")
	}
	if curCmdSet.UsageOption != "" {
		usageParts = append(usageParts, curCmdSet.UsageOption)
	}
	fmt.Printf("Usage: %s\n\n", strings.Join(usageParts, " "))

	// Description
	if curCmdSet == rootCmd {
		fmt.Println(curCmdSet.Description)
		fmt.Println(curCmdSet.FullDescription)
		fmt.Println()
	} else if curCmdSet.FullDescription != "" {
		fmt.Println("  Description:")
		fmt.Printf("    %s\n\n", curCmdSet.FullDescription)
	}

	// Subcommands
	if len(curCmdSet.ChildCommands) > 0 {
		fmt.Printf("%sSubcommands:\n", strings.Repeat(" ", baseIndentSpaces))

		names := make([]string, 0, len(curCmdSet.ChildCommands))
		maxLen := 0
		for name := range curCmdSet.ChildCommands {
			names = append(names, name)
			maxLen = max(maxLen, len(name))
		}
		slices.Sort(names)

		cmdIndent := strings.Repeat(" ", baseIndentSpaces+2)
		for _, name := range names {
			padding := strings.Repeat(" ", maxLen-len(name)+2)
			fmt.Printf("%s%s%s - %s\n", cmdIndent, name, padding, curCmdSet.ChildCommands[name].Description)
		}
		fmt.Println()
	}

	if fs != nil {
		printFlagOptions(fs, baseIndentSpaces)
	}

	if curCmdSet == rootCmd {
		fmt.Print(helpMenuTrailer)
	}
}

// Depth-first lookup returning the command and its ancestors (root first)
func findCommand(root *global.CommandSet, command string) (found *global.CommandSet, parents []*global.CommandSet) {
	if command == "" || command == RootCLICommand || command == root.CommandName {
		found = root
		return
	}
	if child, ok := root.ChildCommands[command]; ok {
		found = child
		parents = []*global.CommandSet{root}
		return
	}
	for _, child := range root.ChildCommands {
		sub, subParents := findCommand(child, command)
		if sub != nil && sub != child {
			found = sub
			parents = append([]*global.CommandSet{root}, subParents...)
			return
		}
	}
	return
}

// Custom printer that merges short/long flags sharing a usage text
func printFlagOptions(fs *flag.FlagSet, baseIndentSpaces int) {
	type optInfo struct {
		short      string
		long       string
		usage      string
		defaultVal string
	}

	var opts []*optInfo
	byUsage := make(map[string]*optInfo)
	fs.VisitAll(func(arg *flag.Flag) {
		opt, seen := byUsage[arg.Usage]
		if !seen {
			opt = &optInfo{usage: arg.Usage, defaultVal: arg.DefValue}
			byUsage[arg.Usage] = opt
			opts = append(opts, opt)
		}
		if len(arg.Name) == 1 {
			opt.short = "-" + arg.Name
		} else {
			opt.long = "--" + arg.Name
		}
	})
	slices.SortFunc(opts, func(a, b *optInfo) int {
		return cmp.Compare(strings.ToLower(cmp.Or(a.short, a.long)), strings.ToLower(cmp.Or(b.short, b.long)))
	})

	// Long-only options line up with the long half of "-x, --xyz"
	const shortColumn = len("-x, ")
	left := func(opt *optInfo) string {
		switch {
		case opt.short != "" && opt.long != "":
			return opt.short + ", " + opt.long
		case opt.short != "":
			return opt.short
		}
		return strings.Repeat(" ", shortColumn) + opt.long
	}

	width := 0
	for _, opt := range opts {
		width = max(width, len(left(opt)))
	}

	indent := strings.Repeat(" ", baseIndentSpaces)
	fmt.Printf("%sOptions:\n", indent)
	for _, opt := range opts {
		desc := opt.usage
		if opt.defaultVal != "" && opt.defaultVal != "false" && opt.defaultVal != "0" {
			desc += fmt.Sprintf(" [default: %s]", opt.defaultVal)
		}
		fmt.Printf("%s%-*s  %s\n", indent, width, left(opt), desc)
	}
}
