package global

// Node in the zctl command tree
type CommandSet struct {
	CommandName     string
	UsageOption     string                 // operand summary for the usage line, e.g. "<class> <instance> [recipient]"
	Description     string                 // one line, shown in the parent's subcommand list
	FullDescription string                 // shown on the command's own help page
	ChildCommands   map[string]*CommandSet // keyed by CommandName
}

type CtxKey string
