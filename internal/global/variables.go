package global

var (
	CmdOpts *CommandSet // zctl command tree, set once in main

	// Log level set by -v. Errors always print; 1 adds session/subscription
	// progress, 3 adds notice headers, 5 adds raw packets.
	Verbosity int
)
