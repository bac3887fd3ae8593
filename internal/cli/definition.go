package cli

import "zephyr/internal/global"

func DefineOptions() (cmdOpts *global.CommandSet) {
	// Root level
	root := &global.CommandSet{
		Description:     "Zephyr notice client (zctl)",
		FullDescription: "  Sends, receives and manages subscriptions for Zephyr notices",
		CommandName:     RootCLICommand,
		ChildCommands:   make(map[string]*global.CommandSet),
	}

	root.ChildCommands["send"] = &global.CommandSet{
		CommandName:     "send",
		UsageOption:     "[recipient...]",
		Description:     "Send a Notice",
		FullDescription: "Sends a message to each recipient (or to the class/instance when none are given) and reports the server acknowledgement",
	}

	root.ChildCommands["receive"] = &global.CommandSet{
		CommandName:     "receive",
		Description:     "Receive Notices",
		FullDescription: "Subscribes, then prints (and optionally forwards to a Beats endpoint) every notice delivered to the session port",
	}

	// Subscription management
	subs := &global.CommandSet{
		CommandName:     "subs",
		Description:     "Manage Subscriptions",
		FullDescription: "Adds, removes, lists and loads subscriptions for the configured port",
		ChildCommands:   make(map[string]*global.CommandSet),
	}
	subs.ChildCommands["add"] = &global.CommandSet{
		CommandName:     "add",
		UsageOption:     "<class> <instance> [recipient]",
		Description:     "Subscribe to a triple",
		FullDescription: "Subscribes to class/instance/recipient; %me% stands for the configured sender",
	}
	subs.ChildCommands["remove"] = &global.CommandSet{
		CommandName:     "remove",
		UsageOption:     "<class> <instance> [recipient]",
		Description:     "Unsubscribe from a triple",
		FullDescription: "Removes a class/instance/recipient subscription",
	}
	subs.ChildCommands["cancel"] = &global.CommandSet{
		CommandName:     "cancel",
		Description:     "Cancel all subscriptions",
		FullDescription: "Clears every subscription held by the server for this port",
	}
	subs.ChildCommands["list"] = &global.CommandSet{
		CommandName:     "list",
		Description:     "List subscriptions",
		FullDescription: "Retrieves the subscriptions the server holds for this port",
	}
	subs.ChildCommands["load"] = &global.CommandSet{
		CommandName:     "load",
		UsageOption:     "[file]",
		Description:     "Load a subscription file",
		FullDescription: "Applies class,instance,recipient lines from a file (default ~/" + global.DefaultSubsFile + "); lines starting with '!' unsubscribe",
	}
	root.ChildCommands["subs"] = subs

	// Setup
	root.ChildCommands["configure"] = &global.CommandSet{
		CommandName:     "configure",
		Description:     "Setup Actions",
		FullDescription: "Create template configuration and session keys",
	}

	// Version Info
	root.ChildCommands["version"] = &global.CommandSet{
		CommandName:     "version",
		Description:     "Show Version Information",
		FullDescription: "Display meta information about program",
	}

	cmdOpts = root
	return
}
