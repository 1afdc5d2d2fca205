package cli

import (
	"fmt"
	"os"

	goflags "github.com/jessevdk/go-flags"
)

// commands holds references to all subcommand structs for inspection/testing.
type commands struct {
	Inspect *InspectCommand
	Stacks  *StacksCommand
	Step    *StepCommand
	Profile *ProfileCommand
	History *HistoryCommand
	Status  *StatusCommand
	Prune   *PruneCommand
	Purge   *PurgeCommand
	MCP     *MCPCommand
}

// buildParser constructs the go-flags parser with all subcommands registered.
func buildParser(version string) (*goflags.Parser, *GlobalFlags, *commands) {
	var globals GlobalFlags

	parser := goflags.NewParser(&globals, goflags.Default)
	parser.Name = "tracescope"
	parser.LongDescription = "Replay and measure recorded JVM execution traces: call graphs, per-class metrics over time, and call stacks at any instant."

	cmds := &commands{
		Inspect: &InspectCommand{globals: &globals, version: version},
		Stacks:  &StacksCommand{globals: &globals, version: version},
		Step:    &StepCommand{globals: &globals, version: version},
		Profile: &ProfileCommand{},
		History: &HistoryCommand{globals: &globals},
		Status:  &StatusCommand{globals: &globals, version: version},
		Prune:   &PruneCommand{globals: &globals},
		Purge:   &PurgeCommand{globals: &globals},
		MCP:     &MCPCommand{globals: &globals, version: version},
	}
	cmds.Profile.Save.globals = &globals
	cmds.Profile.List.globals = &globals
	cmds.Profile.Show.globals = &globals
	cmds.Profile.Delete.globals = &globals

	parser.AddCommand("inspect", "Print class and call metrics of a trace", "Load a trace, move the time cursor and print per-class and per-edge metrics over the metric window.", cmds.Inspect)
	parser.AddCommand("stacks", "Print thread call stacks at a time", "Load a trace, replay it to a time and print every thread's call stack.", cmds.Stacks)
	parser.AddCommand("step", "Step over trace events", "Step forwards or backwards over unfiltered events and print the calls entered and exited.", cmds.Step)
	parser.AddCommand("profile", "Manage filter profiles", "Save, list, show and delete named sets of filter rules.", cmds.Profile)
	parser.AddCommand("history", "List recorded trace loads", "List the traces loaded so far, most recent first.", cmds.History)
	parser.AddCommand("status", "Show store statistics", "Show database statistics and the effective engine configuration.", cmds.Status)
	parser.AddCommand("prune", "Delete old trace history", "Delete trace history entries older than a duration.", cmds.Prune)
	parser.AddCommand("purge", "Delete ALL tracescope data", "Delete ALL profiles and history. Destructive operation with safety prompt.", cmds.Purge)
	parser.AddCommand("mcp", "Serve MCP tools over stdio", "Serve the trace engine as Model Context Protocol tools over stdin/stdout.", cmds.MCP)

	return parser, &globals, cmds
}

// Run is the main entry point for the tracescope CLI using os.Args.
func Run(version string) error {
	return RunWithArgs(version, nil)
}

// RunWithArgs parses the given args (or os.Args if nil) and executes the matched subcommand.
func RunWithArgs(version string, args []string) error {
	// Handle --version before parser (go-flags requires a subcommand, but
	// --version is valid without one).
	checkArgs := args
	if checkArgs == nil {
		checkArgs = os.Args[1:]
	}
	for _, arg := range checkArgs {
		if arg == "--version" {
			fmt.Printf("tracescope %s\n", version)
			return nil
		}
		if arg == "--" {
			break
		}
	}

	parser, _, _ := buildParser(version)

	var err error
	if args != nil {
		_, err = parser.ParseArgs(args)
	} else {
		_, err = parser.Parse()
	}

	if err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok {
			if flagsErr.Type == goflags.ErrHelp {
				return nil
			}
		}
		return err
	}

	return nil
}
