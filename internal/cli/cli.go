// Package cli implements the tabtally command line.
package cli

import (
	"fmt"
	"os"

	goflags "github.com/jessevdk/go-flags"
)

// commands holds references to all subcommand structs for inspection/testing.
type commands struct {
	Status  *StatusCommand
	History *HistoryCommand
	Show    *ShowCommand
	Export  *ExportCommand
	Ingest  *IngestCommand
	Purge   *PurgeCommand
}

// buildParser constructs the go-flags parser with all subcommands registered.
func buildParser(version string) (*goflags.Parser, *GlobalFlags, *commands) {
	var globals GlobalFlags

	parser := goflags.NewParser(&globals, goflags.Default)
	parser.Name = "tabtally"
	parser.LongDescription = "Counts browser tabs opened, closed and switched per day, and how many stay open."

	cmds := &commands{
		Status:  &StatusCommand{globals: &globals, version: version},
		History: &HistoryCommand{globals: &globals},
		Show:    &ShowCommand{globals: &globals},
		Export:  &ExportCommand{globals: &globals},
		Ingest:  &IngestCommand{globals: &globals, version: version},
		Purge:   &PurgeCommand{globals: &globals},
	}

	parser.AddCommand("status", "Show today's counters and store statistics", "Show today's badge and counters, store statistics and whether the daemon is up.", cmds.Status)
	parser.AddCommand("history", "List day summaries", "List per-day summaries in a date range.", cmds.History)
	parser.AddCommand("show", "Print one day in detail", "Print a single day's counters and hourly open-tab histogram.", cmds.Show)
	parser.AddCommand("export", "Export all days as CSV", "Write every stored day record to a CSV file.", cmds.Export)
	parser.AddCommand("ingest", "Run the tracking daemon", "Run the tracking daemon: HTTP event feed, optional Chrome watcher and debounced persistence.", cmds.Ingest)
	parser.AddCommand("purge", "Delete ALL day records", "Delete ALL stored day records. Destructive operation with safety prompt.", cmds.Purge)

	return parser, &globals, cmds
}

// Run is the main entry point for the CLI using os.Args.
func Run(version string) error {
	return RunWithArgs(version, nil)
}

// RunWithArgs parses the given args (or os.Args if nil) and executes the matched subcommand.
func RunWithArgs(version string, args []string) error {
	// go-flags requires a subcommand, but --version is valid without one.
	checkArgs := args
	if checkArgs == nil {
		checkArgs = os.Args[1:]
	}
	for _, arg := range checkArgs {
		if arg == "--version" {
			fmt.Printf("tabtally %s\n", version)
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
