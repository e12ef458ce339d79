package main

import (
	"flag"
	"os"
	"strings"

	"grimm.is/selab/cmd"
	"grimm.is/selab/internal/brand"
	"grimm.is/selab/internal/i18n"
)

var printer = i18n.NewCLIPrinter()

// globalFlags registers the flags shared by every subcommand.
func globalFlags(fs *flag.FlagSet) *cmd.Globals {
	g := &cmd.Globals{}
	fs.StringVar(&g.ConfigFile, "config", "", "Configuration file")
	fs.StringVar(&g.ConfigFile, "c", "", "Configuration file (short)")
	fs.BoolVar(&g.Simulate, "simulate", false, "Use the built-in dataset; run no commands")
	fs.BoolVar(&g.Simulate, "n", false, "Simulate (short)")
	fs.StringVar(&g.LogFile, "logfile", "", "Write logs to this file")
	fs.BoolVar(&g.Debug, "debug", false, "Debug logging")
	return g
}

func main() {
	args := os.Args[1:]
	name := "tui"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		name, args = args[0], args[1:]
	}

	fs := flag.NewFlagSet(name, flag.ExitOnError)
	g := globalFlags(fs)

	var run func() error
	switch name {
	case "tui", "console":
		run = func() error { return cmd.RunConsole(*g) }

	case "history":
		asJSON := fs.Bool("json", false, "Print JSON")
		run = func() error { return cmd.RunHistory(*g, *asJSON) }

	case "show":
		run = func() error { return cmd.RunShow(*g, fs.Arg(0)) }

	case "rollback", "undo":
		id := fs.String("id", "", "Roll back every change down to and including this id")
		run = func() error { return cmd.RunRollback(*g, *id) }

	case "clear-history":
		run = func() error { return cmd.RunClearHistory(*g) }

	case "export":
		profileName := fs.String("name", "", "Profile name")
		desc := fs.String("description", "", "Profile description")
		run = func() error { return cmd.RunExport(*g, fs.Arg(0), *profileName, *desc) }

	case "apply-profile":
		run = func() error { return cmd.RunApplyProfile(*g, fs.Arg(0)) }

	case "harden":
		restrictive := fs.Bool("restrictive", false, "Apply the restrictive preset instead of safe defaults")
		run = func() error { return cmd.RunHarden(*g, *restrictive) }

	case "stats":
		format := fs.String("format", "text", "Output format: text, json or yaml")
		run = func() error { return cmd.RunStats(*g, *format) }

	case "audit":
		record := fs.String("id", "", "Only events for this change id")
		limit := fs.Int("limit", 50, "Maximum events")
		asJSON := fs.Bool("json", false, "Print JSON")
		run = func() error { return cmd.RunAudit(*g, *record, *limit, *asJSON) }

	case "doctor":
		asJSON := fs.Bool("json", false, "Print JSON")
		run = func() error { return cmd.RunDoctor(*g, *asJSON) }

	case "check":
		verbose := fs.Bool("verbose", false, "Print effective settings")
		fs.BoolVar(verbose, "v", false, "Verbose (short)")
		run = func() error {
			path := fs.Arg(0)
			if path == "" {
				path = g.ConfigFile
			}
			return cmd.RunCheck(path, *verbose)
		}

	case "init-config":
		force := fs.Bool("force", false, "Overwrite an existing file")
		run = func() error { return cmd.RunConfigInit(fs.Arg(0), *force) }

	case "help", "-h", "--help":
		printUsage()
		return

	default:
		printer.Fprintf(os.Stderr, "Unknown command: %s\n\n", name)
		printUsage()
		os.Exit(1)
	}

	_ = fs.Parse(args)
	if err := run(); err != nil {
		printer.Fprintf(os.Stderr, i18n.MsgError, err)
		os.Exit(1)
	}
}

func printUsage() {
	printer.Printf(`%s - %s

Usage:
  %s [command] [options]

Commands:
  tui             Interactive workbench (default)
  history         List recorded changes
                  Options: --json
  show ID         Show a change, its undo commands and a state diff
  rollback        Undo the last change
                  Options: --id ID (undo everything down to ID)
  clear-history   Forget every recorded change
  export FILE     Save the current settings as a profile (.json or .yaml)
                  Options: --name, --description
  apply-profile FILE
                  Apply a saved profile as one undoable change
  harden          Apply the safe-defaults boolean preset
                  Options: --restrictive
  stats           Summary with risk score
                  Options: --format text|json|yaml
  audit           Show the audit trail
                  Options: --id ID, --limit N, --json
  doctor          Check tools, mode and writable state files
                  Options: --json
  check [FILE]    Validate a configuration file
                  Options: --verbose (-v)
  init-config FILE
                  Write a default configuration file
                  Options: --force

Global options:
  --config (-c) FILE   Configuration file
  --simulate (-n)      Work on a built-in dataset; run no commands
  --logfile FILE       Log file (the TUI always logs to a file)
  --debug              Debug logging
`, brand.Name, brand.Description, brand.BinaryName)
}
