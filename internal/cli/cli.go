// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Command parsing and dispatch for ollapa.

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jeranaias/ollapa/internal/config"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdChat Command = iota
	CmdAsk
	CmdTUI
	CmdList
	CmdShow
	CmdNew
	CmdRemove
	CmdModels
	CmdStatus
	CmdConfig
	CmdExport
	CmdBackup
	CmdRestore
	CmdVersion
	CmdHelp
	CmdUnknown
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	ConfigPath string
	APIURL     string
	Verbose    bool
	NoColor    bool

	// Name is the command word as typed
	Name string

	// Raw args for the command (global flags removed)
	Raw []string
}

const usageText = `ollapa - chat with local models served by Ollama

Usage:
  ollapa [chat] [--chat ID] [--model M]   Interactive chat (default)
  ollapa ask [--model M] [--chat ID] TEXT Ask one question, streaming the answer
  ollapa tui [--chat ID] [--model M]      Full-screen chat with a chat list
  ollapa list [--json]                    List chats, newest first
  ollapa show ID [--json|--raw]           Show a chat
  ollapa new [--model M] TITLE            Create an empty chat
  ollapa rm ID...                         Delete chats
  ollapa models                           List models installed on the server
  ollapa status                           Check the server and the chat store
  ollapa config [show|get K|set K V|path|keys]
                                          View or edit configuration
  ollapa export ID [--format md|json] [--output DIR]
                                          Export a chat
  ollapa backup [--output FILE]           Write every chat to a .jsonl.zst archive
  ollapa restore FILE                     Import chats from an archive
  ollapa version                          Show version information
  ollapa help                             Show this help

IDs may be abbreviated to any unique prefix.

Chat Commands:
  /help               Show chat commands
  /models             List available models
  /model [NAME]       Show or switch the model for this chat
  /chats              List chats
  /open ID            Switch to another chat
  /new [TITLE]        Start a new chat
  /delete ID          Delete a chat
  /history            Show this chat's messages
  /api [URL]          Show or change the Ollama API URL
  /clear              Clear the screen
  /quit               Exit (also Ctrl+D)

Global Flags:
  --config PATH       Use a different config file
  --api URL           Override the Ollama API URL for this run
  -v, --verbose       Mirror log output to stderr
  --no-color          Disable colored output

Environment:
  OLLAPA_HOME, OLLAPA_API_URL, OLLAPA_MODEL, OLLAPA_DATA_DIR,
  OLLAPA_ERROR_EXPIRY, NO_COLOR

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "ollapa version %s\n", Version)
	fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Build date: %s\n", BuildDate)
}

// Parse parses command-line arguments (without the program name) and
// returns the command and args.
func Parse(argv []string) (Command, Args) {
	remaining, parsedArgs := parseGlobalFlags(argv)

	if len(remaining) == 0 {
		return CmdChat, parsedArgs
	}

	parsedArgs.Name = remaining[0]
	parsedArgs.Raw = remaining[1:]

	switch strings.ToLower(remaining[0]) {
	case "chat":
		return CmdChat, parsedArgs
	case "ask":
		return CmdAsk, parsedArgs
	case "tui", "ui":
		return CmdTUI, parsedArgs
	case "list", "ls", "chats":
		return CmdList, parsedArgs
	case "show", "cat":
		return CmdShow, parsedArgs
	case "new":
		return CmdNew, parsedArgs
	case "rm", "remove", "delete":
		return CmdRemove, parsedArgs
	case "models":
		return CmdModels, parsedArgs
	case "status", "s":
		return CmdStatus, parsedArgs
	case "config":
		return CmdConfig, parsedArgs
	case "export":
		return CmdExport, parsedArgs
	case "backup":
		return CmdBackup, parsedArgs
	case "restore":
		return CmdRestore, parsedArgs
	case "version", "--version":
		return CmdVersion, parsedArgs
	case "help", "-h", "--help":
		return CmdHelp, parsedArgs
	default:
		return CmdUnknown, parsedArgs
	}
}

// parseGlobalFlags extracts global flags from args and returns remaining args.
// Everything after "--" is passed through untouched.
func parseGlobalFlags(args []string) ([]string, Args) {
	var remaining []string
	var parsedArgs Args

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch {
		case arg == "--":
			remaining = append(remaining, args[i:]...)
			return remaining, parsedArgs
		case arg == "-v" || arg == "--verbose":
			parsedArgs.Verbose = true
		case arg == "--no-color":
			parsedArgs.NoColor = true
		case arg == "--config" || arg == "--api":
			if i+1 < len(args) {
				i++
				if arg == "--config" {
					parsedArgs.ConfigPath = args[i]
				} else {
					parsedArgs.APIURL = args[i]
				}
			}
		case strings.HasPrefix(arg, "--config="):
			parsedArgs.ConfigPath = strings.TrimPrefix(arg, "--config=")
		case strings.HasPrefix(arg, "--api="):
			parsedArgs.APIURL = strings.TrimPrefix(arg, "--api=")
		default:
			remaining = append(remaining, arg)
		}
	}

	return remaining, parsedArgs
}

// =============================================================================
// ENTRY POINT
// =============================================================================

// Run executes ollapa with the given arguments and returns the process exit
// code.
func Run(argv []string) int {
	return run(argv, os.Stdout, os.Stderr)
}

func run(argv []string, out, errOut io.Writer) int {
	cmd, args := Parse(argv)

	switch cmd {
	case CmdHelp:
		PrintUsage(out)
		return ExitSuccess
	case CmdVersion:
		PrintVersion(out)
		return ExitSuccess
	case CmdUnknown:
		err := NewUsageError(fmt.Sprintf("unknown command %q", args.Name), "ollapa help")
		DisplayError(errOut, err)
		return GetExitCode(err)
	}

	cfg, cfgPath, err := loadConfig(args)
	if err != nil {
		DisplayError(errOut, err)
		if IsValidationError(err) {
			return ExitUsageError
		}
		return ExitConfigError
	}
	ConfigureColors(cfg.UI.Color)

	closeLog, err := SetupLogging(cfg)
	if err != nil {
		// Not fatal; logs go to stderr instead
		fmt.Fprintf(errOut, "%s %v\n", RenderConditional(WarningStyle, "[WARN]"), err)
	}
	defer closeLog()

	if cmd == CmdConfig {
		err = HandleConfig(out, cfg, cfgPath, NewArgParser(args.Raw))
		return finish(errOut, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(cfg, cfgPath, out, errOut)
	if err != nil {
		DisplayError(errOut, err)
		return GetExitCode(err)
	}
	defer app.Close()

	switch cmd {
	case CmdChat:
		// The REPL manages Ctrl+C itself
		stop()
		err = app.HandleChat(context.Background(), NewArgParser(args.Raw))
	case CmdTUI:
		// Bubble Tea handles Ctrl+C as a key
		stop()
		err = app.HandleTUI(context.Background(), NewArgParser(args.Raw))
	case CmdAsk:
		err = app.HandleAsk(ctx, NewArgParser(args.Raw))
	case CmdList:
		err = app.HandleList(ctx, NewArgParser(args.Raw, "json"))
	case CmdShow:
		err = app.HandleShow(ctx, NewArgParser(args.Raw, "json", "raw"))
	case CmdNew:
		err = app.HandleNew(ctx, NewArgParser(args.Raw, "json"))
	case CmdRemove:
		err = app.HandleRemove(ctx, NewArgParser(args.Raw))
	case CmdModels:
		err = app.HandleModels(ctx, NewArgParser(args.Raw, "json"))
	case CmdStatus:
		err = app.HandleStatus(ctx, NewArgParser(args.Raw, "json"))
	case CmdExport:
		err = app.HandleExport(ctx, NewArgParser(args.Raw))
	case CmdBackup:
		err = app.HandleBackup(ctx, NewArgParser(args.Raw))
	case CmdRestore:
		err = app.HandleRestore(ctx, NewArgParser(args.Raw))
	}
	return finish(errOut, err)
}

func finish(errOut io.Writer, err error) int {
	if err != nil {
		DisplayError(errOut, err)
	}
	return GetExitCode(err)
}

// loadConfig loads the config file named by --config or the default path,
// then applies --api, --no-color and --verbose.
func loadConfig(args Args) (*config.Config, string, error) {
	path := args.ConfigPath
	if path == "" {
		p, err := config.Path()
		if err != nil {
			return nil, "", err
		}
		path = p
	}

	cfg, err := config.LoadFrom(path)
	if err != nil {
		return nil, path, err
	}

	if args.APIURL != "" {
		if err := config.ValidateAPIURL(args.APIURL); err != nil {
			return nil, path, NewValidationError("--api", args.APIURL, err.Error())
		}
		cfg.APIURL = strings.TrimRight(args.APIURL, "/")
	}
	if args.NoColor {
		cfg.UI.Color = "never"
	}
	if args.Verbose {
		cfg.Log.Verbose = true
	}
	return cfg, path, nil
}
