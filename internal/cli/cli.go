// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - command parsing and usage text for readerai.
package cli

import (
	"fmt"
	"io"
	"runtime"
	"strings"
)

// Version information (overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command is the CLI command to execute.
type Command int

const (
	CmdHelp Command = iota
	CmdAsk
	CmdTranslate
	CmdSummarize
	CmdKeyPoints
	CmdChat
	CmdRender
	CmdServe
	CmdTest
	CmdConfig
	CmdList
	CmdExport
	CmdDelete
	CmdItems
	CmdNotes
	CmdVersion
	CmdUnknown
)

var commandNames = map[Command]string{
	CmdHelp:      "help",
	CmdAsk:       "ask",
	CmdTranslate: "translate",
	CmdSummarize: "summarize",
	CmdKeyPoints: "keypoints",
	CmdChat:      "chat",
	CmdRender:    "render",
	CmdServe:     "serve",
	CmdTest:      "test",
	CmdConfig:    "config",
	CmdList:      "list",
	CmdExport:    "export",
	CmdDelete:    "delete",
	CmdItems:     "items",
	CmdNotes:     "notes",
	CmdVersion:   "version",
	CmdUnknown:   "unknown",
}

// String returns the command name.
func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "unknown"
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	ConfigPath string
	Quiet      bool
	Verbose    bool
	JSON       bool
	Model      string
	Item       string

	// Name is the command word as typed.
	Name string

	// Raw holds the arguments after the command word; each handler parses
	// its own flags from it.
	Raw []string
}

// DefaultItem is the document id used when --item is not given.
const DefaultItem = "cli"

const usageText = `readerai - a reading assistant for documents and notes

Usage:
  readerai <command> [flags] [arguments]

Commands:
  ask "question"             Ask about a document
    -f, --file PATH          Use the file's text as the selection (- for stdin)
    --page N                 Page the question refers to
    --raw                    Print the answer unrendered
    --save-note              Append the answer to the document's note
    --heading TEXT           Note heading (default: the question)
  translate [text]           Translate text (or --file) into --lang
    --lang CODE              Target language, e.g. fr, de, ja
  summarize [text]           Summarize text (or --file)
  keypoints [text]           Extract key points from text (or --file)
  chat                       Interactive conversation about a document
  render [text]              Render Markdown (or --file) to HTML
    --no-tables              Leave table syntax unrendered
    --no-links               Leave link syntax unrendered
  serve                      Run the HTTP bridge
    --addr HOST:PORT         Listen address
  test                       Check the model endpoint
  config [show|get|set|path|keys|reset]
                             Show or change settings
    set --encrypt KEY VALUE  Seal a credential in the config file
    reset --confirm          Restore defaults and clear stored preferences
  list [query]               List saved conversations
    --limit N                Show at most N
  export ITEM                Export a saved conversation
    --format md|html|json    Export format (default: md)
    --output DIR             Output directory (default: .)
    --open                   Open the file after export
    --include-system         Keep system prompts
    --no-metadata            Omit the header block
    --no-timestamps          Omit per-message times
    --theme light|dark       HTML theme (default: dark)
  delete ITEM --confirm      Delete a saved conversation
  items                      List documents with notes or conversations
  notes [ITEM]               Show a document's notes (default: --item)
    --limit N                Show at most N
  version                    Show version information
  help                       Show this help

Global Flags:
  --config PATH     Use this config file instead of ~/.readerai/config.toml
  --item ID         Document id (default: cli)
  --model NAME      Override the configured model
  --json            Output in JSON format
  -q, --quiet       Minimal output
  -v, --verbose     Debug logging

Examples:
  readerai ask "What is the main argument?" -f chapter1.txt
  readerai translate --lang fr "Good morning"
  cat notes.md | readerai render -f -
  readerai config set llm.api_key sk-...
  readerai serve --addr 127.0.0.1:8787
  readerai export book-42 --format html --open

Version: %s
`

// PrintUsage writes the help text.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, usageText, Version)
}

// PrintVersion writes version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "readerai version %s\n", Version)
	fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Build date: %s\n", BuildDate)
	fmt.Fprintf(w, "  Go:         %s\n", runtime.Version())
}

// Parse parses argv (without the program name).
func Parse(argv []string) (Command, Args) {
	remaining, args := parseGlobalFlags(argv)
	if len(remaining) == 0 {
		return CmdHelp, args
	}

	args.Name = remaining[0]
	args.Raw = remaining[1:]

	switch strings.ToLower(args.Name) {
	case "ask", "a":
		return CmdAsk, args
	case "translate", "tr":
		return CmdTranslate, args
	case "summarize", "summarise", "sum":
		return CmdSummarize, args
	case "keypoints", "key-points", "kp":
		return CmdKeyPoints, args
	case "chat":
		return CmdChat, args
	case "render":
		return CmdRender, args
	case "serve", "server":
		return CmdServe, args
	case "test":
		return CmdTest, args
	case "config":
		return CmdConfig, args
	case "list", "ls":
		return CmdList, args
	case "export":
		return CmdExport, args
	case "delete", "rm":
		return CmdDelete, args
	case "items":
		return CmdItems, args
	case "notes":
		return CmdNotes, args
	case "version", "--version":
		return CmdVersion, args
	case "help", "-h", "--help":
		return CmdHelp, args
	default:
		return CmdUnknown, args
	}
}

// parseGlobalFlags extracts global flags wherever they appear and returns
// the remaining arguments in order.
func parseGlobalFlags(argv []string) ([]string, Args) {
	var remaining []string
	var args Args

	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		next := func() string {
			if i+1 < len(argv) {
				i++
				return argv[i]
			}
			return ""
		}

		switch arg {
		case "-q", "--quiet":
			args.Quiet = true
		case "-v", "--verbose":
			args.Verbose = true
		case "--json":
			args.JSON = true
		case "--config":
			args.ConfigPath = next()
		case "--model", "-m":
			args.Model = next()
		case "--item":
			args.Item = next()
		default:
			switch {
			case strings.HasPrefix(arg, "--config="):
				args.ConfigPath = strings.TrimPrefix(arg, "--config=")
			case strings.HasPrefix(arg, "--model="):
				args.Model = strings.TrimPrefix(arg, "--model=")
			case strings.HasPrefix(arg, "--item="):
				args.Item = strings.TrimPrefix(arg, "--item=")
			default:
				remaining = append(remaining, arg)
			}
		}
	}

	if args.Item == "" {
		args.Item = DefaultItem
	}
	return remaining, args
}

// =============================================================================
// VERSION
// =============================================================================

// VersionData is the JSON form of the version command.
type VersionData struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// HandleVersion prints version information, as JSON with --json.
func HandleVersion(args Args, w io.Writer) error {
	data := VersionData{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}
	return OutputJSON(w, args.JSON, "version", data, func() error {
		PrintVersion(w)
		return nil
	})
}
