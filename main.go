// readerai - a reading assistant: streaming model client, Markdown
// renderer and per-document conversations.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"fmt"
	"os"

	"github.com/jeranaias/readerai/internal/cli"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	// Sync version info with cli package
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse(os.Args[1:])
	if err := run(cmd, args); err != nil {
		cli.DisplayError(os.Stderr, err, args.JSON)
		os.Exit(cli.GetExitCode(err))
	}
}

func run(cmd cli.Command, args cli.Args) error {
	stdin, stdout, stderr := os.Stdin, os.Stdout, os.Stderr

	switch cmd {
	case cli.CmdHelp:
		cli.PrintUsage(stdout)
		return nil
	case cli.CmdVersion:
		return cli.HandleVersion(args, stdout)
	case cli.CmdAsk:
		return cli.HandleAsk(args, stdin, stdout, stderr)
	case cli.CmdTranslate:
		return cli.HandleTranslate(args, stdin, stdout, stderr)
	case cli.CmdSummarize:
		return cli.HandleSummarize(args, stdin, stdout, stderr)
	case cli.CmdKeyPoints:
		return cli.HandleKeyPoints(args, stdin, stdout, stderr)
	case cli.CmdChat:
		return cli.HandleChat(args, stdout, stderr)
	case cli.CmdRender:
		return cli.HandleRender(args, stdin, stdout, stderr)
	case cli.CmdServe:
		return cli.HandleServe(args, stderr)
	case cli.CmdTest:
		return cli.HandleTest(args, stdout, stderr)
	case cli.CmdConfig:
		return cli.HandleConfig(args, stdout, stderr)
	case cli.CmdList:
		return cli.HandleList(args, stdout, stderr)
	case cli.CmdExport:
		return cli.HandleExport(args, stdout, stderr)
	case cli.CmdDelete:
		return cli.HandleDelete(args, stdout, stderr)
	case cli.CmdItems:
		return cli.HandleItems(args, stdout, stderr)
	case cli.CmdNotes:
		return cli.HandleNotes(args, stdout, stderr)
	}

	fmt.Fprintf(stderr, "Unknown command: %s\n\n", args.Name)
	cli.PrintUsage(stderr)
	os.Exit(cli.ExitUsageError)
	return nil
}
