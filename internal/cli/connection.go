// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jeranaias/readerai/internal/llm"
)

// HandleTest checks that the configured endpoint answers. It fails with a
// CommandError when it does not, so the exit code reflects the outcome.
func HandleTest(args Args, stdout, stderr io.Writer) error {
	ap, err := newApp(args, stderr, true)
	if err != nil {
		return err
	}
	defer ap.Close()

	res := ap.assistant.TestConnection(context.Background())
	err = OutputJSON(stdout, args.JSON, "test", res, func() error {
		printConnection(stdout, ap.cfg.LLM.APIEndpoint, ap.cfg.LLM.Model, res)
		return nil
	})
	if err != nil {
		return err
	}

	if !res.Success {
		return NewCommandError("test", "connection", string(res.Category), connectionError(res))
	}
	return nil
}

func printConnection(w io.Writer, endpoint, model string, res llm.ConnectionResult) {
	fmt.Fprintln(w, TitleStyle.Render("Connection test"))
	fmt.Fprintf(w, "%s %s\n", RenderLabel("Endpoint"), endpoint)
	fmt.Fprintf(w, "%s %s\n", RenderLabel("Model"), model)
	status := "ok"
	if !res.Success {
		status = "fail"
	}
	fmt.Fprintf(w, "%s %s %s\n", RenderLabel("Result"), RenderStatus(status), res.Message)
	if res.Latency > 0 {
		fmt.Fprintf(w, "%s %s\n", RenderLabel("Latency"), res.Latency.Round(time.Millisecond))
	}
}

// connectionError maps a failed result back to the llm sentinel so that
// GetExitCode and the setup hints apply.
func connectionError(res llm.ConnectionResult) error {
	switch res.Category {
	case llm.ConnectionNotConfigured:
		return llm.ErrNotConfigured
	case llm.ConnectionUnauthorized:
		return llm.ErrUnauthorized
	case llm.ConnectionNotFound:
		return llm.ErrEndpointNotFound
	case llm.ConnectionTimeout:
		return llm.ErrTimeout
	case llm.ConnectionNetwork:
		return llm.ErrNetwork
	}
	return errors.New(res.Message)
}
