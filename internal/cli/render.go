// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/jeranaias/readerai/internal/markdown"
)

// HandleRender renders Markdown to HTML with the same renderer the
// assistant uses for answers. Sanitizing follows render.sanitize.
func HandleRender(args Args, stdin io.Reader, stdout, stderr io.Writer) error {
	p := NewArgParser(args.Raw, "no-tables", "no-links")
	text, err := inputText(p, stdin)
	if err != nil {
		return err
	}

	cfg, _, err := loadConfig(args, stderr)
	if err != nil {
		return err
	}
	opts := cfg.RenderOptions()
	if p.BoolFlag("no-tables") {
		opts.Tables = false
	}
	if p.BoolFlag("no-links") {
		opts.Links = false
	}

	html := markdown.New(opts).Render(text)
	return OutputJSON(stdout, args.JSON, "render", map[string]string{"html": html}, func() error {
		if html == "" {
			return nil
		}
		if !strings.HasSuffix(html, "\n") {
			html += "\n"
		}
		_, err := fmt.Fprint(stdout, html)
		return err
	})
}
