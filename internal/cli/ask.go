// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - one-shot commands: ask, translate, summarize and keypoints.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/readerai/internal/assistant"
	"github.com/jeranaias/readerai/internal/host"
	"github.com/jeranaias/readerai/internal/llm"
)

// MaxFileSize is the largest --file input accepted.
const MaxFileSize = 1 << 20

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// termRenderer renders answers for the terminal. It is nil when glamour
// could not be set up, in which case answers print as plain text.
var termRenderer = sync.OnceValue(func() *glamour.TermRenderer {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(answerStyle()),
		glamour.WithWordWrap(min(GetTerminalWidth()-4, 100)),
	)
	if err != nil {
		return nil
	}
	return r
})

// renderTerminal renders markdown for a terminal, falling back to the raw
// text on failure.
func renderTerminal(content string) string {
	r := termRenderer()
	if r == nil {
		return content
	}
	out, err := r.Render(content)
	if err != nil {
		return content
	}
	return out
}

// =============================================================================
// OUTPUT
// =============================================================================

// answerPrinter writes an answer either live, chunk by chunk, or once at
// the end through the terminal renderer. Live output is used for pipes and
// --raw so that nothing is lost when the stream is cut short.
type answerPrinter struct {
	out     io.Writer
	live    bool
	printed bool
}

func newAnswerPrinter(out io.Writer, raw bool) *answerPrinter {
	return &answerPrinter{out: out, live: raw || !IsStdoutTTY()}
}

// attach subscribes to itemID's deltas and returns the unsubscribe func.
func (p *answerPrinter) attach(a *assistant.Assistant, itemID string) func() {
	if !p.live {
		return func() {}
	}
	return a.Events().Subscribe(func(ev host.Event) {
		if ev.ItemID == itemID && ev.Kind == host.EventDelta && ev.Delta != "" {
			fmt.Fprint(p.out, ev.Delta)
			p.printed = true
		}
	})
}

// finish prints whatever the live pass did not.
func (p *answerPrinter) finish(ans *assistant.Answer) {
	switch {
	case p.live && p.printed:
		if !strings.HasSuffix(ans.Text, "\n") {
			fmt.Fprintln(p.out)
		}
	case p.live:
		fmt.Fprintln(p.out, ans.Text)
	default:
		fmt.Fprint(p.out, renderTerminal(ans.Text))
	}
	if ans.Aborted {
		fmt.Fprintln(os.Stderr, WarningStyle.Render("[aborted]"))
	}
}

// printUsage writes token usage to stderr when known.
func printUsage(quiet bool, usage *llm.Usage) {
	if quiet || usage == nil {
		return
	}
	fmt.Fprintln(os.Stderr, DimStyle.Render(fmt.Sprintf("tokens: %d prompt + %d completion = %d",
		usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens)))
}

// =============================================================================
// INPUT
// =============================================================================

// readFile reads a --file argument; "-" reads stdin.
func readFile(path string, stdin io.Reader) (string, error) {
	var r io.Reader = stdin
	if path != "-" {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				return "", &NotFoundError{Resource: "file", ID: path}
			}
			return "", fmt.Errorf("cannot access file: %w", err)
		}
		if info.Size() > MaxFileSize {
			return "", NewValidationError("file", path, fmt.Sprintf("larger than %d bytes", MaxFileSize))
		}
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("failed to read file: %w", err)
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	if len(data) > MaxFileSize {
		return "", NewValidationError("input", "", fmt.Sprintf("larger than %d bytes", MaxFileSize))
	}
	return string(data), nil
}

// inputText returns the text a command works on: --file, else the
// positional arguments, else piped stdin.
func inputText(p *ArgParser, stdin io.Reader) (string, error) {
	if path := p.Flag("file", "f"); path != "" {
		return readFile(path, stdin)
	}
	if p.PositionalCount() > 0 {
		return JoinPositionalArgs(p, 0), nil
	}
	if f, ok := stdin.(*os.File); ok && f == os.Stdin && IsTTY() {
		return "", nil
	}
	return readFile("-", stdin)
}

// abortOnInterrupt aborts itemID's stream on the first Ctrl+C, keeping the
// partial answer. It returns a func that stops listening.
func abortOnInterrupt(a *assistant.Assistant, itemID string) func() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	done := make(chan struct{})
	go func() {
		select {
		case <-sig:
			a.Abort(itemID)
		case <-done:
		}
	}()
	return func() {
		signal.Stop(sig)
		close(done)
	}
}

// =============================================================================
// HANDLERS
// =============================================================================

// HandleAsk handles "ask".
func HandleAsk(args Args, stdin io.Reader, stdout, stderr io.Writer) error {
	p := NewArgParser(args.Raw, "raw", "save-note")
	question := JoinPositionalArgs(p, 0)
	if strings.TrimSpace(question) == "" {
		return ErrMissingArgument("question", `readerai ask "What does the author mean by this?"`)
	}

	q := assistant.Question{Text: question}
	if path := p.Flag("file", "f"); path != "" {
		sel, err := readFile(path, stdin)
		if err != nil {
			return err
		}
		q.Selection = sel
	}
	if v := p.Flag("page"); v != "" {
		page, err := ParseIntWithValidation(v, "page")
		if err != nil {
			return NewValidationError("page", v, err.Error())
		}
		q.Page = &page
	}

	ap, err := newApp(args, stderr, true)
	if err != nil {
		return err
	}
	defer ap.Close()

	ctx := context.Background()
	printer := newAnswerPrinter(stdout, p.BoolFlag("raw"))
	if args.JSON {
		printer.live = false
	}
	unsubscribe := printer.attach(ap.assistant, args.Item)
	stop := abortOnInterrupt(ap.assistant, args.Item)
	ans, err := ap.assistant.Ask(ctx, args.Item, q)
	stop()
	unsubscribe()
	if err != nil {
		return err
	}

	if p.BoolFlag("save-note") {
		heading := p.Flag("heading")
		if heading == "" {
			heading = question
		}
		if _, err := ap.db.EnsureItem(ctx, args.Item, ""); err != nil {
			return err
		}
		if err := ap.assistant.SaveToNote(ctx, args.Item, heading, ans.Text, assistant.NoteAppend); err != nil {
			return err
		}
		if !args.Quiet && !args.JSON {
			fmt.Fprintln(stderr, SuccessStyle.Render("[saved to note]"))
		}
	}

	return OutputJSON(stdout, args.JSON, "ask", ans, func() error {
		printer.finish(ans)
		printUsage(args.Quiet, ans.Usage)
		return nil
	})
}

// TranslateData is the JSON form of the translate command.
type TranslateData struct {
	Language string            `json:"language"`
	Answer   *assistant.Answer `json:"answer"`
}

// HandleTranslate handles "translate".
func HandleTranslate(args Args, stdin io.Reader, stdout, stderr io.Writer) error {
	p := NewArgParser(args.Raw, "raw")
	text, err := inputText(p, stdin)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return ErrMissingArgument("text", `readerai translate --lang fr "Good morning"`)
	}

	return runOneShot(args, p, stdout, stderr, func(ctx context.Context, ap *app) (any, *assistant.Answer, error) {
		lang := p.Flag("lang", "l")
		if lang == "" {
			lang = ap.cfg.LLM.TargetLanguage
		}
		ans, err := ap.assistant.Translate(ctx, args.Item, text, lang)
		return TranslateData{Language: assistant.LanguageName(lang), Answer: ans}, ans, err
	})
}

// HandleSummarize handles "summarize".
func HandleSummarize(args Args, stdin io.Reader, stdout, stderr io.Writer) error {
	p := NewArgParser(args.Raw, "raw")
	text, err := inputText(p, stdin)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return ErrMissingArgument("text", "readerai summarize -f chapter.txt")
	}

	return runOneShot(args, p, stdout, stderr, func(ctx context.Context, ap *app) (any, *assistant.Answer, error) {
		ans, err := ap.assistant.Summarize(ctx, args.Item, text)
		return ans, ans, err
	})
}

// HandleKeyPoints handles "keypoints". Points are listed once parsed
// rather than streamed.
func HandleKeyPoints(args Args, stdin io.Reader, stdout, stderr io.Writer) error {
	p := NewArgParser(args.Raw)
	text, err := inputText(p, stdin)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return ErrMissingArgument("text", "readerai keypoints -f chapter.txt")
	}

	ap, err := newApp(args, stderr, true)
	if err != nil {
		return err
	}
	defer ap.Close()

	stop := abortOnInterrupt(ap.assistant, args.Item)
	points, ans, err := ap.assistant.KeyPoints(context.Background(), args.Item, text)
	stop()
	if err != nil {
		return err
	}
	if points == nil {
		points = []string{}
	}
	data := map[string]any{"points": points, "answer": ans}
	return OutputJSON(stdout, args.JSON, "keypoints", data, func() error {
		if len(points) == 0 {
			fmt.Fprintln(stdout, ans.Text)
			return nil
		}
		for i, pt := range points {
			fmt.Fprintf(stdout, "%s %s\n", HighlightNumber(i+1), pt)
		}
		printUsage(args.Quiet, ans.Usage)
		return nil
	})
}

// HighlightNumber renders a list ordinal.
func HighlightNumber(n int) string {
	return AssistantStyle.Render(fmt.Sprintf("%2d.", n))
}

// runOneShot opens the app, streams one task's answer and prints it.
func runOneShot(args Args, p *ArgParser, stdout, stderr io.Writer,
	task func(ctx context.Context, ap *app) (any, *assistant.Answer, error)) error {
	ap, err := newApp(args, stderr, true)
	if err != nil {
		return err
	}
	defer ap.Close()

	printer := newAnswerPrinter(stdout, p.BoolFlag("raw"))
	if args.JSON {
		printer.live = false
	}
	unsubscribe := printer.attach(ap.assistant, args.Item)
	stop := abortOnInterrupt(ap.assistant, args.Item)
	data, ans, err := task(context.Background(), ap)
	stop()
	unsubscribe()
	if err != nil {
		return err
	}

	return OutputJSON(stdout, args.JSON, args.Name, data, func() error {
		printer.finish(ans)
		printUsage(args.Quiet, ans.Usage)
		return nil
	})
}
