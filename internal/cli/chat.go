// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - interactive conversation about one document.
package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/jeranaias/readerai/internal/assistant"
	"github.com/jeranaias/readerai/internal/config"
	"github.com/jeranaias/readerai/internal/export"
	"github.com/jeranaias/readerai/internal/model"
	"github.com/jeranaias/readerai/internal/session"
	"github.com/jeranaias/readerai/internal/util"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// lineReader reads input lines. *liner.State satisfies it.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

// ChatCLI wraps liner with a persistent history file.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates the line editor and loads history.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	line.SetCompleter(completeSlash)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	c := &ChatCLI{line: line, historyFile: filepath.Join(dir, "chat_history")}
	if f, err := os.Open(c.historyFile); err == nil {
		_, _ = c.line.ReadHistory(f)
		f.Close()
	}
	return c
}

// Close saves history with owner-only permissions and restores the
// terminal.
func (c *ChatCLI) Close() {
	var buf bytes.Buffer
	if _, err := c.line.WriteHistory(&buf); err == nil {
		_ = util.AtomicWriteFileWithDir(c.historyFile, buf.Bytes(), 0600, 0700)
	}
	c.line.Close()
}

var slashCommands = []string{
	"/help", "/history", "/status", "/summarize", "/keypoints", "/translate",
	"/save", "/export", "/clear", "/model", "/exit",
}

func completeSlash(line string) []string {
	if !strings.HasPrefix(line, "/") {
		return nil
	}
	var out []string
	for _, c := range slashCommands {
		if strings.HasPrefix(c, line) {
			out = append(out, c)
		}
	}
	return out
}

// =============================================================================
// SESSION STATE
// =============================================================================

// ChatSession is the state of one interactive chat.
type ChatSession struct {
	app    *app
	itemID string
	out    io.Writer
	quiet  bool

	lastAnswer   string
	lastQuestion string
	questions    int
}

// =============================================================================
// CHAT HANDLER
// =============================================================================

// HandleChat runs the chat REPL until /exit, Ctrl+C at the prompt or EOF.
func HandleChat(args Args, stdout, stderr io.Writer) error {
	if err := RequiresTTY("chat"); err != nil {
		return err
	}
	ap, err := newApp(args, stderr, true)
	if err != nil {
		return err
	}
	defer ap.Close()

	ctx := context.Background()
	sc, err := ap.assistant.Open(ctx, args.Item)
	if err != nil {
		return err
	}

	cs := &ChatSession{app: ap, itemID: args.Item, out: stdout, quiet: args.Quiet}
	if !args.Quiet {
		cs.printWelcome(sc)
	}

	input := NewChatCLI()
	defer input.Close()

	return cs.loop(ctx, input.line, stderr)
}

// loop reads and dispatches lines.
func (cs *ChatSession) loop(ctx context.Context, in lineReader, stderr io.Writer) error {
	prompt := "readerai> "
	for {
		line, err := in.Prompt(prompt)
		if err != nil {
			// Ctrl+C at the prompt, Ctrl+D and closed input all end the chat.
			fmt.Fprintln(cs.out)
			cs.printExitSummary()
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		in.AppendHistory(line)

		if strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit") {
			cs.printExitSummary()
			return nil
		}
		if strings.HasPrefix(line, "/") {
			cont, err := cs.handleSlash(ctx, line)
			if err != nil {
				DisplayError(stderr, err, false)
			}
			if !cont {
				cs.printExitSummary()
				return nil
			}
			continue
		}
		if err := cs.ask(ctx, line); err != nil {
			DisplayError(stderr, err, false)
		}
	}
}

// ask sends one question and streams the answer.
func (cs *ChatSession) ask(ctx context.Context, question string) error {
	a := cs.app.assistant
	printer := &answerPrinter{out: cs.out, live: true}
	fmt.Fprintln(cs.out, AssistantStyle.Render("assistant"))

	unsubscribe := printer.attach(a, cs.itemID)
	stop := abortOnInterrupt(a, cs.itemID)
	ans, err := a.Ask(ctx, cs.itemID, assistant.Question{Text: question})
	stop()
	unsubscribe()
	if err != nil {
		return err
	}

	printer.finish(ans)
	fmt.Fprintln(cs.out)
	if !ans.Aborted {
		cs.lastAnswer = ans.Text
		cs.lastQuestion = question
		cs.questions++
	}
	return nil
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlash runs a slash command. It returns false to end the chat.
func (cs *ChatSession) handleSlash(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	cmd, rest := strings.ToLower(fields[0]), strings.TrimSpace(strings.TrimPrefix(line, fields[0]))
	a := cs.app.assistant

	switch cmd {
	case "/exit", "/quit", "/q":
		return false, nil

	case "/help", "/?":
		cs.printHelp()

	case "/history":
		cs.printHistory()

	case "/status":
		cs.printStatus()

	case "/model":
		cfg := a.Config()
		fmt.Fprintf(cs.out, "%s %s\n", RenderLabel("Model"), cfg.LLM.Model)
		fmt.Fprintf(cs.out, "%s %s\n", RenderLabel("Endpoint"), cfg.LLM.APIEndpoint)

	case "/summarize", "/summary":
		text := rest
		if text == "" {
			text = cs.conversationText()
		}
		return true, cs.oneShot(func() (*assistant.Answer, error) {
			return a.Summarize(ctx, cs.itemID, text)
		})

	case "/keypoints", "/kp":
		text := rest
		if text == "" {
			text = cs.conversationText()
		}
		stop := abortOnInterrupt(a, cs.itemID)
		points, ans, err := a.KeyPoints(ctx, cs.itemID, text)
		stop()
		if err != nil {
			return true, err
		}
		if len(points) == 0 {
			fmt.Fprintln(cs.out, ans.Text)
		}
		for i, p := range points {
			fmt.Fprintf(cs.out, "%s %s\n", HighlightNumber(i+1), p)
		}

	case "/translate", "/tr":
		lang, text, _ := strings.Cut(rest, " ")
		if text == "" {
			text = cs.lastAnswer
		}
		if lang == "" {
			return true, ErrMissingArgument("language", "/translate fr [text]")
		}
		return true, cs.oneShot(func() (*assistant.Answer, error) {
			return a.Translate(ctx, cs.itemID, text, lang)
		})

	case "/save":
		if cs.lastAnswer == "" {
			return true, errors.New("no answer to save yet")
		}
		heading := rest
		if heading == "" {
			heading = cs.lastQuestion
		}
		if _, err := cs.app.db.EnsureItem(ctx, cs.itemID, ""); err != nil {
			return true, err
		}
		if err := a.SaveToNote(ctx, cs.itemID, heading, cs.lastAnswer, assistant.NoteAppend); err != nil {
			return true, err
		}
		fmt.Fprintln(cs.out, SuccessStyle.Render("Saved to note."))

	case "/export":
		format := rest
		if format == "" {
			format = string(export.FormatMarkdown)
		}
		sc, ok := a.Store().GetSession(cs.itemID)
		if !ok {
			return true, &NotFoundError{Resource: "session", ID: cs.itemID}
		}
		path, err := export.ExportSession(sc, format, export.DefaultOptions())
		if err != nil {
			return true, err
		}
		fmt.Fprintf(cs.out, "%s %s\n", SuccessStyle.Render("Exported:"), path)

	case "/clear":
		a.Store().RemoveSession(cs.itemID)
		if err := cs.app.db.DeleteTranscript(ctx, cs.itemID); err != nil {
			return true, err
		}
		if _, err := a.Open(ctx, cs.itemID); err != nil {
			return true, err
		}
		cs.lastAnswer, cs.lastQuestion = "", ""
		fmt.Fprintln(cs.out, DimStyle.Render("Conversation cleared."))

	default:
		return true, fmt.Errorf("unknown command %s (try /help)", cmd)
	}
	return true, nil
}

// oneShot streams a task's answer.
func (cs *ChatSession) oneShot(task func() (*assistant.Answer, error)) error {
	printer := &answerPrinter{out: cs.out, live: true}
	unsubscribe := printer.attach(cs.app.assistant, cs.itemID)
	stop := abortOnInterrupt(cs.app.assistant, cs.itemID)
	ans, err := task()
	stop()
	unsubscribe()
	if err != nil {
		return err
	}
	printer.finish(ans)
	return nil
}

// conversationText is the non-system conversation as plain text.
func (cs *ChatSession) conversationText() string {
	sc, ok := cs.app.assistant.Store().GetSession(cs.itemID)
	if !ok {
		return ""
	}
	var b strings.Builder
	for _, m := range sc.Messages {
		if m.IsSystem() {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n\n", m.Role, m.Content)
	}
	return b.String()
}

// =============================================================================
// DISPLAY
// =============================================================================

func (cs *ChatSession) printWelcome(sc session.Context) {
	title := cs.itemID
	if sc.Item != nil && sc.Item.Title() != "" {
		title = sc.Item.Title()
	}
	fmt.Fprintln(cs.out, TitleStyle.Render("readerai chat"))
	fmt.Fprintf(cs.out, "%s %s\n", RenderLabel("Document"), title)
	fmt.Fprintf(cs.out, "%s %s\n", RenderLabel("Model"), cs.app.cfg.LLM.Model)
	if n := len(sc.Messages); n > 1 {
		fmt.Fprintf(cs.out, "%s %d messages restored\n", RenderLabel("History"), n)
	}
	fmt.Fprintln(cs.out, DimStyle.Render("Type /help for commands, Ctrl+C to stop an answer, Ctrl+D to leave."))
	fmt.Fprintln(cs.out, RenderSeparatorAdaptive())
}

func (cs *ChatSession) printHelp() {
	fmt.Fprintln(cs.out, SectionStyle.Render("Commands"))
	rows := [][2]string{
		{"/history", "Show the conversation"},
		{"/status", "Show session status"},
		{"/summarize [text]", "Summarize text or the conversation"},
		{"/keypoints [text]", "Key points of text or the conversation"},
		{"/translate LANG [text]", "Translate text or the last answer"},
		{"/save [heading]", "Append the last answer to the note"},
		{"/export [md|html|json]", "Export the conversation"},
		{"/clear", "Forget the conversation"},
		{"/model", "Show the model"},
		{"/exit", "Leave"},
	}
	for _, r := range rows {
		fmt.Fprintf(cs.out, "  %s %s\n", RenderLabel(r[0], 26), r[1])
	}
}

func (cs *ChatSession) printHistory() {
	sc, ok := cs.app.assistant.Store().GetSession(cs.itemID)
	if !ok || len(sc.Messages) == 0 {
		fmt.Fprintln(cs.out, DimStyle.Render("No messages."))
		return
	}
	for _, m := range sc.Messages {
		switch m.Role {
		case model.RoleUser:
			fmt.Fprintln(cs.out, UserStyle.Render("you"))
		case model.RoleAssistant:
			fmt.Fprintln(cs.out, AssistantStyle.Render("assistant"))
		default:
			fmt.Fprintln(cs.out, DimStyle.Render(string(m.Role)))
		}
		fmt.Fprintln(cs.out, WrapText(m.Content, GetTerminalWidth()))
		fmt.Fprintln(cs.out, RenderSeparatorAdaptive())
	}
}

func (cs *ChatSession) printStatus() {
	a := cs.app.assistant
	for _, st := range a.Store().List() {
		if st.ItemID != cs.itemID {
			continue
		}
		fmt.Fprintf(cs.out, "%s %d\n", RenderLabel("Messages"), st.Messages)
		fmt.Fprintf(cs.out, "%s %v\n", RenderLabel("Summary cached"), st.HasSummary)
		fmt.Fprintf(cs.out, "%s %s\n", RenderLabel("Idle"), session.FormatDuration(st.IdleTime))
		fmt.Fprintf(cs.out, "%s %s\n", RenderLabel("Expires in"), session.FormatDuration(st.RemainingTime))
		return
	}
	fmt.Fprintln(cs.out, DimStyle.Render("No active session."))
}

func (cs *ChatSession) printExitSummary() {
	if cs.quiet {
		return
	}
	fmt.Fprintln(cs.out, DimStyle.Render(fmt.Sprintf("%d questions asked. Conversation saved.", cs.questions)))
}

// WrapText wraps text at word boundaries to width, keeping existing line
// breaks. Widths are measured in terminal cells.
func WrapText(text string, width int) string {
	if width > 10 {
		width -= 2
	}
	var out strings.Builder
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			out.WriteByte('\n')
		}
		if util.StringWidth(line) <= width {
			out.WriteString(line)
			continue
		}
		words := strings.Fields(line)
		if len(words) == 0 {
			continue
		}
		cur := words[0]
		for _, w := range words[1:] {
			if util.StringWidth(cur)+1+util.StringWidth(w) <= width {
				cur += " " + w
				continue
			}
			out.WriteString(cur)
			out.WriteByte('\n')
			cur = w
		}
		out.WriteString(cur)
	}
	return out.String()
}
