package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"unichat/internal/history"
	"unichat/internal/render"
	"unichat/internal/types"
)

const defaultWidth = 80

type HistoryCommand struct {
	stdout  io.Writer
	stderr  io.Writer
	openEnv environmentFactory
	now     func() time.Time
}

func NewHistoryCommand(stdout, stderr io.Writer, openEnv environmentFactory, now func() time.Time) *HistoryCommand {
	if now == nil {
		now = time.Now
	}
	return &HistoryCommand{stdout: stdout, stderr: stderr, openEnv: openEnv, now: now}
}

func (c *HistoryCommand) Run(args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	width := fs.Int("width", defaultWidth, "output width in columns")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	env, err := c.openEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()
	conv, stop := env.conversations(ctx)
	defer stop()

	if err := conv.Refresh(ctx); err != nil {
		return err
	}
	idx := history.Build(conv.Conversations(), c.now())
	return render.History(c.stdout, idx, types.PendingConversation, *width)
}

type ShowCommand struct {
	stdout  io.Writer
	stderr  io.Writer
	openEnv environmentFactory
}

func NewShowCommand(stdout, stderr io.Writer, openEnv environmentFactory) *ShowCommand {
	return &ShowCommand{stdout: stdout, stderr: stderr, openEnv: openEnv}
}

func (c *ShowCommand) Run(args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	width := fs.Int("width", defaultWidth, "output width in columns")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: unichat show <conversation-id>")
	}
	id, err := parseConversationID(fs.Arg(0))
	if err != nil {
		return err
	}

	ctx := context.Background()
	env, err := c.openEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()
	conv, stop := env.conversations(ctx)
	defer stop()

	if err := conv.SwitchConversation(ctx, id); err != nil {
		return err
	}
	r := render.NewRenderer(env.settings.Current().Theme)
	fmt.Fprintln(c.stdout, render.Header(fmt.Sprintf("#%d · %s", id, conv.Agent().DisplayName())))
	_, err = fmt.Fprintln(c.stdout, r.Transcript(conv.State().Messages, *width))
	return err
}

type CopyCommand struct {
	stdout   io.Writer
	stderr   io.Writer
	openEnv  environmentFactory
	copyText func(text string) (render.ClipboardMethod, error)
}

func NewCopyCommand(stdout, stderr io.Writer, openEnv environmentFactory, copyText func(string) (render.ClipboardMethod, error)) *CopyCommand {
	if copyText == nil {
		copyText = render.Copy
	}
	return &CopyCommand{stdout: stdout, stderr: stderr, openEnv: openEnv, copyText: copyText}
}

func (c *CopyCommand) Run(args []string) error {
	fs := flag.NewFlagSet("copy", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: unichat copy <conversation-id>")
	}
	id, err := parseConversationID(fs.Arg(0))
	if err != nil {
		return err
	}

	ctx := context.Background()
	env, err := c.openEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()
	conv, stop := env.conversations(ctx)
	defer stop()

	if err := conv.SwitchConversation(ctx, id); err != nil {
		return err
	}
	reply, ok := lastReply(conv.State().Messages)
	if !ok {
		return fmt.Errorf("conversation %d has no reply to copy", id)
	}
	method, err := c.copyText(reply)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.stdout, "copied %d characters (%s)\n", len([]rune(reply)), method)
	return err
}

func lastReply(messages []types.Message) (string, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == types.RoleBot && messages[i].Content != "" {
			return messages[i].Content, true
		}
	}
	return "", false
}
