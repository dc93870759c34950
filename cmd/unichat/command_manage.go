package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
)

type RenameCommand struct {
	stdout  io.Writer
	stderr  io.Writer
	openEnv environmentFactory
}

func NewRenameCommand(stdout, stderr io.Writer, openEnv environmentFactory) *RenameCommand {
	return &RenameCommand{stdout: stdout, stderr: stderr, openEnv: openEnv}
}

func (c *RenameCommand) Run(args []string) error {
	fs := flag.NewFlagSet("rename", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return errors.New("usage: unichat rename <conversation-id> <title>")
	}
	id, err := parseConversationID(fs.Arg(0))
	if err != nil {
		return err
	}
	title := strings.Join(fs.Args()[1:], " ")

	ctx := context.Background()
	env, err := c.openEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()
	conv, stop := env.conversations(ctx)
	defer stop()

	if err := conv.RenameConversation(ctx, id, title); err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.stdout, "renamed %d\n", id)
	return err
}

type DeleteCommand struct {
	stdout  io.Writer
	stderr  io.Writer
	openEnv environmentFactory
}

func NewDeleteCommand(stdout, stderr io.Writer, openEnv environmentFactory) *DeleteCommand {
	return &DeleteCommand{stdout: stdout, stderr: stderr, openEnv: openEnv}
}

func (c *DeleteCommand) Run(args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: unichat delete <conversation-id>")
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

	if err := conv.DeleteConversation(ctx, id); err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.stdout, "deleted %d\n", id)
	return err
}

type ClearCommand struct {
	stdout  io.Writer
	stderr  io.Writer
	openEnv environmentFactory
}

func NewClearCommand(stdout, stderr io.Writer, openEnv environmentFactory) *ClearCommand {
	return &ClearCommand{stdout: stdout, stderr: stderr, openEnv: openEnv}
}

func (c *ClearCommand) Run(args []string) error {
	fs := flag.NewFlagSet("clear", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	yes := fs.Bool("yes", false, "confirm deleting every conversation")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*yes {
		return errors.New("refusing to clear without --yes")
	}

	ctx := context.Background()
	env, err := c.openEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()
	conv, stop := env.conversations(ctx)
	defer stop()

	if err := conv.ClearAll(ctx); err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.stdout, "cleared all conversations")
	return err
}
