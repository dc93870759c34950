package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"unichat/internal/types"
)

type AgentCommand struct {
	stdout  io.Writer
	stderr  io.Writer
	openEnv environmentFactory
}

func NewAgentCommand(stdout, stderr io.Writer, openEnv environmentFactory) *AgentCommand {
	return &AgentCommand{stdout: stdout, stderr: stderr, openEnv: openEnv}
}

func (c *AgentCommand) Run(args []string) error {
	fs := flag.NewFlagSet("agent", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	env, err := c.openEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	if fs.NArg() == 0 {
		printAgents(c.stdout, env.settings.Current().SelectedAgent)
		return nil
	}
	kind, ok := types.ParseAgentKind(fs.Arg(0))
	if !ok {
		return fmt.Errorf("unknown agent: %q", fs.Arg(0))
	}
	if err := env.settings.SelectAgent(ctx, kind); err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.stdout, "agent: %s\n", kind.DisplayName())
	return err
}

func printAgents(output io.Writer, selected types.AgentKind) {
	writer := tabwriter.NewWriter(output, 0, 8, 2, ' ', 0)
	fmt.Fprintln(writer, "\tAGENT\tNAME\tDESCRIPTION")
	for _, kind := range types.AgentKinds() {
		marker := ""
		if kind == selected {
			marker = "*"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", marker, kind, kind.DisplayName(), kind.Description())
	}
	_ = writer.Flush()
}
