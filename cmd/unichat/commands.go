package main

import (
	"io"
	"os"
	"time"

	"unichat/internal/render"
)

type commandRunner interface {
	Run(args []string) error
}

type commandWiring struct {
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
	openEnv environmentFactory
	copy    func(text string) (render.ClipboardMethod, error)
	now     func() time.Time
	version string
}

func defaultCommandWiring(stdin io.Reader, stdout, stderr io.Writer) commandWiring {
	if stdin == nil {
		stdin = os.Stdin
	}
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return commandWiring{
		stdin:   stdin,
		stdout:  stdout,
		stderr:  stderr,
		openEnv: openDefaultEnvironment,
		copy:    render.Copy,
		now:     time.Now,
		version: buildVersion(),
	}
}

func buildCommands(wiring commandWiring) map[string]commandRunner {
	return map[string]commandRunner{
		"login":   NewLoginCommand(wiring.stdin, wiring.stdout, wiring.stderr, wiring.openEnv),
		"logout":  NewLogoutCommand(wiring.stdout, wiring.stderr, wiring.openEnv),
		"history": NewHistoryCommand(wiring.stdout, wiring.stderr, wiring.openEnv, wiring.now),
		"show":    NewShowCommand(wiring.stdout, wiring.stderr, wiring.openEnv),
		"chat":    NewChatCommand(wiring.stdin, wiring.stdout, wiring.stderr, wiring.openEnv),
		"rename":  NewRenameCommand(wiring.stdout, wiring.stderr, wiring.openEnv),
		"delete":  NewDeleteCommand(wiring.stdout, wiring.stderr, wiring.openEnv),
		"clear":   NewClearCommand(wiring.stdout, wiring.stderr, wiring.openEnv),
		"agent":   NewAgentCommand(wiring.stdout, wiring.stderr, wiring.openEnv),
		"copy":    NewCopyCommand(wiring.stdout, wiring.stderr, wiring.openEnv, wiring.copy),
		"config":  NewConfigCommand(wiring.stdout, wiring.stderr),
		"version": NewVersionCommand(wiring.stdout, wiring.version),
	}
}
