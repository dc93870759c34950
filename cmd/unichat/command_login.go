package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
)

type LoginCommand struct {
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
	openEnv environmentFactory
}

func NewLoginCommand(stdin io.Reader, stdout, stderr io.Writer, openEnv environmentFactory) *LoginCommand {
	return &LoginCommand{stdin: stdin, stdout: stdout, stderr: stderr, openEnv: openEnv}
}

func (c *LoginCommand) Run(args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	user := fs.String("user", "", "account name")
	password := fs.String("password", "", "password (read from stdin when omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*user) == "" {
		return errors.New("--user is required")
	}
	secret := *password
	if secret == "" {
		fmt.Fprint(c.stderr, "Password: ")
		line, err := bufio.NewReader(c.stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		secret = strings.TrimRight(line, "\r\n")
	}

	ctx := context.Background()
	env, err := c.openEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()
	if err := env.auth.Login(ctx, env.client, *user, secret); err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.stdout, "logged in as %s\n", strings.TrimSpace(*user))
	return err
}

type LogoutCommand struct {
	stdout  io.Writer
	stderr  io.Writer
	openEnv environmentFactory
}

func NewLogoutCommand(stdout, stderr io.Writer, openEnv environmentFactory) *LogoutCommand {
	return &LogoutCommand{stdout: stdout, stderr: stderr, openEnv: openEnv}
}

func (c *LogoutCommand) Run(args []string) error {
	fs := flag.NewFlagSet("logout", flag.ContinueOnError)
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
	if err := env.auth.Logout(ctx); err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.stdout, "logged out")
	return err
}
