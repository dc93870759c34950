package main

import (
	"fmt"
	"os"
)

const usageText = `unichat is a terminal client for the university chat assistant.

Usage:
  unichat <command> [flags]

Commands:
  login     sign in and store the access token
  logout    forget the stored access token
  history   list conversations grouped by date
  show      print a conversation
  chat      send a message, or start an interactive chat
  rename    rename a conversation
  delete    delete a conversation
  clear     delete every conversation
  agent     show or select the assistant agent
  copy      copy the last reply of a conversation
  config    print configuration (effective or defaults)
  version   print the build version
  help      show help

Flags:
  -h, --help   show help

Chat commands (interactive mode):
  /new            start a new conversation
  /agent <kind>   switch agent
  /quit           leave

Examples:
  unichat login --user jdoe
  unichat chat "When does registration open?"
  unichat chat --agent academic-advisor
  unichat chat --markdown "Summarize the add/drop policy"
  unichat show 42 --width 100
  unichat config --format toml
`

func printUsage() {
	fmt.Fprint(os.Stderr, usageText)
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		return
	}

	wiring := defaultCommandWiring(os.Stdin, os.Stdout, os.Stderr)
	commands := buildCommands(wiring)

	switch args[0] {
	case "-h", "--help", "help":
		printUsage()
		return
	}

	runner, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
	exitOnErr(args[0], runner.Run(args[1:]), wiring.stderr)
}
