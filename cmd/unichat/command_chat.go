package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"unichat/internal/conversation"
	"unichat/internal/render"
	"unichat/internal/types"
)

type ChatCommand struct {
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
	openEnv environmentFactory
}

func NewChatCommand(stdin io.Reader, stdout, stderr io.Writer, openEnv environmentFactory) *ChatCommand {
	return &ChatCommand{stdin: stdin, stdout: stdout, stderr: stderr, openEnv: openEnv}
}

func (c *ChatCommand) Run(args []string) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	conversationID := fs.String("id", "", "continue an existing conversation")
	agent := fs.String("agent", "", "agent: general|study-materials|academic-advisor|notifications")
	width := fs.Int("width", defaultWidth, "output width in columns")
	markdown := fs.Bool("markdown", false, "render each reply as markdown once it finishes instead of streaming it")
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

	if strings.TrimSpace(*conversationID) != "" {
		id, err := parseConversationID(*conversationID)
		if err != nil {
			return err
		}
		if err := conv.SwitchConversation(ctx, id); err != nil {
			return err
		}
	}
	if strings.TrimSpace(*agent) != "" {
		kind, ok := types.ParseAgentKind(*agent)
		if !ok {
			return fmt.Errorf("unknown agent: %q", *agent)
		}
		conv.SetAgent(kind)
	}

	session := &chatSession{
		conv:     conv,
		renderer: render.NewRenderer(env.settings.Current().Theme),
		stdout:   c.stdout,
		stderr:   c.stderr,
		width:    *width,
		markdown: *markdown,
	}
	if fs.NArg() > 0 {
		return session.send(ctx, strings.Join(fs.Args(), " "))
	}
	return session.loop(ctx, c.stdin)
}

type chatSession struct {
	conv     *conversation.Store
	renderer *render.Renderer
	stdout   io.Writer
	stderr   io.Writer
	width    int
	markdown bool
}

// send runs one turn. The reply is written as it streams, or rendered as
// markdown once finished when markdown is set. An interrupt stops the stream
// and keeps the partial reply.
func (s *chatSession) send(ctx context.Context, text string) error {
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-interrupts:
			s.conv.CancelStream()
		case <-done:
		}
	}()

	out := &replyWriter{session: s}
	before := len(s.conv.State().Messages)
	err := s.conv.SendObserved(ctx, text, conversation.Observer{
		OnFragment: out.fragment,
		OnDone:     out.done,
	})
	if err != nil && !out.finished {
		messages := s.conv.State().Messages
		if len(messages) > before {
			if reply, ok := lastMessage(messages[before:], types.RoleBot); ok {
				out.done(reply)
			}
		}
	}
	return err
}

// replyWriter prints one reply as the conversation store reveals it.
type replyWriter struct {
	session  *chatSession
	started  bool
	finished bool
}

func (w *replyWriter) fragment(text string) {
	if w.session.markdown {
		return
	}
	if !w.started {
		fmt.Fprintln(w.session.stdout, render.RoleLabel(types.RoleBot))
		w.started = true
	}
	fmt.Fprint(w.session.stdout, text)
}

func (w *replyWriter) done(reply types.Message) {
	w.finished = true
	s := w.session
	if s.markdown {
		fmt.Fprintln(s.stdout, s.renderer.Message(reply, s.width))
		return
	}
	if !w.started {
		fmt.Fprintln(s.stdout, render.RoleLabel(types.RoleBot))
	}
	fmt.Fprintln(s.stdout)
	if reply.Incomplete {
		fmt.Fprintln(s.stdout, render.IncompleteMark())
	}
}

func (s *chatSession) loop(ctx context.Context, in io.Reader) error {
	events, unsubscribe := s.conv.Subscribe()
	noticesDone := make(chan struct{})
	go func() {
		defer close(noticesDone)
		for event := range events {
			if event.Kind == conversation.EventNotice {
				fmt.Fprintln(s.stderr, render.Notice(event.Notice))
			}
		}
	}()
	defer func() {
		unsubscribe()
		<-noticesDone
	}()

	fmt.Fprintln(s.stderr, render.Header("Chatting with "+s.conv.Agent().DisplayName()+". /quit to leave."))
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(s.stderr, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(s.stderr)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			quit, err := s.command(ctx, line)
			if err != nil {
				fmt.Fprintf(s.stderr, "error: %v\n", describeError(err))
			}
			if quit {
				return nil
			}
			continue
		}
		if err := s.send(ctx, line); err != nil {
			fmt.Fprintf(s.stderr, "error: %v\n", describeError(err))
		}
	}
}

func (s *chatSession) command(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true, nil
	case "/new":
		if err := s.conv.NewChat(ctx); err != nil {
			return false, err
		}
		fmt.Fprintln(s.stderr, "started a new conversation")
		return false, nil
	case "/agent":
		if len(fields) < 2 {
			fmt.Fprintln(s.stderr, "agent: "+string(s.conv.Agent()))
			return false, nil
		}
		kind, ok := types.ParseAgentKind(fields[1])
		if !ok {
			return false, fmt.Errorf("unknown agent: %q", fields[1])
		}
		s.conv.SetAgent(kind)
		fmt.Fprintln(s.stderr, "agent: "+kind.DisplayName())
		return false, nil
	default:
		return false, fmt.Errorf("unknown command: %s", fields[0])
	}
}

func lastMessage(messages []types.Message, role types.Role) (types.Message, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == role {
			return messages[i], true
		}
	}
	return types.Message{}, false
}
