package conversation

import (
	"context"
	"strings"

	"unichat/internal/logging"
	"unichat/internal/stream"
	"unichat/internal/types"
)

// Observer follows the reply of one turn while it streams. Both funcs run
// on the goroutine that called SendObserved.
type Observer struct {
	// OnFragment receives each piece of text once it is part of the reply.
	OnFragment func(text string)
	// OnDone receives the reply when the stream finishes or is cancelled.
	// It is not called when Send returns an error.
	OnDone func(reply types.Message)
}

// Send runs one user turn: it cancels any running stream, appends and
// persists the user message, streams the reply into a new bot message and
// persists the finished reply. Transport and request errors are returned;
// the partial reply stays in place marked incomplete.
func (s *Store) Send(ctx context.Context, content string) error {
	return s.SendObserved(ctx, content, Observer{})
}

// SendObserved is Send with the reply revealed to obs as it arrives.
func (s *Store) SendObserved(ctx context.Context, content string, obs Observer) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyMessage
	}
	user := types.Message{ID: s.newID(), Role: types.RoleUser, Content: content}

	s.mu.Lock()
	s.cancelStreamLocked()
	gen := s.generation
	s.state.Messages = append(s.state.Messages, user)
	s.mu.Unlock()

	if err := s.persist(ctx, gen, user); err != nil {
		return err
	}

	settings := s.currentSettings()
	s.mu.Lock()
	if s.generation != gen {
		// The chat was replaced while the message was being stored.
		s.mu.Unlock()
		return nil
	}
	s.cancelStreamLocked()
	req := stream.Request{
		Agent:       s.agent,
		Model:       s.modelFor(settings),
		Temperature: s.temperature,
		Messages:    completionHistory(s.state.Messages, settings),
	}
	session := stream.NewSession(s.backend, s.logger)
	s.state.Messages = append(s.state.Messages, types.Message{ID: s.newID(), Role: types.RoleBot})
	cursor := &streamCursor{session: session, index: len(s.state.Messages) - 1, generation: gen}
	s.active = cursor
	conversationID := s.state.CurrentConversationID
	s.mu.Unlock()

	s.logger.Debug("stream_start",
		logging.F("conversation_id", conversationID),
		logging.F("agent", req.Agent),
		logging.F("history", len(req.Messages)),
	)
	err := session.Run(ctx, req, stream.Callbacks{
		OnFragment: func(text string) {
			if s.applyFragment(cursor, text) && obs.OnFragment != nil {
				obs.OnFragment(text)
			}
		},
		OnDone: func() {
			reply, ok := s.finishStream(cursor)
			if ok && obs.OnDone != nil {
				obs.OnDone(reply)
			}
		},
	})
	if err != nil {
		s.failStream(cursor)
		return err
	}
	if session.Canceled() {
		return nil
	}
	bot, ok := s.cursorMessage(cursor)
	if !ok {
		return nil
	}
	return s.persist(ctx, gen, bot)
}

// applyFragment reports whether text landed in the cursor's message.
func (s *Store) applyFragment(cursor *streamCursor, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != cursor || !cursor.session.Live() || s.generation != cursor.generation {
		return false
	}
	if cursor.index >= len(s.state.Messages) {
		return false
	}
	s.state.Messages[cursor.index].Content += text
	return true
}

// finishStream returns the finished reply unless its chat was replaced.
func (s *Store) finishStream(cursor *streamCursor) (types.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == cursor {
		s.active = nil
	}
	if cursor.session.Canceled() {
		s.markIncompleteLocked(cursor)
	}
	if s.generation != cursor.generation || cursor.index >= len(s.state.Messages) {
		return types.Message{}, false
	}
	return s.state.Messages[cursor.index], true
}

func (s *Store) failStream(cursor *streamCursor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == cursor {
		s.active = nil
	}
	s.markIncompleteLocked(cursor)
}

func (s *Store) markIncompleteLocked(cursor *streamCursor) {
	if s.generation != cursor.generation || cursor.index >= len(s.state.Messages) {
		return
	}
	s.state.Messages[cursor.index].Incomplete = true
}

func (s *Store) cursorMessage(cursor *streamCursor) (types.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != cursor.generation || cursor.index >= len(s.state.Messages) {
		return types.Message{}, false
	}
	return s.state.Messages[cursor.index], true
}

func (s *Store) currentSettings() types.Settings {
	if s.prefs == nil {
		return types.Settings{}
	}
	return s.prefs.Current()
}

func (s *Store) modelFor(settings types.Settings) string {
	if model := strings.TrimSpace(settings.SelectedModel); model != "" {
		return model
	}
	return s.model
}

// completionHistory builds the request messages from the chat. Without
// SendChatHistory only the latest message is sent. The system message leads
// the first turn of a chat, or every turn when UseSystemMessageForAllChats
// is set.
func completionHistory(messages []types.Message, settings types.Settings) []types.CompletionMessage {
	var out []types.CompletionMessage
	userTurns := 0
	for _, msg := range messages {
		if msg.Role == types.RoleUser {
			userTurns++
		}
	}
	system := strings.TrimSpace(settings.SystemMessage)
	if system != "" && (settings.UseSystemMessageForAllChats || userTurns <= 1) {
		out = append(out, types.CompletionMessage{Role: types.RoleSystem, Content: system})
	}

	if !settings.SendChatHistory {
		for i := len(messages) - 1; i >= 0; i-- {
			if messages[i].Content != "" {
				out = append(out, types.CompletionMessage{Role: messages[i].Role, Content: messages[i].Content})
				break
			}
		}
		return out
	}
	for _, msg := range messages {
		if msg.Content == "" || msg.Role == types.RoleSystem {
			continue
		}
		out = append(out, types.CompletionMessage{Role: msg.Role, Content: msg.Content})
	}
	return out
}
