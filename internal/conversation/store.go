// Package conversation holds the client-side state of the active chat and
// the known conversation list, and reconciles it with the backend.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"unichat/internal/client"
	"unichat/internal/logging"
	"unichat/internal/stream"
	"unichat/internal/types"
)

const (
	defaultModel       = "gpt-3.5-turbo"
	defaultTemperature = 0.7
	mutationQueueSize  = 32
	refreshKey         = "conversations"
)

var (
	ErrNoStreamTarget = errors.New("last message is not a bot message")
	ErrEmptyMessage   = errors.New("message is empty")
	ErrIndexRange     = errors.New("message index out of range")
	ErrEmptyTitle     = errors.New("title is required")
)

// Backend is the subset of the API client the store drives.
type Backend interface {
	stream.Opener
	ListConversations(ctx context.Context) ([]types.Conversation, error)
	PersistMessage(ctx context.Context, conversationID types.ConversationID, msg types.Message) (types.ConversationID, error)
	ConversationMessages(ctx context.Context, id types.ConversationID) (*client.ConversationMessages, error)
	RenameConversation(ctx context.Context, id types.ConversationID, title string) error
	DeleteConversation(ctx context.Context, id types.ConversationID) error
	ClearConversations(ctx context.Context) error
}

// Preferences supplies the user settings that shape a completion request.
type Preferences interface {
	Current() types.Settings
}

type Options struct {
	Logger      logging.Logger
	Preferences Preferences
	Agent       types.AgentKind
	Model       string
	Temperature float64
	// NewID generates local message ids. Defaults to random UUIDs.
	NewID func() string
}

// streamCursor ties a running session to the message it writes into.
type streamCursor struct {
	session    *stream.Session
	index      int
	generation uint64
}

type Store struct {
	backend     Backend
	prefs       Preferences
	logger      logging.Logger
	newID       func() string
	model       string
	temperature float64
	queue       *mutationQueue
	hub         *subscriberHub
	refresh     singleflight.Group

	mu            sync.Mutex
	state         types.ActiveChatState
	conversations []types.Conversation
	agent         types.AgentKind
	// generation changes whenever the active chat is replaced, so work
	// started for an earlier chat can tell it is stale.
	generation uint64
	active     *streamCursor
}

func New(backend Backend, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	newID := opts.NewID
	if newID == nil {
		newID = func() string { return uuid.NewString() }
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	temperature := opts.Temperature
	if temperature <= 0 {
		temperature = defaultTemperature
	}
	s := &Store{
		backend:     backend,
		prefs:       opts.Preferences,
		logger:      logger,
		newID:       newID,
		model:       model,
		temperature: temperature,
		hub:         newSubscriberHub(),
		agent:       types.NormalizeAgentKind(opts.Agent),
	}
	s.queue = newMutationQueue(mutationQueueSize, func(name string) {
		s.logger.Debug("conversation_mutation", logging.F("op", name))
	})
	return s
}

// Close cancels any running stream, drains queued mutations and closes
// subscriber channels.
func (s *Store) Close() {
	s.CancelStream()
	s.queue.Close()
	s.hub.Close()
}

func (s *Store) Subscribe() (<-chan Event, func()) {
	return s.hub.Add()
}

func (s *Store) State() types.ActiveChatState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

func (s *Store) CurrentConversationID() types.ConversationID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.CurrentConversationID
}

func (s *Store) Conversations() []types.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.CloneConversations(s.conversations)
}

func (s *Store) Agent() types.AgentKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agent
}

// SetAgent selects the agent used for the next completion.
func (s *Store) SetAgent(kind types.AgentKind) {
	kind = types.NormalizeAgentKind(kind)
	s.mu.Lock()
	s.agent = kind
	s.mu.Unlock()
	s.publish(Event{Kind: EventAgentChanged, Agent: kind})
}

func (s *Store) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

// CancelStream stops the running stream, if any. Fragments still in flight
// are discarded.
func (s *Store) CancelStream() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelStreamLocked()
}

func (s *Store) cancelStreamLocked() {
	if s.active == nil {
		return
	}
	s.logger.Debug("stream_cancel_requested", logging.F("conversation_id", s.state.CurrentConversationID))
	s.active.session.Cancel()
	s.active = nil
}

func (s *Store) resetLocked() {
	s.generation++
	s.state = types.ActiveChatState{CurrentConversationID: types.PendingConversation}
}

// Append adds msg to the end of the active chat and returns its index.
func (s *Store) Append(msg types.Message) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Messages = append(s.state.Messages, msg)
	return len(s.state.Messages) - 1
}

// Put overwrites the message at index. Index may equal the message count,
// which appends.
func (s *Store) Put(index int, msg types.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case index == len(s.state.Messages):
		s.state.Messages = append(s.state.Messages, msg)
	case index >= 0 && index < len(s.state.Messages):
		s.state.Messages[index] = msg
	default:
		return fmt.Errorf("%w: %d", ErrIndexRange, index)
	}
	return nil
}

// ResetAt clears the content of the message at index so it can be
// regenerated.
func (s *Store) ResetAt(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.state.Messages) {
		return fmt.Errorf("%w: %d", ErrIndexRange, index)
	}
	s.state.Messages[index].Content = ""
	s.state.Messages[index].Incomplete = false
	return nil
}

// StreamFragment appends text to the last message, which must be a bot
// message.
func (s *Store) StreamFragment(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.state.Messages)
	if n == 0 || s.state.Messages[n-1].Role != types.RoleBot {
		return ErrNoStreamTarget
	}
	s.state.Messages[n-1].Content += text
	return nil
}

// PersistUserMessage stores msg under the current conversation. When the
// backend files it under a different id (a new conversation, or drift) the
// store adopts that id and refreshes the conversation list once.
func (s *Store) PersistUserMessage(ctx context.Context, msg types.Message) error {
	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()
	return s.persist(ctx, gen, msg)
}

func (s *Store) persist(ctx context.Context, gen uint64, msg types.Message) error {
	return s.queue.Do(ctx, "persist_message", func(ctx context.Context) error {
		s.mu.Lock()
		if s.generation != gen {
			s.mu.Unlock()
			s.logger.Debug("persist_skipped_stale", logging.F("message_id", msg.ID))
			return nil
		}
		current := s.state.CurrentConversationID
		s.mu.Unlock()
		if msg.Content == "" {
			return nil
		}

		id, err := s.backend.PersistMessage(ctx, current, msg)
		if err != nil {
			s.logger.Warn("persist_message_failed", logging.F("conversation_id", current), logging.Err(err))
			return fmt.Errorf("persist message: %w", err)
		}

		s.mu.Lock()
		if s.generation != gen {
			s.mu.Unlock()
			return nil
		}
		changed := !id.Pending() && id != current
		if changed {
			s.state.CurrentConversationID = id
		}
		s.mu.Unlock()
		if !changed {
			return nil
		}
		s.logger.Info("conversation_id_adopted", logging.F("previous", current), logging.F("conversation_id", id))
		// A refresh already in flight may predate the new conversation.
		s.refresh.Forget(refreshKey)
		if err := s.refreshConversations(ctx); err != nil {
			s.notice("Could not refresh conversations", err)
		}
		return nil
	})
}

// Refresh reloads the conversation list. Concurrent calls share one request.
func (s *Store) Refresh(ctx context.Context) error {
	return s.refreshConversations(ctx)
}

func (s *Store) refreshConversations(ctx context.Context) error {
	_, err, _ := s.refresh.Do(refreshKey, func() (any, error) {
		items, err := s.backend.ListConversations(ctx)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.conversations = types.CloneConversations(items)
		s.mu.Unlock()
		s.publish(Event{Kind: EventConversationsChanged, Conversations: types.CloneConversations(items)})
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}
	return nil
}

// SwitchConversation replaces the active chat with the stored conversation
// id and applies its agent kind.
func (s *Store) SwitchConversation(ctx context.Context, id types.ConversationID) error {
	s.CancelStream()
	return s.queue.Do(ctx, "switch_conversation", func(ctx context.Context) error {
		resp, err := s.backend.ConversationMessages(ctx, id)
		if err != nil {
			s.logger.Warn("switch_conversation_failed", logging.F("conversation_id", id), logging.Err(err))
			return fmt.Errorf("open conversation %d: %w", id, err)
		}
		messages := resp.Messages
		if messages == nil {
			messages = []types.Message{}
		}
		agent := types.AgentKind("")
		if resp.AgentType != "" {
			agent = types.NormalizeAgentKind(resp.AgentType)
		}

		s.mu.Lock()
		s.cancelStreamLocked()
		s.generation++
		s.state = types.ActiveChatState{Messages: messages, CurrentConversationID: id}
		if agent != "" {
			s.agent = agent
		}
		s.mu.Unlock()

		if agent != "" {
			s.publish(Event{Kind: EventAgentChanged, Agent: agent})
		}
		return nil
	})
}

// NewChat resets to an empty pending chat. It does nothing when the active
// chat is already empty.
func (s *Store) NewChat(ctx context.Context) error {
	return s.queue.Do(ctx, "new_chat", func(ctx context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if len(s.state.Messages) == 0 {
			return nil
		}
		s.cancelStreamLocked()
		s.resetLocked()
		return nil
	})
}

// DeleteConversation drops id locally, resetting the active chat when it is
// the one deleted, then deletes it on the backend. A backend failure is
// reported but not rolled back.
func (s *Store) DeleteConversation(ctx context.Context, id types.ConversationID) error {
	s.mu.Lock()
	if !id.Pending() && s.state.CurrentConversationID == id {
		s.cancelStreamLocked()
	}
	s.mu.Unlock()

	return s.queue.Do(ctx, "delete_conversation", func(ctx context.Context) error {
		s.mu.Lock()
		kept := make([]types.Conversation, 0, len(s.conversations))
		for _, conv := range s.conversations {
			if conv.ID != id {
				kept = append(kept, conv)
			}
		}
		s.conversations = kept
		if !id.Pending() && s.state.CurrentConversationID == id {
			s.cancelStreamLocked()
			s.resetLocked()
		}
		s.mu.Unlock()
		s.publish(Event{Kind: EventConversationsChanged, Conversations: types.CloneConversations(kept)})

		if err := s.backend.DeleteConversation(ctx, id); err != nil {
			s.notice("Failed to delete conversation", err)
			return fmt.Errorf("delete conversation %d: %w", id, err)
		}
		return nil
	})
}

// RenameConversation updates the title locally, then on the backend. The
// local title stays even when the backend rejects it.
func (s *Store) RenameConversation(ctx context.Context, id types.ConversationID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyTitle
	}
	return s.queue.Do(ctx, "rename_conversation", func(ctx context.Context) error {
		s.mu.Lock()
		for i := range s.conversations {
			if s.conversations[i].ID == id {
				s.conversations[i].Title = title
			}
		}
		items := types.CloneConversations(s.conversations)
		s.mu.Unlock()
		s.publish(Event{Kind: EventConversationsChanged, Conversations: items})

		if err := s.backend.RenameConversation(ctx, id, title); err != nil {
			s.notice("Failed to rename conversation", err)
			return fmt.Errorf("rename conversation %d: %w", id, err)
		}
		return nil
	})
}

// ClearAll empties the conversation list and the active chat, then clears
// the backend.
func (s *Store) ClearAll(ctx context.Context) error {
	s.CancelStream()
	return s.queue.Do(ctx, "clear_conversations", func(ctx context.Context) error {
		s.mu.Lock()
		s.cancelStreamLocked()
		s.conversations = nil
		s.resetLocked()
		s.mu.Unlock()
		s.publish(Event{Kind: EventConversationsChanged})

		if err := s.backend.ClearConversations(ctx); err != nil {
			s.notice("Failed to clear conversations", err)
			return fmt.Errorf("clear conversations: %w", err)
		}
		return nil
	})
}

func (s *Store) publish(event Event) {
	if dropped := s.hub.Broadcast(event); dropped > 0 {
		s.logger.Warn("conversation_event_dropped", logging.F("kind", event.Kind), logging.F("subscribers", dropped))
	}
}

func (s *Store) notice(message string, err error) {
	s.logger.Warn("conversation_notice", logging.F("notice", message), logging.Err(err))
	s.publish(Event{Kind: EventNotice, Notice: message, Err: err})
}
