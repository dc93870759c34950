// Package settings owns the user's persisted preferences and login state.
package settings

import (
	"context"
	"errors"
	"strings"
	"sync"

	"unichat/internal/conversation"
	"unichat/internal/logging"
	"unichat/internal/store"
	"unichat/internal/types"
)

// Defaults fill fields that were never saved.
type Defaults struct {
	Model           string
	Agent           types.AgentKind
	SendChatHistory bool
}

type Store struct {
	repo   store.SettingsStore
	logger logging.Logger

	mu      sync.Mutex
	current types.Settings
}

// Load reads the saved settings, migrating older schemas, and applies
// defaults to blank fields.
func Load(ctx context.Context, repo store.SettingsStore, defaults Defaults, logger logging.Logger) (*Store, error) {
	if repo == nil {
		return nil, errors.New("settings store is required")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	saved, err := repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	fresh := *saved == types.Settings{}
	current := applyDefaults(*saved, defaults, fresh)
	return &Store{repo: repo, logger: logger, current: current}, nil
}

func applyDefaults(s types.Settings, defaults Defaults, fresh bool) types.Settings {
	if strings.TrimSpace(s.SelectedModel) == "" {
		s.SelectedModel = strings.TrimSpace(defaults.Model)
	}
	if s.SelectedAgent == "" {
		s.SelectedAgent = defaults.Agent
	}
	s.SelectedAgent = types.NormalizeAgentKind(s.SelectedAgent)
	if s.Theme == "" {
		s.Theme = types.ThemeDark
	}
	if fresh {
		s.SendChatHistory = defaults.SendChatHistory
	}
	return s
}

// Current returns a snapshot of the settings.
func (s *Store) Current() types.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Update applies fn to a copy of the settings and saves the result.
func (s *Store) Update(ctx context.Context, fn func(*types.Settings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.current
	fn(&next)
	next.SelectedAgent = types.NormalizeAgentKind(next.SelectedAgent)
	if err := s.repo.Save(ctx, &next); err != nil {
		return err
	}
	s.current = next
	return nil
}

func (s *Store) SelectAgent(ctx context.Context, kind types.AgentKind) error {
	return s.Update(ctx, func(settings *types.Settings) {
		settings.SelectedAgent = kind
	})
}

func (s *Store) SelectModel(ctx context.Context, model string) error {
	model = strings.TrimSpace(model)
	if model == "" {
		return errors.New("model is required")
	}
	return s.Update(ctx, func(settings *types.Settings) {
		settings.SelectedModel = model
	})
}

func (s *Store) SetSystemMessage(ctx context.Context, message string, forAllChats bool) error {
	return s.Update(ctx, func(settings *types.Settings) {
		settings.SystemMessage = strings.TrimSpace(message)
		settings.UseSystemMessageForAllChats = forAllChats
	})
}

func (s *Store) SetSendChatHistory(ctx context.Context, enabled bool) error {
	return s.Update(ctx, func(settings *types.Settings) {
		settings.SendChatHistory = enabled
	})
}

// Follow saves the agent carried by every agent-changed event until events
// is closed. It returns when the channel closes.
func (s *Store) Follow(ctx context.Context, events <-chan conversation.Event) {
	for event := range events {
		if event.Kind != conversation.EventAgentChanged {
			continue
		}
		if s.Current().SelectedAgent == event.Agent {
			continue
		}
		if err := s.SelectAgent(ctx, event.Agent); err != nil {
			s.logger.Warn("settings_agent_save_failed", logging.F("agent", event.Agent), logging.Err(err))
			continue
		}
		s.logger.Debug("settings_agent_changed", logging.F("agent", event.Agent))
	}
}
