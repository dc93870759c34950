package client

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"unichat/internal/types"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

type PersistMessageRequest struct {
	ID             string               `json:"id"`
	Role           types.Role           `json:"role"`
	Content        string               `json:"content"`
	ConversationID types.ConversationID `json:"conversation_id"`
}

type PersistMessageResponse struct {
	ConversationID types.ConversationID `json:"conversation_id"`
}

type RenameConversationRequest struct {
	Title         string `json:"title"`
	IsTitleEdited bool   `json:"isTitleEdited"`
}

type CompletionRequest struct {
	Model       string                    `json:"model"`
	Temperature float64                   `json:"temperature"`
	Stream      bool                      `json:"stream"`
	Messages    []types.CompletionMessage `json:"messages"`
}

type ConversationMessages struct {
	Messages  []types.Message
	AgentType types.AgentKind
}

type conversationMessagesDTO struct {
	Messages  []messageDTO    `json:"messages"`
	AgentType types.AgentKind `json:"agentType,omitempty"`
}

// messageDTO accepts both numeric backend ids and string client ids.
type messageDTO struct {
	ID      flexibleID `json:"id"`
	Role    types.Role `json:"role"`
	Content string     `json:"content"`
}

func (m messageDTO) toMessage() types.Message {
	return types.Message{ID: string(m.ID), Role: m.Role, Content: m.Content}
}

type flexibleID string

func (id *flexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = flexibleID(n.String())
	return nil
}

type conversationDTO struct {
	ID        types.ConversationID `json:"id"`
	Title     string               `json:"title"`
	CreatedAt string               `json:"created_at"`
	AgentType types.AgentKind      `json:"agentType,omitempty"`
}

func (d conversationDTO) toConversation() types.Conversation {
	return types.Conversation{
		ID:        d.ID,
		Title:     d.Title,
		CreatedAt: parseTimestamp(d.CreatedAt),
		AgentType: types.NormalizeAgentKind(d.AgentType),
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTimestamp accepts the layouts the backend has used for created_at.
// Unparseable values yield the zero time.
func parseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts
		}
	}
	return time.Time{}
}
