package types

import "time"

// Conversation is the summary row the backend returns from the
// conversation list.
type Conversation struct {
	ID        ConversationID `json:"id"`
	Title     string         `json:"title"`
	CreatedAt time.Time      `json:"created_at"`
	AgentType AgentKind      `json:"agentType,omitempty"`
}

func CloneConversations(items []Conversation) []Conversation {
	if items == nil {
		return nil
	}
	return append([]Conversation{}, items...)
}
