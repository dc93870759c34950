package types

type Role string

const (
	RoleUser   Role = "user"
	RoleBot    Role = "bot"
	RoleSystem Role = "system"
)

// Message is one entry of the active chat. Content grows in place while a
// bot reply streams into it.
type Message struct {
	ID         string `json:"id"`
	Role       Role   `json:"role"`
	Content    string `json:"content"`
	Incomplete bool   `json:"incomplete,omitempty"`
}

// ConversationID is assigned by the backend when the first message is
// persisted. Zero means the conversation does not exist yet.
type ConversationID int64

const PendingConversation ConversationID = 0

func (id ConversationID) Pending() bool {
	return id == PendingConversation
}

// ActiveChatState is the conversation currently open in the client.
type ActiveChatState struct {
	Messages              []Message      `json:"messages"`
	CurrentConversationID ConversationID `json:"current_conversation_id"`
}

func CloneMessages(messages []Message) []Message {
	if messages == nil {
		return nil
	}
	return append([]Message{}, messages...)
}

func (s ActiveChatState) Clone() ActiveChatState {
	return ActiveChatState{
		Messages:              CloneMessages(s.Messages),
		CurrentConversationID: s.CurrentConversationID,
	}
}
