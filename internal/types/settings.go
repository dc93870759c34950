package types

type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

// Settings is the persisted client preference set. SelectedAgent is also
// updated when a stored conversation is opened.
type Settings struct {
	SendChatHistory             bool      `json:"send_chat_history"`
	SystemMessage               string    `json:"system_message"`
	UseSystemMessageForAllChats bool      `json:"use_system_message_for_all_chats"`
	SelectedModel               string    `json:"selected_model"`
	SelectedAgent               AgentKind `json:"selected_agent"`
	Theme                       Theme     `json:"theme"`
}

type User struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar"`
}

// Auth holds the bearer token issued by the backend login endpoint.
type Auth struct {
	AccessToken string `json:"access_token"`
	User        User   `json:"user"`
}
