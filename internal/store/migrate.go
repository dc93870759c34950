package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"unichat/internal/types"
)

// SettingsSchemaVersion is the version written by Save.
const SettingsSchemaVersion = 2

var ErrUnsupportedSchema = errors.New("unsupported settings schema version")

// legacyKeys maps version 0 camelCase keys to their current names.
var legacyKeys = map[string]string{
	"sendChatHistory":             "send_chat_history",
	"systemMessage":               "system_message",
	"useSystemMessageForAllChats": "use_system_message_for_all_chats",
	"selectedModel":               "selected_model",
	"selectedAgent":               "selected_agent",
	"theme":                       "theme",
}

// legacyAgents maps agent ids used before version 2.
var legacyAgents = map[string]types.AgentKind{
	"article":       types.AgentStudyMaterials,
	"email_support": types.AgentNotifications,
}

// MigrateSettings upgrades a stored settings document from version to the
// current schema. It runs once per load, before the document is decoded.
func MigrateSettings(raw map[string]any, version int) (types.Settings, error) {
	if version < 0 || version > SettingsSchemaVersion {
		return types.Settings{}, fmt.Errorf("%w: %d", ErrUnsupportedSchema, version)
	}
	state := make(map[string]any, len(raw))
	for key, value := range raw {
		state[key] = value
	}
	if version < 1 {
		state = migrateSettingsV0(state)
	}
	if version < 2 {
		state = migrateSettingsV1(state)
	}

	data, err := json.Marshal(state)
	if err != nil {
		return types.Settings{}, err
	}
	var settings types.Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return types.Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return settings, nil
}

// migrateSettingsV0 renames camelCase keys and fills the theme.
func migrateSettingsV0(state map[string]any) map[string]any {
	out := make(map[string]any, len(state))
	for key, value := range state {
		if renamed, ok := legacyKeys[key]; ok {
			key = renamed
		}
		out[key] = value
	}
	if _, ok := out["theme"]; !ok {
		out["theme"] = string(types.ThemeDark)
	}
	return out
}

// migrateSettingsV1 rewrites retired agent ids.
func migrateSettingsV1(state map[string]any) map[string]any {
	agent, _ := state["selected_agent"].(string)
	if renamed, ok := legacyAgents[agent]; ok {
		state["selected_agent"] = string(renamed)
	}
	return state
}
