package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"unichat/internal/types"
)

func TestMigrateSettingsFromV0(t *testing.T) {
	raw := map[string]any{
		"sendChatHistory": true,
		"systemMessage":   "Be brief.",
		"selectedModel":   "gpt-4",
		"selectedAgent":   "article",
	}
	settings, err := MigrateSettings(raw, 0)
	if err != nil {
		t.Fatalf("MigrateSettings: %v", err)
	}
	want := types.Settings{
		SendChatHistory: true,
		SystemMessage:   "Be brief.",
		SelectedModel:   "gpt-4",
		SelectedAgent:   types.AgentStudyMaterials,
		Theme:           types.ThemeDark,
	}
	if settings != want {
		t.Fatalf("unexpected settings:\n got %#v\nwant %#v", settings, want)
	}
	if _, ok := raw["selected_agent"]; ok {
		t.Fatalf("input map must not be modified")
	}
}

func TestMigrateSettingsFromV1RenamesAgents(t *testing.T) {
	cases := map[string]types.AgentKind{
		"article":          types.AgentStudyMaterials,
		"email_support":    types.AgentNotifications,
		"academic-advisor": types.AgentAcademicAdvisor,
	}
	for legacy, want := range cases {
		settings, err := MigrateSettings(map[string]any{"selected_agent": legacy, "theme": "light"}, 1)
		if err != nil {
			t.Fatalf("MigrateSettings(%q): %v", legacy, err)
		}
		if settings.SelectedAgent != want || settings.Theme != types.ThemeLight {
			t.Fatalf("MigrateSettings(%q) = %#v", legacy, settings)
		}
	}
}

func TestMigrateSettingsCurrentIsUntouched(t *testing.T) {
	settings, err := MigrateSettings(map[string]any{"selected_agent": "article"}, SettingsSchemaVersion)
	if err != nil {
		t.Fatalf("MigrateSettings: %v", err)
	}
	if settings.SelectedAgent != "article" {
		t.Fatalf("current schema must not be rewritten, got %q", settings.SelectedAgent)
	}
}

func TestMigrateSettingsRejectsNewerSchema(t *testing.T) {
	_, err := MigrateSettings(map[string]any{}, SettingsSchemaVersion+1)
	if !errors.Is(err, ErrUnsupportedSchema) {
		t.Fatalf("expected ErrUnsupportedSchema, got %v", err)
	}
}

func TestFileSettingsStoreRoundTripWritesEnvelope(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	s := NewFileSettingsStore(path)
	ctx := context.Background()

	loaded, err := s.Load(ctx)
	if err != nil || !isZeroSettings(loaded) {
		t.Fatalf("expected zero settings for missing file, got %#v %v", loaded, err)
	}
	if err := s.Save(ctx, &types.Settings{SelectedAgent: types.AgentNotifications}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), `"version": 2`) {
		t.Fatalf("expected versioned envelope, got %s", data)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("unexpected mode %v", info.Mode().Perm())
	}
	loaded, err = s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.SelectedAgent != types.AgentNotifications {
		t.Fatalf("unexpected settings %#v", loaded)
	}
}

func TestFileSettingsStoreLoadsBareV0Document(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	legacy := `{"selectedAgent":"email_support","useSystemMessageForAllChats":true}`
	if err := os.WriteFile(path, []byte(legacy), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	loaded, err := NewFileSettingsStore(path).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.SelectedAgent != types.AgentNotifications || !loaded.UseSystemMessageForAllChats {
		t.Fatalf("unexpected migrated settings %#v", loaded)
	}
}

func TestFileAuthStoreClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	s := NewFileAuthStore(path)
	ctx := context.Background()
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear on missing file: %v", err)
	}
	if err := s.Save(ctx, &types.Auth{AccessToken: "tok"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	auth, err := s.Load(ctx)
	if err != nil || auth.AccessToken != "" {
		t.Fatalf("expected empty auth, got %#v %v", auth, err)
	}
}
