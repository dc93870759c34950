package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"

	"unichat/internal/types"
)

type SettingsStore interface {
	Load(ctx context.Context) (*types.Settings, error)
	Save(ctx context.Context, settings *types.Settings) error
}

type AuthStore interface {
	Load(ctx context.Context) (*types.Auth, error)
	Save(ctx context.Context, auth *types.Auth) error
	Clear(ctx context.Context) error
}

// settingsFile is the persisted envelope. State stays raw until the
// migration for Version has run.
type settingsFile struct {
	Version int             `json:"version"`
	State   json.RawMessage `json:"state"`
}

func encodeSettings(settings *types.Settings) (settingsFile, error) {
	state, err := json.Marshal(settings)
	if err != nil {
		return settingsFile{}, err
	}
	return settingsFile{Version: SettingsSchemaVersion, State: state}, nil
}

// decodeSettingsDocument accepts the versioned envelope and the bare
// version 0 document, which stored the settings object at the top level.
func decodeSettingsDocument(data []byte) (*types.Settings, error) {
	var file settingsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if file.Version == 0 && len(file.State) == 0 {
		file.State = data
	}
	return decodeSettings(file)
}

func decodeSettings(file settingsFile) (*types.Settings, error) {
	raw := map[string]any{}
	if len(file.State) > 0 && string(file.State) != "null" {
		if err := json.Unmarshal(file.State, &raw); err != nil {
			return nil, err
		}
	}
	settings, err := MigrateSettings(raw, file.Version)
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

type FileSettingsStore struct {
	path string
	mu   sync.Mutex
}

func NewFileSettingsStore(path string) *FileSettingsStore {
	return &FileSettingsStore{path: path}
}

// Load returns zero settings when nothing has been saved yet.
func (s *FileSettingsStore) Load(ctx context.Context) (*types.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &types.Settings{}, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return &types.Settings{}, nil
	}
	return decodeSettingsDocument(data)
}

func (s *FileSettingsStore) Save(ctx context.Context, settings *types.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if settings == nil {
		return errors.New("settings are required")
	}
	file, err := encodeSettings(settings)
	if err != nil {
		return err
	}
	return writeJSONAtomic(s.path, file)
}

type FileAuthStore struct {
	path string
	mu   sync.Mutex
}

func NewFileAuthStore(path string) *FileAuthStore {
	return &FileAuthStore{path: path}
}

func (s *FileAuthStore) Load(ctx context.Context) (*types.Auth, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	auth := &types.Auth{}
	if err := readJSON(s.path, auth); err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, errEmptyFile) {
			return &types.Auth{}, nil
		}
		return nil, err
	}
	return auth, nil
}

func (s *FileAuthStore) Save(ctx context.Context, auth *types.Auth) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if auth == nil {
		return errors.New("auth is required")
	}
	return writeJSONAtomic(s.path, auth)
}

func (s *FileAuthStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return removeFile(s.path)
}
