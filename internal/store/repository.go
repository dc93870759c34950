package store

import (
	"context"
	"errors"
	"strings"

	"unichat/internal/types"
)

const (
	RepositoryBackendFile  = "file"
	RepositoryBackendBbolt = "bbolt"
)

type Repository interface {
	Settings() SettingsStore
	Auth() AuthStore
	Backend() string
	Close() error
}

type RepositoryPaths struct {
	SettingsPath string
	AuthPath     string
	DBPath       string
}

type fileRepository struct {
	settings SettingsStore
	auth     AuthStore
}

func NewFileRepository(paths RepositoryPaths) Repository {
	return &fileRepository{
		settings: NewFileSettingsStore(paths.SettingsPath),
		auth:     NewFileAuthStore(paths.AuthPath),
	}
}

func (r *fileRepository) Settings() SettingsStore {
	return r.settings
}

func (r *fileRepository) Auth() AuthStore {
	return r.auth
}

func (r *fileRepository) Backend() string {
	return RepositoryBackendFile
}

func (r *fileRepository) Close() error {
	return nil
}

func OpenRepository(paths RepositoryPaths, backend string) (Repository, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", RepositoryBackendBbolt:
		if strings.TrimSpace(paths.DBPath) == "" {
			return nil, errors.New("db path is required for bbolt repository")
		}
		return NewBboltRepository(paths.DBPath)
	case RepositoryBackendFile:
		return NewFileRepository(paths), nil
	default:
		return nil, errors.New("unsupported repository backend: " + backend)
	}
}

// SeedRepositoryFromFiles copies file-backed settings and auth into dst when
// dst has none, so switching the storage backend keeps a user's state.
func SeedRepositoryFromFiles(ctx context.Context, dst Repository, paths RepositoryPaths) error {
	if dst == nil || dst.Backend() == RepositoryBackendFile {
		return nil
	}
	src := NewFileRepository(paths)
	defer src.Close()

	if err := seedSettings(ctx, dst.Settings(), src.Settings()); err != nil {
		return err
	}
	return seedAuth(ctx, dst.Auth(), src.Auth())
}

func seedSettings(ctx context.Context, dst SettingsStore, src SettingsStore) error {
	if dst == nil || src == nil {
		return nil
	}
	current, err := dst.Load(ctx)
	if err != nil {
		return err
	}
	if !isZeroSettings(current) {
		return nil
	}
	legacy, err := src.Load(ctx)
	if err != nil {
		return err
	}
	if isZeroSettings(legacy) {
		return nil
	}
	return dst.Save(ctx, legacy)
}

func seedAuth(ctx context.Context, dst AuthStore, src AuthStore) error {
	if dst == nil || src == nil {
		return nil
	}
	current, err := dst.Load(ctx)
	if err != nil {
		return err
	}
	if strings.TrimSpace(current.AccessToken) != "" {
		return nil
	}
	legacy, err := src.Load(ctx)
	if err != nil {
		return err
	}
	if strings.TrimSpace(legacy.AccessToken) == "" {
		return nil
	}
	return dst.Save(ctx, legacy)
}

func isZeroSettings(settings *types.Settings) bool {
	if settings == nil {
		return true
	}
	return *settings == types.Settings{}
}
