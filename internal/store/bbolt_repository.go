package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"unichat/internal/types"
)

var (
	bucketSettings = []byte("settings")
	bucketAuth     = []byte("auth")
	keySettings    = []byte("state")
	keyAuth        = []byte("session")
)

type bboltRepository struct {
	db       *bolt.DB
	settings SettingsStore
	auth     AuthStore
}

func NewBboltRepository(path string) (Repository, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("repository db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := initBboltSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &bboltRepository{
		db:       db,
		settings: &bboltSettingsStore{db: db},
		auth:     &bboltAuthStore{db: db},
	}, nil
}

func (r *bboltRepository) Settings() SettingsStore {
	return r.settings
}

func (r *bboltRepository) Auth() AuthStore {
	return r.auth
}

func (r *bboltRepository) Backend() string {
	return RepositoryBackendBbolt
}

func (r *bboltRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func initBboltSchema(db *bolt.DB) error {
	return db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketSettings, bucketAuth} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
}

type bboltSettingsStore struct {
	db *bolt.DB
}

func (s *bboltSettingsStore) Load(ctx context.Context) (*types.Settings, error) {
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSettings)
		if b == nil {
			return nil
		}
		// Get's slice is only valid inside the transaction.
		raw = append([]byte(nil), b.Get(keySettings)...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return &types.Settings{}, nil
	}
	return decodeSettingsDocument(raw)
}

func (s *bboltSettingsStore) Save(ctx context.Context, settings *types.Settings) error {
	if settings == nil {
		return errors.New("settings are required")
	}
	file, err := encodeSettings(settings)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(file)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSettings).Put(keySettings, raw)
	})
}

type bboltAuthStore struct {
	db *bolt.DB
}

func (s *bboltAuthStore) Load(ctx context.Context) (*types.Auth, error) {
	auth := &types.Auth{}
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAuth)
		if b == nil {
			return nil
		}
		raw := b.Get(keyAuth)
		if len(raw) == 0 {
			return nil
		}
		return json.Unmarshal(raw, auth)
	})
	if err != nil {
		return nil, err
	}
	return auth, nil
}

func (s *bboltAuthStore) Save(ctx context.Context, auth *types.Auth) error {
	if auth == nil {
		return errors.New("auth is required")
	}
	raw, err := json.Marshal(auth)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAuth).Put(keyAuth, raw)
	})
}

func (s *bboltAuthStore) Clear(ctx context.Context) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAuth).Delete(keyAuth)
	})
}
