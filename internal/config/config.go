package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"

	"unichat/internal/types"
)

const (
	defaultBaseURL     = "http://127.0.0.1:8080/api/v1"
	defaultTimeout     = 10 * time.Second
	defaultModel       = "gpt-3.5-turbo"
	defaultTemperature = 0.7

	StorageBackendBbolt = "bbolt"
	StorageBackendFile  = "file"
)

var defaultModels = []string{
	"gpt-3.5-turbo",
	"gpt-3.5-turbo-16k",
	"gpt-4",
	"gpt-4-1106-preview",
}

const (
	envBaseURL  = "UNICHAT_BASE_URL"
	envLogLevel = "UNICHAT_LOG_LEVEL"
	envModel    = "UNICHAT_MODEL"
	envStorage  = "UNICHAT_STORAGE"
)

type CoreConfig struct {
	Backend BackendConfig `toml:"backend"`
	Chat    ChatConfig    `toml:"chat"`
	Storage StorageConfig `toml:"storage"`
	Logging LoggingConfig `toml:"logging"`
	Debug   DebugConfig   `toml:"debug"`
}

type BackendConfig struct {
	BaseURL string `toml:"base_url"`
	Timeout string `toml:"timeout"`
}

type ChatConfig struct {
	DefaultModel string   `toml:"default_model"`
	Models       []string `toml:"models"`
	Temperature  *float64 `toml:"temperature"`
	DefaultAgent string   `toml:"default_agent"`
	SendHistory  bool     `toml:"send_history"`
}

type StorageConfig struct {
	Backend string `toml:"backend"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

type DebugConfig struct {
	StreamDebug bool `toml:"stream_debug"`
}

func DefaultCoreConfig() CoreConfig {
	temperature := defaultTemperature
	return CoreConfig{
		Backend: BackendConfig{
			BaseURL: defaultBaseURL,
			Timeout: defaultTimeout.String(),
		},
		Chat: ChatConfig{
			DefaultModel: defaultModel,
			Models:       append([]string{}, defaultModels...),
			Temperature:  &temperature,
			DefaultAgent: string(types.AgentGeneral),
		},
		Storage: StorageConfig{
			Backend: StorageBackendBbolt,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadCoreConfig reads config.toml from the data directory, then applies
// .env and process environment overrides.
func LoadCoreConfig() (CoreConfig, error) {
	path, err := CoreConfigPath()
	if err != nil {
		return CoreConfig{}, err
	}
	cfg, err := loadCoreConfigFromPath(path)
	if err != nil {
		return CoreConfig{}, err
	}
	if err := LoadEnvFile(".env"); err != nil {
		return CoreConfig{}, err
	}
	cfg.applyEnv(os.Getenv)
	return cfg, nil
}

// LoadEnvFile loads KEY=value pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadEnvFile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

func (c *CoreConfig) applyEnv(getenv func(string) string) {
	if value := strings.TrimSpace(getenv(envBaseURL)); value != "" {
		c.Backend.BaseURL = value
	}
	if value := strings.TrimSpace(getenv(envLogLevel)); value != "" {
		c.Logging.Level = value
	}
	if value := strings.TrimSpace(getenv(envModel)); value != "" {
		c.Chat.DefaultModel = value
	}
	if value := strings.TrimSpace(getenv(envStorage)); value != "" {
		c.Storage.Backend = value
	}
}

func (c CoreConfig) BaseURL() string {
	url := strings.TrimRight(strings.TrimSpace(c.Backend.BaseURL), "/")
	if url == "" {
		return defaultBaseURL
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}
	return url
}

func (c CoreConfig) RequestTimeout() time.Duration {
	raw := strings.TrimSpace(c.Backend.Timeout)
	if raw == "" {
		return defaultTimeout
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultTimeout
}

func (c CoreConfig) DefaultModel() string {
	model := strings.TrimSpace(c.Chat.DefaultModel)
	if model == "" {
		return defaultModel
	}
	return model
}

func (c CoreConfig) Models() []string {
	models := normalizedList(c.Chat.Models)
	if len(models) == 0 {
		models = append([]string{}, defaultModels...)
	}
	return models
}

func (c CoreConfig) Temperature() float64 {
	if c.Chat.Temperature == nil {
		return defaultTemperature
	}
	value := *c.Chat.Temperature
	if value < 0 || value > 2 {
		return defaultTemperature
	}
	return value
}

func (c CoreConfig) DefaultAgent() types.AgentKind {
	return types.NormalizeAgentKind(types.AgentKind(c.Chat.DefaultAgent))
}

func (c CoreConfig) SendHistory() bool {
	return c.Chat.SendHistory
}

func (c CoreConfig) StorageBackend() string {
	switch strings.ToLower(strings.TrimSpace(c.Storage.Backend)) {
	case StorageBackendFile:
		return StorageBackendFile
	default:
		return StorageBackendBbolt
	}
}

func (c CoreConfig) LogLevel() string {
	level := strings.TrimSpace(c.Logging.Level)
	if level == "" {
		return "info"
	}
	return level
}

// LogFile resolves the configured log file. Blank means the default log
// path inside the data directory.
func (c CoreConfig) LogFile() (string, error) {
	path := strings.TrimSpace(c.Logging.File)
	if path == "" {
		return LogPath()
	}
	return resolveConfigPath(path)
}

func (c CoreConfig) StreamDebugEnabled() bool {
	return c.Debug.StreamDebug
}

func loadCoreConfigFromPath(path string) (CoreConfig, error) {
	cfg := DefaultCoreConfig()
	if err := readTOML(path, &cfg); err != nil {
		return CoreConfig{}, err
	}
	return cfg, nil
}

func readTOML(path string, out any) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	return toml.Unmarshal(data, out)
}

func resolveConfigPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", errors.New("path is required")
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[2:]), nil
	}
	if filepath.IsAbs(path) {
		return path, nil
	}
	dataDir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, path), nil
}

func normalizedList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	seen := map[string]struct{}{}
	for _, raw := range values {
		value := strings.TrimSpace(raw)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
