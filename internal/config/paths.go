package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	appDirName = ".unichat"
	homeEnvVar = "UNICHAT_HOME"
)

// DataDir returns the base data directory. UNICHAT_HOME overrides the
// default of ~/.unichat.
func DataDir() (string, error) {
	if override := strings.TrimSpace(os.Getenv(homeEnvVar)); override != "" {
		return override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, appDirName), nil
}

// CoreConfigPath returns the path to the TOML config file.
func CoreConfigPath() (string, error) {
	return dataPath("config.toml")
}

// SettingsPath returns the path to the persisted settings file.
func SettingsPath() (string, error) {
	return dataPath("settings.json")
}

// AuthPath returns the path to the persisted auth file.
func AuthPath() (string, error) {
	return dataPath("auth.json")
}

// DBPath returns the path to the bbolt database.
func DBPath() (string, error) {
	return dataPath("unichat.db")
}

// LogPath returns the path to the client log file.
func LogPath() (string, error) {
	return dataPath("unichat.log")
}

func dataPath(name string) (string, error) {
	dataDir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, name), nil
}
