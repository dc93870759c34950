package config

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestPaths(t *testing.T) {
	t.Setenv(homeEnvVar, "")
	t.Setenv("HOME", filepath.Join(t.TempDir(), "home"))

	dataDir, err := DataDir()
	if err != nil {
		t.Fatalf("DataDir: %v", err)
	}
	if !strings.HasSuffix(dataDir, appDirName) {
		t.Fatalf("unexpected data dir: %s", dataDir)
	}

	cases := []struct {
		name string
		fn   func() (string, error)
		want string
	}{
		{"config", CoreConfigPath, "config.toml"},
		{"settings", SettingsPath, "settings.json"},
		{"auth", AuthPath, "auth.json"},
		{"db", DBPath, "unichat.db"},
		{"log", LogPath, "unichat.log"},
	}
	for _, tc := range cases {
		path, err := tc.fn()
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if path != filepath.Join(dataDir, tc.want) {
			t.Fatalf("unexpected %s path: %s", tc.name, path)
		}
	}
}

func TestDataDirOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(homeEnvVar, dir)
	got, err := DataDir()
	if err != nil {
		t.Fatalf("DataDir: %v", err)
	}
	if got != dir {
		t.Fatalf("expected override %q, got %q", dir, got)
	}
}
