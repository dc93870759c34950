package main

import (
	"encoding/json"
	"errors"
	"flag"
	"io"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"unichat/internal/config"
)

const (
	configFormatJSON = "json"
	configFormatTOML = "toml"
)

type ConfigCommand struct {
	stdout io.Writer
	stderr io.Writer
}

type configOutput struct {
	CoreConfigPath string                 `json:"core_config_path" toml:"core_config_path"`
	DataDir        string                 `json:"data_dir" toml:"data_dir"`
	Backend        effectiveBackendConfig `json:"backend" toml:"backend"`
	Chat           effectiveChatConfig    `json:"chat" toml:"chat"`
	Storage        effectiveStorageConfig `json:"storage" toml:"storage"`
	Logging        effectiveLoggingConfig `json:"logging" toml:"logging"`
	Debug          effectiveDebugConfig   `json:"debug" toml:"debug"`
}

type effectiveBackendConfig struct {
	BaseURL string `json:"base_url" toml:"base_url"`
	Timeout string `json:"timeout" toml:"timeout"`
}

type effectiveChatConfig struct {
	DefaultModel string   `json:"default_model" toml:"default_model"`
	Models       []string `json:"models" toml:"models"`
	Temperature  float64  `json:"temperature" toml:"temperature"`
	DefaultAgent string   `json:"default_agent" toml:"default_agent"`
	SendHistory  bool     `json:"send_history" toml:"send_history"`
}

type effectiveStorageConfig struct {
	Backend string `json:"backend" toml:"backend"`
}

type effectiveLoggingConfig struct {
	Level string `json:"level" toml:"level"`
	File  string `json:"file" toml:"file"`
}

type effectiveDebugConfig struct {
	StreamDebug bool `json:"stream_debug" toml:"stream_debug"`
}

func NewConfigCommand(stdout, stderr io.Writer) *ConfigCommand {
	return &ConfigCommand{stdout: stdout, stderr: stderr}
}

func (c *ConfigCommand) Run(args []string) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	defaults := fs.Bool("default", false, "print default config values")
	format := fs.String("format", configFormatJSON, "output format: json|toml")
	if err := fs.Parse(args); err != nil {
		return err
	}

	resolvedFormat, err := resolveConfigFormat(*format)
	if err != nil {
		return err
	}
	cfg := config.DefaultCoreConfig()
	if !*defaults {
		cfg, err = config.LoadCoreConfig()
		if err != nil {
			return err
		}
	}
	payload, err := buildConfigOutput(cfg)
	if err != nil {
		return err
	}
	return writeConfigOutput(c.stdout, resolvedFormat, payload)
}

func buildConfigOutput(cfg config.CoreConfig) (configOutput, error) {
	corePath, err := config.CoreConfigPath()
	if err != nil {
		return configOutput{}, err
	}
	dataDir, err := config.DataDir()
	if err != nil {
		return configOutput{}, err
	}
	logFile, err := cfg.LogFile()
	if err != nil {
		return configOutput{}, err
	}
	return configOutput{
		CoreConfigPath: corePath,
		DataDir:        dataDir,
		Backend: effectiveBackendConfig{
			BaseURL: cfg.BaseURL(),
			Timeout: cfg.RequestTimeout().String(),
		},
		Chat: effectiveChatConfig{
			DefaultModel: cfg.DefaultModel(),
			Models:       cfg.Models(),
			Temperature:  cfg.Temperature(),
			DefaultAgent: string(cfg.DefaultAgent()),
			SendHistory:  cfg.SendHistory(),
		},
		Storage: effectiveStorageConfig{
			Backend: cfg.StorageBackend(),
		},
		Logging: effectiveLoggingConfig{
			Level: cfg.LogLevel(),
			File:  logFile,
		},
		Debug: effectiveDebugConfig{
			StreamDebug: cfg.StreamDebugEnabled(),
		},
	}, nil
}

func writeConfigOutput(out io.Writer, format string, payload any) error {
	switch format {
	case configFormatJSON:
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(payload)
	case configFormatTOML:
		data, err := toml.Marshal(payload)
		if err != nil {
			return err
		}
		if len(data) == 0 || data[len(data)-1] != '\n' {
			data = append(data, '\n')
		}
		_, err = out.Write(data)
		return err
	default:
		return errors.New("unsupported format")
	}
}

func resolveConfigFormat(raw string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", configFormatJSON:
		return configFormatJSON, nil
	case configFormatTOML:
		return configFormatTOML, nil
	default:
		return "", errors.New("invalid format: must be json or toml")
	}
}
