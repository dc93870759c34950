package main

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strconv"
	"strings"

	"unichat/internal/client"
	"unichat/internal/config"
	"unichat/internal/conversation"
	"unichat/internal/logging"
	"unichat/internal/settings"
	"unichat/internal/store"
	"unichat/internal/types"
)

const version = "dev"

// environment is the per-invocation wiring shared by the commands.
type environment struct {
	cfg      config.CoreConfig
	logger   logging.Logger
	repo     store.Repository
	settings *settings.Store
	auth     *settings.Auth
	client   *client.Client
	closers  []io.Closer
}

type environmentFactory func(ctx context.Context) (*environment, error)

func openDefaultEnvironment(ctx context.Context) (*environment, error) {
	cfg, err := config.LoadCoreConfig()
	if err != nil {
		return nil, err
	}
	paths, err := repositoryPaths()
	if err != nil {
		return nil, err
	}
	logPath, err := cfg.LogFile()
	if err != nil {
		return nil, err
	}
	logger, logCloser, err := logging.NewFile(logPath, logging.ParseLevel(cfg.LogLevel()))
	if err != nil {
		return nil, err
	}
	env, err := openEnvironment(ctx, cfg, paths, logger)
	if err != nil {
		_ = logCloser.Close()
		return nil, err
	}
	env.closers = append(env.closers, logCloser)
	return env, nil
}

func repositoryPaths() (store.RepositoryPaths, error) {
	settingsPath, err := config.SettingsPath()
	if err != nil {
		return store.RepositoryPaths{}, err
	}
	authPath, err := config.AuthPath()
	if err != nil {
		return store.RepositoryPaths{}, err
	}
	dbPath, err := config.DBPath()
	if err != nil {
		return store.RepositoryPaths{}, err
	}
	return store.RepositoryPaths{SettingsPath: settingsPath, AuthPath: authPath, DBPath: dbPath}, nil
}

func openEnvironment(ctx context.Context, cfg config.CoreConfig, paths store.RepositoryPaths, logger logging.Logger) (*environment, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	repo, err := store.OpenRepository(paths, cfg.StorageBackend())
	if err != nil {
		return nil, err
	}
	if err := store.SeedRepositoryFromFiles(ctx, repo, paths); err != nil {
		logger.Warn("repository_seed_failed", logging.F("backend", repo.Backend()), logging.Err(err))
	}
	prefs, err := settings.Load(ctx, repo.Settings(), settings.Defaults{
		Model:           cfg.DefaultModel(),
		Agent:           cfg.DefaultAgent(),
		SendChatHistory: cfg.SendHistory(),
	}, logger)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}
	auth := settings.NewAuth(repo.Auth())
	c := client.New(cfg.BaseURL(), auth,
		client.WithTimeout(cfg.RequestTimeout()),
		client.WithLogger(logger),
		client.WithStreamDebug(cfg.StreamDebugEnabled()),
	)
	return &environment{
		cfg:      cfg,
		logger:   logger,
		repo:     repo,
		settings: prefs,
		auth:     auth,
		client:   c,
		closers:  []io.Closer{repo},
	}, nil
}

// conversations builds a conversation store whose agent changes are saved
// back to the settings. The returned stop func closes the store and waits
// for the last settings write.
func (e *environment) conversations(ctx context.Context) (*conversation.Store, func()) {
	conv := conversation.New(e.client, conversation.Options{
		Logger:      e.logger,
		Preferences: e.settings,
		Agent:       e.settings.Current().SelectedAgent,
		Model:       e.cfg.DefaultModel(),
		Temperature: e.cfg.Temperature(),
	})
	events, unsubscribe := conv.Subscribe()
	followed := make(chan struct{})
	go func() {
		defer close(followed)
		e.settings.Follow(ctx, events)
	}()
	return conv, func() {
		unsubscribe()
		<-followed
		conv.Close()
	}
}

func (e *environment) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func parseConversationID(raw string) (types.ConversationID, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("invalid conversation id: %q", raw)
	}
	return types.ConversationID(value), nil
}

func exitOnErr(label string, err error, stderr io.Writer) {
	if err == nil {
		return
	}
	fmt.Fprintf(stderr, "%s error: %v\n", label, describeError(err))
	os.Exit(1)
}

func describeError(err error) string {
	switch {
	case errors.Is(err, client.ErrNotLoggedIn):
		return "not logged in (run `unichat login`)"
	case client.AsAPIError(err) != nil:
		apiErr := client.AsAPIError(err)
		if apiErr.StatusCode == 401 {
			return "session expired (run `unichat login`)"
		}
		return apiErr.Error()
	default:
		return err.Error()
	}
}

type VersionCommand struct {
	stdout  io.Writer
	version string
}

func NewVersionCommand(stdout io.Writer, version string) *VersionCommand {
	return &VersionCommand{stdout: stdout, version: version}
}

func (c *VersionCommand) Run(args []string) error {
	_, err := fmt.Fprintln(c.stdout, c.version)
	return err
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		var revision string
		var modified string
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				revision = setting.Value
			case "vcs.modified":
				modified = setting.Value
			}
		}
		if revision != "" {
			if modified == "true" {
				return revision + "-dirty"
			}
			return revision
		}
	}

	exe, err := os.Executable()
	if err == nil {
		file, err := os.Open(exe)
		if err == nil {
			defer file.Close()
			hasher := sha256.New()
			if _, err := io.Copy(hasher, file); err == nil {
				sum := hasher.Sum(nil)
				return fmt.Sprintf("bin-%x", sum[:6])
			}
		}
	}

	return version
}
