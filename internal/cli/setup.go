package cli

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/roach88/simbridge/internal/config"
	"github.com/roach88/simbridge/internal/profile"
)

// environment is everything a bridge command needs before it can dispatch.
type environment struct {
	cfg     *config.Config
	profile *profile.Profile
	closers []io.Closer
}

// Close releases the log file, if one was opened.
func (e *environment) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		_ = e.closers[i].Close()
	}
}

// prepare loads the config, installs the default logger, and loads the
// aircraft profile. Failures are startup preconditions and map to
// ExitCommandError.
func prepare(opts *RootOptions, stderr io.Writer) (*environment, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	env := &environment{cfg: cfg}
	if c := setupLogging(cfg.Logging, opts.Verbose, stderr); c != nil {
		env.closers = append(env.closers, c)
	}

	prof, err := loadProfile(cfg.Profile)
	if err != nil {
		env.Close()
		return nil, WrapExitError(ExitCommandError, "failed to load profile", err)
	}
	env.profile = prof

	if missing := prof.Missing(); len(missing) > 0 {
		slog.Warn("profile leaves names unmapped; they will not resolve", "profile", prof.Name, "missing", missing)
	}
	slog.Debug("environment ready", "profile", prof.Name, "config", opts.ConfigPath)
	return env, nil
}

// loadProfile loads path, or the built-in profile when path is empty.
func loadProfile(path string) (*profile.Profile, error) {
	if path == "" {
		return profile.Default(), nil
	}
	return profile.Load(path)
}

// setupLogging installs the default slog logger. With logging.file set,
// records go to a rotating file and the returned Closer must be closed on exit.
func setupLogging(cfg config.LoggingConfig, verbose bool, stderr io.Writer) io.Closer {
	level := parseLevel(cfg.Level)
	if verbose {
		level = slog.LevelDebug
	}

	var (
		out    io.Writer = stderr
		closer io.Closer
	)
	if stderr == nil {
		out = os.Stderr
	}
	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		out, closer = lj, lj
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}
	slog.SetDefault(slog.New(handler))
	return closer
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
