// Package main is the entry point for the localdb command.
//
// localdb stores users, posts and profiles as JSON array files in a data
// directory and keeps the links between them consistent. Configuration is
// read from CLI flags and localdb.yaml.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/maruel/localdb/internal/config"
	"github.com/maruel/localdb/internal/history"
	"github.com/maruel/localdb/internal/jsondb"
	"github.com/maruel/localdb/internal/models"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "localdb: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	version := flag.Bool("version", false, "Print version and exit")
	dataDir := flag.String("data-dir", "./data", "Data directory")
	configPath := flag.String("config", "", "Configuration file (default <data-dir>/"+config.FileName+")")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	useGit := flag.Bool("git", false, "Commit every change to the data directory")
	flag.Usage = usage
	flag.Parse()

	if *version {
		printVersion()
		return nil
	}
	if flag.NArg() == 0 {
		usage()
		return errors.New("missing command")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	ll := &slog.LevelVar{}
	ll.Set(slog.LevelInfo)
	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000", // Like time.TimeOnly plus milliseconds.
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			skip := false
			switch t := a.Value.Any().(type) {
			case string:
				skip = t == ""
			case time.Duration:
				skip = t == 0
			case nil:
				skip = true
			}
			if skip {
				return slog.Attr{}
			}
			return a
		},
	}))
	slog.SetDefault(logger)

	path := *configPath
	if path == "" {
		path = filepath.Join(*dataDir, config.FileName)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	// Flags explicitly set override the configuration file.
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	dir := cfg.ResolveDataDir(path)
	if set["data-dir"] {
		dir = *dataDir
	}
	if set["log-level"] {
		cfg.LogLevel = *logLevel
	}
	if set["git"] {
		cfg.Git.Enabled = *useGit
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	ll.Set(level)

	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	store, err := models.Open(ctx, dir,
		jsondb.WithLogger(logger),
		jsondb.WithResetCorrupt(cfg.ResetCorrupt))
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.WarnContext(ctx, "Failed to close database", "err", err)
		}
	}()

	a := &app{store: store, out: os.Stdout, log: logger, watch: cfg.Watch}
	if cfg.Git.Enabled {
		if a.repo, err = history.Open(ctx, dir, cfg.Git.Author, cfg.Git.Email); err != nil {
			return err
		}
	}
	return a.run(ctx, flag.Args())
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: localdb [flags] <command> [args]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(out, "  %-34s %s\n", c.name+" "+c.args, c.help)
	}
	fmt.Fprintf(out, "\nFlags:\n")
	flag.PrintDefaults()
}

func printVersion() {
	version, goVersion, revision, dirty := getBuildInfo()
	fmt.Printf("localdb %s\n", version)
	fmt.Printf("  Go version: %s\n", goVersion)
	fmt.Printf("  Revision:   %s\n", revision)
	if dirty {
		fmt.Printf("  Modified:   true\n")
	}
}

func getBuildInfo() (version, goVersion, revision string, dirty bool) {
	version = "unknown"
	goVersion = "unknown"
	revision = "unknown"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	version = info.Main.Version
	if version == "" || version == "(devel)" {
		version = "dev"
	}
	goVersion = info.GoVersion
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return
}
