// Package cli defines the cobra command tree for the sr CLI.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/scbrown/storyrun/internal/config"
	"github.com/scbrown/storyrun/internal/logging"
	"github.com/scbrown/storyrun/internal/note"
	"github.com/scbrown/storyrun/internal/store"
	"github.com/scbrown/storyrun/internal/story"
)

var (
	dataDir      string
	jsonOutput   bool
	storeMode    string
	remoteURL    string
	author       string
	verbose      bool
	noteMaxLines = note.DefaultMaxLines

	logger = zap.NewNop()
)

// dbFile is the SQLite database name inside the data directory.
const dbFile = "sr.db"

// rootCmd is the top-level sr command.
var rootCmd = &cobra.Command{
	Use:   "sr",
	Short: "storyrun - manage and execute story test checklists",
	Long: `sr organizes stories into folders, builds each story's tests from reusable
templates, and records per-section results and notes while a story is run.
Test and story statuses are always derived from section results.

Data lives in ~/.sr (configurable via --data-dir or sr config data_dir) as a
JSON document, a SQLite database (store_mode sqlite), or on a remote sr serve
instance (store_mode remote). All output commands support --json.`,
	Example: `  # Import a template catalog and create a story
  sr template import templates.yaml
  sr story add "Checkout" --description "guest user buys one item"
  sr test add <story-id> login-flow

  # Run it
  sr story run <story-id>
  sr section status <story-id> <test-id> 0 passed
  sr section note <story-id> <test-id> 0 "redirected to dashboard"
  sr story report <story-id>`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFrom(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		applyConfig(cmd, cfg)
		base := zapcore.WarnLevel
		if cmd.Name() == "serve" {
			base = zapcore.InfoLevel
		}
		l, err := logging.New(logging.Level(verbose, base))
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", config.Dir(), "directory holding sr data")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&storeMode, "store", "", "storage backend: file, sqlite or remote")
	rootCmd.PersistentFlags().StringVar(&remoteURL, "remote", "", "base URL of an sr serve instance (store remote)")
	rootCmd.PersistentFlags().StringVar(&author, "author", "", "name recorded on notes and completions (default $USER)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// applyConfig fills settings from the config file unless a flag was given.
func applyConfig(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if cfg.DataDir != "" && !flags.Changed("data-dir") {
		dataDir = cfg.DataDir
	}
	if cfg.DefaultFormat == "json" && !flags.Changed("json") {
		jsonOutput = true
	}
	if cfg.StoreMode != "" && !flags.Changed("store") {
		storeMode = cfg.StoreMode
	}
	if cfg.RemoteURL != "" && !flags.Changed("remote") {
		remoteURL = cfg.RemoteURL
	}
	if cfg.Author != "" && !flags.Changed("author") {
		author = cfg.Author
	}
	if cfg.NoteMaxLines > 0 {
		noteMaxLines = cfg.NoteMaxLines
	}
}

// openStore returns a store.Store for the configured mode. The file store
// is the default.
func openStore() (store.Store, error) {
	mode, err := store.ParseMode(storeMode)
	if err != nil {
		return nil, err
	}
	switch mode {
	case store.ModeRemote:
		if remoteURL == "" {
			return nil, fmt.Errorf("store mode is \"remote\" but no remote URL is set; use: sr config remote_url <url>")
		}
		return store.NewRemote(remoteURL), nil
	case store.ModeSQLite:
		return store.New(filepath.Join(dataDir, dbFile))
	default:
		return store.NewFile(dataDir)
	}
}

// noteAuthor resolves the author recorded on notes and completions.
func noteAuthor() string {
	if author != "" {
		return author
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return story.DefaultAuthor
}

// withService opens the store, runs fn with a story.Service over it and
// closes the store afterwards.
func withService(cmd *cobra.Command, fn func(ctx context.Context, svc *story.Service) error) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()
	svc := story.New(s, story.WithLogger(logger), story.WithAuthor(noteAuthor()))
	return fn(cmd.Context(), svc)
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
