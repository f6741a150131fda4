// Command wugbot manages a Wugbot field-data store from the command line.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hack-pad/hackpadfs"
	osfs "github.com/hack-pad/hackpadfs/os"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kittclouds/wugbot/internal/config"
	"github.com/kittclouds/wugbot/internal/logging"
	"github.com/kittclouds/wugbot/internal/store"
	"github.com/kittclouds/wugbot/pkg/media"
)

// Version info
const Version = "0.3.0"

// app holds what the root command opens for its subcommands.
type app struct {
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
	db     *store.DB
	fs     *osfs.FS
	blobs  *media.Store
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}

// run executes one command line and releases everything it opened.
func run(args []string, stdout, stderr io.Writer) error {
	a := &app{}
	defer a.close()

	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.Execute()
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "wugbot",
		Short: "Wugbot - field linguistics data store",
		Long: `wugbot stores corpora, texts, lexicons and media for field linguistics.

Texts own their phrases, words and morphemes; nested items are addressed by
breadcrumb ("text_phrase_word_morpheme", e.g. 3_0_1).`,
		SilenceUsage:      true,
		PersistentPreRunE: a.open,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "wugbot.yaml", "config file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		a.initCmd(),
		a.importCmd(),
		a.exportCmd(),
		a.getCmd(),
		a.updateCmd(),
		a.crumbCmd(),
		a.rmCrumbCmd(),
		a.searchCmd(),
		a.grepCmd(),
		a.rankCmd(),
		a.mediaCmd(),
		a.glossCmd(),
		a.similarCmd(),
		a.resetCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				fmt.Fprintf(cmd.OutOrStdout(), "wugbot %s (schema v%d)\n", Version, store.SchemaVersion)
				return nil
			},
		},
	)
	return root
}

// open loads config, builds the logger and opens the database.
func (a *app) open(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.logger, err = logging.New(logging.Verbose(cfg.Logging.Level, a.verbose), cfg.Logging.Development)
	if err != nil {
		return err
	}

	backend, err := openBackend(cfg.Database)
	if err != nil {
		return err
	}
	a.db, err = store.Open(backend, store.WithLogger(a.logger))
	if err != nil {
		backend.Close()
		return fmt.Errorf("failed to open database: %w", err)
	}
	a.logger.Debug("database open",
		zap.String("backend", cfg.Database.Backend),
		zap.String("dsn", cfg.Database.DSN))
	return nil
}

func (a *app) close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil && a.logger != nil {
			a.logger.Warn("failed to close database", zap.Error(err))
		}
		a.db = nil
	}
}

func openBackend(cfg config.DatabaseConfig) (store.Backend, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return store.NewMemStore(), nil
	default:
		return store.NewSQLiteStoreWithDSN(cfg.DSN)
	}
}

// osPath maps a host directory onto the os filesystem, creating it.
func (a *app) osPath(dir string) (string, error) {
	if a.fs == nil {
		a.fs = osfs.NewFS()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	p, err := a.fs.FromOSPath(abs)
	if err != nil {
		return "", fmt.Errorf("invalid directory %q: %w", dir, err)
	}
	if err := hackpadfs.MkdirAll(a.fs, p, 0755); err != nil {
		return "", fmt.Errorf("failed to create %q: %w", dir, err)
	}
	return p, nil
}

// media opens blob storage on first use.
func (a *app) media() (*media.Store, error) {
	if a.blobs != nil {
		return a.blobs, nil
	}
	dir, err := a.osPath(a.cfg.Media.Dir)
	if err != nil {
		return nil, err
	}
	a.blobs, err = media.NewStore(a.fs, dir)
	return a.blobs, err
}
