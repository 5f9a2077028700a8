package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/yapper-sdk-go/internal/logging"
	"github.com/vovakirdan/yapper-sdk-go/store"
	"github.com/vovakirdan/yapper-sdk-go/yapper"
)

var (
	configPath string
	dbPath     string
	logger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "yapper",
	Short: "Yapper chat client",
	Long: `yapper is a terminal client for the Yapper chat service.

Available commands:
  login      Store an auth token and user id
  logout     Forget the stored credentials
  chats      List chats
  chat       Show one chat and its latest messages
  watch      Follow a chat live and send stdin lines as messages

Configuration is read from YAPPER_* environment variables (a .env file in the
working directory is loaded first) and an optional YAML file given by --config.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load .env: %w", err)
		}
		logger = logging.New()
		return nil
	},
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", defaultDBPath(), "path to the credential database")
}

func defaultDBPath() string {
	if p := os.Getenv("YAPPER_DB"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "yapper.db"
	}
	return filepath.Join(home, ".yapper", "session.db")
}

func openStore() (*store.BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	return store.Open(dbPath)
}

// withSession runs fn with a session built from the config and the stored
// credentials. The session is not connected; fn calls Start if it needs the
// realtime stream.
func withSession(ctx context.Context, fn func(ctx context.Context, s *yapper.Session) error) error {
	cfg, err := yapper.LoadConfig(configPath)
	if err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	token, err := st.Token(ctx)
	if err != nil {
		return err
	}
	if token == "" {
		return fmt.Errorf("not logged in, run 'yapper login' first")
	}

	s, err := yapper.NewSession(cfg, st, st, yapper.WithLogger(yapper.NewSlogLogger(logger)))
	if err != nil {
		return err
	}
	defer s.Close()

	return fn(ctx, s)
}
