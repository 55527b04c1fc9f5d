package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/depmaths/messagerie/internal/client"
	"github.com/depmaths/messagerie/internal/logging"
	"github.com/depmaths/messagerie/internal/tui"
)

var (
	configPath string
	serverAddr string
	debug      bool
	logFile    string
)

// rootCmd opens the chat interface
var rootCmd = &cobra.Command{
	Use:   "messagerie",
	Short: "Terminal client for the school group chat",
	Long: `Messagerie shows the message history of the school groups and follows
new messages live. Sign in first with 'messagerie login'.`,
	SilenceUsage: true,
	RunE:         runChat,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&serverAddr, "server", "s", "", "Server address (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Log file (defaults to ~/.messagerie/client.log)")

	rootCmd.AddCommand(loginCmd, logoutCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves the configuration from file, environment and flags,
// returning the token override from the environment.
func loadConfig() (*client.Config, string, error) {
	path := configPath
	if path == "" {
		path = client.FindConfig()
	}

	config := client.DefaultConfig()
	if path != "" {
		loaded, err := client.LoadConfig(path)
		if err != nil {
			return nil, "", err
		}
		config = loaded
	}

	token, err := config.ApplyEnv()
	if err != nil {
		return nil, "", err
	}

	if serverAddr != "" {
		config.Server.Address = serverAddr
	}
	if debug {
		config.Debug = true
	}
	if logFile != "" {
		config.LogFile = logFile
	}

	if err := config.Validate(); err != nil {
		return nil, "", err
	}
	return config, token, nil
}

func newLogger(config *client.Config, dir string) (*zap.Logger, error) {
	file := config.LogFile
	if file == "" {
		file = filepath.Join(dir, "client.log")
	}
	return logging.New(logging.Options{Debug: config.Debug, File: file})
}

func runChat(cmd *cobra.Command, args []string) error {
	config, envToken, err := loadConfig()
	if err != nil {
		return err
	}

	dir, err := client.DefaultConfigDir()
	if err != nil {
		return err
	}
	store, err := client.NewCredentialStore(dir)
	if err != nil {
		return err
	}

	logger, err := newLogger(config, dir)
	if err != nil {
		return err
	}
	defer logger.Sync()

	cred, err := store.Load()
	if err != nil {
		logger.Warn("ignoring unreadable credential", zap.Error(err))
	}
	if envToken != "" {
		cred = client.Credential{Token: envToken}
	}

	gate := client.NewCredentialGate(cred)
	session := client.NewSession(client.SessionConfig{
		History:      client.NewHistoryLoader(config.Server.Address, config.HistoryTimeout(), logger),
		Dialer:       client.NewWebSocketDialer(config.Server.Address, config.HandshakeTimeout(), logger),
		Logger:       logger,
		Reconnect:    config.ReconnectStrategy(),
		HistoryGroup: config.Server.HistoryGroup,
	})
	defer session.Stop()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	go session.Watch(ctx, gate)

	logger.Info("client starting",
		zap.String("server", config.Server.Address),
		zap.Bool("signed_in", cred.Present()))

	p := tea.NewProgram(tui.NewApp(session, gate), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("error running program: %w", err)
	}
	return nil
}

// withTimeout bounds one-shot network commands
func withTimeout(parent context.Context, config *client.Config) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, config.HistoryTimeout())
}
