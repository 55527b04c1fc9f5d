package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/depmaths/messagerie/internal/database"
	"github.com/depmaths/messagerie/internal/logging"
	"github.com/depmaths/messagerie/internal/models"
	"github.com/depmaths/messagerie/internal/server"
)

var (
	configPath string
	host       string
	port       int
	dbPath     string
	debug      bool

	userEmail    string
	userRole     string
	userPassword string
)

var rootCmd = &cobra.Command{
	Use:   "messagerie-server",
	Short: "Development relay for the messagerie client",
	Long: `messagerie-server stores group messages in SQLite, serves the history
over REST and pushes new messages to connected clients over WebSocket.`,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay (default)",
	RunE:  runServe,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file interactively",
	RunE:  runInit,
}

var addUserCmd = &cobra.Command{
	Use:   "adduser <name>",
	Short: "Create an account",
	Long: `Create an account that can sign in from the client. The password is read
from standard input when --password is not given.`,
	Args: cobra.ExactArgs(1),
	RunE: runAddUser,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&host, "host", "", "Host to bind to (overrides config)")
	rootCmd.PersistentFlags().IntVar(&port, "port", 0, "Port to bind to (overrides config)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to database file (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	addUserCmd.Flags().StringVar(&userEmail, "email", "", "Account email")
	addUserCmd.Flags().StringVar(&userRole, "role", string(models.RoleStudent), "Account role (Admin, Professor, Student)")
	addUserCmd.Flags().StringVarP(&userPassword, "password", "p", "", "Account password")

	rootCmd.AddCommand(serveCmd, initCmd, addUserCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file, if any, and applies flag overrides
func loadConfig() (*server.Config, error) {
	path := configPath
	if path == "" {
		if _, err := os.Stat(configFilename); err == nil {
			path = configFilename
		}
	}

	config := server.DefaultConfig()
	if path != "" {
		loaded, err := server.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		config = loaded
	}

	if host != "" {
		config.Host = host
	}
	if port != 0 {
		config.Port = port
	}
	if dbPath != "" {
		config.DatabasePath = dbPath
	}
	if debug {
		config.Debug = true
	}
	return config, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{Debug: config.Debug})
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := database.New(config.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting relay",
		zap.String("addr", config.Addr()),
		zap.String("database", config.DatabasePath))

	return server.New(config, db, logger).Run(ctx)
}

func runInit(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = configFilename
	}
	config, err := runSetup(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Configuration écrite dans %s\nAdresse du relais: http://%s\n", path, config.Addr())
	return nil
}

func runAddUser(cmd *cobra.Command, args []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}

	password := userPassword
	if password == "" {
		fmt.Fprint(cmd.OutOrStdout(), "Mot de passe: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	db, err := database.New(config.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	user, err := server.AddUser(db, args[0], userEmail, models.Role(userRole), password)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Compte créé: %s (%s)\n", user.Name, user.Role)
	return nil
}
