// Package server is a development relay: it stores messages in SQLite, serves
// history over REST and pushes new messages to WebSocket clients.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/depmaths/messagerie/internal/database"
	"github.com/depmaths/messagerie/internal/logging"
	"github.com/depmaths/messagerie/internal/models"
)

// Config holds the server configuration
type Config struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	DatabasePath string `toml:"database_path"`
	HistoryLimit int    `toml:"history_limit"`
	Debug        bool   `toml:"debug"`
}

// DefaultConfig returns the default server configuration
func DefaultConfig() *Config {
	return &Config{
		Host:         "0.0.0.0",
		Port:         5000,
		DatabasePath: "messagerie.db",
		HistoryLimit: 500,
	}
}

// LoadConfig reads a TOML file over the defaults
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return config, nil
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Server is the relay
type Server struct {
	config   *Config
	hub      *Hub
	handlers *Handlers
	db       *database.DB
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// New creates a new server instance over an open database
func New(config *Config, db *database.DB, logger *zap.Logger) *Server {
	logger = logging.OrNop(logger)
	hub := NewHub(logger)

	return &Server{
		config:   config,
		hub:      hub,
		handlers: NewHandlers(db, hub, config.HistoryLimit, logger),
		db:       db,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Clients authenticate with a bearer token, not cookies
				return true
			},
		},
	}
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/api/login", s.handlers.handleLogin)
	mux.HandleFunc("/api/messages", s.handlers.handleMessages)
	mux.HandleFunc("/api/health", s.handlers.handleHealth)
	return mux
}

// RunHub runs the connection hub until ctx is cancelled. It is required when
// Handler is served by something other than Run.
func (s *Server) RunHub(ctx context.Context) {
	s.hub.Run(ctx)
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:         s.config.Addr(),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		s.logger.Info("relay listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down relay")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// AddUser creates an account with a hashed password
func AddUser(db *database.DB, name, email string, role models.Role, password string) (*models.User, error) {
	if name == "" || password == "" {
		return nil, errors.New("name and password are required")
	}
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := models.NewUser(name, email, role)
	if err := db.CreateUser(user, hash); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// handleWebSocket authenticates and upgrades a push connection
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	user, err := s.handlers.Authenticate(bearerToken(r))
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(conn, user, s.hub, s.handlers, s.logger)
	if !s.hub.Register(client) {
		conn.Close()
		return
	}

	// Start client pumps
	go client.WritePump()
	go client.ReadPump()
}
