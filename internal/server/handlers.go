package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/depmaths/messagerie/internal/database"
	"github.com/depmaths/messagerie/internal/models"
	"github.com/depmaths/messagerie/internal/protocol"
)

// sessionTTL bounds the lifetime of an issued token
const sessionTTL = 30 * 24 * time.Hour

var errInvalidToken = errors.New("invalid or expired token")

// SendMessagePayload is the body of an OpSendMessage frame
type SendMessagePayload struct {
	Text   string `json:"text" validate:"required,max=2000"`
	Sender string `json:"sender" validate:"max=64"`
	Group  string `json:"group" validate:"required"`
}

type loginRequest struct {
	Name     string `json:"name" validate:"required,max=64"`
	Password string `json:"password" validate:"required"`
}

// Handlers serves the REST endpoints and processes inbound frames
type Handlers struct {
	db           *database.DB
	hub          *Hub
	logger       *zap.Logger
	validate     *validator.Validate
	historyLimit int
	now          func() time.Time
}

// NewHandlers creates a new Handlers instance
func NewHandlers(db *database.DB, hub *Hub, historyLimit int, logger *zap.Logger) *Handlers {
	return &Handlers{
		db:           db,
		hub:          hub,
		logger:       logger,
		validate:     validator.New(),
		historyLimit: historyLimit,
		now:          time.Now,
	}
}

// Authenticate validates a token and returns the associated user
func (h *Handlers) Authenticate(token string) (*models.User, error) {
	if token == "" {
		return nil, errInvalidToken
	}
	user, err := h.db.GetSessionUser(hashToken(token))
	if errors.Is(err, database.ErrNotFound) {
		return nil, errInvalidToken
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// CreateAuthToken issues a new session token for the user
func (h *Handlers) CreateAuthToken(userID uuid.UUID) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	if err := h.db.CreateSession(userID, hashToken(token), h.now().Add(sessionTTL)); err != nil {
		return "", err
	}
	return token, nil
}

// HandleSendMessage persists an inbound message and dispatches it to every connection
func (h *Handlers) HandleSendMessage(c *Client, msg *protocol.Message) {
	var payload SendMessagePayload
	if err := msg.Decode(&payload); err != nil {
		c.sendError(protocol.ErrorCodeInvalidPayload, "Invalid message payload")
		return
	}
	payload.Text = strings.TrimSpace(payload.Text)
	if err := h.validate.Struct(payload); err != nil {
		c.sendError(protocol.ErrorCodeInvalidPayload, err.Error())
		return
	}
	if !lo.Contains(models.Groups, payload.Group) {
		c.sendError(protocol.ErrorCodeInvalidPayload, "Unknown group")
		return
	}

	sender := payload.Sender
	if c.User != nil && c.User.Name != "" {
		sender = c.User.Name
	}

	createdAt := h.now().UTC()
	stored := models.Message{
		ID:        uuid.NewString(),
		Text:      payload.Text,
		Sender:    sender,
		Group:     payload.Group,
		CreatedAt: &createdAt,
	}.Normalize()

	if err := h.db.CreateMessage(stored); err != nil {
		h.logger.Error("failed to store message", zap.Error(err))
		c.sendError(protocol.ErrorCodeServerError, "Failed to store message")
		return
	}

	dispatch, err := protocol.NewDispatch(protocol.EventMessageCreate, h.hub.NextSequence(), stored)
	if err != nil {
		h.logger.Error("failed to build dispatch", zap.Error(err))
		return
	}
	h.hub.Broadcast(dispatch)
}

// handleLogin exchanges a name and password for a bearer token
func (h *Handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, "Name and password are required", http.StatusBadRequest)
		return
	}

	user, passwordHash, err := h.db.GetUserByName(req.Name)
	if err != nil || !CheckPassword(passwordHash, req.Password) {
		http.Error(w, "Invalid name or password", http.StatusUnauthorized)
		return
	}

	token, err := h.CreateAuthToken(user.ID)
	if err != nil {
		h.logger.Error("failed to create auth token", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{
		"user":  user,
		"token": token,
	})
}

// handleMessages returns stored messages in server order
func (h *Handlers) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, err := h.Authenticate(bearerToken(r)); err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	messages, err := h.db.ListMessages(r.URL.Query().Get("group"), h.historyLimit)
	if err != nil {
		h.logger.Error("failed to list messages", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, messages)
}

// handleHealth returns server health status
func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"status": "ok",
		"time":   h.now().UTC(),
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
