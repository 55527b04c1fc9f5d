package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/depmaths/messagerie/internal/logging"
	"github.com/depmaths/messagerie/internal/models"
)

var (
	// ErrUnauthenticated means the remote service rejected or never received a credential
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrUnreachable means the history could not be fetched for any other reason
	ErrUnreachable = errors.New("messages unavailable")
)

// ClassifyLoadError maps a history error to the failure shown to the user
func ClassifyLoadError(err error) models.LoadFailure {
	switch {
	case err == nil:
		return models.LoadFailureNone
	case errors.Is(err, ErrUnauthenticated):
		return models.LoadFailureUnauthenticated
	default:
		return models.LoadFailureFailed
	}
}

// HistorySource fetches the persisted messages of a session
type HistorySource interface {
	LoadHistory(ctx context.Context, token, group string) ([]models.Message, error)
}

// HistoryLoader fetches persisted messages from the REST data service
type HistoryLoader struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHistoryLoader creates a loader for the service at baseURL
func NewHistoryLoader(baseURL string, timeout time.Duration, logger *zap.Logger) *HistoryLoader {
	return &HistoryLoader{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.OrNop(logger),
	}
}

// LoadHistory returns the messages in server order. An empty group means every group.
// It never retries; the caller decides whether a later credential or connectivity
// change warrants another attempt.
func (h *HistoryLoader) LoadHistory(ctx context.Context, token, group string) ([]models.Message, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}

	u, err := url.Parse(h.baseURL + "/api/messages")
	if err != nil {
		return nil, fmt.Errorf("%w: invalid server address: %v", ErrUnreachable, err)
	}
	if group != "" {
		q := u.Query()
		q.Set("group", group)
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: history rejected with status %d", ErrUnauthenticated, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnreachable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var batch []models.Message
	if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
		return nil, fmt.Errorf("%w: failed to parse history: %v", ErrUnreachable, err)
	}

	h.logger.Debug("history loaded", zap.Int("count", len(batch)), zap.String("group", group))

	return lo.Map(batch, func(m models.Message, _ int) models.Message {
		return m.Normalize()
	}), nil
}
