package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/depmaths/messagerie/internal/models"
)

// LoginResponse represents the response from the login endpoint
type LoginResponse struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

// Login exchanges a name and password for a bearer credential
func Login(ctx context.Context, baseURL, name, password string) (Credential, error) {
	reqBody, err := json.Marshal(map[string]string{
		"name":     name,
		"password": password,
	})
	if err != nil {
		return Credential{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimRight(baseURL, "/") + "/api/login"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return Credential{}, fmt.Errorf("invalid server address: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return Credential{}, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Credential{}, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return Credential{}, fmt.Errorf("login failed: %w", ErrUnauthenticated)
	case resp.StatusCode != http.StatusOK:
		return Credential{}, fmt.Errorf("login failed: %s", strings.TrimSpace(string(body)))
	}

	var loginResp LoginResponse
	if err := json.Unmarshal(body, &loginResp); err != nil {
		return Credential{}, fmt.Errorf("failed to parse response: %w", err)
	}
	if loginResp.Token == "" {
		return Credential{}, fmt.Errorf("login failed: empty token")
	}

	return Credential{Token: loginResp.Token, User: loginResp.User}, nil
}
