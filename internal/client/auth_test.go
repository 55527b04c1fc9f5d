package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/depmaths/messagerie/internal/models"
)

func TestLogin(t *testing.T) {
	user := models.NewUser("Alice", "", models.RoleStudent)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if r.Method != http.MethodPost || r.URL.Path != "/api/login" ||
			json.NewDecoder(r.Body).Decode(&body) != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		switch {
		case body["name"] == "Alice" && body["password"] == "pw":
			json.NewEncoder(w).Encode(LoginResponse{User: user, Token: "tok"})
		case body["name"] == "Ghost":
			json.NewEncoder(w).Encode(LoginResponse{})
		default:
			http.Error(w, "Invalid name or password", http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	t.Run("success", func(t *testing.T) {
		cred, err := Login(context.Background(), srv.URL, "Alice", "pw")
		require.NoError(t, err)
		require.Equal(t, "tok", cred.Token)
		require.Equal(t, "Alice", cred.DisplayName())
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := Login(context.Background(), srv.URL, "Alice", "nope")
		require.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("empty token", func(t *testing.T) {
		_, err := Login(context.Background(), srv.URL, "Ghost", "pw")
		require.Error(t, err)
	})
}
