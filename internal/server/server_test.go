package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"github.com/depmaths/messagerie/internal/client"
	"github.com/depmaths/messagerie/internal/database"
	"github.com/depmaths/messagerie/internal/models"
	"github.com/depmaths/messagerie/internal/protocol"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

// startRelay serves a relay over a fresh database with one account, Alice/secret
func startRelay(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)

	_, err = AddUser(db, "Alice", "alice@example.org", models.RoleStudent, "secret")
	require.NoError(t, err)

	s := New(DefaultConfig(), db, nil)
	ctx, cancel := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		s.RunHub(ctx)
	}()

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		cancel()
		<-hubDone
		srv.Close()
		db.Close()
	})
	return srv
}

func login(t *testing.T, baseURL string) client.Credential {
	t.Helper()
	cred, err := client.Login(context.Background(), baseURL, "Alice", "secret")
	require.NoError(t, err)
	return cred
}

func newSession(t *testing.T, baseURL string) *client.Session {
	t.Helper()
	s := client.NewSession(client.SessionConfig{
		History: client.NewHistoryLoader(baseURL, 2*time.Second, nil),
		Dialer:  client.NewWebSocketDialer(baseURL, 2*time.Second, nil),
	})
	t.Cleanup(s.Stop)
	return s
}

func TestAddUser_Validation(t *testing.T) {
	db, err := database.New(filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)
	defer db.Close()

	_, err = AddUser(db, "", "", models.RoleStudent, "pw")
	require.Error(t, err)
	_, err = AddUser(db, "Bob", "", models.Role("Janitor"), "pw")
	require.Error(t, err)

	user, err := AddUser(db, "Bob", "", models.RoleAdmin, "pw")
	require.NoError(t, err)

	_, hash, err := db.GetUserByName("Bob")
	require.NoError(t, err)
	require.NotEqual(t, "pw", hash)
	require.True(t, CheckPassword(hash, "pw"))
	require.Equal(t, models.RoleAdmin, user.Role)
}

func TestRelay_HealthAndAuth(t *testing.T) {
	req := require.New(t)
	srv := startRelay(t)

	resp, err := http.Get(srv.URL + "/api/health")
	req.NoError(err)
	resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	// History requires a bearer token
	resp, err = http.Get(srv.URL + "/api/messages")
	req.NoError(err)
	resp.Body.Close()
	req.Equal(http.StatusUnauthorized, resp.StatusCode)

	// Wrong password
	body, _ := json.Marshal(map[string]string{"name": "Alice", "password": "nope"})
	resp, err = http.Post(srv.URL+"/api/login", "application/json", bytes.NewReader(body))
	req.NoError(err)
	resp.Body.Close()
	req.Equal(http.StatusUnauthorized, resp.StatusCode)

	// Missing fields
	resp, err = http.Post(srv.URL+"/api/login", "application/json", strings.NewReader(`{"name":"Alice"}`))
	req.NoError(err)
	resp.Body.Close()
	req.Equal(http.StatusBadRequest, resp.StatusCode)

	cred := login(t, srv.URL)
	req.True(cred.Present())
	req.Equal("Alice", cred.DisplayName())

	// The push endpoint rejects unknown tokens
	wsURL, err := client.WebSocketURL(srv.URL)
	req.NoError(err)
	_, resp, err = websocket.DefaultDialer.Dial(wsURL, http.Header{"Authorization": {"Bearer forged"}})
	req.Error(err)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func TestRelay_EndToEnd(t *testing.T) {
	req := require.New(t)
	srv := startRelay(t)
	cred := login(t, srv.URL)

	// Given two sessions connected to the relay
	first := newSession(t, srv.URL)
	second := newSession(t, srv.URL)
	req.NoError(first.Start(cred))
	req.NoError(second.Start(cred))
	req.Eventually(func() bool {
		return first.State() == models.StateConnected && second.State() == models.StateConnected
	}, waitFor, tick)

	// When one of them sends
	req.True(first.Send("bonjour la classe", "Étudiants"))

	// Then both receive the stored message, the sender included
	isSent := func(m models.Message) bool { return m.Text == "bonjour la classe" }
	for _, s := range []*client.Session{first, second} {
		req.Eventually(func() bool { return lo.ContainsBy(s.Messages(), isSent) }, waitFor, tick)
	}
	stored, _ := lo.Find(first.Messages(), isSent)
	req.NotEmpty(stored.ID)
	req.Equal("Alice", stored.Sender)
	req.Equal("Étudiants", stored.Group)
	req.NotNil(stored.CreatedAt)

	// And a session started later gets it from history exactly once
	third := newSession(t, srv.URL)
	req.NoError(third.Start(cred))
	req.Eventually(func() bool {
		return third.State() == models.StateConnected && lo.ContainsBy(third.Messages(), isSent)
	}, waitFor, tick)
	req.Len(lo.Filter(third.Messages(), func(m models.Message, _ int) bool { return m.ID == stored.ID }), 1)

	third.SetActiveGroup("Étudiants")
	req.Equal([]string{stored.ID}, lo.Map(third.Visible(), func(m models.Message, _ int) string { return m.ID }))
}

func TestRelay_RejectsInvalidFrames(t *testing.T) {
	req := require.New(t)
	srv := startRelay(t)
	cred := login(t, srv.URL)

	wsURL, err := client.WebSocketURL(srv.URL)
	req.NoError(err)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Authorization": {"Bearer " + cred.Token}})
	req.NoError(err)
	defer conn.Close()

	readError := func() protocol.ErrorPayload {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(waitFor))
		_, data, err := conn.ReadMessage()
		req.NoError(err)
		var env protocol.Message
		req.NoError(json.Unmarshal(data, &env))
		req.Equal(protocol.OpError, env.Op)
		var payload protocol.ErrorPayload
		req.NoError(env.Decode(&payload))
		return payload
	}

	send := func(op protocol.OpCode, payload interface{}) {
		msg, err := protocol.NewMessage(op, payload)
		req.NoError(err)
		req.NoError(conn.WriteJSON(msg))
	}

	send(protocol.OpSendMessage, map[string]string{"text": "  ", "group": models.DefaultGroup})
	req.Equal(protocol.ErrorCodeInvalidPayload, readError().Code)

	send(protocol.OpSendMessage, map[string]string{"text": "hi", "group": "Inconnu"})
	req.Equal(protocol.ErrorCodeInvalidPayload, readError().Code)

	send(protocol.OpDispatch, nil)
	req.Equal(protocol.ErrorCodeUnknown, readError().Code)

	req.NoError(conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	req.Equal(protocol.ErrorCodeInvalidPayload, readError().Code)

	// Nothing was stored
	httpReq, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/messages", nil)
	httpReq.Header.Set("Authorization", "Bearer "+cred.Token)
	resp, err := http.DefaultClient.Do(httpReq)
	req.NoError(err)
	defer resp.Body.Close()
	var msgs []models.Message
	req.NoError(json.NewDecoder(resp.Body).Decode(&msgs))
	req.Empty(msgs)
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	require.Empty(t, bearerToken(r))

	r.Header.Set("Authorization", "bearer abc ")
	require.Equal(t, "abc", bearerToken(r))

	r.Header.Set("Authorization", "Basic abc")
	require.Empty(t, bearerToken(r))
}
