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
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gochat/internal/auth"
	"github.com/Tyrowin/gochat/internal/store"
)

const testOrigin = "http://localhost:4000"

type testEnv struct {
	srv     *Server
	auth    *auth.Service
	http    *httptest.Server
	metrics *Metrics
}

// newTestEnv starts a full server backed by a temp state file.
func newTestEnv(t *testing.T, customize func(cfg *Config)) *testEnv {
	t.Helper()

	cfg := NewConfig()
	cfg.State.Path = filepath.Join(t.TempDir(), "serverState.txt")
	cfg.Server.AllowedOrigins = []string{testOrigin}
	if customize != nil {
		customize(cfg)
	}

	metrics := NewMetrics()
	backend := InstrumentBackend(store.NewFileBackend(cfg.State.Path, nil), metrics)
	svc := auth.New(context.Background(), backend, auth.Options{})

	srv := New(cfg, svc, metrics, nil)
	srv.StartHub()
	ts := httptest.NewServer(srv.SetupRoutes())

	t.Cleanup(func() {
		ts.Close()
		_ = srv.Hub().Shutdown(2 * time.Second)
	})

	return &testEnv{srv: srv, auth: svc, http: ts, metrics: metrics}
}

func (e *testEnv) post(t *testing.T, path, body string) (*http.Response, AuthResponse) {
	t.Helper()
	resp, err := http.Post(e.http.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var out AuthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func credentialsBody(t *testing.T, username, password string) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(credentials{Username: username, Password: password}))
	return buf.String()
}

func sessionCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == "sessionId" {
			return c
		}
	}
	t.Fatalf("response carries no sessionId cookie")
	return nil
}

// signup registers username and returns the session token.
func (e *testEnv) signup(t *testing.T, username, password string) string {
	t.Helper()
	resp, out := e.post(t, "/signup", credentialsBody(t, username, password))
	require.True(t, out.Success, "signup of %s failed: %s", username, out.Msg)
	return sessionCookie(t, resp).Value
}

func (e *testEnv) wsURL() string {
	return "ws" + strings.TrimPrefix(e.http.URL, "http") + "/ws"
}

// dial opens a live connection presenting token as the session cookie.
func (e *testEnv) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	header.Set("Origin", testOrigin)
	if token != "" {
		header.Set("Cookie", "sessionId="+token)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.Dial(e.wsURL(), header)
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	ev, err := DecodeEvent(raw)
	require.NoError(t, err)
	return ev
}

func sendChat(t *testing.T, conn *websocket.Conn, text string) {
	t.Helper()
	frame, err := EncodeEvent(ChatEvent{Msg: text})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func closeNormally(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()
}
