package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodPost} {
		t.Run(method, func(t *testing.T) {
			req := httptest.NewRequest(method, "/", http.NoBody)
			rr := httptest.NewRecorder()

			HealthHandler(rr, req)

			assert.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, "GoChat server is running!", rr.Body.String())
		})
	}
}

func TestSignupHandler(t *testing.T) {
	env := newTestEnv(t, nil)

	t.Run("first signup succeeds and sets cookie", func(t *testing.T) {
		before := time.Now()
		resp, out := env.post(t, "/signup", credentialsBody(t, "alice", "pw1"))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, out.Success)
		assert.Empty(t, out.Msg)

		cookie := sessionCookie(t, resp)
		assert.NotEmpty(t, cookie.Value)
		assert.True(t, cookie.HttpOnly)
		assert.WithinDuration(t, before.Add(30*time.Minute), cookie.Expires, 5*time.Second)

		data, err := os.ReadFile(env.srv.Config().State.Path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"alice"`)
		assert.Contains(t, string(data), cookie.Value)
	})

	t.Run("second signup with same name is rejected", func(t *testing.T) {
		resp, out := env.post(t, "/signup", credentialsBody(t, "alice", "pw2"))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.False(t, out.Success)
		assert.Equal(t, "Username already signed up.", out.Msg)
		assert.Empty(t, resp.Cookies())
	})

	t.Run("malformed body", func(t *testing.T) {
		resp, out := env.post(t, "/signup", "{not json")

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.False(t, out.Success)
		assert.Equal(t, "Malformed request body.", out.Msg)
	})

	t.Run("GET not allowed", func(t *testing.T) {
		resp, err := http.Get(env.http.URL + "/signup")
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}

func TestLoginHandler(t *testing.T) {
	env := newTestEnv(t, nil)
	signupToken := env.signup(t, "alice", "pw1")

	t.Run("wrong password", func(t *testing.T) {
		_, out := env.post(t, "/login", credentialsBody(t, "alice", "wrong"))
		assert.False(t, out.Success)
		assert.Equal(t, "Login failed, try again, but not too much!", out.Msg)
	})

	t.Run("unknown user gets the same message", func(t *testing.T) {
		_, out := env.post(t, "/login", credentialsBody(t, "nobody", "pw1"))
		assert.False(t, out.Success)
		assert.Equal(t, "Login failed, try again, but not too much!", out.Msg)
	})

	t.Run("correct password rotates the session", func(t *testing.T) {
		resp, out := env.post(t, "/login", credentialsBody(t, "alice", "pw1"))
		require.True(t, out.Success)

		token := sessionCookie(t, resp).Value
		assert.NotEqual(t, signupToken, token)
		assert.True(t, env.auth.CheckSession(token))
		assert.False(t, env.auth.CheckSession(signupToken))
		assert.Len(t, env.auth.Snapshot().SessionsFor("alice"), 1)
	})

	t.Run("malformed body", func(t *testing.T) {
		resp, out := env.post(t, "/login", "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.False(t, out.Success)
	})
}

func TestSessionCheckHandler(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.signup(t, "alice", "pw1")

	check := func(cookie string) AuthResponse {
		req, err := http.NewRequest(http.MethodGet, env.http.URL+"/login", http.NoBody)
		require.NoError(t, err)
		if cookie != "" {
			req.AddCookie(&http.Cookie{Name: "sessionId", Value: cookie})
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()

		var out AuthResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		assert.Empty(t, out.Msg)
		return out
	}

	assert.True(t, check(token).Success)
	assert.False(t, check("").Success)
	assert.False(t, check("forged").Success)
}

func TestClearCookieHandler(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.signup(t, "alice", "pw1")

	resp, err := http.Get(env.http.URL + "/clearcookie")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "cookie cleared.", string(body))

	cookie := sessionCookie(t, resp)
	assert.Empty(t, cookie.Value)
	assert.True(t, cookie.MaxAge < 0)

	// The server-side record survives; only the client copy is cleared.
	assert.True(t, env.auth.CheckSession(token))
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	env.signup(t, "alice", "pw1")
	env.post(t, "/login", credentialsBody(t, "alice", "bad"))

	resp, err := http.Get(env.http.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, `gochat_signups_total{result="success"} 1`)
	assert.Contains(t, text, `gochat_logins_total{result="failed"} 1`)
	assert.Contains(t, text, "gochat_state_save_seconds")
}

func TestMetricsDisabled(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) { cfg.Metrics.Enabled = false })

	resp, err := http.Get(env.http.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "GoChat server is running!", string(body))
}

func TestChatPageHandler(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := http.Get(env.http.URL + "/chat")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, "text/html", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "new WebSocket")
}

func TestCreateServer(t *testing.T) {
	mux := http.NewServeMux()
	srv := CreateServer(":4000", mux)

	assert.Equal(t, ":4000", srv.Addr)
	assert.Equal(t, mux, srv.Handler)
	assert.Equal(t, 15*time.Second, srv.ReadTimeout)
	assert.Equal(t, 15*time.Second, srv.WriteTimeout)
	assert.Equal(t, 60*time.Second, srv.IdleTimeout)
}
