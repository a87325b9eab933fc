// Package server exposes HTTP handlers for signup, login, session checks,
// the WebSocket upgrade, health checks, and the built-in chat page.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Tyrowin/gochat/internal/auth"
)

// Messages returned by the HTTP layer itself.
const (
	msgUsernameTaken = "Username already signed up."
	msgLoginFailed   = "Login failed, try again, but not too much!"
	msgMalformedBody = "Malformed request body."
	msgInternalError = "Internal error, try again later."
	msgCookieCleared = "cookie cleared."
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse is the body of every auth endpoint.
type AuthResponse struct {
	Success bool   `json:"success"`
	Msg     string `json:"msg,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, resp AuthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) decodeCredentials(w http.ResponseWriter, r *http.Request) (credentials, bool) {
	var creds credentials
	body, err := io.ReadAll(r.Body)
	if err == nil {
		err = json.Unmarshal(body, &creds)
	}
	if err != nil {
		s.log.Warn("malformed auth request body", "path", r.URL.Path, "addr", r.RemoteAddr, "error", err)
		writeJSON(w, http.StatusBadRequest, AuthResponse{Success: false, Msg: msgMalformedBody})
		return credentials{}, false
	}
	return creds, true
}

func (s *Server) setSessionCookie(w http.ResponseWriter, sess auth.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.Auth.CookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.Expires,
		HttpOnly: true,
	})
}

// writeAuthError maps service errors onto the {success:false, msg} shape.
func (s *Server) writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrUsernameTaken):
		writeJSON(w, http.StatusOK, AuthResponse{Success: false, Msg: msgUsernameTaken})
	case errors.Is(err, auth.ErrAuthenticationFailed):
		writeJSON(w, http.StatusOK, AuthResponse{Success: false, Msg: msgLoginFailed})
	default:
		s.log.Error("auth request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, AuthResponse{Success: false, Msg: msgInternalError})
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, auth.ErrUsernameTaken):
		return "taken"
	case errors.Is(err, auth.ErrAuthenticationFailed):
		return "failed"
	default:
		return "error"
	}
}

// SignupHandler handles POST /signup with a {username, password} body.
func (s *Server) SignupHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed.", http.StatusMethodNotAllowed)
		return
	}

	creds, ok := s.decodeCredentials(w, r)
	if !ok {
		return
	}

	sess, err := s.auth.Signup(r.Context(), creds.Username, creds.Password)
	s.metrics.signup(resultLabel(err))
	if err != nil {
		s.writeAuthError(w, err)
		return
	}

	s.setSessionCookie(w, sess)
	writeJSON(w, http.StatusOK, AuthResponse{Success: true})
}

// LoginHandler handles POST /login (password login) and GET /login (the
// automatic check of an existing session cookie).
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.checkSession(w, r)
	case http.MethodPost:
		s.login(w, r)
	default:
		http.Error(w, "Method not allowed.", http.StatusMethodNotAllowed)
	}
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	creds, ok := s.decodeCredentials(w, r)
	if !ok {
		return
	}

	sess, err := s.auth.Login(r.Context(), creds.Username, creds.Password)
	s.metrics.login(resultLabel(err))
	if err != nil {
		s.writeAuthError(w, err)
		return
	}

	s.setSessionCookie(w, sess)
	writeJSON(w, http.StatusOK, AuthResponse{Success: true})
}

func (s *Server) checkSession(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(s.cfg.Auth.CookieName)
	if err != nil || !s.auth.CheckSession(cookie.Value) {
		writeJSON(w, http.StatusOK, AuthResponse{Success: false})
		return
	}
	writeJSON(w, http.StatusOK, AuthResponse{Success: true})
}

// ClearCookieHandler expires the client's session cookie. The server-side
// session record is left in place.
func (s *Server) ClearCookieHandler(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.Auth.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
	})
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, msgCookieCleared)
}

// WebSocketHandler upgrades the connection, resolves the username from the
// session cookie and registers the client with the hub. A missing or
// unknown cookie resolves to an empty username and the connection proceeds.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	username := ""
	if cookie, err := r.Cookie(s.cfg.Auth.CookieName); err == nil {
		username, _ = s.auth.ResolveSession(cookie.Value)
	}
	if username == "" {
		s.log.Warn("live connection without a known session", "addr", r.RemoteAddr)
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "addr", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(conn, s.hub, username, r.RemoteAddr)
	if !s.hub.Register(client) {
		_ = conn.Close()
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "GoChat server is running!")
}

// ChatPageHandler serves a minimal browser client: signup/login form, then
// the live chat once a session cookie is set.
func (s *Server) ChatPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, chatPage); err != nil {
		s.log.Warn("error writing chat page", "error", err)
	}
}

const chatPage = `<!DOCTYPE html>
<html>
<head>
    <title>GoChat</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        #users { color: #555; margin: 10px 0; }
        input[type="text"], input[type="password"] { padding: 5px; margin-right: 10px; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        button:hover { background-color: #005a87; }
        .hidden { display: none; }
    </style>
</head>
<body>
    <h1>GoChat</h1>

    <div id="auth">
        <input type="text" id="username" placeholder="Username">
        <input type="password" id="password" placeholder="Password">
        <button onclick="submitAuth('/signup')">Sign up</button>
        <button onclick="submitAuth('/login')">Log in</button>
        <div id="authError"></div>
    </div>

    <div id="chat" class="hidden">
        <div id="users"></div>
        <div id="messages"></div>
        <input type="text" id="messageInput" placeholder="Type a message...">
        <button onclick="sendMessage()">Send</button>
        <button onclick="logout()">Clear cookie</button>
    </div>

    <script>
        let ws = null;
        const messagesDiv = document.getElementById('messages');
        const messageInput = document.getElementById('messageInput');

        function addLine(text, color) {
            const el = document.createElement('div');
            el.style.color = color;
            el.textContent = text;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function showChat() {
            document.getElementById('auth').classList.add('hidden');
            document.getElementById('chat').classList.remove('hidden');
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws');
            ws.onmessage = function(event) {
                const frame = JSON.parse(event.data);
                if (frame.event === 'msg') {
                    addLine(frame.data.msg, 'black');
                } else {
                    document.getElementById('users').textContent = 'Online: ' + frame.data.users.join(', ');
                    addLine(frame.data.serverMsg, 'gray');
                }
            };
            ws.onclose = function() { addLine('Connection closed', 'gray'); };
        }

        function submitAuth(path) {
            fetch(path, {
                method: 'POST',
                body: JSON.stringify({
                    username: document.getElementById('username').value,
                    password: document.getElementById('password').value
                })
            }).then(r => r.json()).then(res => {
                if (res.success) { showChat(); }
                else { document.getElementById('authError').textContent = res.msg || 'Failed'; }
            });
        }

        function sendMessage() {
            const text = messageInput.value;
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({event: 'msg', data: {msg: text}}));
                messageInput.value = '';
            }
        }

        function logout() {
            fetch('/clearcookie').then(() => location.reload());
        }

        messageInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') { sendMessage(); }
        });

        fetch('/login').then(r => r.json()).then(res => { if (res.success) { showChat(); } });
    </script>
</body>
</html>`
