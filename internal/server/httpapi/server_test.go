package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/idgate/internal/common"
	"github.com/dmitrijs2005/idgate/internal/logging"
	"github.com/dmitrijs2005/idgate/internal/server/provider"
	"github.com/dmitrijs2005/idgate/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sid = "0123456789abcdef0123456789abcdef"

type fakeAuth struct {
	signupErr   error
	loginErr    error
	refreshErr  error
	lastClient  services.ClientInfo
	lastSignup  services.SignupRequest
	lastLogin   services.LoginRequest
	lastRefresh services.RefreshRequest
	panic       bool
}

func result() *services.AuthResult {
	return &services.AuthResult{
		AccountID:    "1234567890",
		UserID:       "uid-1",
		AccessToken:  "at",
		RefreshToken: "rt",
		Session:      &services.Resolution{SessionID: sid, IsNew: true, Cookie: services.SessionCookie(sid)},
	}
}

func (f *fakeAuth) Signup(ctx context.Context, req services.SignupRequest, c services.ClientInfo) (*services.AuthResult, error) {
	if f.panic {
		panic("boom")
	}
	f.lastSignup, f.lastClient = req, c
	if f.signupErr != nil {
		return nil, f.signupErr
	}
	return result(), nil
}

func (f *fakeAuth) Login(ctx context.Context, req services.LoginRequest, c services.ClientInfo) (*services.AuthResult, error) {
	f.lastLogin, f.lastClient = req, c
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return result(), nil
}

func (f *fakeAuth) Refresh(ctx context.Context, req services.RefreshRequest) (*services.AuthResult, error) {
	f.lastRefresh = req
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	res := result()
	res.AccessToken, res.RefreshToken, res.Session = "at2", "rt2", nil
	return res, nil
}

type fakeCredentials struct {
	err  error
	last services.MirrorRequest
}

func (f *fakeCredentials) Store(ctx context.Context, req services.MirrorRequest) error {
	f.last = req
	return f.err
}

func newTestServer() (*Server, *fakeAuth, *fakeCredentials) {
	a, c := &fakeAuth{}, &fakeCredentials{}
	return NewServer("127.0.0.1:0", logging.Nop{}, a, c), a, c
}

func do(t *testing.T, h http.Handler, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range hdr {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var m map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m), "body=%s", w.Body.String())
	return m
}

func TestSignup_Success(t *testing.T) {
	s, a, _ := newTestServer()

	w := do(t, s.Handler(), http.MethodPost, "/signup",
		`{"username":"bob","email":"bob@x.com","password":"hunter2"}`,
		map[string]string{"Cookie": "sessionId=" + sid, "User-Agent": "ua/1", "X-Forwarded-For": "1.2.3.4, 10.0.0.1"})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "Sign up successful!", body["message"])
	assert.Equal(t, "at", body["token"])
	assert.Equal(t, "rt", body["refresh_token"])
	assert.Equal(t, "1234567890", body["id"])
	assert.Equal(t, "uid-1", body["user_id"])

	cookie := w.Header().Get("Set-Cookie")
	assert.Contains(t, cookie, "sessionId="+sid)
	assert.Contains(t, cookie, "Max-Age=31536000")
	assert.Contains(t, cookie, "HttpOnly")
	assert.Contains(t, cookie, "Secure")
	assert.Contains(t, cookie, "SameSite=Strict")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	assert.Equal(t, services.SignupRequest{Username: "bob", Email: "bob@x.com", Password: "hunter2"}, a.lastSignup)
	assert.Equal(t, "1.2.3.4", a.lastClient.IP)
	assert.Equal(t, "ua/1", a.lastClient.UserAgent)
	assert.Equal(t, "sessionId="+sid, a.lastClient.CookieHeader)
}

func TestSignup_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    int
		message string
	}{
		{"validation", fmt.Errorf("%w: %s", common.ErrorValidation, "email: cannot be blank."), 400, "email: cannot be blank."},
		{"username taken", common.ErrUsernameTaken, 409, "Username is already taken."},
		{"provider verdict", &provider.Error{Status: 422, Message: "Password should be at least 6 characters."}, 400, "Password should be at least 6 characters."},
		{"provider down", &provider.Error{Message: "auth provider unavailable", Err: errors.New("dial")}, 500, "Internal Server Error"},
		{"allocation", fmt.Errorf("%w: x", common.ErrAllocationExhausted), 500, "Internal Server Error"},
		{"session", fmt.Errorf("%w: x", common.ErrSessionCreateFailed), 500, "Internal Server Error"},
		{"storage", fmt.Errorf("%w: pq: secret detail", common.ErrStorage), 500, "Internal Server Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, a, _ := newTestServer()
			a.signupErr = tt.err

			w := do(t, s.Handler(), http.MethodPost, "/signup", `{"username":"a"}`, nil)
			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, tt.message, decode(t, w)["message"])
			assert.Empty(t, w.Header().Get("Set-Cookie"))
		})
	}
}

func TestLogin_Success(t *testing.T) {
	s, a, _ := newTestServer()

	w := do(t, s.Handler(), http.MethodPost, "/login", `{"email":"bob@x.com","password":"hunter2"}`,
		map[string]string{"X-Real-IP": "5.6.7.8"})

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Login successful!", body["message"])
	assert.Equal(t, "1234567890", body["id"])
	assert.Contains(t, w.Header().Get("Set-Cookie"), "sessionId="+sid)
	assert.Equal(t, "5.6.7.8", a.lastClient.IP)
	assert.Equal(t, "bob@x.com", a.lastLogin.Email)
}

func TestLogin_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    int
		message string
	}{
		{"bad credentials", &provider.Error{Status: 400, Message: "Invalid login credentials"}, 401, "Invalid login credentials"},
		{"no account", common.ErrAccountNotFound, 404, "User data not found"},
		{"provider down", &provider.Error{Message: "auth provider unavailable", Err: errors.New("timeout")}, 500, "Internal Server Error"},
		{"storage", fmt.Errorf("%w: boom", common.ErrStorage), 500, "Internal Server Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, a, _ := newTestServer()
			a.loginErr = tt.err

			w := do(t, s.Handler(), http.MethodPost, "/login", `{}`, nil)
			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, tt.message, decode(t, w)["message"])
		})
	}
}

func TestRefresh(t *testing.T) {
	s, a, _ := newTestServer()

	w := do(t, s.Handler(), http.MethodPost, "/token", `{"refresh_token":"rt"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "Token refreshed", body["message"])
	assert.Equal(t, "at2", body["token"])
	assert.Equal(t, "rt2", body["refresh_token"])
	assert.Equal(t, "1234567890", body["id"])
	assert.Equal(t, "rt", a.lastRefresh.RefreshToken)
	assert.Empty(t, w.Header().Get("Set-Cookie"))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	tests := []struct {
		name    string
		err     error
		code    int
		message string
	}{
		{"validation", fmt.Errorf("%w: %s", common.ErrorValidation, "refresh_token: cannot be blank."), 400, "refresh_token: cannot be blank."},
		{"rejected", &provider.Error{Status: 400, Message: "Invalid Refresh Token: Refresh Token Not Found"}, 401, "Invalid Refresh Token: Refresh Token Not Found"},
		{"provider down", &provider.Error{Message: "auth provider unavailable", Err: errors.New("dial")}, 500, "Internal Server Error"},
		{"no account", common.ErrAccountNotFound, 404, "User data not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, a, _ := newTestServer()
			a.refreshErr = tt.err

			w := do(t, s.Handler(), http.MethodPost, "/token", `{}`, nil)
			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, tt.message, decode(t, w)["message"])
		})
	}
}

func TestLoginElse(t *testing.T) {
	s, _, c := newTestServer()

	w := do(t, s.Handler(), http.MethodPost, "/login-else", `{"id":"1234567890","password":"pw"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", decode(t, w)["status"])
	assert.Equal(t, services.MirrorRequest{ID: "1234567890", Password: "pw"}, c.last)

	c.err = fmt.Errorf("%w: id: must be in a valid format.", common.ErrorValidation)
	w = do(t, s.Handler(), http.MethodPost, "/login-else", `{"id":"x","password":"pw"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c.err = fmt.Errorf("%w: disk", common.ErrStorage)
	w = do(t, s.Handler(), http.MethodPost, "/login-else", `{"id":"1234567890","password":"pw"}`, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal Server Error", decode(t, w)["message"])
}

func TestMethodNotAllowed(t *testing.T) {
	s, _, _ := newTestServer()
	h := s.Handler()

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/signup"},
		{http.MethodPut, "/login"},
		{http.MethodGet, "/token"},
		{http.MethodGet, "/login-else"},
		{http.MethodOptions, "/login-else"},
		{http.MethodPost, "/healthz"},
	} {
		w := do(t, h, tc.method, tc.path, "", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code, "%s %s", tc.method, tc.path)
		assert.Equal(t, "Method Not Allowed", decode(t, w)["message"])
	}
}

func TestPreflight(t *testing.T) {
	s, a, _ := newTestServer()

	for _, path := range []string{"/signup", "/login"} {
		w := do(t, s.Handler(), http.MethodOptions, path, "", nil)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "POST, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
		assert.Equal(t, "Content-Type", w.Header().Get("Access-Control-Allow-Headers"))
		assert.Empty(t, w.Body.String())
	}
	assert.Empty(t, a.lastSignup.Username, "preflight never reaches the service")
}

func TestMalformedJSON(t *testing.T) {
	s, _, _ := newTestServer()

	for _, path := range []string{"/signup", "/login", "/login-else"} {
		w := do(t, s.Handler(), http.MethodPost, path, `{"email":`, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		assert.Equal(t, "Invalid JSON body", decode(t, w)["message"])
	}
}

func TestRecoverAndRequestID(t *testing.T) {
	s, a, _ := newTestServer()
	a.panic = true

	w := do(t, s.Handler(), http.MethodPost, "/signup", `{}`, map[string]string{"X-Request-ID": "req-42"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal Server Error", decode(t, w)["message"])
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
}

func TestHealthzAndNotFound(t *testing.T) {
	s, _, _ := newTestServer()

	w := do(t, s.Handler(), http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])

	w = do(t, s.Handler(), http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		hdr    map[string]string
		remote string
		want   string
	}{
		{"xff first hop", map[string]string{"X-Forwarded-For": " 9.9.9.9 , 1.1.1.1"}, "3.3.3.3:1", "9.9.9.9"},
		{"real ip", map[string]string{"X-Real-IP": "8.8.8.8"}, "3.3.3.3:1", "8.8.8.8"},
		{"remote addr", nil, "3.3.3.3:1234", "3.3.3.3"},
		{"remote without port", nil, "3.3.3.3", "3.3.3.3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.hdr {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(r))
		})
	}
}

func TestBodyTooLarge(t *testing.T) {
	s, _, _ := newTestServer()
	big := `{"username":"` + strings.Repeat("a", maxBodyBytes) + `"}`

	r := httptest.NewRequest(http.MethodPost, "/signup", bytes.NewBufferString(big))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	a, c := &fakeAuth{}, &fakeCredentials{}
	srv := NewServer(addr, logging.Nop{}, a, c)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
