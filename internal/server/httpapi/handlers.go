package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/dmitrijs2005/idgate/internal/server/services"
)

type authResponse struct {
	Message      string `json:"message"`
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMessage(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}

	var req services.SignupRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := s.auth.Signup(r.Context(), req, clientInfo(r))
	if err != nil {
		s.writeError(w, r, err, http.StatusBadRequest)
		return
	}

	http.SetCookie(w, res.Session.Cookie)
	writeJSON(w, http.StatusOK, authResponse{
		Message:      "Sign up successful!",
		Token:        res.AccessToken,
		RefreshToken: res.RefreshToken,
		ID:           res.AccountID,
		UserID:       res.UserID,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMessage(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}

	var req services.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := s.auth.Login(r.Context(), req, clientInfo(r))
	if err != nil {
		s.writeError(w, r, err, http.StatusUnauthorized)
		return
	}

	http.SetCookie(w, res.Session.Cookie)
	writeJSON(w, http.StatusOK, authResponse{
		Message:      "Login successful!",
		Token:        res.AccessToken,
		RefreshToken: res.RefreshToken,
		ID:           res.AccountID,
		UserID:       res.UserID,
	})
}

// handleRefresh trades a refresh token for a new token pair. No cookie is
// set; the session is left as it is.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMessage(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}

	var req services.RefreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := s.auth.Refresh(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err, http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		Message:      "Token refreshed",
		Token:        res.AccessToken,
		RefreshToken: res.RefreshToken,
		ID:           res.AccountID,
		UserID:       res.UserID,
	})
}

// handleLoginElse is the peer end of the remote credential mirror.
func (s *Server) handleLoginElse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMessage(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}

	var req services.MirrorRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.credentials.Store(r.Context(), req); err != nil {
		s.writeError(w, r, err, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeMessage(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
