// Package httpapi is the public HTTP/JSON surface of idgate. It is the only
// layer that maps service errors to status codes.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/idgate/internal/logging"
	"github.com/dmitrijs2005/idgate/internal/server/services"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 1 << 20

const shutdownTimeout = 10 * time.Second

// Authenticator runs the signup, login and refresh flows.
type Authenticator interface {
	Signup(ctx context.Context, req services.SignupRequest, client services.ClientInfo) (*services.AuthResult, error)
	Login(ctx context.Context, req services.LoginRequest, client services.ClientInfo) (*services.AuthResult, error)
	Refresh(ctx context.Context, req services.RefreshRequest) (*services.AuthResult, error)
}

// CredentialStorer accepts credentials mirrored by a peer.
type CredentialStorer interface {
	Store(ctx context.Context, req services.MirrorRequest) error
}

type Server struct {
	address     string
	auth        Authenticator
	credentials CredentialStorer
	logger      logging.Logger
}

func NewServer(address string, l logging.Logger, auth Authenticator, credentials CredentialStorer) *Server {
	return &Server{
		address:     address,
		auth:        auth,
		credentials: credentials,
		logger:      l.With("module", "http_server"),
	}
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/signup", s.withCORS(s.handleSignup))
	mux.HandleFunc("/login", s.withCORS(s.handleLogin))
	mux.HandleFunc("/token", s.withCORS(s.handleRefresh))
	mux.HandleFunc("/login-else", s.handleLoginElse)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusNotFound, "Not Found")
	})

	return s.withRequestID(s.withRequestLog(s.withRecover(mux)))
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			s.logger.Error(ctx, "http shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
