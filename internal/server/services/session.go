package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/dmitrijs2005/idgate/internal/common"
	"github.com/dmitrijs2005/idgate/internal/dbx"
	"github.com/dmitrijs2005/idgate/internal/logging"
	"github.com/dmitrijs2005/idgate/internal/server/models"
	"github.com/dmitrijs2005/idgate/internal/server/repositories/sessions"
)

// sessionIDBytes gives 128-bit session ids, 32 hex characters.
const sessionIDBytes = 16

var sessionIDPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// Resolution is the outcome of correlating one request with a session.
type Resolution struct {
	SessionID string
	IsNew     bool
	Cookie    *http.Cookie
}

// SessionCookie is the Set-Cookie directive that carries id back to the
// client.
func SessionCookie(id string) *http.Cookie {
	return &http.Cookie{
		Name:     common.SessionCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   common.SessionCookieMaxAge,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}

// SessionIDFromCookieHeader extracts the session id from a raw Cookie
// header. Malformed ids are treated as absent.
func SessionIDFromCookieHeader(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	r := &http.Request{Header: http.Header{"Cookie": {header}}}
	c, err := r.Cookie(common.SessionCookieName)
	if err != nil || !sessionIDPattern.MatchString(c.Value) {
		return "", false
	}
	return c.Value, true
}

// Correlator resolves or creates the session of a request.
type Correlator struct {
	sessions sessions.Repository
	timeout  time.Duration
	newID    func() (string, error)
	log      logging.Logger
}

func NewCorrelator(repo sessions.Repository, storeTimeout time.Duration, log logging.Logger) *Correlator {
	return &Correlator{
		sessions: repo,
		timeout:  storeTimeout,
		newID:    func() (string, error) { return common.MakeRandHexString(sessionIDBytes) },
		log:      log,
	}
}

// Resolve reuses the session named by the cookie, recording ip on it, or
// starts a new one. Only a failure to create a session is returned; a failed
// ip append is logged and the existing id is kept.
func (c *Correlator) Resolve(ctx context.Context, cookieHeader, ip, userAgent string) (*Resolution, error) {
	if id, ok := SessionIDFromCookieHeader(cookieHeader); ok {
		sctx, cancel := dbx.Bounded(ctx, c.timeout)
		err := c.sessions.AppendIP(sctx, id, ip)
		cancel()

		switch {
		case err == nil:
			return &Resolution{SessionID: id, Cookie: SessionCookie(id)}, nil
		case errors.Is(err, common.ErrorNotFound):
			c.log.Info(ctx, "unknown session cookie, starting a new session")
		default:
			c.log.Warn(ctx, "session ip append failed", "session_id", id, "error", err)
			return &Resolution{SessionID: id, Cookie: SessionCookie(id)}, nil
		}
	}
	return c.create(ctx, ip, userAgent)
}

func (c *Correlator) create(ctx context.Context, ip, userAgent string) (*Resolution, error) {
	id, err := c.newID()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrSessionCreateFailed, err)
	}

	sctx, cancel := dbx.Bounded(ctx, c.timeout)
	defer cancel()

	s := &models.Session{ID: id, IPAddresses: []string{ip}, UserAgent: userAgent}
	if err := c.sessions.Create(sctx, s); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrSessionCreateFailed, err)
	}
	c.log.Debug(ctx, "session created", "session_id", id)
	return &Resolution{SessionID: id, IsNew: true, Cookie: SessionCookie(id)}, nil
}
