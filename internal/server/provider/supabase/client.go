// Package supabase talks to a Supabase GoTrue auth server over its REST API.
package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/idgate/internal/netx"
	"github.com/dmitrijs2005/idgate/internal/server/provider"
)

// Client implements provider.Provider. The anon key authorises sign-up and
// sign-in; the service key is only used for admin deletes.
type Client struct {
	baseURL    string
	anonKey    string
	serviceKey string
	http       *http.Client
}

func New(baseURL, anonKey, serviceKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    anonKey,
		serviceKey: serviceKey,
		http:       &http.Client{Timeout: timeout},
	}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type user struct {
	ID string `json:"id"`
}

// session is the GoTrue token response. Sign-up without auto-confirm
// returns the bare user object instead, which decodes into ID.
type session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         *user  `json:"user"`
	ID           string `json:"id"`
}

func (s *session) identity() (*provider.Identity, error) {
	id := s.ID
	if s.User != nil && s.User.ID != "" {
		id = s.User.ID
	}
	if id == "" {
		return nil, &provider.Error{Status: http.StatusBadGateway, Message: "auth provider returned no user"}
	}
	return &provider.Identity{UserID: id, AccessToken: s.AccessToken, RefreshToken: s.RefreshToken}, nil
}

func (c *Client) header(key string) http.Header {
	h := http.Header{}
	h.Set("apikey", key)
	h.Set("Authorization", "Bearer "+key)
	return h
}

func (c *Client) SignUp(ctx context.Context, email, password string) (*provider.Identity, error) {
	var out session
	err := netx.DoJSON(ctx, c.http, http.MethodPost, c.baseURL+"/auth/v1/signup",
		c.header(c.anonKey), credentials{Email: email, Password: password}, &out)
	if err != nil {
		return nil, toProviderError(err)
	}
	return out.identity()
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*provider.Identity, error) {
	var out session
	err := netx.DoJSON(ctx, c.http, http.MethodPost, c.baseURL+"/auth/v1/token?grant_type=password",
		c.header(c.anonKey), credentials{Email: email, Password: password}, &out)
	if err != nil {
		return nil, toProviderError(err)
	}
	return out.identity()
}

type refreshGrant struct {
	RefreshToken string `json:"refresh_token"`
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (*provider.Identity, error) {
	var out session
	err := netx.DoJSON(ctx, c.http, http.MethodPost, c.baseURL+"/auth/v1/token?grant_type=refresh_token",
		c.header(c.anonKey), refreshGrant{RefreshToken: refreshToken}, &out)
	if err != nil {
		return nil, toProviderError(err)
	}
	return out.identity()
}

func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	if c.serviceKey == "" {
		return errors.New("delete user: service key not configured")
	}
	err := netx.DoJSON(ctx, c.http, http.MethodDelete, c.baseURL+"/auth/v1/admin/users/"+url.PathEscape(userID),
		c.header(c.serviceKey), nil, nil)
	if err != nil {
		return toProviderError(err)
	}
	return nil
}

// errorBody covers the error shapes GoTrue has used across versions.
type errorBody struct {
	Msg              string `json:"msg"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"message"`
	Error            string `json:"error"`
}

func (b errorBody) text() string {
	for _, s := range []string{b.Msg, b.ErrorDescription, b.Message, b.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

func toProviderError(err error) error {
	var se *netx.StatusError
	if errors.As(err, &se) {
		var body errorBody
		_ = json.Unmarshal(se.Body, &body)
		msg := body.text()
		if msg == "" {
			msg = http.StatusText(se.StatusCode)
		}
		return &provider.Error{Status: se.StatusCode, Message: msg}
	}
	return &provider.Error{Message: "auth provider unavailable", Err: fmt.Errorf("supabase: %w", err)}
}
