package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// connectFailureMarker is the text the gateway returns in a 200 body when it
// cannot reach its own backend.
const connectFailureMarker = "Cannot Connect"

// Session is the authenticated state of one login.
//
// It is created by Client.Login, passed by pointer into every operation, and
// never renewed. A Session is not safe for concurrent use.
type Session struct {
	ServerAddress    string
	SessionToken     string
	AntiForgeryToken string
	Authenticated    bool

	cookieName string
	csrfKey    string
}

// check fails with ErrNotAuthenticated unless the session can sign requests.
func (s *Session) check() error {
	if s == nil || !s.Authenticated || s.SessionToken == "" {
		return ErrNotAuthenticated
	}
	return nil
}

// server returns the gateway address, or "" for a nil session.
func (s *Session) server() string {
	if s == nil {
		return ""
	}
	return s.ServerAddress
}

// Decorate attaches the session cookie to req and appends "alt=JSON" and
// the anti-forgery token to its query.
func (s *Session) Decorate(req *http.Request) {
	req.AddCookie(&http.Cookie{Name: s.cookieName, Value: s.SessionToken})
	q := req.URL.Query()
	q.Set("alt", "JSON")
	q.Set(s.csrfKey, s.AntiForgeryToken)
	req.URL.RawQuery = q.Encode()
}

// Close forgets the tokens. The gateway has no logout call; the server-side
// session simply expires.
func (s *Session) Close() {
	if s == nil {
		return
	}
	s.SessionToken = ""
	s.AntiForgeryToken = ""
	s.Authenticated = false
}

// Login authenticates against server ("host" or "host:port"; a leading
// "scheme://" is ignored) with HTTP basic credentials.
//
// Login succeeds only when all of the following hold:
//   - the round trip completes
//   - the status is 200
//   - the body does not report a backend connection failure
//   - the session cookie is set
//
// The anti-forgery token is read from the JSON body. There is no retry.
func (c *Client) Login(ctx context.Context, server, username, password string) (*Session, error) {
	if _, host, found := strings.Cut(server, "://"); found {
		server = host
	}
	server = strings.TrimRight(server, "/")
	if server == "" {
		return nil, fmt.Errorf("%w: server address is required", ErrAuth)
	}

	u := c.serverURL(server, loginPath)
	u.RawQuery = url.Values{"alt": {"JSON"}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building login request: %w", err)
	}
	req.SetBasicAuth(username, password)
	req.Header.Set("Content-Type", "application/json")

	c.logger.Info("logging in to gateway", "server", server, "username", username)

	resp, err := c.roundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.status != StatusOK {
		cl := resp.classify()
		err := cl.Err()
		if err == nil {
			err = unexpectedStatus(cl)
		}
		return nil, fmt.Errorf("%w: %w", ErrAuth, err)
	}
	if bytes.Contains(resp.body, []byte(connectFailureMarker)) {
		return nil, fmt.Errorf("%w: gateway cannot connect to its backend", ErrAuth)
	}

	var token string
	for _, ck := range resp.cookies {
		if ck.Name == c.sessionCookie {
			token = ck.Value
			break
		}
	}
	if token == "" {
		return nil, fmt.Errorf("%w: no %s cookie in response", ErrAuth, c.sessionCookie)
	}

	var body map[string]json.RawMessage
	if err := resp.decodeJSON(&body); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuth, err)
	}
	csrf := scalarText(body[c.csrfKey])
	if csrf == "" {
		c.logger.Warn("login response has no anti-forgery token", "server", server, "key", c.csrfKey)
	}

	c.logger.Info("logged in to gateway", "server", server)
	return &Session{
		ServerAddress:    server,
		SessionToken:     token,
		AntiForgeryToken: csrf,
		Authenticated:    true,
		cookieName:       c.sessionCookie,
		csrfKey:          c.csrfKey,
	}, nil
}
