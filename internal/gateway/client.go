package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Gateway paths, relative to the server root.
const (
	loginPath = "/enteliweb/api/auth/basiclogin"
	restRoot  = "/enteliweb/api/.bacnet"
	multiPath = "/enteliweb/api/.multi"
	wsbacRoot = "/enteliweb/wsbac/"
	taskRoot  = "/enteliweb/wstaskqueue/"
)

// Defaults for Options.
const (
	DefaultScheme        = "http"
	DefaultSessionCookie = "enteliWebID"
	DefaultCSRFKey       = "_csrfToken"
	DefaultTimeout       = 30 * time.Second
)

// maxBodyBytes caps how much of a response is read. Database snapshots are
// the largest payloads the gateway returns.
const maxBodyBytes = 512 << 20

// Logger is the logging interface used by the client.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Client. The zero value talks plain HTTP with the
// gateway's standard cookie and token names.
type Options struct {
	// Scheme is "http" or "https".
	Scheme string

	// HTTPClient performs the requests. When nil a client with Timeout is
	// created.
	HTTPClient *http.Client

	// Timeout bounds each request when HTTPClient is nil.
	Timeout time.Duration

	// SessionCookie is the name of the cookie carrying the session token.
	SessionCookie string

	// CSRFKey names the anti-forgery token, both in the login response body
	// and as a request parameter.
	CSRFKey string

	// SaveDatabasePoll bounds the export status poll of SaveDatabase.
	SaveDatabasePoll PollPolicy

	// CopyObjectPoll bounds the progress poll of CopyObject.
	CopyObjectPoll PollPolicy

	// Sleeper waits between poll attempts.
	Sleeper Sleeper

	// Observer receives AsyncTask transitions.
	Observer TaskObserver

	// Logger receives debug and warning output. Secrets are never logged.
	Logger Logger

	// Now returns the current time; used to stamp tasks.
	Now func() time.Time
}

// Client talks to one or more enteliWEB gateways.
//
// A Client holds configuration only. Session state lives in the Session
// values returned by Login, so a single Client may serve many sessions.
//
// Thread Safety:
//   - Client methods are safe for concurrent use with distinct Sessions.
//   - A Session must not be used by two calls at once.
type Client struct {
	scheme         string
	http           *http.Client
	sessionCookie  string
	csrfKey        string
	saveDBPoll     PollPolicy
	copyObjectPoll PollPolicy
	sleeper        Sleeper
	observer       TaskObserver
	logger         Logger
	now            func() time.Time
}

// New creates a Client, filling unset options with defaults.
func New(opts Options) *Client {
	c := &Client{
		scheme:         opts.Scheme,
		http:           opts.HTTPClient,
		sessionCookie:  opts.SessionCookie,
		csrfKey:        opts.CSRFKey,
		saveDBPoll:     opts.SaveDatabasePoll,
		copyObjectPoll: opts.CopyObjectPoll,
		sleeper:        opts.Sleeper,
		observer:       opts.Observer,
		logger:         opts.Logger,
		now:            opts.Now,
	}
	if c.scheme == "" {
		c.scheme = DefaultScheme
	}
	if c.http == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		c.http = &http.Client{Timeout: timeout}
	}
	if c.sessionCookie == "" {
		c.sessionCookie = DefaultSessionCookie
	}
	if c.csrfKey == "" {
		c.csrfKey = DefaultCSRFKey
	}
	if c.saveDBPoll.MaxAttempts == 0 {
		c.saveDBPoll = DefaultSaveDatabasePoll()
	}
	if c.copyObjectPoll.MaxAttempts == 0 {
		c.copyObjectPoll = DefaultCopyObjectPoll()
	}
	if c.sleeper == nil {
		c.sleeper = timerSleeper{}
	}
	if c.logger == nil {
		c.logger = noopLogger{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// SetLogger replaces the client's logger.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.logger = logger
}

// response is a fully read gateway reply.
type response struct {
	status  int
	reason  string
	body    []byte
	cookies []*http.Cookie
}

func (r *response) classify() Classification {
	return Classify(r.status, r.reason, r.body)
}

// decodeJSON unmarshals the body, wrapping failures in ErrUnexpectedResponse.
func (r *response) decodeJSON(v any) error {
	if err := json.Unmarshal(r.body, v); err != nil {
		return fmt.Errorf("%w: HTTP %d: %w", ErrUnexpectedResponse, r.status, err)
	}
	return nil
}

// serverURL builds an absolute URL for a path on the session's server.
func (c *Client) serverURL(server, path string) *url.URL {
	return &url.URL{Scheme: c.scheme, Host: server, Path: path}
}

// restURL builds a URL below the .bacnet root from "/"-joined segments.
func (c *Client) restURL(sess *Session, segments ...string) *url.URL {
	return c.serverURL(sess.server(), restRoot+"/"+strings.Join(segments, "/"))
}

// send performs an authenticated request and reads the full response.
func (c *Client) send(ctx context.Context, sess *Session, method string, u *url.URL, body io.Reader, contentType string) (*response, error) {
	if err := sess.check(); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	sess.Decorate(req)
	return c.roundTrip(req)
}

// roundTrip executes req and reads its body.
func (c *Client) roundTrip(req *http.Request) (*response, error) {
	c.logger.Debug("gateway request", "method", req.Method, "path", req.URL.Path)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrNetwork, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrNetwork, req.URL.Path, err)
	}

	c.logger.Debug("gateway response", "path", req.URL.Path, "status", resp.StatusCode, "bytes", len(body))
	return &response{
		status:  resp.StatusCode,
		reason:  reasonPhrase(resp),
		body:    body,
		cookies: resp.Cookies(),
	}, nil
}

// get issues an authenticated GET.
func (c *Client) get(ctx context.Context, sess *Session, u *url.URL) (*response, error) {
	return c.send(ctx, sess, http.MethodGet, u, nil, "")
}

// sendJSON issues an authenticated request with a JSON body.
func (c *Client) sendJSON(ctx context.Context, sess *Session, method string, u *url.URL, payload any) (*response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding request body: %w", err)
	}
	return c.send(ctx, sess, method, u, bytes.NewReader(data), "application/json")
}

// postForm posts url-encoded fields to a wsbac or task-queue endpoint.
// The anti-forgery token travels in the form as well as the query.
func (c *Client) postForm(ctx context.Context, sess *Session, path string, form url.Values) (*response, error) {
	if err := sess.check(); err != nil {
		return nil, err
	}
	if form == nil {
		form = url.Values{}
	}
	form.Set(c.csrfKey, sess.AntiForgeryToken)
	return c.send(ctx, sess, http.MethodPost, c.serverURL(sess.server(), path),
		strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
}

// postFile uploads one local file as a multipart form together with the
// given fields.
func (c *Client) postFile(ctx context.Context, sess *Session, path string, fields url.Values, fileField, filePath string) (*response, error) {
	if err := sess.check(); err != nil {
		return nil, err
	}

	f, err := os.Open(filePath) // #nosec G304 -- caller-chosen upload file
	if err != nil {
		return nil, fmt.Errorf("opening upload file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if fields == nil {
		fields = url.Values{}
	}
	fields.Set(c.csrfKey, sess.AntiForgeryToken)
	for _, key := range sortedKeys(fields) {
		if err := mw.WriteField(key, fields.Get(key)); err != nil {
			return nil, fmt.Errorf("writing form field %s: %w", key, err)
		}
	}
	part, err := mw.CreateFormFile(fileField, filepath.Base(filePath))
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("reading upload file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart body: %w", err)
	}

	return c.send(ctx, sess, http.MethodPost, c.serverURL(sess.server(), path),
		&buf, mw.FormDataContentType())
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// jsonList renders strings as a JSON array, the form the wsbac endpoints
// expect for reference lists.
func jsonList(items ...string) string {
	data, _ := json.Marshal(items) //nolint:errcheck // []string always marshals
	return string(data)
}

// jsonString renders one JSON string literal.
func jsonString(s string) string {
	data, _ := json.Marshal(s) //nolint:errcheck // strings always marshal
	return string(data)
}
