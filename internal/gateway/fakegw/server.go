// Package fakegw is an in-process enteliWEB gateway for tests.
//
// It serves the REST, batch, wsbac and task-queue endpoints the gateway
// client uses, backed by an in-memory site/device/object tree, and records
// every request so tests can assert on what went over the wire. Individual
// routes can be replaced with Handle to script failures.
//
// The package knows nothing about the client's types; it
// speaks the wire protocol only.
package fakegw

import (
	"bytes"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

// Credentials and tokens issued by a new Server.
const (
	DefaultUsername     = "admin"
	DefaultPassword     = "secret"
	DefaultSessionToken = "session-0001"
	DefaultCSRFToken    = "csrf-0001"

	sessionCookie = "enteliWebID"
	csrfKey       = "_csrfToken"
)

// Object is one object on a fake device.
type Object struct {
	Name       string
	Properties map[string]string
}

// Device is one fake device.
type Device struct {
	DisplayName string
	Objects     map[string]*Object // keyed "AV,1000"
}

// Call is one recorded request.
type Call struct {
	Method string
	Path   string
	Query  url.Values
	Form   url.Values
	Files  map[string][]byte
	Body   []byte
}

// Server is a fake gateway. Configure the exported fields before the first
// request; they are read under the server's lock.
type Server struct {
	*httptest.Server

	Username     string
	Password     string
	SessionToken string
	CSRFToken    string

	// ExportPolls is how many checksavedatabase calls answer "not ready"
	// before the export reports ready. ExportNeverReady overrides it.
	ExportPolls      int
	ExportNeverReady bool
	DatabaseBytes    []byte

	// PastePolls is how many progress calls report the paste task below 100.
	// PasteNeverCompletes overrides it.
	PastePolls          int
	PasteNeverCompletes bool

	// UploadedObject is what uploadobjectfile reports as the object stored
	// in any uploaded backup.
	UploadedObject UploadedObject

	ObjectFileBytes []byte

	mu        sync.Mutex
	sites     map[string]map[string]*Device
	overrides map[string]http.HandlerFunc
	calls     []Call
	programs  map[string]string
	uploads   map[string][]byte
	exports   int
	tasks     map[string]*pasteTask
	nextTask  int
}

// UploadedObject describes the object inside an uploaded backup file.
type UploadedObject struct {
	File     string
	Type     string
	Instance string
	Name     string
}

// New starts a fake gateway and registers its shutdown with t.Cleanup.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		Username:        DefaultUsername,
		Password:        DefaultPassword,
		SessionToken:    DefaultSessionToken,
		CSRFToken:       DefaultCSRFToken,
		DatabaseBytes:   []byte("ZDD-SNAPSHOT"),
		ObjectFileBytes: []byte("ZOB-BACKUP"),
		UploadedObject: UploadedObject{
			File:     `C:\ProgramData\Delta Controls\enteliWEB\tmp\upload.zob`,
			Type:     "AV",
			Instance: "1",
			Name:     "Uploaded",
		},
		sites:     make(map[string]map[string]*Device),
		overrides: make(map[string]http.HandlerFunc),
		programs:  make(map[string]string),
		uploads:   make(map[string][]byte),
		tasks:     make(map[string]*pasteTask),
	}
	s.Server = httptest.NewServer(s.router())
	t.Cleanup(s.Close)
	return s
}

// Addr returns the "host:port" the client should log in to.
func (s *Server) Addr() string {
	return strings.TrimPrefix(s.URL, "http://")
}

// AddDevice creates a device (and its site) if missing.
func (s *Server) AddDevice(site, device, displayName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deviceLocked(site, device, displayName)
}

// AddObject creates or replaces an object on a device, creating the device
// if needed.
func (s *Server) AddObject(site, device, id, name string, props map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dev := s.deviceLocked(site, device, "")
	obj := &Object{Name: name, Properties: make(map[string]string, len(props))}
	for k, v := range props {
		obj.Properties[k] = v
	}
	dev.Objects[id] = obj
}

// Object returns a copy of an object.
func (s *Server) Object(site, device, id string) (Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj := s.objectLocked(site, device, id)
	if obj == nil {
		return Object{}, false
	}
	cp := Object{Name: obj.Name, Properties: make(map[string]string, len(obj.Properties))}
	for k, v := range obj.Properties {
		cp.Properties[k] = v
	}
	return cp, true
}

// Program returns the program text last loaded into a PG object reference
// ("//site/device.PG1").
func (s *Server) Program(ref string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.programs[ref]
}

// Upload returns the bytes last uploaded under a multipart field name.
func (s *Server) Upload(field string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploads[field]
}

// RotateSession invalidates every issued session: requests carrying the
// old cookie get 401 and the next login receives token.
func (s *Server) RotateSession(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SessionToken = token
}

// Handle replaces the handler for one method and exact path.
func (s *Server) Handle(method, path string, h http.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[method+" "+path] = h
}

// Calls returns every request received so far.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Count returns how many requests hit path.
func (s *Server) Count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Path == path {
			n++
		}
	}
	return n
}

// LastCall returns the most recent request to path.
func (s *Server) LastCall(path string) (Call, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.calls) - 1; i >= 0; i-- {
		if s.calls[i].Path == path {
			return s.calls[i], true
		}
	}
	return Call{}, false
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.recordMiddleware)
	r.Use(s.overrideMiddleware)

	r.Get("/enteliweb/api/auth/basiclogin", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Route("/enteliweb/api/.bacnet", func(r chi.Router) {
			r.Get("/", s.handleSites)
			r.Get("/{site}", s.handleDevices)
			r.Get("/{site}/{device}/", s.handleObjects)
			r.Post("/{site}/{device}", s.handleCreate)
			r.Delete("/{site}/{device}/{object}", s.handleDelete)
			r.Put("/{site}/{device}/{object}/*", s.handleWriteProperty)
		})
		r.Post("/enteliweb/api/.multi", s.handleMulti)

		r.Route("/enteliweb/wsbac", func(r chi.Router) {
			r.Post("/sendstartsavedatabasecurl", s.handleStartExport)
			r.Post("/checksavedatabase", s.handleCheckExport)
			r.Post("/savedatabasefile", s.handleFetchExport)
			r.Post("/loaddevicedatabasefile", s.handleLoadDatabase)
			r.Post("/waitfordeviceonline/", s.handleWaitOnline)
			r.Post("/getsuggestedpastedata", s.handleSuggestPaste)
			r.Post("/createpasteobjecttask", s.handleCreatePasteTask)
			r.Post("/pasteobject", s.handlePaste)
			r.Post("/uploadobjectfile", s.handleUploadObject)
			r.Post("/restoreobject", s.handleRestoreObject)
			r.Post("/backupobject", s.handleBackupObject)
			r.Post("/saveobjectfile", s.handleSaveObjectFile)
			r.Post("/saveprogram", s.handleSaveProgram)
		})
		r.Route("/enteliweb/wstaskqueue", func(r chi.Router) {
			r.Get("/getcopypastetaskprogress", s.handlePasteProgress)
			r.Post("/getmergedtasktargetparamdata", s.handleMergedParams)
		})
	})
	return r
}

// recordMiddleware captures each request and restores its body.
func (s *Server) recordMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body) //nolint:errcheck // test server; short bodies
		r.Body = io.NopCloser(bytes.NewReader(body))

		call := Call{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Body:   body,
		}
		call.Form, call.Files = parseForm(r.Header.Get("Content-Type"), body)

		s.mu.Lock()
		s.calls = append(s.calls, call)
		s.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func (s *Server) overrideMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		h, ok := s.overrides[r.Method+" "+r.URL.Path]
		s.mu.Unlock()
		if ok {
			h(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authMiddleware requires the session cookie and the anti-forgery token.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		token, csrf := s.SessionToken, s.CSRFToken
		s.mu.Unlock()

		ck, err := r.Cookie(sessionCookie)
		if err != nil || ck.Value != token || r.URL.Query().Get(csrfKey) != csrf {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	user, pass, ok := r.BasicAuth()
	s.mu.Lock()
	valid := ok && user == s.Username && pass == s.Password
	token, csrf := s.SessionToken, s.CSRFToken
	s.mu.Unlock()

	if !valid {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: token, Path: "/"})
	writeJSON(w, http.StatusOK, map[string]any{csrfKey: csrf, "user": user})
}

// parseForm decodes url-encoded and multipart bodies.
func parseForm(contentType string, body []byte) (url.Values, map[string][]byte) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, nil
	}
	switch mediaType {
	case "application/x-www-form-urlencoded":
		form, _ := url.ParseQuery(string(body)) //nolint:errcheck // best effort
		return form, nil
	case "multipart/form-data":
		form := url.Values{}
		files := map[string][]byte{}
		mr := multipart.NewReader(bytes.NewReader(body), params["boundary"])
		for {
			part, err := mr.NextPart()
			if err != nil {
				break
			}
			data, _ := io.ReadAll(part) //nolint:errcheck // best effort
			if part.FileName() != "" {
				files[part.FormName()] = data
			} else {
				form.Add(part.FormName(), string(data))
			}
		}
		return form, files
	}
	return nil, nil
}

func (s *Server) deviceLocked(site, device, displayName string) *Device {
	devices, ok := s.sites[site]
	if !ok {
		devices = make(map[string]*Device)
		s.sites[site] = devices
	}
	dev, ok := devices[device]
	if !ok {
		dev = &Device{Objects: make(map[string]*Object)}
		devices[device] = dev
	}
	if displayName != "" {
		dev.DisplayName = displayName
	}
	return dev
}

func (s *Server) objectLocked(site, device, id string) *Object {
	dev, ok := s.sites[site][device]
	if !ok {
		return nil
	}
	return dev.Objects[id]
}
