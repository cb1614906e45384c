package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/mkaufman2023/enteliweb/internal/gateway/fakegw"
)

const (
	testSite   = "Main"
	testDevice = "100"
)

// newTestGateway starts a fake gateway with one device and returns a client
// logged in to it.
func newTestGateway(t *testing.T) (*fakegw.Server, *Client, *Session, *fakeSleeper) {
	t.Helper()

	srv := fakegw.New(t)
	srv.AddDevice(testSite, testDevice, "AHU Controller")

	sleeper := &fakeSleeper{}
	c := New(Options{Sleeper: sleeper})
	sess, err := c.Login(context.Background(), srv.Addr(), fakegw.DefaultUsername, fakegw.DefaultPassword)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	return srv, c, sess, sleeper
}

func testRef(typ, inst string) ObjectReference {
	return ObjectReference{Site: testSite, Device: testDevice, ObjectType: typ, Instance: inst}
}

func TestLogin(t *testing.T) {
	srv, _, sess, _ := newTestGateway(t)

	if !sess.Authenticated {
		t.Error("session should be authenticated")
	}
	if sess.SessionToken != fakegw.DefaultSessionToken {
		t.Errorf("SessionToken = %q, want %q", sess.SessionToken, fakegw.DefaultSessionToken)
	}
	if sess.AntiForgeryToken != fakegw.DefaultCSRFToken {
		t.Errorf("AntiForgeryToken = %q, want %q", sess.AntiForgeryToken, fakegw.DefaultCSRFToken)
	}
	if sess.ServerAddress != srv.Addr() {
		t.Errorf("ServerAddress = %q, want %q", sess.ServerAddress, srv.Addr())
	}

	call, ok := srv.LastCall("/enteliweb/api/auth/basiclogin")
	if !ok {
		t.Fatal("login endpoint was not called")
	}
	if got := call.Query.Get("alt"); got != "JSON" {
		t.Errorf("login alt = %q, want JSON", got)
	}
}

func TestLoginAcceptsSchemePrefix(t *testing.T) {
	srv := fakegw.New(t)
	c := New(Options{})

	sess, err := c.Login(context.Background(), "http://"+srv.Addr()+"/", fakegw.DefaultUsername, fakegw.DefaultPassword)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if sess.ServerAddress != srv.Addr() {
		t.Errorf("ServerAddress = %q, want %q", sess.ServerAddress, srv.Addr())
	}
}

func TestLoginFailures(t *testing.T) {
	tests := []struct {
		name     string
		password string
		handler  http.HandlerFunc
	}{
		{
			name:     "wrong password",
			password: "nope",
		},
		{
			name:     "backend unreachable",
			password: fakegw.DefaultPassword,
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.SetCookie(w, &http.Cookie{Name: DefaultSessionCookie, Value: "x"})
				w.WriteHeader(http.StatusOK)
				w.Write([]byte(`{"message":"Cannot Connect to database"}`)) //nolint:errcheck // test
			},
		},
		{
			name:     "missing session cookie",
			password: fakegw.DefaultPassword,
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte(`{"_csrfToken":"abc"}`)) //nolint:errcheck // test
			},
		},
		{
			name:     "non-200 success status",
			password: fakegw.DefaultPassword,
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.SetCookie(w, &http.Cookie{Name: DefaultSessionCookie, Value: "x"})
				w.WriteHeader(http.StatusNonAuthoritativeInfo)
				w.Write([]byte(`{"_csrfToken":"abc"}`)) //nolint:errcheck // test
			},
		},
		{
			name:     "body is not JSON",
			password: fakegw.DefaultPassword,
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.SetCookie(w, &http.Cookie{Name: DefaultSessionCookie, Value: "x"})
				w.WriteHeader(http.StatusOK)
				w.Write([]byte(`<html>login</html>`)) //nolint:errcheck // test
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := fakegw.New(t)
			if tt.handler != nil {
				srv.Handle(http.MethodGet, "/enteliweb/api/auth/basiclogin", tt.handler)
			}
			c := New(Options{})

			sess, err := c.Login(context.Background(), srv.Addr(), fakegw.DefaultUsername, tt.password)
			if !errors.Is(err, ErrAuth) {
				t.Fatalf("Login() error = %v, want ErrAuth", err)
			}
			if strings.Contains(err.Error(), "%!") {
				t.Errorf("Login() error = %q, badly formatted", err)
			}
			if sess != nil {
				t.Errorf("Login() session = %+v, want nil", sess)
			}
		})
	}
}

func TestLoginReportsSuccessStatus(t *testing.T) {
	srv := fakegw.New(t)
	srv.Handle(http.MethodGet, "/enteliweb/api/auth/basiclogin", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNonAuthoritativeInfo)
	})

	_, err := New(Options{}).Login(context.Background(), srv.Addr(), fakegw.DefaultUsername, fakegw.DefaultPassword)
	var se *StatusError
	if !errors.As(err, &se) || se.HTTPStatus != http.StatusNonAuthoritativeInfo {
		t.Fatalf("Login() error = %v, want StatusError with HTTP 203", err)
	}
	if !errors.Is(err, ErrAuth) || !strings.Contains(err.Error(), "HTTP 203") {
		t.Errorf("Login() error = %q", err)
	}
}

func TestLoginNetworkError(t *testing.T) {
	srv := fakegw.New(t)
	addr := srv.Addr()
	srv.Close()

	_, err := New(Options{}).Login(context.Background(), addr, "u", "p")
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("Login() error = %v, want ErrNetwork", err)
	}
}

func TestOperationsRequireSession(t *testing.T) {
	srv, c, sess, _ := newTestGateway(t)
	ctx := context.Background()
	ref := testRef("AV", "1")

	closed := *sess
	closed.Close()

	for name, s := range map[string]*Session{"nil": nil, "closed": &closed} {
		t.Run(name, func(t *testing.T) {
			before := len(srv.Calls())

			if _, err := c.ListSites(ctx, s); !errors.Is(err, ErrNotAuthenticated) {
				t.Errorf("ListSites() error = %v", err)
			}
			if err := c.CreateObject(ctx, s, ref, "x", nil); !errors.Is(err, ErrNotAuthenticated) {
				t.Errorf("CreateObject() error = %v", err)
			}
			if _, err := c.ReadMany(ctx, s, ref, []string{"present-value"}); !errors.Is(err, ErrNotAuthenticated) {
				t.Errorf("ReadMany() error = %v", err)
			}
			_, err := c.SaveDatabase(ctx, s, ref.DeviceAddress(), t.TempDir())
			if !errors.Is(err, ErrNotAuthenticated) {
				t.Errorf("SaveDatabase() error = %v", err)
			}
			if errors.Is(err, ErrPartialWorkflow) {
				t.Error("a workflow failing in its first phase is not partial")
			}

			if after := len(srv.Calls()); after != before {
				t.Errorf("unauthenticated operations sent %d requests", after-before)
			}
		})
	}
}

func TestDecorate(t *testing.T) {
	sess := &Session{
		SessionToken:     "tok",
		AntiForgeryToken: "csrf",
		Authenticated:    true,
		cookieName:       DefaultSessionCookie,
		csrfKey:          DefaultCSRFKey,
	}
	req, err := http.NewRequest(http.MethodGet, "http://gw/enteliweb/api/.bacnet/?x=1", nil)
	if err != nil {
		t.Fatal(err)
	}
	sess.Decorate(req)

	q := req.URL.Query()
	if q.Get("alt") != "JSON" || q.Get(DefaultCSRFKey) != "csrf" || q.Get("x") != "1" {
		t.Errorf("query = %q", req.URL.RawQuery)
	}
	ck, err := req.Cookie(DefaultSessionCookie)
	if err != nil || ck.Value != "tok" {
		t.Errorf("cookie = %v, %v", ck, err)
	}
}
