package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCreateObject(t *testing.T) {
	srv, c, sess, _ := newTestGateway(t)
	ctx := context.Background()
	ref := testRef("AV", "1000")

	if err := c.CreateObject(ctx, sess, ref, "Test", map[string]string{"Description": "demo"}); err != nil {
		t.Fatalf("CreateObject() error = %v", err)
	}

	obj, ok := srv.Object(testSite, testDevice, "AV,1000")
	if !ok {
		t.Fatal("object was not created")
	}
	if obj.Name != "Test" || obj.Properties["Description"] != "demo" {
		t.Errorf("created object = %+v", obj)
	}

	call, _ := srv.LastCall("/enteliweb/api/.bacnet/Main/100")
	var body map[string]json.RawMessage
	if err := json.Unmarshal(call.Body, &body); err != nil {
		t.Fatalf("request body: %v", err)
	}
	if string(body["$base"]) != `"Object"` {
		t.Errorf("$base = %s, want Object", body["$base"])
	}
	if got := string(body["object-identifier"]); got != `{"$base":"ObjectIdentifier","value":"AV,1000"}` {
		t.Errorf("object-identifier = %s", got)
	}
}

func TestCreateObjectRejectsReservedExtras(t *testing.T) {
	srv, c, sess, _ := newTestGateway(t)

	for _, key := range []string{"object-identifier", "object-name"} {
		err := c.CreateObject(context.Background(), sess, testRef("AV", "1000"), "Test", map[string]string{
			"Description": "demo",
			key:           "override",
		})
		if !errors.Is(err, ErrInvalidReference) {
			t.Errorf("CreateObject(extra %s) error = %v, want ErrInvalidReference", key, err)
		}
	}
	if n := srv.Count("/enteliweb/api/.bacnet/Main/100"); n != 0 {
		t.Errorf("create requests = %d, want 0", n)
	}
	if _, ok := srv.Object(testSite, testDevice, "AV,1000"); ok {
		t.Error("object was created")
	}
}

func TestCreateObjectAlreadyExists(t *testing.T) {
	srv, c, sess, _ := newTestGateway(t)
	srv.AddObject(testSite, testDevice, "AV,1000", "Existing", nil)

	err := c.CreateObject(context.Background(), sess, testRef("AV", "1000"), "Test", map[string]string{"Description": "demo"})

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("CreateObject() error = %v, want *StatusError", err)
	}
	if se.Code != "3" || se.Message != "Already exists" || !errors.Is(err, ErrVendor) {
		t.Errorf("StatusError = %+v", se)
	}
}

func TestCreateObjectRequiresCreated(t *testing.T) {
	srv, c, sess, _ := newTestGateway(t)
	srv.Handle(http.MethodPost, "/enteliweb/api/.bacnet/Main/100", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`)) //nolint:errcheck // test
	})

	err := c.CreateObject(context.Background(), sess, testRef("AV", "1"), "x", nil)
	var se *StatusError
	if !errors.As(err, &se) || se.Message != "OK" {
		t.Fatalf("CreateObject() error = %v, want StatusError with message OK", err)
	}
}

func TestDeleteObject(t *testing.T) {
	srv, c, sess, _ := newTestGateway(t)
	ctx := context.Background()
	srv.AddObject(testSite, testDevice, "AV,7", "Doomed", nil)

	if err := c.DeleteObject(ctx, sess, testRef("AV", "7")); err != nil {
		t.Fatalf("DeleteObject() error = %v", err)
	}
	if _, ok := srv.Object(testSite, testDevice, "AV,7"); ok {
		t.Error("object still exists")
	}

	err := c.DeleteObject(ctx, sess, testRef("AV", "7"))
	if !errors.Is(err, ErrHTTP) {
		t.Errorf("second DeleteObject() error = %v, want ErrHTTP", err)
	}
}

func TestDeleteObjectRejectsPlainOK(t *testing.T) {
	srv, c, sess, _ := newTestGateway(t)
	srv.Handle(http.MethodDelete, "/enteliweb/api/.bacnet/Main/100/AV,7", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	if err := c.DeleteObject(context.Background(), sess, testRef("AV", "7")); err == nil {
		t.Fatal("DeleteObject() with 200 should fail; only 203 marks completion")
	}
}

func TestWriteProperty(t *testing.T) {
	srv, c, sess, _ := newTestGateway(t)
	ctx := context.Background()
	srv.AddObject(testSite, testDevice, "AV,1", "Setpoint", nil)

	if err := c.WriteProperty(ctx, sess, testRef("AV", "1"), "priority-array[8]", "21.5", "Real"); err != nil {
		t.Fatalf("WriteProperty() error = %v", err)
	}
	obj, _ := srv.Object(testSite, testDevice, "AV,1")
	if got := obj.Properties["priority-array/8"]; got != "21.5" {
		t.Errorf("priority-array/8 = %q, want 21.5", got)
	}

	call, ok := srv.LastCall("/enteliweb/api/.bacnet/Main/100/AV,1/priority-array/8")
	if !ok {
		t.Fatal("normalised property path was not requested")
	}
	if diff := cmp.Diff(`{"$base":"Real","value":"21.5"}`, string(call.Body)); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}

	if err := c.WriteProperty(ctx, sess, testRef("AV", "1"), "description", "text", ""); err != nil {
		t.Fatalf("WriteProperty() default type error = %v", err)
	}
	call, _ = srv.LastCall("/enteliweb/api/.bacnet/Main/100/AV,1/description")
	if string(call.Body) != `{"$base":"String","value":"text"}` {
		t.Errorf("default type body = %s", call.Body)
	}

	err := c.WriteProperty(ctx, sess, testRef("AV", "99"), "description", "x", "")
	if !errors.Is(err, ErrHTTP) {
		t.Errorf("WriteProperty() on missing object error = %v, want ErrHTTP", err)
	}
}

func TestObjectOperationsValidateReference(t *testing.T) {
	srv, c, sess, _ := newTestGateway(t)
	ctx := context.Background()
	bad := testRef("AV", "one")
	before := len(srv.Calls())

	if err := c.CreateObject(ctx, sess, bad, "x", nil); !errors.Is(err, ErrInvalidReference) {
		t.Errorf("CreateObject() error = %v", err)
	}
	if err := c.DeleteObject(ctx, sess, bad); !errors.Is(err, ErrInvalidReference) {
		t.Errorf("DeleteObject() error = %v", err)
	}
	if err := c.WriteProperty(ctx, sess, testRef("AV", "1"), "", "x", ""); !errors.Is(err, ErrInvalidReference) {
		t.Errorf("WriteProperty() empty path error = %v", err)
	}
	if n := len(srv.Calls()) - before; n != 0 {
		t.Errorf("invalid references sent %d requests", n)
	}
}
