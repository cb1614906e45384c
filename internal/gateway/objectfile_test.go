package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadObject(t *testing.T) {
	srv, c, sess, _ := newTestGateway(t)
	file := writeTempFile(t, "AV1.zob", "backup-bytes")

	res, err := c.LoadObject(context.Background(), sess, testRef("AV", "5"), file, "Restored")
	if err != nil {
		t.Fatalf("LoadObject() error = %v", err)
	}
	if res.Message != "Restored" {
		t.Errorf("Message = %q, want Restored", res.Message)
	}
	if want := testRef("AV", "5"); res.Target != want {
		t.Errorf("Target = %+v, want %+v", res.Target, want)
	}
	obj, ok := srv.Object(testSite, testDevice, "AV,5")
	if !ok || obj.Name != "Restored" {
		t.Errorf("restored object = %+v, %v", obj, ok)
	}
	if got := string(srv.Upload("objectFile-button")); got != "backup-bytes" {
		t.Errorf("uploaded = %q", got)
	}

	call, _ := srv.LastCall("/enteliweb/wsbac/restoreobject")
	var list []map[string]any
	if err := json.Unmarshal([]byte(call.Form.Get("objList")), &list); err != nil || len(list) != 1 {
		t.Fatalf("objList = %q: %v", call.Form.Get("objList"), err)
	}
	if list[0]["ref"] != "//Main/100.AV1" {
		t.Errorf("restore source = %v, want the uploaded object", list[0]["ref"])
	}
	if list[0]["instance"] != float64(5) {
		t.Errorf("restore instance = %v, want 5", list[0]["instance"])
	}
}

func TestLoadObjectReportsStatusVerbatim(t *testing.T) {
	srv, c, sess, _ := newTestGateway(t)
	srv.Handle(http.MethodPost, "/enteliweb/wsbac/restoreobject", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"status":"Instance in use"}]`)) //nolint:errcheck // test
	})
	file := writeTempFile(t, "AV1.zob", "x")

	res, err := c.LoadObject(context.Background(), sess, testRef("AV", "5"), file, "Restored")
	if err != nil {
		t.Fatalf("LoadObject() error = %v", err)
	}
	if res.Message != "Instance in use" {
		t.Errorf("Message = %q", res.Message)
	}
}

func TestLoadObjectUnknownDevice(t *testing.T) {
	srv, c, sess, _ := newTestGateway(t)
	file := writeTempFile(t, "AV1.zob", "x")
	ref := ObjectReference{Site: testSite, Device: "999", ObjectType: "AV", Instance: "1"}

	_, err := c.LoadObject(context.Background(), sess, ref, file, "x")
	if !errors.Is(err, ErrVendor) || errors.Is(err, ErrPartialWorkflow) {
		t.Fatalf("LoadObject() error = %v, want non-partial ErrVendor", err)
	}
	if n := srv.Count("/enteliweb/wsbac/restoreobject"); n != 0 {
		t.Errorf("restore called %d times", n)
	}
}

func TestLoadObjectRejectsInstanceOutOfRange(t *testing.T) {
	srv, c, sess, _ := newTestGateway(t)
	file := writeTempFile(t, "AV1.zob", "x")

	for _, instance := range []string{"4194304", "4294967296"} {
		_, err := c.LoadObject(context.Background(), sess, testRef("AV", instance), file, "Restored")
		if !errors.Is(err, ErrInvalidReference) {
			t.Errorf("LoadObject(instance %s) error = %v, want ErrInvalidReference", instance, err)
		}
	}
	if n := srv.Count("/enteliweb/wsbac/uploadobjectfile"); n != 0 {
		t.Errorf("upload called %d times", n)
	}
	if n := srv.Count("/enteliweb/wsbac/restoreobject"); n != 0 {
		t.Errorf("restore called %d times", n)
	}
}

func TestSaveObjects(t *testing.T) {
	tests := []struct {
		name     string
		ids      []string
		wantFile string
	}{
		{name: "single object", ids: []string{"AV1"}, wantFile: "Main_100_AV1.zob"},
		{name: "several objects", ids: []string{"AV,1", "BV 2"}, wantFile: "Main_100_AV1.zip"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, c, sess, _ := newTestGateway(t)
			srv.AddObject(testSite, testDevice, "AV,1", "a", nil)
			srv.AddObject(testSite, testDevice, "BV,2", "b", nil)
			dir := t.TempDir()

			res, err := c.SaveObjects(context.Background(), sess, testRef("AV", "1").DeviceAddress(), tt.ids, dir)
			if err != nil {
				t.Fatalf("SaveObjects() error = %v", err)
			}
			if want := filepath.Join(dir, tt.wantFile); res.FilePath != want {
				t.Errorf("FilePath = %q, want %q", res.FilePath, want)
			}
			data, err := os.ReadFile(res.FilePath)
			if err != nil || string(data) != "ZOB-BACKUP" {
				t.Errorf("file = %q, %v", data, err)
			}

			fetch, _ := srv.LastCall("/enteliweb/wsbac/saveobjectfile")
			if fetch.Form.Get("file") != "backup-1" || fetch.Form.Get("feedback") == "" {
				t.Errorf("saveobjectfile form = %v", fetch.Form)
			}
		})
	}
}

func TestSaveObjectsErrors(t *testing.T) {
	srv, c, sess, _ := newTestGateway(t)
	ctx := context.Background()
	dev := testRef("AV", "1").DeviceAddress()

	if _, err := c.SaveObjects(ctx, sess, dev, nil, t.TempDir()); !errors.Is(err, ErrInvalidReference) {
		t.Errorf("SaveObjects(nil) error = %v", err)
	}
	if _, err := c.SaveObjects(ctx, sess, dev, []string{"??"}, t.TempDir()); !errors.Is(err, ErrInvalidReference) {
		t.Errorf("SaveObjects(bad id) error = %v", err)
	}
	if n := len(srv.Calls()); n != 1 {
		t.Errorf("requests after login = %d, want only the login", n)
	}

	_, err := c.SaveObjects(ctx, sess, dev, []string{"AV9"}, t.TempDir())
	if !errors.Is(err, ErrVendor) {
		t.Errorf("SaveObjects(unknown) error = %v, want ErrVendor", err)
	}
}

func TestLoadProgram(t *testing.T) {
	srv, c, sess, _ := newTestGateway(t)
	srv.AddObject(testSite, testDevice, "PG,1", "Main program", nil)
	file := writeTempFile(t, "pg1.txt", "IF TRUE THEN\n  X = 1\nENDIF\n")

	res, err := c.LoadProgram(context.Background(), sess, testRef("PG", "1"), file)
	if err != nil {
		t.Fatalf("LoadProgram() error = %v", err)
	}
	if !res.OK() {
		t.Errorf("status = %s", res.Task.Status)
	}
	if got := srv.Program("//Main/100.PG1"); got != "IF TRUE THEN\n  X = 1\nENDIF\n" {
		t.Errorf("program = %q", got)
	}
	call, _ := srv.LastCall("/enteliweb/wsbac/saveprogram")
	if call.Form.Get("Name") != "PG1" || call.Form.Get("IgnoreErrors") != "true" {
		t.Errorf("saveprogram form = %v", call.Form)
	}

	_, err = c.LoadProgram(context.Background(), sess, testRef("PG", "2"), file)
	if !errors.Is(err, ErrVendor) {
		t.Errorf("LoadProgram(unknown) error = %v, want ErrVendor", err)
	}
}
