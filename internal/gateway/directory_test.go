package gateway

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestListSites(t *testing.T) {
	srv, c, sess, _ := newTestGateway(t)
	srv.AddDevice("AHU10", "1", "")
	srv.AddDevice("AHU2", "1", "")
	srv.AddDevice("AHU1", "1", "")

	got, err := c.ListSites(context.Background(), sess)
	if err != nil {
		t.Fatalf("ListSites() error = %v", err)
	}
	want := []string{"AHU1", "AHU10", "AHU2", "Main"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ListSites() mismatch (-want +got):\n%s", diff)
	}
}

func TestListDevicesNumericOrder(t *testing.T) {
	srv, c, sess, _ := newTestGateway(t)
	srv.AddDevice(testSite, "10", "Ten")
	srv.AddDevice(testSite, "2", "Two")
	srv.AddDevice(testSite, "zeta", "Not numeric")
	srv.AddDevice(testSite, "alpha", "Not numeric either")

	got, err := c.ListDevices(context.Background(), sess, testSite)
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	// Non-numeric keys sort as 0, ahead of every positive device number.
	want := []string{"alpha", "zeta", "2", "10", "100"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ListDevices() mismatch (-want +got):\n%s", diff)
	}
}

func TestDescribeDevices(t *testing.T) {
	_, c, sess, _ := newTestGateway(t)

	got, err := c.DescribeDevices(context.Background(), sess, testSite)
	if err != nil {
		t.Fatalf("DescribeDevices() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("DescribeDevices() = %v, want one device", got)
	}
	if s := got[0].String(); s != "100 - AHU Controller" {
		t.Errorf("String() = %q", s)
	}
}

func TestListObjects(t *testing.T) {
	srv, c, sess, _ := newTestGateway(t)
	srv.AddObject(testSite, testDevice, "AV,2", "b", nil)
	srv.AddObject(testSite, testDevice, "AV,10", "a", nil)
	srv.AddObject(testSite, testDevice, "BV,1", "c", nil)

	got, err := c.ListObjects(context.Background(), sess, DeviceAddress{Site: testSite, Device: testDevice})
	if err != nil {
		t.Fatalf("ListObjects() error = %v", err)
	}
	want := []string{"AV,10", "AV,2", "BV,1"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ListObjects() mismatch (-want +got):\n%s", diff)
	}

	call, _ := srv.LastCall("/enteliweb/api/.bacnet/Main/100/")
	if call.Method != http.MethodGet {
		t.Errorf("objects listing used %q on %q", call.Method, call.Path)
	}
}

func TestListingSeparatesFailureFromEmpty(t *testing.T) {
	srv, c, sess, _ := newTestGateway(t)
	ctx := context.Background()
	srv.AddDevice("Empty", "1", "")

	objs, err := c.ListObjects(ctx, sess, DeviceAddress{Site: "Empty", Device: "1"})
	if err != nil {
		t.Fatalf("ListObjects() on empty device error = %v", err)
	}
	if len(objs) != 0 {
		t.Errorf("ListObjects() = %v, want empty", objs)
	}

	_, err = c.ListDevices(ctx, sess, "Missing")
	if !errors.Is(err, ErrHTTP) {
		t.Errorf("ListDevices() on unknown site error = %v, want ErrHTTP", err)
	}

	srv.Handle(http.MethodGet, "/enteliweb/api/.bacnet/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"error":"12","errorText":"Database offline"}`)) //nolint:errcheck // test
	})
	_, err = c.ListSites(ctx, sess)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != "12" || !errors.Is(err, ErrVendor) {
		t.Errorf("ListSites() error = %v, want vendor code 12", err)
	}
}
