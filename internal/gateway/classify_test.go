package gateway

import (
	"errors"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		status int
		reason string
		body   string
		want   Classification
	}{
		{
			name:   "200 with vendor error",
			status: 200,
			body:   `{"error":"3","errorText":"Already exists"}`,
			want:   Classification{OK: false, Code: "3", Message: "Already exists", HTTPStatus: 200},
		},
		{
			name:   "200 with numeric vendor error",
			status: 200,
			body:   `{"error":31,"errorText":"Unknown object"}`,
			want:   Classification{OK: false, Code: "31", Message: "Unknown object", HTTPStatus: 200},
		},
		{
			name:   "200 with error -1 is success",
			status: 200,
			reason: "OK",
			body:   `{"error":"-1","errorText":""}`,
			want:   Classification{OK: true, Code: "200", Message: "OK", HTTPStatus: 200},
		},
		{
			name:   "200 without error field",
			status: 200,
			reason: "OK",
			body:   `{"status":1}`,
			want:   Classification{OK: true, Code: "200", Message: "OK", HTTPStatus: 200},
		},
		{
			name:   "200 with binary body",
			status: 200,
			reason: "OK",
			body:   "PK\x03\x04",
			want:   Classification{OK: true, Code: "200", Message: "OK", HTTPStatus: 200},
		},
		{
			name:   "203 with empty body",
			status: 203,
			want:   Classification{OK: true, Code: "200", Message: "OK", HTTPStatus: 203},
		},
		{
			name:   "203 ignores embedded error",
			status: 203,
			reason: "Non-Authoritative Information",
			body:   `{"error":"3","errorText":"Already exists"}`,
			want:   Classification{OK: true, Code: "200", Message: "OK", HTTPStatus: 203},
		},
		{
			name:   "201 created",
			status: 201,
			reason: "Created",
			body:   `{"$base":"Object"}`,
			want:   Classification{OK: true, Code: "201", Message: "Created", HTTPStatus: 201},
		},
		{
			name:   "404 uses status text when no reason",
			status: 404,
			body:   `{"error":"7","errorText":"ignored"}`,
			want:   Classification{OK: false, Code: "404", Message: "Not Found", HTTPStatus: 404},
		},
		{
			name:   "401 with reason",
			status: 401,
			reason: "Unauthorized",
			want:   Classification{OK: false, Code: "401", Message: "Unauthorized", HTTPStatus: 401},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.status, tt.reason, []byte(tt.body))
			if got != tt.want {
				t.Errorf("Classify() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestClassificationErr(t *testing.T) {
	if err := (Classification{OK: true}).Err(); err != nil {
		t.Errorf("Err() on success = %v, want nil", err)
	}

	vendor := Classify(200, "OK", []byte(`{"error":"3","errorText":"Already exists"}`)).Err()
	if !errors.Is(vendor, ErrVendor) {
		t.Errorf("vendor failure should match ErrVendor, got %v", vendor)
	}
	var se *StatusError
	if !errors.As(vendor, &se) || se.Code != "3" {
		t.Errorf("errors.As(StatusError) code = %v, want 3", se)
	}

	httpErr := Classify(500, "", nil).Err()
	if !errors.Is(httpErr, ErrHTTP) {
		t.Errorf("500 should match ErrHTTP, got %v", httpErr)
	}
	if errors.Is(httpErr, ErrVendor) {
		t.Error("500 should not match ErrVendor")
	}
}
