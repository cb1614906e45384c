package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
)

// Status codes with gateway-specific meaning.
const (
	// StatusOK is the generic success code.
	StatusOK = http.StatusOK

	// StatusAccepted is the gateway's overloaded success sentinel. Delete and
	// multi-write endpoints answer 203 Non-Authoritative Information when the
	// request was processed.
	StatusAccepted = http.StatusNonAuthoritativeInfo

	// noError is the value of the vendor error field meaning "no error".
	noError = "-1"
)

// Classification is the normalised outcome of one gateway response.
type Classification struct {
	OK         bool
	Code       string
	Message    string
	HTTPStatus int
}

// Err returns nil for a successful classification and a *StatusError
// otherwise.
func (c Classification) Err() error {
	if c.OK {
		return nil
	}
	return &StatusError{
		HTTPStatus: c.HTTPStatus,
		Code:       c.Code,
		Message:    c.Message,
		Vendor:     c.HTTPStatus == StatusOK,
	}
}

// vendorEnvelope is the error pair some endpoints embed in a 200 response.
type vendorEnvelope struct {
	Error     json.RawMessage `json:"error"`
	ErrorText json.RawMessage `json:"errorText"`
}

// Classify normalises an HTTP status and body into (ok, code, message).
//
// Rules, first match wins:
//  1. 200 with a body whose "error" field is present and not "-1" is a
//     vendor failure: code and message come from "error" and "errorText".
//  2. 203 is success: code "200", message "OK", whatever the body says.
//  3. Otherwise code is the HTTP status, message the reason phrase, and the
//     call succeeded iff the status is 2xx.
//
// reason may be empty, in which case the standard status text is used.
func Classify(status int, reason string, body []byte) Classification {
	if status == StatusOK {
		if code, msg, ok := vendorError(body); ok {
			return Classification{OK: false, Code: code, Message: msg, HTTPStatus: status}
		}
	}

	if status == StatusAccepted {
		return Classification{OK: true, Code: strconv.Itoa(StatusOK), Message: "OK", HTTPStatus: status}
	}

	if reason == "" {
		reason = http.StatusText(status)
	}
	return Classification{
		OK:         status >= 200 && status < 300,
		Code:       strconv.Itoa(status),
		Message:    reason,
		HTTPStatus: status,
	}
}

// vendorError extracts an embedded error pair from a JSON body.
// Bodies that are not JSON objects carry no vendor error.
func vendorError(body []byte) (code, msg string, ok bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return "", "", false
	}
	var env vendorEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return "", "", false
	}
	if env.Error == nil {
		return "", "", false
	}
	code = scalarText(env.Error)
	if code == noError {
		return "", "", false
	}
	return code, scalarText(env.ErrorText), true
}

// reasonPhrase returns the reason part of an http.Response Status line
// ("201 Created" → "Created").
func reasonPhrase(resp *http.Response) string {
	_, reason, found := strings.Cut(resp.Status, " ")
	if !found {
		return ""
	}
	return reason
}

// scalarText renders a JSON scalar as text: strings are unquoted, null is
// empty, anything else is returned as compact JSON.
func scalarText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return string(trimmed)
	}
	return buf.String()
}
