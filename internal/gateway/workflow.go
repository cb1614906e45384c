package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Phase names reported in AsyncTask.Phase and WorkflowError.Phase.
const (
	phaseStart    = "start"
	phasePoll     = "poll"
	phaseFetch    = "fetch"
	phaseUpload   = "upload"
	phaseWait     = "wait"
	phasePrepare  = "prepare"
	phaseCreate   = "create_task"
	phaseSubmit   = "submit"
	phaseProgress = "progress"
	phaseFinalize = "finalize"
	phaseRestore  = "restore"
	phaseBackup   = "backup"
)

// flag decodes the loosely typed success fields of the wsbac endpoints:
// true, 1 and "true" are all accepted as true.
type flag bool

func (f *flag) UnmarshalJSON(data []byte) error {
	switch text := scalarText(data); text {
	case "true", "1":
		*f = true
	case "", "false", "0":
		*f = false
	default:
		return fmt.Errorf("%w: %q is not a boolean", ErrUnexpectedResponse, text)
	}
	return nil
}

// rejected reports a wsbac reply whose success field is false.
func rejected(r *response) error {
	return fmt.Errorf("%w: success=false: %s", ErrVendor, snippet(r.body))
}

// accepted classifies r and decodes its body into v.
func accepted(r *response, v any) error {
	if err := r.classify().Err(); err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	return r.decodeJSON(v)
}

// snippet returns a short printable prefix of a body for error messages.
func snippet(body []byte) string {
	const limit = 200
	body = bytes.TrimSpace(body)
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}

// writeArtifact stores data as dir/name and returns the path written.
// An empty dir means the current directory. name is reduced to its base so
// a gateway-supplied filename cannot escape dir.
func writeArtifact(dir, name string, data []byte) (string, error) {
	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) {
		return "", fmt.Errorf("%w: invalid artifact name", ErrUnexpectedResponse)
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return "", fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

// jsonNumber renders a decimal instance as a bare JSON number.
func jsonNumber(s string) (json.Number, error) {
	if err := checkInstance("instance", s); err != nil {
		return "", err
	}
	return json.Number(s), nil
}
