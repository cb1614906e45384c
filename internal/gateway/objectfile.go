package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Object backup file extensions.
const (
	objectExtension  = ".zob"
	archiveExtension = ".zip"
)

// uploadedObject describes one object found in an uploaded backup file.
type uploadedObject struct {
	File     string          `json:"file"`
	Type     string          `json:"type"`
	Instance json.RawMessage `json:"instance"`
	ObjName  string          `json:"objName"`
}

// restoreItem is one entry of the restoreobject "objList".
type restoreItem struct {
	Name     string      `json:"name"`
	Ref      string      `json:"ref"`
	File     string      `json:"file"`
	Instance json.Number `json:"instance"`
}

// LoadObject restores the object backup in localFile onto the device of ref,
// at ref's instance, named newName.
//
// Phases:
//  1. upload: send the backup file; the gateway replies with the server-side
//     file handle and the type and instance stored in it
//  2. restore: restore that object into ref's instance
//
// The status of the first restore result is reported verbatim.
func (c *Client) LoadObject(ctx context.Context, sess *Session, ref ObjectReference, localFile, newName string) (TaskResult, error) {
	if err := ref.Validate(); err != nil {
		return TaskResult{}, err
	}
	dev := ref.DeviceAddress()
	t := c.newTracker(TaskLoadObject, ref.String(), PollPolicy{MaxAttempts: 1})

	t.enter(phaseUpload)
	resp, err := c.postFile(ctx, sess, wsbacRoot+"uploadobjectfile", url.Values{
		"deviceRef": {jsonList(dev.legacyRef())},
	}, "objectFile-button", localFile)
	if err != nil {
		return t.fail(err)
	}
	var uploaded struct {
		Success flag             `json:"success"`
		ObjInfo []uploadedObject `json:"objInfo"`
	}
	if err := accepted(resp, &uploaded); err != nil {
		return t.fail(err)
	}
	if !uploaded.Success {
		return t.fail(rejected(resp))
	}
	if len(uploaded.ObjInfo) == 0 {
		return t.fail(fmt.Errorf("%w: upload returned no objects", ErrUnexpectedResponse))
	}
	obj := uploaded.ObjInfo[0]
	if obj.Type == "" {
		obj.Type = ref.abbreviation()
	}
	if want := ref.abbreviation(); !strings.EqualFold(obj.Type, want) {
		c.logger.Warn("backup holds a different object type", "file", localFile, "stored", obj.Type, "target", want)
	}
	t.done()

	t.enter(phaseRestore)
	instance, err := jsonNumber(ref.Instance)
	if err != nil {
		return t.fail(err)
	}
	source := "//" + dev.Site + "/" + dev.Device + "." + obj.Type + scalarText(obj.Instance)
	list, err := json.Marshal([]restoreItem{{
		Name:     newName,
		Ref:      source,
		File:     obj.File,
		Instance: instance,
	}})
	if err != nil {
		return t.fail(fmt.Errorf("encoding restore list: %w", err))
	}
	resp, err = c.postForm(ctx, sess, wsbacRoot+"restoreobject", url.Values{
		"objList":             {string(list)},
		"skipUpdate":          {"true"},
		"startInstance":       {""},
		"devices":             {jsonList(dev.legacyRef())},
		"esignature_password": {""},
	})
	if err != nil {
		return t.fail(err)
	}
	var restored []struct {
		Status json.RawMessage `json:"status"`
	}
	if err := accepted(resp, &restored); err != nil {
		return t.fail(err)
	}
	if len(restored) == 0 {
		return t.fail(fmt.Errorf("%w: restore returned no results", ErrUnexpectedResponse))
	}
	status := scalarText(restored[0].Status)
	t.done()

	target := ObjectReference{Site: ref.Site, Device: ref.Device, ObjectType: obj.Type, Instance: ref.Instance}
	c.logger.Info("object restored", "file", localFile, "target", target.String(), "status", status)

	result := t.succeed(status)
	result.Target = target
	result.Response = resp.body
	return result, nil
}

// SaveObjects backs up one or more objects of dev into a local file.
// objectIDs use the ParseObjectID forms ("AV1000", "AV,1000").
//
// A single object is written as <site>_<device>_<object>.zob, several as a
// .zip archive named after the first object.
func (c *Client) SaveObjects(ctx context.Context, sess *Session, dev DeviceAddress, objectIDs []string, destDir string) (TaskResult, error) {
	if err := dev.Validate(); err != nil {
		return TaskResult{}, err
	}
	if len(objectIDs) == 0 {
		return TaskResult{}, fmt.Errorf("%w: no objects to save", ErrInvalidReference)
	}
	refs := make([]string, len(objectIDs))
	var first ObjectReference
	for i, id := range objectIDs {
		ref, err := NewObjectReference(dev, id)
		if err != nil {
			return TaskResult{}, err
		}
		if i == 0 {
			first = ref
		}
		refs[i] = ref.legacyRef()
	}
	t := c.newTracker(TaskSaveObjects, dev.String(), PollPolicy{MaxAttempts: 1})

	t.enter(phaseBackup)
	resp, err := c.postForm(ctx, sess, wsbacRoot+"backupobject", url.Values{
		"saveObjectRef": {jsonList(refs...)},
	})
	if err != nil {
		return t.fail(err)
	}
	var backup struct {
		Success flag            `json:"success"`
		File    json.RawMessage `json:"file"`
		Result  json.RawMessage `json:"result"`
	}
	if err := accepted(resp, &backup); err != nil {
		return t.fail(err)
	}
	if !backup.Success {
		return t.fail(rejected(resp))
	}
	t.done()

	t.enter(phaseFetch)
	resp, err = c.postForm(ctx, sess, wsbacRoot+"saveobjectfile", url.Values{
		"file":     {scalarText(backup.File)},
		"feedback": {scalarText(backup.Result)},
	})
	if err != nil {
		return t.fail(err)
	}
	if err := accepted(resp, nil); err != nil {
		return t.fail(err)
	}
	ext := objectExtension
	if len(refs) > 1 {
		ext = archiveExtension
	}
	name := dev.Site + "_" + dev.Device + "_" + first.abbreviation() + first.Instance + ext
	path, err := writeArtifact(destDir, name, resp.body)
	if err != nil {
		return t.fail(err)
	}
	t.done()

	c.logger.Info("objects saved", "device", dev.String(), "count", len(refs), "file", path)
	result := t.succeed(resp.classify().Message)
	result.FilePath = path
	return result, nil
}

// LoadProgram replaces the program text of the PG object at ref with the
// contents of localFile. The gateway answers with a text body that contains
// "OK" on success.
func (c *Client) LoadProgram(ctx context.Context, sess *Session, ref ObjectReference, localFile string) (TaskResult, error) {
	if err := ref.Validate(); err != nil {
		return TaskResult{}, err
	}
	text, err := os.ReadFile(localFile) // #nosec G304 -- caller-chosen program file
	if err != nil {
		return TaskResult{}, fmt.Errorf("reading program file: %w", err)
	}
	t := c.newTracker(TaskLoadProgram, ref.String(), PollPolicy{MaxAttempts: 1})

	t.enter(phaseUpload)
	resp, err := c.postForm(ctx, sess, wsbacRoot+"saveprogram", url.Values{
		"Name":           {ref.abbreviation() + ref.Instance},
		"OldProgramText": {""},
		"IgnoreErrors":   {"true"},
		"PGObjRef":       {ref.legacyRef()},
		"ProgramText":    {string(text)},
	})
	if err != nil {
		return t.fail(err)
	}
	if err := accepted(resp, nil); err != nil {
		return t.fail(err)
	}
	if !bytes.Contains(resp.body, []byte(okMessage)) {
		return t.fail(fmt.Errorf("%w: program rejected: %s", ErrVendor, snippet(resp.body)))
	}
	t.done()

	c.logger.Info("program loaded", "object", ref.String(), "file", localFile)
	result := t.succeed(okMessage)
	result.Response = resp.body
	return result, nil
}
