package gateway

import (
	"context"
	"fmt"
	"net/http"
)

// Reserved property names of a created object.
const (
	propObjectIdentifier = "object-identifier"
	propObjectName       = "object-name"
)

// createdMessage is the reason phrase of a successful create.
const createdMessage = "Created"

// CreateObject creates an object named name at ref. Each entry of extra is
// sent as an additional String-typed property, in key order. extra may not
// name object-identifier or object-name; those come from ref and name.
//
// Success requires a successful classification whose message is "Created".
func (c *Client) CreateObject(ctx context.Context, sess *Session, ref ObjectReference, name string, extra map[string]string) error {
	if err := ref.Validate(); err != nil {
		return err
	}

	for _, key := range []string{propObjectIdentifier, propObjectName} {
		if _, ok := extra[key]; ok {
			return fmt.Errorf("%w: %s is set from the reference and name, not extra", ErrInvalidReference, key)
		}
	}

	fields := []Field{
		{Name: propObjectIdentifier, Value: ObjectIdentifierValue(ref.ID())},
		{Name: propObjectName, Value: StringValue(name)},
	}
	for _, key := range sortedKeys(extra) {
		fields = append(fields, Field{Name: key, Value: StringValue(extra[key])})
	}

	resp, err := c.sendJSON(ctx, sess, http.MethodPost, c.restURL(sess, ref.Site, ref.Device), ObjectOf(fields...))
	if err != nil {
		return err
	}
	cl := resp.classify()
	if err := cl.Err(); err != nil {
		return fmt.Errorf("creating %s: %w", ref, err)
	}
	if cl.Message != createdMessage {
		return fmt.Errorf("creating %s: %w", ref, unexpectedStatus(cl))
	}

	c.logger.Info("object created", "object", ref.String(), "name", name)
	return nil
}

// DeleteObject deletes the object at ref. The gateway signals a processed
// delete with 203; any other status, 200 included, is a failure.
func (c *Client) DeleteObject(ctx context.Context, sess *Session, ref ObjectReference) error {
	if err := ref.Validate(); err != nil {
		return err
	}

	resp, err := c.send(ctx, sess, http.MethodDelete, c.restURL(sess, ref.Site, ref.Device, ref.ID()), nil, "")
	if err != nil {
		return err
	}
	cl := resp.classify()
	if resp.status != StatusAccepted {
		if err := cl.Err(); err != nil {
			return fmt.Errorf("deleting %s: %w", ref, err)
		}
		return fmt.Errorf("deleting %s: %w", ref, unexpectedStatus(cl))
	}

	c.logger.Info("object deleted", "object", ref.String())
	return nil
}

// WriteProperty writes one property. propertyPath may use bracket and dot
// notation ("priority-array[8]"); it is normalised to slash form before it
// is placed in the URL. An empty valueType means String.
//
// Success requires HTTP 200 without an embedded vendor error.
func (c *Client) WriteProperty(ctx context.Context, sess *Session, ref ObjectReference, propertyPath, value, valueType string) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if propertyPath == "" {
		return fmt.Errorf("%w: property path is required", ErrInvalidReference)
	}
	if valueType == "" {
		valueType = string(KindString)
	}

	path := NormalizePropertyPath(propertyPath)
	u := c.restURL(sess, ref.Site, ref.Device, ref.ID(), path)
	resp, err := c.sendJSON(ctx, sess, http.MethodPut, u, TypedValue(Kind(valueType), value))
	if err != nil {
		return err
	}
	cl := resp.classify()
	if err := cl.Err(); err != nil {
		return fmt.Errorf("writing %s/%s: %w", ref, path, err)
	}
	if resp.status != StatusOK {
		return fmt.Errorf("writing %s/%s: %w", ref, path, unexpectedStatus(cl))
	}

	c.logger.Debug("property written", "object", ref.String(), "property", path)
	return nil
}

// unexpectedStatus reports a response that classified as ok but does not
// carry the completion marker the endpoint requires.
func unexpectedStatus(cl Classification) *StatusError {
	return &StatusError{HTTPStatus: cl.HTTPStatus, Code: cl.Code, Message: cl.Message}
}
