package gateway

import (
	"context"
	"fmt"
	"net/http"
)

// okMessage is the classification message of a processed batch write.
const okMessage = "OK"

// PropertyValue is one property assignment of a batch write.
type PropertyValue struct {
	Name  string
	Value string
}

// WriteMany writes several String-typed properties of one object in a single
// round trip. Items are sent in slice order, numbered from 1.
//
// The batch is all-or-nothing from the caller's point of view: the gateway
// returns no per-item result, so a failure does not say which items, if
// any, were applied.
func (c *Client) WriteMany(ctx context.Context, sess *Session, ref ObjectReference, props []PropertyValue) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if len(props) == 0 {
		return nil
	}

	items := make([]Envelope, len(props))
	for i, p := range props {
		items[i] = StringValue(p.Value).At(ref.propertyVia(p.Name))
	}
	body := StructOf(Field{Name: "values", Value: ListOf(items...)})

	resp, err := c.sendJSON(ctx, sess, http.MethodPost, c.serverURL(sess.server(), multiPath), body)
	if err != nil {
		return err
	}
	cl := resp.classify()
	if err := cl.Err(); err != nil {
		return fmt.Errorf("batch write %s: %w", ref, err)
	}
	if cl.Message != okMessage {
		return fmt.Errorf("batch write %s: %w", ref, unexpectedStatus(cl))
	}

	c.logger.Debug("batch write applied", "object", ref.String(), "count", len(props))
	return nil
}

// ReadMany reads several properties of one object in a single round trip.
//
// Each result is keyed by the last "/" segment of the via path the gateway
// echoes back, which is the property name the request was built from.
// Properties the gateway returns without a value map to "".
func (c *Client) ReadMany(ctx context.Context, sess *Session, ref ObjectReference, names []string) (map[string]string, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return map[string]string{}, nil
	}

	items := make([]Envelope, len(names))
	for i, name := range names {
		items[i] = AnyAt(ref.propertyVia(name))
	}
	body := StructOf(
		Field{Name: "lifetime", Value: UnsignedValue(0)},
		Field{Name: "values", Value: ListOf(items...)},
	)

	resp, err := c.sendJSON(ctx, sess, http.MethodPost, c.serverURL(sess.server(), multiPath), body)
	if err != nil {
		return nil, err
	}
	if err := resp.classify().Err(); err != nil {
		return nil, fmt.Errorf("batch read %s: %w", ref, err)
	}

	var result Envelope
	if err := resp.decodeJSON(&result); err != nil {
		return nil, fmt.Errorf("batch read %s: %w", ref, err)
	}
	values, ok := result.Field("values")
	if !ok {
		return nil, fmt.Errorf("batch read %s: %w: no values in response", ref, ErrUnexpectedResponse)
	}

	entries := values.Items
	for _, f := range values.Fields {
		entries = append(entries, f.Value)
	}

	out := make(map[string]string, len(entries))
	for _, item := range entries {
		if item.Via == "" {
			continue
		}
		out[propertyName(item.Via)] = item.Value
	}
	return out, nil
}
