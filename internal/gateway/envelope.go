package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// errUntagged marks an envelope without "$base".
var errUntagged = errors.New("envelope without $base")

// Kind is the "$base" discriminator of a gateway envelope.
type Kind string

// Envelope kinds understood by the client.
const (
	KindString           Kind = "String"
	KindUnsigned         Kind = "Unsigned"
	KindList             Kind = "List"
	KindStruct           Kind = "Struct"
	KindObject           Kind = "Object"
	KindObjectIdentifier Kind = "ObjectIdentifier"
	KindAny              Kind = "Any"
)

// Reserved member names of an envelope.
const (
	keyBase  = "$base"
	keyVia   = "via"
	keyValue = "value"
)

// isContainer reports whether envelopes of this kind hold sub-envelopes
// rather than a scalar value.
func (k Kind) isContainer() bool {
	return k == KindList || k == KindStruct || k == KindObject
}

// Envelope is a tagged gateway value.
//
// Scalar kinds carry Value. List carries Items, numbered from 1 on the wire.
// Struct and Object carry named Fields in order. Any envelope may carry Via,
// the gateway path of the property it refers to.
//
// Responses may use tags outside the constants above (Real, Enumerated, ...);
// those decode as scalars with their tag preserved in Kind.
type Envelope struct {
	Kind   Kind
	Via    string
	Value  string
	Items  []Envelope
	Fields []Field

	// hasValue distinguishes an absent "value" member from an empty one.
	hasValue bool
}

// Field is a named member of a Struct or Object envelope.
type Field struct {
	Name  string
	Value Envelope
}

// StringValue builds a String envelope.
func StringValue(v string) Envelope {
	return Envelope{Kind: KindString, Value: v, hasValue: true}
}

// UnsignedValue builds an Unsigned envelope.
func UnsignedValue(v uint64) Envelope {
	return Envelope{Kind: KindUnsigned, Value: strconv.FormatUint(v, 10), hasValue: true}
}

// ObjectIdentifierValue builds an ObjectIdentifier envelope ("AV,1000").
func ObjectIdentifierValue(id string) Envelope {
	return Envelope{Kind: KindObjectIdentifier, Value: id, hasValue: true}
}

// TypedValue builds a scalar envelope of an arbitrary kind.
func TypedValue(kind Kind, v string) Envelope {
	return Envelope{Kind: kind, Value: v, hasValue: true}
}

// AnyAt builds a value-less Any envelope addressed at via; used to request
// a property read.
func AnyAt(via string) Envelope {
	return Envelope{Kind: KindAny, Via: via}
}

// ListOf builds a List envelope.
func ListOf(items ...Envelope) Envelope {
	return Envelope{Kind: KindList, Items: items}
}

// StructOf builds a Struct envelope.
func StructOf(fields ...Field) Envelope {
	return Envelope{Kind: KindStruct, Fields: fields}
}

// ObjectOf builds an Object envelope.
func ObjectOf(fields ...Field) Envelope {
	return Envelope{Kind: KindObject, Fields: fields}
}

// At returns a copy of e addressed at via.
func (e Envelope) At(via string) Envelope {
	e.Via = via
	return e
}

// HasValue reports whether the envelope carried a "value" member.
func (e Envelope) HasValue() bool {
	return e.hasValue
}

// Field returns the named member of a Struct or Object envelope.
func (e Envelope) Field(name string) (Envelope, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Envelope{}, false
}

// MarshalJSON writes the envelope with "$base" first and members in order.
func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.Kind == "" {
		return nil, fmt.Errorf("%w: envelope without kind", ErrUnexpectedResponse)
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	writeMember(&buf, keyBase, string(e.Kind), true)
	if e.Via != "" {
		writeMember(&buf, keyVia, e.Via, false)
	}

	switch {
	case e.Kind == KindList:
		for i, item := range e.Items {
			if err := writeNested(&buf, strconv.Itoa(i+1), item); err != nil {
				return nil, err
			}
		}
	case e.Kind.isContainer():
		for _, f := range e.Fields {
			if err := writeNested(&buf, f.Name, f.Value); err != nil {
				return nil, err
			}
		}
	case e.hasValue || e.Value != "":
		writeMember(&buf, keyValue, e.Value, false)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeMember(buf *bytes.Buffer, key, value string, first bool) {
	if !first {
		buf.WriteByte(',')
	}
	k, _ := json.Marshal(key)   //nolint:errcheck // strings always marshal
	v, _ := json.Marshal(value) //nolint:errcheck // strings always marshal
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
}

func writeNested(buf *bytes.Buffer, key string, e Envelope) error {
	data, err := e.MarshalJSON()
	if err != nil {
		return err
	}
	k, _ := json.Marshal(key) //nolint:errcheck // strings always marshal
	buf.WriteByte(',')
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(data)
	return nil
}

// member is one key/value pair of a JSON object in document order.
type member struct {
	key string
	raw json.RawMessage
}

// UnmarshalJSON decodes an envelope, keeping member order for Struct and
// Object and sorting List items by their numeric key.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	members, err := orderedMembers(data)
	if err != nil {
		return err
	}

	*e = Envelope{}
	var rest []member
	for _, m := range members {
		switch m.key {
		case keyBase:
			e.Kind = Kind(scalarText(m.raw))
		case keyVia:
			e.Via = scalarText(m.raw)
		default:
			rest = append(rest, m)
		}
	}
	if e.Kind == "" {
		return fmt.Errorf("%w: %w", ErrUnexpectedResponse, errUntagged)
	}

	switch {
	case e.Kind == KindList:
		return e.decodeItems(rest)
	case e.Kind.isContainer():
		return e.decodeFields(rest)
	default:
		for _, m := range rest {
			if m.key == keyValue {
				e.Value = scalarText(m.raw)
				e.hasValue = true
			}
		}
		return nil
	}
}

func (e *Envelope) decodeItems(members []member) error {
	type indexed struct {
		index int
		env   Envelope
	}
	var items []indexed
	for _, m := range members {
		idx, err := strconv.Atoi(m.key)
		if err != nil || !isObject(m.raw) {
			continue
		}
		item, err := decodeItem(m.raw)
		if err != nil {
			return fmt.Errorf("decoding list item %d: %w", idx, err)
		}
		items = append(items, indexed{index: idx, env: item})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].index < items[j].index })

	e.Items = make([]Envelope, 0, len(items))
	for _, it := range items {
		e.Items = append(e.Items, it.env)
	}
	return nil
}

// decodeItem decodes one list item. An item without "$base" keeps its via
// and scalar value and has no Kind.
func decodeItem(raw json.RawMessage) (Envelope, error) {
	var item Envelope
	err := json.Unmarshal(raw, &item)
	if !errors.Is(err, errUntagged) {
		return item, err
	}
	var loose struct {
		Via   json.RawMessage `json:"via"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(raw, &loose); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrUnexpectedResponse, err)
	}
	return Envelope{
		Via:      scalarText(loose.Via),
		Value:    scalarText(loose.Value),
		hasValue: loose.Value != nil,
	}, nil
}

func (e *Envelope) decodeFields(members []member) error {
	for _, m := range members {
		if !isObject(m.raw) {
			continue
		}
		var f Envelope
		if err := json.Unmarshal(m.raw, &f); err != nil {
			// Members without a "$base" are metadata, not sub-envelopes.
			continue
		}
		e.Fields = append(e.Fields, Field{Name: m.key, Value: f})
	}
	return nil
}

// orderedMembers splits a JSON object into its members in document order.
func orderedMembers(data []byte) ([]member, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnexpectedResponse, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("%w: envelope is not a JSON object", ErrUnexpectedResponse)
	}

	var members []member
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnexpectedResponse, err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: non-string object key", ErrUnexpectedResponse)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnexpectedResponse, err)
		}
		members = append(members, member{key: key, raw: raw})
	}
	return members, nil
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
