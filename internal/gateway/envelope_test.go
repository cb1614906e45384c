package gateway

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEnvelopeMarshal(t *testing.T) {
	tests := []struct {
		name string
		env  Envelope
		want string
	}{
		{
			name: "string",
			env:  StringValue("demo"),
			want: `{"$base":"String","value":"demo"}`,
		},
		{
			name: "empty string keeps value",
			env:  StringValue(""),
			want: `{"$base":"String","value":""}`,
		},
		{
			name: "any without value",
			env:  AnyAt("/.bacnet/S/1/AV,1/present-value"),
			want: `{"$base":"Any","via":"/.bacnet/S/1/AV,1/present-value"}`,
		},
		{
			name: "batch read body",
			env: StructOf(
				Field{Name: "lifetime", Value: UnsignedValue(0)},
				Field{Name: "values", Value: ListOf(AnyAt("/a/x"), AnyAt("/a/y"))},
			),
			want: `{"$base":"Struct","lifetime":{"$base":"Unsigned","value":"0"},` +
				`"values":{"$base":"List","1":{"$base":"Any","via":"/a/x"},"2":{"$base":"Any","via":"/a/y"}}}`,
		},
		{
			name: "object keeps field order",
			env: ObjectOf(
				Field{Name: "object-identifier", Value: ObjectIdentifierValue("AV,1000")},
				Field{Name: "object-name", Value: StringValue("Test")},
				Field{Name: "Description", Value: StringValue("demo")},
			),
			want: `{"$base":"Object","object-identifier":{"$base":"ObjectIdentifier","value":"AV,1000"},` +
				`"object-name":{"$base":"String","value":"Test"},"Description":{"$base":"String","value":"demo"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.env)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Marshal() =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}

func TestEnvelopeMarshalWithoutKind(t *testing.T) {
	_, err := json.Marshal(Envelope{Value: "x"})
	if err == nil {
		t.Fatal("Marshal() of kindless envelope should fail")
	}
}

func TestEnvelopeUnmarshalListOrder(t *testing.T) {
	// Numeric keys arrive in lexical order from most encoders.
	data := `{"$base":"List",
		"1":{"$base":"String","via":"/p/one","value":"1"},
		"10":{"$base":"String","via":"/p/ten","value":"10"},
		"2":{"$base":"String","via":"/p/two","value":"2"}}`

	var env Envelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	var vias []string
	for _, item := range env.Items {
		vias = append(vias, item.Via)
	}
	want := []string{"/p/one", "/p/two", "/p/ten"}
	if diff := cmp.Diff(want, vias); diff != "" {
		t.Errorf("item order mismatch (-want +got):\n%s", diff)
	}
}

func TestEnvelopeUnmarshalStruct(t *testing.T) {
	data := `{"$base":"Struct","displayName":"ignored","values":{"$base":"List",
		"1":{"$base":"Real","via":"/x/present-value","value":21.5},
		"2":{"$base":"String","via":"/x/description"}}}`

	var env Envelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(env.Fields) != 1 {
		t.Fatalf("Fields = %d, want 1 (scalar members are metadata)", len(env.Fields))
	}
	values, ok := env.Field("values")
	if !ok {
		t.Fatal("Field(values) missing")
	}
	if len(values.Items) != 2 {
		t.Fatalf("Items = %d, want 2", len(values.Items))
	}

	first := values.Items[0]
	if first.Kind != "Real" || first.Value != "21.5" || !first.HasValue() {
		t.Errorf("item 1 = %+v, want Real 21.5 with value", first)
	}
	missing := values.Items[1]
	if missing.HasValue() || missing.Value != "" {
		t.Errorf("item 2 = %+v, want no value", missing)
	}
}

func TestEnvelopeUnmarshalUntaggedItem(t *testing.T) {
	data := `{"$base":"Struct","values":{"$base":"List",
		"1":{"$base":"String","via":"/x/description","value":"lobby"},
		"2":{"via":"/x/units"},
		"3":{"via":"/x/present-value","value":21.5}}}`

	var env Envelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	values, ok := env.Field("values")
	if !ok {
		t.Fatal("Field(values) missing")
	}
	if len(values.Items) != 3 {
		t.Fatalf("Items = %d, want 3", len(values.Items))
	}

	units := values.Items[1]
	if units.Kind != "" || units.Via != "/x/units" || units.HasValue() {
		t.Errorf("item 2 = %+v, want untagged via with no value", units)
	}
	pv := values.Items[2]
	if pv.Via != "/x/present-value" || pv.Value != "21.5" || !pv.HasValue() {
		t.Errorf("item 3 = %+v, want 21.5", pv)
	}
}

func TestEnvelopeUnmarshalErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "array", data: `[1,2]`},
		{name: "no base", data: `{"value":"x"}`},
		{name: "truncated", data: `{"$base":"String","value":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var env Envelope
			err := env.UnmarshalJSON([]byte(tt.data))
			if !errors.Is(err, ErrUnexpectedResponse) {
				t.Errorf("UnmarshalJSON() error = %v, want ErrUnexpectedResponse", err)
			}
		})
	}
}

func TestEnvelopeRoundTripPreservesOrder(t *testing.T) {
	names := []string{"zeta", "alpha", "mid", "beta", "omega", "gamma", "delta", "eta", "theta", "iota", "kappa", "lambda"}
	items := make([]Envelope, len(names))
	for i, n := range names {
		items[i] = StringValue(n).At("/obj/" + n)
	}

	data, err := json.Marshal(ListOf(items...))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var back Envelope
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	got := make([]string, len(back.Items))
	for i, item := range back.Items {
		got[i] = propertyName(item.Via)
	}
	if diff := cmp.Diff(names, got); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}
