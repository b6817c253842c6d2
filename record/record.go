package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Well-known field names.
const (
	FieldSampleID = "sample_id"
	FieldLocation = "location"
	FieldState    = "state"
	FieldRef      = "ref"
	FieldAlt      = "alt"
	FieldLength   = "length"
)

// Record is an ordered mapping of field name to scalar value, decoded from
// one row of a record file.
//
// Supported value types are int, int32, int64, float32, float64, bool,
// string, []byte and nil. Field order is the order of first insertion.
type Record struct {
	keys   []string
	values map[string]any
}

// New creates an empty record with room for n fields.
func New(n int) *Record {
	return &Record{
		keys:   make([]string, 0, n),
		values: make(map[string]any, n),
	}
}

// Set assigns a value. New fields are appended to the field order.
func (r *Record) Set(name string, v any) *Record {
	if _, ok := r.values[name]; !ok {
		r.keys = append(r.keys, name)
	}
	r.values[name] = v
	return r
}

// Get returns the raw value of a field and whether the field exists.
func (r *Record) Get(name string) (any, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Has reports whether the field exists and is non-nil.
func (r *Record) Has(name string) bool {
	v, ok := r.values[name]
	return ok && v != nil
}

// Delete removes a field. It is a no-op if the field does not exist.
func (r *Record) Delete(name string) {
	if _, ok := r.values[name]; !ok {
		return
	}
	delete(r.values, name)
	for i, k := range r.keys {
		if k == name {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the field names in order. The slice must not be modified.
func (r *Record) Keys() []string { return r.keys }

// Len returns the number of fields.
func (r *Record) Len() int { return len(r.keys) }

// Clone returns a shallow copy.
func (r *Record) Clone() *Record {
	c := New(len(r.keys))
	for _, k := range r.keys {
		c.Set(k, r.values[k])
	}
	return c
}

// Int64 returns a field as an integer.
//
// Integral floats and decimal strings are accepted; anything else reports
// ok == false.
func (r *Record) Int64(name string) (int64, bool) {
	v, ok := r.values[name]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case float32:
		f := float64(n)
		if f != math.Trunc(f) {
			return 0, false
		}
		return int64(f), true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

// String returns a field as text. Numbers are formatted in base 10.
func (r *Record) String(name string) (string, bool) {
	v, ok := r.values[name]
	if !ok || v == nil {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	case int, int32, int64, float32, float64, bool:
		return fmt.Sprint(s), true
	default:
		return "", false
	}
}

// MarshalJSON encodes the record as a JSON object in field order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, fmt.Errorf("record: field %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a flat JSON object, preserving field order.
// Integral numbers decode as int64, other numbers as float64.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("record: expected JSON object")
	}

	*r = *New(8)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("record: unexpected key token %v", tok)
		}
		var raw any
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("record: field %q: %w", key, err)
		}
		v, err := scalar(raw)
		if err != nil {
			return fmt.Errorf("record: field %q: %w", key, err)
		}
		r.Set(key, v)
	}
	_, err = dec.Token()
	return err
}

func scalar(v any) (any, error) {
	switch t := v.(type) {
	case nil, string, bool:
		return t, nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		return t.Float64()
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// MarshalDynamoDBAttributeValue encodes the record as a DynamoDB map.
func (r *Record) MarshalDynamoDBAttributeValue() (types.AttributeValue, error) {
	m := make(map[string]types.AttributeValue, len(r.keys))
	for _, k := range r.keys {
		av, err := attributevalue.Marshal(r.values[k])
		if err != nil {
			return nil, fmt.Errorf("record: field %q: %w", k, err)
		}
		m[k] = av
	}
	return &types.AttributeValueMemberM{Value: m}, nil
}

// UnmarshalDynamoDBAttributeValue decodes a DynamoDB map. Map attributes
// carry no order, so fields are restored in lexical order.
func (r *Record) UnmarshalDynamoDBAttributeValue(av types.AttributeValue) error {
	m, ok := av.(*types.AttributeValueMemberM)
	if !ok {
		return fmt.Errorf("record: expected map attribute, got %T", av)
	}

	keys := make([]string, 0, len(m.Value))
	for k := range m.Value {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	r.keys = make([]string, 0, len(keys))
	r.values = make(map[string]any, len(keys))
	for _, k := range keys {
		v, err := fromAttributeValue(m.Value[k])
		if err != nil {
			return fmt.Errorf("record: field %q: %w", k, err)
		}
		r.Set(k, v)
	}
	return nil
}

func fromAttributeValue(av types.AttributeValue) (any, error) {
	switch v := av.(type) {
	case *types.AttributeValueMemberNULL:
		return nil, nil
	case *types.AttributeValueMemberS:
		return v.Value, nil
	case *types.AttributeValueMemberBOOL:
		return v.Value, nil
	case *types.AttributeValueMemberB:
		return v.Value, nil
	case *types.AttributeValueMemberN:
		if i, err := strconv.ParseInt(v.Value, 10, 64); err == nil {
			return i, nil
		}
		return strconv.ParseFloat(v.Value, 64)
	default:
		return nil, fmt.Errorf("unsupported attribute %T", av)
	}
}

// FromJSON parses a single JSON object into a record.
func FromJSON(data []byte) (*Record, error) {
	r := New(0)
	if err := r.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return r, nil
}
