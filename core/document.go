package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	gojson "github.com/goccy/go-json"
)

// Field is a single key/value pair of a Document.
type Field struct {
	Key   string
	Value Value
}

// Document is an ordered mapping of string keys to values.
// Keys keep their insertion order; setting an existing key replaces it in place.
// A Document is not safe for concurrent mutation.
type Document struct {
	fields []Field
	index  map[string]int
}

// NewDocument creates an empty document.
func NewDocument() *Document {
	return &Document{index: make(map[string]int)}
}

// DocumentOf builds a document from alternating key/value arguments.
// It panics on malformed input and is meant for literals in code and tests.
func DocumentOf(kv ...any) *Document {
	if len(kv)%2 != 0 {
		panic("core: DocumentOf requires key/value pairs")
	}
	d := NewDocument()
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("core: DocumentOf key %v is not a string", kv[i]))
		}
		v, err := ValueOf(kv[i+1])
		if err != nil {
			panic("core: " + err.Error())
		}
		d.Set(key, v)
	}
	return d
}

// Len returns the number of fields.
func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.fields)
}

// Set stores v under key.
func (d *Document) Set(key string, v Value) {
	if d.index == nil {
		d.index = make(map[string]int)
	}
	if i, ok := d.index[key]; ok {
		d.fields[i].Value = v
		return
	}
	d.index[key] = len(d.fields)
	d.fields = append(d.fields, Field{Key: key, Value: v})
}

// Get returns the value stored under key.
func (d *Document) Get(key string) (Value, bool) {
	if d == nil {
		return Null(), false
	}
	i, ok := d.index[key]
	if !ok {
		return Null(), false
	}
	return d.fields[i].Value, true
}

// Has reports whether key is present, even if its value is null.
func (d *Document) Has(key string) bool {
	if d == nil {
		return false
	}
	_, ok := d.index[key]
	return ok
}

// Delete removes key and reports whether it was present.
func (d *Document) Delete(key string) bool {
	i, ok := d.index[key]
	if !ok {
		return false
	}
	d.fields = append(d.fields[:i], d.fields[i+1:]...)
	delete(d.index, key)
	for j := i; j < len(d.fields); j++ {
		d.index[d.fields[j].Key] = j
	}
	return true
}

// Keys returns the keys in insertion order.
func (d *Document) Keys() []string {
	if d == nil {
		return nil
	}
	keys := make([]string, len(d.fields))
	for i, f := range d.fields {
		keys[i] = f.Key
	}
	return keys
}

// Fields returns a copy of the fields in insertion order.
func (d *Document) Fields() []Field {
	if d == nil {
		return nil
	}
	out := make([]Field, len(d.fields))
	copy(out, d.fields)
	return out
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := &Document{
		fields: make([]Field, len(d.fields)),
		index:  make(map[string]int, len(d.fields)),
	}
	for i, f := range d.fields {
		out.fields[i] = Field{Key: f.Key, Value: f.Value.clone()}
		out.index[f.Key] = i
	}
	return out
}

// Equal reports whether both documents hold the same fields in the same order.
func (d *Document) Equal(other *Document) bool {
	if d.Len() != other.Len() {
		return false
	}
	for i := range d.Len() {
		a, b := d.fields[i], other.fields[i]
		if a.Key != b.Key || !a.Value.Equal(b.Value) {
			return false
		}
	}
	return true
}

var _ json.Marshaler = (*Document)(nil)
var _ json.Unmarshaler = (*Document)(nil)

// MarshalJSON encodes the document keeping field order.
func (d *Document) MarshalJSON() ([]byte, error) {
	if d == nil {
		return []byte("null"), nil
	}
	return d.appendJSON(make([]byte, 0, 64*len(d.fields)+2))
}

// UnmarshalJSON replaces the contents of d with the decoded object.
func (d *Document) UnmarshalJSON(data []byte) error {
	parsed, err := ParseDocument(data)
	if err != nil {
		return err
	}
	*d = *parsed
	return nil
}

func (d *Document) appendJSON(buf []byte) ([]byte, error) {
	buf = append(buf, '{')
	for i, f := range d.fields {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, err := gojson.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf = append(buf, key...)
		buf = append(buf, ':')
		buf, err = f.Value.appendJSON(buf)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Key, err)
		}
	}
	return append(buf, '}'), nil
}

func (v Value) appendJSON(buf []byte) ([]byte, error) {
	switch v.kind {
	case KindNull:
		return append(buf, "null"...), nil
	case KindBool:
		return strconv.AppendBool(buf, v.b), nil
	case KindInt:
		return strconv.AppendInt(buf, v.i, 10), nil
	case KindFloat:
		if math.IsInf(v.f, 0) || math.IsNaN(v.f) {
			return nil, fmt.Errorf("unsupported float value %v", v.f)
		}
		return strconv.AppendFloat(buf, v.f, 'g', -1, 64), nil
	case KindString:
		s, err := gojson.Marshal(v.s)
		if err != nil {
			return nil, err
		}
		return append(buf, s...), nil
	case KindArray:
		buf = append(buf, '[')
		var err error
		for i := range v.arr {
			if i > 0 {
				buf = append(buf, ',')
			}
			if buf, err = v.arr[i].appendJSON(buf); err != nil {
				return nil, err
			}
		}
		return append(buf, ']'), nil
	case KindDocument:
		return v.doc.appendJSON(buf)
	}
	return nil, fmt.Errorf("unknown value kind %d", v.kind)
}

// utf8BOM is the byte order mark some Windows tools prepend to UTF-8 files.
var utf8BOM = []byte("\xEF\xBB\xBF")

// errNotObject is returned when the top-level JSON value is not an object.
var errNotObject = errors.New("top-level JSON value is not an object")

// ParseDocument decodes a JSON object keeping key order. Integral numbers
// that fit in int64 become Int values, all other numbers become Float.
// A leading UTF-8 byte order mark is ignored.
func ParseDocument(data []byte) (*Document, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errNotObject
	}
	doc, err := parseObject(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after top-level object")
	}
	return doc, nil
}

func parseObject(dec *json.Decoder) (*Document, error) {
	doc := NewDocument()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", tok)
		}
		v, err := parseValue(dec)
		if err != nil {
			return nil, err
		}
		doc.Set(key, v)
	}
	// closing '}'
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return doc, nil
}

func parseArray(dec *json.Decoder) (Value, error) {
	values := []Value{}
	for dec.More() {
		v, err := parseValue(dec)
		if err != nil {
			return Null(), err
		}
		values = append(values, v)
	}
	if _, err := dec.Token(); err != nil {
		return Null(), err
	}
	return Array(values...), nil
}

func parseValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Null(), err
	}
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		if i, err := strconv.ParseInt(t.String(), 10, 64); err == nil {
			return Int(i), nil
		}
		f, err := strconv.ParseFloat(t.String(), 64)
		if err != nil {
			return Null(), fmt.Errorf("invalid number %q: %w", t, err)
		}
		return Float(f), nil
	case json.Delim:
		switch t {
		case '{':
			d, err := parseObject(dec)
			if err != nil {
				return Null(), err
			}
			return Doc(d), nil
		case '[':
			return parseArray(dec)
		}
	}
	return Null(), fmt.Errorf("unexpected token %v", tok)
}
