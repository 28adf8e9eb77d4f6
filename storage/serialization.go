// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"fmt"
	"math"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/docloader/core"
)

// maxDepth bounds nesting when decoding stored documents.
const maxDepth = 128

// MarshalDocument serializes a Document to bytes, keeping field order.
func MarshalDocument(doc *core.Document) []byte {
	v := core.Doc(doc)
	buf := make([]byte, sizeValue(v))
	marshalValue(v, buf)
	return buf
}

// UnmarshalDocument deserializes a Document from bytes.
func UnmarshalDocument(data []byte) (*core.Document, error) {
	v, n, err := unmarshalValue(data, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrSerializationFailed, len(data)-n)
	}
	doc, ok := v.AsDocument()
	if !ok {
		if v.IsNull() {
			return core.NewDocument(), nil
		}
		return nil, fmt.Errorf("%w: top-level value is %s", ErrSerializationFailed, v.Kind())
	}
	return doc, nil
}

// MarshalIndexSpec serializes an IndexSpec to bytes.
func MarshalIndexSpec(spec core.IndexSpec) []byte {
	size := ord.String.Size(spec.Name) + varint.Uint64.Size(uint64(len(spec.Fields)))
	for _, f := range spec.Fields {
		size += ord.String.Size(f)
	}
	buf := make([]byte, size)
	n := ord.String.Marshal(spec.Name, buf)
	n += varint.Uint64.Marshal(uint64(len(spec.Fields)), buf[n:])
	for _, f := range spec.Fields {
		n += ord.String.Marshal(f, buf[n:])
	}
	return buf
}

// UnmarshalIndexSpec deserializes an IndexSpec from bytes.
func UnmarshalIndexSpec(data []byte) (core.IndexSpec, error) {
	var spec core.IndexSpec
	name, n, err := ord.String.Unmarshal(data)
	if err != nil {
		return spec, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	count, m, err := varint.Uint64.Unmarshal(data[n:])
	if err != nil {
		return spec, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	n += m
	if count > uint64(len(data)) {
		return spec, fmt.Errorf("%w: field count %d exceeds input", ErrSerializationFailed, count)
	}
	spec.Name = name
	spec.Fields = make([]string, 0, count)
	for range count {
		field, m, err := ord.String.Unmarshal(data[n:])
		if err != nil {
			return spec, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
		}
		n += m
		spec.Fields = append(spec.Fields, field)
	}
	return spec, nil
}

// Each value is a kind byte followed by the kind's payload.
func sizeValue(v core.Value) int {
	size := 1
	switch v.Kind() {
	case core.KindBool:
		b, _ := v.AsBool()
		size += ord.Bool.Size(b)
	case core.KindInt:
		i, _ := v.AsInt()
		size += varint.Int64.Size(i)
	case core.KindFloat:
		f, _ := v.AsFloat()
		size += varint.Uint64.Size(math.Float64bits(f))
	case core.KindString:
		s, _ := v.AsString()
		size += ord.String.Size(s)
	case core.KindArray:
		arr, _ := v.AsArray()
		size += varint.Uint64.Size(uint64(len(arr)))
		for _, elem := range arr {
			size += sizeValue(elem)
		}
	case core.KindDocument:
		doc, _ := v.AsDocument()
		fields := doc.Fields()
		size += varint.Uint64.Size(uint64(len(fields)))
		for _, f := range fields {
			size += ord.String.Size(f.Key) + sizeValue(f.Value)
		}
	}
	return size
}

func marshalValue(v core.Value, bs []byte) int {
	bs[0] = byte(v.Kind())
	n := 1
	switch v.Kind() {
	case core.KindBool:
		b, _ := v.AsBool()
		n += ord.Bool.Marshal(b, bs[n:])
	case core.KindInt:
		i, _ := v.AsInt()
		n += varint.Int64.Marshal(i, bs[n:])
	case core.KindFloat:
		f, _ := v.AsFloat()
		n += varint.Uint64.Marshal(math.Float64bits(f), bs[n:])
	case core.KindString:
		s, _ := v.AsString()
		n += ord.String.Marshal(s, bs[n:])
	case core.KindArray:
		arr, _ := v.AsArray()
		n += varint.Uint64.Marshal(uint64(len(arr)), bs[n:])
		for _, elem := range arr {
			n += marshalValue(elem, bs[n:])
		}
	case core.KindDocument:
		doc, _ := v.AsDocument()
		fields := doc.Fields()
		n += varint.Uint64.Marshal(uint64(len(fields)), bs[n:])
		for _, f := range fields {
			n += ord.String.Marshal(f.Key, bs[n:])
			n += marshalValue(f.Value, bs[n:])
		}
	}
	return n
}

func unmarshalValue(bs []byte, depth int) (core.Value, int, error) {
	if len(bs) == 0 {
		return core.Null(), 0, fmt.Errorf("truncated value")
	}
	if depth > maxDepth {
		return core.Null(), 0, fmt.Errorf("nesting deeper than %d", maxDepth)
	}
	kind := core.Kind(bs[0])
	n := 1
	switch kind {
	case core.KindNull:
		return core.Null(), n, nil
	case core.KindBool:
		b, m, err := ord.Bool.Unmarshal(bs[n:])
		return core.Bool(b), n + m, err
	case core.KindInt:
		i, m, err := varint.Int64.Unmarshal(bs[n:])
		return core.Int(i), n + m, err
	case core.KindFloat:
		bits, m, err := varint.Uint64.Unmarshal(bs[n:])
		return core.Float(math.Float64frombits(bits)), n + m, err
	case core.KindString:
		s, m, err := ord.String.Unmarshal(bs[n:])
		return core.String(s), n + m, err
	case core.KindArray:
		count, m, err := varint.Uint64.Unmarshal(bs[n:])
		if err != nil {
			return core.Null(), n, err
		}
		n += m
		if count > uint64(len(bs)-n) {
			return core.Null(), n, fmt.Errorf("array length %d exceeds input", count)
		}
		arr := make([]core.Value, 0, count)
		for range count {
			elem, m, err := unmarshalValue(bs[n:], depth+1)
			if err != nil {
				return core.Null(), n, err
			}
			n += m
			arr = append(arr, elem)
		}
		return core.Array(arr...), n, nil
	case core.KindDocument:
		count, m, err := varint.Uint64.Unmarshal(bs[n:])
		if err != nil {
			return core.Null(), n, err
		}
		n += m
		if count > uint64(len(bs)-n) {
			return core.Null(), n, fmt.Errorf("field count %d exceeds input", count)
		}
		doc := core.NewDocument()
		for range count {
			key, m, err := ord.String.Unmarshal(bs[n:])
			if err != nil {
				return core.Null(), n, err
			}
			n += m
			val, m, err := unmarshalValue(bs[n:], depth+1)
			if err != nil {
				return core.Null(), n, err
			}
			n += m
			doc.Set(key, val)
		}
		return core.Doc(doc), n, nil
	}
	return core.Null(), n, fmt.Errorf("unknown value kind %d", kind)
}
