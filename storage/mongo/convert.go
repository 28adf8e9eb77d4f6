package mongo

import (
	"fmt"
	"time"

	"github.com/poiesic/docloader/core"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// toBSON converts a document into an ordered BSON document.
func toBSON(doc *core.Document) bson.D {
	fields := doc.Fields()
	out := make(bson.D, len(fields))
	for i, f := range fields {
		out[i] = bson.E{Key: f.Key, Value: valueToBSON(f.Value)}
	}
	return out
}

func valueToBSON(v core.Value) any {
	switch v.Kind() {
	case core.KindBool:
		b, _ := v.AsBool()
		return b
	case core.KindInt:
		i, _ := v.AsInt()
		return i
	case core.KindFloat:
		f, _ := v.AsFloat()
		return f
	case core.KindString:
		s, _ := v.AsString()
		return s
	case core.KindArray:
		arr, _ := v.AsArray()
		out := make(bson.A, len(arr))
		for i := range arr {
			out[i] = valueToBSON(arr[i])
		}
		return out
	case core.KindDocument:
		d, _ := v.AsDocument()
		return toBSON(d)
	default:
		return nil
	}
}

// fromBSON converts a decoded BSON document back into a document.
// BSON-only types (ObjectID, DateTime, Decimal128, ...) become strings.
func fromBSON(d bson.D) (*core.Document, error) {
	doc := core.NewDocument()
	for _, e := range d {
		v, err := valueFromBSON(e.Value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", e.Key, err)
		}
		doc.Set(e.Key, v)
	}
	return doc, nil
}

func valueFromBSON(x any) (core.Value, error) {
	switch t := x.(type) {
	case nil:
		return core.Null(), nil
	case primitive.Null, primitive.Undefined:
		return core.Null(), nil
	case bool:
		return core.Bool(t), nil
	case int32:
		return core.Int(int64(t)), nil
	case int64:
		return core.Int(t), nil
	case float64:
		return core.Float(t), nil
	case string:
		return core.String(t), nil
	case primitive.ObjectID:
		return core.String(t.Hex()), nil
	case primitive.DateTime:
		return core.String(t.Time().UTC().Format(time.RFC3339Nano)), nil
	case primitive.Decimal128:
		return core.String(t.String()), nil
	case primitive.Symbol:
		return core.String(string(t)), nil
	case bson.D:
		d, err := fromBSON(t)
		if err != nil {
			return core.Null(), err
		}
		return core.Doc(d), nil
	case bson.A:
		arr := make([]core.Value, len(t))
		for i := range t {
			v, err := valueFromBSON(t[i])
			if err != nil {
				return core.Null(), err
			}
			arr[i] = v
		}
		return core.Array(arr...), nil
	default:
		return core.Null(), fmt.Errorf("unsupported BSON value of type %T", x)
	}
}
