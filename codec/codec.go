// Package codec serializes the values bindings read and write.
// Nulls are omitted on write, type fields are honoured on read
// only when the target is an interface.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"

	"github.com/Rican7/conjson"
	"github.com/Rican7/conjson/transform"
	"github.com/tidwall/gjson"
)

type (
	// Options control encoding and decoding.
	Options struct {
		Prefix       string
		Indent       string
		Transformers []transform.Transformer
		Types        *Types
	}

	// Types maps type ids to the types they decode to.
	Types struct {
		lock  sync.RWMutex
		types map[string]reflect.Type
	}

	// UnknownTypeIdError reports a type id with no registered type.
	UnknownTypeIdError struct {
		TypeId string
	}

	transformer struct {
		v     any
		trans []transform.Transformer
	}
)

var (
	// KnownTypeFields are the fields that carry a type id.
	KnownTypeFields = []string{"$type", "@type"}

	// CamelCase directs the json encoding of keys to use camelcase notation.
	CamelCase = Options{
		Transformers: []transform.Transformer{
			transform.OnlyForDirection(
				transform.Marshal,
				transform.CamelCaseKeys(false)),
		},
	}

	// Pretty indents encoded json.
	Pretty = Options{Indent: "  "}
)

func (e *UnknownTypeIdError) Error() string {
	return fmt.Sprintf("unknown type id %q", e.TypeId)
}

// Register maps a type id to typ.
func (t *Types) Register(id string, typ reflect.Type) *Types {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.types == nil {
		t.types = make(map[string]reflect.Type)
	}
	t.types[id] = typ
	return t
}

// RegisterType maps a type id to the type of T.
func RegisterType[T any](t *Types, id string) *Types {
	return t.Register(id, reflect.TypeFor[T]())
}

// Lookup returns the type registered for id.
func (t *Types) Lookup(id string) (reflect.Type, bool) {
	if t == nil {
		return nil, false
	}
	t.lock.RLock()
	defer t.lock.RUnlock()
	typ, ok := t.types[id]
	return typ, ok
}

// Merge combines options, later ones overriding earlier ones.
func Merge(options ...Options) Options {
	var merged Options
	for _, o := range options {
		if o.Prefix != "" {
			merged.Prefix = o.Prefix
		}
		if o.Indent != "" {
			merged.Indent = o.Indent
		}
		if o.Types != nil {
			merged.Types = o.Types
		}
		merged.Transformers = append(merged.Transformers, o.Transformers...)
	}
	return merged
}

// Marshal encodes v omitting null members.
func Marshal(v any, options ...Options) ([]byte, error) {
	o := Merge(options...)
	src := v
	if len(o.Transformers) > 0 {
		src = &transformer{v, o.Transformers}
	}
	data, err := json.Marshal(src)
	if err != nil {
		return nil, err
	}
	data = OmitNulls(data)
	if o.Prefix != "" || o.Indent != "" {
		var b bytes.Buffer
		if err := json.Indent(&b, data, o.Prefix, o.Indent); err != nil {
			return nil, err
		}
		data = b.Bytes()
	}
	return data, nil
}

// Encode writes the encoding of v to w.
func Encode(w io.Writer, v any, options ...Options) error {
	data, err := Marshal(v, options...)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Unmarshal decodes data into target.  When target points to an
// interface and the json object names a registered type id, a value
// of that type is decoded and stored in the interface.
func Unmarshal(data []byte, target any, options ...Options) error {
	o := Merge(options...)
	if tv := reflect.ValueOf(target); tv.Kind() == reflect.Ptr && !tv.IsNil() &&
		tv.Elem().Kind() == reflect.Interface {
		if id, ok := typeId(data); ok {
			typ, found := o.Types.Lookup(id)
			if !found {
				return &UnknownTypeIdError{id}
			}
			v := reflect.New(typ)
			if err := unmarshal(data, v.Interface(), o); err != nil {
				return err
			}
			iface := tv.Elem().Type()
			switch {
			case typ.AssignableTo(iface):
				tv.Elem().Set(v.Elem())
			case v.Type().AssignableTo(iface):
				tv.Elem().Set(v)
			default:
				return fmt.Errorf("type id %q: %v does not implement %v", id, typ, iface)
			}
			return nil
		}
	}
	return unmarshal(data, target, o)
}

// Decode reads the json in r into target.
func Decode(r io.Reader, target any, options ...Options) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return Unmarshal(data, target, options...)
}

func unmarshal(data []byte, target any, o Options) error {
	if len(o.Transformers) > 0 {
		return json.Unmarshal(data, &transformer{target, o.Transformers})
	}
	return json.Unmarshal(data, target)
}

func typeId(data []byte) (string, bool) {
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return "", false
	}
	for _, field := range KnownTypeFields {
		if id := root.Get(gjson.Escape(field)); id.Exists() && id.Type == gjson.String {
			return id.String(), true
		}
	}
	return "", false
}

// OmitNulls removes null members from every object in data.
// Array elements are kept.  Invalid json is returned unchanged.
func OmitNulls(data []byte) []byte {
	if !bytes.Contains(data, []byte("null")) || !gjson.ValidBytes(data) {
		return data
	}
	var b strings.Builder
	omitNulls(&b, gjson.ParseBytes(data))
	return []byte(b.String())
}

func omitNulls(b *strings.Builder, r gjson.Result) {
	switch {
	case r.IsObject():
		b.WriteByte('{')
		first := true
		r.ForEach(func(key, value gjson.Result) bool {
			if value.Type == gjson.Null {
				return true
			}
			if !first {
				b.WriteByte(',')
			}
			first = false
			b.WriteString(key.Raw)
			b.WriteByte(':')
			omitNulls(b, value)
			return true
		})
		b.WriteByte('}')
	case r.IsArray():
		b.WriteByte('[')
		for i, elem := range r.Array() {
			if i > 0 {
				b.WriteByte(',')
			}
			omitNulls(b, elem)
		}
		b.WriteByte(']')
	default:
		b.WriteString(r.Raw)
	}
}

func (t *transformer) MarshalJSON() ([]byte, error) {
	return json.Marshal(conjson.NewMarshaler(t.v, t.trans...))
}

func (t *transformer) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, conjson.NewUnmarshaler(t.v, t.trans...))
}
