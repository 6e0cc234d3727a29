package metadata

import (
	"io"
	"reflect"
	"strings"
	"sync"
)

// Types maps descriptor data type names to Go types.
// Names are case-insensitive.
type Types struct {
	lock  sync.RWMutex
	types map[string]reflect.Type
}

// NewTypes returns a registry holding the built-in data types.
func NewTypes() *Types {
	return (&Types{}).
		Register("string", reflect.TypeOf("")).
		Register("binary", reflect.TypeOf([]byte(nil))).
		Register("stream", reflect.TypeOf((*io.Reader)(nil)).Elem()).
		Register("writer", reflect.TypeOf((*io.Writer)(nil)).Elem()).
		Register("int", reflect.TypeOf(0)).
		Register("bool", reflect.TypeOf(false)).
		Register("object", reflect.TypeOf((*any)(nil)).Elem())
}

// Register maps name to typ, replacing any existing entry.
func (t *Types) Register(name string, typ reflect.Type) *Types {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.types == nil {
		t.types = make(map[string]reflect.Type)
	}
	t.types[strings.ToLower(name)] = typ
	return t
}

// RegisterFor maps name to the type of T.
func RegisterFor[T any](t *Types, name string) *Types {
	return t.Register(name, reflect.TypeOf((*T)(nil)).Elem())
}

// Lookup returns the type registered for name.
func (t *Types) Lookup(name string) (reflect.Type, bool) {
	t.lock.RLock()
	defer t.lock.RUnlock()
	typ, ok := t.types[strings.ToLower(name)]
	return typ, ok
}
