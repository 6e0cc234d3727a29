package bindingdata

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/imdario/mergo"
	"github.com/jobhost/bindings/pattern"
)

// Data maps binding data names to values.
// Names are case-insensitive and stored folded to lower case.
// Data is built once per invocation and only read afterwards.
type Data map[string]any

// New creates Data from the supplied entries.
func New(entries map[string]any) Data {
	data := make(Data, len(entries))
	for name, value := range entries {
		data.set(name, value)
	}
	return data
}

// FromValues creates Data from pattern captures.
func FromValues(values pattern.Values) Data {
	if values == nil {
		return nil
	}
	data := make(Data, len(values))
	for name, value := range values {
		data.set(name, value)
	}
	return data
}

func (d Data) set(name string, value any) {
	d[strings.ToLower(name)] = value
}

// Get returns the value of name ignoring case.
func (d Data) Get(name string) (any, bool) {
	value, ok := d[strings.ToLower(name)]
	return value, ok
}

// Lookup returns the path compatible string form of name.
// It satisfies pattern.Lookup.
func (d Data) Lookup(name string) (string, bool) {
	if value, ok := d.Get(name); ok {
		return ToString(value)
	}
	return "", false
}

// Names returns the folded names in sorted order.
func (d Data) Names() []string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Strings returns the entries with a path compatible string form.
func (d Data) Strings() pattern.Values {
	values := make(pattern.Values, len(d))
	for name, value := range d {
		if s, ok := ToString(value); ok {
			values[name] = s
		}
	}
	return values
}

// Merge derives new Data from into overlaid with each of from.
// Later entries replace earlier ones.
func Merge(into Data, from ...Data) (Data, error) {
	merged := make(Data, len(into))
	for name, value := range into {
		merged[name] = value
	}
	for _, src := range from {
		if len(src) == 0 {
			continue
		}
		if err := mergo.Merge(&merged, src, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("bindingdata: merge failed: %w", err)
		}
	}
	return merged, nil
}

// ToString converts a value to a path compatible string.
// Only strings, integers and uuids are supported.
func ToString(value any) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case int:
		return strconv.Itoa(v), true
	case int8:
		return strconv.FormatInt(int64(v), 10), true
	case int16:
		return strconv.FormatInt(int64(v), 10), true
	case int32:
		return strconv.FormatInt(int64(v), 10), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case uint:
		return strconv.FormatUint(uint64(v), 10), true
	case uint8:
		return strconv.FormatUint(uint64(v), 10), true
	case uint16:
		return strconv.FormatUint(uint64(v), 10), true
	case uint32:
		return strconv.FormatUint(uint64(v), 10), true
	case uint64:
		return strconv.FormatUint(v, 10), true
	case uuid.UUID:
		return v.String(), true
	case fmt.Stringer:
		if isStringKind(value) {
			return v.String(), true
		}
	}
	if isStringKind(value) {
		return fmt.Sprintf("%s", value), true
	}
	return "", false
}
