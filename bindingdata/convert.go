package bindingdata

import (
	"encoding"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// localTimeLayout parses timestamps that carry no zone.
const localTimeLayout = "2006-01-02T15:04:05.999999999"

// ChangeType coerces a scalar into typ.
// Pointer targets receive a pointer to the coerced value.
// Timestamps without a zone are assumed to be UTC.
func ChangeType(value any, typ reflect.Type) (any, error) {
	if typ.Kind() == reflect.Ptr {
		if value == nil {
			return reflect.Zero(typ).Interface(), nil
		}
		elem, err := ChangeType(value, typ.Elem())
		if err != nil {
			return nil, err
		}
		ptr := reflect.New(typ.Elem())
		ptr.Elem().Set(reflect.ValueOf(elem))
		return ptr.Interface(), nil
	}
	if value == nil {
		return nil, fmt.Errorf("cannot convert nil to %v", typ)
	}
	if reflect.TypeOf(value) == typ {
		return value, nil
	}

	switch typ {
	case timeType:
		return toTime(value)
	case durationType:
		return toDuration(value)
	case uuidType:
		if s, ok := value.(string); ok {
			return uuid.Parse(s)
		}
		return nil, fmt.Errorf("cannot convert %T to %v", value, typ)
	}

	if s, ok := value.(string); ok {
		if target := reflect.New(typ); target.Type().Implements(textUnmarshalerType) {
			if err := target.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s)); err != nil {
				return nil, err
			}
			return target.Elem().Interface(), nil
		}
	}

	out := reflect.New(typ).Elem()
	switch typ.Kind() {
	case reflect.String:
		out.SetString(formatScalar(value))
	case reflect.Bool:
		switch v := value.(type) {
		case bool:
			out.SetBool(v)
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, err
			}
			out.SetBool(b)
		default:
			return nil, fmt.Errorf("cannot convert %T to %v", value, typ)
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := toInt(value)
		if err != nil {
			return nil, err
		}
		if out.OverflowInt(i) {
			return nil, fmt.Errorf("value %d overflows %v", i, typ)
		}
		out.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := toUint(value)
		if err != nil {
			return nil, err
		}
		if out.OverflowUint(u) {
			return nil, fmt.Errorf("value %d overflows %v", u, typ)
		}
		out.SetUint(u)
	case reflect.Float32, reflect.Float64:
		f, err := toFloat(value)
		if err != nil {
			return nil, err
		}
		out.SetFloat(f)
	default:
		return nil, fmt.Errorf("cannot convert %T to %v", value, typ)
	}
	return out.Interface(), nil
}

var textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()

func formatScalar(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return fmt.Sprint(value)
}

func toInt(value any) (int64, error) {
	switch v := value.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("value %v is not integral", v)
		}
		return int64(v), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), nil
	}
	return 0, fmt.Errorf("cannot convert %T to an integer", value)
}

func toUint(value any) (uint64, error) {
	switch v := value.(type) {
	case float64:
		if v != math.Trunc(v) || v < 0 {
			return 0, fmt.Errorf("value %v is not a non-negative integer", v)
		}
		return uint64(v), nil
	case string:
		return strconv.ParseUint(strings.TrimSpace(v), 10, 64)
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if rv.Int() < 0 {
			return 0, fmt.Errorf("value %d is negative", rv.Int())
		}
		return uint64(rv.Int()), nil
	}
	return 0, fmt.Errorf("cannot convert %T to an unsigned integer", value)
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	}
	i, err := toInt(value)
	return float64(i), err
}

func toTime(value any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("cannot convert %T to a timestamp", value)
	}
	return ParseTime(s)
}

// ParseTime parses an RFC 3339 timestamp normalized to UTC.
// A timestamp without a zone is read as UTC.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.ParseInLocation(localTimeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

func toDuration(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return time.ParseDuration(v)
	case float64:
		return time.Duration(int64(v)), nil
	}
	return nil, fmt.Errorf("cannot convert %T to a duration", value)
}

func isStringKind(value any) bool {
	return value != nil && reflect.TypeOf(value).Kind() == reflect.String
}
