package bindingdata

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// ExtractJSON reads the contract names from the top level of a JSON
// object.  Only scalar members are used and are coerced to the contract
// type; objects, arrays, nulls and unconvertible members are skipped.
// Malformed JSON yields nil rather than an error since binding data is
// supplementary.
func ExtractJSON(json string, contract Contract) Data {
	if contract == nil || !gjson.Valid(json) {
		return nil
	}
	root := gjson.Parse(json)
	if !root.IsObject() {
		return nil
	}
	members := make(map[string]gjson.Result)
	root.ForEach(func(key, value gjson.Result) bool {
		members[strings.ToLower(key.String())] = value
		return true
	})
	data := make(Data, len(contract))
	for name, typ := range contract {
		member, ok := members[strings.ToLower(name)]
		if !ok || !isScalar(member) {
			continue
		}
		raw := member.Value()
		if member.Type == gjson.Number {
			if exact, ok := parseInteger(member.Raw, typ); ok {
				raw = exact
			}
		}
		if value, err := ChangeType(raw, typ); err == nil {
			data.set(name, value)
		}
	}
	return data
}

// parseInteger reads the literal text of a number for integer types
// so values beyond float64 precision survive.  Fractions and exponents
// are left to the float conversion.
func parseInteger(raw string, typ reflect.Type) (any, bool) {
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ == durationType {
		return nil, false
	}
	switch typ.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return i, true
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if u, err := strconv.ParseUint(raw, 10, 64); err == nil {
			return u, true
		}
	}
	return nil, false
}

func isScalar(r gjson.Result) bool {
	switch r.Type {
	case gjson.String, gjson.Number, gjson.True, gjson.False:
		return true
	}
	return false
}
