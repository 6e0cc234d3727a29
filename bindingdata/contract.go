// Package bindingdata derives and extracts the named values a trigger
// makes available to sibling bindings.
package bindingdata

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

type (
	// Contract describes the names and types of the binding data a
	// trigger value produces.
	Contract map[string]reflect.Type
)

var (
	// ErrContractMismatch reports a value that does not satisfy a Contract.
	ErrContractMismatch = errors.New("value does not satisfy the binding contract")

	anyType      = reflect.TypeOf((*any)(nil)).Elem()
	stringType   = reflect.TypeOf("")
	bytesType    = reflect.TypeOf([]byte(nil))
	timeType     = reflect.TypeOf(time.Time{})
	durationType = reflect.TypeOf(time.Duration(0))
	uuidType     = reflect.TypeOf(uuid.UUID{})
)

// DeriveContract builds a Contract from the exported fields of a struct
// type.  Only fields with string convertible types are included.
// Strings, byte slices, empty interfaces and other non-struct types
// carry no structured binding data and return nil.
func DeriveContract(typ reflect.Type) Contract {
	if typ == nil || typ == anyType || typ == stringType || typ == bytesType {
		return nil
	}
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct || IsStringConvertible(typ) {
		return nil
	}
	contract := Contract{}
	for _, field := range reflect.VisibleFields(typ) {
		if field.Anonymous || !field.IsExported() {
			continue
		}
		if IsStringConvertible(field.Type) {
			contract[field.Name] = field.Type
		}
	}
	return contract
}

// IsStringConvertible reports if values of typ have a natural
// string form: booleans, numbers, strings and string kinds, times,
// durations, uuids and pointers to any of these.
func IsStringConvertible(typ reflect.Type) bool {
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	switch typ {
	case timeType, durationType, uuidType:
		return true
	}
	switch typ.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// Lookup finds the type of name ignoring case.
func (c Contract) Lookup(name string) (reflect.Type, string, bool) {
	if typ, ok := c[name]; ok {
		return typ, name, true
	}
	for key, typ := range c {
		if strings.EqualFold(key, name) {
			return typ, key, true
		}
	}
	return nil, "", false
}

// Names returns the contract names in sorted order.
func (c Contract) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// With returns a copy of the contract including the extra entries.
func (c Contract) With(extra Contract) Contract {
	out := make(Contract, len(c)+len(extra))
	for name, typ := range c {
		out[name] = typ
	}
	for name, typ := range extra {
		out[name] = typ
	}
	return out
}

// Extract reads the contract fields from value.
// Supplying a value whose fields disagree with the contract is
// a programming error and returns ErrContractMismatch.
func Extract(value any, contract Contract) (Data, error) {
	if contract == nil {
		return nil, nil
	}
	v := reflect.ValueOf(value)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil, fmt.Errorf("%w: nil %T", ErrContractMismatch, value)
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %T is not a struct", ErrContractMismatch, value)
	}
	data := make(Data, len(contract))
	for name, typ := range contract {
		field, ok := v.Type().FieldByName(name)
		if !ok || field.Type != typ {
			return nil, fmt.Errorf("%w: %T has no field %s of type %v",
				ErrContractMismatch, value, name, typ)
		}
		fv, err := v.FieldByIndexErr(field.Index)
		if err != nil {
			data.set(name, nil)
			continue
		}
		if fv.Kind() == reflect.Ptr {
			if fv.IsNil() {
				data.set(name, nil)
				continue
			}
			fv = fv.Elem()
		}
		data.set(name, fv.Interface())
	}
	return data, nil
}
