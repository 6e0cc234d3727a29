// Package static translates parameter attributes into static bindings:
// immutable descriptions of how a parameter binds, computed once when a
// function is indexed.
package static

import (
	"fmt"
	"path"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jobhost/bindings/attrs"
	"github.com/jobhost/bindings/bindingdata"
	"github.com/jobhost/bindings/blobpath"
	"github.com/jobhost/bindings/metadata"
	"github.com/jobhost/bindings/names"
	"github.com/jobhost/bindings/pattern"
	"github.com/jobhost/bindings/storage"
)

type (
	// Binding is the static description of a parameter binding.
	Binding interface {
		fmt.Stringer
		Parameter() string
		// ProducedRouteParameters lists the binding data names a
		// trigger supplies to the other parameters.
		ProducedRouteParameters() []string
		// RequiredRouteParameters lists the binding data names
		// the binding needs to resolve.
		RequiredRouteParameters() []string
		static()
	}

	// Trigger is a Binding that starts the function.
	Trigger interface {
		Binding
		Contract() bindingdata.Contract
	}

	// Blob binds a blob addressed by a path pattern.
	Blob struct {
		Param      string
		Path       blobpath.Path
		Pattern    *pattern.Pattern
		Access     attrs.Access
		Trigger    bool
		Connection string
	}

	// Queue binds a queue or, as a trigger, the message that fired.
	Queue struct {
		Param      string
		QueueName  string
		Pattern    *pattern.Pattern
		Trigger    bool
		Connection string
		Message    reflect.Type
	}

	// Table binds a whole table.
	Table struct {
		Param      string
		TableName  string
		Connection string
	}

	// TableEntity binds a single table entity.
	TableEntity struct {
		Param        string
		TableName    string
		PartitionKey *pattern.Pattern
		RowKey       *pattern.Pattern
		Connection   string
	}

	// Timer binds the timer that fired.
	Timer struct {
		Param        string
		Schedule     Schedule
		RunOnStartup bool
	}

	// Name binds a route parameter by name or, when not Route,
	// a value supplied by the caller.
	Name struct {
		Param string
		Type  reflect.Type
		Route bool
	}

	// Binder binds a runtime binder.
	Binder struct {
		Param string
	}

	// DuplicateFrameworkError reports an attribute declared by another
	// copy of this framework.
	DuplicateFrameworkError struct {
		Attribute reflect.Type
		Expected  string
	}
)

var (
	validate = validator.New()

	attrsPackage = reflect.TypeOf(attrs.Blob{}).PkgPath()
)

// BlobTriggerData names the binding data holding a trigger's blob path.
const BlobTriggerData = "BlobTrigger"

func (e *DuplicateFrameworkError) Error() string {
	return fmt.Sprintf(
		"attribute %v is declared in %q, not %q: more than one copy of the binding framework is loaded",
		e.Attribute, e.Attribute.PkgPath(), e.Expected)
}

// Bind returns the static binding for attr on param.  Attributes this
// package does not know return nil without error.  Names of the form
// %name% in paths are resolved through r.
func Bind(attr any, param metadata.Parameter, r names.Resolver) (Binding, error) {
	if err := checkFramework(attr); err != nil {
		return nil, err
	}
	switch a := attr.(type) {
	case attrs.Blob:
		return bindBlob(param, a.Path, a.Access, false, a.Connection, a, r)
	case attrs.BlobTrigger:
		return bindBlob(param, a.Path, attrs.AccessRead, true, a.Connection, a, r)
	case attrs.Queue:
		return bindQueue(param, a.QueueName, false, a.Connection, a, r)
	case attrs.QueueTrigger:
		return bindQueue(param, a.QueueName, true, a.Connection, a, r)
	case attrs.Table:
		return bindTable(param, a, r)
	case attrs.TimerTrigger:
		if err := validate.Struct(a); err != nil {
			return nil, invalid(param, a, err)
		}
		schedule, err := resolve(r, param, a, a.Schedule)
		if err != nil {
			return nil, err
		}
		parsed, err := ParseSchedule(schedule)
		if err != nil {
			return nil, invalid(param, a, err)
		}
		return &Timer{param.Name, parsed, a.RunOnStartup}, nil
	case attrs.Binder:
		return &Binder{param.Name}, nil
	}
	return nil, nil
}

func checkFramework(attr any) error {
	if attr == nil {
		return nil
	}
	typ := reflect.TypeOf(attr)
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	pkg := typ.PkgPath()
	if pkg == "" || pkg == attrsPackage || path.Base(pkg) != path.Base(attrsPackage) {
		return nil
	}
	for _, kind := range attrs.Kinds {
		if typ.Name() == kind {
			return &DuplicateFrameworkError{typ, attrsPackage}
		}
	}
	return nil
}

func bindBlob(
	param      metadata.Parameter,
	raw        string,
	access     attrs.Access,
	trigger    bool,
	connection string,
	attr       attrs.Attribute,
	r          names.Resolver,
) (Binding, error) {
	if err := validate.Struct(attr); err != nil {
		return nil, invalid(param, attr, err)
	}
	resolved, err := resolve(r, param, attr, raw)
	if err != nil {
		return nil, err
	}
	p, pat, err := blobpath.ParsePattern(resolved)
	if err != nil {
		return nil, invalid(param, attr, err)
	}
	return &Blob{
		Param:      param.Name,
		Path:       p,
		Pattern:    pat,
		Access:     access,
		Trigger:    trigger,
		Connection: connection,
	}, nil
}

func bindQueue(
	param      metadata.Parameter,
	raw        string,
	trigger    bool,
	connection string,
	attr       attrs.Attribute,
	r          names.Resolver,
) (Binding, error) {
	if err := validate.Struct(attr); err != nil {
		return nil, invalid(param, attr, err)
	}
	resolved, err := resolve(r, param, attr, raw)
	if err != nil {
		return nil, err
	}
	name := NormalizeQueueName(resolved)
	if !strings.Contains(name, "{") {
		if err := storage.ValidateQueueName(name); err != nil {
			return nil, invalid(param, attr, err)
		}
	}
	pat, err := pattern.Parse(name)
	if err != nil {
		return nil, invalid(param, attr, err)
	}
	if trigger && pat.HasParameters() {
		return nil, invalid(param, attr, fmt.Errorf("trigger queue %q cannot contain parameters", name))
	}
	return &Queue{
		Param:      param.Name,
		QueueName:  name,
		Pattern:    pat,
		Trigger:    trigger,
		Connection: connection,
		Message:    param.Type,
	}, nil
}

func bindTable(param metadata.Parameter, a attrs.Table, r names.Resolver) (Binding, error) {
	if err := validate.Struct(a); err != nil {
		return nil, invalid(param, a, err)
	}
	table, err := resolve(r, param, a, a.TableName)
	if err != nil {
		return nil, err
	}
	if err := storage.ValidateTableName(table); err != nil {
		return nil, invalid(param, a, err)
	}
	if a.RowKey == "" {
		return &Table{param.Name, table, a.Connection}, nil
	}
	keys := make([]*pattern.Pattern, 2)
	for i, raw := range []string{a.PartitionKey, a.RowKey} {
		key, err := resolve(r, param, a, raw)
		if err != nil {
			return nil, err
		}
		if keys[i], err = pattern.Parse(key); err != nil {
			return nil, invalid(param, a, err)
		}
		if !keys[i].HasParameters() {
			if err := storage.ValidateEntityKey(key); err != nil {
				return nil, invalid(param, a, err)
			}
		}
	}
	return &TableEntity{
		Param:        param.Name,
		TableName:    table,
		PartitionKey: keys[0],
		RowKey:       keys[1],
		Connection:   a.Connection,
	}, nil
}

// NormalizeQueueName lower cases a queue name.
func NormalizeQueueName(name string) string {
	return strings.ToLower(name)
}

func resolve(r names.Resolver, param metadata.Parameter, attr attrs.Attribute, raw string) (string, error) {
	resolved, err := names.ResolveWholeString(r, raw)
	if err != nil {
		return "", invalid(param, attr, err)
	}
	return resolved, nil
}

func invalid(param metadata.Parameter, attr any, reason error) error {
	return &Error{Parameter: param.Name, Attribute: fmt.Sprint(attr), Reason: reason}
}

// Error reports an attribute that cannot be bound.
type Error struct {
	Parameter string
	Attribute string
	Reason    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("parameter %q %s: %v", e.Parameter, e.Attribute, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Reason
}
