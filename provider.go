package bindings

import (
	"context"
	"fmt"
	"reflect"
	"strings"
)

type (
	// Capability declares what a ValueProvider supports.
	Capability uint8

	// ValueProvider supplies the argument of a bound parameter.
	ValueProvider interface {
		Type() reflect.Type
		Value() (any, error)
		// InvokeString describes the value for the invocation log.
		InvokeString() string
		Capabilities() Capability
	}

	// ValueBinder is a ValueProvider that receives the value the
	// function left in its argument once it completes.
	ValueBinder interface {
		ValueProvider
		SetValue(ctx context.Context, value any) error
	}

	// Constant provides a fixed value.
	Constant struct {
		Typ    reflect.Type
		Val    any
		Invoke string
	}
)

const (
	CanRead Capability = 1 << iota
	CanWrite
	CanDispose
	CanWatch
)

// Has reports if c includes every capability in o.
func (c Capability) Has(o Capability) bool {
	return c&o == o
}

func (c Capability) String() string {
	if c == 0 {
		return "None"
	}
	var parts []string
	for _, flag := range []struct {
		c    Capability
		name string
	}{{CanRead, "Read"}, {CanWrite, "Write"}, {CanDispose, "Dispose"}, {CanWatch, "Watch"}} {
		if c.Has(flag.c) {
			parts = append(parts, flag.name)
		}
	}
	return strings.Join(parts, "|")
}

// NewConstant provides value with the invoke string derived from it.
func NewConstant(typ reflect.Type, value any) *Constant {
	return &Constant{typ, value, fmt.Sprint(value)}
}

func (c *Constant) Type() reflect.Type       { return c.Typ }
func (c *Constant) Value() (any, error)      { return c.Val, nil }
func (c *Constant) InvokeString() string     { return c.Invoke }
func (c *Constant) Capabilities() Capability { return CanRead }
