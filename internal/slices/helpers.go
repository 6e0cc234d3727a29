// Package slices holds generic helpers the standard slices package lacks.
package slices

import "fmt"

type MapFunc[IN, OUT any] interface {
	~func(int, IN) OUT | ~func(IN) OUT
}

// Map turns a []IN to a []OUT using a mapping function.
func Map[IN, OUT any, F MapFunc[IN, OUT]](in []IN, fun F) []OUT {
	if in == nil {
		return nil
	}
	f := func(i int, item IN) OUT {
		switch typ := any(fun).(type) {
		case func(int, IN) OUT:
			return typ(i, item)
		case func(IN) OUT:
			return typ(item)
		}
		panic(fmt.Sprintf("unrecognized Map function type %T", fun))
	}
	out := make([]OUT, len(in))
	for i, item := range in {
		out[i] = f(i, item)
	}
	return out
}

type FilterFunc[IN any] interface {
	~func(int, IN) bool | ~func(IN) bool
}

// Filter returns a new slice with only the elements of in
// for which fun returned true.
func Filter[IN any, F FilterFunc[IN]](in []IN, fun F) []IN {
	var out []IN
	f := func(i int, item IN) bool {
		switch typ := any(fun).(type) {
		case func(int, IN) bool:
			return typ(i, item)
		case func(IN) bool:
			return typ(item)
		}
		panic(fmt.Sprintf("unrecognized Filter function type %T", fun))
	}
	for i, item := range in {
		if f(i, item) {
			out = append(out, item)
		}
	}
	return out
}
