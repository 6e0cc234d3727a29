// Package names resolves %name% tokens in configuration strings.
package names

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

type (
	// Resolver resolves a single name.
	// It returns false when the name is unknown.
	Resolver interface {
		Resolve(name string) (string, bool, error)
	}

	// Func adapts a function to a Resolver.
	Func func(name string) (string, bool, error)

	// Map resolves names from a map, ignoring case on a miss.
	Map map[string]string

	// Chain tries each Resolver in order.
	Chain []Resolver

	// ResolveError reports a failed resolution of a name.
	ResolveError struct {
		Name   string
		Reason error
	}
)

var (
	// ErrNoClosingPercent reports a '%' without a matching '%'.
	ErrNoClosingPercent = errors.New("no closing %")

	// ErrUnresolved reports a name the Resolver does not know.
	ErrUnresolved = errors.New("does not resolve to a value")

	// Env resolves names from the process environment.
	Env Resolver = Func(func(name string) (string, bool, error) {
		value, ok := os.LookupEnv(name)
		return value, ok, nil
	})
)

func (f Func) Resolve(name string) (string, bool, error) {
	return f(name)
}

func (m Map) Resolve(name string) (string, bool, error) {
	if value, ok := m[name]; ok {
		return value, true, nil
	}
	for key, value := range m {
		if strings.EqualFold(key, name) {
			return value, true, nil
		}
	}
	return "", false, nil
}

func (c Chain) Resolve(name string) (string, bool, error) {
	for _, r := range c {
		if r == nil {
			continue
		}
		if value, ok, err := r.Resolve(name); err != nil || ok {
			return value, ok, err
		}
	}
	return "", false, nil
}

func (e *ResolveError) Error() string {
	if errors.Is(e.Reason, ErrUnresolved) {
		return fmt.Sprintf("'%%%s%%' %v", e.Name, e.Reason)
	}
	return fmt.Sprintf("unable to resolve '%%%s%%': %T: %v", e.Name, e.Reason, e.Reason)
}

func (e *ResolveError) Unwrap() error {
	return e.Reason
}

// ResolveWholeString replaces every %name% in input with the value
// supplied by r.  Substituted values are not scanned again.
// A nil Resolver leaves input unchanged.
func ResolveWholeString(r Resolver, input string) (string, error) {
	if r == nil || strings.IndexByte(input, '%') < 0 {
		return input, nil
	}
	var b strings.Builder
	for i := 0; i < len(input); {
		start := strings.IndexByte(input[i:], '%')
		if start < 0 {
			b.WriteString(input[i:])
			break
		}
		start += i
		end := strings.IndexByte(input[start+1:], '%')
		if end < 0 {
			return "", fmt.Errorf("%w in %q at offset %d", ErrNoClosingPercent, input, start)
		}
		end += start + 1
		name := input[start+1 : end]
		value, ok, err := r.Resolve(name)
		if err != nil {
			return "", &ResolveError{name, err}
		}
		if !ok {
			return "", &ResolveError{name, ErrUnresolved}
		}
		b.WriteString(input[i:start])
		b.WriteString(value)
		i = end + 1
	}
	return b.String(), nil
}
