// Package blobpath models a container and blob name pair that may
// still contain {name} placeholders.
package blobpath

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jobhost/bindings/pattern"
)

// Path describes a container and an optional blob name.
// The blob name is flattened for virtual directories.
type Path struct {
	Container string
	Blob      string
}

var (
	ErrInvalidContainerName = errors.New("invalid container name")
	ErrInvalidBlobName      = errors.New("invalid blob name")
)

// New creates a Path from its parts after validating the names.
func New(container, blob string) (Path, error) {
	if err := ValidateContainerName(container); err != nil {
		return Path{}, err
	}
	if blob != "" {
		if err := ValidateBlobName(blob); err != nil {
			return Path{}, err
		}
	}
	return Path{container, blob}, nil
}

// Parse splits "container/blob" at the first '/' and validates both parts.
func Parse(input string) (Path, error) {
	container, blob := Split(input)
	return New(container, blob)
}

// ParsePattern splits a path that may contain placeholders.
// Only the brace structure is validated, since names are checked
// once the placeholders are resolved.
func ParsePattern(input string) (Path, *pattern.Pattern, error) {
	p, err := pattern.Parse(input)
	if err != nil {
		return Path{}, nil, err
	}
	container, blob := Split(input)
	if container == "" {
		return Path{}, nil, fmt.Errorf("%w: path %q has no container", ErrInvalidContainerName, input)
	}
	return Path{container, blob}, p, nil
}

// Split divides input at the first '/'.
func Split(input string) (container, blob string) {
	if i := strings.IndexByte(input, '/'); i >= 0 {
		return input[:i], input[i+1:]
	}
	return input, ""
}

func (p Path) String() string {
	if p.Blob == "" {
		return p.Container
	}
	return p.Container + "/" + p.Blob
}

// Equal compares the string forms ignoring case.
func (p Path) Equal(other Path) bool {
	return strings.EqualFold(p.String(), other.String())
}

// HasParameters reports if the path still contains placeholders.
func (p Path) HasParameters() bool {
	return strings.ContainsRune(p.String(), '{')
}

// ParameterNames returns the placeholder names in order.
func (p Path) ParameterNames() ([]string, error) {
	return pattern.ParameterNames(p.String())
}

// Apply fills in the placeholders and validates the result.
func (p Path) Apply(values pattern.Lookup) (Path, error) {
	resolved, err := pattern.Resolve(p.String(), values)
	if err != nil {
		return Path{}, err
	}
	return Parse(resolved)
}

// Match checks actual against this path using the left-to-right matcher.
// It returns false if actual does not match.
func (p Path) Match(actual Path) (pattern.Values, bool, error) {
	return pattern.MatchForward(p.String(), actual.String())
}

// ValidateContainerName enforces container naming rules.
// The special $root and $logs containers are accepted.
func ValidateContainerName(name string) error {
	if name == "$root" || name == "$logs" {
		return nil
	}
	if len(name) < 3 || len(name) > 63 {
		return fmt.Errorf("%w: %q must be from 3 through 63 characters long",
			ErrInvalidContainerName, name)
	}
	for i, ch := range name {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= '0' && ch <= '9':
		case ch == '-':
			if i == 0 || i == len(name)-1 || name[i-1] == '-' {
				return fmt.Errorf("%w: %q has a misplaced dash",
					ErrInvalidContainerName, name)
			}
		default:
			return fmt.Errorf("%w: %q may contain only lowercase letters, numbers and dashes",
				ErrInvalidContainerName, name)
		}
	}
	return nil
}

// ValidateBlobName enforces blob naming rules.
func ValidateBlobName(name string) error {
	if len(name) < 1 || len(name) > 1024 {
		return fmt.Errorf("%w: %q must be from 1 to 1024 characters long",
			ErrInvalidBlobName, name)
	}
	if i := strings.IndexAny(name, `\[]`); i >= 0 {
		return fmt.Errorf("%w: %q contains the illegal character %q",
			ErrInvalidBlobName, name, name[i])
	}
	if strings.HasSuffix(name, ".") || strings.HasSuffix(name, "/") {
		return fmt.Errorf("%w: %q cannot end with a dot or a slash",
			ErrInvalidBlobName, name)
	}
	return nil
}
