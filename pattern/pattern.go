// Package pattern parses and matches route-style path templates such as
// "container/{name}.csv".
package pattern

import (
	"errors"
	"fmt"
	"strings"
)

type (
	// Token is a single element of a Pattern.
	// A Token is either literal text or a named parameter.
	Token struct {
		Text      string
		Parameter bool
	}

	// Pattern is an immutable sequence of Tokens parsed from a template.
	// A Pattern may be shared across goroutines.
	Pattern struct {
		template string
		tokens   []Token
	}

	// ParseError reports a malformed template.
	ParseError struct {
		Template string
		Offset   int
		Reason   string
	}

	// MissingValueError reports a parameter without a supplied value.
	MissingValueError struct {
		Name string
	}
)

var (
	// ErrMissingClosingBracket reports a '{' without a matching '}'.
	ErrMissingClosingBracket = errors.New("missing closing bracket")

	// ErrMissingOpeningBracket reports a '}' without a matching '{'.
	ErrMissingOpeningBracket = errors.New("missing opening bracket")
)

func (e *ParseError) Error() string {
	return fmt.Sprintf("pattern %q is not well formed at offset %d: %s",
		e.Template, e.Offset, e.Reason)
}

func (e *ParseError) Unwrap() error {
	switch e.Reason {
	case ErrMissingClosingBracket.Error():
		return ErrMissingClosingBracket
	case ErrMissingOpeningBracket.Error():
		return ErrMissingOpeningBracket
	}
	return nil
}

func (e *MissingValueError) Error() string {
	return fmt.Sprintf("no value for name parameter '%s'", e.Name)
}

// Literal creates a literal Token.
func Literal(text string) Token {
	return Token{Text: text}
}

// Parameter creates a named parameter Token.
func Parameter(name string) Token {
	return Token{Text: name, Parameter: true}
}

func (t Token) String() string {
	if t.Parameter {
		return "{" + t.Text + "}"
	}
	return t.Text
}

// Parse tokenizes a template into a Pattern.
func Parse(template string) (*Pattern, error) {
	var (
		tokens  []Token
		literal strings.Builder
	)
	flush := func() {
		if literal.Len() > 0 {
			tokens = append(tokens, Literal(literal.String()))
			literal.Reset()
		}
	}
	for i := 0; i < len(template); i++ {
		switch ch := template[i]; ch {
		case '{':
			end := strings.IndexByte(template[i+1:], '}')
			if end < 0 {
				return nil, &ParseError{template, i, ErrMissingClosingBracket.Error()}
			}
			name := template[i+1 : i+1+end]
			if name == "" {
				return nil, &ParseError{template, i, "empty parameter name"}
			}
			if nested := strings.IndexByte(name, '{'); nested >= 0 {
				return nil, &ParseError{template, i + 1 + nested, "nested parameter"}
			}
			flush()
			tokens = append(tokens, Parameter(name))
			i += end + 1
		case '}':
			return nil, &ParseError{template, i, ErrMissingOpeningBracket.Error()}
		default:
			literal.WriteByte(ch)
		}
	}
	flush()
	return &Pattern{template, tokens}, nil
}

// MustParse is like Parse but panics if the template is malformed.
func MustParse(template string) *Pattern {
	p, err := Parse(template)
	if err != nil {
		panic(err)
	}
	return p
}

// New builds a Pattern from tokens.
func New(tokens ...Token) *Pattern {
	var b strings.Builder
	for _, t := range tokens {
		b.WriteString(t.String())
	}
	return &Pattern{b.String(), append([]Token(nil), tokens...)}
}

func (p *Pattern) String() string {
	return p.template
}

// Tokens returns a copy of the tokens.
func (p *Pattern) Tokens() []Token {
	return append([]Token(nil), p.tokens...)
}

// ParameterNames returns the parameter names in left-to-right order.
func (p *Pattern) ParameterNames() []string {
	var names []string
	for _, t := range p.tokens {
		if t.Parameter {
			names = append(names, t.Text)
		}
	}
	return names
}

// HasParameters reports if any parameter tokens exist.
func (p *Pattern) HasParameters() bool {
	for _, t := range p.tokens {
		if t.Parameter {
			return true
		}
	}
	return false
}

// Resolve substitutes every parameter with its value.
func (p *Pattern) Resolve(values Lookup) (string, error) {
	var b strings.Builder
	for _, t := range p.tokens {
		if !t.Parameter {
			b.WriteString(t.Text)
			continue
		}
		value, ok := lookup(values, t.Text)
		if !ok {
			return "", &MissingValueError{t.Text}
		}
		b.WriteString(value)
	}
	return b.String(), nil
}

// Match matches actual using the right-to-left scan.
func (p *Pattern) Match(actual string) (Values, bool) {
	values, ok, _ := MatchReverse(p.template, actual)
	return values, ok
}

// MatchForward matches actual using the left-to-right scan.
func (p *Pattern) MatchForward(actual string) (Values, bool) {
	values, ok, _ := MatchForward(p.template, actual)
	return values, ok
}

// ParameterNames collects the parameter names of a raw template.
func ParameterNames(template string) ([]string, error) {
	var names []string
	for i := 0; i < len(template); {
		if template[i] != '{' {
			i++
			continue
		}
		end := strings.IndexByte(template[i:], '}')
		if end < 0 {
			return nil, &ParseError{template, i, ErrMissingClosingBracket.Error()}
		}
		names = append(names, template[i+1:i+end])
		i += end + 1
	}
	return names, nil
}

// Resolve substitutes every {name} in template with its value.
// A '{' without a closing '}' or a name without a value fails.
func Resolve(template string, values Lookup) (string, error) {
	var b strings.Builder
	for i := 0; i < len(template); {
		ch := template[i]
		if ch != '{' {
			b.WriteByte(ch)
			i++
			continue
		}
		end := strings.IndexByte(template[i:], '}')
		if end < 0 {
			return "", &ParseError{template, i, ErrMissingClosingBracket.Error()}
		}
		name := template[i+1 : i+end]
		value, ok := lookup(values, name)
		if !ok {
			return "", &MissingValueError{name}
		}
		b.WriteString(value)
		i += end + 1
	}
	return b.String(), nil
}
