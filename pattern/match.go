package pattern

import (
	"strings"
)

type (
	// Lookup supplies parameter values by name.
	Lookup interface {
		Lookup(name string) (string, bool)
	}

	// Values holds captured parameter values.
	// Keys keep the casing used in the pattern but lookups
	// are case-insensitive.
	Values map[string]string
)

// Lookup finds the value of name ignoring case.
func (v Values) Lookup(name string) (string, bool) {
	if value, ok := v[name]; ok {
		return value, true
	}
	for key, value := range v {
		if strings.EqualFold(key, name) {
			return value, true
		}
	}
	return "", false
}

// Equal reports if both contain the same names and values.
// Names are compared ignoring case.
func (v Values) Equal(other Values) bool {
	if len(v) != len(other) {
		return false
	}
	for key, value := range v {
		if ov, ok := other.Lookup(key); !ok || ov != value {
			return false
		}
	}
	return true
}

// MatchReverse matches actual against pattern scanning from the end of
// both strings.  A placeholder at the start of the blob part captures
// everything left, so the tail of the string is favored.
// It returns false without an error when actual does not match.
func MatchReverse(pattern, actual string) (Values, bool, error) {
	containerPattern, blobPattern, hasBlob := split(pattern)
	containerActual, blobActual, _ := split(actual)

	if !strings.EqualFold(containerPattern, containerActual) {
		return nil, false, nil
	}
	if !hasBlob {
		return Values{}, true, nil
	}

	values := Values{}
	iPattern, iActual := len(blobPattern)-1, len(blobActual)-1
	for iActual >= 0 && iPattern >= 0 {
		ch := blobPattern[iPattern]
		if ch != '}' {
			if ch != blobActual[iActual] {
				return nil, false, nil
			}
			iPattern--
			iActual--
			continue
		}
		iStart := strings.LastIndexByte(blobPattern[:iPattern], '{')
		if iStart < 0 {
			return nil, false, &ParseError{pattern, len(containerPattern) + 1 + iPattern,
				ErrMissingOpeningBracket.Error()}
		}
		name := blobPattern[iStart+1 : iPattern]
		if iStart == 0 {
			values[name] = blobActual[:iActual+1]
			return values, true, nil
		}
		delim := blobPattern[iStart-1]
		iActualStart := strings.LastIndexByte(blobActual[:iActual+1], delim)
		if iActualStart < 0 {
			return nil, false, nil
		}
		values[name] = blobActual[iActualStart+1 : iActual+1]
		iPattern = iStart - 1
		iActual = iActualStart
	}
	if iActual == iPattern {
		return values, true, nil
	}
	return nil, false, nil
}

// MatchForward matches actual against pattern scanning from the start of
// both strings.  A placeholder captures up to the first occurrence of the
// literal following it.  When the pattern ends with a three letter
// extension that actual also ends with, the extension is removed first so
// "{name}.csv" captures "a.b" from "a.b.csv".
// It returns false without an error when actual does not match.
func MatchForward(pattern, actual string) (Values, bool, error) {
	containerPattern, blobPattern, hasBlob := split(pattern)
	containerActual, blobActual, hasActualBlob := split(actual)

	if !strings.EqualFold(containerPattern, containerActual) {
		return nil, false, nil
	}
	if !hasBlob {
		return Values{}, true, nil
	}
	if !hasActualBlob {
		return nil, false, nil
	}

	if len(pattern) > 4 && len(actual) > 4 {
		if ext := pattern[len(pattern)-4:]; ext[0] == '.' &&
			strings.EqualFold(actual[len(actual)-4:], ext) {
			return MatchForward(pattern[:len(pattern)-4], actual[:len(actual)-4])
		}
	}

	values := Values{}
	iPattern, iActual := 0, 0
	for {
		if iActual == len(blobActual) && iPattern == len(blobPattern) {
			return values, true, nil
		}
		if iActual == len(blobActual) || iPattern == len(blobPattern) {
			return nil, false, nil
		}
		ch := blobPattern[iPattern]
		if ch != '{' {
			if ch != blobActual[iActual] {
				return nil, false, nil
			}
			iPattern++
			iActual++
			continue
		}
		end := strings.IndexByte(blobPattern[iPattern:], '}')
		if end < 0 {
			return nil, false, &ParseError{pattern, len(containerPattern) + 1 + iPattern,
				ErrMissingClosingBracket.Error()}
		}
		iEnd := iPattern + end
		name := blobPattern[iPattern+1 : iEnd]
		if iEnd+1 == len(blobPattern) {
			values[name] = blobActual[iActual:]
			return values, true, nil
		}
		delim := blobPattern[iEnd+1]
		next := strings.IndexByte(blobActual[iActual:], delim)
		if next < 0 {
			return nil, false, nil
		}
		values[name] = blobActual[iActual : iActual+next]
		iPattern = iEnd + 1
		iActual += next
	}
}

// split divides a path at the first '/' into container and blob.
func split(path string) (container, blob string, hasBlob bool) {
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i], path[i+1:], true
	}
	return path, "", false
}

func lookup(values Lookup, name string) (string, bool) {
	if values == nil {
		return "", false
	}
	return values.Lookup(name)
}
