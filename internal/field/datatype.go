package field

// datatype.go converts raw cell text into typed values.
//
// The set of supported types is closed. Each Datatype knows how to parse a
// value and whether parsed values can be ordered for minimum/maximum checks:
//   - string: identity, ordered lexically
//   - integer family: arbitrary precision, literal syntax with base prefixes
//   - float/double: float64
//   - anyURI: absolute http(s) URI, not ordered
//   - boolean: true/1, false/0, not ordered
//   - date/time family: strftime patterns, parsed strictly

import (
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/ncruces/go-strftime"
)

// XSDNamespace prefixes the full IRI form of every datatype name.
const XSDNamespace = "http://www.w3.org/2001/XMLSchema#"

// Datatype is one of the supported value types. The zero value means the
// field declares no type and values are not converted.
type Datatype int

const (
	TypeNone Datatype = iota
	TypeString
	TypeInt
	TypeInteger
	TypeFloat
	TypeDouble
	TypeAnyURI
	TypeBoolean
	TypeNonPositiveInteger
	TypeNegativeInteger
	TypeNonNegativeInteger
	TypePositiveInteger
	TypeDateTime
	TypeDate
	TypeTime
	TypeGYear
	TypeGYearMonth
)

var datatypeNames = []string{
	TypeNone:               "",
	TypeString:             "string",
	TypeInt:                "int",
	TypeInteger:            "integer",
	TypeFloat:              "float",
	TypeDouble:             "double",
	TypeAnyURI:             "anyURI",
	TypeBoolean:            "boolean",
	TypeNonPositiveInteger: "nonPositiveInteger",
	TypeNegativeInteger:    "negativeInteger",
	TypeNonNegativeInteger: "nonNegativeInteger",
	TypePositiveInteger:    "positiveInteger",
	TypeDateTime:           "dateTime",
	TypeDate:               "date",
	TypeTime:               "time",
	TypeGYear:              "gYear",
	TypeGYearMonth:         "gYearMonth",
}

// Default strftime patterns for the date/time family.
var defaultDatePatterns = map[Datatype]string{
	TypeDateTime:   "%Y-%m-%dT%H:%M:%SZ",
	TypeDate:       "%Y-%m-%d",
	TypeTime:       "%H:%M:%S",
	TypeGYear:      "%Y",
	TypeGYearMonth: "%Y-%m",
}

// ErrUnknownDatatype is returned by ParseDatatype for unsupported names.
var ErrUnknownDatatype = errors.New("unknown datatype")

// ParseDatatype resolves a type name. Both the short form ("integer") and
// the XSD IRI form ("http://www.w3.org/2001/XMLSchema#integer") are accepted,
// as is the "xsd:" prefix. An empty name yields TypeNone.
func ParseDatatype(name string) (Datatype, error) {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, XSDNamespace)
	name = strings.TrimPrefix(name, "xsd:")
	for i, n := range datatypeNames {
		if n == name {
			return Datatype(i), nil
		}
	}
	return TypeNone, fmt.Errorf("%w: %q", ErrUnknownDatatype, name)
}

// String returns the short type name.
func (d Datatype) String() string {
	if int(d) >= 0 && int(d) < len(datatypeNames) {
		return datatypeNames[d]
	}
	return "datatype(" + strconv.Itoa(int(d)) + ")"
}

// IRI returns the full XSD IRI, or "" for TypeNone.
func (d Datatype) IRI() string {
	if d == TypeNone {
		return ""
	}
	return XSDNamespace + d.String()
}

// DefaultDatePattern returns the pattern used when a field declares none.
func (d Datatype) DefaultDatePattern() string {
	return defaultDatePatterns[d]
}

// IsDate reports whether d belongs to the date/time family.
func (d Datatype) IsDate() bool {
	_, ok := defaultDatePatterns[d]
	return ok
}

// Parse converts value according to d. datePattern overrides the default
// pattern for date/time types and is ignored otherwise.
func (d Datatype) Parse(value, datePattern string) (any, error) {
	switch d {
	case TypeNone, TypeString:
		return value, nil
	case TypeInt, TypeInteger:
		return parseInteger(value)
	case TypeNonPositiveInteger:
		return parseSignedInteger(value, func(sign int) bool { return sign <= 0 })
	case TypeNegativeInteger:
		return parseSignedInteger(value, func(sign int) bool { return sign < 0 })
	case TypeNonNegativeInteger:
		return parseSignedInteger(value, func(sign int) bool { return sign >= 0 })
	case TypePositiveInteger:
		return parseSignedInteger(value, func(sign int) bool { return sign > 0 })
	case TypeFloat, TypeDouble:
		return parseFloat(value)
	case TypeAnyURI:
		return parseHTTPURI(value)
	case TypeBoolean:
		return parseBoolean(value)
	case TypeDateTime, TypeDate, TypeTime, TypeGYear, TypeGYearMonth:
		if datePattern == "" {
			datePattern = d.DefaultDatePattern()
		}
		return parseDate(value, datePattern)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDatatype, d)
	}
}

// Compare orders two values previously returned by Parse for the same
// datatype. ok is false when the type has no ordering.
func (d Datatype) Compare(a, b any) (cmp int, ok bool) {
	switch x := a.(type) {
	case string:
		y, isStr := b.(string)
		if !isStr {
			return 0, false
		}
		return strings.Compare(x, y), true
	case *big.Int:
		y, isInt := b.(*big.Int)
		if !isInt {
			return 0, false
		}
		return x.Cmp(y), true
	case float64:
		y, isFloat := b.(float64)
		if !isFloat {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case time.Time:
		y, isTime := b.(time.Time)
		if !isTime {
			return 0, false
		}
		return x.Compare(y), true
	}
	return 0, false
}

// parseInteger accepts integer literal syntax: optional sign, base prefixes
// (0x, 0o, 0b, leading 0 for octal) and underscores between digits.
// Surrounding whitespace is ignored.
func parseInteger(value string) (*big.Int, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return nil, errors.New("empty integer")
	}
	n, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", value)
	}
	return n, nil
}

func parseSignedInteger(value string, allowed func(sign int) bool) (*big.Int, error) {
	n, err := parseInteger(value)
	if err != nil {
		return nil, err
	}
	if !allowed(n.Sign()) {
		return nil, fmt.Errorf("integer %s out of range", n)
	}
	return n, nil
}

// parseFloat accepts float literal syntax: decimal with optional fraction
// and exponent, underscores between digits, and 0x hexadecimal integers.
// The inf/nan words strconv would otherwise accept are rejected.
func parseFloat(value string) (float64, error) {
	s := strings.TrimSpace(value)
	unsigned := strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(s, "+"), "-"))
	if strings.HasPrefix(unsigned, "inf") || strings.HasPrefix(unsigned, "nan") {
		return 0, fmt.Errorf("invalid float %q", value)
	}
	hex := strings.HasPrefix(unsigned, "0x")
	digits, ok := stripDigitSeparators(s, hex)
	if !ok {
		return 0, fmt.Errorf("invalid float %q: misplaced underscore", value)
	}
	if hex && !strings.ContainsAny(unsigned, ".p") {
		n, ok := new(big.Int).SetString(digits, 0)
		if !ok {
			return 0, fmt.Errorf("invalid float %q", value)
		}
		f, _ := new(big.Float).SetInt(n).Float64()
		return f, nil
	}
	f, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float %q: %w", value, err)
	}
	return f, nil
}

// stripDigitSeparators removes underscores that sit between two digits.
// Any other underscore makes the literal invalid.
func stripDigitSeparators(s string, hex bool) (string, bool) {
	if !strings.Contains(s, "_") {
		return s, true
	}
	isDigit := func(c byte) bool {
		if '0' <= c && c <= '9' {
			return true
		}
		c |= 0x20
		return hex && 'a' <= c && c <= 'f'
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '_' {
			b.WriteByte(s[i])
			continue
		}
		if i == 0 || i == len(s)-1 || !isDigit(s[i-1]) || !isDigit(s[i+1]) {
			return "", false
		}
	}
	return b.String(), true
}

func parseHTTPURI(value string) (*url.URL, error) {
	u, err := url.Parse(value)
	if err != nil {
		return nil, fmt.Errorf("invalid URI: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("URI %q is not http or https", value)
	}
	return u, nil
}

func parseBoolean(value string) (bool, error) {
	switch value {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", value)
}

// parseDate parses value with a strftime pattern. Leading whitespace and
// unconsumed trailing characters are rejected, and so is any year below
// 1000 so that two-digit years cannot slip through %Y.
func parseDate(value, pattern string) (time.Time, error) {
	if r, _ := utf8.DecodeRuneInString(value); unicode.IsSpace(r) {
		return time.Time{}, errors.New("leading whitespace")
	}
	layout, err := dateLayout(pattern)
	if err != nil {
		return time.Time{}, fmt.Errorf("date pattern %q: %w", pattern, err)
	}
	// time.Parse fails with "extra text" when input is left over.
	t, err := time.Parse(layout, value)
	if err != nil {
		return time.Time{}, err
	}
	if layoutHasYear(layout) && t.Year() < 1000 {
		return time.Time{}, fmt.Errorf("year %d below 1000", t.Year())
	}
	return t, nil
}

// unpadded holds the Go layout elements that parse one or two digits, as
// strptime does for these directives. go-strftime maps them to the fixed
// two-digit forms, which reject "2020-1-5".
var unpadded = map[string]string{
	"%m": "1",
	"%d": "2",
	"%I": "3",
	"%M": "4",
	"%S": "5",
}

// dateLayout converts a strftime pattern into a time.Parse layout one
// directive at a time.
func dateLayout(pattern string) (string, error) {
	var b strings.Builder
	for rest := pattern; rest != ""; {
		chunk := rest
		if i := strings.IndexByte(rest, '%'); i > 0 {
			chunk = rest[:i]
		} else if i == 0 {
			chunk = rest[:directiveEnd(rest)]
		}
		rest = rest[len(chunk):]

		if elem, ok := unpadded[chunk]; ok {
			b.WriteString(elem)
			continue
		}
		layout, err := strftime.Layout(chunk)
		if err != nil {
			return "", err
		}
		b.WriteString(layout)
	}
	return b.String(), nil
}

// directiveEnd returns the length of the directive at the start of s: the
// percent sign, any flags or width, and the conversion character.
func directiveEnd(s string) int {
	i := 1
	for i < len(s) && strings.IndexByte("-_0^#:123456789", s[i]) >= 0 {
		i++
	}
	if i < len(s) {
		i++
	}
	return i
}

func layoutHasYear(layout string) bool {
	return strings.Contains(layout, "2006") || strings.Contains(layout, "06")
}
