// Package report turns unreported listings into filtered, rendered
// notification emails and marks them reported once delivery succeeds.
package report

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/martroben/apartmentbot/models"
)

type Comparator string

const (
	Lt Comparator = "<"
	Le Comparator = "<="
	Gt Comparator = ">"
	Ge Comparator = ">="
	Eq Comparator = "=="
	Ne Comparator = "!="
)

// Predicate is one parsed filter condition like "price <= 300000". The
// right-hand literal stays a string until evaluation, when it is typed
// against the listing field it compares to.
type Predicate struct {
	Field      string
	Comparator Comparator
	Value      string
}

func (p Predicate) String() string {
	return fmt.Sprintf("%s %s %s", p.Field, p.Comparator, p.Value)
}

var predicateRe = regexp.MustCompile(`^(\w+)\s*([<>!=]+)\s*(.+)$`)

func ParsePredicate(condition string) (Predicate, error) {
	m := predicateRe.FindStringSubmatch(strings.TrimSpace(condition))
	if m == nil {
		return Predicate{}, fmt.Errorf("unparseable condition %q", condition)
	}
	cmp := Comparator(m[2])
	switch cmp {
	case Lt, Le, Gt, Ge, Eq, Ne:
	default:
		return Predicate{}, fmt.Errorf("unknown comparator %q in condition %q", m[2], condition)
	}
	return Predicate{Field: m[1], Comparator: cmp, Value: strings.TrimSpace(m[3])}, nil
}

// LoadPredicates reads filter conditions from a file: comma or newline
// separated, # starts a comment. A missing file means no filtering.
func LoadPredicates(path string) ([]Predicate, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var predicates []Predicate
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		for _, part := range strings.Split(strings.Trim(line, ","), ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			p, err := ParsePredicate(part)
			if err != nil {
				return nil, err
			}
			predicates = append(predicates, p)
		}
	}
	return predicates, nil
}

// Eval applies the predicate to the listing. The literal is coerced to the
// field's declared type; a field the listing does not declare or a literal
// that does not fit the type is an error, not a non-match.
func (p Predicate) Eval(l *models.Listing) (bool, error) {
	fieldValue, err := l.Value(p.Field)
	if err != nil {
		return false, err
	}

	switch v := fieldValue.(type) {
	case string:
		lhs := strings.Trim(v, ` .'"`)
		rhs := strings.Trim(p.Value, ` .'"`)
		return p.compare(strings.Compare(lhs, rhs))
	case int:
		rhs, err := strconv.Atoi(strings.Trim(p.Value, ` .'"`))
		if err != nil {
			return false, fmt.Errorf("condition %q: %q is not an integer", p, p.Value)
		}
		switch {
		case v < rhs:
			return p.compare(-1)
		case v > rhs:
			return p.compare(1)
		default:
			return p.compare(0)
		}
	case float64:
		rhs, err := strconv.ParseFloat(strings.Trim(p.Value, ` .'"`), 64)
		if err != nil {
			return false, fmt.Errorf("condition %q: %q is not a number", p, p.Value)
		}
		switch {
		case v < rhs:
			return p.compare(-1)
		case v > rhs:
			return p.compare(1)
		default:
			return p.compare(0)
		}
	case bool:
		rhs, err := parseBoolLiteral(p.Value)
		if err != nil {
			return false, fmt.Errorf("condition %q: %w", p, err)
		}
		switch p.Comparator {
		case Eq:
			return v == rhs, nil
		case Ne:
			return v != rhs, nil
		default:
			return false, fmt.Errorf("condition %q: comparator %s not supported for boolean fields", p, p.Comparator)
		}
	default:
		return false, fmt.Errorf("condition %q: unsupported field type %T", p, fieldValue)
	}
}

func (p Predicate) compare(cmp int) (bool, error) {
	switch p.Comparator {
	case Lt:
		return cmp < 0, nil
	case Le:
		return cmp <= 0, nil
	case Gt:
		return cmp > 0, nil
	case Ge:
		return cmp >= 0, nil
	case Eq:
		return cmp == 0, nil
	case Ne:
		return cmp != 0, nil
	default:
		return false, fmt.Errorf("unknown comparator %q", p.Comparator)
	}
}

func parseBoolLiteral(s string) (bool, error) {
	switch strings.ToLower(strings.Trim(s, ` .'"`)) {
	case "1", "true":
		return true, nil
	case "0", "false":
		return false, nil
	default:
		return false, fmt.Errorf("%q is not a boolean literal", s)
	}
}

// EvalAll reports whether the listing satisfies every predicate.
func EvalAll(l *models.Listing, predicates []Predicate) (bool, error) {
	for _, p := range predicates {
		ok, err := p.Eval(l)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
