package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"net"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

var (
	pgidRegex  = regexp.MustCompile(`^\d+\.[0-9a-fA-F]+$`)
	entityKind = map[string]bool{"mon": true, "osd": true, "mds": true, "client": true}
)

// ArgError reports the first argument that failed validation.
type ArgError struct {
	Param  string
	Reason string
}

func (e *ArgError) Error() string {
	return fmt.Sprintf("argument %q: %s", e.Param, e.Reason)
}

func argErr(param, format string, a ...interface{}) *ArgError {
	return &ArgError{Param: param, Reason: fmt.Sprintf(format, a...)}
}

// Check verifies the schema definition itself: a name, unique param names,
// known param types, and parseable constraints.
func (s *CommandSchema) Check() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("command name is required")
	}
	seen := make(map[string]bool, len(s.Params))
	for i := range s.Params {
		p := &s.Params[i]
		if p.Name == "" {
			return fmt.Errorf("command %s: param %d has no name", s.Name, i)
		}
		if p.Name == "prefix" || p.Name == "format" {
			return fmt.Errorf("command %s: param name %q is reserved", s.Name, p.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("command %s: duplicate param %q", s.Name, p.Name)
		}
		seen[p.Name] = true
		if err := p.Check(); err != nil {
			return fmt.Errorf("command %s: %w", s.Name, err)
		}
	}
	return nil
}

// Check verifies the param's type and constraint syntax.
func (p *Param) Check() error {
	if !p.Type.IsKnown() {
		return fmt.Errorf("param %s: unknown type %q", p.Name, p.Type)
	}
	if _, _, err := parseRange(p.Range); err != nil {
		return fmt.Errorf("param %s: %w", p.Name, err)
	}
	if _, err := parseCharset(p.GoodChars); err != nil {
		return fmt.Errorf("param %s: %w", p.Name, err)
	}
	if p.Type == TypeChoices && len(p.choices()) == 0 {
		return fmt.Errorf("param %s: CephChoices requires strings", p.Name)
	}
	if p.Default != nil && !p.Required {
		if _, err := p.Validate(p.Default); err != nil {
			return fmt.Errorf("param %s: invalid default: %w", p.Name, err)
		}
	}
	return nil
}

func (p *Param) choices() []string {
	if p.Choices == "" {
		return nil
	}
	return strings.Split(p.Choices, "|")
}

// ValidateArgs checks args against the schema in declaration order and returns the
// normalized arguments, with defaults applied. Arguments the schema does not declare
// are rejected after every declared param has passed.
func (s *CommandSchema) ValidateArgs(args map[string]interface{}) (map[string]interface{}, *ArgError) {
	out := make(map[string]interface{}, len(s.Params))
	for i := range s.Params {
		p := &s.Params[i]
		v, ok := args[p.Name]
		if !ok || v == nil {
			if p.Required {
				return nil, argErr(p.Name, "required argument is missing")
			}
			if p.Default != nil {
				norm, err := p.Validate(p.Default)
				if err != nil {
					return nil, err
				}
				out[p.Name] = norm
			}
			continue
		}
		norm, err := p.Validate(v)
		if err != nil {
			return nil, err
		}
		out[p.Name] = norm
	}

	var extra []string
	for name := range args {
		if _, ok := s.Param(name); !ok {
			extra = append(extra, name)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return nil, argErr(extra[0], "not a parameter of %s", s.Name)
	}
	return out, nil
}

// Validate checks a single value (or list of values for repeat params) and returns
// its normalized form.
func (p *Param) Validate(v interface{}) (interface{}, *ArgError) {
	if !p.Repeat {
		return p.validateOne(v)
	}
	items, isList := asList(v)
	if !isList {
		items = []interface{}{v}
	}
	if len(items) == 0 && p.Required {
		return nil, argErr(p.Name, "at least one value is required")
	}
	out := make([]interface{}, 0, len(items))
	for i, item := range items {
		norm, err := p.validateOne(item)
		if err != nil {
			err.Reason = fmt.Sprintf("item %d: %s", i, err.Reason)
			return nil, err
		}
		out = append(out, norm)
	}
	return out, nil
}

func (p *Param) validateOne(v interface{}) (interface{}, *ArgError) {
	switch p.Type {
	case TypeInt:
		n, ok := asInt(v)
		if !ok {
			return nil, argErr(p.Name, "expected integer, got %T", v)
		}
		if err := p.checkRange(float64(n)); err != nil {
			return nil, err
		}
		return n, nil
	case TypeFloat:
		f, ok := asFloat(v)
		if !ok {
			return nil, argErr(p.Name, "expected number, got %T", v)
		}
		if err := p.checkRange(f); err != nil {
			return nil, err
		}
		return f, nil
	case TypeBool:
		b, ok := v.(bool)
		if !ok {
			return nil, argErr(p.Name, "expected bool, got %T", v)
		}
		return b, nil
	case TypeOsdName:
		return p.validateOsdName(v)
	}

	s, ok := v.(string)
	if !ok {
		return nil, argErr(p.Name, "expected string, got %T", v)
	}
	switch p.Type {
	case TypeString:
		set, _ := parseCharset(p.GoodChars)
		if set != nil {
			for _, r := range s {
				if !set.contains(r) {
					return nil, argErr(p.Name, "character %q not in [%s]", r, p.GoodChars)
				}
			}
		}
	case TypeChoices:
		for _, c := range p.choices() {
			if s == c {
				return s, nil
			}
		}
		return nil, argErr(p.Name, "%q is not one of %s", s, p.Choices)
	case TypePgid:
		if !pgidRegex.MatchString(s) {
			return nil, argErr(p.Name, "%q is not a pgid (<pool>.<seed>)", s)
		}
	case TypeName:
		if err := checkEntityName(s); err != "" {
			return nil, argErr(p.Name, "%s", err)
		}
	case TypeUUID:
		if _, err := uuid.Parse(s); err != nil {
			return nil, argErr(p.Name, "%q is not a uuid: %v", s, err)
		}
	case TypeIPAddr:
		if err := checkIPAddr(s); err != "" {
			return nil, argErr(p.Name, "%s", err)
		}
	case TypeEntityAddr:
		addr := s
		if i := strings.LastIndex(s, "/"); i >= 0 {
			addr = s[:i]
			if _, err := strconv.ParseUint(s[i+1:], 10, 64); err != nil {
				return nil, argErr(p.Name, "nonce %q is not a non-negative integer", s[i+1:])
			}
		}
		if err := checkIPAddr(addr); err != "" {
			return nil, argErr(p.Name, "%s", err)
		}
	}
	return s, nil
}

// validateOsdName accepts "osd.<n>" or a non-negative integer and returns the id.
func (p *Param) validateOsdName(v interface{}) (interface{}, *ArgError) {
	if n, ok := asInt(v); ok {
		if n < 0 {
			return nil, argErr(p.Name, "osd id %d is negative", n)
		}
		return n, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, argErr(p.Name, "expected osd name, got %T", v)
	}
	id := s
	if i := strings.Index(s, "."); i >= 0 {
		if s[:i] != "osd" {
			return nil, argErr(p.Name, "%q is not an osd name", s)
		}
		id = s[i+1:]
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n < 0 {
		return nil, argErr(p.Name, "%q is not an osd name (osd.<id>)", s)
	}
	return n, nil
}

func (p *Param) checkRange(f float64) *ArgError {
	lo, hi, _ := parseRange(p.Range)
	if lo != nil && f < *lo {
		return argErr(p.Name, "%v is less than minimum %v", f, *lo)
	}
	if hi != nil && f > *hi {
		return argErr(p.Name, "%v is greater than maximum %v", f, *hi)
	}
	return nil
}

// Bounds returns the parsed Range; nil means unbounded on that side.
func (p *Param) Bounds() (lo, hi *float64) {
	lo, hi, _ = parseRange(p.Range)
	return lo, hi
}

// ChoiceList returns the accepted strings of a CephChoices param.
func (p *Param) ChoiceList() []string {
	return p.choices()
}

// parseRange parses "min" or "min|max"; either side may be empty.
func parseRange(r string) (lo, hi *float64, err error) {
	if r == "" {
		return nil, nil, nil
	}
	parts := strings.Split(r, "|")
	if len(parts) > 2 {
		return nil, nil, fmt.Errorf("range %q has more than two bounds", r)
	}
	bound := func(s string) (*float64, error) {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("range bound %q is not a number", s)
		}
		return &f, nil
	}
	if lo, err = bound(parts[0]); err != nil {
		return nil, nil, err
	}
	if len(parts) == 2 {
		if hi, err = bound(parts[1]); err != nil {
			return nil, nil, err
		}
	}
	if lo != nil && hi != nil && *lo > *hi {
		return nil, nil, fmt.Errorf("range %q has min above max", r)
	}
	return lo, hi, nil
}

func checkEntityName(s string) string {
	if s == "*" {
		return ""
	}
	i := strings.Index(s, ".")
	if i <= 0 || i == len(s)-1 {
		return fmt.Sprintf("%q is not an entity name (<type>.<id>)", s)
	}
	kind, id := s[:i], s[i+1:]
	if !entityKind[kind] {
		return fmt.Sprintf("%q has unknown entity type %q", s, kind)
	}
	if kind == "osd" && id != "*" {
		if n, err := strconv.ParseInt(id, 10, 64); err != nil || n < 0 {
			return fmt.Sprintf("%q has non-numeric osd id", s)
		}
	}
	return ""
}

func checkIPAddr(s string) string {
	host := s
	switch {
	case strings.HasPrefix(s, "["):
		h, port, err := net.SplitHostPort(s)
		if err != nil {
			return fmt.Sprintf("%q is not an address: %v", s, err)
		}
		if !validPort(port) {
			return fmt.Sprintf("%q has invalid port", s)
		}
		host = h
	case strings.Count(s, ":") == 1:
		h, port, err := net.SplitHostPort(s)
		if err != nil {
			return fmt.Sprintf("%q is not an address: %v", s, err)
		}
		if !validPort(port) {
			return fmt.Sprintf("%q has invalid port", s)
		}
		host = h
	}
	if net.ParseIP(host) == nil {
		return fmt.Sprintf("%q is not an IP address", s)
	}
	return ""
}

func validPort(s string) bool {
	_, err := strconv.ParseUint(s, 10, 16)
	return err == nil
}

func asList(v interface{}) ([]interface{}, bool) {
	switch l := v.(type) {
	case []interface{}:
		return l, true
	case []string:
		out := make([]interface{}, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	case []int:
		out := make([]interface{}, len(l))
		for i, n := range l {
			out[i] = n
		}
		return out, true
	case []int64:
		out := make([]interface{}, len(l))
		for i, n := range l {
			out[i] = n
		}
		return out, true
	case []float64:
		out := make([]interface{}, len(l))
		for i, n := range l {
			out[i] = n
		}
		return out, true
	}
	return nil, false
}

func asInt(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), uint64(n) <= math.MaxInt64
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), n <= math.MaxInt64
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return floatToInt(f)
		}
	}
	return 0, false
}

func floatToInt(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	if i, ok := asInt(v); ok {
		return float64(i), true
	}
	return 0, false
}
