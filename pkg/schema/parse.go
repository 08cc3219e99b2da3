package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseArgs converts "key=value" strings (as typed on a command line) into typed
// arguments for s. Repeat params collect every occurrence into a list; a second
// occurrence of any other param is an error. The result still has to pass ValidateArgs.
func ParseArgs(s *CommandSchema, pairs []string) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("argument %q is not key=value", pair)
		}
		p, ok := s.Param(key)
		if !ok {
			return nil, fmt.Errorf("argument %q: not a parameter of %s", key, s.Name)
		}
		v, err := ParseValue(p, raw)
		if err != nil {
			return nil, err
		}
		if p.Repeat {
			list, _ := out[key].([]interface{})
			out[key] = append(list, v)
			continue
		}
		if _, dup := out[key]; dup {
			return nil, fmt.Errorf("argument %q given more than once", key)
		}
		out[key] = v
	}
	return out, nil
}

// ParseValue converts one textual value to the Go type p validates against.
func ParseValue(p *Param, raw string) (interface{}, error) {
	switch p.Type {
	case TypeInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %q is not an integer", p.Name, raw)
		}
		return n, nil
	case TypeFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %q is not a number", p.Name, raw)
		}
		return f, nil
	case TypeBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %q is not a bool", p.Name, raw)
		}
		return b, nil
	}
	return raw, nil
}
