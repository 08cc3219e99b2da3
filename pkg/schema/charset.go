package schema

import "fmt"

// charset is a parsed CephString goodchars class.
type charset struct {
	runes  map[rune]bool
	ranges [][2]rune
}

func (c *charset) contains(r rune) bool {
	if c.runes[r] {
		return true
	}
	for _, rg := range c.ranges {
		if r >= rg[0] && r <= rg[1] {
			return true
		}
	}
	return false
}

// parseCharset parses a character class body such as "A-Za-z0-9-_." with optional
// surrounding brackets. A dash forms a range only between two letters of the same
// case or two digits; otherwise it is literal, so "9-_" means '9', '-', '_'.
// Returns nil for an empty class (any character allowed).
func parseCharset(body string) (*charset, error) {
	if len(body) >= 2 && body[0] == '[' && body[len(body)-1] == ']' {
		body = body[1 : len(body)-1]
	}
	if body == "" {
		return nil, nil
	}
	rs := []rune(body)
	c := &charset{runes: make(map[rune]bool)}
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		if r == '\\' {
			if i+1 >= len(rs) {
				return nil, fmt.Errorf("goodchars %q ends with an escape", body)
			}
			i++
			c.runes[rs[i]] = true
			continue
		}
		if i+2 < len(rs) && rs[i+1] == '-' && sameClass(r, rs[i+2]) {
			if r > rs[i+2] {
				return nil, fmt.Errorf("goodchars %q has reversed range %c-%c", body, r, rs[i+2])
			}
			c.ranges = append(c.ranges, [2]rune{r, rs[i+2]})
			i += 2
			continue
		}
		c.runes[r] = true
	}
	return c, nil
}

func sameClass(a, b rune) bool {
	switch {
	case a >= 'a' && a <= 'z':
		return b >= 'a' && b <= 'z'
	case a >= 'A' && a <= 'Z':
		return b >= 'A' && b <= 'Z'
	case a >= '0' && a <= '9':
		return b >= '0' && b <= '9'
	}
	return false
}
