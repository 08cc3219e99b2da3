package catalog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/morezero/cephapi/pkg/schema"
)

const descLogPrefix = "catalog:descriptions"

// descEntry is one value of the monitor's get_command_descriptions map.
type descEntry struct {
	Sig    []json.RawMessage `json:"sig"`
	Help   string            `json:"help"`
	Module string            `json:"module"`
}

type descArg struct {
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Prefix    string          `json:"prefix"`
	N         json.RawMessage `json:"n"`
	Req       json.RawMessage `json:"req"`
	Range     string          `json:"range"`
	GoodChars string          `json:"goodchars"`
	Strings   string          `json:"strings"`
}

// FromDescriptions builds a catalog from the JSON a monitor returns for
// {"prefix": "get_command_descriptions"}. Command names are the prefix words
// joined by "_" with dashes folded; repeated prefixes get a numeric suffix.
func FromDescriptions(release string, data []byte) (*Catalog, error) {
	var raw map[string]descEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%s - decode descriptions: %w", descLogPrefix, err)
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cat := &Catalog{Release: release}
	names := make(map[string]bool, len(keys))
	for _, k := range keys {
		s, err := descToSchema(raw[k])
		if err != nil {
			return nil, fmt.Errorf("%s - %s: %w", descLogPrefix, k, err)
		}
		base := s.Name
		for n := 2; names[s.Name]; n++ {
			s.Name = fmt.Sprintf("%s_%d", base, n)
		}
		names[s.Name] = true
		cat.Commands = append(cat.Commands, *s)
	}

	if err := cat.Check(); err != nil {
		return nil, err
	}
	return cat, nil
}

func descToSchema(e descEntry) (*schema.CommandSchema, error) {
	var words []string
	var params []schema.Param
	for _, item := range e.Sig {
		var word string
		if err := json.Unmarshal(item, &word); err == nil {
			words = append(words, word)
			continue
		}
		var a descArg
		if err := json.Unmarshal(item, &a); err != nil {
			return nil, fmt.Errorf("sig element %s: %w", string(item), err)
		}
		if a.Type == "CephPrefix" {
			words = append(words, a.Prefix)
			continue
		}
		p := schema.Param{
			Name:      a.Name,
			Type:      schema.ParamType(a.Type),
			Required:  flag(a.Req, true),
			Repeat:    repeatFlag(a.N),
			Range:     a.Range,
			GoodChars: a.GoodChars,
			Choices:   a.Strings,
		}
		if !p.Type.IsKnown() {
			slog.Warn(fmt.Sprintf("%s - %s: param %s has unsupported type %s, treating as string", descLogPrefix, strings.Join(words, " "), a.Name, a.Type))
			p.Type = schema.TypeString
			p.GoodChars = ""
		}
		params = append(params, p)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("signature has no prefix words")
	}

	prefix := strings.Join(words, " ")
	return &schema.CommandSchema{
		Name:   strings.NewReplacer(" ", "_", "-", "_").Replace(prefix),
		Prefix: prefix,
		Module: e.Module,
		Help:   e.Help,
		Params: params,
	}, nil
}

// flag reads a boolean that Ceph may encode as a JSON bool or as "true"/"false".
func flag(raw json.RawMessage, def bool) bool {
	if len(raw) == 0 {
		return def
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseBool(s); err == nil {
			return v
		}
	}
	return def
}

// repeatFlag reports whether n allows more than one value ("N" or a count above one).
func repeatFlag(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "N" {
			return true
		}
		n, err := strconv.Atoi(s)
		return err == nil && n > 1
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n > 1
	}
	return false
}
