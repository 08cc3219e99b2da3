// Package schema describes Ceph monitor commands and validates arguments against them.
package schema

// ParamType names a Ceph argument type as it appears in the monitor's command descriptions.
type ParamType string

// Supported Ceph argument types.
const (
	TypeString     ParamType = "CephString"
	TypeInt        ParamType = "CephInt"
	TypeFloat      ParamType = "CephFloat"
	TypeBool       ParamType = "CephBool"
	TypeChoices    ParamType = "CephChoices"
	TypePgid       ParamType = "CephPgid"
	TypeOsdName    ParamType = "CephOsdName"
	TypeName       ParamType = "CephName"
	TypeUUID       ParamType = "CephUUID"
	TypeIPAddr     ParamType = "CephIPAddr"
	TypeEntityAddr ParamType = "CephEntityAddr"
	TypePoolname   ParamType = "CephPoolname"
	TypeObjectname ParamType = "CephObjectname"
)

var knownTypes = map[ParamType]bool{
	TypeString:     true,
	TypeInt:        true,
	TypeFloat:      true,
	TypeBool:       true,
	TypeChoices:    true,
	TypePgid:       true,
	TypeOsdName:    true,
	TypeName:       true,
	TypeUUID:       true,
	TypeIPAddr:     true,
	TypeEntityAddr: true,
	TypePoolname:   true,
	TypeObjectname: true,
}

// IsKnown reports whether t is a supported argument type.
func (t ParamType) IsKnown() bool {
	return knownTypes[t]
}

// CommandSchema is the declared shape of one administrative command.
type CommandSchema struct {
	// Name is the unique registry key (e.g. "osd_tree").
	Name string `json:"name" yaml:"name"`
	// Prefix is the command words sent to the monitor (e.g. "osd tree"). Empty means Name.
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	// Module is the command family: pg, mds, osd, mon, auth, config-key.
	Module string  `json:"module,omitempty" yaml:"module,omitempty"`
	Help   string  `json:"help,omitempty" yaml:"help,omitempty"`
	Params []Param `json:"params" yaml:"params"`
}

// Param describes one command parameter. Params are validated in declaration order.
type Param struct {
	Name     string    `json:"name" yaml:"name"`
	Type     ParamType `json:"type" yaml:"type"`
	Required bool      `json:"req" yaml:"req"`
	// Default is applied when the argument is absent and the param is optional.
	Default interface{} `json:"default,omitempty" yaml:"default,omitempty"`
	// Repeat accepts a list of values (Ceph n=N).
	Repeat bool `json:"repeat,omitempty" yaml:"repeat,omitempty"`
	// Range is "min" or "min|max" for CephInt and CephFloat.
	Range string `json:"range,omitempty" yaml:"range,omitempty"`
	// GoodChars is a character class body such as "A-Za-z0-9-_." for CephString.
	GoodChars string `json:"goodchars,omitempty" yaml:"goodchars,omitempty"`
	// Choices is the "|"-separated list of accepted strings for CephChoices.
	Choices string `json:"strings,omitempty" yaml:"strings,omitempty"`
}

// CommandPrefix returns the words sent as "prefix" to the monitor.
func (s *CommandSchema) CommandPrefix() string {
	if s.Prefix != "" {
		return s.Prefix
	}
	return s.Name
}

// Param returns the parameter with the given name.
func (s *CommandSchema) Param(name string) (*Param, bool) {
	for i := range s.Params {
		if s.Params[i].Name == name {
			return &s.Params[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy of the schema.
func (s *CommandSchema) Clone() *CommandSchema {
	if s == nil {
		return nil
	}
	out := *s
	if s.Params != nil {
		out.Params = make([]Param, len(s.Params))
		copy(out.Params, s.Params)
		for i := range out.Params {
			out.Params[i].Default = cloneValue(out.Params[i].Default)
		}
	}
	return &out
}

// cloneValue copies the lists and maps a decoded JSON or YAML default can hold.
func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case []interface{}:
		out := make([]interface{}, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
