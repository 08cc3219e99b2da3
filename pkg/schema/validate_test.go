package schema

import (
	"encoding/json"
	"testing"
)

func TestParamValidate(t *testing.T) {
	tests := []struct {
		name    string
		param   Param
		value   interface{}
		want    interface{}
		wantErr bool
	}{
		{"int from int", Param{Name: "epoch", Type: TypeInt, Range: "0"}, 5, int64(5), false},
		{"int from integral float", Param{Name: "epoch", Type: TypeInt}, float64(7), int64(7), false},
		{"int from json number", Param{Name: "epoch", Type: TypeInt}, json.Number("12"), int64(12), false},
		{"int rejects fraction", Param{Name: "epoch", Type: TypeInt}, 1.5, nil, true},
		{"int rejects string", Param{Name: "epoch", Type: TypeInt}, "5", nil, true},
		{"int below min", Param{Name: "epoch", Type: TypeInt, Range: "0"}, -1, nil, true},
		{"int above max", Param{Name: "state", Type: TypeInt, Range: "0|20"}, 21, nil, true},
		{"int at max", Param{Name: "state", Type: TypeInt, Range: "0|20"}, 20, int64(20), false},
		{"float in range", Param{Name: "ratio", Type: TypeFloat, Range: "0|1"}, 0.85, 0.85, false},
		{"float above range", Param{Name: "ratio", Type: TypeFloat, Range: "0|1"}, 1.01, nil, true},
		{"float from int", Param{Name: "weight", Type: TypeFloat}, 2, float64(2), false},
		{"bool", Param{Name: "yes", Type: TypeBool}, true, true, false},
		{"bool rejects string", Param{Name: "yes", Type: TypeBool}, "true", nil, true},
		{"string any", Param{Name: "entity", Type: TypeString}, "client.admin", "client.admin", false},
		{"string goodchars ok", Param{Name: "name", Type: TypeString, GoodChars: "A-Za-z0-9-_."}, "rack-1_a.b", "rack-1_a.b", false},
		{"string goodchars bad", Param{Name: "name", Type: TypeString, GoodChars: "A-Za-z0-9-_."}, "rack 1", nil, true},
		{"string goodchars bracketed", Param{Name: "args", Type: TypeString, GoodChars: "[A-Za-z0-9-_.=]"}, "host=node1", "host=node1", false},
		{"choices ok", Param{Name: "op", Type: TypeChoices, Choices: "add|rm"}, "rm", "rm", false},
		{"choices bad", Param{Name: "op", Type: TypeChoices, Choices: "add|rm"}, "del", nil, true},
		{"pgid ok", Param{Name: "pgid", Type: TypePgid}, "1.2f", "1.2f", false},
		{"pgid bad", Param{Name: "pgid", Type: TypePgid}, "1-2f", nil, true},
		{"osdname string", Param{Name: "id", Type: TypeOsdName}, "osd.3", int64(3), false},
		{"osdname bare id", Param{Name: "id", Type: TypeOsdName}, "4", int64(4), false},
		{"osdname number", Param{Name: "id", Type: TypeOsdName}, 9, int64(9), false},
		{"osdname wrong type", Param{Name: "id", Type: TypeOsdName}, "mon.a", nil, true},
		{"osdname negative", Param{Name: "id", Type: TypeOsdName}, -2, nil, true},
		{"name wildcard", Param{Name: "target", Type: TypeName}, "*", "*", false},
		{"name mon", Param{Name: "target", Type: TypeName}, "mon.a", "mon.a", false},
		{"name osd numeric", Param{Name: "target", Type: TypeName}, "osd.12", "osd.12", false},
		{"name osd not numeric", Param{Name: "target", Type: TypeName}, "osd.x", nil, true},
		{"name unknown type", Param{Name: "target", Type: TypeName}, "rgw.a", nil, true},
		{"uuid ok", Param{Name: "uuid", Type: TypeUUID}, "5e3e9a3c-1b4a-4c6a-9a43-6b3c2f1e0d7a", "5e3e9a3c-1b4a-4c6a-9a43-6b3c2f1e0d7a", false},
		{"uuid bad", Param{Name: "uuid", Type: TypeUUID}, "not-a-uuid", nil, true},
		{"ipaddr v4", Param{Name: "addr", Type: TypeIPAddr}, "10.0.0.1", "10.0.0.1", false},
		{"ipaddr v4 port", Param{Name: "addr", Type: TypeIPAddr}, "10.0.0.1:6789", "10.0.0.1:6789", false},
		{"ipaddr v6 port", Param{Name: "addr", Type: TypeIPAddr}, "[::1]:6789", "[::1]:6789", false},
		{"ipaddr v6 bare", Param{Name: "addr", Type: TypeIPAddr}, "fe80::1", "fe80::1", false},
		{"ipaddr bad", Param{Name: "addr", Type: TypeIPAddr}, "10.0.0", nil, true},
		{"ipaddr bad port", Param{Name: "addr", Type: TypeIPAddr}, "10.0.0.1:99999", nil, true},
		{"entityaddr nonce", Param{Name: "addr", Type: TypeEntityAddr}, "10.0.0.1:6800/1234", "10.0.0.1:6800/1234", false},
		{"entityaddr bad nonce", Param{Name: "addr", Type: TypeEntityAddr}, "10.0.0.1:6800/abc", nil, true},
		{"poolname", Param{Name: "pool", Type: TypePoolname}, "rbd", "rbd", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.param.Validate(tt.value)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("schema:validate_test - expected error for %v, got %v", tt.value, got)
				}
				if err.Param != tt.param.Name {
					t.Errorf("schema:validate_test - error param = %q, want %q", err.Param, tt.param.Name)
				}
				return
			}
			if err != nil {
				t.Fatalf("schema:validate_test - unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("schema:validate_test - got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestParamValidate_Repeat(t *testing.T) {
	p := Param{Name: "states", Type: TypeChoices, Choices: "active|clean|stale", Repeat: true}

	got, err := p.Validate([]interface{}{"active", "clean"})
	if err != nil {
		t.Fatalf("schema:validate_test - unexpected error: %v", err)
	}
	list, ok := got.([]interface{})
	if !ok || len(list) != 2 {
		t.Fatalf("schema:validate_test - got %#v, want 2-item list", got)
	}

	got, err = p.Validate("stale")
	if err != nil {
		t.Fatalf("schema:validate_test - scalar for repeat param: %v", err)
	}
	if list, ok := got.([]interface{}); !ok || len(list) != 1 || list[0] != "stale" {
		t.Errorf("schema:validate_test - scalar not wrapped: %#v", got)
	}

	if _, err := p.Validate([]string{"active", "bogus"}); err == nil {
		t.Error("schema:validate_test - expected error for bad list item")
	}
}

func TestValidateArgs_DeclarationOrder(t *testing.T) {
	s := &CommandSchema{
		Name: "pg_ls_by_primary",
		Params: []Param{
			{Name: "osd", Type: TypeOsdName, Required: true},
			{Name: "pool", Type: TypeInt},
			{Name: "states", Type: TypeChoices, Choices: "active|clean", Repeat: true},
		},
	}

	_, err := s.ValidateArgs(map[string]interface{}{"pool": "x", "states": []string{"nope"}})
	if err == nil {
		t.Fatal("schema:validate_test - expected error")
	}
	if err.Param != "osd" {
		t.Errorf("schema:validate_test - first failure = %q, want osd", err.Param)
	}

	_, err = s.ValidateArgs(map[string]interface{}{"osd": "osd.1", "pool": "x", "states": []string{"nope"}})
	if err == nil || err.Param != "pool" {
		t.Errorf("schema:validate_test - first failure = %v, want pool", err)
	}
}

func TestValidateArgs_MissingRequired(t *testing.T) {
	s := &CommandSchema{
		Name:   "osd_find",
		Params: []Param{{Name: "id", Type: TypeInt, Range: "0", Required: true}},
	}
	_, err := s.ValidateArgs(map[string]interface{}{})
	if err == nil {
		t.Fatal("schema:validate_test - expected error for missing required")
	}
	if err.Param != "id" {
		t.Errorf("schema:validate_test - Param = %q, want id", err.Param)
	}
}

func TestValidateArgs_UnknownArgument(t *testing.T) {
	s := &CommandSchema{Name: "osd_tree", Params: []Param{{Name: "epoch", Type: TypeInt}}}
	_, err := s.ValidateArgs(map[string]interface{}{"epoch": 1, "zeta": 1, "alpha": 2})
	if err == nil {
		t.Fatal("schema:validate_test - expected error for undeclared argument")
	}
	if err.Param != "alpha" {
		t.Errorf("schema:validate_test - Param = %q, want alpha (sorted first)", err.Param)
	}
}

func TestValidateArgs_Defaults(t *testing.T) {
	s := &CommandSchema{
		Name: "pg_dump_stuck",
		Params: []Param{
			{Name: "threshold", Type: TypeInt, Default: 300},
			{Name: "stuckops", Type: TypeChoices, Choices: "inactive|unclean", Repeat: true},
		},
	}
	got, err := s.ValidateArgs(nil)
	if err != nil {
		t.Fatalf("schema:validate_test - unexpected error: %v", err)
	}
	if got["threshold"] != int64(300) {
		t.Errorf("schema:validate_test - threshold = %#v, want 300", got["threshold"])
	}
	if _, ok := got["stuckops"]; ok {
		t.Error("schema:validate_test - absent optional without default should be omitted")
	}
}

func TestSchemaCheck(t *testing.T) {
	tests := []struct {
		name    string
		schema  CommandSchema
		wantErr bool
	}{
		{"ok", CommandSchema{Name: "osd_tree", Params: []Param{{Name: "epoch", Type: TypeInt, Range: "0"}}}, false},
		{"no params", CommandSchema{Name: "osd_stat"}, false},
		{"empty name", CommandSchema{Name: " "}, true},
		{"duplicate param", CommandSchema{Name: "x", Params: []Param{{Name: "a", Type: TypeInt}, {Name: "a", Type: TypeInt}}}, true},
		{"unknown type", CommandSchema{Name: "x", Params: []Param{{Name: "a", Type: "CephWidget"}}}, true},
		{"bad range", CommandSchema{Name: "x", Params: []Param{{Name: "a", Type: TypeInt, Range: "a|b"}}}, true},
		{"inverted range", CommandSchema{Name: "x", Params: []Param{{Name: "a", Type: TypeInt, Range: "5|1"}}}, true},
		{"choices without strings", CommandSchema{Name: "x", Params: []Param{{Name: "a", Type: TypeChoices}}}, true},
		{"reserved name", CommandSchema{Name: "x", Params: []Param{{Name: "prefix", Type: TypeString}}}, true},
		{"bad default", CommandSchema{Name: "x", Params: []Param{{Name: "a", Type: TypeInt, Default: "five"}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schema.Check()
			if (err != nil) != tt.wantErr {
				t.Errorf("schema:validate_test - Check() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCharset(t *testing.T) {
	set, err := parseCharset("A-Za-z0-9-_.")
	if err != nil {
		t.Fatalf("schema:validate_test - parseCharset: %v", err)
	}
	for _, r := range "azAZ09-_." {
		if !set.contains(r) {
			t.Errorf("schema:validate_test - expected %q in set", r)
		}
	}
	for _, r := range " =/:" {
		if set.contains(r) {
			t.Errorf("schema:validate_test - did not expect %q in set", r)
		}
	}
	if set, _ := parseCharset(""); set != nil {
		t.Error("schema:validate_test - empty class should be nil")
	}
}

func TestCommandPrefixAndClone(t *testing.T) {
	s := &CommandSchema{Name: "osd_tree", Params: []Param{{Name: "epoch", Type: TypeInt}}}
	if s.CommandPrefix() != "osd_tree" {
		t.Errorf("schema:validate_test - CommandPrefix = %q, want name fallback", s.CommandPrefix())
	}
	s.Prefix = "osd tree"
	if s.CommandPrefix() != "osd tree" {
		t.Errorf("schema:validate_test - CommandPrefix = %q", s.CommandPrefix())
	}

	c := s.Clone()
	c.Params[0].Name = "changed"
	if s.Params[0].Name != "epoch" {
		t.Error("schema:validate_test - Clone shares Params backing array")
	}
}

func TestParamBoundsAndChoices(t *testing.T) {
	p := Param{Name: "n", Type: TypeInt, Range: "0|10"}
	lo, hi := p.Bounds()
	if lo == nil || hi == nil || *lo != 0 || *hi != 10 {
		t.Errorf("schema:validate_test - Bounds() = %v, %v", lo, hi)
	}
	p.Range = "5"
	lo, hi = p.Bounds()
	if lo == nil || *lo != 5 || hi != nil {
		t.Errorf("schema:validate_test - Bounds() min only = %v, %v", lo, hi)
	}

	c := Param{Name: "c", Type: TypeChoices, Choices: "a|b"}
	if got := c.ChoiceList(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("schema:validate_test - ChoiceList() = %v", got)
	}
}
