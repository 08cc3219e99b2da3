package schema

import "testing"

func TestParseArgs(t *testing.T) {
	s := &CommandSchema{
		Name: "osd_crush_add",
		Params: []Param{
			{Name: "id", Type: TypeOsdName, Required: true},
			{Name: "weight", Type: TypeFloat, Range: "0", Required: true},
			{Name: "args", Type: TypeString, GoodChars: "A-Za-z0-9-_.=", Repeat: true, Required: true},
			{Name: "epoch", Type: TypeInt},
			{Name: "force", Type: TypeBool},
		},
	}

	got, err := ParseArgs(s, []string{"id=osd.3", "weight=1.5", "args=host=node1", "args=rack=r1", "epoch=10", "force=true"})
	if err != nil {
		t.Fatalf("schema:parse_test - ParseArgs: %v", err)
	}
	if got["id"] != "osd.3" {
		t.Errorf("schema:parse_test - id = %#v", got["id"])
	}
	if got["weight"] != 1.5 {
		t.Errorf("schema:parse_test - weight = %#v", got["weight"])
	}
	if got["epoch"] != int64(10) {
		t.Errorf("schema:parse_test - epoch = %#v", got["epoch"])
	}
	if got["force"] != true {
		t.Errorf("schema:parse_test - force = %#v", got["force"])
	}
	list, ok := got["args"].([]interface{})
	if !ok || len(list) != 2 || list[0] != "host=node1" || list[1] != "rack=r1" {
		t.Errorf("schema:parse_test - args = %#v", got["args"])
	}

	if _, verr := s.ValidateArgs(got); verr != nil {
		t.Errorf("schema:parse_test - parsed args fail validation: %v", verr)
	}
}

func TestParseArgs_Errors(t *testing.T) {
	s := &CommandSchema{
		Name:   "osd_tree",
		Params: []Param{{Name: "epoch", Type: TypeInt}},
	}
	tests := []struct {
		name  string
		pairs []string
	}{
		{"no equals", []string{"epoch"}},
		{"empty key", []string{"=1"}},
		{"unknown key", []string{"depth=1"}},
		{"not an int", []string{"epoch=ten"}},
		{"duplicate", []string{"epoch=1", "epoch=2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseArgs(s, tt.pairs); err == nil {
				t.Errorf("schema:parse_test - expected error for %v", tt.pairs)
			}
		})
	}
}
