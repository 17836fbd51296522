package registry

import (
	"strings"
	"testing"
)

func TestBuiltins(t *testing.T) {
	want := []string{"Alert", "Badge", "Button", "Card", "Details", "Figure"}
	got := Builtins()
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, d := range got {
		if d.Name != want[i] {
			t.Errorf("builtin[%d] = %s, want %s", i, d.Name, want[i])
		}
		if !d.Builtin || d.Hash == "" || d.Docs == "" {
			t.Errorf("%s: builtin=%v hash=%q docs=%q", d.Name, d.Builtin, d.Hash, d.Docs)
		}
		if !strings.Contains(d.Code, "export default function "+d.Name) {
			t.Errorf("%s: unexpected code", d.Name)
		}
	}
}

func TestResolve_Base(t *testing.T) {
	defs := map[string]Definition{
		"Hero":  NewDefinition("Hero", "export default () => null"),
		"Other": NewDefinition("Other", "export default () => null"),
	}
	cases := []struct {
		name  string
		allow []string
		ok    bool
		built bool
	}{
		{"Button", nil, true, true},
		{"Button", []string{"Button"}, true, true},
		{"Button", []string{"Hero"}, false, true},
		{"button", nil, false, false},
		{"Hero", nil, false, false},
		{"Hero", []string{"Hero"}, true, false},
		{"Other", []string{"Hero"}, false, false},
		{"Missing", []string{"Missing"}, false, false},
	}
	for _, tc := range cases {
		d, ok := Resolve(tc.name, ModeBase, tc.allow, defs)
		if ok != tc.ok || (ok && d.Builtin != tc.built) {
			t.Errorf("Resolve(%q, %v) = builtin %v, %v; want %v, %v", tc.name, tc.allow, d.Builtin, ok, tc.built, tc.ok)
		}
	}
}

func TestResolve_Custom(t *testing.T) {
	defs := map[string]Definition{"Button": NewDefinition("Button", "custom")}
	d, ok := Resolve("Button", ModeCustom, nil, defs)
	if !ok || d.Builtin || d.Code != "custom" {
		t.Fatalf("custom Button = %+v, %v", d, ok)
	}
	if _, ok := Resolve("Card", ModeCustom, nil, defs); ok {
		t.Error("built-ins must not resolve in custom mode")
	}
}

func TestRegistryNames(t *testing.T) {
	r := New(ModeCustom, nil, map[string]Definition{"B": {}, "A": {}})
	names := r.Names()
	if len(names) != 2 || names[0] != "A" || names[1] != "B" {
		t.Errorf("names = %v", names)
	}
	base := New("", nil, nil)
	if base.Mode() != ModeBase || len(base.Names()) != 6 {
		t.Errorf("base names = %v", base.Names())
	}
}

func TestHashStable(t *testing.T) {
	if Hash("A", "x") != Hash("A", "x") || Hash("A", "x") == Hash("B", "x") {
		t.Error("hash must depend on name and code only")
	}
}
