// Package registry resolves component names to definitions: the embedded
// built-in set in base mode, request-supplied definitions in custom mode.
package registry

import (
	"embed"
	"io/fs"
	"path"
	"slices"
	"strings"

	"github.com/starford/mdxengine/internal/checksum"
)

// Mode selects where component names are looked up.
type Mode string

const (
	ModeBase   Mode = "base"
	ModeCustom Mode = "custom"
)

// Fragment is the structural component whose children are spliced in place.
const Fragment = "Fragment"

// Definition is an executable component.
type Definition struct {
	Name    string `json:"name"`
	Code    string `json:"code,omitempty"`
	Docs    string `json:"docs,omitempty"`
	Args    any    `json:"args,omitempty"`
	Builtin bool   `json:"builtin"`
	// Hash identifies the compiled artifact; equal code yields equal hashes.
	Hash string `json:"-"`
}

// NewDefinition returns a definition with its content hash filled in.
func NewDefinition(name, code string) Definition {
	return Definition{Name: name, Code: code, Hash: Hash(name, code)}
}

// Hash returns the content hash for a component.
func Hash(name, code string) string {
	return checksum.Sum([]byte(name + "\x00" + code))
}

//go:embed builtin/*.jsx
var builtinFS embed.FS

var builtins = loadBuiltins()

func loadBuiltins() map[string]Definition {
	out := make(map[string]Definition)
	entries, err := fs.ReadDir(builtinFS, "builtin")
	if err != nil {
		panic(err)
	}
	for _, e := range entries {
		data, err := builtinFS.ReadFile(path.Join("builtin", e.Name()))
		if err != nil {
			panic(err)
		}
		name := strings.TrimSuffix(e.Name(), ".jsx")
		def := NewDefinition(name, string(data))
		def.Builtin = true
		if first, _, _ := strings.Cut(def.Code, "\n"); strings.HasPrefix(first, "//") {
			def.Docs = strings.TrimSpace(strings.TrimPrefix(first, "//"))
		}
		out[name] = def
	}
	return out
}

// Builtins lists the built-in components sorted by name.
func Builtins() []Definition {
	out := make([]Definition, 0, len(builtins))
	for _, d := range builtins {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b Definition) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Builtin returns a built-in component by exact name.
func Builtin(name string) (Definition, bool) {
	d, ok := builtins[name]
	return d, ok
}

// Resolve looks name up. In base mode a built-in resolves when the
// allow-list is empty or names it, and allow-listed names that are not
// built-ins resolve against defs. In custom mode only defs
// are consulted. Matching is exact and case-sensitive.
func Resolve(name string, mode Mode, allow []string, defs map[string]Definition) (Definition, bool) {
	switch mode {
	case ModeCustom:
		d, ok := defs[name]
		return d, ok
	default:
		if d, ok := builtins[name]; ok {
			if len(allow) > 0 && !slices.Contains(allow, name) {
				return Definition{}, false
			}
			return d, true
		}
		if slices.Contains(allow, name) {
			d, ok := defs[name]
			return d, ok
		}
		return Definition{}, false
	}
}

// Registry binds a mode, allow-list and request definitions for one batch.
type Registry struct {
	mode  Mode
	allow []string
	defs  map[string]Definition
}

// New returns a registry. Definitions are keyed by registration name.
func New(mode Mode, allow []string, defs map[string]Definition) *Registry {
	if mode == "" {
		mode = ModeBase
	}
	return &Registry{mode: mode, allow: allow, defs: defs}
}

// Resolve looks name up using the registry's mode and inputs.
func (r *Registry) Resolve(name string) (Definition, bool) {
	return Resolve(name, r.mode, r.allow, r.defs)
}

// Mode returns the engine mode.
func (r *Registry) Mode() Mode { return r.mode }

// Names lists every name that resolves, sorted.
func (r *Registry) Names() []string {
	seen := make(map[string]struct{})
	if r.mode != ModeCustom {
		for n := range builtins {
			if _, ok := r.Resolve(n); ok {
				seen[n] = struct{}{}
			}
		}
	}
	for n := range r.defs {
		if _, ok := r.Resolve(n); ok {
			seen[n] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}
