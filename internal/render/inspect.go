package render

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/starford/mdxengine/internal/frontmatter"
	"github.com/starford/mdxengine/internal/node"
	"github.com/starford/mdxengine/internal/parser"
	"github.com/starford/mdxengine/internal/registry"
)

// DirectiveSummary lists the directive attributes found in a document.
// Patterns generalise keys: "x-on:click" becomes "x-on:*", "x-show"
// becomes the matching prefix plus "*".
type DirectiveSummary struct {
	Keys     []string `json:"keys"`
	Patterns []string `json:"patterns"`
	Values   []any    `json:"values"`
}

// Inspection describes a document without executing any component.
type Inspection struct {
	Document    string           `json:"document"`
	Frontmatter *node.Attrs      `json:"frontmatter"`
	Components  []string         `json:"components"`
	Unresolved  []string         `json:"unresolved"`
	Directives  DirectiveSummary `json:"directives"`
}

// Inspect parses a document and reports the components it references,
// which of them would not resolve under reg, and its directives.
func Inspect(name, text string, directives []string, reg *registry.Registry) (*Inspection, error) {
	doc, err := frontmatter.Split(name, text)
	if err != nil {
		return nil, err
	}
	nodes, err := parser.Parse(doc.Body, parser.Options{Frontmatter: doc.Frontmatter, Directives: directives})
	if err != nil {
		return nil, err
	}
	if reg == nil {
		reg = registry.New(registry.ModeBase, nil, nil)
	}

	in := &Inspection{
		Document:    name,
		Frontmatter: doc.Frontmatter,
		Components:  []string{},
		Unresolved:  []string{},
		Directives:  DirectiveSummary{Keys: []string{}, Patterns: []string{}, Values: []any{}},
	}
	keys := map[string]struct{}{}
	patterns := map[string]struct{}{}
	values := map[string]any{}

	node.Walk(nodes, func(n *node.Node) bool {
		if n.Kind == node.Component && n.Tag != registry.Fragment && !slices.Contains(in.Components, n.Tag) {
			in.Components = append(in.Components, n.Tag)
			if _, ok := reg.Resolve(n.Tag); !ok {
				in.Unresolved = append(in.Unresolved, n.Tag)
			}
		}
		if !n.HasDirectives() {
			return true
		}
		for p := n.Directives.Oldest(); p != nil; p = p.Next() {
			keys[p.Key] = struct{}{}
			patterns[directivePattern(p.Key, directives)] = struct{}{}
			if data, err := json.Marshal(p.Value); err == nil {
				values[string(data)] = p.Value
			}
		}
		return true
	})

	in.Directives.Keys = sortedKeys(keys)
	in.Directives.Patterns = sortedKeys(patterns)
	for _, k := range sortedKeys(values) {
		in.Directives.Values = append(in.Directives.Values, values[k])
	}
	return in, nil
}

func directivePattern(key string, prefixes []string) string {
	if head, _, ok := strings.Cut(key, ":"); ok {
		return head + ":*"
	}
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(key, prefix) {
			return prefix + "*"
		}
	}
	return key
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
