package sandbox

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dop251/goja"

	"github.com/starford/mdxengine/internal/node"
)

const maxOutputDepth = 512

// propRenames maps JSX prop names to markup attribute names.
var propRenames = map[string]string{
	"className": "class",
	"htmlFor":   "for",
}

// toJS converts frontmatter and attribute values, keeping map key order.
func (c *Context) toJS(v any) goja.Value {
	switch x := v.(type) {
	case nil:
		return goja.Null()
	case *node.Attrs:
		obj := c.vm.NewObject()
		if x != nil {
			for p := x.Oldest(); p != nil; p = p.Next() {
				_ = obj.Set(p.Key, c.toJS(p.Value))
			}
		}
		return obj
	case []any:
		items := make([]any, len(x))
		for i, item := range x {
			items[i] = c.toJS(item)
		}
		return c.vm.NewArray(items...)
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := c.vm.NewObject()
		for _, k := range keys {
			_ = obj.Set(k, c.toJS(x[k]))
		}
		return obj
	}
	return c.vm.ToValue(v)
}

// nodeToJS renders an already-resolved node as the value h() would produce.
func (c *Context) nodeToJS(n *node.Node) goja.Value {
	if n.Kind == node.Text {
		return c.vm.ToValue(n.Text)
	}
	obj := c.vm.NewObject()
	_ = obj.Set("type", n.Tag)
	_ = obj.Set("props", c.toJS(n.Attrs))
	_ = obj.Set("children", c.childrenToJS(n.Children))
	return obj
}

func (c *Context) childrenToJS(children []*node.Node) goja.Value {
	items := make([]any, len(children))
	for i, ch := range children {
		items[i] = c.nodeToJS(ch)
	}
	return c.vm.NewArray(items...)
}

func (c *Context) propsObject(props *node.Attrs, children []*node.Node) *goja.Object {
	obj := c.vm.NewObject()
	if props != nil {
		for p := props.Oldest(); p != nil; p = p.Next() {
			_ = obj.Set(p.Key, c.toJS(p.Value))
		}
	}
	_ = obj.Set("children", c.childrenToJS(children))
	return obj
}

// toNodes normalizes a component's return value. Strings and numbers
// become text, null/undefined/booleans render nothing, arrays flatten,
// {type, props, children} objects become elements. Anything else is an error.
func (c *Context) toNodes(v goja.Value, depth int) ([]*node.Node, error) {
	if depth > maxOutputDepth {
		return nil, fmt.Errorf("output nested deeper than %d levels", maxOutputDepth)
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	obj, isObj := v.(*goja.Object)
	if !isObj {
		switch x := v.Export().(type) {
		case string:
			return []*node.Node{node.NewText(x)}, nil
		case bool:
			return nil, nil
		case int64, float64:
			return []*node.Node{node.NewText(node.FormatValue(x))}, nil
		}
		return nil, fmt.Errorf("unsupported render value %s", v.String())
	}

	if _, isFn := goja.AssertFunction(obj); isFn {
		return nil, fmt.Errorf("component returned a function instead of markup")
	}
	if obj.ClassName() == "Array" {
		n := int(obj.Get("length").ToInteger())
		var out []*node.Node
		for i := 0; i < n; i++ {
			items, err := c.toNodes(obj.Get(strconv.Itoa(i)), depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, items...)
		}
		return out, nil
	}

	typ := obj.Get("type")
	if typ == nil || goja.IsUndefined(typ) {
		return nil, fmt.Errorf("unsupported render value of class %s", obj.ClassName())
	}
	tag, ok := typ.Export().(string)
	if !ok || tag == "" {
		return nil, fmt.Errorf("element type must be a tag name, got %s", typ.String())
	}

	children, err := c.toNodes(obj.Get("children"), depth+1)
	if err != nil {
		return nil, err
	}
	if tag == fragmentType {
		return children, nil
	}
	if !validName(tag) {
		return nil, fmt.Errorf("invalid element type %q", tag)
	}

	el := node.NewElement(tag, children...)
	if props, ok := obj.Get("props").(*goja.Object); ok {
		for _, key := range props.Keys() {
			if key == "children" || key == "key" || key == "ref" {
				continue
			}
			name, value, keep := c.prop(key, props.Get(key))
			if keep && !validName(name) {
				return nil, fmt.Errorf("invalid attribute name %q on <%s>", name, tag)
			}
			if keep {
				el.Attrs.Set(name, value)
			}
		}
	}
	return []*node.Node{el}, nil
}

func (c *Context) prop(key string, v goja.Value) (string, any, bool) {
	if renamed, ok := propRenames[key]; ok {
		key = renamed
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return "", nil, false
	}
	if _, isFn := goja.AssertFunction(v); isFn {
		return "", nil, false
	}
	if obj, ok := v.(*goja.Object); ok {
		if key == "style" && obj.ClassName() == "Object" {
			return key, c.styleString(obj), true
		}
		return key, obj.Export(), true
	}
	return key, v.Export(), true
}

// styleString renders a style object as CSS declarations.
func (c *Context) styleString(obj *goja.Object) string {
	var decls []string
	for _, k := range obj.Keys() {
		v := obj.Get(k)
		if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
			continue
		}
		decls = append(decls, kebab(k)+": "+v.String())
	}
	return strings.Join(decls, "; ")
}

// validName reports whether s is usable as a tag or attribute name:
// a letter followed by letters, digits, ':', '.', '_' or '-'.
func validName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		letter := ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z'
		if letter {
			continue
		}
		if i == 0 {
			return false
		}
		if ch >= '0' && ch <= '9' || ch == ':' || ch == '.' || ch == '_' || ch == '-' {
			continue
		}
		return false
	}
	return true
}

func kebab(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch >= 'A' && ch <= 'Z' {
			b.WriteByte('-')
			b.WriteByte(ch + ('a' - 'A'))
			continue
		}
		b.WriteByte(ch)
	}
	return b.String()
}
