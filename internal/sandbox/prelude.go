package sandbox

import "github.com/dop251/goja"

// fragmentType marks Fragment elements; their children are spliced into the parent.
const fragmentType = "#fragment"

const preludeSrc = `
var Fragment = "#fragment";
var __scope = { utils: undefined, context: undefined };
function __flatten(list, out) {
  for (var i = 0; i < list.length; i++) {
    var c = list[i];
    if (Array.isArray(c)) {
      __flatten(c, out);
    } else if (c !== null && c !== undefined && c !== false && c !== true) {
      out.push(c);
    }
  }
  return out;
}
function h(type, props) {
  var children = __flatten(Array.prototype.slice.call(arguments, 2), []);
  var p = {};
  if (props) {
    for (var k in props) {
      if (Object.prototype.hasOwnProperty.call(props, k)) p[k] = props[k];
    }
  }
  if (typeof type === "function") {
    p.children = children;
    return type(p, __scope);
  }
  return { type: type, props: p, children: children };
}
`

var preludeProgram = goja.MustCompile("prelude.js", preludeSrc, false)

// reservedGlobals are never shadowed by component globals.
var reservedGlobals = map[string]bool{
	"h": true, "Fragment": true, "utils": true, "context": true,
	"Component": true, "View": true, "module": true, "exports": true,
	"__scope": true, "__flatten": true,
}
