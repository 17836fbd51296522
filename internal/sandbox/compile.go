package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dop251/goja"
	"github.com/evanw/esbuild/pkg/api"
	"golang.org/x/sync/singleflight"

	"github.com/starford/mdxengine/internal/apperr"
	"github.com/starford/mdxengine/internal/checksum"
	"github.com/starford/mdxengine/internal/registry"
)

// TransformStore persists transformed component source keyed by content hash.
type TransformStore interface {
	Get(ctx context.Context, hash string) (string, bool, error)
	Put(ctx context.Context, hash, code string) error
}

const componentWrapper = `(function () {
var module = { exports: {} };
var exports = module.exports;
%s
if (module.exports && typeof module.exports.default === "function") return module.exports.default;
if (typeof module.exports === "function") return module.exports;
if (typeof Component === "function") return Component;
if (typeof View === "function") return View;
throw new TypeError("component must export a function");
})()`

const utilsWrapper = `(function () {
var module = { exports: {} };
var exports = module.exports;
%s
var u = module.exports && module.exports.default !== undefined ? module.exports.default : module.exports;
return typeof u === "object" && u !== null ? Object.freeze(u) : u;
})()`

// Compiler turns JSX component source into runnable programs.
type Compiler struct {
	store  TransformStore
	logger *slog.Logger
}

// NewCompiler returns a compiler. store may be nil.
func NewCompiler(store TransformStore, logger *slog.Logger) *Compiler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compiler{store: store, logger: logger}
}

// Transform converts JSX and ES module syntax to CommonJS script source.
func (c *Compiler) Transform(ctx context.Context, name, hash, code string) (string, error) {
	if c.store != nil {
		if out, ok, err := c.store.Get(ctx, hash); err != nil {
			c.logger.Warn("transform cache read failed",
				slog.String("component", name),
				slog.String("error", err.Error()))
		} else if ok {
			return out, nil
		}
	}

	res := api.Transform(code, api.TransformOptions{
		Loader:      api.LoaderJSX,
		Format:      api.FormatCommonJS,
		Target:      api.ES2017,
		JSX:         api.JSXTransform,
		JSXFactory:  "h",
		JSXFragment: "Fragment",
		Sourcefile:  name + ".jsx",
	})
	if len(res.Errors) > 0 {
		return "", transformError(res.Errors)
	}
	out := string(res.Code)

	if c.store != nil {
		if err := c.store.Put(ctx, hash, out); err != nil {
			c.logger.Warn("transform cache write failed",
				slog.String("component", name),
				slog.String("error", err.Error()))
		}
	}
	return out, nil
}

// Compile transforms and compiles a component definition.
func (c *Compiler) Compile(ctx context.Context, def registry.Definition) (*goja.Program, error) {
	hash := def.Hash
	if hash == "" {
		hash = registry.Hash(def.Name, def.Code)
	}
	src, err := c.Transform(ctx, def.Name, hash, def.Code)
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.ErrExecution, Component: def.Name, Message: "compile", Err: err}
	}
	prog, err := goja.Compile(def.Name+".js", fmt.Sprintf(componentWrapper, src), false)
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.ErrExecution, Component: def.Name, Message: "compile", Err: err}
	}
	return prog, nil
}

// CompileUtils compiles the batch utility script. Its default export (or
// module.exports) becomes the frozen global utils.
func (c *Compiler) CompileUtils(ctx context.Context, code string) (*goja.Program, error) {
	src, err := c.Transform(ctx, "utils", checksum.Sum([]byte("utils\x00"+code)), code)
	if err != nil {
		return nil, err
	}
	return goja.Compile("utils.js", fmt.Sprintf(utilsWrapper, src), false)
}

func transformError(msgs []api.Message) error {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Location != nil {
			parts = append(parts, fmt.Sprintf("%s (line %d, column %d)", m.Text, m.Location.Line, m.Location.Column))
			continue
		}
		parts = append(parts, m.Text)
	}
	return fmt.Errorf("%s", strings.Join(parts, "; "))
}

// ProgramCache holds compiled programs keyed by content hash. One cache
// serves a batch, or an engine lifetime when warm caching is on.
type ProgramCache struct {
	compiler *Compiler
	group    singleflight.Group

	mu       sync.RWMutex
	programs map[string]*goja.Program
}

// NewProgramCache returns an empty cache backed by compiler.
func NewProgramCache(compiler *Compiler) *ProgramCache {
	return &ProgramCache{compiler: compiler, programs: make(map[string]*goja.Program)}
}

// Get returns the compiled program for def, compiling it at most once
// across concurrent callers. Failed compilations are not cached.
func (pc *ProgramCache) Get(ctx context.Context, def registry.Definition) (*goja.Program, error) {
	if def.Hash == "" {
		def.Hash = registry.Hash(def.Name, def.Code)
	}
	pc.mu.RLock()
	prog, ok := pc.programs[def.Hash]
	pc.mu.RUnlock()
	if ok {
		return prog, nil
	}

	v, err, _ := pc.group.Do(def.Hash, func() (any, error) {
		p, err := pc.compiler.Compile(ctx, def)
		if err != nil {
			return nil, err
		}
		pc.mu.Lock()
		pc.programs[def.Hash] = p
		pc.mu.Unlock()
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*goja.Program), nil
}

// Len returns the number of cached programs.
func (pc *ProgramCache) Len() int {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return len(pc.programs)
}
