package render

import (
	"context"
	"log/slog"
	"time"

	"github.com/starford/mdxengine/internal/apperr"
	"github.com/starford/mdxengine/internal/frontmatter"
	"github.com/starford/mdxengine/internal/models"
	"github.com/starford/mdxengine/internal/node"
	"github.com/starford/mdxengine/internal/parser"
	"github.com/starford/mdxengine/internal/registry"
	"github.com/starford/mdxengine/internal/sandbox"
	"github.com/starford/mdxengine/internal/serializer"
)

// unresolvedTag marks a component reference that no definition matched.
const unresolvedTag = "mdx-unresolved"

func (e *Engine) renderDocument(ctx context.Context, b *batch, name, text string) models.RenderOutcome {
	start := time.Now()
	outcome := e.pipeline(ctx, b, name, text)
	if outcome.Status == models.StatusError {
		e.logger.Warn("document failed",
			slog.String("batch_id", b.sandbox.ID),
			slog.String("document", name),
			slog.String("kind", outcome.Error.Kind),
			slog.String("error", outcome.Error.Message))
		return outcome
	}
	e.logger.Debug("document rendered",
		slog.String("batch_id", b.sandbox.ID),
		slog.String("document", name),
		slog.Duration("duration", time.Since(start)))
	return outcome
}

func (e *Engine) pipeline(ctx context.Context, b *batch, name, text string) models.RenderOutcome {
	doc, err := frontmatter.Split(name, text)
	if err != nil {
		return models.Failure(apperr.WithDocument(err, name, apperr.ErrParse))
	}
	nodes, err := parser.Parse(doc.Body, parser.Options{
		Frontmatter: doc.Frontmatter,
		Directives:  b.settings.Directives,
		MaxDepth:    e.maxDepth,
	})
	if err != nil {
		return models.Failure(apperr.WithDocument(err, name, apperr.ErrParse))
	}

	r := &resolver{
		executor: e.executor,
		batch:    b.sandbox,
		strict:   b.settings.Strict,
		document: name,
		meta:     doc.Frontmatter,
		seen:     make(map[string]struct{}),
	}
	resolved, err := r.resolve(ctx, nodes)
	if err != nil {
		return models.Failure(apperr.WithDocument(err, name, apperr.ErrExecution))
	}

	tree := &node.Tree{Nodes: resolved, References: r.refs}
	out, err := serializer.Serialize(tree, serializer.Format(b.settings.Output), serializer.Options{
		Minify: b.settings.MinifyOutput(),
	})
	if err != nil {
		return models.Failure(apperr.WithDocument(err, name, apperr.ErrInternal))
	}
	return models.Success(doc.Frontmatter, out, r.refs)
}

// resolver replaces component references depth-first: children first,
// then the component itself with the children already rendered.
type resolver struct {
	executor *sandbox.Executor
	batch    *sandbox.Batch
	strict   bool
	document string
	meta     *node.Attrs

	refs []string
	seen map[string]struct{}
}

func (r *resolver) reference(name string) {
	if _, ok := r.seen[name]; ok {
		return
	}
	r.seen[name] = struct{}{}
	r.refs = append(r.refs, name)
}

func (r *resolver) resolve(ctx context.Context, nodes []*node.Node) ([]*node.Node, error) {
	out := make([]*node.Node, 0, len(nodes))
	for _, n := range nodes {
		switch n.Kind {
		case node.Text:
			out = append(out, n)
		case node.Element:
			children, err := r.resolve(ctx, n.Children)
			if err != nil {
				return nil, err
			}
			n.Children = children
			out = append(out, n)
		case node.Component:
			rendered, err := r.component(ctx, n)
			if err != nil {
				return nil, err
			}
			out = append(out, rendered...)
		}
	}
	return out, nil
}

func (r *resolver) component(ctx context.Context, n *node.Node) ([]*node.Node, error) {
	if n.Tag == registry.Fragment {
		return r.resolve(ctx, n.Children)
	}

	def, ok := r.batch.Registry.Resolve(n.Tag)
	if !ok {
		if r.strict {
			return nil, &apperr.Error{
				Kind:      apperr.ErrUnresolvedComponent,
				Document:  r.document,
				Component: n.Tag,
				Message:   "no definition registered",
			}
		}
		children, err := r.resolve(ctx, n.Children)
		if err != nil {
			return nil, err
		}
		return []*node.Node{placeholder(n, children)}, nil
	}

	r.reference(n.Tag)
	children, err := r.resolve(ctx, n.Children)
	if err != nil {
		return nil, err
	}
	rendered, err := r.executor.Invoke(ctx, sandbox.Invocation{
		Batch:       r.batch,
		Document:    r.document,
		Component:   def,
		Props:       n.Attrs,
		Children:    children,
		Frontmatter: r.meta,
		OnNested:    r.reference,
	})
	if err != nil {
		return nil, err
	}
	attachDirectives(rendered, n.Directives)
	return rendered, nil
}

// placeholder renders an unresolved reference as an inert element that
// keeps the props and the rendered children.
func placeholder(n *node.Node, children []*node.Node) *node.Node {
	el := node.NewElement(unresolvedTag, children...)
	el.Attrs.Set("data-component", n.Tag)
	if n.Attrs != nil {
		for p := n.Attrs.Oldest(); p != nil; p = p.Next() {
			el.Attrs.Set(p.Key, p.Value)
		}
	}
	el.Directives = n.Directives
	return el
}

// attachDirectives carries a component's directives onto the first
// element it rendered, so they survive into the json output.
func attachDirectives(nodes []*node.Node, directives *node.Attrs) {
	if directives == nil || directives.Len() == 0 {
		return
	}
	for _, n := range nodes {
		if n.Kind != node.Element {
			continue
		}
		if n.Directives == nil {
			n.Directives = node.NewAttrs()
		}
		for p := directives.Oldest(); p != nil; p = p.Next() {
			n.Directives.Set(p.Key, p.Value)
		}
		return
	}
}
