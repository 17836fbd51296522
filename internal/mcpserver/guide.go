package mcpserver

// AuthoringGuide describes the MDX dialect the engine accepts.
const AuthoringGuide = `# MDX Authoring Guide

A document is optional YAML frontmatter followed by a Markdown body that may
contain JSX-style component tags and {expressions}.

## Frontmatter

` + "```" + `markdown
---
title: Getting started
author:
  name: Ada
---
` + "```" + `

The fences must be the first line of the document and must be closed.
Values are available to expressions through ` + "`" + `context("author.name")` + "`" + `
and are returned as the document metadata.

## Markdown

Headings, paragraphs, emphasis, strong, inline code, fenced code blocks,
block quotes, ordered and unordered lists, links, images and thematic breaks.

## Components

Components start with an uppercase letter: ` + "`" + `<Badge variant="success">new</Badge>` + "`" + `.
Self-closing tags are allowed: ` + "`" + `<Figure src="/a.png" caption="A"/>` + "`" + `.
Attribute values are strings, {expressions} or bare flags (true).
` + "`" + `<Fragment>` + "`" + ` groups children without a wrapper element.

- base engine: built-in components, optionally restricted by settings.components.
- custom engine: only the componentDefinitions sent with the request.

A component definition is a module whose default export is a function of
(props, scope) returning JSX, a string, an array of those, or null:

` + "```" + `jsx
export default function Hello(props) {
  return <p class="hello">Hello {props.name}</p>;
}
` + "```" + `

` + "`" + `props.children` + "`" + ` holds the rendered children. ` + "`" + `utils` + "`" + ` holds the frozen export of
settings.utils. Other components may be used inside JSX by name.

## Expressions

` + "`" + `{context('author.name')}` + "`" + ` reads frontmatter. Literals, arithmetic, comparisons,
&&, ||, ! and the ternary operator are evaluated outside components.

## Directives

Attributes whose names start with one of settings.directives (for example
` + "`" + `x-` + "`" + ` or ` + "`" + `on:` + "`" + `) are kept apart from props and copied to the rendered element.

## Outputs

html, javascript (a module exporting a View function), schema (the list of
referenced components) and json (the resolved tree).

## Failures

Every document gets its own outcome. A document fails with parse_error,
unresolved_component (strict mode only), execution_error or
fatal_context_fault without affecting the rest of the batch. Unknown
components render as <mdx-unresolved data-component="Name"> unless strict
is set.
`
