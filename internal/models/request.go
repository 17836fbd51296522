// Package models defines the request and result types of the render engine.
package models

import (
	"bytes"
	"encoding/json"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/starford/mdxengine/internal/apperr"
)

// Option and engine names accepted in Settings.
const (
	OutputHTML       = "html"
	OutputJavaScript = "javascript"
	OutputSchema     = "schema"
	OutputJSON       = "json"

	EngineBase   = "base"
	EngineCustom = "custom"
)

// Documents maps document names to raw text in request order.
type Documents = orderedmap.OrderedMap[string, string]

// NewDocuments builds Documents from name, text pairs.
func NewDocuments(pairs ...string) *Documents {
	docs := orderedmap.New[string, string]()
	for i := 0; i+1 < len(pairs); i += 2 {
		docs.Set(pairs[i], pairs[i+1])
	}
	return docs
}

// Settings control one batch.
type Settings struct {
	Output string `json:"output,omitempty" example:"html"`
	// Minify defaults to true when unset.
	Minify     *bool    `json:"minify,omitempty"`
	Engine     string   `json:"engine,omitempty" example:"base"`
	Components []string `json:"components,omitempty"`
	Directives []string `json:"directives,omitempty"`
	Utils      string   `json:"utils,omitempty"`
	Strict     bool     `json:"strict,omitempty"`
}

// WithDefaults fills unset fields.
func (s Settings) WithDefaults() Settings {
	if s.Output == "" {
		s.Output = OutputHTML
	}
	if s.Engine == "" {
		s.Engine = EngineBase
	}
	if s.Minify == nil {
		on := true
		s.Minify = &on
	}
	return s
}

// MinifyOutput reports the effective minify flag.
func (s Settings) MinifyOutput() bool {
	return s.Minify == nil || *s.Minify
}

// ComponentDefinition is a user-supplied component.
type ComponentDefinition struct {
	Name string `json:"name,omitempty"`
	Code string `json:"code"`
	Docs string `json:"docs,omitempty"`
	Args any    `json:"args,omitempty"`
}

// Request is one batch render request.
type Request struct {
	Settings             Settings                       `json:"settings"`
	Documents            *Documents                     `json:"documents"`
	ComponentDefinitions map[string]ComponentDefinition `json:"componentDefinitions,omitempty"`
}

// UnmarshalJSON accepts the "mdx" and "components" aliases and rejects
// documents whose content is not a string.
func (r *Request) UnmarshalJSON(data []byte) error {
	var raw struct {
		Settings    json.RawMessage                                  `json:"settings"`
		Documents   *orderedmap.OrderedMap[string, json.RawMessage] `json:"documents"`
		MDX         *orderedmap.OrderedMap[string, json.RawMessage] `json:"mdx"`
		Definitions map[string]ComponentDefinition                   `json:"componentDefinitions"`
		Components  json.RawMessage                                  `json:"components"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return apperr.New(apperr.ErrInvalidRequest, "malformed request: %v", err)
	}

	var out Request
	if isSet(raw.Settings) {
		if err := json.Unmarshal(raw.Settings, &out.Settings); err != nil {
			return apperr.New(apperr.ErrInvalidRequest, "malformed settings: %v", err)
		}
	}

	src := raw.Documents
	if src == nil {
		src = raw.MDX
	}
	out.Documents = orderedmap.New[string, string]()
	if src != nil {
		for p := src.Oldest(); p != nil; p = p.Next() {
			var text string
			if err := json.Unmarshal(p.Value, &text); err != nil {
				return apperr.New(apperr.ErrInvalidRequest, "document %q: content must be a string", p.Key)
			}
			out.Documents.Set(p.Key, text)
		}
	}

	out.ComponentDefinitions = raw.Definitions
	if out.ComponentDefinitions == nil && isSet(raw.Components) {
		if bytes.HasPrefix(bytes.TrimSpace(raw.Components), []byte("{")) {
			if err := json.Unmarshal(raw.Components, &out.ComponentDefinitions); err != nil {
				return apperr.New(apperr.ErrInvalidRequest, "malformed component definitions: %v", err)
			}
		}
	}

	*r = out
	return nil
}

func isSet(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}
