package models

import (
	"encoding/json"
	"sort"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/starford/mdxengine/internal/apperr"
	"github.com/starford/mdxengine/internal/node"
)

// Status is the outcome of one document.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// OutcomeError describes a failed document.
type OutcomeError struct {
	Kind    string `json:"kind" example:"parse_error"`
	Message string `json:"message"`
}

// RenderOutcome is the result for one document. Success carries metadata
// and output; failure carries only the error.
type RenderOutcome struct {
	Status     Status        `json:"status"`
	Metadata   *node.Attrs   `json:"metadata,omitempty"`
	Output     string        `json:"output,omitempty"`
	References []string      `json:"references,omitempty"`
	Error      *OutcomeError `json:"error,omitempty"`
}

// Success returns a successful outcome.
func Success(metadata *node.Attrs, output string, references []string) RenderOutcome {
	if metadata == nil {
		metadata = node.NewAttrs()
	}
	return RenderOutcome{Status: StatusSuccess, Metadata: metadata, Output: output, References: references}
}

// Failure returns a failed outcome for err.
func Failure(err error) RenderOutcome {
	return RenderOutcome{
		Status: StatusError,
		Error:  &OutcomeError{Kind: apperr.KindOf(err), Message: apperr.Detail(err)},
	}
}

// MarshalJSON always writes output on success, even when empty.
func (o RenderOutcome) MarshalJSON() ([]byte, error) {
	if o.Status == StatusSuccess {
		meta := o.Metadata
		if meta == nil {
			meta = node.NewAttrs()
		}
		return json.Marshal(struct {
			Status     Status      `json:"status"`
			Metadata   *node.Attrs `json:"metadata"`
			Output     string      `json:"output"`
			References []string    `json:"references,omitempty"`
		}{o.Status, meta, o.Output, o.References})
	}
	return json.Marshal(struct {
		Status Status        `json:"status"`
		Error  *OutcomeError `json:"error"`
	}{o.Status, o.Error})
}

// ErrorEntry is one line of the flat failure list.
type ErrorEntry struct {
	Document string `json:"document"`
	Message  string `json:"message"`
}

// BatchResult aggregates a batch. Documents keeps request order.
type BatchResult struct {
	BatchID   string                                        `json:"batch_id,omitempty"`
	Total     int                                           `json:"total"`
	Succeeded int                                           `json:"succeeded"`
	Failed    int                                           `json:"failed"`
	Documents *orderedmap.OrderedMap[string, RenderOutcome] `json:"documents"`
	Errors    []ErrorEntry                                  `json:"errors"`
}

// NewBatchResult returns an empty result.
func NewBatchResult(id string) *BatchResult {
	return &BatchResult{
		BatchID:   id,
		Documents: orderedmap.New[string, RenderOutcome](),
		Errors:    []ErrorEntry{},
	}
}

// Record stores the outcome for name and updates the counters.
func (b *BatchResult) Record(name string, o RenderOutcome) {
	if prev, ok := b.Documents.Get(name); ok {
		b.uncount(name, prev)
	}
	b.Documents.Set(name, o)
	b.Total++
	if o.Status == StatusSuccess {
		b.Succeeded++
		return
	}
	b.Failed++
	msg := ""
	if o.Error != nil {
		msg = o.Error.Message
	}
	b.Errors = append(b.Errors, ErrorEntry{Document: name, Message: msg})
	sort.SliceStable(b.Errors, func(i, j int) bool { return b.Errors[i].Document < b.Errors[j].Document })
}

func (b *BatchResult) uncount(name string, prev RenderOutcome) {
	b.Total--
	if prev.Status == StatusSuccess {
		b.Succeeded--
		return
	}
	b.Failed--
	for i, e := range b.Errors {
		if e.Document == name {
			b.Errors = append(b.Errors[:i], b.Errors[i+1:]...)
			break
		}
	}
}

// Outcome returns the outcome recorded for name.
func (b *BatchResult) Outcome(name string) (RenderOutcome, bool) {
	return b.Documents.Get(name)
}
