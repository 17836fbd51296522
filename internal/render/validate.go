package render

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/mdxengine/internal/apperr"
	"github.com/starford/mdxengine/internal/models"
)

func (e *Engine) validate(req *models.Request, s models.Settings) error {
	errs := validation.Errors{
		"settings": validation.ValidateStruct(&s,
			validation.Field(&s.Output, validation.Required,
				validation.In(models.OutputHTML, models.OutputJavaScript, models.OutputSchema, models.OutputJSON)),
			validation.Field(&s.Engine, validation.Required,
				validation.In(models.EngineBase, models.EngineCustom)),
			validation.Field(&s.Components, validation.Each(validation.Required)),
			validation.Field(&s.Directives, validation.Each(validation.Required)),
		),
		"documents": e.validateDocuments(req),
		"componentDefinitions": e.validateDefinitions(req),
	}
	if err := errs.Filter(); err != nil {
		return apperr.Wrap(apperr.ErrInvalidRequest, err)
	}
	return nil
}

func (e *Engine) validateDocuments(req *models.Request) error {
	n := documentCount(req)
	if err := validation.Validate(n, validation.Max(e.limits.MaxDocuments)); err != nil {
		return fmt.Errorf("batch of %d documents: %w", n, err)
	}
	if n == 0 {
		return nil
	}
	errs := validation.Errors{}
	for p := req.Documents.Oldest(); p != nil; p = p.Next() {
		if p.Key == "" {
			errs["(empty)"] = validation.ErrRequired
			continue
		}
		if len(p.Value) > e.limits.MaxDocumentBytes {
			errs[p.Key] = fmt.Errorf("document is %d bytes, limit is %d", len(p.Value), e.limits.MaxDocumentBytes)
		}
	}
	return errs.Filter()
}

func (e *Engine) validateDefinitions(req *models.Request) error {
	errs := validation.Errors{}
	for key, d := range req.ComponentDefinitions {
		errs[key] = validation.ValidateStruct(&d,
			validation.Field(&d.Code, validation.Required, validation.By(maxBytes(e.limits.MaxComponentBytes))),
		)
	}
	return errs.Filter()
}

// maxBytes limits a string's size in bytes.
func maxBytes(limit int) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if len(s) > limit {
			return fmt.Errorf("is %d bytes, limit is %d", len(s), limit)
		}
		return nil
	}
}
