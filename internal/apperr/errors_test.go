package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorIsKind(t *testing.T) {
	err := fmt.Errorf("render: %w", New(ErrParse, "unterminated frontmatter"))
	if !errors.Is(err, ErrParse) {
		t.Fatal("wrapped *Error should match its kind")
	}
	if errors.Is(err, ErrExecution) {
		t.Error("should not match another kind")
	}
	if KindOf(err) != KindParse {
		t.Errorf("KindOf = %q", KindOf(err))
	}
}

func TestWithDocument(t *testing.T) {
	base := &Error{Kind: ErrExecution, Component: "Card", Message: "boom"}
	got := WithDocument(base, "a.mdx", ErrExecution)
	if got.Document != "a.mdx" || base.Document != "" {
		t.Fatalf("document = %q, original = %q", got.Document, base.Document)
	}
	if got.Error() != "execution error: a.mdx: component Card: boom" {
		t.Errorf("Error() = %q", got.Error())
	}
	if Detail(got) != "component Card: boom" {
		t.Errorf("Detail = %q", Detail(got))
	}

	plain := WithDocument(errors.New("disk"), "b.mdx", ErrParse)
	if !errors.Is(plain, ErrParse) || KindOf(plain) != KindParse {
		t.Errorf("fallback kind not applied: %v", plain)
	}
}

func TestKindOfUnknown(t *testing.T) {
	if KindOf(errors.New("x")) != KindInternal {
		t.Error("plain errors map to internal")
	}
}
