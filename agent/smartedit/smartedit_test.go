package smartedit

import (
	"context"
	"testing"
)

type alwaysRead struct{}

func (alwaysRead) WasRead(string) bool { return true }

func TestApplyExactMatch(t *testing.T) {
	e := &Engine{Reads: alwaysRead{}}
	content := "line one\nline two\nline three\n"
	res, err := e.Apply(context.Background(), Request{
		Path:      "f.go",
		OldString: "line two",
		NewString: "line TWO",
	}, content)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.NewContent != "line one\nline TWO\nline three\n" {
		t.Fatalf("unexpected content: %q", res.NewContent)
	}
	if res.Strategy != "exact" {
		t.Fatalf("strategy = %q, want exact", res.Strategy)
	}
	if Hash(res.NewContent) == Hash(content) {
		t.Fatal("invariant 9: hash must differ after a successful edit")
	}
}

func TestApplyWhitespaceNormalizedFallback(t *testing.T) {
	e := &Engine{Reads: alwaysRead{}}
	content := "func f() {\n    return   1\n}\n"
	res, err := e.Apply(context.Background(), Request{
		Path:      "f.go",
		OldString: "return 1",
		NewString: "    return 2",
	}, content)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Strategy == "exact" {
		t.Fatalf("expected a non-exact strategy to be needed")
	}
	if res.NewContent != "func f() {\n    return 2\n}\n" {
		t.Fatalf("unexpected content: %q", res.NewContent)
	}
}

func TestApplyRequiresRead(t *testing.T) {
	e := &Engine{Reads: neverReadTracker{}}
	_, err := e.Apply(context.Background(), Request{Path: "f.go", OldString: "a", NewString: "b"}, "a\n")
	if err != ErrNotRead {
		t.Fatalf("err = %v, want ErrNotRead", err)
	}
}

type neverReadTracker struct{}

func (neverReadTracker) WasRead(string) bool { return false }

func TestApplyConcurrentModification(t *testing.T) {
	e := &Engine{Reads: alwaysRead{}}
	_, err := e.Apply(context.Background(), Request{
		Path:         "f.go",
		OldString:    "a",
		NewString:    "b",
		ExpectedHash: "deadbeef",
	}, "a\n")
	if err != ErrConcurrentModification {
		t.Fatalf("err = %v, want ErrConcurrentModification", err)
	}
}

func TestApplyNoChangesRequiredIdenticalHash(t *testing.T) {
	content := "same content\n"
	e := &Engine{Reads: alwaysRead{}, Correction: stubCorrection{noChange: true}}
	res, err := e.Apply(context.Background(), Request{Path: "f.go", OldString: "does-not-exist", NewString: "x"}, content)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !res.NoChange || Hash(res.NewContent) != Hash(content) {
		t.Fatalf("expected no-op correction result, got %+v", res)
	}
}

type stubCorrection struct{ noChange bool }

func (s stubCorrection) Correct(ctx context.Context, instruction, content, oldString, newString string) (*Correction, error) {
	return &Correction{NoChangesRequired: s.noChange}, nil
}

func TestUnescape(t *testing.T) {
	in := `line one\nline two\ttabbed`
	want := "line one\nline two\ttabbed"
	if got := Unescape(in); got != want {
		t.Fatalf("Unescape(%q) = %q, want %q", in, got, want)
	}
}
