package patch

import "testing"

// TestParseApplyUpdate exercises spec.md §8 scenario S4 literally.
func TestParseApplyUpdate(t *testing.T) {
	text := "*** Begin Patch\n*** Update File: /t/u.txt\n@@\n foo\n-bar\n+baz\n*** End Patch"
	p, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(p.Operations) != 1 {
		t.Fatalf("want 1 operation, got %d", len(p.Operations))
	}
	op := p.Operations[0]
	if op.Kind != OpUpdateFile || op.Path != "/t/u.txt" {
		t.Fatalf("unexpected operation: %+v", op)
	}

	got, err := ApplyUpdate(op, "foo\nbar\n")
	if err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}
	if got != "foo\nbaz\n" {
		t.Fatalf("got %q, want %q", got, "foo\nbaz\n")
	}
}

func TestParseAddDeleteRoundTrip(t *testing.T) {
	add := "*** Begin Patch\n*** Add File: new.txt\n+hello\n+world\n*** End Patch"
	p, err := Parse(add)
	if err != nil {
		t.Fatalf("Parse add: %v", err)
	}
	if got, want := AddContent(p.Operations[0]), "hello\nworld\n"; got != want {
		t.Fatalf("AddContent = %q, want %q", got, want)
	}

	del := "*** Begin Patch\n*** Delete File: new.txt\n*** End Patch"
	p2, err := Parse(del)
	if err != nil {
		t.Fatalf("Parse delete: %v", err)
	}
	if p2.Operations[0].Kind != OpDeleteFile {
		t.Fatalf("expected delete operation, got %+v", p2.Operations[0])
	}
}

func TestParseMissingMarkers(t *testing.T) {
	if _, err := Parse("*** Update File: x\n"); err == nil {
		t.Fatal("expected error for missing Begin/End markers")
	}
}

func TestParseRejectsHunkOutsideSection(t *testing.T) {
	if _, err := Parse("*** Begin Patch\n@@\n foo\n*** End Patch"); err == nil {
		t.Fatal("expected error for hunk outside Update File section")
	}
}
