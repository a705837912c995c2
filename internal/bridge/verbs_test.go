package bridge

import "testing"

func TestParseLineSplitsVerbAndRest(t *testing.T) {
	l := parseLine("  navigate   https://example.com/path?q=1  ")
	if l.verb != "navigate" {
		t.Fatalf("verb = %q, want navigate", l.verb)
	}
	if l.rest != "https://example.com/path?q=1" {
		t.Fatalf("rest = %q", l.rest)
	}
}

func TestParseLineEmpty(t *testing.T) {
	l := parseLine("   ")
	if l.verb != "" || l.rest != "" {
		t.Fatalf("expected empty verb/rest, got %+v", l)
	}
}

func TestLineFieldsAbsorbsTrailingArgument(t *testing.T) {
	l := line{verb: "rename_workspace", rest: "42 My New Name"}
	parts, err := l.fields(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parts[0] != "42" || parts[1] != "My New Name" {
		t.Fatalf("unexpected parts: %+v", parts)
	}
}

func TestLineFieldsRejectsMissingArgument(t *testing.T) {
	l := line{verb: "rename_workspace", rest: "42"}
	if _, err := l.fields(2); err == nil {
		t.Fatal("expected error for missing second argument")
	}
}

func TestParseIDRejectsNonDigits(t *testing.T) {
	if _, err := parseID("12a"); err == nil {
		t.Fatal("expected error for non-digit id")
	}
	if _, err := parseID("-1"); err == nil {
		t.Fatal("expected error for signed id")
	}
	if _, err := parseID(""); err == nil {
		t.Fatal("expected error for empty id")
	}
}

func TestParseIDAcceptsBase10(t *testing.T) {
	v, err := parseID("42")
	if err != nil || v != 42 {
		t.Fatalf("parseID(42) = %d, %v", v, err)
	}
}
