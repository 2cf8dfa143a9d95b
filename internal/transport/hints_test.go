package transport

import (
	"os"
	"path/filepath"
	"testing"
)

func TestApplyHints_MatchesSubstring(t *testing.T) {
	err := &Error{Kind: KindRemote, Message: `got {"message":"Workflow was started"}`}
	applyHints(err, defaultHintRules())
	if err.Hint == "" {
		t.Fatal("expected a hint for the workflow acknowledgement message")
	}
	if err.Kind != KindRemote {
		t.Fatal("hint must not change the error kind")
	}
}

func TestApplyHints_NoMatchLeavesHintEmpty(t *testing.T) {
	err := &Error{Kind: KindRemote, Message: "something else entirely"}
	applyHints(err, defaultHintRules())
	if err.Hint != "" {
		t.Fatalf("unexpected hint %q", err.Hint)
	}
}

func TestApplyHints_FirstMatchWins(t *testing.T) {
	rules := []HintRule{
		{Contains: "timeout", Hint: "first"},
		{Contains: "timeout", Hint: "second"},
	}
	err := &Error{Message: "request timeout"}
	applyHints(err, rules)
	if err.Hint != "first" {
		t.Fatalf("hint = %q, want first", err.Hint)
	}
}

func TestLoadHintRules_MissingFileUsesBuiltins(t *testing.T) {
	rules, err := LoadHintRules(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file must not be an error: %v", err)
	}
	if len(rules) != len(defaultHintRules()) {
		t.Fatalf("got %d rules, want builtins only", len(rules))
	}
}

func TestLoadHintRules_AppendsFileRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hints.yaml")
	content := "- contains: \"ECONNREFUSED\"\n  hint: \"is the automation host running?\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	rules, err := LoadHintRules(path)
	if err != nil {
		t.Fatalf("LoadHintRules: %v", err)
	}
	if len(rules) != len(defaultHintRules())+1 {
		t.Fatalf("got %d rules", len(rules))
	}
	last := rules[len(rules)-1]
	if last.Contains != "ECONNREFUSED" || last.Hint == "" {
		t.Fatalf("file rule not appended: %+v", last)
	}
}

func TestLoadHintRules_MalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hints.yaml")
	if err := os.WriteFile(path, []byte("{not yaml"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadHintRules(path); err == nil {
		t.Fatal("expected parse error")
	}
}
