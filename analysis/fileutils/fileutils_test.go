package fileutils

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteJSONFileAtomic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "speakers.json")

	if err := WriteJSONFileAtomic(path, map[string]string{"Alex": "user"}, true); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !FileExists(path) {
		t.Fatalf("expected %s to exist", path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(b) != "{\n  \"Alex\": \"user\"\n}\n" {
		t.Fatalf("content=%q", b)
	}

	// Overwrite in place; no temp files left behind.
	if err := WriteJSONFileAtomic(path, map[string]string{"Sam": "other"}, false); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries=%d, want 1", len(entries))
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("mode=%v, want 0600", info.Mode().Perm())
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	if got := Truncate("  short  ", 10); got != "short" {
		t.Fatalf("got=%q", got)
	}
	if got := Truncate("héllo wörld", 5); got != "héllo…" {
		t.Fatalf("got=%q", got)
	}
	if got := Truncate("anything", 0); got != "anything" {
		t.Fatalf("got=%q", got)
	}
}

func TestSanitizeNewlines(t *testing.T) {
	t.Parallel()

	if got := SanitizeNewlines("a\r\nb\rc\nd"); got != `a\nb\nc\nd` {
		t.Fatalf("got=%q", got)
	}
}

func TestStripCodeFence(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"{\"a\":1}":                 "{\"a\":1}",
		"```json\n{\"a\":1}\n```":   "{\"a\":1}",
		"```\n{\"a\":1}\n```":       "{\"a\":1}",
		"```{\"a\":1}\n```":         "{\"a\":1}",
		"```JSON\n  {\"a\":1}  ```": "{\"a\":1}",
	}
	for in, want := range cases {
		if got := StripCodeFence(in); got != want {
			t.Fatalf("StripCodeFence(%q)=%q, want %q", in, got, want)
		}
	}
}

func TestFirstBalancedObject(t *testing.T) {
	t.Parallel()

	got, ok := FirstBalancedObject(`Sure! {"quote":"she said \"}\" twice","n":{"x":1}} trailing {"b":2}`)
	if !ok {
		t.Fatalf("expected an object")
	}
	if got != `{"quote":"she said \"}\" twice","n":{"x":1}}` {
		t.Fatalf("got=%q", got)
	}

	// An unbalanced leading brace falls through to the next candidate start.
	got, ok = FirstBalancedObject(`{ broken {"ok":true}`)
	if !ok || got != `{"ok":true}` {
		t.Fatalf("got=%q ok=%v", got, ok)
	}

	if _, ok := FirstBalancedObject("no braces here"); ok {
		t.Fatalf("expected no object")
	}
}

func TestDecodeModelJSON(t *testing.T) {
	t.Parallel()

	type out struct {
		Reply string `json:"reply"`
	}

	var v out
	if err := DecodeModelJSON("```json\n{\"reply\":\"fenced\"}\n```", &v); err != nil || v.Reply != "fenced" {
		t.Fatalf("fenced: v=%+v err=%v", v, err)
	}

	v = out{}
	if err := DecodeModelJSON("Here you go: {\"reply\":\"embedded\"} hope it helps", &v); err != nil || v.Reply != "embedded" {
		t.Fatalf("embedded: v=%+v err=%v", v, err)
	}

	if err := DecodeModelJSON("   ", &v); err == nil {
		t.Fatalf("expected error for empty output")
	}

	err := DecodeModelJSON("no json at all", &v)
	if !errors.Is(err, ErrNoJSONObject) {
		t.Fatalf("err=%v, want ErrNoJSONObject", err)
	}

	var syntax *json.SyntaxError
	err = DecodeModelJSON(`prefix {"reply": tru} suffix`, &v)
	if err == nil || !errors.As(err, &syntax) {
		t.Fatalf("err=%v, want wrapped *json.SyntaxError", err)
	}
}
