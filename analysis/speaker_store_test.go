package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFileStore_RoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := &FileStore{Dir: dir}
	ctx := context.Background()

	if _, err := s.Load(ctx, "conv-1"); !errors.Is(err, ErrSpeakersNotFound) {
		t.Fatalf("err=%v, want ErrSpeakersNotFound", err)
	}

	want := SpeakerMap{"blue": "Alex", "gray": "Sam"}
	if err := s.Save(ctx, "conv-1", want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("speakers mismatch (-want +got):\n%s", diff)
	}

	b, err := os.ReadFile(filepath.Join(dir, "conv-1.speakers.json"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var f speakerFile
	if err := json.Unmarshal(b, &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if f.Version != 1 {
		t.Fatalf("version=%d, want 1", f.Version)
	}
}

func TestFileStore_Rejects(t *testing.T) {
	t.Parallel()

	s := &FileStore{Dir: t.TempDir()}
	ctx := context.Background()

	if err := s.Save(ctx, "../escape", SpeakerMap{"a": "b"}); err == nil {
		t.Fatalf("expected invalid id error")
	}
	if err := s.Save(ctx, "conv-1", SpeakerMap{}); err == nil {
		t.Fatalf("expected empty map error")
	}
	if _, err := (&FileStore{}).Load(ctx, "conv-1"); err == nil || errors.Is(err, ErrSpeakersNotFound) {
		t.Fatalf("err=%v, want a configuration error", err)
	}

	if err := os.WriteFile(filepath.Join(s.Dir, "empty.speakers.json"), []byte(`{"version":1,"speakers":{}}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := s.Load(ctx, "empty"); !errors.Is(err, ErrSpeakersNotFound) {
		t.Fatalf("err=%v, want ErrSpeakersNotFound for an empty file", err)
	}
}

func TestValidConversationID(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"conv-1":                 true,
		"A_b-9":                  true,
		"":                       false,
		"../x":                   false,
		"has space":              false,
		"dot.json":               false,
		strings.Repeat("a", 129): false,
		strings.Repeat("a", 128): true,
	}
	for id, want := range cases {
		if got := ValidConversationID(id); got != want {
			t.Fatalf("ValidConversationID(%q)=%v, want %v", id, got, want)
		}
	}
}
