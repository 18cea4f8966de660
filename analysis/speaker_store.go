package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/theimaginaryfoundation/deep-dive/analysis/fileutils"
)

// ErrSpeakersNotFound is returned by a SpeakerStore when nothing was saved for the conversation.
var ErrSpeakersNotFound = errors.New("speaker map not found")

// SpeakerStore persists user-corrected speaker maps by conversation id. Nothing else is stored.
type SpeakerStore interface {
	Load(ctx context.Context, conversationID string) (SpeakerMap, error)
	Save(ctx context.Context, conversationID string, speakers SpeakerMap) error
}

var safeID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidConversationID reports whether id is safe to use as a storage key.
func ValidConversationID(id string) bool {
	return safeID.MatchString(id)
}

type speakerFile struct {
	Version  int        `json:"version"`
	Speakers SpeakerMap `json:"speakers"`
}

// FileStore keeps one JSON file per conversation under Dir.
type FileStore struct {
	Dir string

	mu sync.Mutex
}

func (s *FileStore) path(id string) (string, error) {
	if strings.TrimSpace(s.Dir) == "" {
		return "", errors.New("FileStore: dir is empty")
	}
	if !ValidConversationID(id) {
		return "", fmt.Errorf("FileStore: invalid conversation id %q", id)
	}
	return filepath.Join(s.Dir, id+".speakers.json"), nil
}

// Load reads the saved map. A missing file is ErrSpeakersNotFound.
func (s *FileStore) Load(_ context.Context, conversationID string) (SpeakerMap, error) {
	path, err := s.path(conversationID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrSpeakersNotFound
		}
		return nil, fmt.Errorf("FileStore.Load: read file: %w", err)
	}
	var f speakerFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("FileStore.Load: unmarshal: %w", err)
	}
	if len(f.Speakers) == 0 {
		return nil, ErrSpeakersNotFound
	}
	return f.Speakers, nil
}

// Save writes the map atomically.
func (s *FileStore) Save(_ context.Context, conversationID string, speakers SpeakerMap) error {
	path, err := s.path(conversationID)
	if err != nil {
		return err
	}
	if len(speakers) == 0 {
		return errors.New("FileStore.Save: speaker map is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fileutils.WriteJSONFileAtomic(path, speakerFile{Version: 1, Speakers: speakers.Clone()}, true); err != nil {
		return fmt.Errorf("FileStore.Save: %w", err)
	}
	return nil
}
