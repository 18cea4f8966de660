// Package sqlitestore is a SQLite-backed analysis.SpeakerStore.
package sqlitestore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/theimaginaryfoundation/deep-dive/analysis"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Store struct {
	conn   *sql.DB
	logger *zap.Logger
}

var _ analysis.SpeakerStore = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies pending migrations.
// Use ":memory:" in tests.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlitestore: create directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlitestore: ping: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlitestore: %s: %w", pragma, err)
		}
	}

	s := &Store{conn: conn, logger: logger}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlitestore: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) migrate() error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	for _, m := range entries {
		if m.IsDir() {
			continue
		}
		name := m.Name()
		if s.applied(name) {
			continue
		}
		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.conn.Exec(string(content)); err != nil {
			return fmt.Errorf("execute migration %s: %w", name, err)
		}
		if _, err := s.conn.Exec("INSERT INTO _migrations (name) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		s.logger.Info("applied migration", zap.String("name", name))
	}
	return nil
}

func (s *Store) applied(name string) bool {
	var exists int
	if err := s.conn.QueryRow("SELECT 1 FROM sqlite_master WHERE type='table' AND name='_migrations'").Scan(&exists); err != nil {
		return false
	}
	var ok int
	err := s.conn.QueryRow("SELECT 1 FROM _migrations WHERE name = ?", name).Scan(&ok)
	return err == nil && ok == 1
}

// Load returns analysis.ErrSpeakersNotFound when no row exists.
func (s *Store) Load(ctx context.Context, conversationID string) (analysis.SpeakerMap, error) {
	if !analysis.ValidConversationID(conversationID) {
		return nil, fmt.Errorf("sqlitestore: invalid conversation id %q", conversationID)
	}
	var raw string
	err := s.conn.QueryRowContext(ctx, "SELECT speakers FROM speaker_maps WHERE conversation_id = ?", conversationID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, analysis.ErrSpeakersNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: load %s: %w", conversationID, err)
	}
	var m analysis.SpeakerMap
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("sqlitestore: decode %s: %w", conversationID, err)
	}
	return m, nil
}

// Save upserts the map for conversationID.
func (s *Store) Save(ctx context.Context, conversationID string, speakers analysis.SpeakerMap) error {
	if !analysis.ValidConversationID(conversationID) {
		return fmt.Errorf("sqlitestore: invalid conversation id %q", conversationID)
	}
	if len(speakers) == 0 {
		return errors.New("sqlitestore: speaker map is empty")
	}
	b, err := json.Marshal(speakers)
	if err != nil {
		return fmt.Errorf("sqlitestore: encode: %w", err)
	}
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO speaker_maps (conversation_id, speakers, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(conversation_id) DO UPDATE SET speakers = excluded.speakers, updated_at = excluded.updated_at`,
		conversationID, string(b))
	if err != nil {
		return fmt.Errorf("sqlitestore: save %s: %w", conversationID, err)
	}
	return nil
}
