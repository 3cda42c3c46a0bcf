// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides conversation persistence for lmchat.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jeranaias/lmchat/internal/model"
	"github.com/jeranaias/lmchat/internal/util"
)

// ErrNotFound is returned when a conversation does not exist.
var ErrNotFound = errors.New("conversation not found")

// =============================================================================
// STORE
// =============================================================================

// Store persists transcripts in a local SQLite database.
// Methods are safe for concurrent use; database/sql serializes access.
type Store struct {
	db *sql.DB

	// MaxConversations caps stored history. Oldest conversations are
	// evicted on save once the cap is exceeded. Zero means unlimited.
	MaxConversations int
}

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id            TEXT PRIMARY KEY,
	title         TEXT NOT NULL,
	model         TEXT NOT NULL DEFAULT '',
	system_prompt TEXT NOT NULL DEFAULT '',
	tokens_used   INTEGER NOT NULL DEFAULT 0,
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS turns (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	seq             INTEGER NOT NULL,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL,
	created_at      TIMESTAMP NOT NULL,
	token_count     INTEGER NOT NULL DEFAULT 0,
	duration_ms     INTEGER NOT NULL DEFAULT 0,
	tokens_per_sec  REAL NOT NULL DEFAULT 0,
	ttft_ms         INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_turns_conversation ON turns(conversation_id, seq);
CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at DESC);
`

// NewStore opens (or creates) the conversation database at path.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db, MaxConversations: 100}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// SAVE / LOAD
// =============================================================================

// Save persists a transcript, replacing any previous version of it.
func (s *Store) Save(tr *model.Transcript) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO conversations (id, title, model, system_prompt, tokens_used, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			model = excluded.model,
			system_prompt = excluded.system_prompt,
			tokens_used = excluded.tokens_used,
			updated_at = excluded.updated_at`,
		tr.ID, tr.GetTitle(), tr.Model, tr.SystemPrompt, tr.TokensUsed, tr.CreatedAt, tr.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}

	// Turns are replaced wholesale; transcripts are append-only but a
	// clear or rollback can shrink them.
	if _, err := tx.Exec(`DELETE FROM turns WHERE conversation_id = ?`, tr.ID); err != nil {
		return fmt.Errorf("failed to clear turns: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO turns (id, conversation_id, seq, role, content, created_at,
			token_count, duration_ms, tokens_per_sec, ttft_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare turn insert: %w", err)
	}
	defer stmt.Close()

	for i, turn := range tr.Turns {
		_, err := stmt.Exec(turn.ID, tr.ID, i, turn.Role.String(), turn.DisplayContent(),
			turn.Timestamp, turn.TokenCount, turn.TotalDuration.Milliseconds(),
			turn.TokensPerSec, turn.TTFT.Milliseconds())
		if err != nil {
			return fmt.Errorf("failed to save turn %d: %w", i, err)
		}
	}

	if err := s.enforceLimit(tx); err != nil {
		return err
	}

	return tx.Commit()
}

// Load retrieves a transcript by ID. Returns ErrNotFound when absent.
func (s *Store) Load(id string) (*model.Transcript, error) {
	tr := &model.Transcript{}
	err := s.db.QueryRow(`
		SELECT id, title, model, system_prompt, tokens_used, created_at, updated_at
		FROM conversations WHERE id = ?`, id).
		Scan(&tr.ID, &tr.Title, &tr.Model, &tr.SystemPrompt, &tr.TokensUsed, &tr.CreatedAt, &tr.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT id, role, content, created_at, token_count, duration_ms, tokens_per_sec, ttft_ms
		FROM turns WHERE conversation_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load turns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		turn := &model.Turn{}
		var role string
		var durationMs, ttftMs int64
		if err := rows.Scan(&turn.ID, &role, &turn.Content, &turn.Timestamp,
			&turn.TokenCount, &durationMs, &turn.TokensPerSec, &ttftMs); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turn.Role = model.Role(role)
		turn.TotalDuration = time.Duration(durationMs) * time.Millisecond
		turn.TTFT = time.Duration(ttftMs) * time.Millisecond
		tr.Turns = append(tr.Turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate turns: %w", err)
	}

	return tr, nil
}

// LoadByIndex loads the nth most recent conversation (0 = newest).
func (s *Store) LoadByIndex(index int) (*model.Transcript, error) {
	var id string
	err := s.db.QueryRow(`
		SELECT id FROM conversations ORDER BY updated_at DESC LIMIT 1 OFFSET ?`, index).
		Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve index: %w", err)
	}
	return s.Load(id)
}

// =============================================================================
// LIST / SEARCH
// =============================================================================

const metaQuery = `
	SELECT c.id, c.title, c.model, c.created_at, c.updated_at,
		(SELECT COUNT(*) FROM turns t WHERE t.conversation_id = c.id),
		COALESCE((SELECT t.content FROM turns t
			WHERE t.conversation_id = c.id AND t.role = 'user'
			ORDER BY t.seq LIMIT 1), '')
	FROM conversations c`

// List returns metadata for all conversations, newest first.
func (s *Store) List() ([]model.TranscriptMeta, error) {
	return s.queryMeta(metaQuery+` ORDER BY c.updated_at DESC`, nil)
}

// Search returns conversations whose title or content matches the query,
// newest first.
func (s *Store) Search(query string) ([]model.TranscriptMeta, error) {
	pattern := "%" + query + "%"
	return s.queryMeta(metaQuery+`
		WHERE c.title LIKE ? OR c.id IN
			(SELECT DISTINCT conversation_id FROM turns WHERE content LIKE ?)
		ORDER BY c.updated_at DESC`, []any{pattern, pattern})
}

func (s *Store) queryMeta(query string, args []any) ([]model.TranscriptMeta, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var metas []model.TranscriptMeta
	for rows.Next() {
		var m model.TranscriptMeta
		if err := rows.Scan(&m.ID, &m.Title, &m.Model, &m.CreatedAt, &m.UpdatedAt,
			&m.TurnCount, &m.Preview); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}
		m.Preview = util.TruncateRunes(m.Preview, 100)
		metas = append(metas, m)
	}
	return metas, rows.Err()
}

// =============================================================================
// DELETE / LIMIT
// =============================================================================

// Delete removes a conversation. Returns ErrNotFound when absent.
func (s *Store) Delete(id string) error {
	res, err := s.db.Exec(`DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Clear removes all conversations.
func (s *Store) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM conversations`); err != nil {
		return fmt.Errorf("failed to clear conversations: %w", err)
	}
	return nil
}

// Count returns the number of stored conversations.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&n)
	return n, err
}

// enforceLimit evicts the oldest conversations beyond MaxConversations.
func (s *Store) enforceLimit(tx *sql.Tx) error {
	if s.MaxConversations <= 0 {
		return nil
	}
	_, err := tx.Exec(`
		DELETE FROM conversations WHERE id IN (
			SELECT id FROM conversations
			ORDER BY updated_at DESC
			LIMIT -1 OFFSET ?
		)`, s.MaxConversations)
	if err != nil {
		return fmt.Errorf("failed to enforce history limit: %w", err)
	}
	return nil
}
