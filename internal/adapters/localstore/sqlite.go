// Package localstore is the device-local fallback store: a small SQLite
// key/value table holding the bookmark snapshot, the persisted session and a
// stable installation id. It is the store of record whenever no backend
// session is available.
package localstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"parchment/internal/domain"
)

const (
	keyBookmarks      = "bookmarks"
	keySession        = "session"
	keyInstallationID = "installation_id"
)

type Store struct{ db *sql.DB }

// Open creates (if needed) and opens the local store under dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("localstore: mkdir: %w", err)
	}
	path := filepath.Join(dir, "parchment.db")
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=10000")
	if err != nil {
		return nil, fmt.Errorf("localstore: open: %w", err)
	}

	// SQLite works best with a single writer; serialize all access.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("localstore: create table: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) get(key string) ([]byte, bool, error) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(v), true, nil
}

func (s *Store) put(key string, value []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, string(value))
	return err
}

func (s *Store) del(key string) error {
	_, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key)
	return err
}

// LoadBookmarks returns the cached bookmark snapshot, or an empty list when
// none has been written yet.
func (s *Store) LoadBookmarks() ([]domain.Place, error) {
	b, ok, err := s.get(keyBookmarks)
	if err != nil || !ok {
		return nil, err
	}
	var ps []domain.Place
	if err := json.Unmarshal(b, &ps); err != nil {
		return nil, fmt.Errorf("localstore: decode bookmarks: %w", err)
	}
	return ps, nil
}

func (s *Store) SaveBookmarks(ps []domain.Place) error {
	if ps == nil {
		ps = []domain.Place{}
	}
	b, err := json.Marshal(ps)
	if err != nil {
		return fmt.Errorf("localstore: encode bookmarks: %w", err)
	}
	return s.put(keyBookmarks, b)
}

func (s *Store) LoadSession() (*domain.Session, error) {
	b, ok, err := s.get(keySession)
	if err != nil || !ok {
		return nil, err
	}
	var sess domain.Session
	if err := json.Unmarshal(b, &sess); err != nil {
		return nil, fmt.Errorf("localstore: decode session: %w", err)
	}
	return &sess, nil
}

func (s *Store) SaveSession(sess domain.Session) error {
	b, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("localstore: encode session: %w", err)
	}
	return s.put(keySession, b)
}

func (s *Store) ClearSession() error { return s.del(keySession) }

// InstallationID returns a stable per-device id, generating and persisting one
// on first use.
func (s *Store) InstallationID() (string, error) {
	b, ok, err := s.get(keyInstallationID)
	if err != nil {
		return "", err
	}
	if ok {
		return string(b), nil
	}
	id := uuid.NewString()
	if err := s.put(keyInstallationID, []byte(id)); err != nil {
		return "", err
	}
	return id, nil
}
