// Package store provides the sqlite-backed state service for xmtpclaw:
// settings, pairing records, and per-session activity.
package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS pairings (
	channel TEXT NOT NULL,
	account_id TEXT NOT NULL,
	sender TEXT NOT NULL,
	code TEXT NOT NULL,
	approved BOOLEAN NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	approved_at DATETIME,
	PRIMARY KEY (channel, account_id, sender)
);

CREATE TABLE IF NOT EXISTS sessions (
	session_key TEXT PRIMARY KEY,
	account_id TEXT NOT NULL DEFAULT '',
	last_activity INTEGER NOT NULL DEFAULT 0,
	inbound_count INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_sessions_account ON sessions(account_id);
`

// Service wraps the sqlite state database.
type Service struct {
	db *sql.DB
}

// New opens (and initializes) the state database at dbPath, creating the
// parent directory if needed.
func New(dbPath string) (*Service, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open state db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Service{db: db}, nil
}

// DB exposes the underlying handle for tests.
func (s *Service) DB() *sql.DB { return s.db }

func (s *Service) Close() error { return s.db.Close() }

// GetSetting returns a setting value, or empty string when unset.
func (s *Service) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetSetting upserts a setting value.
func (s *Service) SetSetting(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

// Pairing is a sender's trust record for one channel account.
type Pairing struct {
	Channel    string     `json:"channel"`
	AccountID  string     `json:"account_id"`
	Sender     string     `json:"sender"`
	Code       string     `json:"code"`
	Approved   bool       `json:"approved"`
	CreatedAt  time.Time  `json:"created_at"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
}

// CreateOrGetPending returns the existing pairing record for the sender,
// creating a pending one with a fresh short code when none exists.
func (s *Service) CreateOrGetPending(channel, accountID, sender string) (Pairing, error) {
	sender = normalizeSender(sender)
	existing, err := s.getPairing(channel, accountID, sender)
	if err == nil {
		return existing, nil
	}
	if err != sql.ErrNoRows {
		return Pairing{}, err
	}

	code, err := pairingCode()
	if err != nil {
		return Pairing{}, err
	}
	_, err = s.db.Exec(`
		INSERT INTO pairings (channel, account_id, sender, code, approved) VALUES (?, ?, ?, ?, 0)
		ON CONFLICT(channel, account_id, sender) DO NOTHING
	`, channel, accountID, sender, code)
	if err != nil {
		return Pairing{}, err
	}
	return s.getPairing(channel, accountID, sender)
}

// Approve marks a pending pairing as approved.
func (s *Service) Approve(channel, accountID, sender string) error {
	res, err := s.db.Exec(`
		UPDATE pairings SET approved = 1, approved_at = CURRENT_TIMESTAMP
		WHERE channel = ? AND account_id = ? AND sender = ?
	`, channel, accountID, normalizeSender(sender))
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("no pairing record for %s", sender)
	}
	return nil
}

// Deny removes a pairing record entirely.
func (s *Service) Deny(channel, accountID, sender string) error {
	_, err := s.db.Exec(`
		DELETE FROM pairings WHERE channel = ? AND account_id = ? AND sender = ?
	`, channel, accountID, normalizeSender(sender))
	return err
}

// IsPaired reports whether the sender has an approved pairing.
func (s *Service) IsPaired(channel, accountID, sender string) (bool, error) {
	var approved bool
	err := s.db.QueryRow(`
		SELECT approved FROM pairings WHERE channel = ? AND account_id = ? AND sender = ?
	`, channel, accountID, normalizeSender(sender)).Scan(&approved)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return approved, nil
}

// ListPairings returns all pairing records for an account, pending first.
func (s *Service) ListPairings(channel, accountID string) ([]Pairing, error) {
	rows, err := s.db.Query(`
		SELECT channel, account_id, sender, code, approved, created_at, approved_at
		FROM pairings WHERE channel = ? AND account_id = ?
		ORDER BY approved ASC, created_at ASC
	`, channel, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Pairing
	for rows.Next() {
		var p Pairing
		var approvedAt sql.NullTime
		if err := rows.Scan(&p.Channel, &p.AccountID, &p.Sender, &p.Code, &p.Approved, &p.CreatedAt, &approvedAt); err != nil {
			return nil, err
		}
		if approvedAt.Valid {
			t := approvedAt.Time
			p.ApprovedAt = &t
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Service) getPairing(channel, accountID, sender string) (Pairing, error) {
	var p Pairing
	var approvedAt sql.NullTime
	err := s.db.QueryRow(`
		SELECT channel, account_id, sender, code, approved, created_at, approved_at
		FROM pairings WHERE channel = ? AND account_id = ? AND sender = ?
	`, channel, accountID, sender).Scan(&p.Channel, &p.AccountID, &p.Sender, &p.Code, &p.Approved, &p.CreatedAt, &approvedAt)
	if err != nil {
		return Pairing{}, err
	}
	if approvedAt.Valid {
		t := approvedAt.Time
		p.ApprovedAt = &t
	}
	return p, nil
}

// TouchSession records inbound activity on a session. Last writer by
// receipt time wins: an older event arriving late never rewinds the
// recorded last activity.
func (s *Service) TouchSession(sessionKey, accountID string, receivedAt time.Time) error {
	ts := receivedAt.UnixMilli()
	_, err := s.db.Exec(`
		INSERT INTO sessions (session_key, account_id, last_activity, inbound_count)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(session_key) DO UPDATE SET
			last_activity = MAX(last_activity, excluded.last_activity),
			inbound_count = inbound_count + 1
	`, sessionKey, accountID, ts)
	return err
}

// LastActivity returns the previous activity timestamp for a session, with
// ok=false when the session has never been seen.
func (s *Service) LastActivity(sessionKey string) (time.Time, bool, error) {
	var ts int64
	err := s.db.QueryRow(`SELECT last_activity FROM sessions WHERE session_key = ?`, sessionKey).Scan(&ts)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	if ts == 0 {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ts), true, nil
}

func normalizeSender(sender string) string {
	return strings.ToLower(strings.TrimSpace(sender))
}

// pairingCode generates a short uppercase hex code the operator reads back
// when approving a sender.
func pairingCode() (string, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(buf[:])), nil
}
