package infra

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/eliteGoblin/focusd/bgmute/internal/domain"
)

// Ensure sqlcipher driver is registered.
var _ = sqlcipher.ErrBusy

const ledgerDBName = "ledger.db"

// SQLLedger implements domain.MuteLedger using a SQLCipher encrypted
// SQLite database. One row per session the engine muted.
type SQLLedger struct {
	db     *sql.DB
	dbPath string
}

// NewSQLLedger opens (or creates) the ledger database in dataDir.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewSQLLedger(dataDir string, key []byte) (*SQLLedger, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, ledgerDBName)
	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, hex.EncodeToString(key))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}

	// Fails here when the key does not match the file.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to ledger database: %w", err)
	}

	l := &SQLLedger{db: db, dbPath: dbPath}
	if err := l.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return l, nil
}

func (l *SQLLedger) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS muted_sessions (
		exe_key TEXT NOT NULL,
		pid INTEGER NOT NULL,
		exe_name TEXT NOT NULL,
		muted_at INTEGER NOT NULL,
		PRIMARY KEY (exe_key, pid)
	);
	`
	_, err := l.db.Exec(schema)
	return err
}

// RecordMuted stores the session as muted by the engine.
func (l *SQLLedger) RecordMuted(id domain.ProcessIdentity) error {
	_, err := l.db.Exec(`
		INSERT OR REPLACE INTO muted_sessions (exe_key, pid, exe_name, muted_at)
		VALUES (?, ?, ?, ?)`,
		strings.ToLower(id.ExeName), id.PID, id.ExeName, time.Now().Unix(),
	)
	return err
}

// RecordUnmuted clears the session.
func (l *SQLLedger) RecordUnmuted(id domain.ProcessIdentity) error {
	_, err := l.db.Exec(`DELETE FROM muted_sessions WHERE exe_key = ? AND pid = ?`,
		strings.ToLower(id.ExeName), id.PID)
	return err
}

// List returns all recorded sessions ordered by exe name and pid.
func (l *SQLLedger) List() ([]domain.MuteRecord, error) {
	rows, err := l.db.Query(`SELECT exe_name, pid, muted_at FROM muted_sessions ORDER BY exe_key, pid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.MuteRecord
	for rows.Next() {
		var name string
		var pid int64
		var mutedAt int64
		if err := rows.Scan(&name, &pid, &mutedAt); err != nil {
			return nil, err
		}
		records = append(records, domain.MuteRecord{
			ExeName: name,
			PID:     uint32(pid),
			MutedAt: time.Unix(mutedAt, 0),
		})
	}
	return records, rows.Err()
}

// Clear removes all records.
func (l *SQLLedger) Clear() error {
	_, err := l.db.Exec(`DELETE FROM muted_sessions`)
	return err
}

// Path returns the database file path.
func (l *SQLLedger) Path() string {
	return l.dbPath
}

// Close releases the database connection.
func (l *SQLLedger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

// OpenLedger opens the ledger in dataDir, creating its key on first use.
func OpenLedger(dataDir string) (*SQLLedger, error) {
	key, err := NewFileKeyProvider(dataDir).EnsureKey()
	if err != nil {
		return nil, fmt.Errorf("ledger key: %w", err)
	}
	return NewSQLLedger(dataDir, key)
}

// Ensure SQLLedger implements domain.MuteLedger.
var _ domain.MuteLedger = (*SQLLedger)(nil)
