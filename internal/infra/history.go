package infra

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Ensure sqlcipher driver is registered.
	_ "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/quietloop/repackmon/internal/domain"
)

const historyDBName = "history.db"

// SQLHistoryStore implements domain.HistoryStore on a SQLCipher encrypted
// SQLite database. The journal is append-only: one row per completed
// rising-edge cycle.
type SQLHistoryStore struct {
	db     *sql.DB
	dbPath string
}

// NewHistoryStore opens (or creates) the journal in the given data
// directory, keyed via the FileKeyProvider living alongside it.
func NewHistoryStore(dataDir string) (*SQLHistoryStore, error) {
	key, err := NewFileKeyProvider(dataDir).GetOrCreate()
	if err != nil {
		return nil, fmt.Errorf("failed to obtain journal key: %w", err)
	}
	return NewHistoryStoreWithKey(dataDir, key)
}

// NewHistoryStoreWithKey opens the journal with an explicit key (for
// testing). The key is used as the SQLCipher passphrase via PRAGMA key.
func NewHistoryStoreWithKey(dataDir string, key []byte) (*SQLHistoryStore, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, historyDBName)
	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096",
		dbPath, hex.EncodeToString(key))

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to journal database: %w", err)
	}

	store := &SQLHistoryStore{db: db, dbPath: dbPath}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create journal schema: %w", err)
	}

	return store, nil
}

func (s *SQLHistoryStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS repack_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		action TEXT NOT NULL,
		fingerprint TEXT NOT NULL DEFAULT '',
		tool_outcome TEXT NOT NULL DEFAULT '',
		relaunched INTEGER NOT NULL DEFAULT 0,
		executed_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append records one completed cycle.
func (s *SQLHistoryStore) Append(record domain.RepackRecord) error {
	relaunched := 0
	if record.Relaunched {
		relaunched = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO repack_history (action, fingerprint, tool_outcome, relaunched, executed_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(record.Action), string(record.Fingerprint), record.ToolOutcome,
		relaunched, record.ExecutedAt.Unix(), record.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to append history record: %w", err)
	}
	return nil
}

// Recent returns the newest records, most recent first.
func (s *SQLHistoryStore) Recent(limit int) ([]domain.RepackRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, action, fingerprint, tool_outcome, relaunched, executed_at, duration_ms
		FROM repack_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []domain.RepackRecord
	for rows.Next() {
		var (
			rec        domain.RepackRecord
			action     string
			fp         string
			relaunched int
			executedAt int64
		)
		if err := rows.Scan(&rec.ID, &action, &fp, &rec.ToolOutcome, &relaunched, &executedAt, &rec.DurationMs); err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		rec.Action = domain.CycleAction(action)
		rec.Fingerprint = domain.Fingerprint(fp)
		rec.Relaunched = relaunched != 0
		rec.ExecutedAt = time.Unix(executedAt, 0)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close releases the database connection.
func (s *SQLHistoryStore) Close() error {
	return s.db.Close()
}

// Ensure SQLHistoryStore implements domain.HistoryStore.
var _ domain.HistoryStore = (*SQLHistoryStore)(nil)
