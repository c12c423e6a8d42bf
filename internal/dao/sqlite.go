// Package dao persists accounts in SQLite with an explicit, versioned
// schema: an account row plus one row per message in inbox order. The whole
// account record is rewritten on every persist, matching the manager's
// read-mutate-re-persist cycle.
package dao

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"courier/internal/accounts"
	"courier/internal/blobstorage"
	"courier/internal/message"
)

const schemaVersion = "1"

// BlobStorage offloads large message bodies out of the database.
type BlobStorage interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// SQLiteDAO implements the accounts.DAO contract on a single shared SQLite
// database file. When a blob storage is attached, bodies longer than
// inlineLimit are stored there and the row keeps only the object key.
type SQLiteDAO struct {
	db          *sql.DB
	blobs       BlobStorage
	inlineLimit int
}

var _ accounts.DAO = (*SQLiteDAO)(nil)

// NewSQLiteDAO opens (creating if necessary) the account database under
// dataDir.
func NewSQLiteDAO(dataDir string) (*SQLiteDAO, error) {
	return NewSQLiteDAOWithBlobStorage(dataDir, nil, 0)
}

// NewSQLiteDAOWithBlobStorage opens the account database and attaches an
// optional blob storage for oversized message bodies. A nil blobs keeps
// every body inline.
func NewSQLiteDAOWithBlobStorage(dataDir string, blobs BlobStorage, inlineLimit int) (*SQLiteDAO, error) {
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %v", err)
	}

	dbPath := filepath.Join(dataDir, "accounts.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open account database: %v", err)
	}

	d, err := newFromDB(db, blobs, inlineLimit)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return d, nil
}

// NewSQLiteDAOInMemory opens a private in-memory database. Used by tests
// and the accountctl dry-run path.
func NewSQLiteDAOInMemory() (*SQLiteDAO, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %v", err)
	}
	// Every pooled connection would get its own empty in-memory database.
	db.SetMaxOpenConns(1)
	d, err := newFromDB(db, nil, 0)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return d, nil
}

func newFromDB(db *sql.DB, blobs BlobStorage, inlineLimit int) (*SQLiteDAO, error) {
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %v", err)
	}
	if err := initSchema(db); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %v", err)
	}
	if inlineLimit <= 0 {
		inlineLimit = blobstorage.DefaultInlineLimit
	}
	return &SQLiteDAO{db: db, blobs: blobs, inlineLimit: inlineLimit}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL,
		secret_digest BLOB NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		sender TEXT NOT NULL,
		recipient TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		body TEXT NOT NULL,
		blob_key TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (account_id) REFERENCES accounts(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_messages_account_position
		ON messages(account_id, position);
	`
	if _, err := db.Exec(schema); err != nil {
		return err
	}
	_, err := db.Exec(
		"INSERT OR IGNORE INTO metadata (key, value) VALUES ('schema_version', ?)",
		schemaVersion)
	return err
}

// GetAccount loads the full account record, (nil, nil) when absent.
func (d *SQLiteDAO) GetAccount(name string) (*accounts.Account, error) {
	var accountID int64
	var digest []byte
	err := d.db.QueryRow(
		"SELECT id, secret_digest FROM accounts WHERE name = ?", name).
		Scan(&accountID, &digest)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query account %q: %v", name, err)
	}

	account := accounts.NewAccount(name, digest)

	rows, err := d.db.Query(
		"SELECT sender, recipient, timestamp, body, blob_key FROM messages WHERE account_id = ? ORDER BY position",
		accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages for %q: %v", name, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var sender, recipient, timestamp, body, blobKey string
		if err := rows.Scan(&sender, &recipient, &timestamp, &body, &blobKey); err != nil {
			return nil, fmt.Errorf("failed to scan message row for %q: %v", name, err)
		}
		ts, err := time.Parse(time.RFC3339Nano, timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to parse message timestamp %q: %v", timestamp, err)
		}
		if blobKey != "" {
			if d.blobs == nil {
				return nil, fmt.Errorf("message body for %q lives in blob storage (%s) but blob storage is not configured", name, blobKey)
			}
			data, err := d.blobs.Get(context.Background(), blobKey)
			if err != nil {
				return nil, fmt.Errorf("failed to load message body for %q: %v", name, err)
			}
			body = string(data)
		}
		account.Inbox.Append(message.Message{
			Sender:    sender,
			Recipient: recipient,
			Timestamp: ts,
			Body:      body,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read message rows for %q: %v", name, err)
	}
	return account, nil
}

// PersistAccount writes the whole account record: the account row is
// upserted and the message rows are replaced in inbox order.
func (d *SQLiteDAO) PersistAccount(account *accounts.Account) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.Exec(
		`INSERT INTO accounts (name, secret_digest) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET secret_digest = excluded.secret_digest`,
		account.Name, account.SecretDigest); err != nil {
		return fmt.Errorf("failed to upsert account %q: %v", account.Name, err)
	}

	var accountID int64
	if err := tx.QueryRow(
		"SELECT id FROM accounts WHERE name = ?", account.Name).Scan(&accountID); err != nil {
		return fmt.Errorf("failed to resolve account id for %q: %v", account.Name, err)
	}

	// Collect the blob keys held by the old rows so they can be reclaimed
	// once the new record is committed.
	oldKeys, err := blobKeysForAccount(tx, accountID)
	if err != nil {
		return err
	}

	if _, err := tx.Exec("DELETE FROM messages WHERE account_id = ?", accountID); err != nil {
		return fmt.Errorf("failed to clear old messages for %q: %v", account.Name, err)
	}

	for i, msg := range account.Inbox.List() {
		body := msg.Body
		blobKey := ""
		if d.blobs != nil && len(body) > d.inlineLimit {
			blobKey, err = blobstorage.NewKey(account.Name)
			if err != nil {
				return err
			}
			if err := d.blobs.Put(context.Background(), blobKey, []byte(body)); err != nil {
				return fmt.Errorf("failed to offload message body for %q: %v", account.Name, err)
			}
			body = ""
		}
		if _, err := tx.Exec(
			`INSERT INTO messages (account_id, position, sender, recipient, timestamp, body, blob_key)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			accountID, i, msg.Sender, msg.Recipient,
			msg.Timestamp.Format(time.RFC3339Nano), body, blobKey); err != nil {
			return fmt.Errorf("failed to insert message %d for %q: %v", i, account.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit account %q: %v", account.Name, err)
	}

	// Old blobs are orphaned by the rewrite; reclaim best effort.
	if d.blobs != nil {
		for _, key := range oldKeys {
			if err := d.blobs.Delete(context.Background(), key); err != nil {
				log.Printf("Failed to delete orphaned blob %s: %v", key, err)
			}
		}
	}
	return nil
}

func blobKeysForAccount(tx *sql.Tx, accountID int64) ([]string, error) {
	rows, err := tx.Query(
		"SELECT blob_key FROM messages WHERE account_id = ? AND blob_key != ''", accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query blob keys: %v", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan blob key: %v", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// AccountExists reports whether an account with the given name is stored.
func (d *SQLiteDAO) AccountExists(name string) (bool, error) {
	var one int
	err := d.db.QueryRow("SELECT 1 FROM accounts WHERE name = ?", name).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check account %q: %v", name, err)
	}
	return true, nil
}

// ClearAll removes every account and message. Test/reset utility.
func (d *SQLiteDAO) ClearAll() error {
	if _, err := d.db.Exec("DELETE FROM messages"); err != nil {
		return fmt.Errorf("failed to clear messages: %v", err)
	}
	if _, err := d.db.Exec("DELETE FROM accounts"); err != nil {
		return fmt.Errorf("failed to clear accounts: %v", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (d *SQLiteDAO) Close() error {
	return d.db.Close()
}
