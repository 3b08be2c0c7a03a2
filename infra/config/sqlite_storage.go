package config

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStorage persists the settings singleton. Secret fields are stored encrypted.
type SQLiteStorage struct {
	db     *sql.DB
	path   string
	cipher *SecretCipher
	mu     sync.Mutex
}

// retryOperation executes a database operation with retry logic for SQLITE_BUSY errors
func (s *SQLiteStorage) retryOperation(operation func() error, maxRetries int) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		if strings.Contains(err.Error(), "SQLITE_BUSY") || strings.Contains(err.Error(), "database is locked") {
			lastErr = err
			if attempt < maxRetries {
				// 10ms, 20ms, 40ms, ...
				backoff := time.Duration(10*(1<<attempt)) * time.Millisecond
				time.Sleep(backoff)
				continue
			}
		} else {
			return err
		}
	}

	return fmt.Errorf("operation failed after %d retries, last error: %w", maxRetries+1, lastErr)
}

// NewSQLiteStorage opens (or creates) the settings database at dbPath
func NewSQLiteStorage(dbPath string, cipher *SecretCipher) (*SQLiteStorage, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_timeout=20000&_txlock=immediate", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if cipher == nil {
		cipher = NewSecretCipher("")
	}

	storage := &SQLiteStorage{
		db:     db,
		path:   dbPath,
		cipher: cipher,
	}

	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Printf("SQLite settings storage initialized at: %s", dbPath)
	return storage, nil
}

func (s *SQLiteStorage) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS monopay_settings (
		field TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		is_secret INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.Exec(query)
	return err
}

// DB exposes the underlying connection so other stores can share the file
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// SetField stores a plain settings field
func (s *SQLiteStorage) SetField(field, value string) error {
	return s.save(field, value, false)
}

// SetPassword encrypts and stores a secret settings field
func (s *SQLiteStorage) SetPassword(field, value string) error {
	encrypted, err := s.cipher.Encrypt(value)
	if err != nil {
		return err
	}
	return s.save(field, encrypted, true)
}

// GetField returns a plain settings field
func (s *SQLiteStorage) GetField(field string) (string, error) {
	value, _, err := s.load(field)
	return value, err
}

// GetPassword returns a decrypted secret settings field
func (s *SQLiteStorage) GetPassword(field string) (string, error) {
	value, secret, err := s.load(field)
	if err != nil {
		return "", err
	}
	if !secret {
		return "", fmt.Errorf("settings field %s is not a secret", field)
	}
	return s.cipher.Decrypt(value)
}

// DeleteField removes a settings field
func (s *SQLiteStorage) DeleteField(field string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.retryOperation(func() error {
		_, err := s.db.Exec(`DELETE FROM monopay_settings WHERE field = ?`, field)
		if err != nil {
			return fmt.Errorf("failed to delete settings field: %w", err)
		}
		return nil
	}, 3)
}

func (s *SQLiteStorage) save(field, value string, secret bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.retryOperation(func() error {
		query := `
		INSERT INTO monopay_settings (field, value, is_secret, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(field)
		DO UPDATE SET
			value = excluded.value,
			is_secret = excluded.is_secret,
			updated_at = CURRENT_TIMESTAMP
		`

		if _, err := s.db.Exec(query, field, value, secret); err != nil {
			return fmt.Errorf("failed to save settings field: %w", err)
		}
		return nil
	}, 3)
}

func (s *SQLiteStorage) load(field string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		value  string
		secret bool
	)
	err := s.retryOperation(func() error {
		err := s.db.QueryRow(`SELECT value, is_secret FROM monopay_settings WHERE field = ?`, field).Scan(&value, &secret)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%s: %w", field, ErrFieldNotSet)
			}
			return fmt.Errorf("failed to load settings field: %w", err)
		}
		return nil
	}, 3)

	return value, secret, err
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
