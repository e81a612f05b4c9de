package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	exterrors "github.com/Aman-CERP/extsearch/internal/errors"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// MaxSettingLength bounds both the key and the value of a Setting.
const MaxSettingLength = 200

// ErrSchemaNotReady is returned by reads against a database whose setting
// table has not been created yet.
var ErrSchemaNotReady = errors.New("settings schema not ready")

// Setting is one persisted override. Key is a flattened settings path
// such as "boost_parts__query_types__phrase". A nil Value is SQL NULL.
type Setting struct {
	Key   string  `json:"key"`
	Value *string `json:"value"`
}

// StringValue returns the value or "" for NULL.
func (s Setting) StringValue() string {
	if s.Value == nil {
		return ""
	}
	return *s.Value
}

const settingSchema = `
CREATE TABLE IF NOT EXISTS extended_search_setting (
	id    INTEGER PRIMARY KEY AUTOINCREMENT,
	key   VARCHAR(200) NOT NULL UNIQUE,
	value VARCHAR(200) NULL
);`

// SettingStore persists Setting rows in SQLite. Writes fire the OnSave
// and OnDelete hooks in the writing process only.
type SettingStore struct {
	db   *sql.DB
	path string

	hookMu   sync.RWMutex
	onSave   []func(Setting)
	onDelete []func(key string)
}

// OpenSettingStore opens the database at path without creating the
// schema; call Migrate for that. An empty path opens an in-memory database.
func OpenSettingStore(path string) (*SettingStore, error) {
	dsn := ":memory:"
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			if os.IsPermission(err) {
				return nil, exterrors.New(exterrors.ErrCodeFilePermission, "cannot create settings directory", err).
					WithDetail("path", dir)
			}
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, exterrors.New(exterrors.ErrCodeStoreUnavailable, "failed to open settings database", err)
	}

	// One connection keeps :memory: databases alive and serialises writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if path != "" {
		for _, pragma := range []string{
			"PRAGMA journal_mode = WAL",
			"PRAGMA busy_timeout = 5000",
			"PRAGMA synchronous = NORMAL",
		} {
			if _, err := db.Exec(pragma); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("failed to set pragma: %w", err)
			}
		}
	}

	return &SettingStore{db: db, path: path}, nil
}

// Migrate creates the setting table if it does not exist.
func (s *SettingStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, settingSchema); err != nil {
		return exterrors.New(exterrors.ErrCodeStoreUnavailable, "failed to migrate settings table", err)
	}
	return nil
}

// DB exposes the underlying handle so other stores can share the file.
func (s *SettingStore) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *SettingStore) Close() error {
	return s.db.Close()
}

// OnSave registers fn to run after every successful Set.
func (s *SettingStore) OnSave(fn func(Setting)) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.onSave = append(s.onSave, fn)
}

// OnDelete registers fn to run after every successful Delete.
func (s *SettingStore) OnDelete(fn func(key string)) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.onDelete = append(s.onDelete, fn)
}

// ListSettings returns every row ordered by key. A missing table yields
// an error wrapping ErrSchemaNotReady.
func (s *SettingStore) ListSettings(ctx context.Context) ([]Setting, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM extended_search_setting ORDER BY key`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []Setting
	for rows.Next() {
		var (
			st    Setting
			value sql.NullString
		)
		if err := rows.Scan(&st.Key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		if value.Valid {
			v := value.String
			st.Value = &v
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

// Get returns the row for key.
func (s *SettingStore) Get(ctx context.Context, key string) (Setting, error) {
	var value sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM extended_search_setting WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return Setting{}, exterrors.SettingNotFound(key)
	}
	if err != nil {
		return Setting{}, classify(err)
	}
	st := Setting{Key: key}
	if value.Valid {
		v := value.String
		st.Value = &v
	}
	return st, nil
}

// Set inserts or updates key.
func (s *SettingStore) Set(ctx context.Context, key string, value *string) error {
	if err := validateSetting(key, value); err != nil {
		return err
	}

	var arg any
	if value != nil {
		arg = *value
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO extended_search_setting (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, arg)
	if err != nil {
		return classify(err)
	}

	slog.Debug("setting_saved", slog.String("key", key))

	s.hookMu.RLock()
	hooks := append([]func(Setting){}, s.onSave...)
	s.hookMu.RUnlock()
	for _, fn := range hooks {
		fn(Setting{Key: key, Value: value})
	}
	return nil
}

// Delete removes key. Deleting an absent key is a not-found error.
func (s *SettingStore) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM extended_search_setting WHERE key = ?`, key)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return exterrors.SettingNotFound(key)
	}

	slog.Debug("setting_deleted", slog.String("key", key))

	s.hookMu.RLock()
	hooks := append([]func(string){}, s.onDelete...)
	s.hookMu.RUnlock()
	for _, fn := range hooks {
		fn(key)
	}
	return nil
}

func validateSetting(key string, value *string) error {
	if strings.TrimSpace(key) == "" {
		return exterrors.ValidationError("setting key must not be empty", nil)
	}
	if utf8.RuneCountInString(key) > MaxSettingLength {
		return exterrors.ValidationError(
			fmt.Sprintf("setting key exceeds %d characters", MaxSettingLength), nil).
			WithDetail("key", key)
	}
	if value != nil && utf8.RuneCountInString(*value) > MaxSettingLength {
		return exterrors.ValidationError(
			fmt.Sprintf("setting value exceeds %d characters", MaxSettingLength), nil).
			WithDetail("key", key)
	}
	return nil
}

// classify maps "no such table" and column mismatches, the errors seen
// before migrations ran, to ErrSchemaNotReady.
func classify(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "no such table") || strings.Contains(msg, "no such column") {
		return fmt.Errorf("%w: %v", ErrSchemaNotReady, err)
	}
	return exterrors.New(exterrors.ErrCodeStoreUnavailable, "settings query failed", err)
}
