package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/gsis-platform/gsis-dashboard/internal/domain"
)

// Key layout mirrors the browser localStorage namespace of the web client:
// a standalone theme key and a full settings blob.
const (
	keyTheme    = "gsis:theme"
	keySettings = "gsis:settings"
)

// Store persists dashboard settings and theme in a local key-value store.
// Writes complete before they are acknowledged, so a Load in the same
// process never observes stale data.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// Open opens (or creates) the settings store under dir.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings store: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the persisted settings shallow-merged onto defaults. Missing
// or unreadable state falls back to defaults; Load never fails hard.
func (s *Store) Load() domain.Settings {
	out := domain.DefaultSettings()
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keySettings))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		})
	})
	if err != nil {
		s.logger.Warn("failed to load persisted settings, using defaults", "error", err)
		return domain.DefaultSettings()
	}
	return out
}

// Save persists the full settings object.
func (s *Store) Save(settings domain.Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keySettings), data)
	})
	if err != nil {
		return fmt.Errorf("failed to persist settings: %w", err)
	}
	return nil
}

// LoadTheme returns the persisted theme. Anything other than "light" reads
// as dark, matching first-run behavior.
func (s *Store) LoadTheme() domain.Theme {
	theme := domain.ThemeDark
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyTheme))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if string(val) == string(domain.ThemeLight) {
				theme = domain.ThemeLight
			}
			return nil
		})
	})
	if err != nil {
		s.logger.Warn("failed to load persisted theme, using dark", "error", err)
		return domain.ThemeDark
	}
	return theme
}

// SaveTheme persists the theme key.
func (s *Store) SaveTheme(theme domain.Theme) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyTheme), []byte(theme))
	})
	if err != nil {
		return fmt.Errorf("failed to persist theme: %w", err)
	}
	return nil
}
