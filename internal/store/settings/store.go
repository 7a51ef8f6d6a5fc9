package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/42ByteLabs/konarr-core/internal/errs"
)

// Setting is one persisted configuration row.
type Setting struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	Type      string    `db:"type"`
	Value     string    `db:"value"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Store provides the Settings Store operations.
type Store struct {
	db *sqlx.DB
}

// New builds a Store.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Seed inserts every row in Defaults that does not already exist. It never
// overwrites a value already present — seeding is idempotent across
// restarts.
func (s *Store) Seed(ctx context.Context) error {
	for _, d := range Defaults {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO settings (name, type, value) VALUES ($1, $2, $3)
             ON CONFLICT (name) DO NOTHING`,
			string(d.Key), string(d.Type), d.Value)
		if err != nil {
			return errs.Database("settings", fmt.Errorf("seed %s: %w", d.Key, err))
		}
	}
	return nil
}

// PruneDeleted removes every row whose registered type is Delete, per spec
// §3's "keys marked Delete are pruned at startup" invariant.
func (s *Store) PruneDeleted(ctx context.Context) error {
	for _, d := range Defaults {
		if d.Type != TypeDelete {
			continue
		}
		if _, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE name = $1`, string(d.Key)); err != nil {
			return errs.Database("settings", fmt.Errorf("prune %s: %w", d.Key, err))
		}
	}
	return nil
}

// Get reads a raw setting row.
func (s *Store) Get(ctx context.Context, key Key) (*Setting, error) {
	var row Setting
	err := s.db.GetContext(ctx, &row, `SELECT * FROM settings WHERE name = $1`, string(key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFound("setting", string(key))
		}
		return nil, errs.Database("settings", fmt.Errorf("get %s: %w", key, err))
	}
	return &row, nil
}

// Set writes a setting's value, creating the row if absent. Callers own
// respecting the Statistics/Delete write restrictions; the statistics
// rollup task and startup pruning are the only code paths expected to call
// Set on those key types.
func (s *Store) Set(ctx context.Context, key Key, typ Type, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (name, type, value, updated_at) VALUES ($1, $2, $3, now())
         ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		string(key), string(typ), value)
	if err != nil {
		return errs.Database("settings", fmt.Errorf("set %s: %w", key, err))
	}
	return nil
}

// GetBool reads a setting as a boolean. Toggle-typed settings store
// "enabled"/"disabled"; Boolean-typed settings store "true"/"false". Both
// are accepted here since callers rarely care which representation a given
// key happens to use.
func (s *Store) GetBool(ctx context.Context, key Key) (bool, error) {
	row, err := s.Get(ctx, key)
	if err != nil {
		if errs.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	switch row.Value {
	case "enabled", "true":
		return true, nil
	default:
		return false, nil
	}
}

// GetString reads a setting as a raw string, returning "" if absent.
func (s *Store) GetString(ctx context.Context, key Key) (string, error) {
	row, err := s.Get(ctx, key)
	if err != nil {
		if errs.IsNotFound(err) {
			return "", nil
		}
		return "", err
	}
	return row.Value, nil
}

// GetInt reads a setting as an integer, returning 0 if absent or unparsable.
func (s *Store) GetInt(ctx context.Context, key Key) (int64, error) {
	row, err := s.Get(ctx, key)
	if err != nil {
		if errs.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	n, err := strconv.ParseInt(row.Value, 10, 64)
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// SetToggle writes "enabled" or "disabled" to a Toggle-typed setting.
func (s *Store) SetToggle(ctx context.Context, key Key, on bool) error {
	value := "disabled"
	if on {
		value = "enabled"
	}
	return s.Set(ctx, key, TypeToggle, value)
}

// SetStatistic writes an integer to a Statistics-typed setting. This is the
// only write path the Statistics Rollup task should use.
func (s *Store) SetStatistic(ctx context.Context, key Key, value int64) error {
	return s.Set(ctx, key, TypeStatistics, strconv.FormatInt(value, 10))
}
