package catalog

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

// ServiceConfig is the typed key/value accessor described in §9: the *only*
// way any component reads or writes process-wide persisted state.
type ServiceConfig interface {
	Get(ctx context.Context, name ServiceConfigName) (string, bool, error)
	Set(ctx context.Context, name ServiceConfigName, value string) error
}

// PostgresServiceConfig backs ServiceConfig with a singleton key/value table.
type PostgresServiceConfig struct {
	db *sql.DB
}

func NewPostgresServiceConfig(db *sql.DB) *PostgresServiceConfig {
	return &PostgresServiceConfig{db: db}
}

func (s *PostgresServiceConfig) Get(ctx context.Context, name ServiceConfigName) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM config WHERE name = $1`, string(name)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "get service config %q", name)
	}
	return value, true, nil
}

func (s *PostgresServiceConfig) Set(ctx context.Context, name ServiceConfigName, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config (name, value) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value`,
		string(name), value)
	if err != nil {
		return errors.Wrapf(err, "set service config %q", name)
	}
	return nil
}

// MemServiceConfig is an in-memory ServiceConfig for tests and for components
// exercised without a live database.
type MemServiceConfig struct {
	values map[ServiceConfigName]string
}

func NewMemServiceConfig() *MemServiceConfig {
	return &MemServiceConfig{values: make(map[ServiceConfigName]string)}
}

func (m *MemServiceConfig) Get(_ context.Context, name ServiceConfigName) (string, bool, error) {
	v, ok := m.values[name]
	return v, ok, nil
}

func (m *MemServiceConfig) Set(_ context.Context, name ServiceConfigName, value string) error {
	m.values[name] = value
	return nil
}
