package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver

	"namereg/internal/registrar/models"
	id "namereg/pkg/domain"
	"namereg/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

// Postgres persists the ledger for multi-instance deployments. Same contract
// as InMemory; Execute uses SELECT ... FOR UPDATE for the atomic
// validate-then-mutate window.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a pool against the given URL and ensures the schema.
func NewPostgres(ctx context.Context, url string) (*Postgres, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &Postgres{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Postgres) Close() error {
	return s.db.Close()
}

func (s *Postgres) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS names (
	token_id     TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	owner        TEXT NOT NULL,
	approved     TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS names_owner_idx ON names (owner);
CREATE TABLE IF NOT EXISTS controllers (
	address TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS operators (
	owner    TEXT NOT NULL,
	operator TEXT NOT NULL,
	PRIMARY KEY (owner, operator)
);
CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *Postgres) Create(ctx context.Context, record *models.NameRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO names (token_id, display_name, owner, approved, created_at) VALUES ($1, $2, $3, $4, $5)`,
		record.TokenID.String(), record.DisplayName, record.Owner.String(), record.Approved.String(), record.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("create name record: %w", err)
	}
	return nil
}

func (s *Postgres) Find(ctx context.Context, tokenID id.Hash) (*models.NameRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT token_id, display_name, owner, approved, created_at FROM names WHERE token_id = $1`,
		tokenID.String())
	return scanRecord(row)
}

func (s *Postgres) Execute(ctx context.Context, tokenID id.Hash,
	validate func(*models.NameRecord) error,
	mutate func(*models.NameRecord)) (*models.NameRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	row := tx.QueryRowContext(ctx,
		`SELECT token_id, display_name, owner, approved, created_at FROM names WHERE token_id = $1 FOR UPDATE`,
		tokenID.String())
	record, err := scanRecord(row)
	if err != nil {
		return nil, err
	}
	if err := validate(record); err != nil {
		return nil, err
	}
	mutate(record)
	if _, err := tx.ExecContext(ctx,
		`UPDATE names SET display_name = $2, owner = $3, approved = $4 WHERE token_id = $1`,
		record.TokenID.String(), record.DisplayName, record.Owner.String(), record.Approved.String()); err != nil {
		return nil, fmt.Errorf("update name record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return record, nil
}

func (s *Postgres) ListByOwner(ctx context.Context, owner id.Address) ([]id.Hash, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT token_id FROM names WHERE owner = $1`, owner.String())
	if err != nil {
		return nil, fmt.Errorf("list by owner: %w", err)
	}
	defer rows.Close()

	var tokens []id.Hash
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan token id: %w", err)
		}
		tokenID, err := id.ParseHash(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt token id %q: %w", raw, err)
		}
		tokens = append(tokens, tokenID)
	}
	return tokens, rows.Err()
}

func (s *Postgres) AddController(ctx context.Context, addr id.Address) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO controllers (address) VALUES ($1)`, addr.String())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("add controller: %w", err)
	}
	return nil
}

func (s *Postgres) RemoveController(ctx context.Context, addr id.Address) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM controllers WHERE address = $1`, addr.String())
	if err != nil {
		return fmt.Errorf("remove controller: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove controller: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) IsController(ctx context.Context, addr id.Address) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM controllers WHERE address = $1)`, addr.String()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("is controller: %w", err)
	}
	return exists, nil
}

func (s *Postgres) MigrationFinished(ctx context.Context) (bool, error) {
	value, err := s.GetSetting(ctx, "migration_finished")
	if err != nil {
		return false, err
	}
	return value == "true", nil
}

func (s *Postgres) FinishMigration(ctx context.Context) error {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO settings (key, value) VALUES ('migration_finished', 'true')
ON CONFLICT (key) DO UPDATE SET value = 'true' WHERE settings.value <> 'true'`)
	if err != nil {
		return fmt.Errorf("finish migration: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish migration: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrInvalidState
	}
	return nil
}

func (s *Postgres) SetOperator(ctx context.Context, owner, operator id.Address, approved bool) error {
	if approved {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO operators (owner, operator) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			owner.String(), operator.String())
		if err != nil {
			return fmt.Errorf("set operator: %w", err)
		}
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM operators WHERE owner = $1 AND operator = $2`, owner.String(), operator.String())
	if err != nil {
		return fmt.Errorf("unset operator: %w", err)
	}
	return nil
}

func (s *Postgres) IsOperator(ctx context.Context, owner, operator id.Address) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM operators WHERE owner = $1 AND operator = $2)`,
		owner.String(), operator.String()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("is operator: %w", err)
	}
	return exists, nil
}

func (s *Postgres) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, nil
}

func (s *Postgres) PutSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO settings (key, value) VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
	if err != nil {
		return fmt.Errorf("put setting %q: %w", key, err)
	}
	return nil
}

func scanRecord(row *sql.Row) (*models.NameRecord, error) {
	var (
		record   models.NameRecord
		tokenRaw string
		owner    string
		approved string
	)
	err := row.Scan(&tokenRaw, &record.DisplayName, &owner, &approved, &record.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan name record: %w", err)
	}
	tokenID, err := id.ParseHash(tokenRaw)
	if err != nil {
		return nil, fmt.Errorf("corrupt token id %q: %w", tokenRaw, err)
	}
	record.TokenID = tokenID
	record.Owner = id.Address(owner)
	if approved != "" {
		record.Approved = id.Address(approved)
	}
	return &record, nil
}
