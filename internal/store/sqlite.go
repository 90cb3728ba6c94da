package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/longbox-labs/entity-verify/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS characters (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	canonical_name        TEXT NOT NULL UNIQUE,
	entity_type           TEXT NOT NULL DEFAULT 'character',
	verification_status   TEXT NOT NULL DEFAULT 'unverified',
	verified_fields       TEXT,
	data_source_breakdown TEXT,
	source_conflicts      TEXT,
	primary_data_source   TEXT,
	data_completeness     REAL NOT NULL DEFAULT 0,
	last_verified_at      DATETIME,
	created_at            DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at            DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS creators (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	canonical_name        TEXT NOT NULL UNIQUE,
	entity_type           TEXT NOT NULL DEFAULT 'creator',
	verification_status   TEXT NOT NULL DEFAULT 'unverified',
	verified_fields       TEXT,
	data_source_breakdown TEXT,
	source_conflicts      TEXT,
	primary_data_source   TEXT,
	data_completeness     REAL NOT NULL DEFAULT 0,
	last_verified_at      DATETIME,
	created_at            DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at            DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_characters_status ON characters(verification_status);
CREATE INDEX IF NOT EXISTS idx_creators_status ON creators(verification_status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateEntity(ctx context.Context, table model.TableType, name string, entityType model.EntityType) (*model.Entity, error) {
	tbl, err := tableName(table)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (canonical_name, entity_type, verification_status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`, tbl),
		name, string(entityType), string(model.StatusUnverified), now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert entity into %s", tbl)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: last insert id")
	}

	return &model.Entity{
		ID:            id,
		CanonicalName: name,
		EntityType:    entityType,
		Status:        model.StatusUnverified,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (s *SQLiteStore) GetEntity(ctx context.Context, table model.TableType, id int64) (*model.Entity, error) {
	tbl, err := tableName(table)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, entityColumns, tbl),
		id,
	)
	e, err := scanSQLiteEntity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get entity %d from %s", id, tbl)
	}
	return e, nil
}

func (s *SQLiteStore) ListEntities(ctx context.Context, table model.TableType, filter ListFilter) ([]model.Entity, error) {
	tbl, err := tableName(table)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id > ?`, entityColumns, tbl)
	args := []any{filter.AfterID}

	if filter.Status != "" {
		query += ` AND verification_status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY id ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list entities from %s", tbl)
	}
	defer rows.Close()

	var entities []model.Entity
	for rows.Next() {
		e, err := scanSQLiteEntity(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan entity")
		}
		entities = append(entities, *e)
	}
	return entities, eris.Wrapf(rows.Err(), "sqlite: list entities from %s iterate", tbl)
}

func (s *SQLiteStore) CountEntities(ctx context.Context, table model.TableType, status model.VerificationStatus) (int, error) {
	tbl, err := tableName(table)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, tbl)
	var args []any
	if status != "" {
		query += ` WHERE verification_status = ?`
		args = append(args, string(status))
	}

	var count int
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, eris.Wrapf(err, "sqlite: count entities in %s", tbl)
}

func (s *SQLiteStore) CountByStatus(ctx context.Context, table model.TableType) (map[model.VerificationStatus]int, error) {
	tbl, err := tableName(table)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT verification_status, COUNT(*) FROM %s GROUP BY verification_status`, tbl),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: count by status in %s", tbl)
	}
	defer rows.Close()

	counts := make(map[model.VerificationStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan status count")
		}
		counts[model.VerificationStatus(status)] = count
	}
	return counts, eris.Wrapf(rows.Err(), "sqlite: count by status in %s iterate", tbl)
}

func (s *SQLiteStore) UpdateVerification(ctx context.Context, table model.TableType, id int64, rec *model.VerifiedRecord) error {
	tbl, err := tableName(table)
	if err != nil {
		return err
	}

	fieldsJSON, err := json.Marshal(rec.VerifiedFields)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal verified fields")
	}
	breakdownJSON, err := json.Marshal(rec.DataSourceBreakdown)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal source breakdown")
	}
	var conflictsJSON sql.NullString
	if len(rec.SourceConflicts) > 0 {
		b, err := json.Marshal(rec.SourceConflicts)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal source conflicts")
		}
		conflictsJSON = sql.NullString{String: string(b), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET verified_fields = ?, data_source_breakdown = ?,
			source_conflicts = ?, primary_data_source = ?, data_completeness = ?,
			verification_status = ?, last_verified_at = ?, updated_at = ? WHERE id = ?`, tbl),
		string(fieldsJSON), string(breakdownJSON), conflictsJSON, rec.PrimaryDataSource,
		rec.DataCompleteness, string(rec.Status), rec.VerifiedAt, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update verification %d in %s", id, tbl)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("entity not found: %s/%d", tbl, id)
	}
	return nil
}

func (s *SQLiteStore) ImportEntities(ctx context.Context, table model.TableType, entityType model.EntityType, names []string) (int64, error) {
	tbl, err := tableName(table)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (canonical_name, entity_type) VALUES (?, ?)
			ON CONFLICT(canonical_name) DO UPDATE SET entity_type = excluded.entity_type`, tbl),
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: prepare import into %s", tbl)
	}
	defer stmt.Close()

	var total int64
	for _, name := range names {
		if name == "" {
			continue
		}
		res, err := stmt.ExecContext(ctx, name, string(entityType))
		if err != nil {
			return total, eris.Wrapf(err, "sqlite: import %q into %s", name, tbl)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, eris.Wrap(tx.Commit(), "sqlite: commit import")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteEntity(row scannable) (*model.Entity, error) {
	var e model.Entity
	var fieldsJSON, breakdownJSON, conflictsJSON, primarySource sql.NullString
	var lastVerified sql.NullTime

	err := row.Scan(&e.ID, &e.CanonicalName, &e.EntityType, &e.Status,
		&fieldsJSON, &breakdownJSON, &conflictsJSON, &primarySource,
		&e.DataCompleteness, &lastVerified, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if fieldsJSON.Valid {
		if err := json.Unmarshal([]byte(fieldsJSON.String), &e.VerifiedFields); err != nil {
			return nil, eris.Wrap(err, "unmarshal verified fields")
		}
	}
	if breakdownJSON.Valid {
		if err := json.Unmarshal([]byte(breakdownJSON.String), &e.DataSourceBreakdown); err != nil {
			return nil, eris.Wrap(err, "unmarshal source breakdown")
		}
	}
	if conflictsJSON.Valid {
		if err := json.Unmarshal([]byte(conflictsJSON.String), &e.SourceConflicts); err != nil {
			return nil, eris.Wrap(err, "unmarshal source conflicts")
		}
	}
	if primarySource.Valid {
		e.PrimaryDataSource = primarySource.String
	}
	if lastVerified.Valid {
		t := lastVerified.Time
		e.LastVerifiedAt = &t
	}
	return &e, nil
}
