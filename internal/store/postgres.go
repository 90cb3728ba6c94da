package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/longbox-labs/entity-verify/internal/db"
	"github.com/longbox-labs/entity-verify/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const entityColumns = `id, canonical_name, entity_type, verification_status, verified_fields,
	data_source_breakdown, source_conflicts, primary_data_source, data_completeness,
	last_verified_at, created_at, updated_at`

const verificationUpdate = ` SET verified_fields = $1, data_source_breakdown = $2,
	source_conflicts = $3, primary_data_source = $4, data_completeness = $5,
	verification_status = $6, last_verified_at = $7, updated_at = $8 WHERE id = $9`

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations: the worker reads one
// entity and writes one verification per job.
var preparedStatements = map[string]string{
	"get_character":    `SELECT ` + entityColumns + ` FROM characters WHERE id = $1`,
	"get_creator":      `SELECT ` + entityColumns + ` FROM creators WHERE id = $1`,
	"verify_character": `UPDATE characters` + verificationUpdate,
	"verify_creator":   `UPDATE creators` + verificationUpdate,
	"insert_character": `INSERT INTO characters (canonical_name, entity_type, verification_status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
	"insert_creator":   `INSERT INTO creators (canonical_name, entity_type, verification_status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for use by subsystems that need
// direct query access (e.g., bulk catalog import).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS characters (
	id                    BIGSERIAL PRIMARY KEY,
	canonical_name        TEXT NOT NULL UNIQUE,
	entity_type           TEXT NOT NULL DEFAULT 'character',
	verification_status   TEXT NOT NULL DEFAULT 'unverified',
	verified_fields       JSONB,
	data_source_breakdown JSONB,
	source_conflicts      JSONB,
	primary_data_source   TEXT,
	data_completeness     DOUBLE PRECISION NOT NULL DEFAULT 0,
	last_verified_at      TIMESTAMPTZ,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS creators (
	id                    BIGSERIAL PRIMARY KEY,
	canonical_name        TEXT NOT NULL UNIQUE,
	entity_type           TEXT NOT NULL DEFAULT 'creator',
	verification_status   TEXT NOT NULL DEFAULT 'unverified',
	verified_fields       JSONB,
	data_source_breakdown JSONB,
	source_conflicts      JSONB,
	primary_data_source   TEXT,
	data_completeness     DOUBLE PRECISION NOT NULL DEFAULT 0,
	last_verified_at      TIMESTAMPTZ,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_characters_status ON characters(verification_status);
CREATE INDEX IF NOT EXISTS idx_characters_last_verified ON characters(last_verified_at);
CREATE INDEX IF NOT EXISTS idx_creators_status ON creators(verification_status);
CREATE INDEX IF NOT EXISTS idx_creators_last_verified ON creators(last_verified_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateEntity(ctx context.Context, table model.TableType, name string, entityType model.EntityType) (*model.Entity, error) {
	tbl, err := tableName(table)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	var id int64
	err = s.pool.QueryRow(ctx,
		fmt.Sprintf(`INSERT INTO %s (canonical_name, entity_type, verification_status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`, tbl),
		name, string(entityType), string(model.StatusUnverified), now, now,
	).Scan(&id)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert entity into %s", tbl)
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

func (s *PostgresStore) GetEntity(ctx context.Context, table model.TableType, id int64) (*model.Entity, error) {
	tbl, err := tableName(table)
	if err != nil {
		return nil, err
	}

	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, entityColumns, tbl),
		id,
	)
	e, err := scanPgEntity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get entity %d from %s", id, tbl)
	}
	return e, nil
}

func (s *PostgresStore) ListEntities(ctx context.Context, table model.TableType, filter ListFilter) ([]model.Entity, error) {
	tbl, err := tableName(table)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id > $1`, entityColumns, tbl)
	args := []any{filter.AfterID}
	argIdx := 2

	if filter.Status != "" {
		query += fmt.Sprintf(` AND verification_status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY id ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list entities from %s", tbl)
	}
	defer rows.Close()

	var entities []model.Entity
	for rows.Next() {
		e, err := scanPgEntity(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan entity")
		}
		entities = append(entities, *e)
	}
	return entities, eris.Wrapf(rows.Err(), "postgres: list entities from %s iterate", tbl)
}

func (s *PostgresStore) CountEntities(ctx context.Context, table model.TableType, status model.VerificationStatus) (int, error) {
	tbl, err := tableName(table)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, tbl)
	args := []any{}
	if status != "" {
		query += ` WHERE verification_status = $1`
		args = append(args, string(status))
	}

	var count int
	err = s.pool.QueryRow(ctx, query, args...).Scan(&count)
	return count, eris.Wrapf(err, "postgres: count entities in %s", tbl)
}

func (s *PostgresStore) CountByStatus(ctx context.Context, table model.TableType) (map[model.VerificationStatus]int, error) {
	tbl, err := tableName(table)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT verification_status, COUNT(*) FROM %s GROUP BY verification_status`, tbl),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: count by status in %s", tbl)
	}
	defer rows.Close()

	counts := make(map[model.VerificationStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, eris.Wrap(err, "postgres: scan status count")
		}
		counts[model.VerificationStatus(status)] = count
	}
	return counts, eris.Wrapf(rows.Err(), "postgres: count by status in %s iterate", tbl)
}

func (s *PostgresStore) UpdateVerification(ctx context.Context, table model.TableType, id int64, rec *model.VerifiedRecord) error {
	tbl, err := tableName(table)
	if err != nil {
		return err
	}

	fieldsJSON, err := json.Marshal(rec.VerifiedFields)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal verified fields")
	}
	breakdownJSON, err := json.Marshal(rec.DataSourceBreakdown)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal source breakdown")
	}
	var conflictsJSON []byte
	if len(rec.SourceConflicts) > 0 {
		conflictsJSON, err = json.Marshal(rec.SourceConflicts)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal source conflicts")
		}
	}

	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s`, tbl)+verificationUpdate,
		fieldsJSON, breakdownJSON, conflictsJSON, rec.PrimaryDataSource,
		rec.DataCompleteness, string(rec.Status), rec.VerifiedAt, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update verification %d in %s", id, tbl)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("entity not found: %s/%d", tbl, id)
	}
	return nil
}

func (s *PostgresStore) ImportEntities(ctx context.Context, table model.TableType, entityType model.EntityType, names []string) (int64, error) {
	tbl, err := tableName(table)
	if err != nil {
		return 0, err
	}

	rows := make([][]any, 0, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		rows = append(rows, []any{name, string(entityType)})
	}

	importColumns := []string{"canonical_name", "entity_type"}

	// An empty table cannot conflict, so a straight COPY skips the
	// temp-table round trip.
	var existing int
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM "+tbl).Scan(&existing); err != nil {
		return 0, eris.Wrapf(err, "postgres: count %s", tbl)
	}
	if existing == 0 {
		n, err := db.CopyFrom(ctx, s.pool, tbl, importColumns, rows)
		return n, eris.Wrapf(err, "postgres: import entities into %s", tbl)
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        tbl,
		Columns:      importColumns,
		ConflictKeys: []string{"canonical_name"},
	}, rows)
	return n, eris.Wrapf(err, "postgres: import entities into %s", tbl)
}

// scanPgEntity reads one entity row from the shared column list. JSONB
// columns arrive as raw bytes and may be NULL.
func scanPgEntity(row pgx.Row) (*model.Entity, error) {
	var e model.Entity
	var fieldsJSON, breakdownJSON, conflictsJSON *[]byte
	var primarySource *string

	err := row.Scan(&e.ID, &e.CanonicalName, &e.EntityType, &e.Status,
		&fieldsJSON, &breakdownJSON, &conflictsJSON, &primarySource,
		&e.DataCompleteness, &e.LastVerifiedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if fieldsJSON != nil {
		if err := json.Unmarshal(*fieldsJSON, &e.VerifiedFields); err != nil {
			return nil, eris.Wrap(err, "unmarshal verified fields")
		}
	}
	if breakdownJSON != nil {
		if err := json.Unmarshal(*breakdownJSON, &e.DataSourceBreakdown); err != nil {
			return nil, eris.Wrap(err, "unmarshal source breakdown")
		}
	}
	if conflictsJSON != nil {
		if err := json.Unmarshal(*conflictsJSON, &e.SourceConflicts); err != nil {
			return nil, eris.Wrap(err, "unmarshal source conflicts")
		}
	}
	if primarySource != nil {
		e.PrimaryDataSource = *primarySource
	}
	return &e, nil
}
