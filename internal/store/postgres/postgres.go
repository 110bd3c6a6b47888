// Package postgres is the Resource Store Facade's PostgreSQL-backed
// store.Store, grounded on the teacher's own database/sql + lib/pq usage
// (internal/gvisor.DatabaseStateManager) for connection setup and
// transaction handling.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/fioncat/csync-go/internal/store"
)

// Store is a store.Store backed by a single PostgreSQL "resources" table.
// See Schema for the DDL it expects.
type Store struct {
	db *sql.DB
}

// Schema is the DDL Open's caller is expected to have applied (this
// package runs no migrations itself, matching the teacher's pattern of
// connecting to an already-provisioned database).
const Schema = `
CREATE TABLE IF NOT EXISTS resources (
	id          BIGSERIAL PRIMARY KEY,
	kind        SMALLINT NOT NULL,
	digest      TEXT NOT NULL,
	data        BYTEA NOT NULL,
	size        BIGINT NOT NULL,
	summary     TEXT NOT NULL DEFAULT '',
	owner       TEXT NOT NULL DEFAULT '',
	pin         BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at  TIMESTAMPTZ NOT NULL,
	expires_at  TIMESTAMPTZ,
	file_name   TEXT NOT NULL DEFAULT '',
	file_mode   BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS resources_owner_idx ON resources (owner);
CREATE INDEX IF NOT EXISTS resources_expires_idx ON resources (expires_at);
`

// Open connects to dbURL and verifies the connection with a ping, the same
// open-then-ping sequence as internal/gvisor.NewDatabaseStateManager.
func Open(dbURL string) (*Store, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Create(ctx context.Context, blob store.Blob, summary, owner string, now time.Time, expires *time.Time) (store.Metadata, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Metadata{}, fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO resources (kind, digest, data, size, summary, owner, pin, updated_at, expires_at, file_name, file_mode)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7, $8, $9, $10)
		RETURNING id
	`, blob.Kind, blob.Digest, blob.Data, len(blob.Data), summary, owner, now, expires, blob.FileName, blob.FileMode).Scan(&id)
	if err != nil {
		return store.Metadata{}, fmt.Errorf("postgres: insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return store.Metadata{}, fmt.Errorf("postgres: commit: %w", err)
	}

	return store.Metadata{
		ID: id, Kind: blob.Kind, Digest: blob.Digest, Size: int64(len(blob.Data)),
		Summary: summary, Owner: owner, UpdatedAt: now, ExpiresAt: expires,
		FileName: blob.FileName, FileMode: blob.FileMode,
	}, nil
}

func (s *Store) GetBlob(ctx context.Context, id int64) (store.Blob, error) {
	var b store.Blob
	err := s.db.QueryRowContext(ctx,
		`SELECT kind, digest, data, file_name, file_mode FROM resources WHERE id = $1`, id,
	).Scan(&b.Kind, &b.Digest, &b.Data, &b.FileName, &b.FileMode)
	if err == sql.ErrNoRows {
		return store.Blob{}, store.ErrNotFound
	}
	if err != nil {
		return store.Blob{}, fmt.Errorf("postgres: get blob: %w", err)
	}
	return b, nil
}

func scanMetadata(row *sql.Row) (store.Metadata, error) {
	var m store.Metadata
	err := row.Scan(&m.ID, &m.Kind, &m.Digest, &m.Size, &m.Summary, &m.Owner, &m.Pin, &m.UpdatedAt, &m.ExpiresAt, &m.FileName, &m.FileMode)
	if err == sql.ErrNoRows {
		return store.Metadata{}, store.ErrNotFound
	}
	if err != nil {
		return store.Metadata{}, fmt.Errorf("postgres: scan metadata: %w", err)
	}
	return m, nil
}

const metadataColumns = `id, kind, digest, size, summary, owner, pin, updated_at, expires_at, file_name, file_mode`

func (s *Store) GetMetadata(ctx context.Context, id int64) (store.Metadata, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+metadataColumns+` FROM resources WHERE id = $1`, id)
	return scanMetadata(row)
}

func buildFilter(f store.Filter, args *[]any) string {
	var clauses []string
	add := func(clause string, val any) {
		*args = append(*args, val)
		clauses = append(clauses, fmt.Sprintf(clause, len(*args)))
	}
	if f.Owner != "" {
		add("owner = $%d", f.Owner)
	}
	if f.Digest != "" {
		add("digest = $%d", f.Digest)
	}
	if f.SummarySubstr != "" {
		add("summary ILIKE $%d", "%"+f.SummarySubstr+"%")
	}
	if f.Kind != nil {
		add("kind = $%d", *f.Kind)
	}
	if f.From != nil {
		add("updated_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("updated_at <= $%d", *f.To)
	}
	if len(clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(clauses, " AND ")
}

func (s *Store) ListMetadata(ctx context.Context, filter store.Filter, limit, offset int, order store.Order) (store.Page, error) {
	var args []any
	where := buildFilter(filter, &args)

	orderBy := "pin DESC, id DESC"
	if order == store.OrderRecency {
		orderBy = "id DESC"
	}

	total, err := s.Count(ctx, filter)
	if err != nil {
		return store.Page{}, err
	}

	query := fmt.Sprintf(`SELECT %s FROM resources%s ORDER BY %s LIMIT %d OFFSET %d`,
		metadataColumns, where, orderBy, limit, offset)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return store.Page{}, fmt.Errorf("postgres: list: %w", err)
	}
	defer rows.Close()

	var items []store.Metadata
	for rows.Next() {
		var m store.Metadata
		if err := rows.Scan(&m.ID, &m.Kind, &m.Digest, &m.Size, &m.Summary, &m.Owner, &m.Pin, &m.UpdatedAt, &m.ExpiresAt, &m.FileName, &m.FileMode); err != nil {
			return store.Page{}, fmt.Errorf("postgres: scan list: %w", err)
		}
		items = append(items, m)
	}
	return store.Page{Items: items, TotalCount: total}, rows.Err()
}

func (s *Store) Count(ctx context.Context, filter store.Filter) (int64, error) {
	var args []any
	where := buildFilter(filter, &args)
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM resources`+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count: %w", err)
	}
	return count, nil
}

func (s *Store) Patch(ctx context.Context, id int64, patch store.Patch) (store.Metadata, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Metadata{}, fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback()

	if patch.Pin != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE resources SET pin = $1 WHERE id = $2`, *patch.Pin, id); err != nil {
			return store.Metadata{}, fmt.Errorf("postgres: patch pin: %w", err)
		}
	}
	if patch.Expires != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE resources SET expires_at = $1 WHERE id = $2`, *patch.Expires, id); err != nil {
			return store.Metadata{}, fmt.Errorf("postgres: patch expires: %w", err)
		}
	}

	row := tx.QueryRowContext(ctx, `SELECT `+metadataColumns+` FROM resources WHERE id = $1`, id)
	meta, err := scanMetadata(row)
	if err != nil {
		return store.Metadata{}, err
	}
	if err := tx.Commit(); err != nil {
		return store.Metadata{}, fmt.Errorf("postgres: commit: %w", err)
	}
	return meta, nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM resources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteBatch(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		args[i] = id
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf(`DELETE FROM resources WHERE id IN (%s)`, strings.Join(placeholders, ", "))
	_, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("postgres: delete batch: %w", err)
	}
	return nil
}

func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM resources WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete expired: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *Store) GetLatest(ctx context.Context, kind store.Kind, owner string) (store.Metadata, error) {
	query := `SELECT ` + metadataColumns + ` FROM resources WHERE kind = $1`
	args := []any{kind}
	if owner != "" {
		query += ` AND owner = $2`
		args = append(args, owner)
	}
	query += ` ORDER BY updated_at DESC LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, args...)
	return scanMetadata(row)
}
