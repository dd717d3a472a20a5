package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// EnsureSchema bootstraps the relational model. Cascading foreign keys carry
// the delete semantics: removing a document removes its versions, files,
// chunks, embeddings and ACL bindings.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	org_id TEXT NOT NULL,
	creator_id TEXT NOT NULL,
	title TEXT NOT NULL,
	file_type TEXT NOT NULL,
	tags JSONB NOT NULL DEFAULT '[]'::jsonb,
	status TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_org_status ON documents(org_id, status);
CREATE INDEX IF NOT EXISTS idx_documents_content_hash ON documents(content_hash);

CREATE TABLE IF NOT EXISTS document_versions (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	version INTEGER NOT NULL,
	notes TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (document_id, version)
);

CREATE TABLE IF NOT EXISTS files (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	version_id TEXT NOT NULL REFERENCES document_versions(id) ON DELETE CASCADE,
	bucket TEXT NOT NULL,
	role TEXT NOT NULL,
	path TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	size_bytes BIGINT NOT NULL,
	sha256 TEXT NOT NULL,
	creator_id TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (document_id, version_id, role)
);

CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	org_id TEXT NOT NULL,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	version_id TEXT NOT NULL REFERENCES document_versions(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	text TEXT NOT NULL,
	token_count INTEGER NOT NULL DEFAULT 0,
	content_hash TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (document_id, version_id, position)
);

CREATE TABLE IF NOT EXISTS embeddings (
	id TEXT PRIMARY KEY,
	org_id TEXT NOT NULL,
	chunk_id TEXT NOT NULL REFERENCES chunks(id) ON DELETE CASCADE,
	vector_id TEXT NOT NULL,
	index_name TEXT NOT NULL,
	namespace TEXT NOT NULL,
	model_name TEXT NOT NULL,
	model_version TEXT NOT NULL,
	dim INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (index_name, namespace, vector_id)
);

CREATE TABLE IF NOT EXISTS groups (
	id TEXT PRIMARY KEY,
	org_id TEXT NOT NULL,
	name TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS user_groups (
	user_id TEXT NOT NULL,
	group_id TEXT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
	PRIMARY KEY (user_id, group_id)
);

CREATE TABLE IF NOT EXISTS document_acl_groups (
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	group_id TEXT NOT NULL,
	PRIMARY KEY (document_id, group_id)
);

CREATE TABLE IF NOT EXISTS ingest_jobs (
	id TEXT PRIMARY KEY,
	org_id TEXT NOT NULL,
	document_id TEXT NOT NULL,
	version_id TEXT NOT NULL,
	version INTEGER NOT NULL,
	stage TEXT,
	status TEXT NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0,
	last_error TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ingest_jobs_document ON ingest_jobs(document_id);

CREATE TABLE IF NOT EXISTS search_logs (
	id TEXT PRIMARY KEY,
	org_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	query_text TEXT NOT NULL,
	filters JSONB NOT NULL DEFAULT '{}'::jsonb,
	top_k INTEGER NOT NULL,
	latency_ms BIGINT NOT NULL,
	match_ids JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at TIMESTAMPTZ NOT NULL
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// placeholders renders $from..$from+n-1 for IN clauses.
func placeholders(from, n int) string {
	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		parts = append(parts, fmt.Sprintf("$%d", from+i))
	}
	return strings.Join(parts, ", ")
}
