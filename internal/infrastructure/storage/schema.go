package storage

import (
	"context"
	"database/sql"
	"fmt"
)

const tableName = "trends"

// Empty text and zero ids are stored as NULL; flags are never NULL.
const createTrendsTable = `CREATE TABLE IF NOT EXISTS trends (
    id                 BIGSERIAL PRIMARY KEY,
    topic_name         TEXT NOT NULL UNIQUE,
    title              TEXT,
    body               TEXT,
    excerpt            TEXT,
    excerpt_published  BOOLEAN NOT NULL DEFAULT FALSE,
    tags               TEXT,
    tags_attached      BOOLEAN NOT NULL DEFAULT FALSE,
    remote_post_id     BIGINT,
    remote_post_synced BOOLEAN NOT NULL DEFAULT FALSE,
    image_path         TEXT,
    remote_image_id    BIGINT,
    publish_url        TEXT,
    status             TEXT,
    last_stage         TEXT,
    last_stage_at      TIMESTAMPTZ,
    version            BIGINT NOT NULL DEFAULT 1,
    lease_owner        TEXT,
    lease_expires_at   TIMESTAMPTZ,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

var recordColumns = []string{
	"id",
	"topic_name",
	"title",
	"body",
	"excerpt",
	"excerpt_published",
	"tags",
	"tags_attached",
	"remote_post_id",
	"remote_post_synced",
	"image_path",
	"remote_image_id",
	"publish_url",
	"status",
	"last_stage",
	"last_stage_at",
	"version",
	"lease_owner",
	"lease_expires_at",
}

// Migrate creates the trends table when missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, createTrendsTable); err != nil {
		return fmt.Errorf("create %s table: %w", tableName, err)
	}
	return nil
}
