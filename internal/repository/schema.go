package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS booths (
		slug TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		ideal_member_size INT NOT NULL DEFAULT 2,
		single_upload BOOLEAN NOT NULL DEFAULT FALSE,
		backdrop_path TEXT,
		backdrop_status TEXT NOT NULL DEFAULT 'generating',
		display_status TEXT NOT NULL DEFAULT '',
		uploaded_count INT NOT NULL DEFAULT 0,
		fauxto_count INT NOT NULL DEFAULT 0,
		inflight_count INT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS uploads (
		id UUID PRIMARY KEY,
		booth_slug TEXT NOT NULL REFERENCES booths(slug) ON DELETE CASCADE,
		identity TEXT NOT NULL,
		file_path TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_uploads_booth ON uploads (booth_slug)`,
	`CREATE TABLE IF NOT EXISTS fauxtos (
		id UUID PRIMARY KEY,
		booth_slug TEXT NOT NULL REFERENCES booths(slug) ON DELETE CASCADE,
		file_path TEXT,
		job_id UUID,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_fauxtos_booth ON fauxtos (booth_slug, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS fauxto_members (
		id BIGSERIAL PRIMARY KEY,
		fauxto_id UUID NOT NULL REFERENCES fauxtos(id) ON DELETE CASCADE,
		upload_id UUID NOT NULL REFERENCES uploads(id) ON DELETE CASCADE,
		identity TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (fauxto_id, upload_id),
		UNIQUE (fauxto_id, identity)
	)`,
	`CREATE TABLE IF NOT EXISTS directory (
		slug TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		deleted_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS gallery_fauxtos (
		identity TEXT NOT NULL,
		fauxto_id UUID NOT NULL,
		booth_slug TEXT NOT NULL,
		booth_display_name TEXT NOT NULL,
		file_path TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (identity, fauxto_id)
	)`,
	`CREATE TABLE IF NOT EXISTS gallery_booths (
		identity TEXT NOT NULL,
		booth_slug TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (identity, booth_slug)
	)`,
	`CREATE TABLE IF NOT EXISTS push_tokens (
		identity TEXT PRIMARY KEY,
		device_token TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS jobs (
		id UUID PRIMARY KEY,
		kind TEXT NOT NULL,
		booth_slug TEXT NOT NULL,
		fauxto_id UUID,
		step TEXT NOT NULL,
		checkpoint TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'running',
		attempts INT NOT NULL DEFAULT 0,
		last_error TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Migrate creates the schema if it does not exist yet.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}
