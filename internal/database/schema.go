package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema lists the tables read and written by the access service.  The
// events and purchases tables are owned by the admin and payment sides of
// the platform; these definitions only cover the columns used here so a
// fresh development database can be bootstrapped.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id                   CHAR(36)     NOT NULL PRIMARY KEY,
		title                VARCHAR(255) NOT NULL DEFAULT '',
		geo_blocking_enabled TINYINT(1)   NOT NULL DEFAULT 0,
		geo_lat              DOUBLE       NULL,
		geo_lng              DOUBLE       NULL,
		geo_radius_km        DOUBLE       NULL,
		is_multi_stream      TINYINT(1)   NOT NULL DEFAULT 0,
		crew_bypass_token    VARCHAR(128) NULL,
		bypass_created_at    DATETIME     NULL,
		mux_stream_id        VARCHAR(128) NULL,
		mux_stream_key       VARCHAR(255) NULL,
		mux_playback_id      VARCHAR(128) NULL,
		created_at           DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS streams (
		id              CHAR(36)     NOT NULL PRIMARY KEY,
		event_id        CHAR(36)     NOT NULL,
		name            VARCHAR(100) NOT NULL,
		position        INT          NOT NULL DEFAULT 0,
		is_default      TINYINT(1)   NOT NULL DEFAULT 0,
		status          VARCHAR(16)  NOT NULL DEFAULT 'idle',
		mux_stream_id   VARCHAR(128) NOT NULL DEFAULT '',
		mux_stream_key  VARCHAR(255) NOT NULL DEFAULT '',
		mux_playback_id VARCHAR(128) NOT NULL DEFAULT '',
		created_at      DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		KEY idx_streams_event (event_id, position),
		CONSTRAINT fk_streams_event FOREIGN KEY (event_id) REFERENCES events (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS purchases (
		id                CHAR(36)     NOT NULL PRIMARY KEY,
		event_id          CHAR(36)     NOT NULL,
		email             VARCHAR(255) NOT NULL,
		status            VARCHAR(16)  NOT NULL,
		stripe_session_id VARCHAR(255) NULL,
		created_at        DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		KEY idx_purchases_event_email (event_id, email),
		KEY idx_purchases_checkout (stripe_session_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates missing tables.  Existing tables are left untouched.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i, err)
		}
	}
	return nil
}
