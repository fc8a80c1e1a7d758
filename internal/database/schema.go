package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied in order on every start.  Each statement is idempotent.
// Child tables cascade on delete so that removing a session (or an event's
// member list) never leaves orphans behind.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS purchase_sessions (
	session_id       CHAR(36)     NOT NULL PRIMARY KEY,
	username         VARCHAR(191) NOT NULL,
	event_id         BIGINT       NULL,
	step             VARCHAR(32)  NOT NULL,
	created_at       DATETIME(6)  NOT NULL,
	last_activity_at DATETIME(6)  NOT NULL,
	version          BIGINT       NOT NULL DEFAULT 1,
	UNIQUE KEY uq_purchase_sessions_username (username),
	KEY idx_purchase_sessions_activity (last_activity_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS session_seats (
	session_id  CHAR(36)     NOT NULL,
	position    INT          NOT NULL,
	seat_row    INT          NOT NULL,
	seat_column INT          NOT NULL,
	person_name VARCHAR(255) NOT NULL DEFAULT '',
	locked      TINYINT(1)   NOT NULL DEFAULT 0,
	PRIMARY KEY (session_id, seat_row, seat_column),
	CONSTRAINT fk_session_seats_session FOREIGN KEY (session_id)
		REFERENCES purchase_sessions (session_id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS sales (
	id               BIGINT        NOT NULL AUTO_INCREMENT PRIMARY KEY,
	external_sale_id BIGINT        NULL,
	event_id         BIGINT        NOT NULL,
	username         VARCHAR(191)  NOT NULL,
	sale_timestamp   DATETIME(6)   NOT NULL,
	price            DECIMAL(12,2) NOT NULL,
	succeeded        TINYINT(1)    NOT NULL DEFAULT 0,
	description      VARCHAR(1000) NOT NULL DEFAULT '',
	sync_state       VARCHAR(16)   NOT NULL,
	attempt_count    INT           NOT NULL DEFAULT 0,
	last_attempt_at  DATETIME(6)   NULL,
	version          BIGINT        NOT NULL DEFAULT 1,
	KEY idx_sales_sync_state (sync_state),
	KEY idx_sales_username (username)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS sale_seats (
	sale_id     BIGINT       NOT NULL,
	position    INT          NOT NULL,
	seat_row    INT          NOT NULL,
	seat_column INT          NOT NULL,
	person_name VARCHAR(255) NOT NULL DEFAULT '',
	status      VARCHAR(32)  NOT NULL,
	PRIMARY KEY (sale_id, seat_row, seat_column),
	CONSTRAINT fk_sale_seats_sale FOREIGN KEY (sale_id) REFERENCES sales (id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS events (
	id                   BIGINT        NOT NULL PRIMARY KEY,
	title                VARCHAR(255)  NOT NULL DEFAULT '',
	summary              VARCHAR(1000) NOT NULL DEFAULT '',
	description          TEXT          NOT NULL,
	event_date           DATETIME(6)   NULL,
	venue                VARCHAR(255)  NOT NULL DEFAULT '',
	image                VARCHAR(1000) NOT NULL DEFAULT '',
	seat_rows            INT           NOT NULL DEFAULT 0,
	seat_columns         INT           NOT NULL DEFAULT 0,
	price                DECIMAL(12,2) NOT NULL DEFAULT 0,
	category_name        VARCHAR(255)  NULL,
	category_description VARCHAR(1000) NULL,
	active               TINYINT(1)    NOT NULL DEFAULT 1,
	last_synced_at       DATETIME(6)   NOT NULL,
	KEY idx_events_active (active)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS event_members (
	event_id       BIGINT       NOT NULL,
	position       INT          NOT NULL,
	first_name     VARCHAR(255) NOT NULL DEFAULT '',
	last_name      VARCHAR(255) NOT NULL DEFAULT '',
	identification VARCHAR(255) NOT NULL DEFAULT '',
	PRIMARY KEY (event_id, position),
	CONSTRAINT fk_event_members_event FOREIGN KEY (event_id)
		REFERENCES events (id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates any missing table.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
