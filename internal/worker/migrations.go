package worker

import "github.com/nhle/paddledesk/internal/sqlitedb"

// migrations is the ordered schema of the worker store.
var migrations = []sqlitedb.Migration{
	{
		Version: 1,
		SQL: `
CREATE TABLE IF NOT EXISTS notifications (
	id         TEXT PRIMARY KEY,
	booking_id INTEGER NOT NULL DEFAULT 0,
	priority   TEXT NOT NULL DEFAULT 'medium',
	is_read    INTEGER NOT NULL DEFAULT 0 CHECK(is_read IN (0, 1)),
	ts_ms      INTEGER NOT NULL,
	payload    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notifications_ts ON notifications(ts_ms);
CREATE INDEX IF NOT EXISTS idx_notifications_booking ON notifications(booking_id);
`,
	},
}
