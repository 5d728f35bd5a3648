package kv

import "github.com/nhle/paddledesk/internal/sqlitedb"

// migrations is the ordered schema of the SQLite backend.
var migrations = []sqlitedb.Migration{
	{
		Version: 1,
		SQL: `
CREATE TABLE IF NOT EXISTS items (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	origin     TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`,
	},
}
