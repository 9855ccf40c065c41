package sqlite

import "github.com/steveyegge/vos/internal/storage/migrations"

var schema = migrations.NewManager(
	migrations.Migration{
		Version:     1,
		Description: "create blobs table",
		Up: `
			CREATE TABLE IF NOT EXISTS blobs (
				key TEXT PRIMARY KEY,
				data BLOB NOT NULL
			)
		`,
		Down: `DROP TABLE IF EXISTS blobs`,
	},
	migrations.Migration{
		Version:     2,
		Description: "track blob size and update time",
		Up: `
			ALTER TABLE blobs ADD COLUMN size INTEGER NOT NULL DEFAULT 0;
			ALTER TABLE blobs ADD COLUMN updated_at DATETIME NOT NULL DEFAULT '1970-01-01 00:00:00';
		`,
		Down: `
			ALTER TABLE blobs DROP COLUMN updated_at;
			ALTER TABLE blobs DROP COLUMN size;
		`,
	},
)
