package postgres

const schema = `
CREATE TABLE IF NOT EXISTS vos_blobs (
    key TEXT PRIMARY KEY,
    data BYTEA NOT NULL,
    size INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
