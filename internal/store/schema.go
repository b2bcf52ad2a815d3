// Package store implements the durable result store for per-watershed
// per-scenario export totals and watershed geometries, backed by SQLite.
package store

// Schema DDL for the two result tables. Primary keys make inserts
// idempotent: a retried watershed re-inserts the same key and the
// conflict is swallowed, never surfaced and never duplicated.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS nutrient_export (
    ws_prefix_key TEXT NOT NULL,
    scenario_key TEXT NOT NULL,
    total_export REAL NOT NULL,
    PRIMARY KEY (ws_prefix_key, scenario_key)
);
CREATE UNIQUE INDEX IF NOT EXISTS ws_scenario_index
ON nutrient_export (ws_prefix_key, scenario_key);
CREATE INDEX IF NOT EXISTS ws_index
ON nutrient_export (ws_prefix_key);

CREATE TABLE IF NOT EXISTS geometry (
    ws_prefix_key TEXT NOT NULL,
    geometry_wkb BLOB NOT NULL,
    PRIMARY KEY (ws_prefix_key)
);
CREATE UNIQUE INDEX IF NOT EXISTS geometry_key_index
ON geometry (ws_prefix_key);
`
