package store

// schemaSQL is the DDL for the embedded property graph. Node identity is
// (label, name) and edge identity is (source, relation, target); the UNIQUE
// constraints make every upsert idempotent.
const schemaSQL = `
-- Graph nodes keyed by label and name
CREATE TABLE IF NOT EXISTS nodes (
    id INTEGER PRIMARY KEY,
    label TEXT NOT NULL CHECK (label <> ''),
    name TEXT NOT NULL CHECK (name <> ''),
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(label, name)
);

-- Directed typed edges
CREATE TABLE IF NOT EXISTS edges (
    id INTEGER PRIMARY KEY,
    source_id INTEGER NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
    relation TEXT NOT NULL CHECK (relation <> ''),
    target_id INTEGER NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(source_id, relation, target_id)
);

-- Pipeline run audit log
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    source TEXT,
    status TEXT NOT NULL,
    succeeded INTEGER NOT NULL DEFAULT 0,
    triples_extracted INTEGER DEFAULT 0,
    triples_after_dedup INTEGER DEFAULT 0,
    statements_submitted INTEGER DEFAULT 0,
    nodes_created INTEGER DEFAULT 0,
    edges_created INTEGER DEFAULT 0,
    error TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_nodes_label ON nodes(label);
CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_id);
CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id);
CREATE INDEX IF NOT EXISTS idx_edges_relation ON edges(relation);
`
