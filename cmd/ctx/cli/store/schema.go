package store

// schemaSQL creates the per-project tables and indexes. Statements are
// idempotent so the schema can be applied on every open.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS projects (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT UNIQUE NOT NULL,
    display_name TEXT,
    recording_state TEXT NOT NULL DEFAULT 'stopped',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    last_updated_at TEXT,
    deleted_at TEXT,
    storage_cap_bytes INTEGER NOT NULL DEFAULT 524288000,
    storage_used_bytes INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS sessions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id INTEGER NOT NULL,
    agent TEXT NOT NULL,
    started_at TEXT NOT NULL,
    stopped_at TEXT,
    state TEXT NOT NULL,
    external_session_ref TEXT,
    last_updated_at TEXT,
    FOREIGN KEY(project_id) REFERENCES projects(id)
);

CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id INTEGER NOT NULL,
    session_id INTEGER NOT NULL,
    event_type TEXT NOT NULL,
    summary TEXT NOT NULL,
    files_touched_json TEXT,
    before_hash TEXT,
    after_hash TEXT,
    reverted_event_id INTEGER,
    reverted_by_event_id INTEGER,
    is_effective INTEGER NOT NULL DEFAULT 1,
    summarized_at TEXT,
    source TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    dedupe_hash TEXT NOT NULL,
    FOREIGN KEY(project_id) REFERENCES projects(id),
    FOREIGN KEY(session_id) REFERENCES sessions(id)
);

CREATE TABLE IF NOT EXISTS tool_usage (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id INTEGER NOT NULL,
    session_id INTEGER NOT NULL,
    event_id INTEGER NOT NULL,
    tool_name TEXT NOT NULL,
    purpose TEXT,
    result TEXT,
    created_at TEXT NOT NULL,
    FOREIGN KEY(project_id) REFERENCES projects(id),
    FOREIGN KEY(session_id) REFERENCES sessions(id),
    FOREIGN KEY(event_id) REFERENCES events(id)
);

CREATE TABLE IF NOT EXISTS decisions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id INTEGER NOT NULL,
    session_id INTEGER NOT NULL,
    event_id INTEGER NOT NULL,
    summary TEXT NOT NULL,
    created_at TEXT NOT NULL,
    FOREIGN KEY(project_id) REFERENCES projects(id),
    FOREIGN KEY(session_id) REFERENCES sessions(id),
    FOREIGN KEY(event_id) REFERENCES events(id)
);

CREATE TABLE IF NOT EXISTS open_tasks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id INTEGER NOT NULL,
    session_id INTEGER NOT NULL,
    summary TEXT NOT NULL,
    state TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    FOREIGN KEY(project_id) REFERENCES projects(id),
    FOREIGN KEY(session_id) REFERENCES sessions(id)
);

CREATE TABLE IF NOT EXISTS rollups (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id INTEGER NOT NULL,
    period_start TEXT NOT NULL,
    period_end TEXT NOT NULL,
    summary TEXT NOT NULL,
    created_at TEXT NOT NULL,
    FOREIGN KEY(project_id) REFERENCES projects(id)
);

CREATE TABLE IF NOT EXISTS adapter_offsets (
    session_id INTEGER NOT NULL,
    adapter TEXT NOT NULL,
    log_path TEXT NOT NULL,
    byte_offset INTEGER NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY(session_id, adapter, log_path),
    FOREIGN KEY(session_id) REFERENCES sessions(id)
);

CREATE TABLE IF NOT EXISTS source_status (
    session_id INTEGER NOT NULL,
    source TEXT NOT NULL,
    status TEXT NOT NULL,
    detail TEXT,
    updated_at TEXT NOT NULL,
    PRIMARY KEY(session_id, source),
    FOREIGN KEY(session_id) REFERENCES sessions(id)
);

CREATE TABLE IF NOT EXISTS features (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS file_state (
    path TEXT PRIMARY KEY,
    current_hash TEXT NOT NULL,
    baseline_hash TEXT NOT NULL,
    last_event_id INTEGER,
    is_clean INTEGER NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS file_hash_history (
    path TEXT NOT NULL,
    hash TEXT NOT NULL,
    first_seen_at TEXT NOT NULL,
    last_seen_at TEXT NOT NULL,
    PRIMARY KEY(path, hash)
);

CREATE INDEX IF NOT EXISTS idx_events_session_created
    ON events(session_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_events_dedupe_hash
    ON events(dedupe_hash, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_events_type_created
    ON events(event_type, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_events_revert_summary
    ON events(event_type, summarized_at, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_file_state_clean
    ON file_state(is_clean, updated_at DESC);
`
