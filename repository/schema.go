package repository

// PostgresSchema creates the tables used by the service
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS analysis_sessions (
    id UUID PRIMARY KEY,
    status VARCHAR(20) NOT NULL CHECK (status IN ('pending', 'parsing', 'analyzing', 'completed', 'failed')),
    case_type TEXT NOT NULL DEFAULT '',
    process_stage TEXT NOT NULL DEFAULT '',
    process_position TEXT NOT NULL DEFAULT '',
    rule_package_id TEXT NOT NULL DEFAULT '',
    mode VARCHAR(10) NOT NULL DEFAULT 'single',
    backend TEXT NOT NULL DEFAULT '',
    current_stage TEXT NOT NULL DEFAULT '',
    progress DOUBLE PRECISION NOT NULL DEFAULT 0,
    preorganized JSONB,
    selected_rules JSONB NOT NULL DEFAULT '[]'::jsonb,
    synthesized_result JSONB,
    report_ref TEXT,
    error_message TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_analysis_sessions_status ON analysis_sessions(status);
CREATE INDEX IF NOT EXISTS idx_analysis_sessions_created ON analysis_sessions(created_at DESC);

CREATE TABLE IF NOT EXISTS rule_definitions (
    id TEXT PRIMARY KEY,
    package_id TEXT NOT NULL,
    name TEXT NOT NULL,
    category VARCHAR(20) NOT NULL CHECK (category IN ('claim', 'defense', 'evidence', 'procedure', 'strategy', 'risk')),
    legal_source TEXT NOT NULL DEFAULT '',
    prompt_template TEXT NOT NULL DEFAULT '',
    case_type_keywords JSONB NOT NULL DEFAULT '[]'::jsonb,
    scenario_scope JSONB NOT NULL DEFAULT '[]'::jsonb,
    check_points JSONB NOT NULL DEFAULT '[]'::jsonb,
    base_weight DOUBLE PRECISION NOT NULL DEFAULT 1.0,
    position INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_rule_definitions_package ON rule_definitions(package_id, position);
`

// SQLiteSchema is the SQLite rendition of the session table
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS analysis_sessions (
    id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    case_type TEXT NOT NULL DEFAULT '',
    process_stage TEXT NOT NULL DEFAULT '',
    process_position TEXT NOT NULL DEFAULT '',
    rule_package_id TEXT NOT NULL DEFAULT '',
    mode TEXT NOT NULL DEFAULT 'single',
    backend TEXT NOT NULL DEFAULT '',
    current_stage TEXT NOT NULL DEFAULT '',
    progress REAL NOT NULL DEFAULT 0,
    preorganized TEXT,
    selected_rules TEXT NOT NULL DEFAULT '[]',
    synthesized_result TEXT,
    report_ref TEXT,
    error_message TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    completed_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_analysis_sessions_status ON analysis_sessions(status);
`
