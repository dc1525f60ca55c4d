package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS case_files (
	id                   TEXT PRIMARY KEY,
	codice               TEXT NOT NULL DEFAULT '',
	cliente              TEXT NOT NULL DEFAULT '',
	indirizzo            TEXT NOT NULL DEFAULT '',
	agenzia              TEXT,
	stato                TEXT NOT NULL DEFAULT 'in_corso',
	data_creazione       DATETIME NOT NULL,
	data_ultima_modifica DATETIME NOT NULL,
	document             TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_case_files_agenzia ON case_files(agenzia);
CREATE INDEX IF NOT EXISTS idx_case_files_stato ON case_files(stato);
CREATE INDEX IF NOT EXISTS idx_case_files_creazione ON case_files(data_creazione);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS notifications (
	id           TEXT PRIMARY KEY,
	case_file_id TEXT NOT NULL,
	task_id      TEXT NOT NULL,
	kind         TEXT NOT NULL,
	message      TEXT NOT NULL,
	read         INTEGER NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_notifications_read ON notifications(read);
CREATE INDEX IF NOT EXISTS idx_notifications_task_id ON notifications(task_id);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
