package journal

const (
	initSchemaSQL = `
CREATE TABLE IF NOT EXISTS sessions
(
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    start_time TIMESTAMP NOT NULL,
    host       TEXT      NOT NULL,
    config     TEXT
);

CREATE TABLE IF NOT EXISTS entries
(
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id INTEGER   NOT NULL REFERENCES sessions (id),
    timestamp  TIMESTAMP NOT NULL,
    kind       TEXT      NOT NULL,
    peer       TEXT,
    text       TEXT      NOT NULL
);

CREATE TABLE IF NOT EXISTS telemetry
(
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id     INTEGER   NOT NULL REFERENCES sessions (id),
    timestamp      TIMESTAMP NOT NULL,
    battery_volts  REAL,
    packets        INTEGER   NOT NULL,
    frames         INTEGER   NOT NULL,
    malformed      INTEGER   NOT NULL,
    bytes_received INTEGER   NOT NULL
);`

	initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_entries_session_time ON entries (session_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_telemetry_session_time ON telemetry (session_id, timestamp);`

	insertSessionSQL = `
INSERT INTO sessions (start_time,
                      host,
                      config)
VALUES (?, ?, ?)`

	selectSessionsSQL = `
SELECT id,
       start_time,
       host,
       config
FROM sessions
ORDER BY start_time, id`

	insertEntrySQL = `
INSERT INTO entries (session_id,
                     timestamp,
                     kind,
                     peer,
                     text)
VALUES (?, ?, ?, ?, ?)`

	insertTelemetrySQL = `
INSERT INTO telemetry (session_id,
                       timestamp,
                       battery_volts,
                       packets,
                       frames,
                       malformed,
                       bytes_received)
VALUES (?, ?, ?, ?, ?, ?, ?)`

	selectEntriesSQL = `
SELECT id,
       session_id,
       timestamp,
       kind,
       peer,
       text
FROM entries
WHERE session_id = ?`
)
