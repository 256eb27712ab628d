package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/roman-kulish/eegstream/internal/telemetry"
)

// SqliteStore implements Store using SQLite
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a new SQLite journal. Databases are opened on first use.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{
		dbPath: dbPath,
	}
}

func (s *SqliteStore) getWriteDB(ctx context.Context) (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write database: %w", err)
			return
		}
		db.SetMaxOpenConns(1)

		if _, err = db.ExecContext(ctx, initSchemaSQL); err != nil {
			s.writeDBErr = errors.Join(fmt.Errorf("creating schema: %w", err), db.Close())
			return
		}
		if _, err = db.ExecContext(ctx, initIndexesSQL); err != nil {
			s.writeDBErr = errors.Join(fmt.Errorf("creating indexes: %w", err), db.Close())
			return
		}
		s.writeDB = db
	})
	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB(ctx context.Context) (*sql.DB, error) {
	// schema must exist before a read-only connection can see it
	if _, err := s.getWriteDB(ctx); err != nil {
		return nil, err
	}

	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro&_journal_mode=WAL&_busy_timeout=5000"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read database: %w", err)
			return
		}
		s.readDB = db
	})
	return s.readDB, s.readDBErr
}

func (s *SqliteStore) CreateSession(ctx context.Context, host string, config any) (sessionID int64, err error) {
	db, err := s.getWriteDB(ctx)
	if err != nil {
		return 0, err
	}

	var cfg sql.NullString
	switch v := config.(type) {
	case nil:
	case string:
		cfg = sql.NullString{String: v, Valid: true}
	case []byte:
		cfg = sql.NullString{String: string(v), Valid: true}
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return 0, fmt.Errorf("marshaling session config: %w", err)
		}
		cfg = sql.NullString{String: string(b), Valid: true}
	}

	stmt, err := db.PrepareContext(ctx, insertSessionSQL)
	if err != nil {
		return 0, fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	res, err := stmt.ExecContext(ctx, time.Now().UTC(), host, cfg)
	if err != nil {
		return 0, fmt.Errorf("inserting session: %w", err)
	}
	return res.LastInsertId()
}

func (s *SqliteStore) Sessions(ctx context.Context) (sessions []*Session, err error) {
	db, err := s.getReadDB(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var (
			sess Session
			cfg  sql.NullString
		)
		if err = rows.Scan(&sess.ID, &sess.StartTime, &sess.Host, &cfg); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		if cfg.Valid {
			sess.Config = &cfg.String
		}
		sessions = append(sessions, &sess)
	}
	return sessions, rows.Err()
}

func (s *SqliteStore) Record(ctx context.Context, sessionID int64, entries ...Entry) (err error) {
	if len(entries) == 0 {
		return nil
	}

	db, err := s.getWriteDB(ctx)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	stmt, err := tx.PrepareContext(ctx, insertEntrySQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	for _, e := range entries {
		ts := e.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		if _, err = stmt.ExecContext(ctx, sessionID, ts.UTC(), string(e.Kind), toNullString(e.Peer), e.Text); err != nil {
			return fmt.Errorf("inserting entry: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SqliteStore) StoreTelemetry(ctx context.Context, sessionID int64, t *telemetry.Telemetry) (telemetryID int64, err error) {
	if t == nil {
		return 0, errors.New("nil telemetry")
	}

	db, err := s.getWriteDB(ctx)
	if err != nil {
		return 0, err
	}

	stmt, err := db.PrepareContext(ctx, insertTelemetrySQL)
	if err != nil {
		return 0, fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	res, err := stmt.ExecContext(ctx,
		sessionID,
		t.Timestamp.UTC(),
		toNullFloat64(t.BatteryVolts),
		t.Packets,
		t.Frames,
		t.Malformed,
		t.BytesReceived,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting telemetry: %w", err)
	}
	return res.LastInsertId()
}

func (s *SqliteStore) Entries(ctx context.Context, sessionID int64, options ...func(*EntryIterator)) (*EntryIterator, error) {
	db, err := s.getReadDB(ctx)
	if err != nil {
		return nil, err
	}

	it := &EntryIterator{sessionID: sessionID}
	for _, option := range options {
		option(it)
	}

	q, args := it.query()
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	it.rows = rows
	return it, nil
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.readDB != nil {
			if err := s.readDB.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing read database: %w", err))
			}
		}
		if s.writeDB != nil {
			if err := s.writeDB.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing write database: %w", err))
			}
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}
