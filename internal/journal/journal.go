package journal

import (
	"context"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/eegstream/internal/telemetry"
)

// Kind classifies a journal entry
type Kind string

const (
	KindCommand    Kind = "command"     // line sent to the board
	KindReply      Kind = "reply"       // line received from the board
	KindBound      Kind = "bound"       // board discovered
	KindReconnect  Kind = "reconnect"   // board address changed
	KindAckTimeout Kind = "ack_timeout" // command not acknowledged
	KindSendFailed Kind = "send_failed" // socket write failed
	KindNote       Kind = "note"        // local status line
)

// Session is one run of the receiver
type Session struct {
	ID        int64
	StartTime time.Time
	Host      string
	Config    *string
}

// Entry is one control-channel event
type Entry struct {
	ID        int64
	SessionID int64
	Timestamp time.Time
	Kind      Kind
	Peer      string
	Text      string
}

// Store is an append-only audit log of the control session. It never holds
// sample data.
type Store interface {
	// CreateSession starts a new session and returns its identifier.
	// config may be a string, []byte or any JSON-serializable value.
	CreateSession(ctx context.Context, host string, config any) (sessionID int64, err error)

	// Sessions returns all sessions ordered by start time
	Sessions(ctx context.Context) ([]*Session, error)

	// Record appends entries to a session in a single transaction
	Record(ctx context.Context, sessionID int64, entries ...Entry) error

	// StoreTelemetry appends a link and battery snapshot
	StoreTelemetry(ctx context.Context, sessionID int64, t *telemetry.Telemetry) (telemetryID int64, err error)

	// Entries opens an iterator over a session's entries, oldest first
	Entries(ctx context.Context, sessionID int64, options ...func(*EntryIterator)) (*EntryIterator, error)

	// Close releases database connections
	Close() error
}

// New opens (lazily) a SQLite journal at dbPath
func New(dbPath string) Store {
	return NewSqliteStore(dbPath)
}
