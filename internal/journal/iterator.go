package journal

import (
	"database/sql"
	"strings"
	"time"
)

func WithKinds(kinds ...Kind) func(*EntryIterator) {
	return func(i *EntryIterator) {
		i.kinds = append(i.kinds, kinds...)
	}
}

func WithStartTime(startTime time.Time) func(*EntryIterator) {
	return func(i *EntryIterator) {
		i.startTime = &startTime
	}
}

func WithEndTime(endTime time.Time) func(*EntryIterator) {
	return func(i *EntryIterator) {
		i.endTime = &endTime
	}
}

func WithTimeRange(startTime, endTime time.Time) func(*EntryIterator) {
	return func(i *EntryIterator) {
		i.startTime = &startTime
		i.endTime = &endTime
	}
}

// WithLimit keeps only the newest n entries
func WithLimit(n int) func(*EntryIterator) {
	return func(i *EntryIterator) {
		i.limit = n
	}
}

// EntryIterator walks journal entries row by row
type EntryIterator struct {
	sessionID int64
	kinds     []Kind
	startTime *time.Time
	endTime   *time.Time
	limit     int

	current *Entry
	rows    *sql.Rows
	err     error
}

func (i *EntryIterator) filter() (string, []any) {
	var sb strings.Builder
	var args []any

	if len(i.kinds) > 0 {
		sb.WriteString(" AND kind IN (")
		for n, k := range i.kinds {
			if n > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("?")
			args = append(args, string(k))
		}
		sb.WriteString(")")
	}
	if i.startTime != nil {
		sb.WriteString(" AND timestamp >= ?")
		args = append(args, i.startTime.UTC())
	}
	if i.endTime != nil {
		sb.WriteString(" AND timestamp <= ?")
		args = append(args, i.endTime.UTC())
	}
	return sb.String(), args
}

func (i *EntryIterator) query() (string, []any) {
	where, filterArgs := i.filter()
	args := append([]any{i.sessionID}, filterArgs...)
	q := selectEntriesSQL + where

	if i.limit > 0 {
		// newest n, returned oldest first
		q += " AND id IN (SELECT id FROM entries WHERE session_id = ?" + where + " ORDER BY timestamp DESC, id DESC LIMIT ?)"
		args = append(args, i.sessionID)
		args = append(args, filterArgs...)
		args = append(args, i.limit)
	}
	return q + " ORDER BY timestamp, id", args
}

// Next advances to the next entry
func (i *EntryIterator) Next() bool {
	if i.err != nil || i.rows == nil {
		return false
	}
	if !i.rows.Next() {
		i.err = i.rows.Err()
		return false
	}

	var (
		e    Entry
		kind string
		peer sql.NullString
	)
	if err := i.rows.Scan(&e.ID, &e.SessionID, &e.Timestamp, &kind, &peer, &e.Text); err != nil {
		i.err = err
		return false
	}
	e.Kind = Kind(kind)
	e.Peer = peer.String
	i.current = &e
	return true
}

// Entry returns the current entry
func (i *EntryIterator) Entry() *Entry {
	return i.current
}

// Err returns any error encountered during iteration
func (i *EntryIterator) Err() error {
	return i.err
}

// Close releases the underlying rows
func (i *EntryIterator) Close() error {
	if i.rows == nil {
		return nil
	}
	return i.rows.Close()
}
