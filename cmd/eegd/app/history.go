package app

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/roman-kulish/eegstream/internal/journal"
)

const (
	defaultHistoryLimit = 200
	maxHistoryLimit     = 10000
)

type sessionMessage struct {
	ID        int64     `json:"id"`
	StartTime time.Time `json:"startTime"`
	Host      string    `json:"host"`
	Current   bool      `json:"current"`
}

type entryMessage struct {
	ID        int64        `json:"id"`
	Timestamp time.Time    `json:"timestamp"`
	Kind      journal.Kind `json:"kind"`
	Peer      string       `json:"peer,omitempty"`
	Text      string       `json:"text"`
}

// handleSessions lists the sessions recorded in the journal
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "journal disabled", http.StatusNotFound)
		return
	}

	sessions, err := s.store.Sessions(r.Context())
	if err != nil {
		s.logger.Error("listing sessions", slog.String("error", err.Error()))
		http.Error(w, "journal unavailable", http.StatusInternalServerError)
		return
	}

	out := make([]sessionMessage, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sessionMessage{
			ID:        sess.ID,
			StartTime: sess.StartTime,
			Host:      sess.Host,
			Current:   sess.ID == s.sessionID,
		})
	}
	s.writeJSON(w, out)
}

// handleHistory returns journal entries of one session, oldest first. Query
// parameters: session (default current), kind (repeatable), since and until
// (RFC 3339) and limit, which keeps the newest entries.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "journal disabled", http.StatusNotFound)
		return
	}

	q := r.URL.Query()
	sessionID := s.sessionID
	if v := q.Get("session"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			http.Error(w, "invalid session", http.StatusBadRequest)
			return
		}
		sessionID = id
	}

	limit := defaultHistoryLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	options := []func(*journal.EntryIterator){journal.WithLimit(limit)}

	if kinds := q["kind"]; len(kinds) > 0 {
		ks := make([]journal.Kind, len(kinds))
		for i, k := range kinds {
			ks[i] = journal.Kind(k)
		}
		options = append(options, journal.WithKinds(ks...))
	}

	for _, p := range []struct {
		name string
		set  func(time.Time) func(*journal.EntryIterator)
	}{
		{"since", journal.WithStartTime},
		{"until", journal.WithEndTime},
	} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			http.Error(w, "invalid "+p.name, http.StatusBadRequest)
			return
		}
		options = append(options, p.set(ts))
	}

	it, err := s.store.Entries(r.Context(), sessionID, options...)
	if err != nil {
		s.logger.Error("reading journal", slog.String("error", err.Error()))
		http.Error(w, "journal unavailable", http.StatusInternalServerError)
		return
	}
	defer it.Close()

	out := make([]entryMessage, 0)
	for it.Next() {
		e := it.Entry()
		out = append(out, entryMessage{ID: e.ID, Timestamp: e.Timestamp, Kind: e.Kind, Peer: e.Peer, Text: e.Text})
	}
	if err = it.Err(); err != nil {
		s.logger.Error("reading journal", slog.String("error", err.Error()))
		http.Error(w, "journal unavailable", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, out)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encoding response", slog.String("error", err.Error()))
	}
}
