package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/roman-kulish/eegstream/internal/control"
	"github.com/roman-kulish/eegstream/internal/journal"
	"github.com/roman-kulish/eegstream/internal/telemetry"
)

// recorder drains the control channel queues into the journal and the hub.
// store may be nil, in which case entries are only published.
type recorder struct {
	store     journal.Store
	sessionID int64
	ctrl      *control.Channel
	telemetry telemetry.Provider
	interval  time.Duration
	hub       *hub
	logger    *slog.Logger
}

func (r *recorder) run(ctx context.Context) {
	var tick <-chan time.Time
	if r.store != nil && r.telemetry != nil && r.interval > 0 {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return

		case m := <-r.ctrl.Messages():
			r.hub.publish(newConsoleMessage(m))
			r.record(ctx, messageEntry(m))

		case e := <-r.ctrl.Events():
			r.hub.publish(newEventMessage(e))
			r.record(ctx, eventEntry(e))

		case <-tick:
			if _, err := r.store.StoreTelemetry(ctx, r.sessionID, r.telemetry.Get()); err != nil {
				r.logger.Error("storing telemetry", slog.String("error", err.Error()))
			}
		}
	}
}

func (r *recorder) record(ctx context.Context, e journal.Entry) {
	if r.store == nil {
		return
	}
	if err := r.store.Record(ctx, r.sessionID, e); err != nil {
		r.logger.Error("recording journal entry", slog.String("error", err.Error()))
	}
}

func messageEntry(m control.Message) journal.Entry {
	e := journal.Entry{Timestamp: m.Time, Text: m.Text}
	switch m.Direction {
	case control.Inbound:
		e.Kind = journal.KindReply
	case control.Outbound:
		e.Kind = journal.KindCommand
	default:
		e.Kind = journal.KindNote
	}
	return e
}

func eventEntry(ev control.Event) journal.Entry {
	e := journal.Entry{Timestamp: ev.Time, Text: ev.Text}
	if ev.Addr != nil {
		e.Peer = ev.Addr.String()
	}

	switch ev.Kind {
	case control.EventBound:
		e.Kind = journal.KindBound
	case control.EventReconnect:
		e.Kind = journal.KindReconnect
		if ev.Prev != nil && e.Text == "" {
			e.Text = "from " + ev.Prev.String()
		}
	case control.EventAckTimeout:
		e.Kind = journal.KindAckTimeout
	case control.EventSendFailed:
		e.Kind = journal.KindSendFailed
	default:
		e.Kind = journal.KindNote
	}
	return e
}
