// Package transcript records dispatch activity in SQLite.
package transcript

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"drivel/pkg/bus"
	"drivel/pkg/stanza"
)

//go:embed schema.sql
var schema string

// Entry is one recorded bus event.
type Entry struct {
	ID        int64
	Type      bus.EventType
	At        time.Time
	Channel   string
	RequestID string
	Kind      stanza.Kind
	From      stanza.Address
	To        stanza.Address
	Body      string
	Handler   string
	Error     string
}

// Store is a transcript database.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open opens or creates the transcript at path and applies the schema.
func Open(path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init transcript schema: %w", err)
	}

	log = log.With("component", "transcript")
	log.Info("Transcript opened", "path", path)
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores one bus event.
func (s *Store) Record(ctx context.Context, event bus.Event) error {
	at := event.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (type, at, channel, request_id, kind, sender, recipient, body, handler, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(event.Type),
		at.UTC().Format(time.RFC3339Nano),
		event.Channel,
		event.RequestID,
		string(event.Kind),
		string(event.From),
		string(event.To),
		event.Body,
		event.Payload["handler"],
		event.Error,
	)
	if err != nil {
		return fmt.Errorf("record %s event: %w", event.Type, err)
	}

	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	return s.query(ctx,
		`SELECT id, type, at, channel, request_id, kind, sender, recipient, body, handler, error
		 FROM events ORDER BY id DESC LIMIT ?`, limit)
}

// ByRequest returns every entry for one inbound event id in insertion order.
func (s *Store) ByRequest(ctx context.Context, requestID string) ([]Entry, error) {
	return s.query(ctx,
		`SELECT id, type, at, channel, request_id, kind, sender, recipient, body, handler, error
		 FROM events WHERE request_id = ? ORDER BY id`, requestID)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry                                  Entry
			eventType, at, kind, sender, recipient string
		)
		if err := rows.Scan(&entry.ID, &eventType, &at, &entry.Channel, &entry.RequestID, &kind, &sender, &recipient, &entry.Body, &entry.Handler, &entry.Error); err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}

		entry.Type = bus.EventType(eventType)
		entry.Kind = stanza.Kind(kind)
		entry.From = stanza.Address(sender)
		entry.To = stanza.Address(recipient)
		entry.At, err = time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("parse transcript time %q: %w", at, err)
		}

		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// Follow records events from the bus until ctx is canceled or the bus
// closes. Write failures are logged and skipped.
func (s *Store) Follow(ctx context.Context, messageBus *bus.MessageBus) {
	events, unsubscribe := messageBus.SubscribeEvents(ctx, 0)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := s.Record(context.WithoutCancel(ctx), event); err != nil {
				s.log.Warn("Failed to record event", "type", event.Type, "request_id", event.RequestID, "error", err)
			}
		}
	}
}
