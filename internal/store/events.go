package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ParachuteTeam/Parachute/internal/model"
)

const eventColumns = `id, name, join_code, owner_id, zone_tag, kind, occurring_days,
       begins_ms, ends_ms, last_day, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner, extra ...any) (model.Event, error) {
	var (
		ev        model.Event
		kind      string
		beginsMs  int64
		endsMs    int64
		createdAt int64
	)
	dest := []any{
		&ev.ID, &ev.Name, &ev.JoinCode, &ev.OwnerID, &ev.ZoneTag, &kind,
		&ev.OccurringDays, &beginsMs, &endsMs, &ev.LastDay, &createdAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return model.Event{}, err
	}
	ev.Kind = model.EventKind(kind)
	ev.Begins = fromMillis(beginsMs)
	ev.Ends = fromMillis(endsMs)
	ev.CreatedAt = fromMillis(createdAt)
	return ev, nil
}

// CreateEvent inserts ev and registers its owner as the first participant.
// A join code collision returns ErrAlreadyExists.
func (s *Store) CreateEvent(ctx context.Context, ev model.Event) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	switch {
	case strings.TrimSpace(ev.ID) == "":
		return fmt.Errorf("event id is required")
	case strings.TrimSpace(ev.JoinCode) == "":
		return fmt.Errorf("join code is required")
	case strings.TrimSpace(ev.OwnerID) == "":
		return fmt.Errorf("owner id is required")
	case !ev.Kind.Valid():
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = s.now()
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ev.ID, strings.TrimSpace(ev.Name), ev.JoinCode, ev.OwnerID, ev.ZoneTag, string(ev.Kind),
			ev.OccurringDays, toMillis(ev.Begins), toMillis(ev.Ends), ev.LastDay, toMillis(ev.CreatedAt),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrAlreadyExists
			}
			return fmt.Errorf("create event: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO participants (event_id, user_id, zone_tag, joined_at) VALUES (?, ?, ?, ?)`,
			ev.ID, ev.OwnerID, ev.ZoneTag, toMillis(ev.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("add owner: %w", err)
		}
		return nil
	})
}

// GetEvent returns one event by id.
func (s *Store) GetEvent(ctx context.Context, id string) (model.Event, error) {
	return s.getEventWhere(ctx, "id", id)
}

// GetEventByJoinCode returns the event a join code points at.
func (s *Store) GetEventByJoinCode(ctx context.Context, code string) (model.Event, error) {
	return s.getEventWhere(ctx, "join_code", code)
}

func (s *Store) getEventWhere(ctx context.Context, column, value string) (model.Event, error) {
	if err := s.ready(ctx); err != nil {
		return model.Event{}, err
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return model.Event{}, fmt.Errorf("%s is required", column)
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE `+column+` = ?`, value)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, ErrNotFound
	}
	if err != nil {
		return model.Event{}, fmt.Errorf("get event: %w", err)
	}
	return ev, nil
}

// RenameEvent changes an event's display name.
func (s *Store) RenameEvent(ctx context.Context, id, name string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("event name is required")
	}
	res, err := s.sqlDB.ExecContext(ctx, `UPDATE events SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return fmt.Errorf("rename event: %w", err)
	}
	return expectRows(res)
}

// DeleteEvent removes an event with its participants and timeslots.
func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		n, err := deleteEvents(ctx, tx, `id = ?`, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ListEventsFor returns the events userID owns or participates in, newest
// first.
func (s *Store) ListEventsFor(ctx context.Context, userID string) ([]model.EventSummary, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+prefixed("e.", eventColumns)+`,
		        (SELECT COUNT(*) FROM participants c WHERE c.event_id = e.id)
		   FROM events e
		  WHERE e.owner_id = ?
		     OR EXISTS (SELECT 1 FROM participants p WHERE p.event_id = e.id AND p.user_id = ?)
		  ORDER BY e.created_at DESC, e.id`,
		userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	out := make([]model.EventSummary, 0)
	for rows.Next() {
		var count int
		ev, err := scanEvent(rows, &count)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, model.EventSummary{Event: ev, ParticipantCount: count})
	}
	return out, rows.Err()
}

// PurgeEventsBefore deletes dated events whose last day is before cutoff
// (YYYY-MM-DD). It returns the number of events removed.
func (s *Store) PurgeEventsBefore(ctx context.Context, cutoff string) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	var n int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		n, err = deleteEvents(ctx, tx, `last_day != '' AND last_day < ?`, cutoff)
		return err
	})
	return n, err
}

func deleteEvents(ctx context.Context, tx *sql.Tx, where string, args ...any) (int64, error) {
	sub := `SELECT id FROM events WHERE ` + where
	if _, err := tx.ExecContext(ctx, `DELETE FROM timeslots WHERE event_id IN (`+sub+`)`, args...); err != nil {
		return 0, fmt.Errorf("delete timeslots: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM participants WHERE event_id IN (`+sub+`)`, args...); err != nil {
		return 0, fmt.Errorf("delete participants: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM events WHERE `+where, args...)
	if err != nil {
		return 0, fmt.Errorf("delete events: %w", err)
	}
	return res.RowsAffected()
}

func expectRows(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func prefixed(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
