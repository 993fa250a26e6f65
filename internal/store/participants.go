package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ParachuteTeam/Parachute/internal/interval"
	"github.com/ParachuteTeam/Parachute/internal/model"
)

// UpsertParticipant adds userID to the event if not already present. An
// existing participation keeps its zone tag.
func (s *Store) UpsertParticipant(ctx context.Context, eventID, userID, zoneTag string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("user id is required")
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return ensureParticipant(ctx, tx, eventID, userID, zoneTag, toMillis(s.now()))
	})
}

func ensureParticipant(ctx context.Context, tx *sql.Tx, eventID, userID, zoneTag string, joinedAt int64) error {
	var found int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM events WHERE id = ?`, eventID).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check event: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO participants (event_id, user_id, zone_tag, joined_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (event_id, user_id) DO NOTHING`,
		eventID, userID, zoneTag, joinedAt,
	)
	if err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

// UpdateParticipantZone stores a new zone tag for an existing participant.
func (s *Store) UpdateParticipantZone(ctx context.Context, eventID, userID, zoneTag string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE participants SET zone_tag = ? WHERE event_id = ? AND user_id = ?`,
		zoneTag, eventID, userID,
	)
	if err != nil {
		return fmt.Errorf("update participant zone: %w", err)
	}
	return expectRows(res)
}

// DeleteParticipants removes the given users and their timeslots from an
// event. Unknown users are ignored; the count of removed participants is
// returned.
func (s *Store) DeleteParticipants(ctx context.Context, eventID string, userIDs []string) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	var removed int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, userID := range userIDs {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM timeslots WHERE event_id = ? AND user_id = ?`, eventID, userID,
			); err != nil {
				return fmt.Errorf("delete timeslots: %w", err)
			}
			res, err := tx.ExecContext(ctx,
				`DELETE FROM participants WHERE event_id = ? AND user_id = ?`, eventID, userID,
			)
			if err != nil {
				return fmt.Errorf("delete participant: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			removed += n
		}
		return nil
	})
	return removed, err
}

// ListParticipants returns an event's participants in join order with the
// number of spans each has saved.
func (s *Store) ListParticipants(ctx context.Context, eventID string) ([]model.Participant, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT p.event_id, p.user_id, p.zone_tag, p.joined_at,
		        (SELECT COUNT(*) FROM timeslots t WHERE t.event_id = p.event_id AND t.user_id = p.user_id)
		   FROM participants p
		  WHERE p.event_id = ?
		  ORDER BY p.joined_at, p.user_id`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	out := make([]model.Participant, 0)
	for rows.Next() {
		var (
			p        model.Participant
			joinedAt int64
		)
		if err := rows.Scan(&p.EventID, &p.UserID, &p.ZoneTag, &joinedAt, &p.SlotCount); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		p.JoinedAt = fromMillis(joinedAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ReplaceTimeslots overwrites a participant's saved spans in one
// transaction, joining the event first if needed. The last writer wins.
func (s *Store) ReplaceTimeslots(ctx context.Context, eventID, userID, zoneTag string, spans []interval.Span) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("user id is required")
	}
	for _, sp := range spans {
		if sp.End.Before(sp.Start) {
			return fmt.Errorf("%w: %s", interval.ErrInvalidSpan, sp)
		}
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := ensureParticipant(ctx, tx, eventID, userID, zoneTag, toMillis(s.now())); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM timeslots WHERE event_id = ? AND user_id = ?`, eventID, userID,
		); err != nil {
			return fmt.Errorf("clear timeslots: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO timeslots (event_id, user_id, begins_ms, ends_ms) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare timeslot insert: %w", err)
		}
		defer stmt.Close()
		for _, sp := range spans {
			if _, err := stmt.ExecContext(ctx, eventID, userID, toMillis(sp.Start), toMillis(sp.End)); err != nil {
				return fmt.Errorf("insert timeslot: %w", err)
			}
		}
		return nil
	})
}

// ListTimeslots returns one participant's spans ordered by start.
func (s *Store) ListTimeslots(ctx context.Context, eventID, userID string) ([]interval.Span, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT begins_ms, ends_ms FROM timeslots
		  WHERE event_id = ? AND user_id = ?
		  ORDER BY begins_ms`,
		eventID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list timeslots: %w", err)
	}
	defer rows.Close()

	out := make([]interval.Span, 0)
	for rows.Next() {
		var begins, ends int64
		if err := rows.Scan(&begins, &ends); err != nil {
			return nil, fmt.Errorf("scan timeslot: %w", err)
		}
		out = append(out, interval.Span{Start: fromMillis(begins), End: fromMillis(ends)})
	}
	return out, rows.Err()
}

// ListEventTimeslots returns every participant's spans for an event, ordered
// by user then start.
func (s *Store) ListEventTimeslots(ctx context.Context, eventID string) ([]model.Timeslot, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT user_id, begins_ms, ends_ms FROM timeslots
		  WHERE event_id = ?
		  ORDER BY user_id, begins_ms`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list event timeslots: %w", err)
	}
	defer rows.Close()

	out := make([]model.Timeslot, 0)
	for rows.Next() {
		var (
			ts           model.Timeslot
			begins, ends int64
		)
		if err := rows.Scan(&ts.UserID, &begins, &ends); err != nil {
			return nil, fmt.Errorf("scan timeslot: %w", err)
		}
		ts.EventID = eventID
		ts.Span = interval.Span{Start: fromMillis(begins), End: fromMillis(ends)}
		out = append(out, ts)
	}
	return out, rows.Err()
}
