package db

import (
	"context"
	"fmt"
	"time"

	"github.com/Spok95/learning-platform/internal/apperr"
	"github.com/Spok95/learning-platform/internal/models"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const sessionColumns = `id, student_id, teacher_id, subscription_id, start_time, end_time, duration_minutes,
	status, notes, earning, reminder_sent, created_at, updated_at`

func (s *Store) CreateSession(ctx context.Context, cs *models.ClassSession) error {
	ctx, cancel := dbCtx(ctx)
	defer cancel()

	return s.db.QueryRowxContext(ctx, `
		INSERT INTO class_sessions (student_id, teacher_id, subscription_id, start_time, duration_minutes, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, cs.StudentID, cs.TeacherID, cs.SubscriptionID, cs.StartTime, cs.DurationMinutes, string(cs.Status), cs.Notes).
		Scan(&cs.ID, &cs.CreatedAt, &cs.UpdatedAt)
}

// CountSessions counts the pair's sessions in the given statuses with start_time in [from, to].
func (s *Store) CountSessions(ctx context.Context, studentID, teacherID int64, statuses []models.SessionStatus, from, to time.Time) (int, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()

	names := make([]string, 0, len(statuses))
	for _, st := range statuses {
		names = append(names, string(st))
	}
	var n int
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*)
		FROM class_sessions
		WHERE student_id = $1 AND teacher_id = $2
		  AND status = ANY($3)
		  AND start_time >= $4 AND start_time <= $5
	`, studentID, teacherID, pq.Array(names), from, to)
	return n, err
}

// FindInProgress returns the newest IN_PROGRESS session for the pair.
func (s *Store) FindInProgress(ctx context.Context, studentID, teacherID int64) (*models.ClassSession, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()

	var cs models.ClassSession
	err := s.db.GetContext(ctx, &cs, `
		SELECT `+sessionColumns+`
		FROM class_sessions
		WHERE student_id = $1 AND teacher_id = $2 AND status = 'IN_PROGRESS'
		ORDER BY start_time DESC
		LIMIT 1
	`, studentID, teacherID)
	if err != nil {
		return nil, notFound(err, "in-progress session")
	}
	return &cs, nil
}

func (s *Store) GetSession(ctx context.Context, id int64) (*models.ClassSession, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()

	var cs models.ClassSession
	if err := s.db.GetContext(ctx, &cs, `SELECT `+sessionColumns+` FROM class_sessions WHERE id = $1`, id); err != nil {
		return nil, notFound(err, "session")
	}
	return &cs, nil
}

// CompleteSession closes an IN_PROGRESS session, bumps the subscription counter and
// upserts the teacher's monthly earnings, all in one transaction.
func (s *Store) CompleteSession(ctx context.Context, c models.SessionCompletion) error {
	ctx, cancel := dbCtx(ctx)
	defer cancel()

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE class_sessions
			SET status = 'COMPLETED', end_time = $2, duration_minutes = $3, earning = $4,
			    notes = COALESCE($5, notes), updated_at = now()
			WHERE id = $1 AND status = 'IN_PROGRESS'
		`, c.SessionID, c.EndTime, c.DurationMinutes, c.Earning, c.Notes)
		if err != nil {
			return fmt.Errorf("complete session: %w", err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return fmt.Errorf("in-progress session %d: %w", c.SessionID, apperr.ErrNotFound)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE subscriptions SET classes_completed = classes_completed + 1, updated_at = now()
			WHERE id = $1
		`, c.SubscriptionID); err != nil {
			return fmt.Errorf("bump classes_completed: %w", err)
		}

		return upsertEarnings(ctx, tx, c.TeacherID, int(c.EndTime.Month()), c.EndTime.Year(), c.Earning)
	})
}

func upsertEarnings(ctx context.Context, q querier, teacherID int64, month, year int, amount float64) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO teacher_earnings (teacher_id, month, year, total_earnings, total_classes)
		VALUES ($1, $2, $3, $4, 1)
		ON CONFLICT (teacher_id, month, year) DO UPDATE
		SET total_earnings = teacher_earnings.total_earnings + EXCLUDED.total_earnings,
		    total_classes  = teacher_earnings.total_classes + 1,
		    updated_at     = now()
	`, teacherID, month, year, amount)
	if err != nil {
		return fmt.Errorf("upsert earnings: %w", err)
	}
	return nil
}

// SessionFilter narrows session listings. Zero fields are ignored.
type SessionFilter struct {
	StudentID int64
	TeacherID int64
	From      time.Time
	To        time.Time
	Limit     int
}

func (s *Store) ListSessions(ctx context.Context, f SessionFilter) ([]models.ClassSession, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()

	q := `SELECT ` + sessionColumns + ` FROM class_sessions WHERE true`
	args := []any{}
	idx := 1
	if f.StudentID != 0 {
		q += fmt.Sprintf(" AND student_id = $%d", idx)
		args = append(args, f.StudentID)
		idx++
	}
	if f.TeacherID != 0 {
		q += fmt.Sprintf(" AND teacher_id = $%d", idx)
		args = append(args, f.TeacherID)
		idx++
	}
	if !f.From.IsZero() {
		q += fmt.Sprintf(" AND start_time >= $%d", idx)
		args = append(args, f.From)
		idx++
	}
	if !f.To.IsZero() {
		q += fmt.Sprintf(" AND start_time <= $%d", idx)
		args = append(args, f.To)
		idx++
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q += fmt.Sprintf(" ORDER BY start_time DESC LIMIT $%d", idx)
	args = append(args, limit)

	out := []models.ClassSession{}
	err := s.db.SelectContext(ctx, &out, q, args...)
	return out, err
}

// DueForReminder returns SCHEDULED sessions starting in (now, now+within] that have not been reminded.
func (s *Store) DueForReminder(ctx context.Context, now time.Time, within time.Duration, batch int) ([]models.ClassSession, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()

	out := []models.ClassSession{}
	err := s.db.SelectContext(ctx, &out, `
		SELECT `+sessionColumns+`
		FROM class_sessions
		WHERE status = 'SCHEDULED' AND NOT reminder_sent
		  AND start_time > $1 AND start_time <= $2
		ORDER BY start_time
		LIMIT $3
	`, now, now.Add(within), batch)
	return out, err
}

func (s *Store) MarkReminded(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, cancel := dbCtx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		UPDATE class_sessions SET reminder_sent = true, updated_at = now()
		WHERE id = ANY($1)
	`, pq.Array(ids))
	return err
}
