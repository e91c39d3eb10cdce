package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/Spok95/learning-platform/internal/apperr"
	"github.com/Spok95/learning-platform/internal/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const userColumns = `id, email, password_hash, full_name, role, telegram_chat_id, created_at`

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	ctx, cancel := dbCtx(ctx)
	defer cancel()

	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO users (email, password_hash, full_name, role, telegram_chat_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, u.Email, u.PasswordHash, u.FullName, string(u.Role), u.TelegramChatID).Scan(&u.ID, &u.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("email already registered: %w", apperr.ErrConflict)
	}
	return err
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()

	var u models.User
	err := s.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err, "user")
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()

	var u models.User
	err := s.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	if err != nil {
		return nil, notFound(err, "user")
	}
	return &u, nil
}

// AssignStudent links a teacher to a student. Re-assigning is a no-op.
func (s *Store) AssignStudent(ctx context.Context, teacherID, studentID int64) error {
	ctx, cancel := dbCtx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO teacher_students (teacher_id, student_id)
		VALUES ($1, $2)
		ON CONFLICT (teacher_id, student_id) DO NOTHING
	`, teacherID, studentID)
	return err
}

func (s *Store) UnassignStudent(ctx context.Context, teacherID, studentID int64) error {
	ctx, cancel := dbCtx(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM teacher_students WHERE teacher_id = $1 AND student_id = $2`, teacherID, studentID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("assignment: %w", apperr.ErrNotFound)
	}
	return nil
}

func (s *Store) IsAssigned(ctx context.Context, teacherID, studentID int64) (bool, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()

	var ok bool
	err := s.db.GetContext(ctx, &ok, `
		SELECT EXISTS (SELECT 1 FROM teacher_students WHERE teacher_id = $1 AND student_id = $2)
	`, teacherID, studentID)
	return ok, err
}

func (s *Store) ListStudentsForTeacher(ctx context.Context, teacherID int64) ([]models.User, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()

	out := []models.User{}
	err := s.db.SelectContext(ctx, &out, `
		SELECT u.id, u.email, u.password_hash, u.full_name, u.role, u.telegram_chat_id, u.created_at
		FROM teacher_students ts
		JOIN users u ON u.id = ts.student_id
		WHERE ts.teacher_id = $1
		ORDER BY u.full_name
	`, teacherID)
	return out, err
}

// isUniqueViolation understands both drivers: pgx in the app, lib/pq in older tooling.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
