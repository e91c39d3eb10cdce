package db

import (
	"context"

	"github.com/Spok95/learning-platform/internal/models"
)

func (s *Store) GetEarnings(ctx context.Context, teacherID int64, month, year int) (*models.TeacherEarnings, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()

	var e models.TeacherEarnings
	err := s.db.GetContext(ctx, &e, `
		SELECT teacher_id, month, year, total_earnings, total_classes, updated_at
		FROM teacher_earnings
		WHERE teacher_id = $1 AND month = $2 AND year = $3
	`, teacherID, month, year)
	if err != nil {
		return nil, notFound(err, "earnings")
	}
	return &e, nil
}

func (s *Store) ListEarnings(ctx context.Context, teacherID int64) ([]models.TeacherEarnings, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()

	out := []models.TeacherEarnings{}
	err := s.db.SelectContext(ctx, &out, `
		SELECT teacher_id, month, year, total_earnings, total_classes, updated_at
		FROM teacher_earnings
		WHERE teacher_id = $1
		ORDER BY year DESC, month DESC
	`, teacherID)
	return out, err
}
