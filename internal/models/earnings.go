package models

import "time"

type TeacherEarnings struct {
	TeacherID     int64     `db:"teacher_id" json:"teacherId"`
	Month         int       `db:"month" json:"month"`
	Year          int       `db:"year" json:"year"`
	TotalEarnings float64   `db:"total_earnings" json:"totalEarnings"`
	TotalClasses  int       `db:"total_classes" json:"totalClasses"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}
