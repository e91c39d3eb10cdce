package models

import "time"

type SessionStatus string

const (
	SessionScheduled  SessionStatus = "SCHEDULED"
	SessionInProgress SessionStatus = "IN_PROGRESS"
	SessionCompleted  SessionStatus = "COMPLETED"
)

type ClassSession struct {
	ID              int64         `db:"id" json:"id"`
	StudentID       int64         `db:"student_id" json:"studentId"`
	TeacherID       int64         `db:"teacher_id" json:"teacherId"`
	SubscriptionID  int64         `db:"subscription_id" json:"subscriptionId"`
	StartTime       time.Time     `db:"start_time" json:"startTime"`
	EndTime         *time.Time    `db:"end_time" json:"endTime,omitempty"`
	DurationMinutes int           `db:"duration_minutes" json:"durationMinutes"`
	Status          SessionStatus `db:"status" json:"status"`
	Notes           *string       `db:"notes" json:"notes,omitempty"`
	Earning         float64       `db:"earning" json:"earning"`
	ReminderSent    bool          `db:"reminder_sent" json:"-"`
	CreatedAt       time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updatedAt"`
}

// SessionCompletion carries every write that ending a class performs.
type SessionCompletion struct {
	SessionID       int64
	SubscriptionID  int64
	TeacherID       int64
	EndTime         time.Time
	DurationMinutes int
	Earning         float64
	Notes           *string
}
