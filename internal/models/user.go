package models

import "time"

type Role string

const (
	Student Role = "student"
	Teacher Role = "teacher"
	Admin   Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case Student, Teacher, Admin:
		return true
	}
	return false
}

type User struct {
	ID             int64     `db:"id" json:"id"`
	Email          string    `db:"email" json:"email"`
	PasswordHash   string    `db:"password_hash" json:"-"`
	FullName       string    `db:"full_name" json:"fullName"`
	Role           Role      `db:"role" json:"role"`
	TelegramChatID *int64    `db:"telegram_chat_id" json:"telegramChatId,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}
