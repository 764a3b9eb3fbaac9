package domain

import (
	"time"

	"github.com/google/uuid"
)

// User - запись справочника пользователей CRM. Сам справочник (регистрация,
// профили, команды) ведется снаружи чат-ядра; здесь только то, что нужно
// для аутентификации соединений и денормализованных снимков.
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	FullName     string    `json:"full_name"`
	PasswordHash string    `json:"-"`
	IsManager    bool      `json:"is_manager"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
