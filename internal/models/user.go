// Package models содержит доменные структуры лицензионного ядра:
// пользователей, организации, подписки, лицензии и платёжные записи.
// Структуры используются в бизнес‑логике и при работе с хранилищем.
package models

import "time"

// Роли пользователей системы.
const (
	RoleUser       = "USER"
	RoleAdmin      = "ADMIN"
	RoleSuperAdmin = "SUPERADMIN"
	RoleAccounting = "ACCOUNTING"
)

// User представляет учётную запись пользователя системы.
type User struct {
	UID           string    // Уникальный идентификатор пользователя
	Email         string    // Электронная почта (уникальная)
	DisplayName   string    // Отображаемое имя
	PasswordHash  string    // Хэш пароля пользователя
	Role          string    // Роль пользователя: USER, ADMIN, SUPERADMIN, ACCOUNTING
	EmailVerified bool      // Флаг подтверждения почты
	ExternalID    string    // Идентификатор учётки во внешнем провайдере идентификации
	CreatedAt     time.Time // Дата создания записи
	UpdatedAt     time.Time // Дата последнего изменения
}

// IsStaff сообщает, имеет ли роль доступ к административному API.
func IsStaff(role string) bool {
	switch role {
	case RoleAdmin, RoleSuperAdmin, RoleAccounting:
		return true
	}
	return false
}
