package models

import "time"

// Статусы лицензии.
const (
	LicenseStatusActive    = "ACTIVE"
	LicenseStatusPending   = "PENDING"
	LicenseStatusSuspended = "SUSPENDED"
	LicenseStatusExpired   = "EXPIRED"
	LicenseStatusRevoked   = "REVOKED"
)

// License представляет лицензию, выписанную под подписку.
// Ключ лицензии уникален во всём хранилище и имеет формат LIC-{TIER}-{8 hex}.
// Лишние лицензии отзываются, но никогда не удаляются — это след аудита.
type License struct {
	UID             string     // Уникальный идентификатор лицензии
	UserUID         string     // Идентификатор пользователя
	SubscriptionUID string     // Идентификатор подписки
	Key             string     // Уникальный ключ лицензии
	Tier            string     // Тариф, зеркалирует тариф подписки
	Status          string     // Статус: ACTIVE, PENDING, SUSPENDED, EXPIRED, REVOKED
	ActivatedAt     *time.Time // Дата активации, nil если не активирована
	ExpiresAt       *time.Time // Дата истечения, nil если не назначена
	ActivationCount int        // Количество активаций
	MaxActivations  int        // Максимум активаций
	CreatedAt       time.Time  // Дата создания записи
	UpdatedAt       time.Time  // Дата последнего изменения
}

// IsExpired сообщает, истекла ли лицензия к моменту now.
// Лицензия без даты истечения считается неистёкшей.
func (l *License) IsExpired(now time.Time) bool {
	return l.ExpiresAt != nil && l.ExpiresAt.Before(now)
}
