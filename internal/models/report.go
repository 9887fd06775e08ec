package models

import "time"

// Названия проверок аудитора. Порядок выполнения фиксирован:
// orphans -> duplicates -> links -> drift -> revenue.
const (
	CheckOrphans    = "orphans"
	CheckDuplicates = "duplicate_subscriptions"
	CheckLinks      = "missing_links"
	CheckDrift      = "payment_drift"
	CheckRevenue    = "revenue"
	CheckSeats      = "seat_limit"
)

// Finding описывает одно найденное аудитором нарушение целостности.
type Finding struct {
	Check      string `json:"check"`      // Название проверки
	Collection string `json:"collection"` // Коллекция, в которой найдено нарушение
	UID        string `json:"uid"`        // Идентификатор записи
	Detail     string `json:"detail"`     // Человеко-читаемое описание
	Repaired   bool   `json:"repaired"`   // Было ли нарушение исправлено
}

// Summary накапливает итоги пакетной операции. Задания не падают на
// первой ошибке, а продолжают обработку, считая результат по записям.
type Summary struct {
	Created int `json:"created"` // Создано записей
	Updated int `json:"updated"` // Обновлено записей
	Skipped int `json:"skipped"` // Пропущено записей без изменений
	Errored int `json:"errored"` // Записей с ошибками
}

// Add суммирует другой Summary в приёмник.
func (s *Summary) Add(other Summary) {
	s.Created += other.Created
	s.Updated += other.Updated
	s.Skipped += other.Skipped
	s.Errored += other.Errored
}

// Changed сообщает, были ли в пакете фактические записи.
func (s *Summary) Changed() bool {
	return s.Created > 0 || s.Updated > 0
}

// AuditReport — итог полного прохода аудитора по всем коллекциям.
type AuditReport struct {
	StartedAt       time.Time `json:"started_at"`       // Начало прохода
	FinishedAt      time.Time `json:"finished_at"`      // Конец прохода
	DryRun          bool      `json:"dry_run"`          // Режим без записи
	Destructive     bool      `json:"destructive"`      // Режим удаления осиротевших записей
	Findings        []Finding `json:"findings"`         // Найденные нарушения
	Summary         Summary   `json:"summary"`          // Итоги по записям
	RevenueInvoices int64     `json:"revenue_invoices"` // Сумма успешных счетов в центах
	RevenuePayments int64     `json:"revenue_payments"` // Сумма успешных платежей в центах
}
