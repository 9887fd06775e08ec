package models

import "time"

// Тарифы подписки.
const (
	TierBasic      = "BASIC"
	TierPro        = "PRO"
	TierEnterprise = "ENTERPRISE"
)

// Статусы подписки.
const (
	SubscriptionStatusActive    = "ACTIVE"
	SubscriptionStatusPending   = "PENDING"
	SubscriptionStatusCancelled = "CANCELLED"
	SubscriptionStatusPastDue   = "PAST_DUE"
)

// Циклы оплаты подписки.
const (
	BillingCycleMonthly = "MONTHLY"
	BillingCycleAnnual  = "ANNUAL"
)

// Subscription представляет обязательство пользователя по тарифу:
// количество мест, цикл оплаты, статус и границы текущего периода.
// Исторически у пользователя может быть несколько подписок, но в
// устойчивом состоянии активной остаётся ровно одна.
type Subscription struct {
	UID                string    // Уникальный идентификатор подписки
	UserUID            string    // Идентификатор пользователя
	OrgUID             string    // Идентификатор организации, пустой вне корпоративного тарифа
	Tier               string    // Тариф: BASIC, PRO, ENTERPRISE
	Seats              int       // Количество мест
	Status             string    // Статус: ACTIVE, PENDING, CANCELLED, PAST_DUE
	BillingCycle       string    // Цикл оплаты: MONTHLY, ANNUAL
	PricePerSeat       int64     // Цена за место в центах
	CurrentPeriodStart time.Time // Начало текущего периода
	CurrentPeriodEnd   time.Time // Конец текущего периода
	CancelAtPeriodEnd  bool      // Флаг отмены в конце периода
	CreatedAt          time.Time // Дата создания записи
	UpdatedAt          time.Time // Дата последнего изменения
}

// TierPolicy описывает ценовую политику тарифа: цена за место,
// минимальное количество мест и длительность расчётного периода.
type TierPolicy struct {
	PricePerSeat int64  // Цена за место в центах за месяц
	MinSeats     int    // Минимальное количество мест
	TermDays     int    // Длительность расчётного периода в днях
	BillingCycle string // Цикл оплаты по умолчанию
}

// tierPolicies — фиксированная ценовая таблица. Значения должны
// воспроизводиться в точности для совместимости с платёжными записями.
var tierPolicies = map[string]TierPolicy{
	TierBasic:      {PricePerSeat: 2900, MinSeats: 1, TermDays: 30, BillingCycle: BillingCycleMonthly},
	TierPro:        {PricePerSeat: 7900, MinSeats: 10, TermDays: 30, BillingCycle: BillingCycleMonthly},
	TierEnterprise: {PricePerSeat: 19900, MinSeats: 50, TermDays: 365, BillingCycle: BillingCycleAnnual},
}

// PolicyFor возвращает ценовую политику тарифа.
// Второе значение false, если тариф неизвестен.
func PolicyFor(tier string) (TierPolicy, bool) {
	p, ok := tierPolicies[tier]
	return p, ok
}
