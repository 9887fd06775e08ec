package models

import "time"

// Статусы платёжных записей.
const (
	BillingStatusSucceeded = "succeeded"
	BillingStatusPending   = "pending"
	BillingStatusFailed    = "failed"
)

// DefaultCurrency — валюта платёжных записей по умолчанию.
const DefaultCurrency = "USD"

// Invoice представляет счёт за расчётный период подписки.
// На один период подписки приходится не более одного счёта.
// Создание счёта синхронно с захватом платежа, отдельного
// состояния "ожидает оплаты" в этом домене нет.
type Invoice struct {
	UID             string    // Уникальный идентификатор счёта
	UserUID         string    // Идентификатор пользователя
	SubscriptionUID string    // Идентификатор подписки
	Amount          int64     // Сумма в центах
	Currency        string    // Валюта
	Status          string    // Статус: succeeded, pending, failed
	TaxRegion       string    // Налоговая юрисдикция, непрозрачные входные данные
	PeriodStart     time.Time // Начало оплаченного периода
	PeriodEnd       time.Time // Конец оплаченного периода
	CreatedAt       time.Time // Дата создания записи
	UpdatedAt       time.Time // Дата последнего изменения
}

// Payment представляет платёж по счёту. Email и имя пользователя
// денормализованы в запись намеренно — для отчётности; при изменении
// данных пользователя их пересинхронизирует аудитор.
type Payment struct {
	UID             string    // Уникальный идентификатор платежа
	UserUID         string    // Идентификатор пользователя
	SubscriptionUID string    // Идентификатор подписки
	InvoiceUID      string    // Идентификатор счёта, пустой если связь не установлена
	Amount          int64     // Сумма в центах
	Currency        string    // Валюта
	Status          string    // Статус: succeeded, pending, failed
	UserEmail       string    // Денормализованная почта пользователя
	UserName        string    // Денормализованное имя пользователя
	CreatedAt       time.Time // Дата создания записи
	UpdatedAt       time.Time // Дата последнего изменения
}

// InvoicePayment связывает успешный счёт с его платежом.
// Сумма и валюта переносятся из счёта без изменений.
type InvoicePayment struct {
	UID        string    // Уникальный идентификатор связи
	InvoiceUID string    // Идентификатор счёта
	PaymentUID string    // Идентификатор платежа
	Amount     int64     // Сумма в центах, копия из счёта
	Currency   string    // Валюта, копия из счёта
	CreatedAt  time.Time // Дата создания записи
}
