package models

// DummyAuditRun используется для приёма параметров запуска аудита
// из JSON-запроса. Через API аудит выполняется только в режиме без записи.
type DummyAuditRun struct {
	Destructive bool `json:"destructive,omitempty"` // Помечать осиротевшие записи к удалению
}

// SeedMember описывает участника организации в конфигурации посева.
type SeedMember struct {
	Email string `yaml:"email" json:"email" validate:"required,email"` // Почта участника
	Role  string `yaml:"role" json:"role" validate:"required"`         // Роль участника
}

// SeedAccount описывает одну учётную запись в конфигурации посева:
// пользователя, его тариф и, для корпоративного тарифа, организацию.
type SeedAccount struct {
	Email        string       `yaml:"email" json:"email" validate:"required,email"`  // Почта пользователя
	Name         string       `yaml:"name" json:"name" validate:"required"`          // Отображаемое имя
	Password     string       `yaml:"password" json:"password" validate:"required"`  // Пароль
	Role         string       `yaml:"role" json:"role" validate:"required"`          // Роль пользователя
	Tier         string       `yaml:"tier" json:"tier" validate:"required"`          // Тариф подписки
	Seats        int          `yaml:"seats" json:"seats" validate:"required,gt=0"`   // Количество мест
	BillingCycle string       `yaml:"billing_cycle" json:"billing_cycle,omitempty"`  // Цикл оплаты, по умолчанию из тарифа
	OrgName      string       `yaml:"org_name" json:"org_name,omitempty"`            // Название организации
	Members      []SeedMember `yaml:"members" json:"members,omitempty"`              // Участники организации
}
