package models

import "time"

// Organization представляет организацию, которой владеет пользователь
// корпоративного тарифа. В устойчивом состоянии на одного владельца
// приходится ровно одна организация, это обеспечивается поиском перед созданием.
type Organization struct {
	UID       string    // Уникальный идентификатор организации
	Name      string    // Название организации
	OwnerUID  string    // Идентификатор пользователя-владельца
	Tier      string    // Тариф организации
	CreatedAt time.Time // Дата создания записи
	UpdatedAt time.Time // Дата последнего изменения
}

// Роли участников организации.
const (
	MemberRoleOwner           = "OWNER"
	MemberRoleEnterpriseAdmin = "ENTERPRISE_ADMIN"
	MemberRoleManager         = "MANAGER"
	MemberRoleMember          = "MEMBER"
)

// Статусы участников организации.
const (
	MemberStatusInvited = "INVITED"
	MemberStatusActive  = "ACTIVE"
)

// OrgMember представляет участника организации. Участник может быть
// приглашён до регистрации, поэтому ссылка на пользователя необязательна.
// Естественный ключ записи — пара (организация, email).
type OrgMember struct {
	UID          string     // Уникальный идентификатор записи участника
	OrgUID       string     // Идентификатор организации
	Email        string     // Электронная почта участника
	UserUID      string     // Идентификатор пользователя, пустой до регистрации
	Role         string     // Роль участника: OWNER, ENTERPRISE_ADMIN, MANAGER, MEMBER
	Status       string     // Статус участника: INVITED, ACTIVE
	SeatReserved bool       // Флаг зарезервированного места
	InvitedBy    string     // Кто пригласил участника
	InvitedAt    time.Time  // Дата приглашения
	JoinedAt     *time.Time // Дата присоединения, nil пока участник не активен
	CreatedAt    time.Time  // Дата создания записи
	UpdatedAt    time.Time  // Дата последнего изменения
}
