package identity

// CreateIdentityRequest — тело запроса на создание учётки
// во внешнем провайдере идентификации.
type CreateIdentityRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	DisplayName   string `json:"display_name"`
	EmailVerified bool   `json:"email_verified"`
}

// CreateIdentityResponse — ответ провайдера на создание учётки.
type CreateIdentityResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// UpdateIdentityRequest — тело запроса на обновление учётки.
// Пустые поля провайдер оставляет без изменений.
type UpdateIdentityRequest struct {
	Password    string `json:"password,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}
