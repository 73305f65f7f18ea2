package api

// RegisterRequest представляет запрос на регистрацию нового пользователя
type RegisterRequest struct {
	Username string `json:"username"`  // username пользователя
	Password string `json:"password"`  // пароль в открытом виде, хранится только bcrypt хеш
	TenantID string `json:"tenant_id"` // школа, к которой относится пользователь
}

// RegisterResponse представляет ответ на успешную регистрацию
type RegisterResponse struct {
	UserID   string `json:"user_id"`   // UUID пользователя
	TenantID string `json:"tenant_id"` // арендатор пользователя
	Message  string `json:"message"`   // сообщение об успешной регистрации
}

// LoginRequest представляет запрос на аутентификацию
type LoginRequest struct {
	Username string `json:"username"` // username пользователя
	Password string `json:"password"` // пароль
}

// TokenResponse представляет ответ с токеном доступа
type TokenResponse struct {
	AccessToken string `json:"access_token"` // JWT access token
	TenantID    string `json:"tenant_id"`    // арендатор из токена
	ExpiresIn   int64  `json:"expires_in"`   // время жизни access token в секундах
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`             // описание ошибки
	Message string `json:"message,omitempty"` // дополнительное сообщение
}

// HealthResponse представляет ответ проверки здоровья
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
