package domain

// User is the authenticated user profile returned by GET /users/me/.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// LoginRequest is the body of POST /auth/login/.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest is the body of POST /auth/register/.
type RegisterRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email,omitempty"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

// TokenResponse is returned by the credential-issuing endpoints.
// The refresh credential travels in an HTTP-only cookie and never appears here.
type TokenResponse struct {
	Access string `json:"access"`
}
