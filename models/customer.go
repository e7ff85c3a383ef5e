package models

// Customer is the onboarding request payload. It is never persisted.
// Email is stored as given; its format is not checked.
type Customer struct {
	Username    string `json:"username" validate:"required,max=255"`
	Email       string `json:"email" validate:"required"`
	CompanyName string `json:"company_name" validate:"required,max=100"`
}

// Token is the bearer credential returned to a newly onboarded customer
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// TokenTypeBearer is the only token type issued
const TokenTypeBearer = "bearer"

// NewBearerToken wraps a signed access token
func NewBearerToken(accessToken string) *Token {
	return &Token{
		AccessToken: accessToken,
		TokenType:   TokenTypeBearer,
	}
}
