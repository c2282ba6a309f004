package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// NewToken выпускает HS256-токен с аккаунтом в поле sub. В бою токены выпускает
// провайдер идентификации, функция нужна для локального запуска и тестов.
func NewToken(accountID string, secret string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty")
	}
	if accountID == "" {
		return "", errors.New("account id is empty")
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   accountID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
