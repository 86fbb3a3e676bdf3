package interfaces

import (
	"context"
)

// Principal описывает аутентифицированного оператора
type Principal struct {
	UserID   string
	Username string
	Email    string
	Roles    []string
}

// AuthPort определяет интерфейс для работы с аутентификацией операторов
type AuthPort interface {
	// ValidateToken проверяет токен и возвращает оператора
	ValidateToken(ctx context.Context, token string) (*Principal, error)

	// HasRole проверяет наличие роли у оператора
	HasRole(principal *Principal, role string) bool
}
