package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/athebyme/listing-cloner/pkg/auth"
	"github.com/athebyme/listing-cloner/pkg/interfaces"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// LoginFlow вход оператора через Keycloak
type LoginFlow interface {
	GetAuthURL(state string) string
	ExchangeCode(ctx context.Context, state, code string) (*oauth2.Token, error)
}

// AuthHandler обработчик входа оператора
type AuthHandler struct {
	flow   LoginFlow
	logger interfaces.LoggerPort
}

// NewAuthHandler создает новый обработчик входа
func NewAuthHandler(flow LoginFlow, logger interfaces.LoggerPort) *AuthHandler {
	return &AuthHandler{flow: flow, logger: logger}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
}

// Login перенаправляет оператора на страницу входа Keycloak
// @Summary Вход оператора
// @Tags auth
// @Success 302
// @Router /auth/login [get]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state := uuid.New().String()
	http.Redirect(w, r, h.flow.GetAuthURL(state), http.StatusFound)
}

// Callback обменивает код авторизации на токен оператора
// @Summary Завершение входа оператора
// @Tags auth
// @Produce json
// @Param state query string true "state"
// @Param code query string true "code"
// @Success 200 {object} response
// @Failure 400 {object} errorResponse
// @Router /auth/callback [get]
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if state == "" || code == "" {
		renderError(w, r, http.StatusBadRequest, "bad_request", "state и code обязательны")
		return
	}

	token, err := h.flow.ExchangeCode(r.Context(), state, code)
	if err != nil {
		if errors.Is(err, auth.ErrUnknownState) {
			renderError(w, r, http.StatusBadRequest, "invalid_state", "Неизвестный или устаревший state")
			return
		}
		h.logger.ErrorWithContext(r.Context(), "Ошибка обмена кода авторизации",
			interfaces.LogField{Key: "error", Value: err.Error()})
		renderError(w, r, http.StatusBadGateway, "auth_error", "Ошибка обмена кода авторизации")
		return
	}

	resp := tokenResponse{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
	}
	if !token.Expiry.IsZero() {
		resp.ExpiresAt = token.Expiry.Unix()
	}

	renderOK(w, r, resp, nil)
}
