package config

import (
	"github.com/athebyme/listing-cloner/pkg/auth"
)

// KeycloakConfig представляет конфигурацию Keycloak для аутентификации операторов
type KeycloakConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ServerURL    string `mapstructure:"server_url"`
	Realm        string `mapstructure:"realm"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url"`
	RequiredRole string `mapstructure:"required_role"`
}

// GetKeycloakConfig возвращает конфигурацию для auth.KeycloakClient
func (k *KeycloakConfig) GetKeycloakConfig() auth.KeycloakConfig {
	return auth.KeycloakConfig{
		ServerURL:    k.ServerURL,
		Realm:        k.Realm,
		ClientID:     k.ClientID,
		ClientSecret: k.ClientSecret,
		RedirectURL:  k.RedirectURL,
	}
}
