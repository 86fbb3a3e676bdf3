package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/athebyme/listing-cloner/pkg/interfaces"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/patrickmn/go-cache"
	"golang.org/x/oauth2"
)

// ErrUnknownState возвращается, если state из callback не выдавался
var ErrUnknownState = errors.New("unknown or expired oauth state")

// KeycloakConfig конфигурация для Keycloak
type KeycloakConfig struct {
	ServerURL    string
	Realm        string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// KeycloakClaims представляет собой структуру claims из токена Keycloak
type KeycloakClaims struct {
	UserID      string `json:"sub"`
	Username    string `json:"preferred_username"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	RealmAccess struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
	ResourceAccess map[string]struct {
		Roles []string `json:"roles"`
	} `json:"resource_access"`
}

// KeycloakClient клиент для работы с Keycloak
type KeycloakClient struct {
	provider     *oidc.Provider
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
	tokenCache   *cache.Cache
	stateCache   *cache.Cache
	clientID     string
}

// NewKeycloakClient создает новый клиент Keycloak
func NewKeycloakClient(ctx context.Context, cfg KeycloakConfig) (*KeycloakClient, error) {
	providerURL := fmt.Sprintf("%s/realms/%s", cfg.ServerURL, cfg.Realm)

	provider, err := oidc.NewProvider(ctx, providerURL)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания OIDC провайдера: %w", err)
	}

	oauth2Config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID:        cfg.ClientID,
		SkipIssuerCheck: true,
	})

	return &KeycloakClient{
		provider:     provider,
		verifier:     verifier,
		oauth2Config: oauth2Config,
		tokenCache:   cache.New(5*time.Minute, 10*time.Minute),
		stateCache:   cache.New(10*time.Minute, 10*time.Minute),
		clientID:     cfg.ClientID,
	}, nil
}

// ValidateToken проверяет JWT токен и возвращает оператора
func (k *KeycloakClient) ValidateToken(ctx context.Context, tokenString string) (*interfaces.Principal, error) {
	if cached, found := k.tokenCache.Get(tokenString); found {
		return cached.(*interfaces.Principal), nil
	}

	idToken, err := k.verifier.Verify(ctx, tokenString)
	if err != nil {
		return nil, fmt.Errorf("ошибка верификации токена: %w", err)
	}

	var claims KeycloakClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("ошибка извлечения claims: %w", err)
	}

	principal := k.principalFromClaims(&claims)

	expiresIn := time.Until(idToken.Expiry)
	if expiresIn > 0 {
		k.tokenCache.Set(tokenString, principal, expiresIn)
	}

	return principal, nil
}

// principalFromClaims объединяет роли realm и клиента в одного оператора
func (k *KeycloakClient) principalFromClaims(claims *KeycloakClaims) *interfaces.Principal {
	roles := append([]string{}, claims.RealmAccess.Roles...)
	if clientRoles, exists := claims.ResourceAccess[k.clientID]; exists {
		roles = append(roles, clientRoles.Roles...)
	}

	return &interfaces.Principal{
		UserID:   claims.UserID,
		Username: claims.Username,
		Email:    claims.Email,
		Roles:    roles,
	}
}

// HasRole проверяет наличие роли у оператора
func (k *KeycloakClient) HasRole(principal *interfaces.Principal, role string) bool {
	return HasRole(principal, role)
}

// HasRole проверяет наличие роли в списке ролей оператора
func HasRole(principal *interfaces.Principal, role string) bool {
	if principal == nil {
		return false
	}
	for _, r := range principal.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// GetAuthURL возвращает URL для входа оператора и запоминает выданный state
func (k *KeycloakClient) GetAuthURL(state string) string {
	k.stateCache.SetDefault(state, struct{}{})
	return k.oauth2Config.AuthCodeURL(state)
}

// ExchangeCode обменивает код авторизации на токены
func (k *KeycloakClient) ExchangeCode(ctx context.Context, state, code string) (*oauth2.Token, error) {
	if _, found := k.stateCache.Get(state); !found {
		return nil, ErrUnknownState
	}
	k.stateCache.Delete(state)

	return k.oauth2Config.Exchange(ctx, code)
}
