package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const UserContextKey ContextKey = "user"

// CookieName is the cookie carrying the session token.
const CookieName = "auth_token"

// TokenTTL is how long an issued token stays valid.
const TokenTTL = 24 * time.Hour

type GithubUser struct {
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type AuthResponse struct {
	User  GithubUser `json:"user"`
	Token string     `json:"token,omitempty"`
}

type Claims struct {
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
	jwt.RegisteredClaims
}

type Config struct {
	JwtSecret    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AllowedOrg   string
	Enabled      bool
}

// Authenticator runs the GitHub OAuth flow and issues and verifies the
// session tokens that guard the admin API.
type Authenticator struct {
	cfg    Config
	secret []byte
	http   *http.Client

	// Overridable for tests.
	oauthBaseURL string
	apiBaseURL   string
	now          func() time.Time
}

// New creates an Authenticator.
func New(cfg Config) *Authenticator {
	return &Authenticator{
		cfg:          cfg,
		secret:       []byte(cfg.JwtSecret),
		http:         &http.Client{Timeout: 10 * time.Second},
		oauthBaseURL: "https://github.com",
		apiBaseURL:   "https://api.github.com",
		now:          time.Now,
	}
}

// Enabled returns whether authentication is enabled
func (a *Authenticator) Enabled() bool {
	return a != nil && a.cfg.Enabled
}

// GenerateState creates a random state parameter for OAuth
func GenerateState() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "fallback-state-" + fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return base64.URLEncoding.EncodeToString(b)
}

// LoginURL returns the Github OAuth login URL
func (a *Authenticator) LoginURL(state string) string {
	scope := "read:user,user:email"
	if a.cfg.AllowedOrg != "" {
		scope += ",read:org"
	}
	q := url.Values{}
	q.Set("client_id", a.cfg.ClientID)
	q.Set("redirect_uri", a.cfg.RedirectURL)
	q.Set("scope", scope)
	q.Set("state", state)
	return a.oauthBaseURL + "/login/oauth/authorize?" + q.Encode()
}

// ExchangeCode exchanges the OAuth code for an access token.
func (a *Authenticator) ExchangeCode(ctx context.Context, code string) (string, error) {
	form := url.Values{}
	form.Set("client_id", a.cfg.ClientID)
	form.Set("client_secret", a.cfg.ClientSecret)
	form.Set("code", code)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.oauthBaseURL+"/login/oauth/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.http.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close response body")
		}
	}()

	var result struct {
		AccessToken string `json:"access_token"`
		Error       string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if result.AccessToken == "" {
		if result.Error != "" {
			return "", fmt.Errorf("failed to get access token: %s", result.Error)
		}
		return "", errors.New("failed to get access token")
	}
	return result.AccessToken, nil
}

// GithubUser fetches user info from the Github API and enforces the
// organization restriction when one is configured.
func (a *Authenticator) GithubUser(ctx context.Context, accessToken string) (*GithubUser, error) {
	resp, err := a.githubGet(ctx, accessToken, "/user")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GitHub API returned status %d", resp.StatusCode)
	}

	var user GithubUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, err
	}

	if a.cfg.AllowedOrg != "" && !a.isOrgMember(ctx, accessToken, user.Login, a.cfg.AllowedOrg) {
		return nil, fmt.Errorf("user is not a member of the required organization")
	}
	return &user, nil
}

// isOrgMember checks if user is a member of the specified organization
func (a *Authenticator) isOrgMember(ctx context.Context, accessToken, username, org string) bool {
	resp, err := a.githubGet(ctx, accessToken, fmt.Sprintf("/orgs/%s/members/%s", url.PathEscape(org), url.PathEscape(username)))
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	// 204 means user is a public member, 200 means private member
	return resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent
}

func (a *Authenticator) githubGet(ctx context.Context, accessToken, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.apiBaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	return a.http.Do(req)
}

// GenerateJWT creates a JWT token for the user
func (a *Authenticator) GenerateJWT(user *GithubUser) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("jwt secret not configured")
	}
	now := a.now()
	claims := Claims{
		Login:     user.Login,
		Name:      user.Name,
		Email:     user.Email,
		AvatarURL: user.AvatarURL,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   user.Login,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ValidateJWT validates and parses a JWT token
func (a *Authenticator) ValidateJWT(tokenString string) (*GithubUser, error) {
	if len(a.secret) == 0 {
		return nil, errors.New("jwt secret not configured")
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return &GithubUser{
			Login:     claims.Login,
			Name:      claims.Name,
			Email:     claims.Email,
			AvatarURL: claims.AvatarURL,
		}, nil
	}
	return nil, fmt.Errorf("invalid token")
}

// TokenFromRequest returns the bearer token or, failing that, the session
// cookie value.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if cookie, err := r.Cookie(CookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// Middleware requires a valid token when auth is enabled and passes every
// request through otherwise.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		tokenString := TokenFromRequest(r)
		if tokenString == "" {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		user, err := a.ValidateJWT(tokenString)
		if err != nil {
			http.Error(w, "Invalid authentication token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserFromContext extracts user from request context
func UserFromContext(ctx context.Context) *GithubUser {
	if user, ok := ctx.Value(UserContextKey).(*GithubUser); ok {
		return user
	}
	return nil
}
