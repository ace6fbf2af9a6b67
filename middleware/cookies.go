package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/authtokens"
)

// CSRFHeader is the request header checked for the CSRF token before the
// CSRF cookie.
const CSRFHeader = "X-CSRF-Token"

// CookieConfig names and scopes the three token cookies.
type CookieConfig struct {
	AccessName  string
	RefreshName string
	CSRFName    string
	Domain      string
	Path        string
	Secure      bool
	SameSite    http.SameSite
}

// DefaultCookieConfig mirrors authtokens.DefaultConfig().Cookies.
func DefaultCookieConfig() CookieConfig {
	return CookieConfigFrom(authtokens.DefaultConfig().Cookies)
}

// CookieConfigFrom converts the engine's cookie settings.
func CookieConfigFrom(cfg authtokens.CookiesConfig) CookieConfig {
	return CookieConfig{
		AccessName:  cfg.AccessName,
		RefreshName: cfg.RefreshName,
		CSRFName:    cfg.CSRFName,
		Domain:      cfg.Domain,
		Path:        cfg.Path,
		Secure:      cfg.Secure,
		SameSite:    parseSameSite(cfg.SameSite),
	}
}

func parseSameSite(v string) http.SameSite {
	switch strings.ToLower(v) {
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteStrictMode
	}
}

// MaxAges holds the cookie lifetime of each token.
type MaxAges struct {
	Access  time.Duration
	Refresh time.Duration
	CSRF    time.Duration
}

// MaxAgesFrom takes each cookie lifetime from the matching token max age.
func MaxAgesFrom(cfg authtokens.TokensConfig) MaxAges {
	return MaxAges{
		Access:  cfg.AccessTokenMaxAge,
		Refresh: cfg.RefreshTokenMaxAge,
		CSRF:    cfg.CSRFTokenMaxAge,
	}
}

// SetTokenCookies writes the cookies for set. When the refresh token was not
// rotated its cookie is left alone so the browser keeps the original expiry.
func SetTokenCookies(w http.ResponseWriter, cfg CookieConfig, set *authtokens.TokenSet, ages MaxAges) {
	if set == nil {
		return
	}
	http.SetCookie(w, cfg.cookie(cfg.AccessName, set.AccessToken, ages.Access, true))
	if set.RefreshRotated {
		http.SetCookie(w, cfg.cookie(cfg.RefreshName, set.RefreshToken, ages.Refresh, true))
	}
	http.SetCookie(w, cfg.cookie(cfg.CSRFName, set.CSRFToken, ages.CSRF, false))
}

// ClearTokenCookies expires all three cookies.
func ClearTokenCookies(w http.ResponseWriter, cfg CookieConfig) {
	for _, name := range []string{cfg.AccessName, cfg.RefreshName, cfg.CSRFName} {
		c := cfg.cookie(name, "", 0, name != cfg.CSRFName)
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
		http.SetCookie(w, c)
	}
}

func (cfg CookieConfig) cookie(name, value string, maxAge time.Duration, httpOnly bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Domain:   cfg.Domain,
		Path:     cfg.Path,
		MaxAge:   int(maxAge / time.Second),
		Secure:   cfg.Secure,
		HttpOnly: httpOnly,
		SameSite: cfg.SameSite,
	}
}

// RequestTokens are the token strings found on a request. Missing ones are
// empty.
type RequestTokens struct {
	Access  string
	Refresh string
	CSRF    string
}

// TokensFromRequest extracts the token triple from r.
func TokensFromRequest(r *http.Request, cfg CookieConfig) RequestTokens {
	out := RequestTokens{
		Access:  cookieValue(r, cfg.AccessName),
		Refresh: cookieValue(r, cfg.RefreshName),
		CSRF:    r.Header.Get(CSRFHeader),
	}
	if out.CSRF == "" {
		out.CSRF = cookieValue(r, cfg.CSRFName)
	}
	return out
}

func cookieValue(r *http.Request, name string) string {
	if name == "" {
		return ""
	}
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
