package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MrEthical07/authtokens"
)

func newTestEngine(t *testing.T) *authtokens.Engine {
	t.Helper()
	cfg := authtokens.DefaultConfig()
	cfg.Tokens.SignSecret = "middleware-sign-secret-0123"
	cfg.Tokens.EncryptSecret = "middleware-encrypt-secret-0123"
	engine, err := authtokens.New().WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestSetTokenCookies(t *testing.T) {
	cfg := DefaultCookieConfig()
	ages := MaxAges{Access: 5 * time.Minute, Refresh: time.Hour, CSRF: 2 * time.Hour}
	set := &authtokens.TokenSet{
		AccessToken:    "a",
		RefreshToken:   "r",
		CSRFToken:      "c",
		RefreshRotated: true,
	}

	rec := httptest.NewRecorder()
	SetTokenCookies(rec, cfg, set, ages)
	cookies := rec.Result().Cookies()

	access := findCookie(cookies, "ACCESS_TOKEN_NAME")
	refresh := findCookie(cookies, "REFRESH_TOKEN_NAME")
	csrf := findCookie(cookies, "CSRF_TOKEN_NAME")
	if access == nil || refresh == nil || csrf == nil {
		t.Fatalf("missing cookies: %v", cookies)
	}
	if !access.HttpOnly || !refresh.HttpOnly || csrf.HttpOnly {
		t.Fatal("access and refresh must be HttpOnly, csrf must not")
	}
	if access.MaxAge != 300 || refresh.MaxAge != 3600 || csrf.MaxAge != 7200 {
		t.Fatalf("unexpected max ages %d %d %d", access.MaxAge, refresh.MaxAge, csrf.MaxAge)
	}
	if access.SameSite != http.SameSiteStrictMode || access.Path != "/" || access.Domain != "localhost" {
		t.Fatalf("unexpected cookie scope %+v", access)
	}

	rec = httptest.NewRecorder()
	set.RefreshRotated = false
	SetTokenCookies(rec, cfg, set, ages)
	if findCookie(rec.Result().Cookies(), "REFRESH_TOKEN_NAME") != nil {
		t.Fatal("unrotated refresh cookie must not be rewritten")
	}
}

func TestClearTokenCookies(t *testing.T) {
	rec := httptest.NewRecorder()
	ClearTokenCookies(rec, DefaultCookieConfig())

	cookies := rec.Result().Cookies()
	if len(cookies) != 3 {
		t.Fatalf("expected 3 cookies, got %d", len(cookies))
	}
	for _, c := range cookies {
		if c.MaxAge >= 0 || c.Value != "" {
			t.Fatalf("cookie %s not cleared: %+v", c.Name, c)
		}
	}
}

func TestCookieConfigFrom(t *testing.T) {
	cfg := CookieConfigFrom(authtokens.CookiesConfig{SameSite: "None", Secure: true})
	if cfg.SameSite != http.SameSiteNoneMode || !cfg.Secure {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if CookieConfigFrom(authtokens.CookiesConfig{SameSite: "lax"}).SameSite != http.SameSiteLaxMode {
		t.Fatal("expected lax")
	}
}

func TestTokensFromRequest(t *testing.T) {
	cfg := DefaultCookieConfig()
	req := httptest.NewRequest(http.MethodPost, "/refresh", nil)
	req.AddCookie(&http.Cookie{Name: cfg.AccessName, Value: "a"})
	req.AddCookie(&http.Cookie{Name: cfg.RefreshName, Value: "r"})
	req.AddCookie(&http.Cookie{Name: cfg.CSRFName, Value: "cookie-csrf"})

	got := TokensFromRequest(req, cfg)
	if got.Access != "a" || got.Refresh != "r" || got.CSRF != "cookie-csrf" {
		t.Fatalf("unexpected tokens %+v", got)
	}

	req.Header.Set(CSRFHeader, "header-csrf")
	if got := TokensFromRequest(req, cfg); got.CSRF != "header-csrf" {
		t.Fatalf("expected header csrf to win, got %q", got.CSRF)
	}

	empty := TokensFromRequest(httptest.NewRequest(http.MethodGet, "/", nil), cfg)
	if empty != (RequestTokens{}) {
		t.Fatalf("expected empty tokens, got %+v", empty)
	}
}

func TestGuardUniformUnauthorized(t *testing.T) {
	engine := newTestEngine(t)
	cfg := DefaultCookieConfig()

	called := false
	h := Guard(engine, cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	requests := map[string]*http.Request{
		"missing": httptest.NewRequest(http.MethodGet, "/", nil),
		"garbage bearer": func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Header.Set("Authorization", "Bearer garbage")
			return r
		}(),
		"empty bearer": func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Header.Set("Authorization", "Bearer ")
			return r
		}(),
		"garbage cookie": func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.AddCookie(&http.Cookie{Name: cfg.AccessName, Value: "garbage"})
			return r
		}(),
	}

	var firstBody string
	for name, req := range requests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, rec.Code)
		}
		if firstBody == "" {
			firstBody = rec.Body.String()
		} else if rec.Body.String() != firstBody {
			t.Fatalf("%s: response body differs", name)
		}
	}
	if called {
		t.Fatal("handler must not run for rejected requests")
	}

	rec := httptest.NewRecorder()
	Guard(nil, cfg)(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("nil verifier: expected 401, got %d", rec.Code)
	}
}

func TestGuardAcceptsValidToken(t *testing.T) {
	engine := newTestEngine(t)
	cfg := DefaultCookieConfig()
	set, err := engine.Issue(context.Background(), "alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	var principal string
	h := Guard(engine, cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if ok {
			principal = claims.PrincipalID
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: cfg.AccessName, Value: set.AccessToken})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || principal != "alice" {
		t.Fatalf("expected alice to pass, got code %d principal %q", rec.Code, principal)
	}
}

func TestGinGuard(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := newTestEngine(t)
	cfg := DefaultCookieConfig()
	set, err := engine.Issue(context.Background(), "bob")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	router := gin.New()
	router.GET("/me", GinGuard(engine, cfg), func(c *gin.Context) {
		claims := c.MustGet(GinClaimsKey).(*authtokens.AccessClaims)
		c.String(http.StatusOK, claims.PrincipalID)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+set.AccessToken)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "bob" {
		t.Fatalf("expected bob, got %d %q", rec.Code, rec.Body.String())
	}
}
