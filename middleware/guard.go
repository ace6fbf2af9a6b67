package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"

	"github.com/MrEthical07/authtokens"
)

// AccessVerifier is the part of *authtokens.Engine the guards need.
type AccessVerifier interface {
	VerifyAccess(ctx context.Context, accessToken string) (*authtokens.AccessClaims, error)
}

// GinClaimsKey is the gin context key holding *authtokens.AccessClaims.
const GinClaimsKey = "authtokens.claims"

type claimsContextKey struct{}

// ClaimsFromContext returns the claims stored by a guard.
func ClaimsFromContext(ctx context.Context) (*authtokens.AccessClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*authtokens.AccessClaims)
	return claims, ok
}

// GuardOption customizes [Guard] and [GinGuard].
type GuardOption func(*guardOptions)

type guardOptions struct {
	logger logr.Logger
}

// WithLogger logs rejected requests at verbosity 1.
func WithLogger(logger logr.Logger) GuardOption {
	return func(o *guardOptions) {
		o.logger = logger
	}
}

func buildOptions(opts []GuardOption) guardOptions {
	o := guardOptions{logger: logr.Discard()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// authenticate runs the shared guard logic for both transports.
func authenticate(ctx context.Context, v AccessVerifier, r *http.Request, cfg CookieConfig, o guardOptions) (*authtokens.AccessClaims, bool) {
	if v == nil {
		return nil, false
	}
	token := accessToken(r, cfg)
	if token == "" {
		o.logger.V(1).Info("request rejected", "reason", "missing access token", "path", r.URL.Path)
		return nil, false
	}
	claims, err := v.VerifyAccess(ctx, token)
	if err != nil {
		o.logger.V(1).Info("request rejected", "reason", err.Error(), "path", r.URL.Path)
		return nil, false
	}
	return claims, true
}

// Guard rejects requests without a valid access token and stores the
// verified claims in the request context.
func Guard(v AccessVerifier, cfg CookieConfig, opts ...GuardOption) func(http.Handler) http.Handler {
	o := buildOptions(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := authenticate(r.Context(), v, r, cfg, o)
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GinGuard is [Guard] for gin. Claims are available under [GinClaimsKey] and
// through [ClaimsFromContext] on c.Request.Context().
func GinGuard(v AccessVerifier, cfg CookieConfig, opts ...GuardOption) gin.HandlerFunc {
	o := buildOptions(opts)
	return func(c *gin.Context) {
		claims, ok := authenticate(c.Request.Context(), v, c.Request, cfg, o)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Set(GinClaimsKey, claims)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), claimsContextKey{}, claims))
		c.Next()
	}
}

// accessToken prefers the Authorization header over the cookie.
func accessToken(r *http.Request, cfg CookieConfig) string {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return token
	}
	return cookieValue(r, cfg.AccessName)
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
