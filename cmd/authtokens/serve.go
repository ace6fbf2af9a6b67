package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/authtokens"
	promexport "github.com/MrEthical07/authtokens/metrics/export/prometheus"
	"github.com/MrEthical07/authtokens/middleware"
)

const embeddedRedis = "embedded"

type serveOptions struct {
	addr  string
	redis string
}

func newServeCommand(root *rootOptions) *cobra.Command {
	opts := serveOptions{addr: ":8080"}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the demo HTTP server",
		Long: `Run a demo server with /login, /refresh, /logout, /protected and /metrics.

/login trusts the principal_id in its JSON body; credential checks belong to
the application embedding the engine.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, root, opts)
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", opts.addr, "Listen address.")
	cmd.Flags().StringVar(&opts.redis, "redis", "", `Redis address overriding the config, or "embedded" for an in-process miniredis.`)

	return cmd
}

func runServe(ctx context.Context, root *rootOptions, opts serveOptions) error {
	logger := root.logger()

	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}

	builder := authtokens.New().WithConfig(cfg).WithLogger(logger)
	switch opts.redis {
	case "":
	case embeddedRedis:
		mr, err := miniredis.Run()
		if err != nil {
			return err
		}
		defer mr.Close()
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()
		builder = builder.WithRedis(client)
		logger.Info("using embedded redis", "addr", mr.Addr())
	default:
		client := redis.NewClient(&redis.Options{
			Addr:     opts.redis,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		defer client.Close()
		builder = builder.WithRedis(client)
	}

	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	latency, err := engine.Ping(ctx)
	if err != nil {
		return fmt.Errorf("storage check: %w", err)
	}
	logger.V(1).Info("storage reachable", "latency", latency)

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              opts.addr,
		Handler:           newRouter(engine, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", opts.addr, "backend", string(engine.Config().Storage.Backend))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

type loginRequest struct {
	PrincipalID string `json:"principal_id" binding:"required"`
}

type tokenResponse struct {
	AccessToken     string    `json:"access_token"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
	CSRFToken       string    `json:"csrf_token"`
}

func newTokenResponse(set *authtokens.TokenSet) tokenResponse {
	return tokenResponse{
		AccessToken:     set.AccessToken,
		AccessExpiresAt: set.AccessExpiresAt,
		CSRFToken:       set.CSRFToken,
	}
}

func newRouter(engine *authtokens.Engine, logger logr.Logger) *gin.Engine {
	cfg := engine.Config()
	cookies := middleware.CookieConfigFrom(cfg.Cookies)
	ages := middleware.MaxAgesFrom(cfg.Tokens)
	unauthorized := gin.H{"error": "unauthorized"}

	r := gin.New()
	r.Use(gin.Recovery(), requestContext())

	r.GET("/health", func(c *gin.Context) {
		latency, err := engine.Ping(c.Request.Context())
		if err != nil {
			logger.Error(err, "health check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "storage_latency_ms": latency.Milliseconds()})
	})

	r.POST("/login", func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "principal_id is required"})
			return
		}
		set, err := engine.Issue(c.Request.Context(), req.PrincipalID)
		if err != nil {
			if errors.Is(err, authtokens.ErrInvalidPrincipal) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid principal_id"})
				return
			}
			logger.Error(err, "issue failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "unavailable"})
			return
		}
		middleware.SetTokenCookies(c.Writer, cookies, set, ages)
		c.JSON(http.StatusOK, newTokenResponse(set))
	})

	r.POST("/refresh", func(c *gin.Context) {
		tokens := middleware.TokensFromRequest(c.Request, cookies)
		set, err := engine.Refresh(c.Request.Context(), tokens.Refresh, tokens.CSRF)
		if err != nil {
			if errors.Is(err, authtokens.ErrStorageUnavailable) {
				logger.Error(err, "refresh failed")
			}
			middleware.ClearTokenCookies(c.Writer, cookies)
			c.AbortWithStatusJSON(http.StatusUnauthorized, unauthorized)
			return
		}
		middleware.SetTokenCookies(c.Writer, cookies, set, ages)
		c.JSON(http.StatusOK, newTokenResponse(set))
	})

	r.POST("/logout", func(c *gin.Context) {
		tokens := middleware.TokensFromRequest(c.Request, cookies)
		var err error
		if tokens.Refresh != "" {
			err = engine.RevokeByRefreshToken(c.Request.Context(), tokens.Refresh)
		} else {
			err = engine.RevokeByAccessToken(c.Request.Context(), tokens.Access)
		}
		middleware.ClearTokenCookies(c.Writer, cookies)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, unauthorized)
			return
		}
		c.Status(http.StatusNoContent)
	})

	r.GET("/protected", middleware.GinGuard(engine, cookies, middleware.WithLogger(logger)), func(c *gin.Context) {
		claims := c.MustGet(middleware.GinClaimsKey).(*authtokens.AccessClaims)
		c.JSON(http.StatusOK, gin.H{"principal_id": claims.PrincipalID})
	})

	if cfg.Metrics.Enabled {
		r.GET("/metrics", gin.WrapH(promexport.NewExporter(engine).Handler()))
	}

	return r
}

// requestContext copies client details into the request context so audit
// events carry them.
func requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)

		ctx := authtokens.WithClientIP(c.Request.Context(), c.ClientIP())
		ctx = authtokens.WithUserAgent(ctx, c.Request.UserAgent())
		ctx = authtokens.WithRequestID(ctx, requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
