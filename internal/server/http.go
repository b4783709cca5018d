// Package server assembles the HTTP router and owns its lifecycle.
package server

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	authhandler "commerce-auth/backend/internal/auth/handler"
	authservice "commerce-auth/backend/internal/auth/service"
	"commerce-auth/backend/internal/authcache"
	"commerce-auth/backend/internal/security"
	"commerce-auth/backend/internal/server/middleware"
	userservice "commerce-auth/backend/internal/user/service"
)

// Pinger reports whether a backing store is reachable (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps holds the services and stores the router needs.
type Deps struct {
	Auth   *authservice.Service
	Users  *userservice.Service
	Issuer *security.TokenProvider
	Cache  authcache.Store
	// UserLookup resolves token subjects for the authentication gate.
	UserLookup middleware.UserLookup
	// Audit backs the per-user audit history route. May be nil.
	Audit authhandler.AuditLister
	// DB is pinged by the health endpoint. May be nil in tests.
	DB Pinger
}

var _ Pinger = (*sql.DB)(nil)

// NewRouter builds the gin engine: the authentication gate on every route,
// the auth API under /api/auth, and a health endpoint.
func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Gate(deps.Issuer, deps.Cache, deps.UserLookup))

	r.GET("/healthz", healthHandler(deps.DB))

	h := authhandler.New(deps.Auth, deps.Users, deps.Audit, middleware.RequireAuth())
	h.Mount(r.Group("/api/auth"))

	return r
}

func healthHandler(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "db": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// New wraps the router in an http.Server with sane timeouts.
func New(addr string, deps Deps) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
