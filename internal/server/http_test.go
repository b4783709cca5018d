package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"commerce-auth/backend/internal/authcache"
	"commerce-auth/backend/internal/security"
	userdomain "commerce-auth/backend/internal/user/domain"
)

type fakePinger struct{ err error }

func (p fakePinger) PingContext(ctx context.Context) error { return p.err }

type noUsers struct{}

func (noUsers) GetByID(ctx context.Context, id int64) (*userdomain.User, error) {
	return nil, nil
}

func testDeps(db Pinger) Deps {
	return Deps{
		Issuer:     security.NewTokenProvider([]byte("0123456789abcdef0123456789abcdef"), "commerce-auth", time.Minute),
		Cache:      authcache.NewMemoryStore(),
		UserLookup: noUsers{},
		DB:         db,
	}
}

func TestHealthz(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name string
		db   Pinger
		want int
	}{
		{"healthy", fakePinger{}, http.StatusOK},
		{"db down", fakePinger{err: errors.New("connection refused")}, http.StatusServiceUnavailable},
		{"no db configured", nil, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewRouter(testDeps(tc.db))
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d", w.Code, tc.want)
			}
		})
	}
}
