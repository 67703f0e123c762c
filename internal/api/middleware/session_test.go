package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Kai-Ger/CardGallery/internal/model"
	"github.com/Kai-Ger/CardGallery/internal/pkg/session"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type fakeUserStore struct {
	users map[uint]*model.User
}

func (f *fakeUserStore) GetUser(ctx context.Context, id uint) (*model.User, error) {
	if user, ok := f.users[id]; ok {
		return user, nil
	}
	return nil, context.Canceled
}

func newAuthRouter(t *testing.T, users *fakeUserStore) (*gin.Engine, *session.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	sessions := session.NewStore(rdb, "test-secret", time.Hour)

	r := gin.New()
	r.Use(SessionAuth(sessions, users))
	r.GET("/whoami", func(c *gin.Context) {
		p, _ := GetPrincipal(c)
		c.JSON(http.StatusOK, gin.H{"username": p.Username})
	})
	r.GET("/admin", RequireAdmin(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/active", RequireActive(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r, sessions
}

func TestSessionAuthNoCookie(t *testing.T) {
	r, _ := newAuthRouter(t, &fakeUserStore{})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestSessionAuthValidCookie(t *testing.T) {
	users := &fakeUserStore{users: map[uint]*model.User{
		42: {ID: 42, Username: "alice", Active: true},
	}}
	r, sessions := newAuthRouter(t, users)

	token, err := sessions.Create(context.Background(), 42)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body: %s", w.Code, http.StatusOK, w.Body.String())
	}
}

func TestSessionAuthDeletedUser(t *testing.T) {
	r, sessions := newAuthRouter(t, &fakeUserStore{users: map[uint]*model.User{}})

	token, err := sessions.Create(context.Background(), 42)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestRequireAdmin(t *testing.T) {
	users := &fakeUserStore{users: map[uint]*model.User{
		1: {ID: 1, Username: "root", IsAdmin: true, Active: true},
		2: {ID: 2, Username: "bob", Active: true},
	}}
	r, sessions := newAuthRouter(t, users)

	adminToken, _ := sessions.Create(context.Background(), 1)
	userToken, _ := sessions.Create(context.Background(), 2)

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: adminToken})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("admin status = %d, want %d", w.Code, http.StatusOK)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: userToken})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("non-admin status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestRequireActive(t *testing.T) {
	users := &fakeUserStore{users: map[uint]*model.User{
		3: {ID: 3, Username: "carol", Active: false},
	}}
	r, sessions := newAuthRouter(t, users)

	token, _ := sessions.Create(context.Background(), 3)

	req := httptest.NewRequest(http.MethodGet, "/active", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}
