package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Kai-Ger/CardGallery/internal/api/middleware"
	"github.com/Kai-Ger/CardGallery/internal/config"
	"github.com/Kai-Ger/CardGallery/internal/model"
	"github.com/Kai-Ger/CardGallery/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
)

type mockWishStore struct {
	addErr     error
	addCard    *model.Card
	removeErr  error
	fulfillErr error
	sent       *model.SentCard
	sentErr    error

	addCalls     int
	fulfillCalls int
}

func (m *mockWishStore) AddWish(ctx context.Context, userID, cardID uint) (*model.Card, error) {
	m.addCalls++
	if m.addErr != nil {
		return nil, m.addErr
	}
	return m.addCard, nil
}

func (m *mockWishStore) RemoveWish(ctx context.Context, userID, cardID uint) error {
	return m.removeErr
}

func (m *mockWishStore) FulfillWish(ctx context.Context, userID, cardID uint) (*model.SentCard, error) {
	m.fulfillCalls++
	if m.fulfillErr != nil {
		return nil, m.fulfillErr
	}
	return m.sent, nil
}

func (m *mockWishStore) RemoveSentRecord(ctx context.Context, userID, sentID uint) error {
	return m.sentErr
}

type mockUserStore struct {
	user *model.User
	err  error
}

func (m *mockUserStore) GetUser(ctx context.Context, id uint) (*model.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.user, nil
}

func (m *mockUserStore) GetUserProfile(ctx context.Context, id uint) (*model.User, error) {
	return m.GetUser(ctx, id)
}

func (m *mockUserStore) ListUsers(ctx context.Context) ([]model.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.user == nil {
		return nil, nil
	}
	return []model.User{*m.user}, nil
}

type mockNotifier struct {
	wishAdded     int
	wishFulfilled int
	lastCardName  string
	err           error
}

func (m *mockNotifier) SendActivation(toEmail, username, link string) error    { return m.err }
func (m *mockNotifier) SendPasswordReset(toEmail, username, link string) error { return m.err }
func (m *mockNotifier) SendPasswordChanged(toEmail, username string) error     { return m.err }

func (m *mockNotifier) SendWishAdded(username, cardName string) error {
	m.wishAdded++
	m.lastCardName = cardName
	return m.err
}

func (m *mockNotifier) SendWishFulfilled(toEmail, username, cardName string) error {
	m.wishFulfilled++
	m.lastCardName = cardName
	return m.err
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	metrics.InitMetrics()
	gin.SetMode(gin.TestMode)
	return &Server{
		cfg: &config.Config{
			App: config.AppConfig{PageSize: 4, SessionTTL: time.Hour},
		},
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		mailer:    &mockNotifier{},
		wishStore: &mockWishStore{},
		userStore: &mockUserStore{},
		cardStore: &mockCardStore{},
	}
}

// injectPrincipal 绕过会话中间件，直接放入已认证主体。
func injectPrincipal(p middleware.Principal) gin.HandlerFunc {
	return func(c *gin.Context) {
		middleware.SetPrincipal(c, p)
		c.Next()
	}
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return body
}

func TestAddWish(t *testing.T) {
	s := newTestServer(t)
	wishes := &mockWishStore{addCard: &model.Card{ID: 7, Name: "Blue Dragon"}}
	mailer := &mockNotifier{}
	s.wishStore = wishes
	s.mailer = mailer

	r := gin.New()
	r.POST("/cards/:id/wish",
		injectPrincipal(middleware.Principal{ID: 3, Username: "alice", Active: true}),
		middleware.RequireActive(),
		s.handleAddWish)

	req := httptest.NewRequest(http.MethodPost, "/cards/7/wish", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if wishes.addCalls != 1 {
		t.Errorf("AddWish calls = %d, want 1", wishes.addCalls)
	}
	if mailer.wishAdded != 1 {
		t.Errorf("admin notification calls = %d, want 1", mailer.wishAdded)
	}
	if mailer.lastCardName != "Blue Dragon" {
		t.Errorf("notified card = %q, want %q", mailer.lastCardName, "Blue Dragon")
	}
}

func TestAddWishInactiveAccount(t *testing.T) {
	s := newTestServer(t)
	wishes := &mockWishStore{addCard: &model.Card{ID: 7, Name: "Blue Dragon"}}
	s.wishStore = wishes

	r := gin.New()
	r.POST("/cards/:id/wish",
		injectPrincipal(middleware.Principal{ID: 3, Username: "alice", Active: false}),
		middleware.RequireActive(),
		s.handleAddWish)

	req := httptest.NewRequest(http.MethodPost, "/cards/7/wish", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if wishes.addCalls != 0 {
		t.Errorf("AddWish calls = %d, want 0", wishes.addCalls)
	}
}

func TestAddWishDuplicate(t *testing.T) {
	s := newTestServer(t)
	s.wishStore = &mockWishStore{addErr: ErrDuplicateWish}

	r := gin.New()
	r.POST("/cards/:id/wish",
		injectPrincipal(middleware.Principal{ID: 3, Username: "alice", Active: true}),
		s.handleAddWish)

	req := httptest.NewRequest(http.MethodPost, "/cards/7/wish", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestAddWishCardNotFound(t *testing.T) {
	s := newTestServer(t)
	s.wishStore = &mockWishStore{addErr: ErrCardNotFound}

	r := gin.New()
	r.POST("/cards/:id/wish",
		injectPrincipal(middleware.Principal{ID: 3, Username: "alice", Active: true}),
		s.handleAddWish)

	req := httptest.NewRequest(http.MethodPost, "/cards/99/wish", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestRemoveWishForbiddenForOtherUser(t *testing.T) {
	s := newTestServer(t)
	s.wishStore = &mockWishStore{}

	r := gin.New()
	r.DELETE("/users/:id/wishes/:cardId",
		injectPrincipal(middleware.Principal{ID: 3, Username: "alice", Active: true}),
		s.handleRemoveWish)

	req := httptest.NewRequest(http.MethodDelete, "/users/5/wishes/7", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestRemoveWishAsAdmin(t *testing.T) {
	s := newTestServer(t)
	s.wishStore = &mockWishStore{}

	r := gin.New()
	r.DELETE("/users/:id/wishes/:cardId",
		injectPrincipal(middleware.Principal{ID: 1, Username: "admin", IsAdmin: true, Active: true}),
		s.handleRemoveWish)

	req := httptest.NewRequest(http.MethodDelete, "/users/5/wishes/7", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body: %s", w.Code, http.StatusOK, w.Body.String())
	}
}

func TestRemoveWishNotFound(t *testing.T) {
	s := newTestServer(t)
	s.wishStore = &mockWishStore{removeErr: ErrWishNotFound}

	r := gin.New()
	r.DELETE("/users/:id/wishes/:cardId",
		injectPrincipal(middleware.Principal{ID: 3, Username: "alice", Active: true}),
		s.handleRemoveWish)

	req := httptest.NewRequest(http.MethodDelete, "/users/3/wishes/7", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestFulfillWish(t *testing.T) {
	s := newTestServer(t)
	wishes := &mockWishStore{
		sent: &model.SentCard{ID: 11, UserID: 3, CardID: 7, SentCardName: "Blue Dragon", SentDate: time.Now()},
	}
	mailer := &mockNotifier{}
	s.wishStore = wishes
	s.mailer = mailer
	s.userStore = &mockUserStore{user: &model.User{ID: 3, Username: "alice", Email: "alice@example.com"}}

	r := gin.New()
	r.POST("/users/:id/sent/:cardId",
		injectPrincipal(middleware.Principal{ID: 1, Username: "admin", IsAdmin: true, Active: true}),
		middleware.RequireAdmin(),
		s.handleFulfillWish)

	req := httptest.NewRequest(http.MethodPost, "/users/3/sent/7", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if wishes.fulfillCalls != 1 {
		t.Errorf("FulfillWish calls = %d, want 1", wishes.fulfillCalls)
	}
	if mailer.wishFulfilled != 1 {
		t.Errorf("fulfillment notification calls = %d, want 1", mailer.wishFulfilled)
	}

	body := decodeBody(t, w)
	sent, ok := body["sent"].(map[string]interface{})
	if !ok {
		t.Fatalf("response has no sent record: %s", w.Body.String())
	}
	if sent["card_name"] != "Blue Dragon" {
		t.Errorf("sent card_name = %v, want %q", sent["card_name"], "Blue Dragon")
	}
}

func TestFulfillWishOutOfStock(t *testing.T) {
	s := newTestServer(t)
	mailer := &mockNotifier{}
	s.wishStore = &mockWishStore{fulfillErr: ErrOutOfStock}
	s.mailer = mailer

	r := gin.New()
	r.POST("/users/:id/sent/:cardId",
		injectPrincipal(middleware.Principal{ID: 1, Username: "admin", IsAdmin: true, Active: true}),
		middleware.RequireAdmin(),
		s.handleFulfillWish)

	req := httptest.NewRequest(http.MethodPost, "/users/3/sent/7", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusConflict)
	}
	if mailer.wishFulfilled != 0 {
		t.Errorf("notification calls = %d, want 0", mailer.wishFulfilled)
	}
}

func TestFulfillWishRequiresAdmin(t *testing.T) {
	s := newTestServer(t)
	wishes := &mockWishStore{}
	s.wishStore = wishes

	r := gin.New()
	r.POST("/users/:id/sent/:cardId",
		injectPrincipal(middleware.Principal{ID: 3, Username: "alice", Active: true}),
		middleware.RequireAdmin(),
		s.handleFulfillWish)

	req := httptest.NewRequest(http.MethodPost, "/users/3/sent/7", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if wishes.fulfillCalls != 0 {
		t.Errorf("FulfillWish calls = %d, want 0", wishes.fulfillCalls)
	}
}

func TestRemoveSentRecordNotFound(t *testing.T) {
	s := newTestServer(t)
	s.wishStore = &mockWishStore{sentErr: ErrSentRecordNotFound}

	r := gin.New()
	r.DELETE("/users/:id/sent/:sentId",
		injectPrincipal(middleware.Principal{ID: 1, Username: "admin", IsAdmin: true, Active: true}),
		middleware.RequireAdmin(),
		s.handleRemoveSentRecord)

	req := httptest.NewRequest(http.MethodDelete, "/users/3/sent/42", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
