package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Kai-Ger/CardGallery/internal/model"

	"github.com/gin-gonic/gin"
)

type mockCardStore struct {
	page      *CardPage
	card      *model.Card
	listErr   error
	getErr    error
	deleteErr error

	lastPage     int
	lastPageSize int
	lastSearch   string
}

func (m *mockCardStore) ListCards(ctx context.Context, page, pageSize int, search string) (*CardPage, error) {
	m.lastPage = page
	m.lastPageSize = pageSize
	m.lastSearch = search
	if m.listErr != nil {
		return nil, m.listErr
	}
	if m.page != nil {
		return m.page, nil
	}
	return &CardPage{Current: page, Pages: 0}, nil
}

func (m *mockCardStore) GetCard(ctx context.Context, id uint) (*model.Card, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.card, nil
}

func (m *mockCardStore) DeleteCardCascade(ctx context.Context, id uint) error {
	return m.deleteErr
}

func TestListCards(t *testing.T) {
	s := newTestServer(t)
	cards := &mockCardStore{
		page: &CardPage{
			Cards: []model.Card{
				{ID: 1, Name: "Ace of Spades", Amount: 2},
				{ID: 2, Name: "Queen of Hearts", Amount: 0},
			},
			Current: 2,
			Pages:   3,
		},
	}
	s.cardStore = cards

	r := gin.New()
	r.GET("/cards", s.handleListCards)

	req := httptest.NewRequest(http.MethodGet, "/cards?page=2&search=a", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if cards.lastPage != 2 {
		t.Errorf("page = %d, want 2", cards.lastPage)
	}
	if cards.lastPageSize != 4 {
		t.Errorf("page size = %d, want 4", cards.lastPageSize)
	}
	if cards.lastSearch != "a" {
		t.Errorf("search = %q, want %q", cards.lastSearch, "a")
	}

	body := decodeBody(t, w)
	if body["pages"].(float64) != 3 {
		t.Errorf("pages = %v, want 3", body["pages"])
	}
	list, ok := body["cards"].([]interface{})
	if !ok || len(list) != 2 {
		t.Fatalf("cards = %v, want 2 entries", body["cards"])
	}
}

func TestListCardsDefaultsBadPage(t *testing.T) {
	s := newTestServer(t)
	cards := &mockCardStore{}
	s.cardStore = cards

	r := gin.New()
	r.GET("/cards", s.handleListCards)

	req := httptest.NewRequest(http.MethodGet, "/cards?page=banana", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if cards.lastPage != 1 {
		t.Errorf("page = %d, want 1", cards.lastPage)
	}
}

func TestListCardsNoMatch(t *testing.T) {
	s := newTestServer(t)
	s.cardStore = &mockCardStore{
		page: &CardPage{Current: 1, Pages: 0, NoMatch: true},
	}

	r := gin.New()
	r.GET("/cards", s.handleListCards)

	req := httptest.NewRequest(http.MethodGet, "/cards?search=zz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	body := decodeBody(t, w)
	if body["no_match"] != true {
		t.Errorf("no_match = %v, want true", body["no_match"])
	}
}

func TestGetCardNotFound(t *testing.T) {
	s := newTestServer(t)
	s.cardStore = &mockCardStore{getErr: ErrCardNotFound}

	r := gin.New()
	r.GET("/cards/:id", s.handleGetCard)

	req := httptest.NewRequest(http.MethodGet, "/cards/99", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestGetCardWithComments(t *testing.T) {
	s := newTestServer(t)
	s.cardStore = &mockCardStore{
		card: &model.Card{
			ID:   7,
			Name: "Blue Dragon",
			Comments: []model.Comment{
				{ID: 1, CardID: 7, Text: "nice one", AuthorUsername: "alice"},
			},
		},
	}

	r := gin.New()
	r.GET("/cards/:id", s.handleGetCard)

	req := httptest.NewRequest(http.MethodGet, "/cards/7", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := decodeBody(t, w)
	comments, ok := body["comments"].([]interface{})
	if !ok || len(comments) != 1 {
		t.Fatalf("comments = %v, want 1 entry", body["comments"])
	}
}

func TestGetCardBadID(t *testing.T) {
	s := newTestServer(t)

	r := gin.New()
	r.GET("/cards/:id", s.handleGetCard)

	req := httptest.NewRequest(http.MethodGet, "/cards/abc", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestEscapeLike(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"dragon", "dragon"},
		{"100%", `100\%`},
		{"a_b", `a\_b`},
		{`back\slash`, `back\\slash`},
		{"%_", `\%\_`},
	}
	for _, tc := range cases {
		if got := escapeLike(tc.in); got != tc.want {
			t.Errorf("escapeLike(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
