package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/glesp/smart-auto-trader/internal/domain"
)

type memoryRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
	fail  bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{users: make(map[string]*domain.User)}
}

func (m *memoryRepo) GetUser(_ context.Context, userID string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, context.DeadlineExceeded
	}
	return m.users[userID], nil
}

func (m *memoryRepo) UpsertUser(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.UserID] = user
	return nil
}

func (m *memoryRepo) UpdateLastSeen(_ context.Context, userID string, lastSeen time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.LastSeenAt = lastSeen
	}
	return nil
}

func (m *memoryRepo) GetRecentSession(context.Context, string, time.Duration) (*domain.ChatSession, error) {
	return nil, nil
}

func (m *memoryRepo) CreateSession(context.Context, string, string) (*domain.ChatSession, error) {
	return nil, nil
}

func (m *memoryRepo) UpdateSession(context.Context, *domain.ChatSession, time.Time) error {
	return nil
}

func (m *memoryRepo) ExpireSession(context.Context, string) error        { return nil }
func (m *memoryRepo) AppendTurn(context.Context, *domain.Turn) error     { return nil }
func (m *memoryRepo) SessionTurns(context.Context, string, int) ([]*domain.Turn, error) {
	return nil, nil
}
func (m *memoryRepo) CleanupStaleSessions(context.Context, time.Duration) (int64, error) {
	return 0, nil
}
func (m *memoryRepo) Ping(context.Context) error { return nil }
func (m *memoryRepo) Close() error               { return nil }

func TestMiddlewareAssignsAnonymousIdentity(t *testing.T) {
	repo := newMemoryRepo()
	var gotUserID string
	handler := Middleware(repo, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = UserIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if !isValidAnonID(gotUserID) {
		t.Fatalf("expected a valid anon id, got %q", gotUserID)
	}

	// Cookie set for the next visit.
	cookies := rec.Result().Cookies()
	var found *http.Cookie
	for _, c := range cookies {
		if c.Name == AnonCookieName {
			found = c
		}
	}
	if found == nil {
		t.Fatal("anon cookie not set")
	}
	if found.Value != gotUserID {
		t.Errorf("cookie %q does not match context id %q", found.Value, gotUserID)
	}
	if !found.HttpOnly {
		t.Error("anon cookie must be HttpOnly")
	}

	// User record created.
	if repo.users[gotUserID] == nil {
		t.Error("user record not created")
	}
}

func TestMiddlewareReusesCookieIdentity(t *testing.T) {
	repo := newMemoryRepo()
	var gotUserID string
	handler := Middleware(repo, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = UserIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{
		Name:  AnonCookieName,
		Value: "anon_0123456789abcdef0123456789abcdef",
	})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if gotUserID != "anon_0123456789abcdef0123456789abcdef" {
		t.Errorf("cookie identity not reused, got %q", gotUserID)
	}
}

func TestMiddlewareRejectsForgedCookie(t *testing.T) {
	repo := newMemoryRepo()
	var gotUserID string
	handler := Middleware(repo, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = UserIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: "admin'; DROP TABLE users--"})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if gotUserID == "admin'; DROP TABLE users--" {
		t.Fatal("forged cookie value accepted as identity")
	}
	if !isValidAnonID(gotUserID) {
		t.Errorf("expected a fresh valid id, got %q", gotUserID)
	}
}

func TestMiddlewareStoreFailureDegrades(t *testing.T) {
	repo := newMemoryRepo()
	repo.fail = true

	var called bool
	var gotUserID string
	handler := Middleware(repo, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		gotUserID = UserIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if !called {
		t.Fatal("request must proceed when the store is down")
	}
	if gotUserID != "" {
		t.Errorf("identity should be empty on store failure, got %q", gotUserID)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("middleware must not write an error itself, got %d", rec.Code)
	}
}

func TestIsValidAnonID(t *testing.T) {
	cases := []struct {
		id   string
		want bool
	}{
		{"anon_0123456789abcdef0123456789abcdef", true},
		{"anon_short", false},
		{"anon_0123456789ABCDEF0123456789ABCDEF", false},
		{"user_0123456789abcdef0123456789abcdef", false},
		{"", false},
	}
	for _, c := range cases {
		if got := isValidAnonID(c.id); got != c.want {
			t.Errorf("isValidAnonID(%q) = %v, want %v", c.id, got, c.want)
		}
	}
}

func TestDeriveUsername(t *testing.T) {
	if got := deriveUsername("anon_0123456789abcdef0123456789abcdef"); got != "anon-89abcdef" {
		t.Errorf("deriveUsername = %q", got)
	}
	if got := deriveUsername("short"); got != "anon-user" {
		t.Errorf("short id should get the generic username, got %q", got)
	}
}
