package backend

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/simp-lee/usercrud/internal/backend/backendtest"
	"github.com/simp-lee/usercrud/internal/domain"
	"github.com/simp-lee/usercrud/internal/pkg"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := New(baseURL, backendtest.UsersPath, 0, testLogger())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return c
}

func TestNew_BuildsUsersURL(t *testing.T) {
	tests := []struct {
		name      string
		baseURL   string
		usersPath string
		want      string
	}{
		{"default layout", "http://localhost:3000", "/myapp/api/users", "http://localhost:3000/myapp/api/users"},
		{"trailing slash on base", "http://localhost:3000/", "/myapp/api/users", "http://localhost:3000/myapp/api/users"},
		{"path without leading slash", "http://api.internal", "users/", "http://api.internal/users"},
		{"https", "https://example.com", "/api/users", "https://example.com/api/users"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.baseURL, tt.usersPath, 0, nil)
			if err != nil {
				t.Fatalf("New() error: %v", err)
			}
			if c.URL() != tt.want {
				t.Errorf("URL() = %q, want %q", c.URL(), tt.want)
			}
		})
	}
}

func TestNew_InvalidURL(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
	}{
		{"missing scheme", "localhost:3000"},
		{"unsupported scheme", "ftp://example.com"},
		{"missing host", "http://"},
		{"unparseable", "http://[::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.baseURL, "/users", 0, nil); err == nil {
				t.Fatalf("New(%q) expected error", tt.baseURL)
			}
		})
	}
}

func TestClient_List(t *testing.T) {
	srv := backendtest.NewServer(t)
	srv.Seed(
		domain.UserRecord{ID: 1, Name: "Ann", Email: "ann@x.com"},
		domain.UserRecord{ID: 2, Name: "Bob", Email: "bob@x.com"},
	)
	c := newTestClient(t, srv.URL)

	users, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("len(users) = %d, want 2", len(users))
	}
	if users[0].Name != "Ann" || users[1].Email != "bob@x.com" {
		t.Errorf("unexpected users: %+v", users)
	}
}

func TestClient_List_EmptyIsNonNil(t *testing.T) {
	srv := backendtest.NewServer(t)
	c := newTestClient(t, srv.URL)

	users, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if users == nil {
		t.Fatal("List() returned nil slice for empty collection")
	}
}

func TestClient_List_NonSuccessStatus(t *testing.T) {
	srv := backendtest.NewServer(t)
	srv.FailWith(http.MethodGet, http.StatusInternalServerError)
	c := newTestClient(t, srv.URL)

	users, err := c.List(context.Background())
	if err == nil {
		t.Fatal("List() expected error for status 500")
	}
	if users != nil {
		t.Errorf("List() users = %+v, want nil", users)
	}
	if !domain.IsFetchError(err) {
		t.Errorf("expected fetch error, got %v", err)
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected *StatusError in chain, got %T", err)
	}
	if statusErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", statusErr.StatusCode)
	}
}

func TestClient_List_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	c := newTestClient(t, baseURL)
	_, err := c.List(context.Background())
	if !domain.IsFetchError(err) {
		t.Fatalf("expected fetch error, got %v", err)
	}
}

func TestClient_List_InvalidBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"not":"an array"}`))
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv.URL)
	_, err := c.List(context.Background())
	if !domain.IsFetchError(err) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if !strings.Contains(err.Error(), "decode users") {
		t.Errorf("error = %q, want decode failure", err.Error())
	}
}

func TestClient_Create_SendsJSONBody(t *testing.T) {
	contentTypes := make(chan string, 1)
	srv := backendtest.NewServer(t)
	srv.Before(func(r *http.Request) {
		if r.Method == http.MethodPost {
			contentTypes <- r.Header.Get("Content-Type")
		}
	})
	c := newTestClient(t, srv.URL)

	status, err := c.Create(context.Background(), domain.FormState{Name: "Ann", Email: "ann@x.com"})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if status != http.StatusCreated {
		t.Errorf("status = %d, want 201", status)
	}
	if gotContentType := <-contentTypes; gotContentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotContentType)
	}

	reqs := srv.Requests()
	if len(reqs) != 1 {
		t.Fatalf("len(requests) = %d, want 1", len(reqs))
	}
	if reqs[0].Path != backendtest.UsersPath {
		t.Errorf("path = %q, want %q", reqs[0].Path, backendtest.UsersPath)
	}
	if reqs[0].Body != (domain.FormState{Name: "Ann", Email: "ann@x.com"}) {
		t.Errorf("body = %+v", reqs[0].Body)
	}
}

func TestClient_ForwardsRequestID(t *testing.T) {
	ids := make(chan string, 2)
	srv := backendtest.NewServer(t)
	srv.Before(func(r *http.Request) {
		ids <- r.Header.Get(requestIDHeader)
	})
	c := newTestClient(t, srv.URL)

	ctx := pkg.WithRequestID(context.Background(), "req-42")
	if _, err := c.List(ctx); err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if got := <-ids; got != "req-42" {
		t.Errorf("X-Request-ID = %q, want req-42", got)
	}

	if _, err := c.List(context.Background()); err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if got := <-ids; got != "" {
		t.Errorf("X-Request-ID without id = %q, want empty", got)
	}
}

func TestClient_UpdateAndDelete_TargetIDPath(t *testing.T) {
	srv := backendtest.NewServer(t)
	srv.Seed(domain.UserRecord{ID: 9, Name: "Old", Email: "old@x.com"})
	c := newTestClient(t, srv.URL)

	if _, err := c.Update(context.Background(), 9, domain.FormState{Name: "New", Email: "new@x.com"}); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if _, err := c.Delete(context.Background(), 9); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	reqs := srv.Requests()
	if len(reqs) != 2 {
		t.Fatalf("len(requests) = %d, want 2", len(reqs))
	}
	want := []struct{ method, path string }{
		{http.MethodPut, backendtest.UsersPath + "/9"},
		{http.MethodDelete, backendtest.UsersPath + "/9"},
	}
	for i, w := range want {
		if reqs[i].Method != w.method || reqs[i].Path != w.path {
			t.Errorf("request %d = %s %s, want %s %s", i, reqs[i].Method, reqs[i].Path, w.method, w.path)
		}
	}
	if len(srv.Users()) != 0 {
		t.Errorf("expected user 9 to be deleted, got %+v", srv.Users())
	}
}

func TestClient_Mutation_NonSuccessIsNotAnError(t *testing.T) {
	srv := backendtest.NewServer(t)
	srv.FailWith(http.MethodDelete, http.StatusInternalServerError)
	c := newTestClient(t, srv.URL)

	status, err := c.Delete(context.Background(), 1)
	if err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if status != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", status)
	}
}

func TestClient_Mutation_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	c := newTestClient(t, baseURL)
	_, err := c.Create(context.Background(), domain.FormState{Name: "Ann"})
	if !domain.IsMutationError(err) {
		t.Fatalf("expected mutation error, got %v", err)
	}
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	c, err := New(srv.URL, "/users", 50*time.Millisecond, testLogger())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, err := c.List(context.Background()); !domain.IsFetchError(err) {
		t.Fatalf("expected fetch error on timeout, got %v", err)
	}
}

func TestClient_RecordsMetrics(t *testing.T) {
	srv := backendtest.NewServer(t)
	c := newTestClient(t, srv.URL)

	before := testutil.ToFloat64(requestsTotal.WithLabelValues(OpList, "200"))
	if _, err := c.List(context.Background()); err != nil {
		t.Fatalf("List() error: %v", err)
	}
	after := testutil.ToFloat64(requestsTotal.WithLabelValues(OpList, "200"))
	if after-before != 1 {
		t.Errorf("list/200 counter delta = %v, want 1", after-before)
	}
}
