package user

import (
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/usercrud/internal/backend"
	"github.com/simp-lee/usercrud/internal/backend/backendtest"
	"github.com/simp-lee/usercrud/internal/controller"
	"github.com/simp-lee/usercrud/internal/domain"
	"github.com/simp-lee/usercrud/internal/session"
)

// --- test environment shared by page and API handler tests ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubTemplates renders the panel as a single line that tests can match
// against, so template markup is not under test here.
const stubTemplates = `{{define "user/panel.html"}}` +
	`mode={{if .Editing}}update:{{.EditID}}{{else}}create{{end}} busy={{.Busy}}` +
	` name={{.Form.Name}} email={{.Form.Email}}` +
	`{{range .Users}} [{{.ID}} {{.Name}} {{.Email}}]{{end}}{{end}}` +
	`{{define "user/list.html"}}list {{template "user/panel.html" .}}{{end}}` +
	`{{define "errors/400.html"}}400{{end}}` +
	`{{define "errors/500.html"}}500{{end}}`

type testEnv struct {
	srv    *backendtest.Server
	router *gin.Engine

	mu     sync.Mutex
	cookie *http.Cookie
}

// newTestEnv wires the user module to a fake users API through a real
// backend client and session store.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	srv := backendtest.NewServer(t)
	env := newTestEnvWithURL(t, srv.URL)
	env.srv = srv
	return env
}

func newTestEnvWithURL(t *testing.T, baseURL string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	client, err := backend.New(baseURL, backendtest.UsersPath, 0, discardLogger())
	if err != nil {
		t.Fatalf("backend.New() error: %v", err)
	}
	store := session.NewStore(16, time.Minute, func() *controller.Controller {
		return controller.New(client, controller.WithLogger(discardLogger()))
	}, discardLogger())

	r := gin.New()
	r.SetHTMLTemplate(template.Must(template.New("").Parse(stubTemplates)))
	r.Use(session.Middleware(store, "/"))

	mod := NewModule(NewUserHandler(discardLogger()), NewUserPageHandler(discardLogger()))
	mod.RegisterRoutes(r.Group("/api/v1"), r.Group("/"))

	return &testEnv{router: r}
}

// do serves one request, carrying the session cookie of earlier responses.
func (e *testEnv) do(method, target, contentType, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return e.serve(req)
}

// serve is do for a prepared request.
func (e *testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	e.mu.Lock()
	if e.cookie != nil {
		req.AddCookie(e.cookie)
	}
	e.mu.Unlock()

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	for _, ck := range w.Result().Cookies() {
		if ck.Name == session.CookieName {
			e.mu.Lock()
			e.cookie = ck
			e.mu.Unlock()
		}
	}
	return w
}

func (e *testEnv) postForm(target string, values url.Values) *httptest.ResponseRecorder {
	return e.do(http.MethodPost, target, "application/x-www-form-urlencoded", values.Encode())
}

// holdNextList blocks the next list request at the fake API until release
// is called. started is closed once the request is held.
func (e *testEnv) holdNextList(t *testing.T) (started <-chan struct{}, release func()) {
	t.Helper()
	startedCh := make(chan struct{})
	releaseCh := make(chan struct{})
	var once sync.Once
	e.srv.Before(func(r *http.Request) {
		if r.Method != http.MethodGet {
			return
		}
		once.Do(func() {
			close(startedCh)
			<-releaseCh
		})
	})
	var releaseOnce sync.Once
	release = func() { releaseOnce.Do(func() { close(releaseCh) }) }
	t.Cleanup(release)
	return startedCh, release
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for request to reach the users API")
	}
}

func countRequests(reqs []backendtest.Request, method string) int {
	n := 0
	for _, r := range reqs {
		if r.Method == method {
			n++
		}
	}
	return n
}

// --- tests ---

func TestListPage_EmptyList(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/users", "", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	want := "list mode=create busy=false name= email="
	if got := w.Body.String(); got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
	if got := countRequests(env.srv.Requests(), http.MethodGet); got != 1 {
		t.Errorf("expected 1 list request, got %d", got)
	}
}

func TestListPage_SetsSessionCookie(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/users", "", "")

	var found bool
	for _, ck := range w.Result().Cookies() {
		if ck.Name == session.CookieName {
			found = true
		}
	}
	if !found {
		t.Fatal("expected session cookie on first page load")
	}

	w = env.do(http.MethodGet, "/users", "", "")
	for _, ck := range w.Result().Cookies() {
		if ck.Name == session.CookieName {
			t.Error("expected no new session cookie when the session is reused")
		}
	}
}

func TestListPage_ResetsState(t *testing.T) {
	env := newTestEnv(t)
	env.srv.Seed(domain.UserRecord{ID: 1, Name: "Ann", Email: "ann@example.com"})

	env.do(http.MethodGet, "/users", "", "")
	env.do(http.MethodPost, "/users/1/edit", "", "")

	w := env.do(http.MethodGet, "/users", "", "")

	want := "list mode=create busy=false name= email= [1 Ann ann@example.com]"
	if got := w.Body.String(); got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
}

func TestUpdateForm_StoresInputs(t *testing.T) {
	env := newTestEnv(t)
	env.do(http.MethodGet, "/users", "", "")

	w := env.postForm("/users/form", url.Values{"name": {"An"}, "email": {"a@"}})
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("expected empty body, got %q", w.Body.String())
	}

	w = env.do(http.MethodGet, "/users/panel", "", "")
	if got := w.Body.String(); !strings.Contains(got, "name=An email=a@") {
		t.Errorf("panel = %q, want stored inputs", got)
	}
	if got := countRequests(env.srv.Requests(), http.MethodGet); got != 1 {
		t.Errorf("panel must not fetch, got %d list requests", got)
	}
}

func TestSubmit_CreatesAndClearsForm(t *testing.T) {
	env := newTestEnv(t)
	env.do(http.MethodGet, "/users", "", "")

	w := env.postForm("/users", url.Values{"name": {"Ann"}, "email": {"ann@example.com"}})

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	want := "mode=create busy=false name= email= [1 Ann ann@example.com]"
	if got := w.Body.String(); got != want {
		t.Errorf("body = %q, want %q", got, want)
	}

	reqs := env.srv.Requests()
	if len(reqs) != 3 {
		t.Fatalf("expected 3 API requests, got %d", len(reqs))
	}
	if reqs[1].Method != http.MethodPost || reqs[1].Body.Name != "Ann" {
		t.Errorf("request[1] = %+v, want POST with name Ann", reqs[1])
	}
	if reqs[2].Method != http.MethodGet {
		t.Errorf("request[2] method = %s, want GET", reqs[2].Method)
	}
}

func TestSubmit_UpdatesEditTarget(t *testing.T) {
	env := newTestEnv(t)
	env.srv.Seed(domain.UserRecord{ID: 1, Name: "Ann", Email: "ann@example.com"})
	env.do(http.MethodGet, "/users", "", "")

	w := env.do(http.MethodPost, "/users/1/edit", "", "")
	want := "mode=update:1 busy=false name=Ann email=ann@example.com [1 Ann ann@example.com]"
	if got := w.Body.String(); got != want {
		t.Fatalf("edit body = %q, want %q", got, want)
	}

	w = env.postForm("/users", url.Values{"name": {"Annie"}, "email": {"ann@example.com"}})
	want = "mode=create busy=false name= email= [1 Annie ann@example.com]"
	if got := w.Body.String(); got != want {
		t.Errorf("submit body = %q, want %q", got, want)
	}

	reqs := env.srv.Requests()
	put := reqs[len(reqs)-2]
	if put.Method != http.MethodPut || put.Path != backendtest.UsersPath+"/1" {
		t.Errorf("expected PUT %s/1, got %s %s", backendtest.UsersPath, put.Method, put.Path)
	}
}

func TestSubmit_MaskedFailureStillClearsForm(t *testing.T) {
	env := newTestEnv(t)
	env.do(http.MethodGet, "/users", "", "")
	env.srv.FailWith(http.MethodPost, http.StatusInternalServerError)

	w := env.postForm("/users", url.Values{"name": {"Ann"}, "email": {"ann@example.com"}})

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	want := "mode=create busy=false name= email="
	if got := w.Body.String(); got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
	if got := countRequests(env.srv.Requests(), http.MethodGet); got != 2 {
		t.Errorf("expected a reconcile fetch, got %d list requests", got)
	}
}

func TestSubmit_TransportFailureKeepsForm(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	env := newTestEnvWithURL(t, deadURL)

	w := env.postForm("/users", url.Values{"name": {"Ann"}, "email": {"ann@example.com"}})

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	want := "mode=create busy=false name=Ann email=ann@example.com"
	if got := w.Body.String(); got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
}

func TestSubmit_SkippedWhileBusy(t *testing.T) {
	env := newTestEnv(t)
	env.do(http.MethodGet, "/users", "", "")

	started, release := env.holdNextList(t)
	done := make(chan struct{})
	go func() {
		defer close(done)
		env.do(http.MethodPost, "/users/refresh", "", "")
	}()
	waitClosed(t, started)

	w := env.postForm("/users", url.Values{"name": {"Bob"}, "email": {"bob@example.com"}})

	if got := w.Body.String(); got != "mode=create busy=true name=Bob email=bob@example.com" {
		t.Errorf("body = %q, want busy panel with stored inputs", got)
	}
	if got := countRequests(env.srv.Requests(), http.MethodPost); got != 0 {
		t.Errorf("expected no create while busy, got %d", got)
	}

	release()
	<-done
}

func TestEdit_UnknownIDLeavesCreateMode(t *testing.T) {
	env := newTestEnv(t)
	env.do(http.MethodGet, "/users", "", "")

	w := env.do(http.MethodPost, "/users/42/edit", "", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if got := w.Body.String(); !strings.HasPrefix(got, "mode=create") {
		t.Errorf("body = %q, want create mode", got)
	}
}

func TestEdit_NotGatedByBusy(t *testing.T) {
	env := newTestEnv(t)
	env.srv.Seed(domain.UserRecord{ID: 1, Name: "Ann", Email: "ann@example.com"})
	env.do(http.MethodGet, "/users", "", "")

	started, release := env.holdNextList(t)
	done := make(chan struct{})
	go func() {
		defer close(done)
		env.do(http.MethodPost, "/users/refresh", "", "")
	}()
	waitClosed(t, started)

	w := env.do(http.MethodPost, "/users/1/edit", "", "")
	if got := w.Body.String(); !strings.HasPrefix(got, "mode=update:1 busy=true name=Ann") {
		t.Errorf("body = %q, want update mode while busy", got)
	}

	release()
	<-done
}

func TestPageHandlers_InvalidID(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		htmx   bool
	}{
		{"edit non-numeric", http.MethodPost, "/users/abc/edit", false},
		{"edit zero", http.MethodPost, "/users/0/edit", true},
		{"delete negative", http.MethodDelete, "/users/-1", true},
		{"delete non-numeric", http.MethodDelete, "/users/abc", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.htmx {
				req.Header.Set("HX-Request", "true")
			}
			w := env.serve(req)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", w.Code)
			}
			if got := w.Body.String(); got != "400" {
				t.Errorf("body = %q, want 400 page", got)
			}
			wantRetarget := ""
			if tt.htmx {
				wantRetarget = "body"
			}
			if got := w.Header().Get("HX-Retarget"); got != wantRetarget {
				t.Errorf("HX-Retarget = %q, want %q", got, wantRetarget)
			}
			if n := len(env.srv.Requests()); n != 0 {
				t.Errorf("expected no API requests, got %d", n)
			}
		})
	}
}

func TestDelete_RemovesRow(t *testing.T) {
	env := newTestEnv(t)
	env.srv.Seed(domain.UserRecord{ID: 1, Name: "Ann", Email: "ann@example.com"})
	env.do(http.MethodGet, "/users", "", "")

	w := env.do(http.MethodDelete, "/users/1", "", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if got := w.Body.String(); got != "mode=create busy=false name= email=" {
		t.Errorf("body = %q, want empty table", got)
	}
	if users := env.srv.Users(); len(users) != 0 {
		t.Errorf("expected backend to be empty, got %+v", users)
	}
}

func TestRefresh_LoadsNewRows(t *testing.T) {
	env := newTestEnv(t)
	env.do(http.MethodGet, "/users", "", "")
	env.srv.Seed(domain.UserRecord{ID: 7, Name: "Bo", Email: "bo@example.com"})

	w := env.do(http.MethodPost, "/users/refresh", "", "")

	if got := w.Body.String(); !strings.HasSuffix(got, "[7 Bo bo@example.com]") {
		t.Errorf("body = %q, want the new row", got)
	}
}

func TestRefresh_FailureKeepsPreviousList(t *testing.T) {
	env := newTestEnv(t)
	env.srv.Seed(domain.UserRecord{ID: 1, Name: "Ann", Email: "ann@example.com"})
	env.do(http.MethodGet, "/users", "", "")
	env.srv.FailWith(http.MethodGet, http.StatusInternalServerError)

	w := env.do(http.MethodPost, "/users/refresh", "", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if got := w.Body.String(); !strings.HasSuffix(got, "[1 Ann ann@example.com]") {
		t.Errorf("body = %q, want the previous list", got)
	}
}

func TestPageHandler_WithoutSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.SetHTMLTemplate(template.Must(template.New("").Parse(stubTemplates)))
	h := NewUserPageHandler(discardLogger())
	r.GET("/users", h.ListPage)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/users", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", w.Code)
	}
	if got := w.Body.String(); got != "500" {
		t.Errorf("body = %q, want 500 page", got)
	}
}

func TestParseID(t *testing.T) {
	tests := []struct {
		param   string
		want    int64
		wantErr bool
	}{
		{"1", 1, false},
		{"9223372036854775807", 9223372036854775807, false},
		{"0", 0, true},
		{"-3", 0, true},
		{"1.5", 0, true},
		{"9223372036854775808", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.param, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Params = gin.Params{{Key: "id", Value: tt.param}}

			got, err := parseID(c)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseID(%q) error = %v, wantErr %v", tt.param, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseID(%q) = %d, want %d", tt.param, got, tt.want)
			}
		})
	}
}
