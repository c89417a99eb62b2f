// Package backendtest provides an in-memory users API for tests.
package backendtest

import (
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/usercrud/internal/domain"
)

// UsersPath is the collection path served by Server.
const UsersPath = "/myapp/api/users"

// Request is one request observed by Server.
type Request struct {
	Method string
	Path   string
	Body   domain.FormState
}

// Server is a conforming users API backed by a map. Mutations assign ids
// sequentially starting at 1.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	users      map[int64]domain.UserRecord
	nextID     int64
	requests   []Request
	statuses   map[string]int
	beforeHook func(r *http.Request)
}

// NewServer starts a Server and registers its shutdown with t.Cleanup.
func NewServer(t testing.TB) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &Server{
		users:    make(map[int64]domain.UserRecord),
		nextID:   1,
		statuses: make(map[string]int),
	}

	r := gin.New()
	r.Use(s.record)
	r.GET(UsersPath, s.list)
	r.POST(UsersPath, s.create)
	r.PUT(UsersPath+"/:id", s.update)
	r.DELETE(UsersPath+"/:id", s.delete)

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Server.Close)
	return s
}

// Seed inserts users as-is and advances the id sequence past them.
func (s *Server) Seed(users ...domain.UserRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range users {
		s.users[u.ID] = u
		if u.ID >= s.nextID {
			s.nextID = u.ID + 1
		}
	}
}

// Users returns the stored users ordered by id.
func (s *Server) Users() []domain.UserRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

// Requests returns the requests received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// FailWith makes every request with method answer with status and no
// side effect. A zero status restores normal behavior.
func (s *Server) FailWith(method string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.statuses, method)
		return
	}
	s.statuses[method] = status
}

// Before registers fn to run at the start of every request, before any
// state is touched. It may block to hold a request in flight.
func (s *Server) Before(fn func(r *http.Request)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beforeHook = fn
}

func (s *Server) record(c *gin.Context) {
	s.mu.Lock()
	hook := s.beforeHook
	s.mu.Unlock()
	if hook != nil {
		hook(c.Request)
	}

	req := Request{Method: c.Request.Method, Path: c.Request.URL.Path}
	if c.Request.Method == http.MethodPost || c.Request.Method == http.MethodPut {
		_ = c.ShouldBindJSON(&req.Body)
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	status, failing := s.statuses[c.Request.Method]
	s.mu.Unlock()

	if failing {
		c.AbortWithStatusJSON(status, gin.H{"error": http.StatusText(status)})
		return
	}
	c.Set("body", req.Body)
	c.Next()
}

func (s *Server) list(c *gin.Context) {
	s.mu.Lock()
	users := s.sortedLocked()
	s.mu.Unlock()
	c.JSON(http.StatusOK, users)
}

func (s *Server) create(c *gin.Context) {
	body := c.MustGet("body").(domain.FormState)

	s.mu.Lock()
	u := domain.UserRecord{ID: s.nextID, Name: body.Name, Email: body.Email}
	s.users[u.ID] = u
	s.nextID++
	s.mu.Unlock()

	c.JSON(http.StatusCreated, u)
}

func (s *Server) update(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	body := c.MustGet("body").(domain.FormState)

	u := domain.UserRecord{ID: id, Name: body.Name, Email: body.Email}
	s.mu.Lock()
	_, ok := s.users[id]
	if ok {
		s.users[id] = u
	}
	s.mu.Unlock()

	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, u)
}

func (s *Server) delete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	s.mu.Lock()
	_, ok := s.users[id]
	delete(s.users, id)
	s.mu.Unlock()

	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) sortedLocked() []domain.UserRecord {
	users := make([]domain.UserRecord, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}
