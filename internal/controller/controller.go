// Package controller holds the state of one user list page and keeps it in
// sync with the users API.
//
// The controller owns the last fetched list, the form inputs, the edit
// target and the busy flag. Every mutation is followed by a full re-fetch;
// the list is never patched locally. Operations are not serialized: callers
// are expected to consult Busy before triggering one, and overlapping
// operations race with the last fetch to resolve deciding the list.
package controller

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/simp-lee/usercrud/internal/domain"
)

// Backend is the users API the controller drives.
//
// Mutations return the response status; an error means no response was
// received.
type Backend interface {
	List(ctx context.Context) ([]domain.UserRecord, error)
	Create(ctx context.Context, form domain.FormState) (int, error)
	Update(ctx context.Context, id int64, form domain.FormState) (int, error)
	Delete(ctx context.Context, id int64) (int, error)
}

// View is a point-in-time copy of the controller state.
type View struct {
	Users      []domain.UserRecord `json:"users"`
	Form       domain.FormState    `json:"form"`
	EditTarget domain.EditTarget   `json:"edit_target"`
	Busy       bool                `json:"busy"`
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger used for request outcomes.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSequencedFetch makes the controller apply a fetch result only when it
// belongs to the most recently issued fetch. Without it, overlapping fetches
// race and whichever resolves last wins.
func WithSequencedFetch(enabled bool) Option {
	return func(c *Controller) {
		c.sequenced = enabled
	}
}

// Controller is the state owner of one user list page.
type Controller struct {
	backend   Backend
	logger    *slog.Logger
	sequenced bool

	mu         sync.Mutex
	users      []domain.UserRecord
	form       domain.FormState
	editTarget domain.EditTarget
	busy       bool
	fetchSeq   uint64
}

// New creates a Controller in create mode with an empty list.
func New(backend Backend, opts ...Option) *Controller {
	c := &Controller{
		backend: backend,
		logger:  slog.Default(),
		users:   []domain.UserRecord{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// urlReporter is implemented by backends that know their users URL.
type urlReporter interface {
	URL() string
}

// Mount resets the page to its initial state and loads the list, as a fresh
// page load does. The users URL is logged at debug level when the backend
// reports it.
func (c *Controller) Mount(ctx context.Context) error {
	if r, ok := c.backend.(urlReporter); ok {
		c.logger.DebugContext(ctx, "mount user list", slog.String("url", r.URL()))
	}

	c.mu.Lock()
	c.users = []domain.UserRecord{}
	c.form = domain.FormState{}
	c.editTarget = domain.NoEditTarget()
	c.mu.Unlock()

	return c.FetchUsers(ctx)
}

// FetchUsers replaces the list with the backend's current list.
// On failure the previous list is kept and a fetch error is returned.
func (c *Controller) FetchUsers(ctx context.Context) error {
	c.setBusy(true)
	defer c.setBusy(false)

	return c.fetch(ctx)
}

// CreateUser posts the form as a new user, clears the form and re-fetches.
// The response status is not inspected.
func (c *Controller) CreateUser(ctx context.Context) error {
	c.setBusy(true)
	defer c.setBusy(false)

	form := c.Form()
	status, err := c.backend.Create(ctx, form)
	if err != nil {
		c.logger.ErrorContext(ctx, "create user request failed", slog.Any("error", err))
		return err
	}
	c.logIgnoredStatus(ctx, "create", status)

	c.mu.Lock()
	c.form = domain.FormState{}
	c.mu.Unlock()

	return c.reconcile(ctx)
}

// UpdateUser puts the form to the user with id, clears the form and the
// edit target, and re-fetches. The response status is not inspected.
func (c *Controller) UpdateUser(ctx context.Context, id int64) error {
	c.setBusy(true)
	defer c.setBusy(false)

	form := c.Form()
	status, err := c.backend.Update(ctx, id, form)
	if err != nil {
		c.logger.ErrorContext(ctx, "update user request failed", slog.Int64("id", id), slog.Any("error", err))
		return err
	}
	c.logIgnoredStatus(ctx, "update", status)

	c.mu.Lock()
	c.form = domain.FormState{}
	c.editTarget = domain.NoEditTarget()
	c.mu.Unlock()

	return c.reconcile(ctx)
}

// DeleteUser deletes the user with id and re-fetches.
// The response status is not inspected.
func (c *Controller) DeleteUser(ctx context.Context, id int64) error {
	c.setBusy(true)
	defer c.setBusy(false)

	status, err := c.backend.Delete(ctx, id)
	if err != nil {
		c.logger.ErrorContext(ctx, "delete user request failed", slog.Int64("id", id), slog.Any("error", err))
		return err
	}
	c.logIgnoredStatus(ctx, "delete", status)

	return c.reconcile(ctx)
}

// Submit runs the form's single action: create in create mode, update of the
// edit target otherwise.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	target := c.editTarget
	c.mu.Unlock()

	if id, ok := target.ID(); ok {
		return c.UpdateUser(ctx, id)
	}
	return c.CreateUser(ctx)
}

// BeginEdit loads record into the form and switches to update mode for it.
// It has no network effect.
func (c *Controller) BeginEdit(record domain.UserRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.form = domain.FormState{Name: record.Name, Email: record.Email}
	c.editTarget = domain.EditTargetFor(record.ID)
}

// SetForm replaces the form inputs.
func (c *Controller) SetForm(form domain.FormState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.form = form
}

// Form returns the current form inputs.
func (c *Controller) Form() domain.FormState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.form
}

// EditTarget returns the current edit target.
func (c *Controller) EditTarget() domain.EditTarget {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.editTarget
}

// Busy reports whether a request is in flight.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.busy
}

// Users returns a copy of the last fetched list.
func (c *Controller) Users() []domain.UserRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Clone(c.users)
}

// Find returns the record with id from the last fetched list.
func (c *Controller) Find(id int64) (domain.UserRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, u := range c.users {
		if u.ID == id {
			return u, true
		}
	}
	return domain.UserRecord{}, false
}

// Snapshot returns a copy of the whole state.
func (c *Controller) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	return View{
		Users:      slices.Clone(c.users),
		Form:       c.form,
		EditTarget: c.editTarget,
		Busy:       c.busy,
	}
}

// reconcile re-fetches the list after a mutation regardless of its outcome.
func (c *Controller) reconcile(ctx context.Context) error {
	return c.fetch(ctx)
}

func (c *Controller) fetch(ctx context.Context) error {
	c.mu.Lock()
	c.fetchSeq++
	seq := c.fetchSeq
	c.mu.Unlock()

	users, err := c.backend.List(ctx)
	if err != nil {
		c.logger.ErrorContext(ctx, "fetch users failed", slog.Any("error", err))
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sequenced && seq != c.fetchSeq {
		c.logger.DebugContext(ctx, "discarding stale user list",
			slog.Uint64("seq", seq),
			slog.Uint64("latest", c.fetchSeq),
		)
		return nil
	}
	c.users = users
	return nil
}

func (c *Controller) setBusy(busy bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.busy = busy
}

func (c *Controller) logIgnoredStatus(ctx context.Context, op string, status int) {
	if status >= 200 && status <= 299 {
		return
	}
	c.logger.WarnContext(ctx, "users api rejected mutation, refreshing anyway",
		slog.String("op", op),
		slog.Int("status", status),
	)
}
