package user

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/usercrud/internal/controller"
	"github.com/simp-lee/usercrud/internal/domain"
	"github.com/simp-lee/usercrud/internal/pkg"
	"github.com/simp-lee/usercrud/internal/session"
)

// UserHandler exposes the session's controller as a JSON API.
type UserHandler struct {
	logger *slog.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(logger *slog.Logger) *UserHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserHandler{logger: logger}
}

// State handles GET /api/v1/state.
func (h *UserHandler) State(c *gin.Context) {
	ctrl, ok := sessionController(c)
	if !ok {
		return
	}
	pkg.Success(c, newStateResponse(ctrl.Snapshot()))
}

// SetForm handles PUT /api/v1/form.
func (h *UserHandler) SetForm(c *gin.Context) {
	ctrl, ok := sessionController(c)
	if !ok {
		return
	}

	var req FormRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}
	ctrl.SetForm(req.State())

	pkg.Success(c, newStateResponse(ctrl.Snapshot()))
}

// Submit handles POST /api/v1/submit. A body, when present, replaces the
// form before the submit.
func (h *UserHandler) Submit(c *gin.Context) {
	ctrl, ok := sessionController(c)
	if !ok {
		return
	}

	var req FormRequest
	present, ok := pkg.BindOptional(c, &req)
	if !ok {
		return
	}
	if present {
		ctrl.SetForm(req.State())
	}

	h.run(c, ctrl, "submit", ctrl.Submit)
}

// Refresh handles POST /api/v1/refresh.
func (h *UserHandler) Refresh(c *gin.Context) {
	ctrl, ok := sessionController(c)
	if !ok {
		return
	}
	h.run(c, ctrl, "refresh", ctrl.FetchUsers)
}

// Edit handles POST /api/v1/users/:id/edit. The record is taken from the
// last fetched list.
func (h *UserHandler) Edit(c *gin.Context) {
	ctrl, ok := sessionController(c)
	if !ok {
		return
	}

	var p IDParam
	if !pkg.BindURI(c, &p) {
		return
	}
	record, found := ctrl.Find(p.ID)
	if !found {
		pkg.Error(c, domain.NewAppError(domain.CodeNotFound, "user not in current list", nil))
		return
	}
	ctrl.BeginEdit(record)

	pkg.Success(c, newStateResponse(ctrl.Snapshot()))
}

// Delete handles DELETE /api/v1/users/:id.
func (h *UserHandler) Delete(c *gin.Context) {
	ctrl, ok := sessionController(c)
	if !ok {
		return
	}

	var p IDParam
	if !pkg.BindURI(c, &p) {
		return
	}

	h.run(c, ctrl, "delete", func(ctx context.Context) error {
		return ctrl.DeleteUser(ctx, p.ID)
	})
}

// run executes op unless a request is already in flight, then reports the
// resulting state. Failures are returned with the state as data.
func (h *UserHandler) run(c *gin.Context, ctrl *controller.Controller, name string, op func(context.Context) error) {
	if ctrl.Busy() {
		h.logger.DebugContext(c.Request.Context(), "operation rejected while busy", slog.String("op", name))
		pkg.ErrorWithData(c, domain.ErrBusy, newStateResponse(ctrl.Snapshot()))
		return
	}

	// The operation settles even if the client goes away.
	if err := op(context.WithoutCancel(c.Request.Context())); err != nil {
		pkg.ErrorWithData(c, err, newStateResponse(ctrl.Snapshot()))
		return
	}

	pkg.Success(c, newStateResponse(ctrl.Snapshot()))
}

// sessionController returns the request's controller, or sends a 500 when
// the session middleware did not run.
func sessionController(c *gin.Context) (*controller.Controller, bool) {
	ctrl, ok := session.Controller(c)
	if !ok {
		pkg.Error(c, domain.NewAppError(domain.CodeInternal, "session unavailable", nil))
		return nil, false
	}
	return ctrl, true
}
