package user

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/usercrud/internal/controller"
	"github.com/simp-lee/usercrud/internal/middleware"
	"github.com/simp-lee/usercrud/internal/session"
)

// UserPageHandler renders the user list page and serves its htmx endpoints.
//
// Every htmx endpoint answers with the panel fragment (form and table)
// reflecting the state after the operation. Operation failures are never
// shown on the page: the panel keeps the previous list and the controller
// logs the cause.
type UserPageHandler struct {
	logger *slog.Logger
}

// NewUserPageHandler creates a new UserPageHandler.
func NewUserPageHandler(logger *slog.Logger) *UserPageHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserPageHandler{logger: logger}
}

// ListPage resets the session's page state, loads the list and renders the
// full page.
// GET /users
func (h *UserPageHandler) ListPage(c *gin.Context) {
	ctrl, ok := h.sessionController(c)
	if !ok {
		return
	}

	_ = ctrl.Mount(context.WithoutCancel(c.Request.Context()))

	c.HTML(http.StatusOK, "user/list.html", h.panelData(c, ctrl.Snapshot()))
}

// Panel renders the panel without side effects. The panel polls it while a
// request is in flight.
// GET /users/panel
func (h *UserPageHandler) Panel(c *gin.Context) {
	ctrl, ok := h.sessionController(c)
	if !ok {
		return
	}
	h.renderPanel(c, ctrl)
}

// UpdateForm stores the inputs as they are typed. Nothing is swapped so the
// focused input keeps its caret.
// POST /users/form
func (h *UserPageHandler) UpdateForm(c *gin.Context) {
	ctrl, ok := h.sessionController(c)
	if !ok {
		return
	}

	var req FormRequest
	if err := c.ShouldBind(&req); err != nil {
		h.logger.DebugContext(c.Request.Context(), "update form: bind error", slog.Any("error", err))
		c.Status(http.StatusBadRequest)
		return
	}
	ctrl.SetForm(req.State())

	c.Status(http.StatusNoContent)
}

// Submit stores the posted inputs and runs the form action: create, or
// update of the record being edited.
// POST /users
func (h *UserPageHandler) Submit(c *gin.Context) {
	ctrl, ok := h.sessionController(c)
	if !ok {
		return
	}

	var req FormRequest
	if err := c.ShouldBind(&req); err != nil {
		h.logger.DebugContext(c.Request.Context(), "submit: bind error", slog.Any("error", err))
		h.renderPanel(c, ctrl)
		return
	}
	ctrl.SetForm(req.State())

	h.run(c, ctrl, "submit", ctrl.Submit)
}

// Edit loads a row of the current list into the form.
// POST /users/:id/edit
func (h *UserPageHandler) Edit(c *gin.Context) {
	ctrl, ok := h.sessionController(c)
	if !ok {
		return
	}

	id, err := parseID(c)
	if err != nil {
		renderErrorPage(c, http.StatusBadRequest, "errors/400.html")
		return
	}

	if record, found := ctrl.Find(id); found {
		ctrl.BeginEdit(record)
	} else {
		h.logger.DebugContext(c.Request.Context(), "edit: user not in current list", slog.Int64("id", id))
	}

	h.renderPanel(c, ctrl)
}

// Delete deletes a row and reloads the list.
// DELETE /users/:id
func (h *UserPageHandler) Delete(c *gin.Context) {
	ctrl, ok := h.sessionController(c)
	if !ok {
		return
	}

	id, err := parseID(c)
	if err != nil {
		renderErrorPage(c, http.StatusBadRequest, "errors/400.html")
		return
	}

	h.run(c, ctrl, "delete", func(ctx context.Context) error {
		return ctrl.DeleteUser(ctx, id)
	})
}

// Refresh reloads the list.
// POST /users/refresh
func (h *UserPageHandler) Refresh(c *gin.Context) {
	ctrl, ok := h.sessionController(c)
	if !ok {
		return
	}
	h.run(c, ctrl, "refresh", ctrl.FetchUsers)
}

// run executes op unless a request is already in flight and renders the
// panel either way.
func (h *UserPageHandler) run(c *gin.Context, ctrl *controller.Controller, name string, op func(context.Context) error) {
	if ctrl.Busy() {
		h.logger.DebugContext(c.Request.Context(), "operation skipped while busy", slog.String("op", name))
		h.renderPanel(c, ctrl)
		return
	}

	_ = op(context.WithoutCancel(c.Request.Context()))

	h.renderPanel(c, ctrl)
}

func (h *UserPageHandler) renderPanel(c *gin.Context, ctrl *controller.Controller) {
	c.HTML(http.StatusOK, "user/panel.html", h.panelData(c, ctrl.Snapshot()))
}

func (h *UserPageHandler) panelData(c *gin.Context, v controller.View) gin.H {
	editID, editing := v.EditTarget.ID()
	return gin.H{
		"Users":     v.Users,
		"Form":      v.Form,
		"Editing":   editing,
		"EditID":    editID,
		"Busy":      v.Busy,
		"CSRFToken": middleware.GetCSRFToken(c),
	}
}

func (h *UserPageHandler) sessionController(c *gin.Context) (*controller.Controller, bool) {
	ctrl, ok := session.Controller(c)
	if !ok {
		h.logger.ErrorContext(c.Request.Context(), "page request without session")
		renderErrorPage(c, http.StatusInternalServerError, "errors/500.html")
		return nil, false
	}
	return ctrl, true
}

// renderErrorPage renders a full error page. An htmx caller gets it swapped
// into the body instead of its panel target.
func renderErrorPage(c *gin.Context, status int, name string) {
	if c.GetHeader("HX-Request") == "true" {
		c.Header("HX-Retarget", "body")
		c.Header("HX-Reswap", "innerHTML")
	}
	c.HTML(status, name, gin.H{})
}

// parseID extracts and validates the "id" URL parameter.
func parseID(c *gin.Context) (int64, error) {
	idStr := c.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id: %s", idStr)
	}
	return id, nil
}
