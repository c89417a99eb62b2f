package user

import "github.com/gin-gonic/gin"

// UserModule implements the app.Module interface for the user list page.
type UserModule struct {
	handler     *UserHandler
	pageHandler *UserPageHandler
}

// NewModule creates a new UserModule with the given handlers.
// Panics if h or ph is nil.
func NewModule(h *UserHandler, ph *UserPageHandler) *UserModule {
	if h == nil {
		panic("user.NewModule: handler must not be nil")
	}
	if ph == nil {
		panic("user.NewModule: pageHandler must not be nil")
	}
	return &UserModule{handler: h, pageHandler: ph}
}

// RegisterRoutes registers user API and page routes. Both groups are
// expected to carry the session middleware.
func (m *UserModule) RegisterRoutes(api *gin.RouterGroup, pages *gin.RouterGroup) {
	// API routes
	api.GET("/state", m.handler.State)
	api.PUT("/form", m.handler.SetForm)
	api.POST("/submit", m.handler.Submit)
	api.POST("/refresh", m.handler.Refresh)
	api.POST("/users/:id/edit", m.handler.Edit)
	api.DELETE("/users/:id", m.handler.Delete)

	// Page routes
	pages.GET("/users", m.pageHandler.ListPage)
	pages.GET("/users/panel", m.pageHandler.Panel)
	pages.POST("/users/form", m.pageHandler.UpdateForm)
	pages.POST("/users/refresh", m.pageHandler.Refresh)
	pages.POST("/users", m.pageHandler.Submit)
	pages.POST("/users/:id/edit", m.pageHandler.Edit)
	pages.DELETE("/users/:id", m.pageHandler.Delete)
}
