package app

import "github.com/gin-gonic/gin"

// Module is a feature that mounts its own routes. api is the JSON group
// under /api/v1; pages is the HTML group guarded by CSRF. Both groups
// resolve the caller's session before any module handler runs.
type Module interface {
	RegisterRoutes(api *gin.RouterGroup, pages *gin.RouterGroup)
}
