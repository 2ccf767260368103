package auth

import "github.com/gin-gonic/gin"

// RegisterRoutes registers auth routes on a group already guarded by Middleware
func RegisterRoutes(r *gin.RouterGroup, handler *Handler) {
	authGroup := r.Group("/auth")
	{
		authGroup.GET("/me", handler.Me)
		authGroup.POST("/token", handler.Token)
	}
}
