package handlers

import "github.com/gin-gonic/gin"

// RegisterAPIRoutes mounts the auth and task endpoints. authz guards every
// route except register and login; extra middleware runs after it on the
// task routes only.
func RegisterAPIRoutes(api gin.IRouter, auth *AuthHandler, tasks *TaskHandler, authz gin.HandlerFunc, taskMiddleware ...gin.HandlerFunc) {
	api.POST("/register", auth.Register)
	api.POST("/login", auth.Login)

	protected := api.Group("")
	protected.Use(authz)
	{
		protected.POST("/logout", auth.Logout)
		protected.GET("/me", auth.Me)

		taskRoutes := protected.Group("/tasks")
		taskRoutes.Use(taskMiddleware...)
		{
			taskRoutes.GET("", tasks.ListTasks)
			taskRoutes.POST("", tasks.CreateTask)
			taskRoutes.GET("/:id", tasks.GetTask)
			taskRoutes.PUT("/:id", tasks.UpdateTask)
			taskRoutes.PATCH("/:id", tasks.UpdateTask)
			taskRoutes.DELETE("/:id", tasks.DeleteTask)
		}
	}
}
