package handlers

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the authenticated REST endpoints on api.
func RegisterRoutes(api gin.IRouter, users *UserHandler, messages *MessageHandler) {
	u := api.Group("/users")
	u.GET("/friends", users.ListFriends)
	u.GET("/blocked", users.ListBlocked)
	u.PATCH("/status", users.UpdateStatus)
	u.GET("/:id/permission", users.Permission)

	m := api.Group("/messages")
	m.GET("/:chatId", messages.History)
	m.DELETE("/delete/:chatId", messages.DeleteHistory)
	m.DELETE("/:chatId/:messageId", messages.DeleteMessage)
}
