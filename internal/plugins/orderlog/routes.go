package orderlog

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes sets up all order log routes on the given Echo instance.
// Permission checks belong to the gateway in front of this service; writes
// are serialized per order by the handler's locker.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	og := e.Group("/orders/:id")

	og.GET("/logs", h.List)
	og.GET("/state", h.State)
	og.POST("/logs", h.Create)
	og.POST("/events/:event", h.Event)

	og.POST("/logs/:lid/read", h.MarkRead)
	og.POST("/logs/:lid/send", h.RetrySend)
	og.DELETE("/logs/:lid", h.Delete)
}
