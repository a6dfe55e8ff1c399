package orders

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes sets up the order mutation routes.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	og := e.Group("/orders/:id")

	og.PUT("/status", h.UpdateStatus)
	og.PUT("/member", h.AssignMember)

	og.POST("/items", h.AddItem)
	og.PUT("/items/:itemId", h.SetItemQuantity)
	og.DELETE("/items/:itemId", h.RemoveItem)

	og.PUT("/shipping-address", h.UpdateShippingAddress)
	og.PUT("/billing-address", h.UpdateBillingAddress)
	og.DELETE("/billing-address", h.ClearBillingAddress)
}
