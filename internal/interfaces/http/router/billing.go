package router

import (
	"github.com/erp/utility-billing/internal/interfaces/http/handler"
)

// BillingHandlers are the handlers served under /billing
type BillingHandlers struct {
	Billing  *handler.BillingHandler
	Readings *handler.ReadingHandler
	Building *handler.BuildingHandler
}

// NewBillingGroup builds the billing route table
func NewBillingGroup(h BillingHandlers) *DomainGroup {
	g := NewDomainGroup("billing", "/billing")

	g.POST("/calculate", h.Billing.Calculate)
	g.POST("/configurations/validate", h.Billing.ValidateConfiguration)
	g.POST("/distribute", h.Billing.Distribute)

	cache := g.Group("cache", "/cache")
	cache.DELETE("", h.Billing.ClearCache)
	cache.DELETE("/configurations/:id", h.Billing.ClearConfigurationCache)

	readings := g.Group("readings", "/readings")
	readings.POST("/validate", h.Readings.Validate)
	readings.POST("/validate-batch", h.Readings.ValidateBatch)

	buildings := g.Group("buildings", "/buildings/:id")
	buildings.GET("/gyvatukas", h.Building.Gyvatukas)
	buildings.POST("/gyvatukas/bill", h.Building.GyvatukasBill)
	buildings.POST("/summer-average", h.Building.SummerAverage)
	buildings.DELETE("/cache", h.Building.ClearCache)

	return g
}

// NewSystemGroup builds the system information routes
func NewSystemGroup(h *handler.SystemHandler) *DomainGroup {
	g := NewDomainGroup("system", "/system")
	g.GET("/info", h.GetSystemInfo)
	g.GET("/ping", h.Ping)
	return g
}
