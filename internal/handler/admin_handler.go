package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Kilat-Pet-Delivery/service-parking/internal/application"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/auth"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/clock"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/middleware"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/response"
)

// TriggerService runs the time-driven batches.
type TriggerService interface {
	StartDueBookings(ctx context.Context, now time.Time) application.TriggerResult
	CompleteDueBookings(ctx context.Context, now time.Time) application.TriggerResult
	ExpireStaleApprovals(ctx context.Context, now time.Time) application.TriggerResult
}

// AdminBookingHandler handles admin HTTP requests for booking management.
type AdminBookingHandler struct {
	service  BookingService
	triggers TriggerService
	clock    clock.Clock
}

// NewAdminBookingHandler creates a new AdminBookingHandler.
func NewAdminBookingHandler(service BookingService, triggers TriggerService, clk clock.Clock) *AdminBookingHandler {
	return &AdminBookingHandler{service: service, triggers: triggers, clock: clk}
}

// RegisterRoutes registers admin booking routes.
func (h *AdminBookingHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	authMW := middleware.AuthMiddleware(jwtManager)
	adminRole := middleware.RequireRole(auth.RoleAdmin)

	admin := r.Group("/api/v1/admin")
	admin.Use(authMW, adminRole)
	{
		admin.GET("/bookings", h.ListBookings)
		admin.GET("/stats/bookings", h.BookingStats)
		admin.POST("/bookings/:id/expire", h.ExpireBooking)
		admin.POST("/triggers/:job", h.RunTrigger)
	}
}

// ListBookings handles GET /api/v1/admin/bookings.
func (h *AdminBookingHandler) ListBookings(c *gin.Context) {
	page, limit := parsePagination(c)

	bookings, total, err := h.service.ListAllBookings(c.Request.Context(), page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Paginated(c, bookings, total, page, limit)
}

// BookingStats handles GET /api/v1/admin/stats/bookings.
func (h *AdminBookingHandler) BookingStats(c *gin.Context) {
	stats, err := h.service.GetBookingStats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, stats)
}

// ExpireBooking handles POST /api/v1/admin/bookings/:id/expire.
func (h *AdminBookingHandler) ExpireBooking(c *gin.Context) {
	bookingID, actor, ok := bookingRequest(c)
	if !ok {
		return
	}

	result, err := h.service.Expire(c.Request.Context(), bookingID, actor)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

type triggerResponse struct {
	application.TriggerResult
	RanAt  time.Time `json:"ran_at"`
	Errors []string  `json:"errors"`
}

// RunTrigger handles POST /api/v1/admin/triggers/:job for start, complete and expire.
func (h *AdminBookingHandler) RunTrigger(c *gin.Context) {
	var run func(context.Context, time.Time) application.TriggerResult
	switch c.Param("job") {
	case "start":
		run = h.triggers.StartDueBookings
	case "complete":
		run = h.triggers.CompleteDueBookings
	case "expire":
		run = h.triggers.ExpireStaleApprovals
	default:
		response.BadRequest(c, "job must be one of start, complete, expire")
		return
	}

	now := h.clock.Now()
	result := run(c.Request.Context(), now)
	response.Success(c, triggerResponse{
		TriggerResult: result,
		RanAt:         now,
		Errors:        result.Errors(),
	})
}
