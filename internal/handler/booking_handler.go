package handler

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Kilat-Pet-Delivery/service-parking/internal/application"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/auth"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/middleware"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/response"
)

// BookingService is the lifecycle API the HTTP layer drives.
type BookingService interface {
	CreateBooking(ctx context.Context, driverID uuid.UUID, req application.CreateBookingRequest) (*application.BookingDTO, error)
	GetBooking(ctx context.Context, bookingID uuid.UUID, actor application.Actor) (*application.BookingDTO, error)
	GetDriverBookings(ctx context.Context, driverID uuid.UUID, page, limit int) ([]application.BookingDTO, int64, error)
	Confirm(ctx context.Context, bookingID uuid.UUID, actor application.Actor) (*application.BookingDTO, error)
	RequestApproval(ctx context.Context, bookingID uuid.UUID, actor application.Actor) (*application.BookingDTO, error)
	Start(ctx context.Context, bookingID uuid.UUID, actor application.Actor) (*application.BookingDTO, error)
	Complete(ctx context.Context, bookingID uuid.UUID, actor application.Actor) (*application.BookingDTO, error)
	Cancel(ctx context.Context, bookingID uuid.UUID, actor application.Actor, reason string) (*application.BookingDTO, error)
	Expire(ctx context.Context, bookingID uuid.UUID, actor application.Actor) (*application.BookingDTO, error)
	Reschedule(ctx context.Context, bookingID uuid.UUID, actor application.Actor, req application.RescheduleRequest) (*application.BookingDTO, error)
	Availability(ctx context.Context, resourceID uuid.UUID, start, end time.Time) (*application.AvailabilityDTO, error)
	ListAllBookings(ctx context.Context, page, limit int) ([]application.BookingDTO, int64, error)
	GetBookingStats(ctx context.Context) (*application.BookingStatsDTO, error)
}

// BookingHandler handles HTTP requests for booking operations.
type BookingHandler struct {
	service BookingService
}

// NewBookingHandler creates a new BookingHandler.
func NewBookingHandler(service BookingService) *BookingHandler {
	return &BookingHandler{service: service}
}

// RegisterRoutes registers all booking routes on the given router group.
func (h *BookingHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	authMW := middleware.AuthMiddleware(jwtManager)

	bookings := r.Group("/api/v1/bookings")
	bookings.Use(authMW)
	{
		bookings.POST("", middleware.RequireRole(auth.RoleDriver), h.CreateBooking)
		bookings.GET("", middleware.RequireRole(auth.RoleDriver), h.ListBookings)
		bookings.GET("/:id", h.GetBooking)
		bookings.POST("/:id/confirm", middleware.RequireRole(auth.RoleDriver, auth.RoleAdmin), h.ConfirmBooking)
		bookings.POST("/:id/request-approval", middleware.RequireRole(auth.RoleDriver, auth.RoleAdmin), h.RequestApproval)
		bookings.POST("/:id/start", h.StartBooking)
		bookings.POST("/:id/complete", h.CompleteBooking)
		bookings.POST("/:id/cancel", h.CancelBooking)
		bookings.POST("/:id/reschedule", middleware.RequireRole(auth.RoleDriver, auth.RoleAdmin), h.RescheduleBooking)
	}

	resources := r.Group("/api/v1/resources")
	resources.Use(authMW)
	{
		resources.GET("/:id/availability", h.Availability)
	}
}

// CreateBooking handles POST /api/v1/bookings.
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	var req application.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.CreateBooking(c.Request.Context(), userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, result)
}

// ListBookings handles GET /api/v1/bookings and returns the caller's own bookings.
func (h *BookingHandler) ListBookings(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	page, limit := parsePagination(c)
	items, total, err := h.service.GetDriverBookings(c.Request.Context(), userID, page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Paginated(c, items, total, page, limit)
}

// GetBooking handles GET /api/v1/bookings/:id.
func (h *BookingHandler) GetBooking(c *gin.Context) {
	bookingID, actor, ok := bookingRequest(c)
	if !ok {
		return
	}

	result, err := h.service.GetBooking(c.Request.Context(), bookingID, actor)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// ConfirmBooking handles POST /api/v1/bookings/:id/confirm.
func (h *BookingHandler) ConfirmBooking(c *gin.Context) {
	h.transition(c, h.service.Confirm)
}

// RequestApproval handles POST /api/v1/bookings/:id/request-approval.
func (h *BookingHandler) RequestApproval(c *gin.Context) {
	h.transition(c, h.service.RequestApproval)
}

// StartBooking handles POST /api/v1/bookings/:id/start.
func (h *BookingHandler) StartBooking(c *gin.Context) {
	h.transition(c, h.service.Start)
}

// CompleteBooking handles POST /api/v1/bookings/:id/complete.
func (h *BookingHandler) CompleteBooking(c *gin.Context) {
	h.transition(c, h.service.Complete)
}

// CancelBooking handles POST /api/v1/bookings/:id/cancel.
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	bookingID, actor, ok := bookingRequest(c)
	if !ok {
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&body)

	result, err := h.service.Cancel(c.Request.Context(), bookingID, actor, body.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// RescheduleBooking handles POST /api/v1/bookings/:id/reschedule.
func (h *BookingHandler) RescheduleBooking(c *gin.Context) {
	bookingID, actor, ok := bookingRequest(c)
	if !ok {
		return
	}

	var req application.RescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.Reschedule(c.Request.Context(), bookingID, actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// Availability handles GET /api/v1/resources/:id/availability?start=&end=.
func (h *BookingHandler) Availability(c *gin.Context) {
	resourceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid resource ID")
		return
	}

	start, err := time.Parse(time.RFC3339, c.Query("start"))
	if err != nil {
		response.BadRequest(c, "start must be an RFC3339 timestamp")
		return
	}
	end, err := time.Parse(time.RFC3339, c.Query("end"))
	if err != nil {
		response.BadRequest(c, "end must be an RFC3339 timestamp")
		return
	}

	result, err := h.service.Availability(c.Request.Context(), resourceID, start, end)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

type transitionCall func(ctx context.Context, bookingID uuid.UUID, actor application.Actor) (*application.BookingDTO, error)

func (h *BookingHandler) transition(c *gin.Context, call transitionCall) {
	bookingID, actor, ok := bookingRequest(c)
	if !ok {
		return
	}

	result, err := call(c.Request.Context(), bookingID, actor)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// bookingRequest reads the booking id and caller. It writes the error response itself.
func bookingRequest(c *gin.Context) (uuid.UUID, application.Actor, bool) {
	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid booking ID")
		return uuid.Nil, application.Actor{}, false
	}

	actor, ok := actorFrom(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return uuid.Nil, application.Actor{}, false
	}
	return bookingID, actor, true
}

func actorFrom(c *gin.Context) (application.Actor, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return application.Actor{}, false
	}
	role, ok := middleware.GetUserRole(c)
	if !ok {
		return application.Actor{}, false
	}
	return application.Actor{UserID: userID, Role: role}, true
}

// parsePagination extracts page and limit query parameters with defaults.
func parsePagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	return page, limit
}
