// Package response writes the JSON envelopes returned by every HTTP handler.
package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/apperror"
)

// Envelope is the common response body.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Meta carries pagination data.
type Meta struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"total_pages"`
}

// Success writes 200 with data.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

// Created writes 201 with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Envelope{Success: true, Data: data})
}

// Paginated writes 200 with items and pagination meta.
func Paginated(c *gin.Context, items interface{}, total int64, page, limit int) {
	totalPages := 0
	if limit > 0 {
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}
	c.JSON(http.StatusOK, Envelope{
		Success: true,
		Data:    items,
		Meta:    &Meta{Total: total, Page: page, Limit: limit, TotalPages: totalPages},
	})
}

// BadRequest writes 400 with message.
func BadRequest(c *gin.Context, message string) {
	abort(c, http.StatusBadRequest, string(apperror.KindValidation), message, nil)
}

// Unauthorized writes 401.
func Unauthorized(c *gin.Context, message string) {
	abort(c, http.StatusUnauthorized, "unauthorized", message, nil)
}

// Forbidden writes 403.
func Forbidden(c *gin.Context, message string) {
	abort(c, http.StatusForbidden, string(apperror.KindForbidden), message, nil)
}

// Error maps err to a status code and writes it.
func Error(c *gin.Context, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		_ = c.Error(err)
		abort(c, http.StatusInternalServerError, string(apperror.KindInternal), "internal server error", nil)
		return
	}
	if appErr.Kind == apperror.KindUnbalancedEntry || appErr.Kind == apperror.KindConfig {
		_ = c.Error(err)
	}
	abort(c, StatusFor(appErr.Kind), string(appErr.Kind), appErr.Error(), appErr.Details)
}

// StatusFor returns the HTTP status for an error kind.
func StatusFor(kind apperror.Kind) int {
	switch kind {
	case apperror.KindValidation, apperror.KindInvalidInterval:
		return http.StatusBadRequest
	case apperror.KindForbidden:
		return http.StatusForbidden
	case apperror.KindNotFound:
		return http.StatusNotFound
	case apperror.KindSlotConflict, apperror.KindInvalidTransition, apperror.KindConflict:
		return http.StatusConflict
	case apperror.KindAdapterUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abort(c *gin.Context, status int, code, message string, details map[string]any) {
	c.AbortWithStatusJSON(status, Envelope{
		Success: false,
		Error:   &ErrorBody{Code: code, Message: message, Details: details},
	})
}
