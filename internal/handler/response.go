package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/uniboxhq/inbox-sync/pkg/errors"
)

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// Error writes err with the HTTP status its code maps to.
func Error(c *gin.Context, err error) {
	c.JSON(HTTPStatus(err), NewErrorResponse(err.Error()))
}

func HTTPStatus(err error) int {
	switch apperrors.CodeOf(err) {
	case apperrors.ErrNotFound:
		return http.StatusNotFound
	case apperrors.ErrBadRequest, apperrors.ErrMalformedPayload:
		return http.StatusBadRequest
	case apperrors.ErrUnauthorized, apperrors.ErrAuthExpired:
		return http.StatusUnauthorized
	case apperrors.ErrConflict:
		return http.StatusConflict
	case apperrors.ErrRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
