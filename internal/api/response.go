package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// SuccessResponse wraps every successful reply.
type SuccessResponse struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{Status: "success", Data: data})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, SuccessResponse{Status: "success", Data: data})
}

// Error aborts the request with statusCode and a machine-readable code.
func Error(c *gin.Context, statusCode int, message, code string) {
	c.AbortWithStatusJSON(statusCode, ErrorResponse{
		Error:     message,
		Code:      code,
		RequestID: c.GetString(requestIDKey),
	})
}

func BadRequest(c *gin.Context, message, code string) {
	Error(c, http.StatusBadRequest, message, code)
}

func Unauthorized(c *gin.Context, message, code string) {
	Error(c, http.StatusUnauthorized, message, code)
}

func Forbidden(c *gin.Context, message, code string) {
	Error(c, http.StatusForbidden, message, code)
}

func NotFound(c *gin.Context, message, code string) {
	Error(c, http.StatusNotFound, message, code)
}

func Conflict(c *gin.Context, message, code string) {
	Error(c, http.StatusConflict, message, code)
}

func ValidationFailed(c *gin.Context, message string) {
	Error(c, http.StatusUnprocessableEntity, message, "VALIDATION_FAILED")
}

func InternalServerError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, message, "INTERNAL_ERROR")
}
